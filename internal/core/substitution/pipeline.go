// Package substitution 串接相似食譜搜尋、可替代性分類與 DIISH 評分，產生降低 GHG 的食材替代建議。
package substitution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"recipe-substitution/internal/core/diish"
	"recipe-substitution/internal/core/ghg"
	"recipe-substitution/internal/core/recipesim"
	"recipe-substitution/internal/core/substitutability"
	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"go.uber.org/zap"
)

// IngredientScorer 食材替代評分策略
type IngredientScorer interface {
	TopCandidates(ctx context.Context, ingredient string, k int) ([]diish.Candidate, error)
}

// RecipeSource 依語料庫索引取回食譜
type RecipeSource interface {
	Recipe(i int) ([]string, error)
}

// Normalizer 文字正規化
type Normalizer interface {
	FilterIngredient(raw string) string
	FilterInstruction(raw string) string
}

// Ingredient 查詢中的食材，HighCarbon 為 nil 時由 GHG 表判斷
type Ingredient struct {
	Name       string `json:"ingredient_name"`
	HighCarbon *bool  `json:"is_high_carbon,omitempty"`
}

// Query 替代查詢
type Query struct {
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions,omitempty"`
	TotalGHG     *float64     `json:"total_ghg,omitempty"`
	Verbose      bool         `json:"verbose,omitempty"`
}

// Candidate 替代建議，建立後不再修改
type Candidate struct {
	From             string  `json:"from"`
	To               string  `json:"to"`
	Confidence       float64 `json:"confidence"`
	GHGDifference    float64 `json:"ghg_difference"`
	PercentReduction float64 `json:"percent_reduction"`
}

// Diagnostics verbose 模式的中間結果
type Diagnostics struct {
	Tokens           []string             `json:"tokens"`
	HighCarbon       []string             `json:"high_carbon"`
	SimilarRecipes   []recipesim.Neighbor `json:"similar_recipes"`
	ExcludedRecipes  []int                `json:"excluded_recipes"`
	Important        []string             `json:"important"`
	Substitutable    []string             `json:"substitutable"`
	UnknownTokens    []string             `json:"unknown_tokens,omitempty"`
	UnmatchedInputs  []string             `json:"unmatched_inputs,omitempty"`
	FilteredByGHG    int                  `json:"filtered_by_ghg"`
	CandidatesBefore int                  `json:"candidates_before_ghg_filter"`
}

// Result 替代結果
type Result struct {
	Candidates  []Candidate  `json:"substitutions"`
	TotalGHG    float64      `json:"total_ghg"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// Options 流程參數
type Options struct {
	SimilarRecipes          int
	Clusters                int
	ImportanceThreshold     float64
	CandidatesPerIngredient int
	GHGPolicy               string
	SignificantShare        float64
	HighCarbonMinGHG        float64
}

// OptionsFromConfig 由引擎設定建立參數
func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		SimilarRecipes:          cfg.SimilarRecipes,
		Clusters:                cfg.Clusters,
		ImportanceThreshold:     cfg.ImportanceThreshold,
		CandidatesPerIngredient: cfg.CandidatesPerIngredient,
		GHGPolicy:               cfg.GHGPolicy,
		SignificantShare:        cfg.SignificantShare,
		HighCarbonMinGHG:        cfg.HighCarbonMinGHG,
	}
}

// Pipeline 替代流程，所有相依物件皆唯讀，可並行呼叫
type Pipeline struct {
	search     recipesim.Search
	scorer     IngredientScorer
	recipes    RecipeSource
	table      *ghg.Table
	normalizer Normalizer
	opts       Options
}

// NewPipeline normalizer 可為 nil（輸入已是 token）；search 或 recipes 為 nil 時查詢會回傳 ErrArtifactMissing
func NewPipeline(search recipesim.Search, scorer IngredientScorer, recipes RecipeSource, table *ghg.Table, normalizer Normalizer, opts Options) *Pipeline {
	if table == nil {
		table = ghg.NewTable(nil)
	}
	return &Pipeline{
		search:     search,
		scorer:     scorer,
		recipes:    recipes,
		table:      table,
		normalizer: normalizer,
		opts:       opts,
	}
}

// queryToken 正規化後的查詢食材
type queryToken struct {
	token      string
	highCarbon *bool
}

// tokenize 正規化食材並去除重複（保留第一次出現的順序與標記）
func (p *Pipeline) tokenize(q Query) ([]queryToken, []string, []string) {
	var tokens []queryToken
	var unmatched []string
	seen := make(map[string]int)
	for _, ing := range q.Ingredients {
		text := strings.TrimSpace(ing.Name)
		if p.normalizer != nil {
			text = p.normalizer.FilterIngredient(text)
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			if ing.Name != "" {
				unmatched = append(unmatched, ing.Name)
			}
			continue
		}
		for _, token := range fields {
			if idx, ok := seen[token]; ok {
				if tokens[idx].highCarbon == nil {
					tokens[idx].highCarbon = ing.HighCarbon
				}
				continue
			}
			seen[token] = len(tokens)
			tokens = append(tokens, queryToken{token: token, highCarbon: ing.HighCarbon})
		}
	}

	var instructions []string
	for _, inst := range q.Instructions {
		if p.normalizer != nil {
			inst = p.normalizer.FilterInstruction(inst)
		}
		instructions = append(instructions, strings.Fields(inst)...)
	}
	return tokens, instructions, unmatched
}

// isHighCarbon 呼叫端未標記時，GHG 表有資料且大於門檻才算高碳
func (p *Pipeline) isHighCarbon(t queryToken) bool {
	if t.highCarbon != nil {
		return *t.highCarbon
	}
	v, ok := p.table.Lookup(t.token)
	return ok && v > p.opts.HighCarbonMinGHG
}

// Substitute 執行完整替代流程
func (p *Pipeline) Substitute(ctx context.Context, q Query) (*Result, error) {
	tokens, instructions, unmatched := p.tokenize(q)

	present := make(map[string]bool, len(tokens))
	names := make([]string, len(tokens))
	for i, t := range tokens {
		present[t.token] = true
		names[i] = t.token
	}

	result := &Result{Candidates: []Candidate{}, TotalGHG: p.totalGHG(q, names)}
	var diag *Diagnostics
	if q.Verbose {
		diag = &Diagnostics{Tokens: names, UnmatchedInputs: unmatched}
		result.Diagnostics = diag
	}
	if len(tokens) == 0 {
		return result, nil
	}
	if p.search == nil || p.recipes == nil {
		return nil, fmt.Errorf("recipe similarity search: %w", common.ErrArtifactMissing)
	}
	if p.scorer == nil {
		return nil, common.ErrNoSignals
	}

	// 1. 相似食譜
	searchTokens := names
	if len(instructions) > 0 {
		searchTokens = append(append(append([]string{}, names...), recipesim.InstructionSeparator), instructions...)
	}
	neighbors, err := p.search.MostSimilar(ctx, searchTokens, p.opts.SimilarRecipes, p.opts.Clusters)
	if err != nil {
		return nil, fmt.Errorf("similar recipe search failed: %w", err)
	}

	// 2. 排除只是在查詢上增加食材的食譜
	var cluster [][]string
	var excluded []int
	for _, nb := range neighbors {
		recipe, err := p.recipes.Recipe(nb.Index)
		if err != nil {
			return nil, fmt.Errorf("failed to load similar recipe: %w", err)
		}
		if containsAll(recipe, present) {
			excluded = append(excluded, nb.Index)
			continue
		}
		cluster = append(cluster, recipe)
	}

	// 3. 可替代性分類
	classes := substitutability.Classify(cluster, p.opts.ImportanceThreshold)

	if diag != nil {
		diag.SimilarRecipes = neighbors
		diag.ExcludedRecipes = excluded
		diag.Important = classes.Important
		diag.Substitutable = classes.Substitutable
	}

	// 4. 對高碳且非重要的食材產生候選
	var candidates []Candidate
	for _, t := range tokens {
		if !p.isHighCarbon(t) {
			continue
		}
		if diag != nil {
			diag.HighCarbon = append(diag.HighCarbon, t.token)
		}
		if classes.IsImportant(t.token) {
			common.LogDebug("Skipping important ingredient", zap.String("ingredient", t.token))
			continue
		}

		proposals, err := p.scorer.TopCandidates(ctx, t.token, p.opts.CandidatesPerIngredient)
		if err != nil {
			if errors.Is(err, common.ErrUnknownToken) {
				common.LogDebug("Ingredient not in vocabulary", zap.String("ingredient", t.token))
				if diag != nil {
					diag.UnknownTokens = append(diag.UnknownTokens, t.token)
				}
				continue
			}
			return nil, fmt.Errorf("candidates for %q: %w", t.token, err)
		}
		for _, c := range proposals {
			if c.Token == t.token || present[c.Token] || !classes.IsSubstitutable(c.Token) {
				continue
			}
			candidates = append(candidates, Candidate{From: t.token, To: c.Token, Confidence: c.Confidence})
		}
	}

	// 5. 去除重複並排序
	candidates = dedupe(candidates)
	if diag != nil {
		diag.CandidatesBefore = len(candidates)
	}

	// 6-7. GHG 篩選並計算降幅
	for _, c := range candidates {
		from, okFrom := p.table.Lookup(c.From)
		to, okTo := p.table.Lookup(c.To)
		if !okFrom || !okTo || !p.acceptGHG(from, to, result.TotalGHG) {
			continue
		}
		c.GHGDifference = from - to
		if result.TotalGHG != 0 {
			c.PercentReduction = c.GHGDifference / result.TotalGHG * 100
		}
		result.Candidates = append(result.Candidates, c)
	}
	if diag != nil {
		diag.FilteredByGHG = len(candidates) - len(result.Candidates)
	}
	return result, nil
}

// SimilarRecipe 相似食譜與其食材
type SimilarRecipe struct {
	Index       int      `json:"index"`
	Distance    float64  `json:"distance"`
	Ingredients []string `json:"ingredients"`
}

// SimilarRecipes 回傳與查詢最相似的 k 個語料庫食譜，k 或 nClusters <= 0 時使用設定值
func (p *Pipeline) SimilarRecipes(ctx context.Context, q Query, k, nClusters int) ([]SimilarRecipe, error) {
	if p.search == nil || p.recipes == nil {
		return nil, fmt.Errorf("recipe similarity search: %w", common.ErrArtifactMissing)
	}
	if k <= 0 {
		k = p.opts.SimilarRecipes
	}
	if nClusters <= 0 {
		nClusters = p.opts.Clusters
	}
	tokens, instructions, _ := p.tokenize(q)
	out := []SimilarRecipe{}
	if len(tokens) == 0 {
		return out, nil
	}
	query := make([]string, 0, len(tokens)+len(instructions)+1)
	for _, t := range tokens {
		query = append(query, t.token)
	}
	if len(instructions) > 0 {
		query = append(append(query, recipesim.InstructionSeparator), instructions...)
	}

	neighbors, err := p.search.MostSimilar(ctx, query, k, nClusters)
	if err != nil {
		return nil, fmt.Errorf("similar recipe search failed: %w", err)
	}
	for _, nb := range neighbors {
		recipe, err := p.recipes.Recipe(nb.Index)
		if err != nil {
			return nil, fmt.Errorf("failed to load similar recipe: %w", err)
		}
		out = append(out, SimilarRecipe{Index: nb.Index, Distance: nb.Distance, Ingredients: recipe})
	}
	return out, nil
}

// Candidates 單一食材的 DIISH 候選，不經過相似食譜與 GHG 篩選
func (p *Pipeline) Candidates(ctx context.Context, ingredient string, k int) ([]diish.Candidate, error) {
	if p.scorer == nil {
		return nil, common.ErrNoSignals
	}
	if k <= 0 {
		k = p.opts.CandidatesPerIngredient
	}
	token := strings.TrimSpace(ingredient)
	if p.normalizer != nil {
		if fields := strings.Fields(p.normalizer.FilterIngredient(token)); len(fields) == 1 {
			token = fields[0]
		}
	}
	return p.scorer.TopCandidates(ctx, token, k)
}

// acceptGHG 依設定的策略判斷，兩種策略都不允許 GHG 增加
func (p *Pipeline) acceptGHG(from, to, total float64) bool {
	if from < to {
		return false
	}
	if p.opts.GHGPolicy == config.GHGPolicySignificantShare {
		return from >= p.opts.SignificantShare*total
	}
	return true
}

// totalGHG 呼叫端未提供時，加總有資料的查詢食材
func (p *Pipeline) totalGHG(q Query, tokens []string) float64 {
	if q.TotalGHG != nil {
		return *q.TotalGHG
	}
	var total float64
	for _, t := range tokens {
		if v, ok := p.table.Lookup(t); ok {
			total += v
		}
	}
	return total
}

// containsAll recipe 是否包含 set 中所有 token
func containsAll(recipe []string, set map[string]bool) bool {
	have := make(map[string]bool, len(recipe))
	for _, t := range recipe {
		have[t] = true
	}
	for t := range set {
		if !have[t] {
			return false
		}
	}
	return true
}

// dedupe 以 (from, to) 去重保留最高信心值，依信心值遞減、from、to 排序
func dedupe(cs []Candidate) []Candidate {
	type pair struct{ from, to string }
	best := make(map[pair]int)
	var out []Candidate
	for _, c := range cs {
		k := pair{c.From, c.To}
		if i, ok := best[k]; ok {
			if c.Confidence > out[i].Confidence {
				out[i] = c
			}
			continue
		}
		best[k] = len(out)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
