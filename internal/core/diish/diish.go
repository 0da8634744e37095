// Package diish 組合四種訊號的食材替代分數（DIISH）：
//
//	score(a, b) = W + S² + 0.5·D^0.25 + 2·P^0.5
//
// 任一訊號不可用時分數未定義，不會只用部分訊號計算。
package diish

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"recipe-substitution/internal/core/signals"
	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/common"

	"golang.org/x/sync/errgroup"
)

// ScoreCeiling 經驗上的分數上限，用於將分數換算為 (0, 1] 的信心值
const ScoreCeiling = 4.5

// Signals 四個訊號，nil 表示該訊號未載入
type Signals struct {
	W signals.Provider
	S signals.Provider
	D signals.Provider
	P signals.Provider
}

// Available 已載入的訊號名稱
func (s Signals) Available() []string {
	var names []string
	for _, p := range []signals.Provider{s.W, s.S, s.D, s.P} {
		if p != nil {
			names = append(names, p.Name())
		}
	}
	return names
}

// Complete 四個訊號是否都已載入
func (s Signals) Complete() bool {
	return s.W != nil && s.S != nil && s.D != nil && s.P != nil
}

// Candidate 替代候選
type Candidate struct {
	Token      string  `json:"token"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// Option 設定 Model
type Option func(*Model)

// WithCache 使用預計算的分數快取，查詢時不再呼叫訊號
func WithCache(c *ScoreCache) Option {
	return func(m *Model) { m.cache = c }
}

// WithWorkers 即時計算時的並行數
func WithWorkers(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.workers = n
		}
	}
}

// Model DIISH 組合評分器，建立後唯讀
type Model struct {
	vocab   *vocab.Vocabulary
	signals Signals
	cache   *ScoreCache
	workers int
}

// NewModel 建立評分器；沒有任何訊號也沒有快取時回傳 ErrNoSignals
func NewModel(v *vocab.Vocabulary, sig Signals, opts ...Option) (*Model, error) {
	m := &Model{vocab: v, signals: sig, workers: 1}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil && len(sig.Available()) == 0 {
		return nil, common.ErrNoSignals
	}
	if m.cache != nil && m.cache.Size() != v.Size() {
		return nil, fmt.Errorf("score cache is %dx%d, vocabulary has %d tokens", m.cache.Size(), m.cache.Size(), v.Size())
	}
	return m, nil
}

// Signals 已載入的訊號
func (m *Model) Signals() Signals { return m.signals }

// HasCache 是否使用分數快取
func (m *Model) HasCache() bool { return m.cache != nil }

// Ready 能否產生候選
func (m *Model) Ready() bool { return m.cache != nil || m.signals.Complete() }

// Score 以四個訊號即時計算分數；任一訊號不可用時回傳 ErrScoreUndefined，其他錯誤原樣回傳
func (m *Model) Score(ctx context.Context, a, b string) (float64, error) {
	var values [4]float64
	for i, p := range []signals.Provider{m.signals.W, m.signals.S, m.signals.D, m.signals.P} {
		if p == nil {
			return 0, fmt.Errorf("%s/%s: signal %d not loaded: %w", a, b, i, common.ErrScoreUndefined)
		}
		v, err := p.Similarity(ctx, a, b)
		if err != nil {
			if errors.Is(err, common.ErrSignalUnavailable) {
				return 0, fmt.Errorf("%s/%s: %v: %w", a, b, err, common.ErrScoreUndefined)
			}
			return 0, err
		}
		values[i] = v
	}
	return Combine(values[0], values[1], values[2], values[3]), nil
}

// Combine W + S² + 0.5·D^0.25 + 2·P^0.5，D 與 P 小於 0 時視為 0
func Combine(w, s, d, p float64) float64 {
	return w + s*s + 0.5*math.Pow(math.Max(d, 0), 0.25) + 2*math.Sqrt(math.Max(p, 0))
}

// Confidence 分數換算為信心值，超過上限時截為 1
func Confidence(score float64) float64 {
	return math.Min(score/ScoreCeiling, 1)
}

// TopCandidates 回傳分數最高的 k 個其他食材（不含自己），依信心值遞減、同分時依詞彙 id 遞增
func (m *Model) TopCandidates(ctx context.Context, ingredient string, k int) ([]Candidate, error) {
	id, err := m.vocab.ID(ingredient)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	scores, err := m.row(ctx, id)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id    int
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for j, s := range scores {
		if j == id || math.IsNaN(s) || s <= 0 {
			continue
		}
		ranked = append(ranked, scored{id: j, score: s})
	}
	sort.Slice(ranked, func(x, y int) bool {
		if ranked[x].score != ranked[y].score {
			return ranked[x].score > ranked[y].score
		}
		return ranked[x].id < ranked[y].id
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	out := make([]Candidate, len(ranked))
	for i, r := range ranked {
		token, _ := m.vocab.Token(r.id)
		out[i] = Candidate{Token: token, Score: r.score, Confidence: Confidence(r.score)}
	}
	return out, nil
}

// row 取得食材對所有詞彙的分數，未定義的格為 NaN
func (m *Model) row(ctx context.Context, id int) ([]float64, error) {
	if m.cache != nil {
		return m.cache.Row(id), nil
	}
	if !m.signals.Complete() {
		return nil, fmt.Errorf("signals loaded: %v: %w", m.signals.Available(), common.ErrNoSignals)
	}
	return m.scoreRow(ctx, id, m.workers)
}

// scoreRow 並行計算單列分數
func (m *Model) scoreRow(ctx context.Context, id, workers int) ([]float64, error) {
	a, err := m.vocab.Token(id)
	if err != nil {
		return nil, err
	}
	tokens := m.vocab.Tokens()
	out := make([]float64, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for j, b := range tokens {
		j, b := j, b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := m.Score(gctx, a, b)
			if err != nil {
				if errors.Is(err, common.ErrScoreUndefined) {
					out[j] = math.NaN()
					return nil
				}
				return err
			}
			out[j] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
