package substitution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/core/diish"
	"recipe-substitution/internal/core/ghg"
	"recipe-substitution/internal/core/recipesim"
	"recipe-substitution/internal/core/semantic"
	"recipe-substitution/internal/core/signals"
	"recipe-substitution/internal/core/textclean"
	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"go.uber.org/zap"
)

// Status 引擎載入狀態
type Status struct {
	Signals    map[string]bool `json:"signals"`
	ScoreCache bool            `json:"score_cache"`
	Search     string          `json:"search"`
	Profiles   string          `json:"profiles"`
	GHGSource  string          `json:"ghg_source"`
	GHGEntries int             `json:"ghg_entries"`
	Vocabulary int             `json:"vocabulary"`
	Recipes    int             `json:"recipes"`
	Warnings   []string        `json:"warnings"`
}

// Engine 由預計算檔案目錄建立一次，之後唯讀
type Engine struct {
	Vocab    *vocab.Vocabulary
	Corpus   *corpus.Corpus
	Scorer   *diish.Model
	Search   recipesim.Search
	GHG      *ghg.Table
	Cleaner  *textclean.Cleaner
	Pipeline *Pipeline
	Status   Status

	closers []io.Closer
}

// Ready 是否能產生替代建議
func (e *Engine) Ready() bool {
	return e.Scorer != nil && e.Scorer.Ready() && e.Search != nil && e.Corpus != nil
}

// Close 釋放 mmap 與 Redis 連線
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loader 載入過程的暫存狀態
type loader struct {
	cfg    *config.Config
	engine *Engine
	// live 略過分數快取，只用訊號即時計算
	live bool
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// missing 記錄缺少的檔案與停用的功能
func (l *loader) missing(artifact, path, disabled string, err error) {
	if err == nil {
		err = fs.ErrNotExist
	}
	common.LogArtifactMissing(artifact, path, disabled, err)
	l.engine.Status.Warnings = append(l.engine.Status.Warnings,
		fmt.Sprintf("%s unavailable (%v): %s disabled", artifact, err, disabled))
}

// LoadEngine 依設定載入所有檔案；各檔案獨立選用，缺少時只停用相依的訊號或功能。
// 詞彙表（或可重建它的語料庫）與 GHG 表為必要
func LoadEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	start := time.Now()
	l := newLoader(cfg)
	e := l.engine

	if err := l.loadCorpus(); err != nil {
		e.Close()
		return nil, err
	}
	l.loadCleaner()
	l.loadScorer(ctx)
	if err := l.loadSearch(); err != nil {
		e.Close()
		return nil, err
	}
	if err := l.loadGHG(ctx); err != nil {
		e.Close()
		return nil, err
	}

	var scorer IngredientScorer
	if e.Scorer != nil {
		scorer = e.Scorer
	}
	var recipes RecipeSource
	if e.Corpus != nil {
		recipes = e.Corpus
	}
	e.Pipeline = NewPipeline(e.Search, scorer, recipes, e.GHG, e.Cleaner, OptionsFromConfig(cfg.Engine))

	common.LogInfo("Engine loaded",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("vocabulary", e.Status.Vocabulary),
		zap.Int("recipes", e.Status.Recipes),
		zap.Any("signals", e.Status.Signals),
		zap.Bool("score_cache", e.Status.ScoreCache),
		zap.String("search", e.Status.Search),
		zap.String("ghg_source", e.Status.GHGSource),
		zap.Bool("ready", e.Ready()),
	)
	return e, nil
}

// LoadScorer 只載入詞彙表、語料庫與四個訊號，不使用分數快取，供離線預計算使用
func LoadScorer(ctx context.Context, cfg *config.Config) (*Engine, error) {
	l := newLoader(cfg)
	l.live = true
	if err := l.loadCorpus(); err != nil {
		return nil, err
	}
	l.loadScorer(ctx)
	if l.engine.Scorer == nil {
		return nil, common.ErrNoSignals
	}
	return l.engine, nil
}

func newLoader(cfg *config.Config) *loader {
	return &loader{
		cfg: cfg,
		engine: &Engine{Status: Status{
			Signals:  map[string]bool{},
			Warnings: []string{},
		}},
	}
}

// loadCorpus 語料庫食譜與詞彙表
func (l *loader) loadCorpus() error {
	a := l.cfg.Artifacts
	e := l.engine

	path := a.Path(a.CorpusIngredients)
	if c, err := corpus.LoadIngredients(path); err == nil {
		e.Corpus = c
		e.Status.Recipes = c.Len()
	} else {
		l.missing("corpus ingredients", path, "recipe reconstruction and D slow path", err)
	}

	path = a.Path(a.Dictionary)
	if v, err := vocab.Load(path); err == nil {
		e.Vocab = v
	} else if e.Corpus != nil {
		common.LogWarn("Dictionary unavailable, rebuilding from corpus", zap.String("path", path), zap.Error(err))
		e.Vocab = vocab.Build(e.Corpus.Recipes())
	} else {
		return fmt.Errorf("vocabulary %s: %v: %w", path, err, common.ErrArtifactMissing)
	}
	e.Status.Vocabulary = e.Vocab.Size()
	return nil
}

// loadCleaner 食材名稱與同義詞，缺少時以詞彙表作為食材名稱
func (l *loader) loadCleaner() {
	a := l.cfg.Artifacts
	names, synonyms := a.Path(a.FoodNames), a.Path(a.Synonyms)
	if !exists(synonyms) {
		synonyms = ""
	}
	c, err := textclean.Load(names, synonyms)
	if err != nil {
		l.missing("food names", names, "knowledge-base name matching (vocabulary used instead)", err)
		c = textclean.New(l.engine.Vocab.Tokens(), nil)
	}
	l.engine.Cleaner = c
}

// loadScorer 四個訊號、分數快取與 DIISH 評分器
func (l *loader) loadScorer(ctx context.Context) {
	a := l.cfg.Artifacts
	e := l.engine
	var sig diish.Signals

	// W
	path := a.Path(a.WordVectors)
	if w, err := signals.LoadWordVectors(path); err == nil {
		sig.W = w
	} else {
		l.missing("word vectors", path, "signal W", err)
	}

	// S
	if l.cfg.Semantic.Enabled {
		if m, err := semantic.NewOpenAIModel(l.cfg.Semantic); err == nil {
			sig.S = signals.NewSemantic(m)
		} else {
			l.missing("semantic model", l.cfg.Semantic.BaseURL, "signal S", err)
		}
	} else {
		l.missing("semantic model", "", "signal S", errors.New("semantic model disabled"))
	}

	// D：優先使用矩陣，否則掃描語料庫
	path = a.Path(a.Cooccurrence)
	if m, err := corpus.LoadMatrix(path); err == nil {
		if p, err := signals.NewMatrixProfiles(m, e.Vocab); err == nil {
			sig.D = signals.NewDistribution(e.Vocab, p)
			e.Status.Profiles = "matrix"
		} else {
			l.missing("co-occurrence matrix", path, "D fast path", err)
		}
	} else {
		l.missing("co-occurrence matrix", path, "D fast path", err)
	}
	if sig.D == nil && e.Corpus != nil {
		sig.D = signals.NewDistribution(e.Vocab, signals.NewCorpusProfiles(e.Vocab, e.Corpus))
		e.Status.Profiles = "corpus_scan"
	}

	// P
	fcPath, ficDir := a.Path(a.PairCounts), a.Path(a.ContextDir)
	if fc, err := corpus.LoadMatrix(fcPath); err != nil {
		l.missing("pair count matrix", fcPath, "signal P", err)
	} else if tensors, err := corpus.LoadContextTensors(ficDir, e.Vocab); err != nil {
		l.missing("context tensors", ficDir, "signal P", err)
	} else if p, err := signals.NewPMI(e.Vocab, fc, tensors); err != nil {
		l.missing("context tensors", ficDir, "signal P", err)
	} else {
		sig.P = p
	}

	for _, name := range []string{signals.NameEmbedding, signals.NameSemantic, signals.NameDistribution, signals.NamePMI} {
		e.Status.Signals[name] = false
	}
	for _, name := range sig.Available() {
		e.Status.Signals[name] = true
	}

	opts := []diish.Option{diish.WithWorkers(l.cfg.Engine.Workers)}
	path = a.Path(a.ScoreCache)
	if l.live {
		common.LogInfo("Score cache skipped, scoring from signals")
	} else if c, err := diish.LoadScoreCache(path); err != nil {
		l.missing("score cache", path, "precomputed scores (live scoring used)", err)
	} else if c.Size() != e.Vocab.Size() {
		err := fmt.Errorf("cache is %dx%d, vocabulary has %d tokens", c.Size(), c.Size(), e.Vocab.Size())
		l.missing("score cache", path, "precomputed scores (live scoring used)", err)
	} else {
		opts = append(opts, diish.WithCache(c))
		e.Status.ScoreCache = true
	}

	m, err := diish.NewModel(e.Vocab, sig, opts...)
	if err != nil {
		common.LogError("Composite scorer unavailable, no candidates will be produced", zap.Error(err))
		e.Status.Warnings = append(e.Status.Warnings, "composite scorer unavailable: "+err.Error())
		return
	}
	if !m.Ready() {
		common.LogWarn("Not all signals loaded and no score cache; candidates will be refused",
			zap.Strings("signals", sig.Available()))
	}
	e.Scorer = m
}

// loadSearch 語料庫向量與搜尋策略
func (l *loader) loadSearch() error {
	a := l.cfg.Artifacts
	e := l.engine
	tfidf := recipesim.NewTFIDF(e.Vocab)

	var vectors *corpus.Vectors
	for _, name := range []string{a.CorpusVectors, a.CorpusVectorsText} {
		path := a.Path(name)
		if name == "" || !exists(path) {
			continue
		}
		v, err := corpus.LoadVectors(path)
		if err != nil {
			l.missing("corpus vectors", path, "precomputed corpus vectors", err)
			continue
		}
		if v.Dim() != tfidf.Dim() {
			v.Close()
			l.missing("corpus vectors", path, "precomputed corpus vectors",
				fmt.Errorf("dimension %d does not match vocabulary size %d", v.Dim(), tfidf.Dim()))
			continue
		}
		vectors = v
		e.closers = append(e.closers, v)
		break
	}
	if vectors == nil && e.Corpus != nil {
		common.LogWarn("Corpus vectors unavailable, vectorizing corpus in memory", zap.Int("recipes", e.Corpus.Len()))
		v, err := recipesim.TransformCorpus(tfidf, e.Corpus)
		if err != nil {
			return err
		}
		vectors = v
	}
	if vectors == nil {
		l.missing("corpus vectors", a.Path(a.CorpusVectors), "recipe similarity search", nil)
		return nil
	}
	if e.Corpus != nil && vectors.Len() != e.Corpus.Len() {
		return fmt.Errorf("corpus vectors have %d rows, corpus has %d recipes", vectors.Len(), e.Corpus.Len())
	}

	switch l.cfg.Engine.SearchStrategy {
	case config.SearchStrategyHNSW:
		s, err := recipesim.NewHNSWSearch(tfidf, vectors)
		if err != nil {
			return err
		}
		e.Search = s
	default:
		s, err := recipesim.NewClusteredKNN(tfidf, vectors, l.cfg.Engine.Workers)
		if err != nil {
			return err
		}
		e.Search = s
	}
	e.Status.Search = l.cfg.Engine.SearchStrategy
	return nil
}

// loadGHG 知識庫優先，失敗時依序使用 Redis 與檔案快照
func (l *loader) loadGHG(ctx context.Context) error {
	e := l.engine
	var source ghg.Source
	if l.cfg.KnowledgeBase.Enabled {
		source = ghg.NewClient(l.cfg.KnowledgeBase)
	}

	var stores []ghg.SnapshotStore
	if l.cfg.Redis.Enabled {
		rs, err := ghg.NewRedisSnapshotStore(ctx, l.cfg.Redis)
		if err != nil {
			common.LogWarn("Redis snapshot store unavailable", zap.Error(err))
		} else {
			stores = append(stores, rs)
			e.closers = append(e.closers, rs)
		}
	}
	stores = append(stores, ghg.NewFileSnapshotStore(l.cfg.Artifacts.Path(l.cfg.Artifacts.GHGSnapshot)))

	table, from, err := ghg.NewLoader(source, e.Cleaner.FilterIngredient, stores...).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ghg table: %w", err)
	}
	e.GHG = table
	e.Status.GHGSource = from
	e.Status.GHGEntries = table.Len()
	return nil
}
