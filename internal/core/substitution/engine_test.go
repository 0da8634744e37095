package substitution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/core/ghg"
	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArtifacts 建立只含語料庫、詞彙表、分數快取與 GHG 快照的檔案目錄
func writeArtifacts(t *testing.T, withSnapshot bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Artifacts.Dir = dir
	cfg.KnowledgeBase.Enabled = false
	cfg.Redis.Enabled = false
	cfg.Semantic.Enabled = false

	var lines []string
	for _, r := range testRecipes {
		lines = append(lines, strings.Join(r, " "))
	}
	require.NoError(t, os.WriteFile(cfg.Artifacts.Path(cfg.Artifacts.CorpusIngredients), []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	v := vocab.Build(testRecipes)
	f, err := os.Create(cfg.Artifacts.Path(cfg.Artifacts.Dictionary))
	require.NoError(t, err)
	require.NoError(t, v.Write(f))
	require.NoError(t, f.Close())

	scores := corpus.NewMatrix(v.Size(), v.Size())
	set := func(a, b string, s float64) {
		i, err := v.ID(a)
		require.NoError(t, err)
		j, err := v.ID(b)
		require.NoError(t, err)
		scores.Set(i, j, s)
	}
	set("cheddar_cheese", "tofu", 3.6)
	set("cheddar_cheese", "lamb", 2.9)
	set("cheddar_cheese", "egg", 2.25)
	set("cheddar_cheese", "butter", 4)
	require.NoError(t, corpus.SaveMatrix(cfg.Artifacts.Path(cfg.Artifacts.ScoreCache), scores))

	if withSnapshot {
		snap := ghg.NewTable(testGHG).Snapshot("knowledge_base", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, common.WriteJSONFile(cfg.Artifacts.Path(cfg.Artifacts.GHGSnapshot), snap))
	}
	return cfg
}

func TestLoadEngineFromArtifacts(t *testing.T) {
	for _, strategy := range []string{config.SearchStrategyClustered, config.SearchStrategyHNSW} {
		t.Run(strategy, func(t *testing.T) {
			cfg := writeArtifacts(t, true)
			cfg.Engine.SearchStrategy = strategy

			e, err := LoadEngine(context.Background(), cfg)
			require.NoError(t, err)
			t.Cleanup(func() { e.Close() })

			assert.True(t, e.Ready())
			assert.True(t, e.Status.ScoreCache)
			assert.Equal(t, strategy, e.Status.Search)
			assert.Equal(t, "corpus_scan", e.Status.Profiles)
			assert.Equal(t, len(testRecipes), e.Status.Recipes)
			assert.Equal(t, len(testGHG), e.Status.GHGEntries)
			assert.True(t, strings.HasPrefix(e.Status.GHGSource, "file:"))
			assert.False(t, e.Status.Signals["W"])
			assert.True(t, e.Status.Signals["D"])
			assert.NotEmpty(t, e.Status.Warnings)

			result, err := e.Pipeline.Substitute(context.Background(), cheeseQuery())
			require.NoError(t, err)
			require.Len(t, result.Candidates, 2)
			assert.Equal(t, "tofu", result.Candidates[0].To)
			assert.InDelta(t, 0.8, result.Candidates[0].Confidence, 1e-9)
			assert.InDelta(t, 9, result.Candidates[0].GHGDifference, 1e-9)
			assert.Equal(t, "egg", result.Candidates[1].To)
		})
	}
}

func TestLoadEngineRequiresGHGSnapshot(t *testing.T) {
	cfg := writeArtifacts(t, false)
	_, err := LoadEngine(context.Background(), cfg)
	assert.ErrorIs(t, err, common.ErrArtifactMissing)
}

func TestLoadEngineRequiresVocabulary(t *testing.T) {
	cfg := writeArtifacts(t, true)
	require.NoError(t, os.Remove(cfg.Artifacts.Path(cfg.Artifacts.Dictionary)))
	require.NoError(t, os.Remove(cfg.Artifacts.Path(cfg.Artifacts.CorpusIngredients)))

	_, err := LoadEngine(context.Background(), cfg)
	assert.ErrorIs(t, err, common.ErrArtifactMissing)
}

func TestLoadEngineRebuildsVocabularyFromCorpus(t *testing.T) {
	cfg := writeArtifacts(t, true)
	require.NoError(t, os.Remove(cfg.Artifacts.Path(cfg.Artifacts.Dictionary)))

	e, err := LoadEngine(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, vocab.Build(testRecipes).Size(), e.Status.Vocabulary)
}

func TestLoadEngineWithoutScoresIsNotReady(t *testing.T) {
	cfg := writeArtifacts(t, true)
	require.NoError(t, os.Remove(cfg.Artifacts.Path(cfg.Artifacts.ScoreCache)))

	e, err := LoadEngine(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	// only D is available, so the composite score is undefined
	assert.False(t, e.Ready())
	_, err = e.Pipeline.Substitute(context.Background(), cheeseQuery())
	assert.ErrorIs(t, err, common.ErrNoSignals)
}

func TestLoadEnginePrefersBinaryVectors(t *testing.T) {
	cfg := writeArtifacts(t, true)
	v := vocab.Build(testRecipes)
	data := make([]float32, len(testRecipes)*v.Size())
	for i, r := range testRecipes {
		for _, tok := range r {
			id, err := v.ID(tok)
			require.NoError(t, err)
			data[i*v.Size()+id] = 1
		}
	}
	vectors, err := corpus.NewVectors(len(testRecipes), v.Size(), data)
	require.NoError(t, err)
	require.NoError(t, corpus.SaveBinaryVectors(filepath.Join(cfg.Artifacts.Dir, cfg.Artifacts.CorpusVectors), vectors))

	e, err := LoadEngine(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()
	assert.True(t, e.Ready())
	assert.NotEmpty(t, e.closers)
}

// writeSignalArtifacts 補上 W、P 檔案並以假的 embeddings API 啟用 S，讓四個訊號都可用
func writeSignalArtifacts(t *testing.T, cfg *config.Config) {
	t.Helper()
	v := vocab.Build(testRecipes)
	a := cfg.Artifacts

	var w2v strings.Builder
	fmt.Fprintf(&w2v, "%d 3\n", v.Size())
	for i, tok := range v.Tokens() {
		fmt.Fprintf(&w2v, "%s 1 %.2f 0.25\n", tok, float64(i%3)/4)
	}
	require.NoError(t, os.WriteFile(a.Path(a.WordVectors), []byte(w2v.String()), 0o644))

	require.NoError(t, corpus.SaveMatrix(a.Path(a.PairCounts), corpus.BuildPairCounts(v, testRecipes)))
	require.NoError(t, corpus.SaveContextTensors(a.Path(a.ContextDir), v, corpus.BuildContextTensors(v, testRecipes)))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0.5}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	cfg.Semantic = config.SemanticConfig{
		Enabled: true,
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		Timeout: 5 * time.Second,
	}
}

func TestLoadEngineIgnoresStaleScoreCache(t *testing.T) {
	cfg := writeArtifacts(t, true)
	writeSignalArtifacts(t, cfg)

	size := vocab.Build(testRecipes).Size() - 1
	stale := corpus.NewMatrix(size, size)
	require.NoError(t, corpus.SaveMatrix(cfg.Artifacts.Path(cfg.Artifacts.ScoreCache), stale))

	e, err := LoadEngine(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.Scorer)
	assert.False(t, e.Scorer.HasCache())
	assert.False(t, e.Status.ScoreCache)
	for _, name := range []string{"W", "S", "D", "P"} {
		assert.True(t, e.Status.Signals[name], name)
	}
	assert.True(t, e.Ready())

	var warned bool
	for _, w := range e.Status.Warnings {
		if strings.HasPrefix(w, "score cache unavailable") {
			warned = true
		}
	}
	assert.True(t, warned, e.Status.Warnings)

	cs, err := e.Pipeline.Candidates(context.Background(), "cheddar_cheese", 3)
	require.NoError(t, err)
	assert.Len(t, cs, 3)
}
