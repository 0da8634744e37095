package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Engine.SimilarRecipes)
	assert.Equal(t, 0.6, cfg.Engine.ImportanceThreshold)
	assert.Equal(t, GHGPolicyNoIncrease, cfg.Engine.GHGPolicy)
	assert.Equal(t, SearchStrategyClustered, cfg.Engine.SearchStrategy)
	assert.Equal(t, 30*time.Second, cfg.KnowledgeBase.Timeout)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "dictionary.txt", cfg.Artifacts.Dictionary)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"port":       func(c *Config) { c.Server.Port = 0 },
		"threshold":  func(c *Config) { c.Engine.ImportanceThreshold = 1.5 },
		"policy":     func(c *Config) { c.Engine.GHGPolicy = "whatever" },
		"share":      func(c *Config) { c.Engine.GHGPolicy = GHGPolicySignificantShare; c.Engine.SignificantShare = 0 },
		"strategy":   func(c *Config) { c.Engine.SearchStrategy = "brute" },
		"workers":    func(c *Config) { c.Engine.Workers = 0 },
		"candidates": func(c *Config) { c.Engine.CandidatesPerIngredient = 0 },
		"cache":      func(c *Config) { c.Cache.MaxSize = 0 },
		"kb url":     func(c *Config) { c.KnowledgeBase.BaseURL = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, Validate(cfg), name)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ARTIFACTS_DIR", "/data/artifacts")
	t.Setenv("APP_ENGINE_SIMILAR_RECIPES", "25")
	t.Setenv("APP_ENGINE_GHG_POLICY", GHGPolicySignificantShare)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/data/artifacts", cfg.Artifacts.Dir)
	assert.Equal(t, 25, cfg.Engine.SimilarRecipes)
	assert.Equal(t, GHGPolicySignificantShare, cfg.Engine.GHGPolicy)
	assert.Equal(t, "sk-test", cfg.Semantic.APIKey)
}

func TestArtifactsPath(t *testing.T) {
	a := ArtifactsConfig{Dir: "build"}
	assert.Equal(t, filepath.Join("build", "x.npy"), a.Path("x.npy"))
	assert.Equal(t, "/abs/x.npy", a.Path("/abs/x.npy"))
	assert.Equal(t, "", a.Path(""))
}
