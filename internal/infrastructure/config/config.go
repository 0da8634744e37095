package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// GHG 篩選策略
const (
	GHGPolicyNoIncrease       = "no_increase"
	GHGPolicySignificantShare = "significant_share"
)

// 食譜相似度搜尋策略
const (
	SearchStrategyClustered = "clustered"
	SearchStrategyHNSW      = "hnsw"
)

// Config 應用配置
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Artifacts     ArtifactsConfig     `mapstructure:"artifacts"`
	Engine        EngineConfig        `mapstructure:"engine"`
	KnowledgeBase KnowledgeBaseConfig `mapstructure:"knowledge_base"`
	Semantic      SemanticConfig      `mapstructure:"semantic"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	LogLevel      string              `mapstructure:"log_level"`
	LogDir        string              `mapstructure:"log_dir"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// ArtifactsConfig 語料庫預計算檔案，檔名皆相對於 Dir
type ArtifactsConfig struct {
	Dir               string `mapstructure:"dir"`
	Dictionary        string `mapstructure:"dictionary"`
	Cooccurrence      string `mapstructure:"cooccurrence"`
	PairCounts        string `mapstructure:"pair_counts"`
	ContextDir        string `mapstructure:"context_dir"`
	ScoreCache        string `mapstructure:"score_cache"`
	CorpusVectors     string `mapstructure:"corpus_vectors"`
	CorpusVectorsText string `mapstructure:"corpus_vectors_text"`
	CorpusIngredients string `mapstructure:"corpus_ingredients"`
	WordVectors       string `mapstructure:"word_vectors"`
	FoodNames         string `mapstructure:"food_names"`
	Synonyms          string `mapstructure:"synonyms"`
	GHGSnapshot       string `mapstructure:"ghg_snapshot"`
}

// Path 取得檔案的完整路徑
func (a ArtifactsConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.Dir, name)
}

// EngineConfig 替代引擎參數
type EngineConfig struct {
	SimilarRecipes          int     `mapstructure:"similar_recipes"`
	Clusters                int     `mapstructure:"clusters"`
	ImportanceThreshold     float64 `mapstructure:"importance_threshold"`
	CandidatesPerIngredient int     `mapstructure:"candidates_per_ingredient"`
	GHGPolicy               string  `mapstructure:"ghg_policy"`
	SignificantShare        float64 `mapstructure:"significant_share"`
	HighCarbonMinGHG        float64 `mapstructure:"high_carbon_min_ghg"`
	SearchStrategy          string  `mapstructure:"search_strategy"`
	Workers                 int     `mapstructure:"workers"`
}

// KnowledgeBaseConfig GHG 知識庫設定
type KnowledgeBaseConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

// SemanticConfig 語意相似度模型設定（OpenAI 相容的 embeddings API）
type SemanticConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig GHG 快照儲存
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotKey string        `mapstructure:"snapshot_key"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 為選用
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	v.BindEnv("artifacts.dir", "ARTIFACTS_DIR")
	v.BindEnv("semantic.api_key", "OPENAI_API_KEY")
	v.BindEnv("semantic.base_url", "SEMANTIC_BASE_URL")
	v.BindEnv("semantic.model", "SEMANTIC_MODEL")
	v.BindEnv("knowledge_base.base_url", "GHG_KB_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("cache.enabled", "CACHE_ENABLED")
	v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 讀取設定檔
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 驗證必要設定
	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default 回傳只含預設值的設定，供工具程式與測試使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "recipe-substitution")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// 預計算檔案
	v.SetDefault("artifacts.dir", "build")
	v.SetDefault("artifacts.dictionary", "dictionary.txt")
	v.SetDefault("artifacts.cooccurrence", "cooccurrence_matrix.npy")
	v.SetDefault("artifacts.pair_counts", "fc_matrix.npy")
	v.SetDefault("artifacts.context_dir", "fic_vectors")
	v.SetDefault("artifacts.score_cache", "DIISH_matrix.npy")
	v.SetDefault("artifacts.corpus_vectors", "tfidf_vectors.f32")
	v.SetDefault("artifacts.corpus_vectors_text", "tfidf_vectors_ingredients_only.gz")
	v.SetDefault("artifacts.corpus_ingredients", "recipes_ingredients_only.txt")
	v.SetDefault("artifacts.word_vectors", "word2vec.txt")
	v.SetDefault("artifacts.food_names", "food_names.json")
	v.SetDefault("artifacts.synonyms", "synonyms.json")
	v.SetDefault("artifacts.ghg_snapshot", "ghg_snapshot.json")

	// 引擎設定
	v.SetDefault("engine.similar_recipes", 10)
	v.SetDefault("engine.clusters", 10)
	v.SetDefault("engine.importance_threshold", 0.6)
	v.SetDefault("engine.candidates_per_ingredient", 5)
	v.SetDefault("engine.ghg_policy", GHGPolicyNoIncrease)
	v.SetDefault("engine.significant_share", 0.2)
	v.SetDefault("engine.high_carbon_min_ghg", 0.0)
	v.SetDefault("engine.search_strategy", SearchStrategyClustered)
	v.SetDefault("engine.workers", 4)

	// 知識庫設定
	v.SetDefault("knowledge_base.enabled", true)
	v.SetDefault("knowledge_base.base_url", "https://ecarekb.schlegel-online.de")
	v.SetDefault("knowledge_base.timeout", "30s")
	v.SetDefault("knowledge_base.concurrency", 8)

	// 語意模型設定
	v.SetDefault("semantic.enabled", false)
	v.SetDefault("semantic.model", "text-embedding-3-small")
	v.SetDefault("semantic.timeout", "30s")

	// Redis 設定
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.snapshot_key", "ghg:snapshot")
	v.SetDefault("redis.snapshot_ttl", "0s")

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")
}

// Validate 驗證設定
func Validate(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證引擎設定
	e := config.Engine
	if e.SimilarRecipes <= 0 {
		return fmt.Errorf("invalid engine similar_recipes: %d", e.SimilarRecipes)
	}
	if e.Clusters <= 0 {
		return fmt.Errorf("invalid engine clusters: %d", e.Clusters)
	}
	if e.CandidatesPerIngredient <= 0 {
		return fmt.Errorf("invalid engine candidates_per_ingredient: %d", e.CandidatesPerIngredient)
	}
	if e.ImportanceThreshold <= 0 || e.ImportanceThreshold > 1 {
		return fmt.Errorf("invalid engine importance_threshold: %v", e.ImportanceThreshold)
	}
	switch e.GHGPolicy {
	case GHGPolicyNoIncrease:
	case GHGPolicySignificantShare:
		if e.SignificantShare <= 0 || e.SignificantShare > 1 {
			return fmt.Errorf("invalid engine significant_share: %v", e.SignificantShare)
		}
	default:
		return fmt.Errorf("unknown engine ghg_policy: %q", e.GHGPolicy)
	}
	switch e.SearchStrategy {
	case SearchStrategyClustered, SearchStrategyHNSW:
	default:
		return fmt.Errorf("unknown engine search_strategy: %q", e.SearchStrategy)
	}
	if e.Workers <= 0 {
		return fmt.Errorf("invalid engine workers: %d", e.Workers)
	}

	// 驗證快取設定
	if config.Cache.Enabled {
		if config.Cache.MaxSize <= 0 {
			return fmt.Errorf("invalid cache max size")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
		if config.Cache.CleanupInterval <= 0 {
			return fmt.Errorf("invalid cache cleanup interval")
		}
	}

	if config.KnowledgeBase.Enabled && config.KnowledgeBase.BaseURL == "" {
		return fmt.Errorf("knowledge base url is required when enabled")
	}

	return nil
}
