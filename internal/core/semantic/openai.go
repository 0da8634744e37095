// Package semantic 外部語意相似度模型（OpenAI 相容的 embeddings API）
package semantic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"
	"recipe-substitution/internal/pkg/vecmath"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Model 語意相似度模型，分數越高越相似
type Model interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// OpenAIModel 以文字向量的餘弦相似度作為語意相似度
type OpenAIModel struct {
	client  *openai.Client
	model   string
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string][]float32
}

// NewOpenAIModel 建立語意模型
func NewOpenAIModel(cfg config.SemanticConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("semantic api key is not set")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIModel{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		cache:   make(map[string][]float32),
	}, nil
}

// Similarity 計算兩段文字的相似度
func (m *OpenAIModel) Similarity(ctx context.Context, a, b string) (float64, error) {
	if a == b {
		return 1, nil
	}
	va, err := m.embed(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := m.embed(ctx, b)
	if err != nil {
		return 0, err
	}
	sim, ok := vecmath.Cosine(va, vb)
	if !ok {
		return 0, nil
	}
	return sim, nil
}

// embed 取得文字向量，結果會被記住
func (m *OpenAIModel) embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.RLock()
	v, ok := m.cache[text]
	m.mu.RUnlock()
	if ok {
		return v, nil
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(m.model),
		Input: []string{text},
	})
	common.LogExternalCall("semantic", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("embedding %q: %v: %w", text, err, common.ErrExternalService)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding %q: no embedding data returned: %w", text, common.ErrExternalService)
	}

	raw := resp.Data[0].Embedding
	v = make([]float32, len(raw))
	for i := range raw {
		v[i] = float32(raw[i])
	}

	m.mu.Lock()
	m.cache[text] = v
	m.mu.Unlock()

	common.LogDebug("Semantic embedding cached", zap.String("text", text), zap.Int("dim", len(v)))
	return v, nil
}
