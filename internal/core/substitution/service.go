package substitution

import (
	"context"
	"errors"
	"strconv"

	"recipe-substitution/internal/core/cache"
	"recipe-substitution/internal/core/diish"
	"recipe-substitution/internal/pkg/common"

	"go.uber.org/zap"
)

// Service 替代服務，在引擎外加上結果快取
type Service struct {
	engine       *Engine
	cacheManager *cache.Manager
}

// NewService 創建替代服務，cacheManager 可為 nil
func NewService(engine *Engine, cacheManager *cache.Manager) *Service {
	return &Service{
		engine:       engine,
		cacheManager: cacheManager,
	}
}

// Ready 引擎是否能產生替代建議
func (s *Service) Ready() bool {
	return s.engine.Ready()
}

// Status 引擎載入狀態與快取統計
func (s *Service) Status() map[string]interface{} {
	return map[string]interface{}{
		"ready":  s.engine.Ready(),
		"engine": s.engine.Status,
		"cache":  s.cacheManager.GetStats(),
	}
}

// Substitute 產生替代建議，相同查詢直接回傳快取結果
func (s *Service) Substitute(ctx context.Context, q Query) (*Result, error) {
	key, err := s.cacheKey("substitution", q)
	if err == nil {
		if cached, err := s.cacheManager.Get(key); err == nil {
			if r, ok := cached.(*Result); ok {
				return r, nil
			}
		}
	}

	result, err := s.engine.Pipeline.Substitute(ctx, q)
	if err != nil {
		return nil, err
	}
	common.LogInfo("Substitution completed",
		zap.Int("ingredients", len(q.Ingredients)),
		zap.Int("substitutions", len(result.Candidates)),
		zap.Float64("total_ghg", result.TotalGHG),
	)

	if key != "" {
		if err := s.cacheManager.Set(key, result); err != nil {
			common.LogWarn("Failed to cache substitution result", zap.Error(err))
		}
	}
	return result, nil
}

// TopCandidates 單一食材的前 k 個 DIISH 候選
func (s *Service) TopCandidates(ctx context.Context, ingredient string, k int) ([]diish.Candidate, error) {
	key := cache.Key("candidates", ingredient, strconv.Itoa(k))
	if cached, err := s.cacheManager.Get(key); err == nil {
		if cs, ok := cached.([]diish.Candidate); ok {
			return cs, nil
		}
	}

	cs, err := s.engine.Pipeline.Candidates(ctx, ingredient, k)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []diish.Candidate{}
	}
	if err := s.cacheManager.Set(key, cs); err != nil {
		common.LogWarn("Failed to cache candidates", zap.Error(err))
	}
	return cs, nil
}

// SimilarRecipes 與查詢最相似的語料庫食譜
func (s *Service) SimilarRecipes(ctx context.Context, q Query, k, nClusters int) ([]SimilarRecipe, error) {
	return s.engine.Pipeline.SimilarRecipes(ctx, q, k, nClusters)
}

// cacheKey 以查詢的 JSON 表示產生快取鍵
func (s *Service) cacheKey(kind string, q Query) (string, error) {
	if s.cacheManager == nil {
		return "", errors.New("cache disabled")
	}
	data, err := common.ToJSON(q)
	if err != nil {
		return "", err
	}
	return cache.Key(kind, data), nil
}
