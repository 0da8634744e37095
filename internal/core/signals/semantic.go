package signals

import (
	"context"
	"strings"

	"recipe-substitution/internal/core/semantic"
)

// Semantic S 訊號：委派給外部語意模型，多字 token 以空白取代底線
type Semantic struct {
	model semantic.Model
}

// NewSemantic 建立 S 訊號
func NewSemantic(model semantic.Model) *Semantic {
	return &Semantic{model: model}
}

// Name 訊號名稱
func (s *Semantic) Name() string { return NameSemantic }

// Similarity 外部模型的錯誤原樣回傳（通常為 ErrExternalService）
func (s *Semantic) Similarity(ctx context.Context, a, b string) (float64, error) {
	if s.model == nil {
		return 0, unavailable(NameSemantic, "no semantic model loaded")
	}
	return s.model.Similarity(ctx, naturalForm(a), naturalForm(b))
}

func naturalForm(token string) string {
	return strings.ReplaceAll(token, "_", " ")
}
