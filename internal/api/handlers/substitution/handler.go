package substitution

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"recipe-substitution/internal/api/middleware"
	"recipe-substitution/internal/core/diish"
	core "recipe-substitution/internal/core/substitution"
	"recipe-substitution/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxK 單次查詢回傳數量上限
const maxK = 100

// Service 替代服務
type Service interface {
	Substitute(ctx context.Context, q core.Query) (*core.Result, error)
	TopCandidates(ctx context.Context, ingredient string, k int) ([]diish.Candidate, error)
	SimilarRecipes(ctx context.Context, q core.Query, k, nClusters int) ([]core.SimilarRecipe, error)
}

// IngredientRequest 查詢中的一個食材
type IngredientRequest struct {
	Name       string `json:"ingredient_name" binding:"required"`
	HighCarbon *bool  `json:"is_high_carbon,omitempty"`
}

// SubstitutionRequest 替代建議請求
type SubstitutionRequest struct {
	Ingredients  []IngredientRequest `json:"ingredients" binding:"required,dive"`
	Instructions []string            `json:"instructions,omitempty"`
	TotalGHG     *float64            `json:"total_ghg,omitempty" binding:"omitempty,gte=0"`
	Verbose      bool                `json:"verbose,omitempty"`
}

// SimilarRecipesRequest 相似食譜請求
type SimilarRecipesRequest struct {
	Ingredients  []string `json:"ingredients" binding:"required"`
	Instructions []string `json:"instructions,omitempty"`
	K            int      `json:"k,omitempty" binding:"omitempty,gte=1,lte=100"`
	NClusters    int      `json:"n_clusters,omitempty" binding:"omitempty,gte=1"`
}

// CandidatesResponse 單一食材候選
type CandidatesResponse struct {
	Ingredient string            `json:"ingredient"`
	Candidates []diish.Candidate `json:"candidates"`
}

// SimilarRecipesResponse 相似食譜
type SimilarRecipesResponse struct {
	Recipes []core.SimilarRecipe `json:"recipes"`
}

// Handler 替代相關 API
type Handler struct {
	service Service
}

// NewHandler 創建處理器
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// query 將請求轉為查詢
func (r SubstitutionRequest) query() core.Query {
	q := core.Query{
		Instructions: r.Instructions,
		TotalGHG:     r.TotalGHG,
		Verbose:      r.Verbose,
	}
	for _, ing := range r.Ingredients {
		q.Ingredients = append(q.Ingredients, core.Ingredient{Name: ing.Name, HighCarbon: ing.HighCarbon})
	}
	return q
}

// HandleSubstitution 對食譜產生降低 GHG 的替代建議
func (h *Handler) HandleSubstitution(c *gin.Context) {
	requestID := common.EnsureRequestID(requestid.Get(c))

	var req SubstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogWarn("請求格式無效", zap.Error(err), zap.String("request_id", requestID))
		respondError(c, common.NewValidationError("invalid request: "+err.Error()))
		return
	}

	common.LogInfo("開始處理替代請求",
		zap.String("request_id", requestID),
		zap.Int("ingredients", len(req.Ingredients)),
		zap.Bool("verbose", req.Verbose),
	)

	result, err := h.service.Substitute(c.Request.Context(), req.query())
	if err != nil {
		common.LogError("替代失敗", zap.Error(err), zap.String("request_id", requestID))
		respondError(c, err)
		return
	}
	c.Set(middleware.KeyResultCount, len(result.Candidates))
	c.JSON(http.StatusOK, result)
}

// HandleCandidates 單一食材的 DIISH 候選
func (h *Handler) HandleCandidates(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	k, err := parseK(c.Query("k"))
	if err != nil {
		respondError(c, err)
		return
	}

	candidates, err := h.service.TopCandidates(c.Request.Context(), token, k)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(middleware.KeyResultCount, len(candidates))
	c.JSON(http.StatusOK, CandidatesResponse{Ingredient: token, Candidates: candidates})
}

// HandleSimilarRecipes 與查詢最相似的語料庫食譜
func (h *Handler) HandleSimilarRecipes(c *gin.Context) {
	var req SimilarRecipesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("invalid request: "+err.Error()))
		return
	}

	q := core.Query{Instructions: req.Instructions}
	for _, name := range req.Ingredients {
		q.Ingredients = append(q.Ingredients, core.Ingredient{Name: name})
	}
	recipes, err := h.service.SimilarRecipes(c.Request.Context(), q, req.K, req.NClusters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(middleware.KeyResultCount, len(recipes))
	c.JSON(http.StatusOK, SimilarRecipesResponse{Recipes: recipes})
}

// parseK 空字串表示使用預設值
func parseK(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 1 || k > maxK {
		return 0, common.NewValidationError("k must be an integer between 1 and " + strconv.Itoa(maxK))
	}
	return k, nil
}

// respondError 以領域錯誤對應的狀態碼回應
func respondError(c *gin.Context, err error) {
	ce := common.ToCustomError(err)
	resp := common.ErrorResponse{Code: ce.Code, Message: ce.Message}
	if gin.Mode() != gin.ReleaseMode && ce.Err != nil {
		resp.Details = ce.Err.Error()
	}
	_ = c.Error(err)
	c.Set(middleware.KeyErrorCode, ce.Code)
	c.AbortWithStatusJSON(ce.Status, resp)
}
