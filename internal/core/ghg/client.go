package ghg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Client GHG 知識庫客戶端
type Client struct {
	client      *resty.Client
	concurrency int
}

// NewClient 創建知識庫客戶端
func NewClient(cfg config.KnowledgeBaseConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{client: client, concurrency: concurrency}
}

// foodID /foodon_ids 回傳的項目
type foodID struct {
	Ingredient     string   `json:"ingredient"`
	AlternateNames []string `json:"alternate_names"`
}

// LookupAll 先取得所有食材名稱，再逐一查詢 GHG 值。include 回傳 false 的名稱不查詢（nil 表示全部）。
// 結果順序與知識庫清單相同
func (c *Client) LookupAll(ctx context.Context, include func(name string) bool) ([]Entry, error) {
	start := time.Now()
	ids, err := c.foodIDs(ctx)
	if err != nil {
		common.LogExternalCall("ghg_kb", time.Since(start), err)
		return nil, err
	}

	var wanted []foodID
	for _, id := range ids {
		if include == nil || include(id.Ingredient) {
			wanted = append(wanted, id)
		}
	}

	entries := make([]Entry, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range wanted {
		i, id := i, id
		g.Go(func() error {
			value, err := c.lookup(gctx, id.Ingredient)
			if err != nil {
				return err
			}
			entries[i] = Entry{Name: id.Ingredient, AlternateNames: id.AlternateNames, GHG: value}
			return nil
		})
	}
	err = g.Wait()
	common.LogExternalCall("ghg_kb", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	common.LogInfo("GHG knowledge base loaded",
		zap.Int("ingredients", len(ids)),
		zap.Int("fetched", len(entries)),
	)
	return entries, nil
}

func (c *Client) foodIDs(ctx context.Context) ([]foodID, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/foodon_ids")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch food ids: %v: %w", err, common.ErrExternalService)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("knowledge base returned %d for food ids: %w", resp.StatusCode(), common.ErrExternalService)
	}

	var ids []foodID
	if err := json.Unmarshal(resp.Body(), &ids); err != nil {
		return nil, fmt.Errorf("failed to parse food ids: %v: %w", err, common.ErrExternalService)
	}
	return ids, nil
}

func (c *Client) lookup(ctx context.Context, name string) (float64, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("ingredient", strings.Join(strings.Fields(name), " ")).
		Get("/ingredient")
	if err != nil {
		return 0, fmt.Errorf("failed to fetch ghg for %q: %v: %w", name, err, common.ErrExternalService)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("knowledge base returned %d for %q: %w", resp.StatusCode(), name, common.ErrExternalService)
	}

	var result struct {
		GHG *float64 `json:"ghg"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return 0, fmt.Errorf("failed to parse ghg for %q: %v: %w", name, err, common.ErrExternalService)
	}
	if result.GHG == nil {
		return 0, fmt.Errorf("knowledge base returned no ghg for %q: %w", name, common.ErrExternalService)
	}
	return *result.GHG, nil
}
