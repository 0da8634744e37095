package diish

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ScoreCache |V|x|V| 的預計算分數，NaN 表示該配對分數未定義（與 0 分區分）
type ScoreCache struct {
	m *corpus.Matrix
}

// NewScoreCache 包裝方陣
func NewScoreCache(m *corpus.Matrix) (*ScoreCache, error) {
	if m.Rows() != m.Cols() {
		return nil, fmt.Errorf("score cache must be square, got %dx%d", m.Rows(), m.Cols())
	}
	return &ScoreCache{m: m}, nil
}

// LoadScoreCache 讀取文字格式的分數快取
func LoadScoreCache(path string) (*ScoreCache, error) {
	m, err := corpus.LoadMatrix(path)
	if err != nil {
		return nil, err
	}
	return NewScoreCache(m)
}

// Save 寫入文字格式
func (c *ScoreCache) Save(path string) error {
	return corpus.SaveMatrix(path, c.m)
}

// Size 詞彙數
func (c *ScoreCache) Size() int { return c.m.Rows() }

// Row 第 i 列分數（呼叫端不可修改）
func (c *ScoreCache) Row(i int) []float64 { return c.m.Row(i) }

// Lookup 取得配對分數，未定義時 ok 為 false
func (c *ScoreCache) Lookup(i, j int) (score float64, ok bool) {
	s := c.m.At(i, j)
	if math.IsNaN(s) {
		return 0, false
	}
	return s, true
}

// Precompute 以四個訊號計算完整分數矩陣，每列為一個工作，最多 workers 個並行
func Precompute(ctx context.Context, m *Model, workers int) (*ScoreCache, error) {
	if !m.signals.Complete() {
		return nil, fmt.Errorf("signals loaded: %v: %w", m.signals.Available(), common.ErrNoSignals)
	}
	if workers <= 0 {
		workers = 1
	}
	n := m.vocab.Size()
	out := corpus.NewMatrix(n, n)

	start := time.Now()
	var done int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			row, err := m.scoreRow(gctx, i, 1)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			copy(out.Row(i), row)
			if d := atomic.AddInt64(&done, 1); d%100 == 0 || int(d) == n {
				common.LogInfo("DIISH precompute progress",
					zap.Int64("rows_done", d),
					zap.Int("rows_total", n),
					zap.Duration("elapsed", time.Since(start)),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ScoreCache{m: out}, nil
}
