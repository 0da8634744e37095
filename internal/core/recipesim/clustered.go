package recipesim

import (
	"context"
	"fmt"
	"sort"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/pkg/vecmath"

	"golang.org/x/sync/errgroup"
)

// Neighbor 搜尋結果：語料庫食譜索引與餘弦距離
type Neighbor struct {
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
}

// Search 食譜相似度搜尋，結果依距離遞增、長度不超過 k
type Search interface {
	MostSimilar(ctx context.Context, tokens []string, k, nClusters int) ([]Neighbor, error)
}

// sortNeighbors 依 (距離, 索引) 遞增排序
func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].Index < ns[j].Index
	})
}

// ClusteredKNN 將語料庫切成連續的索引區段，各區段獨立做 k 近鄰後合併
type ClusteredKNN struct {
	vectorizer Vectorizer
	vectors    *corpus.Vectors
	workers    int
}

// NewClusteredKNN 建立搜尋器，workers 為同時搜尋的區段數上限
func NewClusteredKNN(vectorizer Vectorizer, vectors *corpus.Vectors, workers int) (*ClusteredKNN, error) {
	if vectorizer.Dim() != vectors.Dim() && vectors.Len() > 0 {
		return nil, fmt.Errorf("vectorizer dimension %d does not match corpus vectors dimension %d", vectorizer.Dim(), vectors.Dim())
	}
	if workers <= 0 {
		workers = 1
	}
	return &ClusteredKNN{vectorizer: vectorizer, vectors: vectors, workers: workers}, nil
}

// splitRanges 將 [0, length) 切成 parts 段，最後一段包含餘數
func splitRanges(length, parts int) [][2]int {
	if parts < 1 {
		parts = 1
	}
	step := length / parts
	if step == 0 {
		return [][2]int{{0, length}}
	}
	ranges := make([][2]int, 0, parts)
	start := 0
	for i := 0; i < parts-1; i++ {
		ranges = append(ranges, [2]int{start, start + step})
		start += step
	}
	return append(ranges, [2]int{start, length})
}

// MostSimilar 回傳 min(k, N) 筆結果。區段數取 min(nClusters, N/k)，確保每段至少 k 筆
func (s *ClusteredKNN) MostSimilar(ctx context.Context, tokens []string, k, nClusters int) ([]Neighbor, error) {
	n := s.vectors.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	parts := nClusters
	if parts > n/k {
		parts = n / k
	}
	if parts < 1 {
		parts = 1
	}

	query := s.vectorizer.Transform(tokens)
	ranges := splitRanges(n, parts)
	partial := make([][]Neighbor, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			ns, err := s.searchRange(gctx, query, r[0], r[1], k)
			if err != nil {
				return err
			}
			partial[i] = ns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Neighbor, 0, len(ranges)*k)
	for _, ns := range partial {
		merged = append(merged, ns...)
	}
	sortNeighbors(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// searchRange 在 [start, end) 中暴力搜尋前 k 個
func (s *ClusteredKNN) searchRange(ctx context.Context, query []float32, start, end, k int) ([]Neighbor, error) {
	ns := make([]Neighbor, 0, end-start)
	var buf []float32
	for i := start; i < end; i++ {
		if (i-start)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := s.vectors.Row(i, buf)
		if err != nil {
			return nil, err
		}
		buf = row
		ns = append(ns, Neighbor{Index: i, Distance: vecmath.CosineDistance(query, row)})
	}
	sortNeighbors(ns)
	if len(ns) > k {
		ns = ns[:k]
	}
	return ns, nil
}
