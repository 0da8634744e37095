package recipesim

import (
	"context"
	"fmt"
	"math/rand"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/pkg/vecmath"

	"github.com/coder/hnsw"
)

// hnswSeed 固定亂數種子，讓圖的層級分配可重現
const hnswSeed = 42

// HNSWSearch 以 HNSW 圖做近似最近鄰搜尋，不使用區段切分
type HNSWSearch struct {
	vectorizer Vectorizer
	graph      *hnsw.Graph[int]
}

// NewHNSWSearch 將所有語料庫向量加入圖中
func NewHNSWSearch(vectorizer Vectorizer, vectors *corpus.Vectors) (*HNSWSearch, error) {
	if vectorizer.Dim() != vectors.Dim() && vectors.Len() > 0 {
		return nil, fmt.Errorf("vectorizer dimension %d does not match corpus vectors dimension %d", vectorizer.Dim(), vectors.Dim())
	}

	graph := hnsw.NewGraph[int]()
	graph.M = 16
	graph.Ml = 0.25
	graph.EfSearch = 64
	graph.Rng = rand.New(rand.NewSource(hnswSeed))
	graph.Distance = cosineDistance

	for i := 0; i < vectors.Len(); i++ {
		row, err := vectors.Row(i, nil)
		if err != nil {
			return nil, err
		}
		vec := make([]float32, len(row))
		copy(vec, row)
		graph.Add(hnsw.MakeNode(i, vec))
	}
	return &HNSWSearch{vectorizer: vectorizer, graph: graph}, nil
}

// 零向量的距離為 1
func cosineDistance(a, b []float32) float32 {
	return float32(vecmath.CosineDistance(a, b))
}

// MostSimilar nClusters 不適用於 HNSW，會被忽略
func (s *HNSWSearch) MostSimilar(_ context.Context, tokens []string, k, _ int) ([]Neighbor, error) {
	n := s.graph.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	query := s.vectorizer.Transform(tokens)
	nodes := s.graph.Search(query, k)

	out := make([]Neighbor, len(nodes))
	for i, node := range nodes {
		out[i] = Neighbor{Index: node.Key, Distance: vecmath.CosineDistance(query, node.Value)}
	}
	sortNeighbors(out)
	return out, nil
}
