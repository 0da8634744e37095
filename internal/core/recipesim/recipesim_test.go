package recipesim

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/vecmath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCorpus() *corpus.Corpus {
	return corpus.New([][]string{
		{"flour", "butter", "sugar", "egg"},
		{"flour", "butter", "cheddar_cheese", "milk"},
		{"flour", "egg", "milk"},
		{"rice", "soy_sauce", "tofu"},
		{"rice", "chicken", "soy_sauce"},
		{"pasta", "cheddar_cheese", "milk", "butter"},
		{"pasta", "tomato", "basil"},
		{},
		{"flour", "butter", "cheddar_cheese", "milk", "egg"},
	})
}

func newClustered(t *testing.T) (*ClusteredKNN, *TFIDF, *corpus.Vectors) {
	t.Helper()
	c := sampleCorpus()
	v := vocab.Build(c.Recipes())
	tfidf := NewTFIDF(v)
	vectors, err := TransformCorpus(tfidf, c)
	require.NoError(t, err)
	s, err := NewClusteredKNN(tfidf, vectors, 3)
	require.NoError(t, err)
	return s, tfidf, vectors
}

func TestTFIDFTransform(t *testing.T) {
	c := sampleCorpus()
	v := vocab.Build(c.Recipes())
	tfidf := NewTFIDF(v)

	vec := tfidf.Transform([]string{"rice", "tofu", "unknown", InstructionSeparator, "flour"})
	assert.InDelta(t, 1.0, vecmath.Norm(vec), 1e-6)

	flour, _ := v.ID("flour")
	rice, _ := v.ID("rice")
	tofu, _ := v.ID("tofu")
	assert.Equal(t, float32(0), vec[flour])

	// tofu 比 rice 稀有，權重較高
	assert.Greater(t, vec[tofu], vec[rice])
	wantRatio := math.Log2(9.0/1) / math.Log2(9.0/2)
	assert.InDelta(t, wantRatio, float64(vec[tofu]/vec[rice]), 1e-5)

	assert.True(t, vecmath.IsZero(tfidf.Transform([]string{"unknown"})))
}

func TestSplitRanges(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 10}}, splitRanges(10, 3))
	assert.Equal(t, [][2]int{{0, 10}}, splitRanges(10, 1))
	assert.Equal(t, [][2]int{{0, 2}}, splitRanges(2, 5))
}

func TestClusteredKNNProperties(t *testing.T) {
	s, _, vectors := newClustered(t)
	n := vectors.Len()
	query := []string{"flour", "butter", "cheddar_cheese", "milk"}

	for k := 1; k <= n+2; k++ {
		for clusters := 1; clusters <= 5; clusters++ {
			got, err := s.MostSimilar(context.Background(), query, k, clusters)
			require.NoError(t, err)

			want := k
			if want > n {
				want = n
			}
			require.Len(t, got, want, "k=%d clusters=%d", k, clusters)
			for i, nb := range got {
				assert.GreaterOrEqual(t, nb.Index, 0)
				assert.Less(t, nb.Index, n)
				if i > 0 {
					assert.LessOrEqual(t, got[i-1].Distance, nb.Distance)
				}
			}

			again, err := s.MostSimilar(context.Background(), query, k, clusters)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		}
	}
}

func TestClusteredKNNSingleClusterIsExact(t *testing.T) {
	s, tfidf, vectors := newClustered(t)
	query := []string{"flour", "butter", "cheddar_cheese", "milk"}

	got, err := s.MostSimilar(context.Background(), query, 3, 1)
	require.NoError(t, err)

	q := tfidf.Transform(query)
	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < vectors.Len(); i++ {
		row, err := vectors.Row(i, nil)
		require.NoError(t, err)
		if d := vecmath.CosineDistance(q, row); d < bestDist {
			best, bestDist = i, d
		}
	}
	assert.Equal(t, best, got[0].Index)
	assert.Equal(t, 1, got[0].Index)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-6)
}

func TestClusteredKNNEmpty(t *testing.T) {
	s, _, _ := newClustered(t)
	got, err := s.MostSimilar(context.Background(), []string{"flour"}, 0, 3)
	require.NoError(t, err)
	assert.Empty(t, got)

	v := vocab.Build(nil)
	empty, err := corpus.NewVectors(0, 0, nil)
	require.NoError(t, err)
	es, err := NewClusteredKNN(NewTFIDF(v), empty, 1)
	require.NoError(t, err)
	got, err = es.MostSimilar(context.Background(), []string{"flour"}, 3, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClusteredKNNWithMappedVectors(t *testing.T) {
	s, tfidf, vectors := newClustered(t)
	path := filepath.Join(t.TempDir(), "tfidf_vectors.f32")
	require.NoError(t, corpus.SaveBinaryVectors(path, vectors))

	mapped, err := corpus.LoadBinaryVectors(path)
	require.NoError(t, err)
	defer mapped.Close()

	ms, err := NewClusteredKNN(tfidf, mapped, 2)
	require.NoError(t, err)

	query := []string{"rice", "tofu"}
	want, err := s.MostSimilar(context.Background(), query, 4, 2)
	require.NoError(t, err)
	got, err := ms.MostSimilar(context.Background(), query, 4, 2)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Index, got[i].Index)
		assert.InDelta(t, want[i].Distance, got[i].Distance, 1e-6)
	}
}

func TestNewClusteredKNNDimensionMismatch(t *testing.T) {
	v := vocab.Build([][]string{{"a", "b"}})
	vectors, err := corpus.NewVectors(1, 3, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = NewClusteredKNN(NewTFIDF(v), vectors, 1)
	assert.Error(t, err)
}

func TestHNSWSearchFindsExactMatch(t *testing.T) {
	_, tfidf, vectors := newClustered(t)
	s, err := NewHNSWSearch(tfidf, vectors)
	require.NoError(t, err)

	got, err := s.MostSimilar(context.Background(), []string{"rice", "soy_sauce", "tofu"}, 2, 0)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 2)
	assert.Equal(t, 3, got[0].Index)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-6)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
}
