package signals

import (
	"context"
	"fmt"
	"math"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/core/vocab"
)

// sparseVector 以攤平配對索引為鍵的稀疏向量
type sparseVector struct {
	values map[int]float64
	norm   float64
}

func (s sparseVector) cosine(o sparseVector) (float64, bool) {
	if s.norm == 0 || o.norm == 0 {
		return 0, false
	}
	small, large := s.values, o.values
	if len(small) > len(large) {
		small, large = large, small
	}
	var dot float64
	for k, x := range small {
		if y, ok := large[k]; ok {
			dot += x * y
		}
	}
	sim := dot / (s.norm * o.norm)
	if sim > 1 {
		sim = 1
	}
	return sim, true
}

// PMI P 訊號：以 PPMI 轉換後的配對情境向量計算二階相似度
type PMI struct {
	vocab   *vocab.Vocabulary
	vectors []sparseVector
}

// NewPMI 由全域配對矩陣 fc 與每個食材的情境張量 fic 預先計算所有 PPMI 向量
func NewPMI(v *vocab.Vocabulary, fc *corpus.Matrix, tensors []*corpus.ContextTensor) (*PMI, error) {
	n := v.Size()
	if fc.Rows() != n || fc.Cols() != n {
		return nil, fmt.Errorf("pair count matrix is %dx%d, vocabulary has %d tokens", fc.Rows(), fc.Cols(), n)
	}
	if len(tensors) != n {
		return nil, fmt.Errorf("got %d context tensors, vocabulary has %d tokens", len(tensors), n)
	}

	total := fc.Sum()
	p := &PMI{vocab: v, vectors: make([]sparseVector, n)}
	for id, t := range tensors {
		if t == nil || t.Size() != n {
			return nil, fmt.Errorf("context tensor for id %d has wrong size", id)
		}
		df, err := v.DocumentFrequency(id)
		if err != nil {
			return nil, err
		}
		p.vectors[id] = ppmiVector(t, float64(df), fc, float64(n), total)
	}
	return p, nil
}

// ppmiVector PPMI(x) = max(0, log10(fic*|V|*Σfc / (df*fc)) * sqrt(max(df, fc)))，分母為 0 時為 0
func ppmiVector(t *corpus.ContextTensor, df float64, fc *corpus.Matrix, size, total float64) sparseVector {
	vec := sparseVector{values: make(map[int]float64)}
	var sq float64
	t.Each(func(a, b int, fic float64) {
		fcx := fc.At(a, b)
		denom := df * fcx
		if denom == 0 {
			return
		}
		ratio := fic * size * total / denom
		if ratio <= 0 {
			return
		}
		val := math.Log10(ratio) * math.Sqrt(math.Max(df, fcx))
		if val <= 0 {
			return
		}
		vec.values[a*int(size)+b] = val
		sq += val * val
	})
	vec.norm = math.Sqrt(sq)
	return vec
}

// Name 訊號名稱
func (p *PMI) Name() string { return NamePMI }

// Similarity 任一 PPMI 向量為全零時回傳 0
func (p *PMI) Similarity(_ context.Context, a, b string) (float64, error) {
	ia, ib, err := lookupPair(NamePMI, p.vocab, a, b)
	if err != nil {
		return 0, err
	}
	sim, ok := p.vectors[ia].cosine(p.vectors[ib])
	if !ok {
		return 0, nil
	}
	return sim, nil
}
