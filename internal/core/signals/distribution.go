package signals

import (
	"context"
	"fmt"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/vecmath"
)

// ProfileSource 共現分布向量來源
type ProfileSource interface {
	Profile(id int) ([]float64, error)
}

// MatrixProfiles 由預計算的共現分布矩陣提供向量（快速路徑）
type MatrixProfiles struct {
	m *corpus.Matrix
}

// NewMatrixProfiles 矩陣必須為 |V|x|V|
func NewMatrixProfiles(m *corpus.Matrix, v *vocab.Vocabulary) (*MatrixProfiles, error) {
	if m.Rows() != v.Size() || m.Cols() != v.Size() {
		return nil, fmt.Errorf("co-occurrence matrix is %dx%d, vocabulary has %d tokens", m.Rows(), m.Cols(), v.Size())
	}
	return &MatrixProfiles{m: m}, nil
}

// Profile 取得列向量
func (p *MatrixProfiles) Profile(id int) ([]float64, error) {
	if id < 0 || id >= p.m.Rows() {
		return nil, fmt.Errorf("profile id %d out of range", id)
	}
	return p.m.Row(id), nil
}

// CorpusProfiles 每次掃描語料庫計算向量（慢速路徑，結果與矩陣相同）
type CorpusProfiles struct {
	vocab   *vocab.Vocabulary
	recipes [][]string
}

// NewCorpusProfiles 建立慢速路徑
func NewCorpusProfiles(v *vocab.Vocabulary, c *corpus.Corpus) *CorpusProfiles {
	return &CorpusProfiles{vocab: v, recipes: c.Recipes()}
}

// Profile 掃描語料庫
func (p *CorpusProfiles) Profile(id int) ([]float64, error) {
	return corpus.Profile(p.vocab, p.recipes, id)
}

// Distribution D 訊號：共現分布向量的餘弦相似度
type Distribution struct {
	vocab    *vocab.Vocabulary
	profiles ProfileSource
}

// NewDistribution 建立 D 訊號
func NewDistribution(v *vocab.Vocabulary, profiles ProfileSource) *Distribution {
	return &Distribution{vocab: v, profiles: profiles}
}

// Name 訊號名稱
func (d *Distribution) Name() string { return NameDistribution }

// Similarity 任一向量為全零時回傳 0（沒有證據視為中性）
func (d *Distribution) Similarity(_ context.Context, a, b string) (float64, error) {
	ia, ib, err := lookupPair(NameDistribution, d.vocab, a, b)
	if err != nil {
		return 0, err
	}
	pa, err := d.profiles.Profile(ia)
	if err != nil {
		return 0, unavailable(NameDistribution, "%v", err)
	}
	pb, err := d.profiles.Profile(ib)
	if err != nil {
		return 0, unavailable(NameDistribution, "%v", err)
	}
	sim, ok := vecmath.Cosine(pa, pb)
	if !ok {
		return 0, nil
	}
	return sim, nil
}
