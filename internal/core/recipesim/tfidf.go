// Package recipesim 以向量最近鄰搜尋找出與查詢食譜最相似的語料庫食譜。
package recipesim

import (
	"math"

	"recipe-substitution/internal/core/corpus"
	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/vecmath"
)

// InstructionSeparator 食材與步驟 token 之間的分隔符號
const InstructionSeparator = "@@"

// Vectorizer 將食譜 token 轉為稠密向量
type Vectorizer interface {
	Transform(tokens []string) []float32
	Dim() int
}

// TFIDF 以詞彙表文件頻率計算的 TF-IDF 向量：原始詞頻 × log2(N/df)，再做 L2 正規化
type TFIDF struct {
	vocab *vocab.Vocabulary
	idf   []float64
}

// NewTFIDF 由詞彙表建立向量器
func NewTFIDF(v *vocab.Vocabulary) *TFIDF {
	idf := make([]float64, v.Size())
	n := float64(v.NumDocs())
	for id := range idf {
		df, _ := v.DocumentFrequency(id)
		if df > 0 && n > 0 {
			idf[id] = math.Log2(n / float64(df))
		}
	}
	return &TFIDF{vocab: v, idf: idf}
}

// Dim 向量維度（詞彙數）
func (t *TFIDF) Dim() int { return len(t.idf) }

// Transform 只取分隔符號前的食材 token，不在詞彙表的 token 略過
func (t *TFIDF) Transform(tokens []string) []float32 {
	vec := make([]float32, len(t.idf))
	for _, token := range tokens {
		if token == InstructionSeparator {
			break
		}
		id, err := t.vocab.ID(token)
		if err != nil {
			continue
		}
		vec[id] += 1
	}
	for id, tf := range vec {
		if tf != 0 {
			vec[id] = float32(float64(tf) * t.idf[id])
		}
	}
	vecmath.Normalize(vec)
	return vec
}

// TransformCorpus 將整個語料庫轉為向量集合
func TransformCorpus(v Vectorizer, c *corpus.Corpus) (*corpus.Vectors, error) {
	dim := v.Dim()
	data := make([]float32, 0, c.Len()*dim)
	for _, recipe := range c.Recipes() {
		data = append(data, v.Transform(recipe)...)
	}
	return corpus.NewVectors(c.Len(), dim, data)
}
