package signals

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"recipe-substitution/internal/pkg/vecmath"
)

// Embedding W 訊號：預訓練詞向量的餘弦相似度
type Embedding struct {
	vectors map[string][]float32
	dim     int
}

// NewEmbedding 以現有的詞向量建立訊號
func NewEmbedding(vectors map[string][]float32) (*Embedding, error) {
	dim := -1
	for token, v := range vectors {
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, fmt.Errorf("word vector %q has dimension %d, expected %d", token, len(v), dim)
		}
	}
	return &Embedding{vectors: vectors, dim: dim}, nil
}

// LoadWordVectors 讀取 word2vec 文字格式的詞向量檔
func LoadWordVectors(path string) (*Embedding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	e, err := ReadWordVectors(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return e, nil
}

// ReadWordVectors 解析 word2vec 文字格式，第一行可為 "數量 維度" 標頭
func ReadWordVectors(r io.Reader) (*Embedding, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<22)

	vectors := make(map[string][]float32)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if line == 1 && len(fields) == 2 {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				continue
			}
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: missing vector", line)
		}
		vec := make([]float32, len(fields)-1)
		for i, field := range fields[1:] {
			x, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vec[i] = float32(x)
		}
		vectors[fields[0]] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewEmbedding(vectors)
}

// Name 訊號名稱
func (e *Embedding) Name() string { return NameEmbedding }

// Contains 詞向量模型是否認得 token
func (e *Embedding) Contains(token string) bool {
	_, ok := e.vectors[token]
	return ok
}

// Similarity 餘弦相似度，範圍 [-1, 1]
func (e *Embedding) Similarity(_ context.Context, a, b string) (float64, error) {
	va, ok := e.vectors[a]
	if !ok {
		return 0, unavailable(NameEmbedding, "%q not in embedding vocabulary", a)
	}
	vb, ok := e.vectors[b]
	if !ok {
		return 0, unavailable(NameEmbedding, "%q not in embedding vocabulary", b)
	}
	sim, ok := vecmath.Cosine(va, vb)
	if !ok {
		return 0, nil
	}
	return sim, nil
}
