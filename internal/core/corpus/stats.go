package corpus

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/common"
)

// uniqueIDs 回傳食譜中出現在詞彙表內的不重複 id（依首次出現順序），不在詞彙表中的 token 略過
func uniqueIDs(v *vocab.Vocabulary, recipe []string) []int {
	seen := make(map[int]bool, len(recipe))
	ids := make([]int, 0, len(recipe))
	for _, token := range recipe {
		id, err := v.ID(token)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// BuildProfiles 建立共現分布矩陣：列 i 第 j 格 = 同時含 i 與 j 的食譜數 / 含 i 的食譜數
func BuildProfiles(v *vocab.Vocabulary, recipes [][]string) *Matrix {
	n := v.Size()
	m := NewMatrix(n, n)
	counts := make([]float64, n)
	for _, recipe := range recipes {
		ids := uniqueIDs(v, recipe)
		for _, i := range ids {
			counts[i]++
			for _, j := range ids {
				m.Add(i, j, 1)
			}
		}
	}
	for i := 0; i < n; i++ {
		if counts[i] == 0 {
			continue
		}
		row := m.Row(i)
		for j := range row {
			row[j] /= counts[i]
		}
	}
	return m
}

// Profile 掃描語料庫計算單一食材的共現分布向量，結果與 BuildProfiles 的對應列相同
func Profile(v *vocab.Vocabulary, recipes [][]string, id int) ([]float64, error) {
	if _, err := v.Token(id); err != nil {
		return nil, err
	}
	profile := make([]float64, v.Size())
	var count float64
	for _, recipe := range recipes {
		ids := uniqueIDs(v, recipe)
		contains := false
		for _, x := range ids {
			if x == id {
				contains = true
				break
			}
		}
		if !contains {
			continue
		}
		count++
		for _, j := range ids {
			profile[j]++
		}
	}
	if count > 0 {
		for j := range profile {
			profile[j] /= count
		}
	}
	return profile, nil
}

// BuildPairCounts 建立全域食材對共現次數矩陣 fc（對稱，無序配對累加）
func BuildPairCounts(v *vocab.Vocabulary, recipes [][]string) *Matrix {
	n := v.Size()
	m := NewMatrix(n, n)
	for _, recipe := range recipes {
		ids := uniqueIDs(v, recipe)
		for x := 0; x < len(ids); x++ {
			for y := x + 1; y < len(ids); y++ {
				m.Add(ids[x], ids[y], 1)
				m.Add(ids[y], ids[x], 1)
			}
		}
	}
	return m
}

// ContextTensor 單一食材的配對情境張量 fic，以攤平索引 a*|V|+b 稀疏儲存
type ContextTensor struct {
	size   int
	counts map[int]float64
}

// NewContextTensor 建立空的情境張量
func NewContextTensor(size int) *ContextTensor {
	return &ContextTensor{size: size, counts: make(map[int]float64)}
}

// Size 詞彙數
func (t *ContextTensor) Size() int { return t.size }

// At 取得有序配對 (a, b) 的次數
func (t *ContextTensor) At(a, b int) float64 { return t.counts[a*t.size+b] }

// Add 累加有序配對 (a, b)
func (t *ContextTensor) Add(a, b int, v float64) { t.counts[a*t.size+b] += v }

// Each 依攤平索引遞增順序走訪所有非零格
func (t *ContextTensor) Each(fn func(a, b int, v float64)) {
	keys := make([]int, 0, len(t.counts))
	for k, v := range t.counts {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	for _, k := range keys {
		fn(k/t.size, k%t.size, t.counts[k])
	}
}

// BuildContextTensors 為每個食材建立 fic：在含有該食材的食譜中，依列表順序計算有序配對 (a, b) 的次數
func BuildContextTensors(v *vocab.Vocabulary, recipes [][]string) []*ContextTensor {
	n := v.Size()
	tensors := make([]*ContextTensor, n)
	for i := range tensors {
		tensors[i] = NewContextTensor(n)
	}
	for _, recipe := range recipes {
		ids := uniqueIDs(v, recipe)
		for _, i := range ids {
			for x := 0; x < len(ids); x++ {
				for y := x + 1; y < len(ids); y++ {
					tensors[i].Add(ids[x], ids[y], 1)
				}
			}
		}
	}
	return tensors
}

// LoadContextTensors 從目錄讀取每個食材的 <token>.npy 情境張量，缺任一檔即視為整體缺失
func LoadContextTensors(dir string, v *vocab.Vocabulary) ([]*ContextTensor, error) {
	n := v.Size()
	tensors := make([]*ContextTensor, n)
	for id, token := range v.Tokens() {
		path := filepath.Join(dir, token+".npy")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("context tensor %s: %w", path, common.ErrArtifactMissing)
		}
		t, err := loadContextTensor(path, n)
		if err != nil {
			return nil, err
		}
		tensors[id] = t
	}
	return tensors, nil
}

func loadContextTensor(path string, size int) (*ContextTensor, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t := NewContextTensor(size)
	rows, cols, err := scanMatrix(rc, func(row int, values []float64) error {
		if len(values) != size {
			return fmt.Errorf("expected %d columns, got %d", size, len(values))
		}
		for col, val := range values {
			if val != 0 && !math.IsNaN(val) {
				t.counts[row*size+col] = val
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if rows != size || cols != size {
		return nil, fmt.Errorf("%s: expected %dx%d tensor, got %dx%d", path, size, size, rows, cols)
	}
	return t, nil
}

// SaveContextTensors 將每個食材的情境張量以稠密文字格式寫入 dir/<token>.npy
func SaveContextTensors(dir string, v *vocab.Vocabulary, tensors []*ContextTensor) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for id, token := range v.Tokens() {
		t := tensors[id]
		m := NewMatrix(t.size, t.size)
		t.Each(func(a, b int, val float64) { m.Set(a, b, val) })
		if err := SaveMatrix(filepath.Join(dir, token+".npy"), m); err != nil {
			return fmt.Errorf("failed to write context tensor for %q: %w", token, err)
		}
	}
	return nil
}
