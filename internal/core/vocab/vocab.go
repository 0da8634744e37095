// Package vocab 提供食材詞彙表：token 與整數 id 的雙向對應以及文件頻率。
package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"recipe-substitution/internal/pkg/common"
)

// Vocabulary 詞彙表，建立後唯讀
type Vocabulary struct {
	tokens  []string
	ids     map[string]int
	dfs     []int
	numDocs int
}

// Build 掃描語料庫一次建立詞彙表，id 依首次出現的順序分配
func Build(recipes [][]string) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int)}
	for _, recipe := range recipes {
		seen := make(map[int]bool, len(recipe))
		for _, token := range recipe {
			id, ok := v.ids[token]
			if !ok {
				id = len(v.tokens)
				v.ids[token] = id
				v.tokens = append(v.tokens, token)
				v.dfs = append(v.dfs, 0)
			}
			if !seen[id] {
				seen[id] = true
				v.dfs[id]++
			}
		}
		v.numDocs++
	}
	return v
}

// Load 讀取 gensim 文字格式的詞彙表檔案
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read 解析 gensim 文字格式：第一行為文件數，其後每行 "id\ttoken\tdf"
func Read(r io.Reader) (*Vocabulary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty dictionary")
	}
	numDocs, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, fmt.Errorf("invalid document count: %w", err)
	}

	type entry struct {
		id    int
		token string
		df    int
	}
	var entries []entry
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		parts := strings.Split(text, "\t")
		if len(parts) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 tab-separated fields, got %d", line, len(parts))
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid id: %w", line, err)
		}
		df, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid document frequency: %w", line, err)
		}
		entries = append(entries, entry{id: id, token: parts[1], df: df})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	v := &Vocabulary{
		tokens:  make([]string, len(entries)),
		ids:     make(map[string]int, len(entries)),
		dfs:     make([]int, len(entries)),
		numDocs: numDocs,
	}
	for i, e := range entries {
		if e.id != i {
			return nil, fmt.Errorf("ids are not dense: expected %d, got %d", i, e.id)
		}
		if _, dup := v.ids[e.token]; dup {
			return nil, fmt.Errorf("duplicate token %q", e.token)
		}
		v.tokens[i] = e.token
		v.ids[e.token] = i
		v.dfs[i] = e.df
	}
	return v, nil
}

// Write 以 gensim 文字格式輸出，依 token 排序
func (v *Vocabulary) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", v.numDocs)
	order := make([]int, len(v.tokens))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return v.tokens[order[i]] < v.tokens[order[j]] })
	for _, id := range order {
		fmt.Fprintf(bw, "%d\t%s\t%d\n", id, v.tokens[id], v.dfs[id])
	}
	return bw.Flush()
}

// Tokens 回傳所有 token（依 id 排序）
func (v *Vocabulary) Tokens() []string {
	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// ID 取得 token 的 id
func (v *Vocabulary) ID(token string) (int, error) {
	id, ok := v.ids[token]
	if !ok {
		return 0, fmt.Errorf("%q: %w", token, common.ErrUnknownToken)
	}
	return id, nil
}

// Contains 檢查 token 是否存在
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.ids[token]
	return ok
}

// Token 取得 id 對應的 token
func (v *Vocabulary) Token(id int) (string, error) {
	if id < 0 || id >= len(v.tokens) {
		return "", fmt.Errorf("id %d: %w", id, common.ErrUnknownToken)
	}
	return v.tokens[id], nil
}

// DocumentFrequency 包含該 token 的語料庫食譜數
func (v *Vocabulary) DocumentFrequency(id int) (int, error) {
	if id < 0 || id >= len(v.dfs) {
		return 0, fmt.Errorf("id %d: %w", id, common.ErrUnknownToken)
	}
	return v.dfs[id], nil
}

// Size 詞彙數量
func (v *Vocabulary) Size() int { return len(v.tokens) }

// NumDocs 建立詞彙表時的語料庫食譜數
func (v *Vocabulary) NumDocs() int { return v.numDocs }
