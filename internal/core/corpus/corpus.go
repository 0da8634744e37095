// Package corpus 載入語料庫與預計算檔案，並提供共現統計的建構函式。
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Corpus 語料庫食譜（每筆為食材 token 序列），載入後唯讀
type Corpus struct {
	recipes [][]string
}

// New 以現有的食譜建立語料庫
func New(recipes [][]string) *Corpus {
	return &Corpus{recipes: recipes}
}

// ReadIngredients 解析每行一筆、以空白分隔 token 的食譜檔
func ReadIngredients(r io.Reader) (*Corpus, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<22)

	var recipes [][]string
	for scanner.Scan() {
		recipes = append(recipes, strings.Fields(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &Corpus{recipes: recipes}, nil
}

// LoadIngredients 讀取食譜檔
func LoadIngredients(path string) (*Corpus, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	c, err := ReadIngredients(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c, nil
}

// Len 食譜數
func (c *Corpus) Len() int { return len(c.recipes) }

// Recipe 取得第 i 筆食譜（呼叫端不可修改）
func (c *Corpus) Recipe(i int) ([]string, error) {
	if i < 0 || i >= len(c.recipes) {
		return nil, fmt.Errorf("recipe index %d out of range [0, %d)", i, len(c.recipes))
	}
	return c.recipes[i], nil
}

// Recipes 回傳全部食譜（呼叫端不可修改）
func (c *Corpus) Recipes() [][]string { return c.recipes }
