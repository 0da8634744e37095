// Package textclean 將自由文字的食材與步驟轉為詞彙表中的 token。
//
// 多字食材以底線連接（例如 "cheddar cheese" → cheddar_cheese），已知同義詞統一為正規名稱。
package textclean

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"recipe-substitution/internal/pkg/common"

	"golang.org/x/text/unicode/norm"
)

// Separator 多字 token 的連接字元
const Separator = "_"

var parenthesised = regexp.MustCompile(`\(.*?\)`)

// Cleaner 文字正規化器，建立後唯讀
type Cleaner struct {
	foodNames  map[string]bool
	synonyms   map[string]string
	knownWords map[string]bool
}

// New 以食材名稱與同義詞（別名 → 正規名稱）建立
func New(foodNames []string, synonyms map[string]string) *Cleaner {
	c := &Cleaner{
		foodNames:  make(map[string]bool, len(foodNames)),
		synonyms:   make(map[string]string, len(synonyms)),
		knownWords: make(map[string]bool),
	}
	for _, name := range foodNames {
		c.foodNames[name] = true
		c.addWords(name)
	}
	for alias, name := range synonyms {
		c.synonyms[alias] = name
		c.addWords(alias)
	}
	return c
}

func (c *Cleaner) addWords(name string) {
	for _, w := range strings.Split(name, Separator) {
		if w != "" {
			c.knownWords[w] = true
		}
	}
}

// Load 讀取 food_names.json（字串陣列）與 synonyms.json（物件），同義詞檔可省略
func Load(foodNamesPath, synonymsPath string) (*Cleaner, error) {
	var names []string
	if err := common.ReadJSONFile(foodNamesPath, &names); err != nil {
		return nil, fmt.Errorf("failed to load food names: %w", err)
	}
	synonyms := map[string]string{}
	if synonymsPath != "" {
		if err := common.ReadJSONFile(synonymsPath, &synonyms); err != nil {
			return nil, fmt.Errorf("failed to load synonyms: %w", err)
		}
	}
	return New(names, synonyms), nil
}

// known 名稱是否為食材名稱或同義詞
func (c *Cleaner) known(name string) bool {
	if c.foodNames[name] {
		return true
	}
	_, ok := c.synonyms[name]
	return ok
}

// canonical 取得正規名稱
func (c *Cleaner) canonical(name string) string {
	if c.foodNames[name] {
		return name
	}
	return c.synonyms[name]
}

// Normalize 將單一名稱轉為 token；無法辨識時原樣回傳
func (c *Cleaner) Normalize(raw string) string {
	name := strings.Join(c.words(raw), Separator)
	if c.known(name) {
		return c.canonical(name)
	}
	return raw
}

// FilterIngredient 只保留可辨識的食材，回傳以空白連接的 token（可能為空字串）
func (c *Cleaner) FilterIngredient(raw string) string {
	return strings.Join(c.match(c.words(raw), false), " ")
}

// FilterInstruction 步驟文字：食材名稱換成 token，其餘字詞保留
func (c *Cleaner) FilterInstruction(raw string) string {
	return strings.Join(c.match(c.words(raw), true), " ")
}

// words 小寫、去除標點、括號內容與數字後切字，並做簡單的詞形還原
func (c *Cleaner) words(raw string) []string {
	s := strings.ToLower(norm.NFKC.String(raw))
	s = strings.NewReplacer("-", " ", ",", " ", "/", " ").Replace(s)
	s = strings.Map(func(r rune) rune {
		if r == '(' || r == ')' {
			return r
		}
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return r
	}, s)
	s = parenthesised.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, s)

	fields := strings.Fields(s)
	for i, w := range fields {
		fields[i] = c.lemma(w)
	}
	return fields
}

// lemma 複數形還原為已知字詞
func (c *Cleaner) lemma(w string) string {
	if c.knownWords[w] {
		return w
	}
	candidates := []string{}
	if strings.HasSuffix(w, "ies") {
		candidates = append(candidates, strings.TrimSuffix(w, "ies")+"y")
	}
	if strings.HasSuffix(w, "es") {
		candidates = append(candidates, strings.TrimSuffix(w, "es"))
	}
	if strings.HasSuffix(w, "s") {
		candidates = append(candidates, strings.TrimSuffix(w, "s"))
	}
	for _, cand := range candidates {
		if c.knownWords[cand] {
			return cand
		}
	}
	return w
}

// match 由左至右優先比對三字、兩字（含倒序）名稱，再比對單字，比對到的字不會再被拆開使用
func (c *Cleaner) match(words []string, keepUnknown bool) []string {
	var out []string
	for i := 0; i < len(words); {
		if i+2 < len(words) {
			if name := strings.Join(words[i:i+3], Separator); c.known(name) {
				out = append(out, c.canonical(name))
				i += 3
				continue
			}
		}
		if i+1 < len(words) {
			if name := words[i] + Separator + words[i+1]; c.known(name) {
				out = append(out, c.canonical(name))
				i += 2
				continue
			}
			if name := words[i+1] + Separator + words[i]; c.known(name) {
				out = append(out, c.canonical(name))
				i += 2
				continue
			}
		}
		if c.known(words[i]) {
			out = append(out, c.canonical(words[i]))
		} else if keepUnknown {
			out = append(out, words[i])
		}
		i++
	}
	return out
}
