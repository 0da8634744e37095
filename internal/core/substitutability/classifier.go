// Package substitutability 依相似食譜群集內的文件頻率，區分結構性（重要）與可替代的食材。
package substitutability

import "sort"

// Result 分類結果，兩組 token 皆依字母排序
type Result struct {
	Important     []string `json:"important"`
	Substitutable []string `json:"substitutable"`

	important     map[string]bool
	substitutable map[string]bool
}

// IsImportant 是否為重要食材
func (r Result) IsImportant(token string) bool { return r.important[token] }

// IsSubstitutable 是否為可替代食材；未出現在群集中的 token 兩者皆否
func (r Result) IsSubstitutable(token string) bool { return r.substitutable[token] }

// Classify 計算群集內含有各食材的食譜比例，比例大於 threshold 為重要，其餘出現過的為可替代
func Classify(cluster [][]string, threshold float64) Result {
	res := Result{
		Important:     []string{},
		Substitutable: []string{},
		important:     make(map[string]bool),
		substitutable: make(map[string]bool),
	}
	if len(cluster) == 0 {
		return res
	}

	df := make(map[string]int)
	for _, recipe := range cluster {
		seen := make(map[string]bool, len(recipe))
		for _, token := range recipe {
			if seen[token] {
				continue
			}
			seen[token] = true
			df[token]++
		}
	}

	total := float64(len(cluster))
	for token, count := range df {
		if float64(count)/total > threshold {
			res.important[token] = true
			res.Important = append(res.Important, token)
		} else {
			res.substitutable[token] = true
			res.Substitutable = append(res.Substitutable, token)
		}
	}
	sort.Strings(res.Important)
	sort.Strings(res.Substitutable)
	return res
}
