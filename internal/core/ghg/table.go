// Package ghg 食材溫室氣體（GHG）數值：知識庫抓取、快照儲存與查詢表。
package ghg

import (
	"sort"
	"time"
)

// Entry 知識庫中的一筆食材
type Entry struct {
	Name           string   `json:"ingredient"`
	AlternateNames []string `json:"alternate_names"`
	GHG            float64  `json:"ghg"`
}

// Snapshot 某個時間點的完整 GHG 表
type Snapshot struct {
	FetchedAt time.Time          `json:"fetched_at"`
	Source    string             `json:"source"`
	Values    map[string]float64 `json:"values"`
}

// Table token 到 GHG 值的對應，建立後唯讀。不存在的 token 表示沒有資料，不是 0
type Table struct {
	values map[string]float64
}

// NewTable 以現有的對應建立查詢表
func NewTable(values map[string]float64) *Table {
	copied := make(map[string]float64, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Table{values: copied}
}

// BuildTable 由知識庫項目建立查詢表：正規名稱優先於別名，別名不覆蓋已有的值。
// normalize 回傳空字串的名稱會被略過
func BuildTable(entries []Entry, normalize func(string) string) *Table {
	if normalize == nil {
		normalize = func(s string) string { return s }
	}
	values := make(map[string]float64)
	canonical := make(map[string]bool)
	for _, e := range entries {
		name := normalize(e.Name)
		if name == "" {
			continue
		}
		values[name] = e.GHG
		canonical[name] = true
		for _, alt := range e.AlternateNames {
			altName := normalize(alt)
			if altName == "" || canonical[altName] {
				continue
			}
			if _, ok := values[altName]; ok {
				continue
			}
			values[altName] = e.GHG
		}
	}
	return &Table{values: values}
}

// Lookup 取得 GHG 值，沒有資料時 known 為 false
func (t *Table) Lookup(token string) (value float64, known bool) {
	value, known = t.values[token]
	return value, known
}

// Len 有資料的 token 數
func (t *Table) Len() int { return len(t.values) }

// Tokens 所有有資料的 token，依字母排序
func (t *Table) Tokens() []string {
	out := make([]string, 0, len(t.values))
	for k := range t.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot 轉為可儲存的快照
func (t *Table) Snapshot(source string, at time.Time) *Snapshot {
	return &Snapshot{FetchedAt: at, Source: source, Values: NewTable(t.values).values}
}

// TableFromSnapshot 由快照還原查詢表
func TableFromSnapshot(s *Snapshot) *Table {
	return NewTable(s.Values)
}
