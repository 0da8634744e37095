// Package signals 提供四種獨立的食材相似度訊號：W（詞向量）、S（語意）、D（共現分布）、P（PMI 二階情境）。
//
// 每個訊號在缺少背後資料或 token 不在詞彙表時回傳包裝 common.ErrSignalUnavailable 的錯誤，
// 不會以 0 代替。
package signals

import (
	"context"
	"fmt"

	"recipe-substitution/internal/core/vocab"
	"recipe-substitution/internal/pkg/common"
)

// 訊號名稱
const (
	NameEmbedding    = "W"
	NameSemantic     = "S"
	NameDistribution = "D"
	NamePMI          = "P"
)

// Provider 相似度訊號
type Provider interface {
	Name() string
	Similarity(ctx context.Context, a, b string) (float64, error)
}

func unavailable(name, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s: %w", name, fmt.Sprintf(format, args...), common.ErrSignalUnavailable)
}

// lookupPair 取得兩個 token 的詞彙 id，任一不在詞彙表時訊號不可用
func lookupPair(name string, v *vocab.Vocabulary, a, b string) (int, int, error) {
	ia, err := v.ID(a)
	if err != nil {
		return 0, 0, unavailable(name, "%v", err)
	}
	ib, err := v.ID(b)
	if err != nil {
		return 0, 0, unavailable(name, "%v", err)
	}
	return ia, ib, nil
}
