package ghg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recipe-substitution/internal/pkg/common"

	"go.uber.org/zap"
)

// Source 知識庫抓取介面
type Source interface {
	LookupAll(ctx context.Context, include func(name string) bool) ([]Entry, error)
}

// Loader 在引擎啟動時建立 GHG 表：優先從知識庫抓取並更新快照，失敗時依序改用快照
type Loader struct {
	source    Source
	stores    []SnapshotStore
	normalize func(string) string
	now       func() time.Time
}

// NewLoader source 可為 nil（停用知識庫，只用快照）；stores 依優先順序排列
func NewLoader(source Source, normalize func(string) string, stores ...SnapshotStore) *Loader {
	return &Loader{source: source, stores: stores, normalize: normalize, now: time.Now}
}

// Load 取得 GHG 表，同時回傳資料來源
func (l *Loader) Load(ctx context.Context) (*Table, string, error) {
	var fetchErr error
	if l.source != nil {
		table, err := l.fetch(ctx)
		if err == nil {
			l.refresh(ctx, table)
			return table, "knowledge_base", nil
		}
		fetchErr = err
		common.LogWarn("GHG knowledge base unavailable, falling back to snapshot", zap.Error(err))
	}

	for _, store := range l.stores {
		snap, err := store.Load(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoSnapshot) {
				common.LogWarn("Failed to load GHG snapshot", zap.String("store", store.Name()), zap.Error(err))
			}
			continue
		}
		common.LogInfo("GHG table loaded from snapshot",
			zap.String("store", store.Name()),
			zap.Time("fetched_at", snap.FetchedAt),
			zap.Int("ingredients", len(snap.Values)),
		)
		return TableFromSnapshot(snap), store.Name(), nil
	}

	if fetchErr != nil {
		return nil, "", fmt.Errorf("no ghg snapshot available after knowledge base failure: %w", fetchErr)
	}
	return nil, "", fmt.Errorf("knowledge base disabled and no ghg snapshot: %w", common.ErrArtifactMissing)
}

func (l *Loader) fetch(ctx context.Context) (*Table, error) {
	var include func(string) bool
	if l.normalize != nil {
		include = func(name string) bool { return l.normalize(name) != "" }
	}
	entries, err := l.source.LookupAll(ctx, include)
	if err != nil {
		return nil, err
	}
	return BuildTable(entries, l.normalize), nil
}

// refresh 更新所有快照，失敗只記錄警告
func (l *Loader) refresh(ctx context.Context, table *Table) {
	snap := table.Snapshot("knowledge_base", l.now())
	for _, store := range l.stores {
		if err := store.Save(ctx, snap); err != nil {
			common.LogWarn("Failed to save GHG snapshot", zap.String("store", store.Name()), zap.Error(err))
		}
	}
}
