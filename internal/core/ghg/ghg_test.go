package ghg

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKBServer(t *testing.T, values map[string]float64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/foodon_ids", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"ingredient": "cheddar cheese", "alternate_names": []string{"cheddar"}},
			{"ingredient": "tofu", "alternate_names": []string{"bean curd"}},
			{"ingredient": "water", "alternate_names": []string{}},
		})
	})
	mux.HandleFunc("/ingredient", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("ingredient")
		v, ok := values[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"ghg": v})
	})
	return httptest.NewServer(mux)
}

func underscore(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

func TestBuildTablePrecedence(t *testing.T) {
	table := BuildTable([]Entry{
		{Name: "Cheddar Cheese", AlternateNames: []string{"cheese", "tofu"}, GHG: 12},
		{Name: "tofu", AlternateNames: []string{"cheese"}, GHG: 3},
		{Name: "", AlternateNames: []string{"ignored"}, GHG: 99},
	}, underscore)

	v, ok := table.Lookup("cheddar_cheese")
	assert.True(t, ok)
	assert.Equal(t, 12.0, v)

	// 正規名稱覆蓋先前的別名
	v, _ = table.Lookup("tofu")
	assert.Equal(t, 3.0, v)

	// 別名不覆蓋已有的值
	v, _ = table.Lookup("cheese")
	assert.Equal(t, 12.0, v)

	_, ok = table.Lookup("ignored")
	assert.False(t, ok)

	_, ok = table.Lookup("saffron")
	assert.False(t, ok)
	assert.Equal(t, []string{"cheddar_cheese", "cheese", "tofu"}, table.Tokens())
}

func TestClientLookupAll(t *testing.T) {
	srv := newKBServer(t, map[string]float64{"cheddar cheese": 12, "tofu": 3, "water": 0})
	defer srv.Close()

	c := NewClient(config.KnowledgeBaseConfig{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, Concurrency: 2})
	entries, err := c.LookupAll(context.Background(), func(name string) bool { return name != "water" })
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Name: "cheddar cheese", AlternateNames: []string{"cheddar"}, GHG: 12}, entries[0])
	assert.Equal(t, "tofu", entries[1].Name)
	assert.Equal(t, 3.0, entries[1].GHG)
}

func TestClientLookupAllFailure(t *testing.T) {
	srv := newKBServer(t, map[string]float64{"cheddar cheese": 12})
	defer srv.Close()

	c := NewClient(config.KnowledgeBaseConfig{BaseURL: srv.URL, Concurrency: 4})
	_, err := c.LookupAll(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExternalService)
}

type fakeSource struct {
	entries []Entry
	err     error
}

func (f fakeSource) LookupAll(_ context.Context, include func(string) bool) ([]Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Entry
	for _, e := range f.entries {
		if include == nil || include(e.Name) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestLoaderRefreshesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghg_snapshot.json")
	store := NewFileSnapshotStore(path)
	loader := NewLoader(fakeSource{entries: []Entry{{Name: "Tofu", GHG: 3}}}, underscore, store)

	table, source, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "knowledge_base", source)
	v, ok := table.Lookup("tofu")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"tofu": 3}, snap.Values)
}

func TestLoaderFallsBackToSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ghg_snapshot.json")
	store := NewFileSnapshotStore(path)
	require.NoError(t, store.Save(context.Background(), &Snapshot{Values: map[string]float64{"cheddar_cheese": 12}}))

	failing := fakeSource{err: errors.Join(errors.New("down"), common.ErrExternalService)}
	loader := NewLoader(failing, underscore, NewFileSnapshotStore(filepath.Join(t.TempDir(), "missing.json")), store)

	table, source, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.Name(), source)
	v, ok := table.Lookup("cheddar_cheese")
	assert.True(t, ok)
	assert.Equal(t, 12.0, v)
}

func TestLoaderFailsWithoutSnapshot(t *testing.T) {
	failing := fakeSource{err: common.ErrExternalService}
	loader := NewLoader(failing, underscore, NewFileSnapshotStore(filepath.Join(t.TempDir(), "missing.json")))
	_, _, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, common.ErrExternalService)

	loader = NewLoader(nil, underscore)
	_, _, err = loader.Load(context.Background())
	assert.ErrorIs(t, err, common.ErrArtifactMissing)
}

func TestRedisSnapshotStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := NewRedisSnapshotStore(ctx, config.RedisConfig{Addr: addr, SnapshotKey: "ghg:snapshot:test"})
	require.NoError(t, err)
	defer store.Close()

	want := &Snapshot{Source: "test", Values: map[string]float64{"tofu": 3}}
	require.NoError(t, store.Save(ctx, want))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Values, got.Values)
}
