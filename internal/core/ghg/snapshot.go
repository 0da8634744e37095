package ghg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"recipe-substitution/internal/infrastructure/config"
	"recipe-substitution/internal/pkg/common"

	"github.com/go-redis/redis/v8"
)

// ErrNoSnapshot 儲存位置沒有快照
var ErrNoSnapshot = errors.New("no ghg snapshot")

// SnapshotStore 快照儲存位置
type SnapshotStore interface {
	Name() string
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
}

// FileSnapshotStore 本機 JSON 檔案
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore 建立檔案快照
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Name 儲存位置名稱
func (s *FileSnapshotStore) Name() string { return "file:" + s.path }

// Load 讀取快照
func (s *FileSnapshotStore) Load(_ context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := common.ReadJSONFile(s.path, &snap); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read ghg snapshot %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save 寫入快照
func (s *FileSnapshotStore) Save(_ context.Context, snap *Snapshot) error {
	return common.WriteJSONFile(s.path, snap)
}

// RedisSnapshotStore Redis 快照
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSnapshotStore 創建 Redis 快照儲存並測試連接
func NewRedisSnapshotStore(ctx context.Context, cfg config.RedisConfig) (*RedisSnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 測試連接
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSnapshotStore{client: client, key: cfg.SnapshotKey, ttl: cfg.SnapshotTTL}, nil
}

// Name 儲存位置名稱
func (s *RedisSnapshotStore) Name() string { return "redis:" + s.key }

// Load 讀取快照
func (s *RedisSnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to get ghg snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ghg snapshot: %w", err)
	}
	return &snap, nil
}

// Save 寫入快照，ttl 為 0 時不過期
func (s *RedisSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal ghg snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set ghg snapshot: %w", err)
	}
	return nil
}

// Close 關閉連線
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
