package config

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/store"
	"github.com/redis/go-redis/v9"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// OpenStore returns the configured store and a function releasing it.
// It returns a nil store when no kind is configured.
func (s *Store) OpenStore(ctx context.Context) (store.MessageStoreManager, func() error, error) {
	noop := func() error { return nil }

	switch s.Kind {
	case "":
		return nil, noop, nil
	case StoreMemory:
		return store.NewMemoryStore(s.MaxMessages), noop, nil
	case StoreRedis:
		opts, err := redis.ParseURL(s.RedisURL)
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "invalid redis_url")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.WithMessagef(err, "failed to connect to redis")
		}
		return store.NewRedisStore(client, s.Prefix, s.MaxMessages), client.Close, nil
	case StoreSQLite:
		if s.SQLitePath == "" {
			return nil, nil, errors.New("sqlite_path is required")
		}
		db, err := store.NewSQLiteStore(s.SQLitePath, s.MaxMessages)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, errors.Errorf("unsupported store kind: %q", s.Kind)
}
