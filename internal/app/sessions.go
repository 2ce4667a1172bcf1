package app

import (
	"context"
	"fmt"
	"io"

	"github.com/wifisim/wifisim-go/pkg/config"
	"github.com/wifisim/wifisim-go/pkg/sessionstore"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSessionStore picks the session ledger backend: Redis when an address
// is configured, SQLite when a database file is, memory otherwise. It
// returns a name for the banner and a closer for shutdown.
func OpenSessionStore(ctx context.Context, cfg *config.Config) (sessionstore.Store, string, io.Closer, error) {
	switch {
	case cfg.Redis.Addr != "":
		store := sessionstore.NewRedisStore(sessionstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, "", nil, err
		}
		return store, "redis " + cfg.Redis.Addr, store, nil

	case cfg.SessionDB != "":
		store, err := sessionstore.NewSQLiteStore(cfg.SessionDB)
		if err != nil {
			return nil, "", nil, fmt.Errorf("open session db: %w", err)
		}
		return store, "sqlite " + cfg.SessionDB, store, nil

	default:
		return sessionstore.NewMemoryStore(), "memory", nopCloser{}, nil
	}
}
