package config

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/state"
)

// Open connects the configured store driver.
func (c StoreConfig) Open(ctx context.Context, opts ...state.Option) (state.Store, error) {
	switch c.Driver {
	case "sqlite":
		return state.NewSQLiteStore(c.Path, opts...)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.Redis.Addr, DB: c.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", c.Redis.Addr, err)
		}
		opts = append(opts, state.WithKeyPrefix(c.Redis.Prefix), state.WithHistoryCap(c.Redis.HistoryCap))
		return state.NewRedisStore(client, opts...), nil
	case "memory":
		return state.NewMemoryStore(opts...), nil
	}
	return nil, fmt.Errorf("invalid store driver: %q", c.Driver)
}

// OpenJournal returns the event journal for st. A SQLite store shares its
// database; other drivers use JournalPath, and an empty path disables the
// journal (nil journal, no error). The returned func releases only what
// OpenJournal opened.
func (c StoreConfig) OpenJournal(st state.Store) (*logging.Journal, func() error, error) {
	noop := func() error { return nil }
	if s, ok := st.(*state.SQLiteStore); ok {
		j, err := logging.NewJournal(s.DB())
		return j, noop, err
	}
	if c.JournalPath == "" {
		return nil, noop, nil
	}

	db, err := sql.Open("sqlite", c.JournalPath)
	if err != nil {
		return nil, noop, fmt.Errorf("open journal: %w", err)
	}
	j, err := logging.NewJournal(db)
	if err != nil {
		db.Close()
		return nil, noop, err
	}
	return j, db.Close, nil
}
