package runstore

import (
	"context"
	"fmt"
)

// Backend kinds accepted by Open.
const (
	KindNone     = "none"
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindObject   = "object"
)

// Config selects and configures a backend.
type Config struct {
	Kind string
	// DSN is the SQLite path or the Postgres URL.
	DSN string
	// Object is used by KindObject.
	Object ObjectConfig
}

// Open creates the store selected by cfg.Kind. KindNone and an empty kind
// return a nil Store and no error.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Kind {
	case "", KindNone:
		return nil, nil
	case KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		s, err := NewSQLiteStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindPostgres:
		s, err := NewPostgresStore(ctx, PostgresConfig{URL: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindObject:
		s, err := NewObjectStore(ctx, cfg.Object)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown run store kind %q", cfg.Kind)
	}
}
