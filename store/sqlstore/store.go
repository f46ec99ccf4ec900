package sqlstore

import (
	"fmt"

	"github.com/uptrace/bun"
)

// Store implements core.Store directly against bun rather than through
// go-repository-bun's Repository[T], because every operation it exposes
// (LoadCurrentGraph, Ingest, …) is set-oriented across the whole graph
// rather than single-row CRUD — the same reason outbox_store.go and
// sync_cursor_store.go in the teacher drop to raw SQL and RunInTx instead
// of the per-row repository pattern.
type Store struct {
	db *bun.DB
}

// New wraps an already-open bun.DB.
func New(db *bun.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &Store{db: db}, nil
}

// NewFromPersistence accepts anything exposing DB() *bun.DB — in
// particular a *persistence.Client — mirroring the teacher's
// resolveBunDB/NewRepositoryFactoryFromPersistence pair.
func NewFromPersistence(client any) (*Store, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return New(db)
}

// DB exposes the underlying bun.DB, used by callers that also need to run
// migrations against the same connection.
func (s *Store) DB() *bun.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
