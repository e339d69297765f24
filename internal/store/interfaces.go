package store

import (
	"context"
	"errors"

	"github.com/zeusync/behaviour/internal/core/bt"
)

var (
	ErrNotFound    = errors.New("store: definition not found")
	ErrInvalidName = errors.New("store: invalid definition name")
)

// Store persists tree definitions by name.
type Store interface {
	Load(ctx context.Context, name string) (*bt.Definition, error)
	// Save writes def under def.Name. It reports false when the stored
	// content is already identical and no write happened.
	Save(ctx context.Context, def *bt.Definition) (bool, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)

	Statistics() Statistics
}

// WatchableStore notifies about definitions changed outside this process.
type WatchableStore interface {
	Store
	// Watch blocks until ctx is done, calling fn with the name of every
	// definition written by someone else.
	Watch(ctx context.Context, fn func(name string)) error
}

type Statistics struct {
	Loads   uint64 `json:"loads"`
	Writes  uint64 `json:"writes"`
	Skipped uint64 `json:"skipped"`
	Deletes uint64 `json:"deletes"`
}
