// Package backend opens the store implementation selected by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/padmasuda/expensetracker/internal/auth"
	"github.com/padmasuda/expensetracker/internal/config"
	"github.com/padmasuda/expensetracker/internal/storage"
	"github.com/padmasuda/expensetracker/internal/storage/memory"
	"github.com/padmasuda/expensetracker/internal/storage/mongostore"
)

// Backend bundles the stores of one implementation. Users and Sessions are
// nil for the memory backend.
type Backend struct {
	Expenses storage.ExpenseStore
	Users    storage.UserStore
	Sessions storage.SessionStore
	Close    func(ctx context.Context) error
}

// Open connects to the backend named by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Backend {
	case config.Memory:
		var opts []memory.Option
		if cfg.MemoryMonotonicIDs {
			opts = append(opts, memory.WithMonotonicIDs())
		}
		return &Backend{
			Expenses: memory.New(memory.Seed, opts...),
			Close:    func(context.Context) error { return nil },
		}, nil

	case config.SQLite:
		db, err := storage.NewDB(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
		}
		return &Backend{
			Expenses: db,
			Users:    db,
			Sessions: db,
			Close:    func(context.Context) error { return db.Close() },
		}, nil

	case config.Mongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Expenses: store,
			Users:    store,
			Sessions: store,
			Close:    store.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// EnsureAdmin creates the bootstrap user when the store has no users yet.
// It reports whether a user was created.
func EnsureAdmin(ctx context.Context, users storage.UserStore, username, password string) (bool, error) {
	if users == nil || username == "" || password == "" {
		return false, nil
	}
	count, err := users.UserCount(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := users.CreateUser(ctx, username, hash); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("create admin user: %w", err)
	}
	logrus.WithField("username", username).Info("Created admin user")
	return true, nil
}
