// Package memory is the process-local expense list used by the ephemeral profile.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/padmasuda/expensetracker/internal/models"
	"github.com/padmasuda/expensetracker/internal/storage"
)

// Seed is the data an ephemeral server starts with.
var Seed = []models.Expense{
	{ID: models.IntID(1), Description: "Spent for Bus", Amount: 100},
	{ID: models.IntID(2), Description: "Spent for Shopping", Amount: 1000},
}

// Option configures a Store.
type Option func(*Store)

// WithMonotonicIDs assigns ids from a counter that never goes back, instead
// of len(items)+1, which hands out an id again after a deletion.
func WithMonotonicIDs() Option {
	return func(s *Store) { s.monotonic = true }
}

// Store keeps expenses in insertion order.
type Store struct {
	mu        sync.Mutex
	items     []models.Expense
	monotonic bool
	lastID    int64
}

var _ storage.ExpenseStore = (*Store)(nil)

// New returns a store holding a copy of seed.
func New(seed []models.Expense, opts ...Option) *Store {
	s := &Store{items: cloneAll(seed)}
	for _, e := range s.items {
		if n, ok := e.ID.Int(); ok && n > s.lastID {
			s.lastID = n
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListExpenses returns every record in insertion order. Owner filtering
// applies only to records that carry an owner.
func (s *Store) ListExpenses(_ context.Context, owner string) ([]models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Expense, 0, len(s.items))
	for _, e := range s.items {
		if owner == "" || e.Owner == owner {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

// CreateExpense appends e and assigns its id.
func (s *Store) CreateExpense(_ context.Context, e *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.monotonic {
		s.lastID++
		e.ID = models.IntID(s.lastID)
	} else {
		e.ID = models.IntID(int64(len(s.items)) + 1)
	}
	s.items = append(s.items, clone(*e))
	return nil
}

// UpdateExpense patches the first record with a matching id.
func (s *Store) UpdateExpense(_ context.Context, id models.ID, owner string, patch models.ExpensePatch) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(id, owner)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	patch.Apply(&s.items[i])
	e := clone(s.items[i])
	return &e, nil
}

// ToggleExpense flips the completed flag of the first matching record.
func (s *Store) ToggleExpense(_ context.Context, id models.ID, owner string) (*models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(id, owner)
	if i < 0 {
		return nil, storage.ErrNotFound
	}
	s.items[i].Completed = models.Bool(!s.items[i].IsCompleted())
	e := clone(s.items[i])
	return &e, nil
}

// DeleteExpense removes every record with a matching id.
func (s *Store) DeleteExpense(_ context.Context, id models.ID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(e models.Expense) bool {
		return matches(e, id, owner)
	})
	if len(s.items) == before {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) find(id models.ID, owner string) int {
	return slices.IndexFunc(s.items, func(e models.Expense) bool {
		return matches(e, id, owner)
	})
}

func matches(e models.Expense, id models.ID, owner string) bool {
	return e.ID == id && (owner == "" || e.Owner == owner)
}

// clone copies e so callers never share the Completed pointer with the store.
func clone(e models.Expense) models.Expense {
	if e.Completed != nil {
		e.Completed = models.Bool(*e.Completed)
	}
	return e
}

func cloneAll(in []models.Expense) []models.Expense {
	out := make([]models.Expense, len(in))
	for i, e := range in {
		out[i] = clone(e)
	}
	return out
}
