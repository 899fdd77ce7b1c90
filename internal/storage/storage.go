package storage

import (
	"context"
	"errors"
	"time"

	"github.com/padmasuda/expensetracker/internal/models"
)

var (
	// ErrNotFound is returned when an id, username or session token does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique field (username) is already taken.
	ErrDuplicate = errors.New("already exists")
)

// ExpenseStore is the collection of expense records.
//
// An empty owner means "unscoped": List returns every record and the
// mutating methods match on id alone.
type ExpenseStore interface {
	ListExpenses(ctx context.Context, owner string) ([]models.Expense, error)
	// CreateExpense persists e and fills in the id the store assigned.
	CreateExpense(ctx context.Context, e *models.Expense) error
	UpdateExpense(ctx context.Context, id models.ID, owner string, patch models.ExpensePatch) (*models.Expense, error)
	ToggleExpense(ctx context.Context, id models.ID, owner string) (*models.Expense, error)
	// DeleteExpense removes every record matching id and returns ErrNotFound
	// when nothing was removed.
	DeleteExpense(ctx context.Context, id models.ID, owner string) error
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserCount(ctx context.Context) (int, error)
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// SessionStore persists server-side sessions keyed by token.
type SessionStore interface {
	CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error
	// ValidateSession returns ErrNotFound for unknown or expired tokens.
	ValidateSession(ctx context.Context, token string) (*SessionInfo, error)
	RenewSession(ctx context.Context, token string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}
