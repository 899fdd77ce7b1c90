package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/padmasuda/expensetracker/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB is the SQLite backend. It implements ExpenseStore, UserStore and SessionStore.
type DB struct {
	conn *sql.DB
}

var (
	_ ExpenseStore = (*DB)(nil)
	_ UserStore    = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
)

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection also keeps ":memory:" intact.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const expenseColumns = "id, description, amount, completed, owner, created_at"

func scanExpense(row interface{ Scan(...any) error }) (*models.Expense, error) {
	var (
		e         models.Expense
		id        int64
		completed sql.NullBool
	)
	if err := row.Scan(&id, &e.Description, &e.Amount, &completed, &e.Owner, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ID = models.IntID(id)
	if completed.Valid {
		e.Completed = models.Bool(completed.Bool)
	}
	return &e, nil
}

// scope appends the owner filter when owner is set.
func scope(query string, args []any, owner string) (string, []any) {
	if owner == "" {
		return query, args
	}
	return query + " AND owner = ?", append(args, owner)
}

// ListExpenses returns the owner's expenses in insertion order.
func (db *DB) ListExpenses(ctx context.Context, owner string) ([]models.Expense, error) {
	query, args := scope("SELECT "+expenseColumns+" FROM expenses WHERE 1 = 1", nil, owner)
	rows, err := db.conn.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

// CreateExpense inserts e and sets its id.
func (db *DB) CreateExpense(ctx context.Context, e *models.Expense) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var completed any
	if e.Completed != nil {
		completed = *e.Completed
	}
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses (description, amount, completed, owner, created_at) VALUES (?, ?, ?, ?, ?)",
		e.Description, e.Amount, completed, e.Owner, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	e.ID = models.IntID(id)
	return nil
}

// GetExpense retrieves a single expense by id.
func (db *DB) GetExpense(ctx context.Context, id models.ID, owner string) (*models.Expense, error) {
	n, ok := id.Int()
	if !ok {
		return nil, ErrNotFound
	}
	query, args := scope("SELECT "+expenseColumns+" FROM expenses WHERE id = ?", []any{n}, owner)
	e, err := scanExpense(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense %s: %w", id, err)
	}
	return e, nil
}

// UpdateExpense applies patch to the expense and saves it.
func (db *DB) UpdateExpense(ctx context.Context, id models.ID, owner string, patch models.ExpensePatch) (*models.Expense, error) {
	e, err := db.GetExpense(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	patch.Apply(e)

	n, _ := e.ID.Int()
	var completed any
	if e.Completed != nil {
		completed = *e.Completed
	}
	if _, err := db.conn.ExecContext(ctx,
		"UPDATE expenses SET description = ?, amount = ?, completed = ? WHERE id = ?",
		e.Description, e.Amount, completed, n,
	); err != nil {
		return nil, fmt.Errorf("update expense %s: %w", id, err)
	}
	return e, nil
}

// ToggleExpense flips the completed flag. An unset flag becomes true.
func (db *DB) ToggleExpense(ctx context.Context, id models.ID, owner string) (*models.Expense, error) {
	n, ok := id.Int()
	if !ok {
		return nil, ErrNotFound
	}
	query, args := scope("UPDATE expenses SET completed = NOT COALESCE(completed, 0) WHERE id = ?", []any{n}, owner)
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("toggle expense %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return nil, fmt.Errorf("toggle expense %s: %w", id, err)
	} else if affected == 0 {
		return nil, ErrNotFound
	}
	return db.GetExpense(ctx, id, owner)
}

// DeleteExpense removes the expense.
func (db *DB) DeleteExpense(ctx context.Context, id models.ID, owner string) error {
	n, ok := id.Int()
	if !ok {
		return ErrNotFound
	}
	query, args := scope("DELETE FROM expenses WHERE id = ?", []any{n}, owner)
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateUser creates a new user with the given username and password hash.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, time.Now().UTC(),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return nil, fmt.Errorf("user %s: %w", username, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(ctx, strconv.FormatInt(id, 10))
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u  models.User
		id int64
	)
	if err := row.Scan(&id, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	return &u, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	return scanUser(db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		n,
	))
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(db.conn.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	))
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) error {
	n, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("create session: invalid user id %q", userID)
	}
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, n, expiresAt.UTC(), time.Now().UTC(),
	)
	return err
}

// ValidateSession checks that a session token is live and returns session details.
func (db *DB) ValidateSession(ctx context.Context, token string) (*SessionInfo, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now().UTC())

	var (
		u                       models.User
		id                      int64
		lastActivity, expiresAt time.Time
	)
	if err := row.Scan(&id, &u.Username, &u.PasswordHash, &u.CreatedAt, &lastActivity, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	return &SessionInfo{
		User:         &u,
		LastActivity: lastActivity,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().UTC(), expiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
