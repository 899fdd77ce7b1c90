package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ID identifies an expense. Backends that assign integer ids (the in-memory
// list, SQLite) produce decimal strings; Mongo produces ObjectID hex.
type ID string

// IntID converts a sequential integer id.
func IntID(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// Int returns the numeric value of the id, if it has one.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// MarshalJSON renders integer ids as JSON numbers and anything else as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts either form.
func (id *ID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = IntID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*id = ID(s)
	return nil
}

// Expense represents a financial expense record.
type Expense struct {
	ID          ID        `json:"id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Completed   *bool     `json:"completed,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}

// IsCompleted reports the completion flag, treating unset as false.
func (e Expense) IsCompleted() bool {
	return e.Completed != nil && *e.Completed
}

// ExpensePatch carries the fields of a partial update. Nil means "not sent".
type ExpensePatch struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
	Completed   *bool    `json:"completed"`
}

// Apply overwrites the fields present in the patch. An empty description
// keeps the current one.
func (p ExpensePatch) Apply(e *Expense) {
	if p.Description != nil && *p.Description != "" {
		e.Description = *p.Description
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Completed != nil {
		c := *p.Completed
		e.Completed = &c
	}
}

// User represents a user account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session represents a user session.
type Session struct {
	Token        string    `json:"token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
