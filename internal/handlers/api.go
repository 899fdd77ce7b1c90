package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/padmasuda/expensetracker/internal/logging"
	"github.com/padmasuda/expensetracker/internal/models"
	"github.com/padmasuda/expensetracker/internal/storage"
)

// DefaultDescription is used when an expense is created without one.
const DefaultDescription = "No description provided"

// Welcome answers GET / on the ephemeral profile.
func (h *Handlers) Welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Welcome to the Expense Tracker API!")
}

// decodeFields reads a JSON body into its raw top-level fields. Non-JSON,
// empty and non-object bodies yield no fields; only malformed JSON fails.
func decodeFields(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if !isJSON(r) {
		return fields, nil
	}
	var body json.RawMessage
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body)
	if errors.Is(err, io.EOF) {
		return fields, nil
	}
	if err != nil {
		return nil, err
	}
	if json.Unmarshal(body, &fields) != nil {
		return map[string]json.RawMessage{}, nil
	}
	return fields, nil
}

// field decodes fields[key] as T. A missing or null value, or one of another
// JSON type, is treated as absent.
func field[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// ListAll returns every expense.
func (h *Handlers) ListAll(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.expenses.ListExpenses(r.Context(), "")
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField(logging.FieldOperation, "list").Error("ListExpenses error")
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// CreateWithDefaults adds an expense, filling in a missing description and amount.
func (h *Handlers) CreateWithDefaults(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	log := logging.FromContext(r.Context()).WithField(logging.FieldOperation, "create")

	e := &models.Expense{Description: DefaultDescription}
	if desc := field[string](fields, "description"); desc != nil && *desc != "" {
		e.Description = *desc
	}
	if amount := field[float64](fields, "amount"); amount != nil {
		e.Amount = *amount
	}

	if err := h.expenses.CreateExpense(r.Context(), e); err != nil {
		log.WithError(err).Error("CreateExpense error")
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	log.WithField(logging.FieldExpenseID, e.ID).WithField("description", e.Description).Info("Added new expense")
	writeJSON(w, http.StatusCreated, e)
}

// Update overwrites the fields present in the body.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(w, r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	patch := models.ExpensePatch{
		Description: field[string](fields, "description"),
		Amount:      field[float64](fields, "amount"),
		Completed:   field[bool](fields, "completed"),
	}
	id := leadingIntID(r)

	e, err := h.expenses.UpdateExpense(r.Context(), id, "", patch)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Expense not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).
			WithField(logging.FieldOperation, "update").
			WithField(logging.FieldExpenseID, id).
			Error("UpdateExpense error")
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Remove deletes every expense with the id. Deleting a missing id is not an error.
func (h *Handlers) Remove(w http.ResponseWriter, r *http.Request) {
	id := leadingIntID(r)
	if err := h.expenses.DeleteExpense(r.Context(), id, ""); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logging.FromContext(r.Context()).WithError(err).
			WithField(logging.FieldOperation, "delete").
			WithField(logging.FieldExpenseID, id).
			Error("DeleteExpense error")
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
