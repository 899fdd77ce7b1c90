package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/padmasuda/expensetracker/internal/logging"
	"github.com/padmasuda/expensetracker/internal/models"
	"github.com/padmasuda/expensetracker/internal/session"
	"github.com/padmasuda/expensetracker/internal/storage"
)

// ListOwned returns the logged-in user's expenses.
func (h *Handlers) ListOwned(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.expenses.ListExpenses(r.Context(), session.UserID(r.Context()))
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField(logging.FieldOperation, "list").Error("ListExpenses error")
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// ownedDescription reads the description from a JSON body or a form.
func ownedDescription(w http.ResponseWriter, r *http.Request) (string, error) {
	if isJSON(r) {
		var body struct {
			Description string `json:"description"`
		}
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return body.Description, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return "", err
	}
	return r.FormValue("description"), nil
}

// CreateOwned adds an expense owned by the logged-in user.
func (h *Handlers) CreateOwned(w http.ResponseWriter, r *http.Request) {
	desc, err := ownedDescription(w, r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	log := logging.FromContext(r.Context()).WithField(logging.FieldOperation, "create")

	e := &models.Expense{
		Description: strings.TrimSpace(desc),
		Owner:       session.UserID(r.Context()),
		Completed:   models.Bool(false),
	}
	if err := h.expenses.CreateExpense(r.Context(), e); err != nil {
		log.WithError(err).Error("CreateExpense error")
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}
	log.WithField(logging.FieldExpenseID, e.ID).Info("Added new expense")
	writeJSON(w, http.StatusCreated, e)
}

// Toggle flips the completed flag.
func (h *Handlers) Toggle(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	e, err := h.expenses.ToggleExpense(r.Context(), id, h.mutationOwner(r))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Expense not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).
			WithField(logging.FieldOperation, "toggle").
			WithField(logging.FieldExpenseID, id).
			Error("ToggleExpense error")
		http.Error(w, "Error toggling expense", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteOwned removes an expense and confirms with a message.
func (h *Handlers) DeleteOwned(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	err := h.expenses.DeleteExpense(r.Context(), id, h.mutationOwner(r))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Expense not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).
			WithField(logging.FieldOperation, "delete").
			WithField(logging.FieldExpenseID, id).
			Error("DeleteExpense error")
		http.Error(w, "Error deleting expense", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Deleted successfully"})
}
