package handlers

import (
	"encoding/json"
	"html/template"
	"io/fs"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/padmasuda/expensetracker/internal/logging"
	"github.com/padmasuda/expensetracker/internal/models"
	"github.com/padmasuda/expensetracker/internal/session"
	"github.com/padmasuda/expensetracker/internal/storage"
)

// maxBodyBytes caps JSON and form bodies.
const maxBodyBytes = 1 << 20

// Deps are the collaborators of the HTTP handlers. Users and Sessions are
// only needed by the persistent profile.
type Deps struct {
	Expenses  storage.ExpenseStore
	Users     storage.UserStore
	Sessions  *session.Manager
	Templates fs.FS
	// ScopeMutationsToOwner restricts toggle and delete to the session owner.
	ScopeMutationsToOwner bool
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	expenses       storage.ExpenseStore
	users          storage.UserStore
	sessions       *session.Manager
	templates      fs.FS
	scopeMutations bool
	validate       *validator.Validate
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		expenses:       d.Expenses,
		users:          d.Users,
		sessions:       d.Sessions,
		templates:      d.Templates,
		scopeMutations: d.ScopeMutationsToOwner,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Sessions exposes the session manager for route wiring.
func (h *Handlers) Sessions() *session.Manager {
	return h.sessions
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.ParseFS(h.templates, "base.html", viewName)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField("view", viewName).Error("Template error")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField("view", viewName).Error("Template execution error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// pathID reads the {id} path value. Exact decimals are canonicalised ("03"
// and "3" are the same record); anything else is kept verbatim for backends
// with non-numeric ids.
func pathID(r *http.Request) models.ID {
	raw := strings.TrimSpace(r.PathValue("id"))
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return models.IntID(n)
	}
	return models.ID(raw)
}

// leadingIntID reads the {id} path value of the sequential-id API: the leading
// optionally signed digit run is the id, so "2abc" is record 2. Without one
// the raw value is kept and matches nothing.
func leadingIntID(r *http.Request) models.ID {
	raw := strings.TrimSpace(r.PathValue("id"))
	if n, ok := parseLeadingInt(raw); ok {
		return models.IntID(n)
	}
	return models.ID(raw)
}

func parseLeadingInt(s string) (int64, bool) {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	return n, err == nil
}

// mutationOwner returns the owner filter for toggle and delete.
func (h *Handlers) mutationOwner(r *http.Request) string {
	if !h.scopeMutations {
		return ""
	}
	return session.UserID(r.Context())
}
