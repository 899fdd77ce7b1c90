package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/padmasuda/expensetracker/internal/auth"
	"github.com/padmasuda/expensetracker/internal/logging"
	"github.com/padmasuda/expensetracker/internal/session"
	"github.com/padmasuda/expensetracker/internal/storage"
)

// AuthViewModel holds data for the login and registration pages.
type AuthViewModel struct {
	Error    string
	Username string
}

type registerForm struct {
	Username string `validate:"required,alphanum,min=3,max=32"`
	Password string `validate:"required,min=8,max=72"`
}

// Index renders the logged-in user's expenses.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	user := session.UserFromContext(r.Context())
	expenses, err := h.expenses.ListExpenses(r.Context(), user.ID)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).WithField(logging.FieldOperation, "list").Error("ListExpenses error")
		http.Error(w, "Error fetching expenses", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "index.html", IndexViewModel{
		Username: user.Username,
		Expenses: expenses,
		Summary:  Summarize(expenses),
	})
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Current(r.Context(), r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, "login.html", AuthViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "login.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	vm := AuthViewModel{Username: username}

	if username == "" || password == "" {
		vm.Error = "Username and password are required"
		h.render(w, r, "login.html", vm)
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logging.FromContext(r.Context()).WithError(err).Error("GetUserByUsername error")
	}
	if err != nil || !auth.CheckPassword(password, user.PasswordHash) {
		vm.Error = "Invalid username or password"
		h.render(w, r, "login.html", vm)
		return
	}

	if err := h.sessions.Start(r.Context(), w, user.ID); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Failed to start session")
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, "login.html", vm)
		return
	}
	logging.FromContext(r.Context()).WithField(logging.FieldUserID, user.ID).Info("User logged in")
	http.Redirect(w, r, "/", http.StatusFound)
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if h.sessions.Current(r.Context(), r) != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render(w, r, "register.html", AuthViewModel{})
}

// Register creates an account and logs it in.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "register.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	form := registerForm{
		Username: strings.TrimSpace(r.FormValue("username")),
		Password: r.FormValue("password"),
	}
	vm := AuthViewModel{Username: form.Username}

	if err := h.validate.Struct(form); err != nil {
		vm.Error = validationMessage(err)
		h.render(w, r, "register.html", vm)
		return
	}

	hash, err := auth.HashPassword(form.Password)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Failed to hash password")
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, "register.html", vm)
		return
	}

	user, err := h.users.CreateUser(r.Context(), form.Username, hash)
	if errors.Is(err, storage.ErrDuplicate) {
		vm.Error = "Username is already taken"
		h.render(w, r, "register.html", vm)
		return
	}
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("CreateUser error")
		vm.Error = "An error occurred. Please try again."
		h.render(w, r, "register.html", vm)
		return
	}

	if err := h.sessions.Start(r.Context(), w, user.ID); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Failed to start session")
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	logging.FromContext(r.Context()).WithField(logging.FieldUserID, user.ID).Info("User registered")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(r.Context(), w, r)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid form submission"
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Username":
		if fe.Tag() == "alphanum" {
			return "Username may only contain letters and digits"
		}
		return "Username must be between 3 and 32 characters"
	case "Password":
		return "Password must be between 8 and 72 characters"
	}
	return "Invalid form submission"
}
