package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/padmasuda/expensetracker/internal/auth"
	"github.com/padmasuda/expensetracker/internal/models"
	"github.com/padmasuda/expensetracker/internal/session"
	"github.com/padmasuda/expensetracker/internal/storage"
	"github.com/padmasuda/expensetracker/web"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// spyStore counts calls and can be told to fail.
type spyStore struct {
	storage.ExpenseStore
	calls int
	err   error
}

func (s *spyStore) ListExpenses(ctx context.Context, owner string) ([]models.Expense, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.ExpenseStore.ListExpenses(ctx, owner)
}

func (s *spyStore) CreateExpense(ctx context.Context, e *models.Expense) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return s.ExpenseStore.CreateExpense(ctx, e)
}

func (s *spyStore) ToggleExpense(ctx context.Context, id models.ID, owner string) (*models.Expense, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.ExpenseStore.ToggleExpense(ctx, id, owner)
}

func (s *spyStore) DeleteExpense(ctx context.Context, id models.ID, owner string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return s.ExpenseStore.DeleteExpense(ctx, id, owner)
}

// PersistentTestSuite runs the session-backed handlers over SQLite.
type PersistentTestSuite struct {
	suite.Suite
	db       *storage.DB
	spy      *spyStore
	sessions *session.Manager
	h        *Handlers
	alice    *models.User
	bob      *models.User
	mux      *http.ServeMux
}

func (suite *PersistentTestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err)
	suite.db = db
	suite.spy = &spyStore{ExpenseStore: db}
	suite.sessions = session.NewManager(db, []byte(testSecret), time.Hour, false)
	suite.h = NewHandlers(Deps{
		Expenses:              suite.spy,
		Users:                 db,
		Sessions:              suite.sessions,
		Templates:             web.Templates(),
		ScopeMutationsToOwner: true,
	})

	hash, err := auth.HashPassword("testpass123")
	require.NoError(suite.T(), err)
	suite.alice, err = db.CreateUser(suite.T().Context(), "alice", hash)
	require.NoError(suite.T(), err)
	suite.bob, err = db.CreateUser(suite.T().Context(), "bob", hash)
	require.NoError(suite.T(), err)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", suite.sessions.RequirePage(http.HandlerFunc(suite.h.Index)))
	mux.Handle("GET /expenses", suite.sessions.RequireAPI(http.HandlerFunc(suite.h.ListOwned)))
	mux.Handle("POST /expenses", suite.sessions.RequireAPI(http.HandlerFunc(suite.h.CreateOwned)))
	mux.Handle("POST /expenses/toggle/{id}", suite.sessions.RequireAPI(http.HandlerFunc(suite.h.Toggle)))
	mux.Handle("DELETE /expenses/{id}", suite.sessions.RequireAPI(http.HandlerFunc(suite.h.DeleteOwned)))
	suite.mux = mux
}

func (suite *PersistentTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *PersistentTestSuite) cookieFor(u *models.User) *http.Cookie {
	w := httptest.NewRecorder()
	require.NoError(suite.T(), suite.sessions.Start(suite.T().Context(), w, u.ID))
	return w.Result().Cookies()[0]
}

func (suite *PersistentTestSuite) do(req *http.Request, u *models.User) *httptest.ResponseRecorder {
	if u != nil {
		req.AddCookie(suite.cookieFor(u))
	}
	w := httptest.NewRecorder()
	suite.mux.ServeHTTP(w, req)
	return w
}

func (suite *PersistentTestSuite) create(u *models.User, desc string) models.Expense {
	w := suite.do(jsonRequest(http.MethodPost, "/expenses", `{"description":"`+desc+`"}`), u)
	require.Equal(suite.T(), http.StatusCreated, w.Code)
	return decode[models.Expense](suite.T(), w)
}

func (suite *PersistentTestSuite) TestListWithoutSessionNeverTouchesStore() {
	w := suite.do(httptest.NewRequest(http.MethodGet, "/expenses", http.NoBody), nil)

	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
	assert.Equal(suite.T(), "Login required\n", w.Body.String())
	assert.Zero(suite.T(), suite.spy.calls)
}

func (suite *PersistentTestSuite) TestCreateAssignsOwner() {
	got := suite.create(suite.alice, "Lunch")

	assert.NotEmpty(suite.T(), got.ID)
	assert.Equal(suite.T(), "Lunch", got.Description)
	assert.Equal(suite.T(), suite.alice.ID, got.Owner)
	require.NotNil(suite.T(), got.Completed)
	assert.False(suite.T(), *got.Completed)
	assert.Zero(suite.T(), got.Amount)
}

func (suite *PersistentTestSuite) TestCreateFromForm() {
	form := url.Values{"description": {"Taxi"}}
	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := suite.do(req, suite.alice)

	require.Equal(suite.T(), http.StatusCreated, w.Code)
	assert.Equal(suite.T(), "Taxi", decode[models.Expense](suite.T(), w).Description)
}

func (suite *PersistentTestSuite) TestListIsScopedToOwner() {
	suite.create(suite.alice, "Lunch")
	suite.create(suite.bob, "Dinner")

	w := suite.do(httptest.NewRequest(http.MethodGet, "/expenses", http.NoBody), suite.alice)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	got := decode[[]models.Expense](suite.T(), w)
	require.Len(suite.T(), got, 1)
	assert.Equal(suite.T(), "Lunch", got[0].Description)
}

func (suite *PersistentTestSuite) TestToggleTwiceRoundTrips() {
	e := suite.create(suite.alice, "Lunch")
	path := "/expenses/toggle/" + string(e.ID)

	w := suite.do(httptest.NewRequest(http.MethodPost, path, http.NoBody), suite.alice)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.True(suite.T(), decode[models.Expense](suite.T(), w).IsCompleted())

	w = suite.do(httptest.NewRequest(http.MethodPost, path, http.NoBody), suite.alice)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.False(suite.T(), decode[models.Expense](suite.T(), w).IsCompleted())
}

func (suite *PersistentTestSuite) TestToggleMissing() {
	w := suite.do(httptest.NewRequest(http.MethodPost, "/expenses/toggle/999", http.NoBody), suite.alice)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
	assert.Equal(suite.T(), "Expense not found.\n", w.Body.String())
}

func (suite *PersistentTestSuite) TestToggleUnparseableID() {
	w := suite.do(httptest.NewRequest(http.MethodPost, "/expenses/toggle/not-an-id", http.NoBody), suite.alice)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *PersistentTestSuite) TestMutationsAreScopedToOwner() {
	e := suite.create(suite.alice, "Lunch")

	w := suite.do(httptest.NewRequest(http.MethodPost, "/expenses/toggle/"+string(e.ID), http.NoBody), suite.bob)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
	w = suite.do(httptest.NewRequest(http.MethodDelete, "/expenses/"+string(e.ID), http.NoBody), suite.bob)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)

	suite.h.scopeMutations = false
	w = suite.do(httptest.NewRequest(http.MethodDelete, "/expenses/"+string(e.ID), http.NoBody), suite.bob)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *PersistentTestSuite) TestDelete() {
	e := suite.create(suite.alice, "Lunch")

	w := suite.do(httptest.NewRequest(http.MethodDelete, "/expenses/"+string(e.ID), http.NoBody), suite.alice)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), map[string]string{"message": "Deleted successfully"}, decode[map[string]string](suite.T(), w))

	w = suite.do(httptest.NewRequest(http.MethodDelete, "/expenses/"+string(e.ID), http.NoBody), suite.alice)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *PersistentTestSuite) TestStoreFailures() {
	e := suite.create(suite.alice, "Lunch")
	suite.spy.err = errors.New("disk on fire")

	tests := []struct {
		req  *http.Request
		body string
	}{
		{httptest.NewRequest(http.MethodGet, "/expenses", http.NoBody), "Server error\n"},
		{jsonRequest(http.MethodPost, "/expenses", `{"description":"x"}`), "Server error\n"},
		{httptest.NewRequest(http.MethodPost, "/expenses/toggle/"+string(e.ID), http.NoBody), "Error toggling expense\n"},
		{httptest.NewRequest(http.MethodDelete, "/expenses/"+string(e.ID), http.NoBody), "Error deleting expense\n"},
		{httptest.NewRequest(http.MethodGet, "/", http.NoBody), "Error fetching expenses\n"},
	}
	for _, tt := range tests {
		w := suite.do(tt.req, suite.alice)
		assert.Equal(suite.T(), http.StatusInternalServerError, w.Code, tt.req.URL.Path)
		assert.Equal(suite.T(), tt.body, w.Body.String(), tt.req.URL.Path)
	}
}

func (suite *PersistentTestSuite) TestIndexRendersSummary() {
	suite.create(suite.alice, "Lunch")
	suite.create(suite.alice, "Coffee")

	w := suite.do(httptest.NewRequest(http.MethodGet, "/", http.NoBody), suite.alice)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, `class="list-screen"`)
	assert.Contains(suite.T(), body, "Lunch")
	assert.Contains(suite.T(), body, `<strong class="expense-count">2</strong>`)
	assert.Contains(suite.T(), body, "<html", "full layout without HX-Request")
}

func (suite *PersistentTestSuite) TestIndexPartialForHtmx() {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("HX-Request", "true")
	w := suite.do(req, suite.alice)

	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.NotContains(suite.T(), w.Body.String(), "<html")
	assert.Contains(suite.T(), w.Body.String(), "No expenses yet.")
}

func (suite *PersistentTestSuite) TestIndexRedirectsWithoutSession() {
	w := suite.do(httptest.NewRequest(http.MethodGet, "/", http.NoBody), nil)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))
}

func TestPersistentSuite(t *testing.T) {
	suite.Run(t, new(PersistentTestSuite))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]models.Expense{
		{Amount: 10, Completed: models.Bool(true)},
		{Amount: 2.5},
		{Amount: 7.5, Completed: models.Bool(false)},
	})
	assert.Equal(t, Summary{Count: 3, Completed: 1, Total: 20}, s)
}
