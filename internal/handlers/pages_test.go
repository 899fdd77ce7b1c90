package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padmasuda/expensetracker/internal/session"
)

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge > 0 {
			return c
		}
	}
	return nil
}

func (suite *PersistentTestSuite) TestLoginFormRenders() {
	w := httptest.NewRecorder()
	suite.h.LoginForm(w, httptest.NewRequest(http.MethodGet, "/login", http.NoBody))

	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), `class="login-form"`)
}

func (suite *PersistentTestSuite) TestLoginFormRedirectsWhenLoggedIn() {
	req := httptest.NewRequest(http.MethodGet, "/login", http.NoBody)
	req.AddCookie(suite.cookieFor(suite.alice))
	w := httptest.NewRecorder()
	suite.h.LoginForm(w, req)

	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/", w.Header().Get("Location"))
}

func (suite *PersistentTestSuite) TestLogin() {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  string
	}{
		{"success", "alice", "testpass123", ""},
		{"wrong password", "alice", "nope", "Invalid username or password"},
		{"unknown user", "carol", "testpass123", "Invalid username or password"},
		{"missing fields", "", "", "Username and password are required"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := httptest.NewRecorder()
			suite.h.Login(w, formRequest("/login", url.Values{"username": {tt.username}, "password": {tt.password}}))

			if tt.wantErr == "" {
				assert.Equal(suite.T(), http.StatusFound, w.Code)
				assert.Equal(suite.T(), "/", w.Header().Get("Location"))
				assert.NotNil(suite.T(), sessionCookie(w))
				return
			}
			assert.Equal(suite.T(), http.StatusOK, w.Code)
			assert.Contains(suite.T(), w.Body.String(), tt.wantErr)
			assert.Nil(suite.T(), sessionCookie(w))
		})
	}
}

func (suite *PersistentTestSuite) TestRegister() {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  string
	}{
		{"success", "carol", "longenough", ""},
		{"duplicate", "alice", "longenough", "Username is already taken"},
		{"short username", "ab", "longenough", "Username must be between 3 and 32 characters"},
		{"symbols in username", "a-b-c", "longenough", "Username may only contain letters and digits"},
		{"short password", "dave", "short", "Password must be between 8 and 72 characters"},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := httptest.NewRecorder()
			suite.h.Register(w, formRequest("/register", url.Values{"username": {tt.username}, "password": {tt.password}}))

			if tt.wantErr == "" {
				require.Equal(suite.T(), http.StatusFound, w.Code)
				assert.Equal(suite.T(), "/", w.Header().Get("Location"))
				assert.NotNil(suite.T(), sessionCookie(w))
				_, err := suite.db.GetUserByUsername(suite.T().Context(), tt.username)
				assert.NoError(suite.T(), err)
				return
			}
			assert.Equal(suite.T(), http.StatusOK, w.Code)
			assert.Contains(suite.T(), w.Body.String(), tt.wantErr)
		})
	}
}

func (suite *PersistentTestSuite) TestLogout() {
	cookie := suite.cookieFor(suite.alice)
	req := formRequest("/logout", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	suite.h.Logout(w, req)

	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))

	after := httptest.NewRequest(http.MethodGet, "/expenses", http.NoBody)
	after.AddCookie(cookie)
	assert.Nil(suite.T(), suite.sessions.Current(suite.T().Context(), after))
}
