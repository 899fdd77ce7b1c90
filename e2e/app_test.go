package e2e

import (
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// E2ETestSuite provides a test suite for end-to-end tests
type E2ETestSuite struct {
	suite.Suite
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	expect  playwright.PlaywrightAssertions
}

// SetupSuite runs once before all tests
func (suite *E2ETestSuite) SetupSuite() {
	pw, err := playwright.Run()
	require.NoError(suite.T(), err, "could not launch playwright")
	suite.pw = pw

	browser, err := pw.Chromium.Launch()
	require.NoError(suite.T(), err, "could not launch chromium")
	suite.browser = browser

	suite.expect = playwright.NewPlaywrightAssertions()
}

// TearDownSuite runs once after all tests
func (suite *E2ETestSuite) TearDownSuite() {
	if suite.browser != nil {
		suite.browser.Close()
	}
	if suite.pw != nil {
		suite.pw.Stop()
	}
}

// SetupTest runs before each test
func (suite *E2ETestSuite) SetupTest() {
	page, err := suite.browser.NewPage()
	require.NoError(suite.T(), err, "could not create page")
	suite.page = page

	_, err = suite.page.Goto(appURL)
	require.NoError(suite.T(), err, "could not navigate to app")
}

// TearDownTest runs after each test
func (suite *E2ETestSuite) TearDownTest() {
	if suite.page != nil {
		suite.page.Close()
	}
}

func (suite *E2ETestSuite) login() {
	err := suite.expect.Locator(suite.page.Locator(".login-form")).ToBeVisible()
	require.NoError(suite.T(), err, "login form not visible")

	err = suite.page.Locator("input[name=username]").Fill("testuser")
	require.NoError(suite.T(), err, "failed to fill username")

	err = suite.page.Locator("input[name=password]").Fill("testpass123")
	require.NoError(suite.T(), err, "failed to fill password")

	err = suite.page.Locator(".login-btn").Click()
	require.NoError(suite.T(), err, "failed to click login")

	err = suite.expect.Locator(suite.page.Locator(".list-screen")).ToBeVisible()
	require.NoError(suite.T(), err, "did not reach the expense list after login")
}

func (suite *E2ETestSuite) TestCompleteUserFlow() {
	suite.login()

	err := suite.expect.Locator(suite.page.Locator(".expense-count")).ToHaveText("0")
	require.NoError(suite.T(), err, "homepage assertion failed")

	err = suite.page.Locator("#expense-form input[name=description]").Fill("Lunch Test")
	require.NoError(suite.T(), err, "failed to fill description")

	err = suite.page.Locator("button.submit").Click()
	require.NoError(suite.T(), err, "failed to submit expense")

	err = suite.expect.Locator(suite.page.Locator(".expense-item")).ToHaveCount(1)
	require.NoError(suite.T(), err, "expense item count mismatch")

	item := suite.page.Locator(".expense-item").First()
	err = suite.expect.Locator(item.Locator(".expense-description")).ToHaveText("Lunch Test")
	require.NoError(suite.T(), err, "description mismatch")

	err = item.Locator(".toggle-btn").Click()
	require.NoError(suite.T(), err, "failed to toggle expense")

	err = suite.expect.Locator(suite.page.Locator(".completed-count")).ToHaveText("1")
	require.NoError(suite.T(), err, "toggle was not persisted")

	err = suite.page.Locator(".expense-item .delete-btn").First().Click()
	require.NoError(suite.T(), err, "failed to delete expense")

	err = suite.expect.Locator(suite.page.Locator(".expense-item")).ToHaveCount(0)
	require.NoError(suite.T(), err, "expense was not deleted")
}

func (suite *E2ETestSuite) TestLoginRejectsBadPassword() {
	err := suite.page.Locator("input[name=username]").Fill("testuser")
	require.NoError(suite.T(), err)
	err = suite.page.Locator("input[name=password]").Fill("wrong-password")
	require.NoError(suite.T(), err)
	err = suite.page.Locator(".login-btn").Click()
	require.NoError(suite.T(), err)

	err = suite.expect.Locator(suite.page.Locator(".error")).ToHaveText("Invalid username or password")
	require.NoError(suite.T(), err, "error message not shown")
}

// TestE2ESuite runs the e2e test suite
func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ETestSuite))
}
