package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/somalabs/darasa/apps/api/echo"
	"github.com/somalabs/darasa/core/account"
	testutil "github.com/somalabs/darasa/tests"
)

const (
	chromeWinUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36"
	firefoxWinUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:89.0) Gecko/20100101 Firefox/89.0"
	safariMacUA  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1 Safari/605.1.15"
)

func loginBody(t *testing.T, uname, pwd, ua string) []byte {
	t.Helper()
	return marchallObj(t, map[string]interface{}{
		"username": uname,
		"password": pwd,
		"device": map[string]interface{}{
			"platform":          "Win32",
			"screen_resolution": "1920x1080",
			"timezone":          "Africa/Kinshasa",
			"user_agent":        ua,
		},
	})
}

func Test_accountApi_login(t *testing.T) {
	app := setup(t)

	_ = testutil.CreateAccount(t, app.acctRepo, "Hero", "hero", "hero@test.cd", "LePass123", []string{account.RoleStudent}, true, false)
	_ = testutil.CreateAccount(t, app.acctRepo, "N Dog", "ndog", "ndog@test.cd", "LePass123", []string{account.RoleStudent}, false, false)

	tests := []httpTest{
		{
			name: "unknown username", method: http.MethodPost, path: "/v1/accounts/login",
			body: loginBody(t, "ghost", "LePass123", chromeWinUA), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/accounts/login",
			body: loginBody(t, "hero", "n0pe", chromeWinUA), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "deactivated account", method: http.MethodPost, path: "/v1/accounts/login",
			body: loginBody(t, "ndog", "LePass123", chromeWinUA), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("missing device metadata", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"username": "hero", "password": "LePass123"})
		req, rec := newRequest(http.MethodPost, "/v1/accounts/login", body)
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp httpFieldErrs
		decodeBody(t, rec, &resp)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Errors, "platform")
		assert.Contains(t, resp.Errors, "user_agent")
	})

	t.Run("login registers the device", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/login", loginBody(t, "hero", "LePass123", chromeWinUA))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp LoginResponse
		decodeBody(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.True(t, resp.Admission.Authorized)
		assert.True(t, resp.Admission.Created)
		require.NotNil(t, resp.Admission.Device)
		assert.Equal(t, "Chrome on Windows", resp.Admission.Device.Name)

		// same device again: authorized without a new registration
		req, rec = newRequest(http.MethodPost, "/v1/accounts/login", loginBody(t, "hero", "LePass123", chromeWinUA))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		decodeBody(t, rec, &resp)
		assert.True(t, resp.Admission.Authorized)
		assert.False(t, resp.Admission.Created)
	})

	t.Run("device limit blocks login", func(t *testing.T) {
		// second device still fits the default limit of 2
		req, rec := newRequest(http.MethodPost, "/v1/accounts/login", loginBody(t, "hero", "LePass123", firefoxWinUA))
		app.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		req, rec = newRequest(http.MethodPost, "/v1/accounts/login", loginBody(t, "hero", "LePass123", safariMacUA))
		app.server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		var resp struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
			Code    string `json:"code"`
		}
		decodeBody(t, rec, &resp)
		assert.False(t, resp.Success)
		assert.Equal(t, "device limit exceeded", resp.Error)
		assert.Equal(t, "DEVICE_LIMIT_EXCEEDED", resp.Code)
	})

	t.Run("email works as username", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/login", loginBody(t, "hero@test.cd", "LePass123", chromeWinUA))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_accountApi_tokenRefresh(t *testing.T) {
	app := setup(t)
	hero := testutil.CreateAccount(t, app.acctRepo, "Hero", "hero", "hero@test.cd", "LePass123", []string{account.RoleStudent}, true, false)

	t.Run("auth required", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		}
		req, rec := newRequest(http.MethodPost, "/v1/accounts/token-refresh")
		app.server.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("refresh", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/accounts/token-refresh", app.getToken(t, hero))
		app.server.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp TokenResponse
		decodeBody(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})
}
