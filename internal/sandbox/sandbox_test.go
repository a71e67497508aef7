package sandbox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investdesk/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, h http.Handler, email, password string) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestDemoBook_BuyThenSell(t *testing.T) {
	b := newDemoBook()
	now := time.Now()

	msg := b.execute(models.DemoTradeRequest{Asset: "BTCUSDT", Type: models.SideBuy, Amount: decimal.NewFromFloat(0.1), Price: decimal.NewFromInt(50000)}, now)
	require.Empty(t, msg)
	assert.True(t, b.balance.Equal(decimal.NewFromInt(5000)))

	msg = b.execute(models.DemoTradeRequest{Asset: "BTCUSDT", Type: models.SideSell, Amount: decimal.NewFromFloat(0.05), Price: decimal.NewFromInt(60000)}, now)
	require.Empty(t, msg)

	view := b.view()
	assert.True(t, view.Balance.Equal(decimal.NewFromInt(8000)))
	assert.True(t, view.Holding("BTCUSDT").Equal(decimal.NewFromFloat(0.05)))
	require.Len(t, view.Trades, 2)
	assert.Equal(t, models.SideSell, view.Trades[0].Type)
	assert.True(t, view.TotalPnL().Equal(decimal.NewFromInt(500)))
}

func TestDemoBook_RefusalsLeaveBookUntouched(t *testing.T) {
	b := newDemoBook()
	before := b.view()

	cases := []models.DemoTradeRequest{
		{Asset: "BTCUSDT", Type: models.SideBuy, Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(64000)},
		{Asset: "BTCUSDT", Type: models.SideSell, Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(64000)},
		{Asset: "BTCUSDT", Type: models.SideBuy, Amount: decimal.Zero, Price: decimal.NewFromInt(1)},
		{Asset: "BTCUSDT", Type: models.SideBuy, Amount: decimal.NewFromInt(1), Price: decimal.Zero},
		{Asset: "BTCUSDT", Type: "Hold", Amount: decimal.NewFromInt(1), Price: decimal.NewFromInt(1)},
	}
	for _, req := range cases {
		assert.NotEmpty(t, b.execute(req, time.Now()))
	}

	after := b.view()
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Empty(t, after.Holdings)
	assert.Empty(t, after.Trades)
}

func TestLogin_Flags(t *testing.T) {
	s := New()
	h := s.Handler()

	_, err := s.AddAccount(NewAccount{Email: "unverified@investdesk.test", Password: "pw-123456", Unverified: true})
	require.NoError(t, err)
	_, err = s.AddAccount(NewAccount{Email: "pending@investdesk.test", Password: "pw-123456", Pending: true})
	require.NoError(t, err)

	w := doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": UserEmail, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "unverified@investdesk.test", "password": "pw-123456"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"requiresVerification":true`)

	w = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "pending@investdesk.test", "password": "pw-123456"})
	assert.Contains(t, w.Body.String(), `"pendingApproval":true`)

	w = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{"email": TOTPEmail, "password": TOTPPassword})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"2FA required"}`, w.Body.String())
}

func TestValidate2FA(t *testing.T) {
	s := New()
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/auth/2fa/validate", "", map[string]string{"email": TOTPEmail, "token": "000000"})
	if w.Code == http.StatusOK {
		t.Skip("000000 happened to be the current code")
	}
	assert.Equal(t, http.StatusBadRequest, w.Code)

	code, err := totp.GenerateCode(s.TOTPSecret(TOTPEmail), time.Now())
	require.NoError(t, err)
	w = doJSON(t, h, http.MethodPost, "/api/auth/2fa/validate", "", map[string]string{"email": TOTPEmail, "token": code})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token"`)
}

func TestProtectedRoutes(t *testing.T) {
	s := New()
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/user/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := login(t, h, UserEmail, UserPassword)
	w = doJSON(t, h, http.MethodGet, "/api/user/wallet", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/user/all", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.Revoke(token)
	w = doJSON(t, h, http.MethodGet, "/api/user/wallet", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDepositApproval(t *testing.T) {
	s := New()
	h := s.Handler()
	user := login(t, h, UserEmail, UserPassword)
	admin := login(t, h, AdminEmail, AdminPassword)

	w := doJSON(t, h, http.MethodPost, "/api/transaction/deposit", user, map[string]interface{}{"amount": "100", "currency": "USD", "type": "fiat"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/admin/deposits", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deposits []models.TransferRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &deposits))
	require.Len(t, deposits, 1)
	assert.Equal(t, "pending", deposits[0].Status)

	w = doJSON(t, h, http.MethodPost, "/api/admin/deposit/approve/"+deposits[0].ID.String(), admin, struct{}{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	wallet, ok := s.Wallet(UserID)
	require.True(t, ok)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(2600)))
}

func TestOverride(t *testing.T) {
	s := New()
	h := s.Handler()
	s.Override(http.MethodGet, "/health", func(c *gin.Context) { c.String(http.StatusTeapot, "short and stout") })

	w := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)

	s.Override(http.MethodGet, "/health", nil)
	w = doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
