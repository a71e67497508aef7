package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investdesk/internal/config"
	"investdesk/internal/dashboard"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/internal/sandbox"
)

type cliEnv struct {
	t   *testing.T
	cfg *config.Config
	dir string
	srv *sandbox.Server
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	srv := sandbox.New()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.API.BaseURL = hs.URL
	cfg.Prices.QuoteURL = hs.URL + "/simple/price"
	cfg.API.RateLimit = 0
	cfg.Stream.SignalsURL = ""
	cfg.Stream.TradesURL = ""
	cfg.Storage.Path = filepath.Join(dir, "investdesk.db")
	cfg.Storage.EncryptTokens = false
	return &cliEnv{t: t, cfg: cfg, dir: dir, srv: srv}
}

// run executes one command on a fresh root, like a separate process would.
func (e *cliEnv) run(args ...string) (string, error) {
	return e.runWithInput("", args...)
}

func (e *cliEnv) runWithInput(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := NewRootCmd(e.cfg, e.dir, zerolog.Nop())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, out)
	return out
}

func (e *cliEnv) status() map[string]interface{} {
	e.t.Helper()
	var status map[string]interface{}
	require.NoError(e.t, json.Unmarshal([]byte(e.mustRun("status", "--json")), &status))
	return status
}

func TestCLI_LoginWalletLogout(t *testing.T) {
	env := newCLIEnv(t)

	assert.Contains(t, env.mustRun("status"), "Not logged in")
	_, err := env.run("wallet")
	assert.True(t, errors.Is(err, apperrors.ErrNotAuthenticated))

	out := env.mustRun("login", "--email", sandbox.UserEmail, "--password", sandbox.UserPassword)
	assert.Contains(t, out, "Logged in as Jane Doe")
	assert.Equal(t, "authenticated", env.status()["state"])

	var w models.Wallet
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("wallet", "--json")), &w))
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(2500)), w.Balance.String())

	assert.Contains(t, env.mustRun("logout"), "Logged out")
	assert.Equal(t, "anonymous", env.status()["state"])
}

func TestCLI_WrongPassword(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("login", "--email", sandbox.UserEmail, "--password", "nope")
	require.Error(t, err)
	assert.Equal(t, "anonymous", env.status()["state"])
}

func TestCLI_TwoFactorFromSecret(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("login", "--email", sandbox.TOTPEmail, "--password", sandbox.TOTPPassword,
		"--totp-secret", env.srv.TOTPSecret(sandbox.TOTPEmail))
	assert.Contains(t, out, "Logged in")
	assert.Equal(t, "authenticated", env.status()["state"])
}

func TestCLI_TwoFactorPromptRetriesWrongCode(t *testing.T) {
	env := newCLIEnv(t)

	code, err := totp.GenerateCode(env.srv.TOTPSecret(sandbox.TOTPEmail), time.Now())
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	out, err := env.runWithInput(wrong+"\n"+code+"\n",
		"login", "--email", sandbox.TOTPEmail, "--password", sandbox.TOTPPassword)
	require.NoError(t, err, out)
	assert.Equal(t, 2, strings.Count(out, "2FA code:"))
	assert.Contains(t, out, "Invalid 2FA code")
	assert.Contains(t, out, "Logged in")
	assert.Equal(t, "authenticated", env.status()["state"])
}

func TestCLI_TwoFactorFlagCodeGetsOneTry(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.runWithInput("123456\n",
		"login", "--email", sandbox.TOTPEmail, "--password", sandbox.TOTPPassword, "--code", "000000")
	assert.True(t, errors.Is(err, apperrors.ErrInvalid2FA), "%v", err)
	assert.Equal(t, "anonymous", env.status()["state"])
}

func TestCLI_AdminImpersonation(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("admin", "users")
	assert.Error(t, err, "admin commands need a session")

	env.mustRun("admin-login", "--email", sandbox.AdminEmail, "--password", sandbox.AdminPassword)
	assert.Contains(t, env.mustRun("admin", "users"), sandbox.UserEmail)

	out := env.mustRun("admin", "impersonate", sandbox.UserID.String())
	assert.Contains(t, out, "Now acting as Jane Doe")

	status := env.status()
	assert.Equal(t, "impersonating", status["state"])
	user, ok := status["impersonating"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, sandbox.UserEmail, user["email"])

	env.mustRun("admin", "restore")
	assert.Equal(t, "authenticated", env.status()["state"])
}

func TestCLI_DemoTradeAndReset(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("login", "--email", sandbox.UserEmail, "--password", sandbox.UserPassword)

	out := env.mustRun("demo", "trade", "buy", "btcusdt", "0.01")
	assert.Contains(t, out, "BTCUSDT @")
	assert.Contains(t, out, "Holding 0.01 BTC")

	var account models.DemoAccount
	require.NoError(t, json.Unmarshal([]byte(env.mustRun("demo", "account", "--json")), &account))
	assert.True(t, account.Holding("BTCUSDT").Equal(decimal.RequireFromString("0.01")))

	require.NoError(t, json.Unmarshal([]byte(env.mustRun("demo", "reset", "--json")), &account))
	assert.True(t, account.Balance.Equal(sandbox.DemoStartingBalance))
	assert.True(t, account.Holding("BTCUSDT").IsZero())
}

func TestCLI_WatchOnceReportsBrokenChannel(t *testing.T) {
	env := newCLIEnv(t)
	env.cfg.Stream.SignalsURL = "ws://127.0.0.1:1/ws/trader-signals"
	env.mustRun("login", "--email", sandbox.UserEmail, "--password", sandbox.UserPassword)

	out := env.mustRun("watch", "--once")
	assert.Contains(t, out, "ERROR | signals channel")
	assert.Contains(t, out, "signals channel unavailable")
	assert.Contains(t, out, "\a", "error alerts ring the bell")
}

func TestCLI_TransferValidation(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("deposit", "abc")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidAmount))

	_, err = env.run("deposit", "10", "--type", "cheque")
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "type", verr.Field)

	_, err = env.run("withdraw", "0.1", "--type", "crypto", "--currency", "BTC")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "receiveAddress", verr.Field)
}

func TestAlertLog_KeepsLastLines(t *testing.T) {
	var term bytes.Buffer
	log := newAlertLog(&term, 2)

	_, _ = log.Write([]byte("\aone\n"))
	_, _ = log.Write([]byte("two\n"))
	_, _ = log.Write([]byte("\athree\n"))

	assert.Equal(t, []string{"two", "three"}, log.Lines())
	assert.Equal(t, "\a\a", term.String())
}

type brokenTerminal struct{}

func (brokenTerminal) Write([]byte) (int, error) { return 0, errors.New("terminal gone") }

func TestAlertLog_BellWriteError(t *testing.T) {
	log := newAlertLog(brokenTerminal{}, 2)

	_, err := log.Write([]byte("\aone\n"))
	assert.EqualError(t, err, "terminal gone")
	assert.Empty(t, log.Lines())

	n, err := log.Write([]byte("quiet\n"))
	require.NoError(t, err)
	assert.Equal(t, len("quiet\n"), n)
	assert.Equal(t, []string{"quiet"}, log.Lines())
}

func TestRenderDashboard_Text(t *testing.T) {
	var buf bytes.Buffer
	output := newOutput(&buf, false, false)

	view := dashboard.View{
		Wallet: &models.Wallet{Balance: decimal.NewFromInt(1200), Currency: "USD"},
		Signals: []models.TraderSignal{{
			Name: "alice", ROI: "12%",
			Signal: models.SignalCall{Action: "Buy", Symbol: "BTCUSDT", Price: "64250"},
		}},
		DemoErr:   apperrors.ErrSessionExpired,
		StreamErr: map[string]error{"trades": apperrors.ErrChannelClosed},
	}
	require.NoError(t, renderDashboard(output, view, []string{"BTCUSDT"}, "Jane Doe", []string{"[10:00:00] SIGNAL | alice"}, testNow()))

	text := buf.String()
	assert.NotContains(t, text, "\033[")
	assert.Contains(t, text, "acting as Jane Doe")
	assert.Contains(t, text, "$1,200.00")
	assert.Contains(t, text, "Loading...")
	assert.Contains(t, text, "BTCUSDT")
	assert.Contains(t, text, "waiting for trades")
	assert.Contains(t, text, "trades channel unavailable")
	assert.Contains(t, text, "Your session has expired")
	assert.Contains(t, text, "[10:00:00] SIGNAL | alice")
}

func TestRenderDashboard_PriceAge(t *testing.T) {
	var buf bytes.Buffer
	output := newOutput(&buf, false, false)

	view := dashboard.View{Prices: map[string]models.PriceQuote{
		"BTCUSDT": {Asset: "BTCUSDT", USDPrice: decimal.NewFromInt(64250), FetchedAt: testNow().Add(-90 * time.Second)},
		"ETHUSDT": {Asset: "ETHUSDT", USDPrice: decimal.NewFromInt(3120), FetchedAt: testNow().Add(-30 * time.Second)},
	}}
	require.NoError(t, renderDashboard(output, view, nil, "", nil, testNow()))
	assert.Contains(t, buf.String(), "prices updated 30s ago")
}

func TestRenderDashboard_JSONFlattensErrors(t *testing.T) {
	var buf bytes.Buffer
	output := newOutput(&buf, true, false)

	view := dashboard.View{
		WalletErr: errors.New("boom"),
		StreamErr: map[string]error{"signals": apperrors.ErrChannelClosed},
	}
	require.NoError(t, renderDashboard(output, view, nil, "", nil, testNow()))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "boom", got["wallet_error"])
	streams, ok := got["stream_errors"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, streams["signals"])
	assert.NotContains(t, got, "acting_as")
}
