// Package sandbox is an in-memory stand-in for the platform backend. It
// serves the REST routes and both push channels so the client can be run
// and tested without the real service.
package sandbox

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"investdesk/internal/models"
)

// Seeded logins.
const (
	AdminEmail    = "admin@investdesk.test"
	AdminPassword = "admin-pass"
	UserEmail     = "jane@investdesk.test"
	UserPassword  = "jane-pass"
	TOTPEmail     = "totp@investdesk.test"
	TOTPPassword  = "totp-pass"

	// UserID is the seeded regular user, the usual impersonation target.
	UserID models.ID = "42"
)

// DemoStartingBalance is the paper balance of a new or reset demo account.
var DemoStartingBalance = decimal.NewFromInt(10000)

// Account is one backend user.
type Account struct {
	ID               models.ID
	Email            string
	PasswordHash     []byte
	FirstName        string
	LastName         string
	Phone            string
	Country          string
	Currency         string
	Role             models.Role
	Verified         bool
	Active           bool
	Approved         bool
	TOTPSecret       string
	VerificationCode string
	Wallet           models.Wallet

	demo     *demoBook
	activity []models.Activity
}

func (a *Account) summary() models.UserSummary {
	return models.UserSummary{ID: a.ID, Email: a.Email, FirstName: a.FirstName, LastName: a.LastName, Role: a.Role}
}

func (a *Account) profile() models.Profile {
	return models.Profile{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Country:   a.Country,
		Currency:  a.Currency,
		Role:      a.Role,
	}
}

// NewAccount describes an account to add.
type NewAccount struct {
	ID        models.ID
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      models.Role
	// Unverified, Inactive and Pending make login fail with the matching flag.
	Unverified bool
	Inactive   bool
	Pending    bool
	TwoFactor  bool
	Balance    decimal.Decimal
}

// Server is the fake backend.
type Server struct {
	mu        sync.Mutex
	accounts  map[models.ID]*Account
	emails    map[string]models.ID
	sessions  map[string]models.ID
	resets    map[string]models.ID
	transfers []*transfer
	addresses models.CryptoAddresses
	signals   []models.TraderSignal
	prices    map[string]decimal.Decimal
	nextID    int64
	nextTx    int64

	overridesMu sync.RWMutex
	overrides   map[string]gin.HandlerFunc

	push   *pushHub
	engine *gin.Engine
	logger zerolog.Logger
}

type transfer struct {
	record  models.TransferRecord
	account models.ID
	kind    string // deposit or withdrawal
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a sandbox seeded with an admin, a regular user (id 42), a
// 2FA user and a handful of trader signals.
func New(opts ...Option) *Server {
	s := &Server{
		accounts:  make(map[models.ID]*Account),
		emails:    make(map[string]models.ID),
		sessions:  make(map[string]models.ID),
		resets:    make(map[string]models.ID),
		overrides: make(map[string]gin.HandlerFunc),
		prices: map[string]decimal.Decimal{
			"bitcoin":     decimal.NewFromInt(64250),
			"ethereum":    decimal.NewFromInt(3120),
			"binancecoin": decimal.NewFromInt(580),
		},
		addresses: models.CryptoAddresses{
			BTC:  "bc1qsandbox0000000000000000000000000000",
			ETH:  "0x0000000000000000000000000000000000sandbox",
			USDT: "TSandbox000000000000000000000000",
			XRP:  "rSandbox00000000000000000000000",
		},
		signals: []models.TraderSignal{
			{Name: "Atlas", ROI: "18.4%", Signal: models.SignalCall{Action: "Buy", Symbol: "BTCUSDT", Price: "64100", Time: "09:30"}},
			{Name: "Boreas", ROI: "7.9%", Signal: models.SignalCall{Action: "Hold", Symbol: "ETHUSDT", Price: "3115", Time: "10:05"}},
			{Name: "Cygnus", ROI: "-2.1%", Signal: models.SignalCall{Action: "Sell", Symbol: "BNBUSDT", Price: "582", Time: "11:40"}},
		},
		nextID: 100,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.push = newPushHub(s.logger)

	s.mustAdd(NewAccount{ID: "1", Email: AdminEmail, Password: AdminPassword, FirstName: "Ada", LastName: "Admin", Role: models.RoleAdmin})
	s.mustAdd(NewAccount{ID: UserID, Email: UserEmail, Password: UserPassword, FirstName: "Jane", LastName: "Doe", Balance: decimal.NewFromInt(2500)})
	s.mustAdd(NewAccount{ID: "43", Email: TOTPEmail, Password: TOTPPassword, FirstName: "Tom", LastName: "Otp", TwoFactor: true})

	s.engine = s.routes()
	return s
}

func (s *Server) mustAdd(na NewAccount) {
	if _, err := s.AddAccount(na); err != nil {
		panic(err)
	}
}

// AddAccount creates an account and returns its id.
func (s *Server) AddAccount(na NewAccount) (models.ID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(na.Password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(na.Email)
	if _, exists := s.emails[email]; exists {
		return "", fmt.Errorf("account %s already exists", email)
	}
	id := na.ID
	if id == "" {
		s.nextID++
		id = models.ID(strconv.FormatInt(s.nextID, 10))
	}
	role := na.Role
	if role == "" {
		role = models.RoleUser
	}

	acct := &Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		FirstName:    na.FirstName,
		LastName:     na.LastName,
		Country:      "US",
		Currency:     "USD",
		Role:         role,
		Verified:     !na.Unverified,
		Active:       !na.Inactive,
		Approved:     !na.Pending,
		Wallet:       models.Wallet{Balance: na.Balance, Currency: "USD"},
		demo:         newDemoBook(),
	}
	if na.Unverified {
		acct.VerificationCode = newCode()
	}
	if na.TwoFactor {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "investdesk-sandbox", AccountName: email})
		if err != nil {
			return "", fmt.Errorf("generating 2FA secret: %w", err)
		}
		acct.TOTPSecret = key.Secret()
	}

	s.accounts[id] = acct
	s.emails[email] = id
	return id, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Override replaces the response of one route, e.g. to serve a malformed
// body. A nil handler removes the override.
func (s *Server) Override(method, path string, h gin.HandlerFunc) {
	s.overridesMu.Lock()
	defer s.overridesMu.Unlock()
	key := method + " " + path
	if h == nil {
		delete(s.overrides, key)
		return
	}
	s.overrides[key] = h
}

// Revoke invalidates a bearer token as if it had expired server-side.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]models.ID)
}

// TOTPSecret returns the 2FA secret of an account.
func (s *Server) TOTPSecret(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct := s.byEmail(email); acct != nil {
		return acct.TOTPSecret
	}
	return ""
}

// VerificationCode returns the pending email verification code.
func (s *Server) VerificationCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct := s.byEmail(email); acct != nil {
		return acct.VerificationCode
	}
	return ""
}

// ResetToken returns the outstanding password reset token for email.
func (s *Server) ResetToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.byEmail(email)
	if acct == nil {
		return ""
	}
	for tok, id := range s.resets {
		if id == acct.ID {
			return tok
		}
	}
	return ""
}

// Wallet returns a copy of an account's wallet.
func (s *Server) Wallet(id models.ID) (models.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return models.Wallet{}, false
	}
	return acct.Wallet, true
}

// DemoAccount returns an account's demo book as the API would serve it.
func (s *Server) DemoAccount(id models.ID) (models.DemoAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return models.DemoAccount{}, false
	}
	return acct.demo.view(), true
}

// SetPrice sets the USD price served for a coin id such as "bitcoin".
func (s *Server) SetPrice(coin string, usd decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[coin] = usd
}

// Signals returns the current board in first-seen order.
func (s *Server) Signals() []models.TraderSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TraderSignal, len(s.signals))
	copy(out, s.signals)
	return out
}

func (s *Server) byEmail(email string) *Account {
	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil
	}
	return s.accounts[id]
}

func (s *Server) sortedAccounts() []*Account {
	out := make([]*Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, ei := strconv.Atoi(string(out[i].ID))
		nj, ej := strconv.Atoi(string(out[j].ID))
		if ei == nil && ej == nil {
			return ni < nj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Server) addActivity(acct *Account, kind string, amount decimal.Decimal, currency, status string) {
	entry := models.Activity{
		Type:     kind,
		Amount:   amount,
		Currency: currency,
		Status:   status,
		Date:     time.Now().Format("Jan 2, 2006"),
	}
	acct.activity = append([]models.Activity{entry}, acct.activity...)
}
