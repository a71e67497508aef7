package sandbox

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"investdesk/internal/models"
)

func (s *Server) wallet(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.current(c).Wallet)
}

func (s *Server) profile(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.current(c).profile())
}

func (s *Server) updateProfile(c *gin.Context) {
	var req models.Profile
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid profile")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.current(c)
	applyProfile(acct, req)
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": acct.profile()})
}

func applyProfile(acct *Account, p models.Profile) {
	if p.FirstName != "" {
		acct.FirstName = p.FirstName
	}
	if p.LastName != "" {
		acct.LastName = p.LastName
	}
	if p.Phone != "" {
		acct.Phone = p.Phone
	}
	if p.Country != "" {
		acct.Country = p.Country
	}
	if p.Currency != "" {
		acct.Currency = p.Currency
		acct.Wallet.Currency = p.Currency
	}
}

func (s *Server) activity(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.current(c).activity
	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]models.Activity, len(entries))
	copy(out, entries)
	c.JSON(http.StatusOK, gin.H{"activity": out})
}

func (s *Server) cryptoAddresses(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.addresses)
}

func (s *Server) listUsers(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.sortedAccounts()
	out := make([]models.Profile, len(accounts))
	for i, a := range accounts {
		out[i] = a.profile()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) updateUser(c *gin.Context) {
	var req models.Profile
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid user")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[models.ID(c.Param("id"))]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	applyProfile(acct, req)
	if req.Role == models.RoleAdmin || req.Role == models.RoleUser {
		acct.Role = req.Role
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated", "user": acct.profile()})
}

func (s *Server) deleteUser(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := models.ID(c.Param("id"))
	acct, ok := s.accounts[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	delete(s.accounts, id)
	delete(s.emails, acct.Email)
	for tok, owner := range s.sessions {
		if owner == id {
			delete(s.sessions, tok)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

type transferBody struct {
	UserID         models.ID           `json:"userId"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       string              `json:"currency"`
	Type           models.TransferType `json:"type"`
	ReceiveAddress string              `json:"receiveAddress"`
}

func bindTransfer(c *gin.Context) (transferBody, bool) {
	var req transferBody
	if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
		badRequest(c, "A positive amount is required")
		return req, false
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.Type == "" {
		req.Type = models.TransferFiat
	}
	return req, true
}

func (s *Server) deposit(c *gin.Context) {
	req, ok := bindTransfer(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.current(c)
	s.recordTransfer(acct, "deposit", req, nil)
	s.addActivity(acct, "deposit", req.Amount, req.Currency, "pending")
	c.JSON(http.StatusOK, gin.H{"message": "Deposit request submitted"})
}

func (s *Server) withdraw(c *gin.Context) {
	req, ok := bindTransfer(c)
	if !ok {
		return
	}
	if req.Type == models.TransferCrypto && strings.TrimSpace(req.ReceiveAddress) == "" {
		badRequest(c, "A receive address is required for crypto withdrawals")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.current(c)
	if req.Amount.GreaterThan(acct.Wallet.Balance) {
		badRequest(c, "Insufficient balance")
		return
	}
	var details interface{}
	if req.ReceiveAddress != "" {
		details = gin.H{"receiveAddress": req.ReceiveAddress}
	}
	s.recordTransfer(acct, "withdrawal", req, details)
	s.addActivity(acct, "withdrawal", req.Amount, req.Currency, "pending")
	c.JSON(http.StatusOK, gin.H{"message": "Withdrawal request submitted"})
}

// recordTransfer appends a pending transfer. s.mu must be held.
func (s *Server) recordTransfer(acct *Account, kind string, req transferBody, details interface{}) {
	s.nextTx++
	summary := acct.summary()
	s.transfers = append(s.transfers, &transfer{
		account: acct.ID,
		kind:    kind,
		record: models.TransferRecord{
			ID:        models.ID(strconv.FormatInt(s.nextTx, 10)),
			User:      &summary,
			Amount:    req.Amount,
			Currency:  req.Currency,
			Type:      req.Type,
			Status:    "pending",
			Details:   details,
			CreatedAt: time.Now().UTC(),
		},
	})
}

func (s *Server) adminCredit(c *gin.Context) {
	s.adminAdjust(c, true)
}

func (s *Server) adminDeduct(c *gin.Context) {
	s.adminAdjust(c, false)
}

func (s *Server) adminAdjust(c *gin.Context, credit bool) {
	req, ok := bindTransfer(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, found := s.accounts[req.UserID]
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if credit {
		acct.Wallet.Balance = acct.Wallet.Balance.Add(req.Amount)
		s.addActivity(acct, "deposit", req.Amount, req.Currency, "completed")
		c.JSON(http.StatusOK, gin.H{"message": "Funds added"})
		return
	}
	if req.Amount.GreaterThan(acct.Wallet.Balance) {
		badRequest(c, "Insufficient balance")
		return
	}
	acct.Wallet.Balance = acct.Wallet.Balance.Sub(req.Amount)
	s.addActivity(acct, "deduction", req.Amount, req.Currency, "completed")
	c.JSON(http.StatusOK, gin.H{"message": "Funds deducted"})
}

func (s *Server) clearDeposits(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.transfers[:0]
	for _, t := range s.transfers {
		if t.kind != "deposit" {
			kept = append(kept, t)
		}
	}
	s.transfers = kept
	c.JSON(http.StatusOK, gin.H{"message": "Deposit history cleared"})
}

func (s *Server) listTransfers(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()

		out := []models.TransferRecord{}
		for _, t := range s.transfers {
			if t.kind == kind {
				out = append(out, t.record)
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

func (s *Server) reviewTransfer(c *gin.Context) {
	kind, action := c.Param("kind"), c.Param("action")
	if (kind != "deposit" && kind != "withdrawal") || (action != "approve" && action != "decline") {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not found"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var t *transfer
	for _, candidate := range s.transfers {
		if candidate.kind == kind && candidate.record.ID == models.ID(c.Param("id")) {
			t = candidate
			break
		}
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Transaction not found"})
		return
	}
	if t.record.Status != "pending" {
		badRequest(c, "Transaction already processed")
		return
	}

	acct := s.accounts[t.account]
	if action == "decline" {
		t.record.Status = "declined"
		c.JSON(http.StatusOK, gin.H{"message": "Transaction declined"})
		return
	}

	if acct != nil {
		switch kind {
		case "deposit":
			acct.Wallet.Balance = acct.Wallet.Balance.Add(t.record.Amount)
		case "withdrawal":
			if t.record.Amount.GreaterThan(acct.Wallet.Balance) {
				badRequest(c, "Insufficient balance")
				return
			}
			acct.Wallet.Balance = acct.Wallet.Balance.Sub(t.record.Amount)
			acct.Wallet.TotalWithdrawals = acct.Wallet.TotalWithdrawals.Add(t.record.Amount)
		}
	}
	t.record.Status = "approved"
	c.JSON(http.StatusOK, gin.H{"message": "Transaction approved"})
}

const maxQRSize = 5 << 20

func (s *Server) updateCryptoAddresses(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Expected multipart form data")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.addresses
	for _, coin := range models.CryptoCurrencies {
		if vals := form.Value[coin]; len(vals) > 0 {
			setAddress(&next, coin, vals[0])
		}
		if files := form.File[coin+"_QR"]; len(files) > 0 {
			fh := files[0]
			if fh.Size > maxQRSize {
				badRequest(c, "QR image too large")
				return
			}
			setQR(&next, coin, "/uploads/qr/"+strings.ToLower(coin)+"-"+fh.Filename)
		}
	}
	s.addresses = next
	c.JSON(http.StatusOK, gin.H{"message": "Crypto addresses updated"})
}

func setAddress(a *models.CryptoAddresses, coin, addr string) {
	switch coin {
	case "BTC":
		a.BTC = addr
	case "ETH":
		a.ETH = addr
	case "USDT":
		a.USDT = addr
	case "XRP":
		a.XRP = addr
	}
}

func setQR(a *models.CryptoAddresses, coin, path string) {
	switch coin {
	case "BTC":
		a.BTCQR = path
	case "ETH":
		a.ETHQR = path
	case "USDT":
		a.USDTQR = path
	case "XRP":
		a.XRPQR = path
	}
}

func (s *Server) recentSignals(c *gin.Context) {
	c.JSON(http.StatusOK, s.Signals())
}

func (s *Server) simplePrice(c *gin.Context) {
	ids := strings.Split(c.Query("ids"), ",")
	vs := c.DefaultQuery("vs_currencies", "usd")

	s.mu.Lock()
	defer s.mu.Unlock()

	out := gin.H{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if p, ok := s.prices[id]; ok {
			out[id] = gin.H{vs: p.InexactFloat64()}
		}
	}
	c.JSON(http.StatusOK, out)
}
