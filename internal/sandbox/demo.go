package sandbox

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"investdesk/internal/models"
)

type position struct {
	amount  decimal.Decimal
	avgCost decimal.Decimal
}

// demoBook is the server side of a paper trading account.
type demoBook struct {
	balance   decimal.Decimal
	positions map[string]*position
	trades    []models.DemoTrade
}

func newDemoBook() *demoBook {
	return &demoBook{
		balance:   DemoStartingBalance,
		positions: make(map[string]*position),
	}
}

func (b *demoBook) view() models.DemoAccount {
	acct := models.DemoAccount{
		Balance:  b.balance,
		Holdings: []models.Holding{},
		Trades:   make([]models.DemoTrade, len(b.trades)),
	}
	for asset, p := range b.positions {
		if p.amount.IsPositive() {
			acct.Holdings = append(acct.Holdings, models.Holding{Asset: asset, Amount: p.amount})
		}
	}
	sort.Slice(acct.Holdings, func(i, j int) bool { return acct.Holdings[i].Asset < acct.Holdings[j].Asset })
	copy(acct.Trades, b.trades)
	return acct
}

// execute applies a trade. It returns a user facing message on refusal and
// leaves the book untouched in that case.
func (b *demoBook) execute(req models.DemoTradeRequest, now time.Time) string {
	if req.Asset == "" || !req.Type.Valid() {
		return "Asset and a Buy or Sell type are required"
	}
	if !req.Amount.IsPositive() {
		return "Amount must be greater than zero"
	}
	if !req.Price.IsPositive() {
		return "Price is required"
	}

	notional := req.Amount.Mul(req.Price)
	trade := models.DemoTrade{
		Asset:  req.Asset,
		Type:   req.Type,
		Amount: req.Amount,
		Price:  req.Price,
		PnL:    decimal.Zero,
		Time:   now.UTC(),
	}

	p := b.positions[req.Asset]
	switch req.Type {
	case models.SideBuy:
		if notional.GreaterThan(b.balance) {
			return "Insufficient balance"
		}
		if p == nil {
			p = &position{amount: decimal.Zero, avgCost: decimal.Zero}
			b.positions[req.Asset] = p
		}
		cost := p.amount.Mul(p.avgCost).Add(notional)
		p.amount = p.amount.Add(req.Amount)
		p.avgCost = cost.Div(p.amount)
		b.balance = b.balance.Sub(notional)
	case models.SideSell:
		if p == nil || p.amount.LessThan(req.Amount) {
			return "Insufficient holdings"
		}
		trade.PnL = req.Price.Sub(p.avgCost).Mul(req.Amount)
		p.amount = p.amount.Sub(req.Amount)
		if p.amount.IsZero() {
			delete(b.positions, req.Asset)
		}
		b.balance = b.balance.Add(notional)
	}

	b.trades = append([]models.DemoTrade{trade}, b.trades...)
	return ""
}

func (s *Server) demoAccount(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.current(c).demo.view())
}

func (s *Server) demoTrade(c *gin.Context) {
	var req models.DemoTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid trade")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book := s.current(c).demo
	if msg := book.execute(req, time.Now()); msg != "" {
		badRequest(c, msg)
		return
	}
	c.JSON(http.StatusOK, book.view())
}

func (s *Server) demoReset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.current(c)
	acct.demo = newDemoBook()
	c.JSON(http.StatusOK, acct.demo.view())
}
