package dashboard

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/models"
	"investdesk/internal/poll"
)

// DemoAPI is the part of the API client the demo account uses.
type DemoAPI interface {
	DemoAccount(ctx context.Context) (*models.DemoAccount, error)
	DemoTrade(ctx context.Context, req models.DemoTradeRequest) (*models.DemoAccount, error)
	DemoReset(ctx context.Context) (*models.DemoAccount, error)
}

// Quotes supplies the price a demo trade executes at.
type Quotes interface {
	Latest(asset string) (models.PriceQuote, bool)
}

// DemoDesk holds the demo account. Trades and resets replace it with the
// server's answer, and a refresh that started before one of them is
// dropped when it lands.
type DemoDesk struct {
	api      DemoAPI
	quotes   Quotes
	logger   zerolog.Logger
	onChange func()

	// tradeMu serialises trades and resets.
	tradeMu sync.Mutex

	mu      sync.RWMutex
	account *models.DemoAccount
	err     error
	gen     uint64
}

// NewDemoDesk creates a desk trading at the prices in quotes, which may be
// nil when only resets and reads are needed.
func NewDemoDesk(client DemoAPI, quotes Quotes, logger zerolog.Logger) *DemoDesk {
	return &DemoDesk{
		api:    client,
		quotes: quotes,
		logger: logging.WithComponent(logger, "demo"),
	}
}

// Load reads the account from the server.
func (k *DemoDesk) Load(ctx context.Context) error {
	r, err := k.fetch(ctx)
	k.refresh(poll.Result[demoFetch]{Value: r, Err: err})
	return err
}

// Account returns the last account and the error of the last read.
func (k *DemoDesk) Account() (*models.DemoAccount, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.account, k.err
}

// demoFetch is a read tagged with the generation it started from.
type demoFetch struct {
	account *models.DemoAccount
	gen     uint64
}

func (k *DemoDesk) fetch(ctx context.Context) (demoFetch, error) {
	k.mu.RLock()
	gen := k.gen
	k.mu.RUnlock()
	account, err := k.api.DemoAccount(ctx)
	return demoFetch{account: account, gen: gen}, err
}

func (k *DemoDesk) refresh(r poll.Result[demoFetch]) {
	k.mu.Lock()
	if r.Value.gen != k.gen {
		k.mu.Unlock()
		return
	}
	if r.Err != nil {
		k.err = r.Err
	} else {
		k.account, k.err = r.Value.account, nil
	}
	k.mu.Unlock()
	k.changed()
}

func (k *DemoDesk) replace(account *models.DemoAccount) {
	k.mu.Lock()
	k.account, k.err = account, nil
	k.gen++
	k.mu.Unlock()
	k.changed()
}

func (k *DemoDesk) changed() {
	if k.onChange != nil {
		k.onChange()
	}
}

// Trade places a demo order at the current quote. The price must be known
// and the amount positive; nothing is sent otherwise. On error the account
// is left as it was.
func (k *DemoDesk) Trade(ctx context.Context, asset string, side models.TradeSide, amount decimal.Decimal) (*models.DemoAccount, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if !side.Valid() {
		return nil, apperrors.NewValidationError("type", side, "Trade type must be Buy or Sell.")
	}

	var quote models.PriceQuote
	ok := false
	if k.quotes != nil {
		quote, ok = k.quotes.Latest(asset)
	}
	if !ok || !quote.USDPrice.IsPositive() {
		return nil, apperrors.ErrPriceUnavailable
	}
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	k.tradeMu.Lock()
	defer k.tradeMu.Unlock()

	account, err := k.api.DemoTrade(ctx, models.DemoTradeRequest{
		Asset:  asset,
		Type:   side,
		Amount: amount,
		Price:  quote.USDPrice,
	})
	if err != nil {
		k.logger.Info().Err(err).Str("asset", asset).Str("side", string(side)).Msg("Demo trade refused")
		return nil, err
	}
	k.replace(account)
	return account, nil
}

// Reset restores the starting balance.
func (k *DemoDesk) Reset(ctx context.Context) (*models.DemoAccount, error) {
	k.tradeMu.Lock()
	defer k.tradeMu.Unlock()

	account, err := k.api.DemoReset(ctx)
	if err != nil {
		return nil, err
	}
	k.replace(account)
	return account, nil
}

// Holding returns the amount held in asset.
func (k *DemoDesk) Holding(asset string) decimal.Decimal {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.account == nil {
		return decimal.Zero
	}
	return k.account.Holding(strings.ToUpper(asset))
}
