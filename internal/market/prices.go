// Package market holds the public market data the dashboard shows next to
// the account: USD quotes for the tradable pairs and the chart list.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"investdesk/internal/config"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/models"
)

// DefaultAssets maps the tradable pairs to their quote source coin ids.
var DefaultAssets = map[string]string{
	"BTCUSDT": "bitcoin",
	"ETHUSDT": "ethereum",
	"BNBUSDT": "binancecoin",
}

// PriceSource reads USD prices from a simple-price endpoint of the form
// GET <url>?ids=bitcoin,ethereum&vs_currencies=usd answering
// {"bitcoin":{"usd":64250.5},...}. No platform credential is sent.
type PriceSource struct {
	url    string
	assets map[string]string
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

// SourceOption configures a PriceSource.
type SourceOption func(*PriceSource)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) SourceOption {
	return func(s *PriceSource) { s.client = hc }
}

// WithSourceLogger sets the logger.
func WithSourceLogger(logger zerolog.Logger) SourceOption {
	return func(s *PriceSource) { s.logger = logging.WithComponent(logger, "prices") }
}

// NewPriceSource creates a source for the given pair -> coin id map. A nil
// or empty map uses DefaultAssets. Pair names are case-insensitive.
func NewPriceSource(quoteURL string, assets map[string]string, opts ...SourceOption) *PriceSource {
	if len(assets) == 0 {
		assets = DefaultAssets
	}
	norm := make(map[string]string, len(assets))
	for pair, coin := range assets {
		norm[strings.ToUpper(pair)] = coin
	}
	s := &PriceSource{
		url:    quoteURL,
		assets: norm,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewPriceSourceFromConfig creates a source from the [prices] section.
func NewPriceSourceFromConfig(cfg config.PricesConfig, logger zerolog.Logger) *PriceSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return NewPriceSource(cfg.QuoteURL, cfg.Assets,
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithSourceLogger(logger),
	)
}

// Assets returns the known pairs, sorted.
func (s *PriceSource) Assets() []string {
	out := make([]string, 0, len(s.assets))
	for pair := range s.assets {
		out = append(out, pair)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether asset has a quote source.
func (s *PriceSource) Supports(asset string) bool {
	_, ok := s.assets[strings.ToUpper(asset)]
	return ok
}

// Quote fetches one pair. An unknown pair, or one missing from the answer,
// gives ErrPriceUnavailable.
func (s *PriceSource) Quote(ctx context.Context, asset string) (models.PriceQuote, error) {
	quotes, err := s.Quotes(ctx, asset)
	if err != nil {
		return models.PriceQuote{}, err
	}
	q, ok := quotes[strings.ToUpper(asset)]
	if !ok {
		return models.PriceQuote{}, fmt.Errorf("%w: %s", apperrors.ErrPriceUnavailable, asset)
	}
	return q, nil
}

// Quotes fetches several pairs in one request, all known pairs when none
// are named. Pairs the source leaves out are absent from the result; it is
// an error only when none come back.
func (s *PriceSource) Quotes(ctx context.Context, assets ...string) (map[string]models.PriceQuote, error) {
	if len(assets) == 0 {
		assets = s.Assets()
	}

	coinToPair := make(map[string]string, len(assets))
	ids := make([]string, 0, len(assets))
	for _, a := range assets {
		pair := strings.ToUpper(a)
		coin, ok := s.assets[pair]
		if !ok {
			return nil, fmt.Errorf("%w: unknown asset %s", apperrors.ErrPriceUnavailable, a)
		}
		if _, dup := coinToPair[coin]; !dup {
			ids = append(ids, coin)
		}
		coinToPair[coin] = pair
	}

	body, err := s.get(ctx, ids)
	if err != nil {
		return nil, err
	}

	var payload map[string]map[string]json.Number
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewMalformedResponseError(s.url, apperrors.ShapeObject, "undecodable price payload", err)
	}

	at := s.now()
	out := make(map[string]models.PriceQuote, len(ids))
	for coin, pair := range coinToPair {
		raw, ok := payload[coin]["usd"]
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil || !price.IsPositive() {
			s.logger.Debug().Str("coin", coin).Str("value", raw.String()).Msg("Ignoring bad quote")
			continue
		}
		out[pair] = models.PriceQuote{Asset: pair, USDPrice: price, FetchedAt: at}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no quotes for %s", apperrors.ErrPriceUnavailable, strings.Join(ids, ","))
	}
	return out, nil
}

func (s *PriceSource) get(ctx context.Context, ids []string) ([]byte, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading prices: %w", err)
	}
	s.logger.Debug().
		Str("ids", q.Get("ids")).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Price fetch")

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewHTTPError(http.MethodGet, s.url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
