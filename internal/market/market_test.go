package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/internal/sandbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newBackend(t *testing.T) (*sandbox.Server, string) {
	t.Helper()
	backend := sandbox.New()
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv.URL + "/simple/price"
}

func TestQuote(t *testing.T) {
	backend, url := newBackend(t)
	backend.SetPrice("bitcoin", decimal.RequireFromString("64250.5"))

	src := NewPriceSource(url, nil)
	q, err := src.Quote(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", q.Asset)
	assert.True(t, q.USDPrice.Equal(decimal.RequireFromString("64250.5")), q.USDPrice.String())
	assert.False(t, q.FetchedAt.IsZero())
}

func TestQuotes_AllAssetsInOneRequest(t *testing.T) {
	backend, url := newBackend(t)
	var calls atomic.Int32
	var ids atomic.Value
	backend.Override(http.MethodGet, "/simple/price", func(c *gin.Context) {
		calls.Add(1)
		ids.Store(c.Query("ids"))
		c.JSON(http.StatusOK, gin.H{
			"bitcoin":     gin.H{"usd": 64000},
			"ethereum":    gin.H{"usd": 3100.25},
			"binancecoin": gin.H{"usd": "580"},
		})
	})

	quotes, err := NewPriceSource(url, nil).Quotes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "binancecoin,bitcoin,ethereum", ids.Load())
	require.Len(t, quotes, 3)
	assert.True(t, quotes["BNBUSDT"].USDPrice.Equal(decimal.NewFromInt(580)))
	assert.True(t, quotes["ETHUSDT"].USDPrice.Equal(decimal.RequireFromString("3100.25")))
}

func TestQuote_Unavailable(t *testing.T) {
	backend, url := newBackend(t)
	src := NewPriceSource(url, nil)

	_, err := src.Quote(context.Background(), "DOGEUSDT")
	assert.ErrorIs(t, err, apperrors.ErrPriceUnavailable)

	backend.Override(http.MethodGet, "/simple/price", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	_, err = src.Quote(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, apperrors.ErrPriceUnavailable)

	backend.Override(http.MethodGet, "/simple/price", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"bitcoin": gin.H{"usd": 0}})
	})
	_, err = src.Quote(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, apperrors.ErrPriceUnavailable)
}

func TestQuote_HTTPFailure(t *testing.T) {
	backend, url := newBackend(t)
	backend.Override(http.MethodGet, "/simple/price", func(c *gin.Context) {
		c.String(http.StatusTooManyRequests, "slow down")
	})

	_, err := NewPriceSource(url, nil).Quote(context.Background(), "BTCUSDT")
	var httpErr *apperrors.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Status)
}

func TestQuote_Malformed(t *testing.T) {
	backend, url := newBackend(t)
	backend.Override(http.MethodGet, "/simple/price", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(`["bitcoin"]`))
	})

	_, err := NewPriceSource(url, nil).Quote(context.Background(), "BTCUSDT")
	var malformed *apperrors.MalformedResponseError
	assert.ErrorAs(t, err, &malformed)
}

func TestNewPriceSource_LowercaseConfigKeys(t *testing.T) {
	src := NewPriceSource("http://unused", map[string]string{"btcusdt": "bitcoin"})
	assert.True(t, src.Supports("BTCUSDT"))
	assert.Equal(t, []string{"BTCUSDT"}, src.Assets())
}

func TestPriceTracker_KeepsLastQuoteOnFailure(t *testing.T) {
	backend, url := newBackend(t)
	backend.SetPrice("bitcoin", decimal.NewFromInt(60000))

	var failing atomic.Bool
	backend.Override(http.MethodGet, "/simple/price", func(c *gin.Context) {
		if failing.Load() {
			c.String(http.StatusServiceUnavailable, "down")
			c.Abort()
			return
		}
		c.JSON(http.StatusOK, gin.H{"bitcoin": gin.H{"usd": 60000}})
	})

	updates := make(chan error, 16)
	tracker := NewPriceTracker(NewPriceSource(url, nil), 20*time.Millisecond, []string{"BTCUSDT"},
		WithOnUpdate(func(_ map[string]models.PriceQuote, err error) {
			select {
			case updates <- err:
			default:
			}
		}))
	tracker.Start(context.Background())
	defer tracker.Stop()

	select {
	case err := <-updates:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("no first quote")
	}
	first, ok := tracker.Latest("BTCUSDT")
	require.True(t, ok)

	failing.Store(true)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-updates:
			if err == nil {
				continue
			}
			q, ok := tracker.Latest("BTCUSDT")
			require.True(t, ok, "quote dropped after a failed refresh")
			assert.True(t, q.USDPrice.Equal(first.USDPrice))
			assert.Equal(t, first.FetchedAt, q.FetchedAt)
			assert.Error(t, tracker.Err())
			return
		case <-deadline:
			t.Fatal("no failed refresh observed")
		}
	}
}

func TestPriceTracker_NoUpdateAfterStop(t *testing.T) {
	_, url := newBackend(t)

	var after atomic.Bool
	var stopped atomic.Bool
	tracker := NewPriceTracker(NewPriceSource(url, nil), 5*time.Millisecond, nil,
		WithOnUpdate(func(map[string]models.PriceQuote, error) {
			if stopped.Load() {
				after.Store(true)
			}
		}))
	tracker.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	tracker.Stop()
	stopped.Store(true)
	time.Sleep(30 * time.Millisecond)

	assert.False(t, after.Load())
	assert.Len(t, tracker.Snapshot(), 3)
}

func TestChartFor(t *testing.T) {
	c, ok := ChartFor("ethusdt")
	require.True(t, ok)
	assert.Equal(t, "ETHUSD", c.Symbol)

	_, ok = ChartFor("XRPUSDT")
	assert.False(t, ok)

	assert.Equal(t, "BNB", BaseAsset("BNBUSDT"))
}

func TestPriceTracker_RefreshWithoutStart(t *testing.T) {
	backend, url := newBackend(t)
	backend.SetPrice("ethereum", decimal.NewFromInt(3000))

	tracker := NewPriceTracker(NewPriceSource(url, nil), time.Hour, []string{"ethusdt"})
	_, ok := tracker.Latest("ETHUSDT")
	require.False(t, ok)

	require.NoError(t, tracker.Refresh(context.Background()))
	q, ok := tracker.Latest("ETHUSDT")
	require.True(t, ok)
	assert.True(t, q.USDPrice.Equal(decimal.NewFromInt(3000)))
	assert.NoError(t, tracker.Err())
}
