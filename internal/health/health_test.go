package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_AllHealthy(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.Register("signals", ErrorCheck(func() error { return nil }, StatusUnhealthy))

	report := m.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	require.Len(t, report.Components, 3)
	assert.Equal(t, "memory", report.Components[0].Name)
	assert.Equal(t, "goroutines", report.Components[1].Name)
	assert.Equal(t, "signals", report.Components[2].Name)
}

func TestMonitor_WorstStatusWins(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.Register("prices", ErrorCheck(func() error { return errors.New("quote source down") }, StatusDegraded))
	assert.Equal(t, StatusDegraded, m.Run(context.Background()).Status)

	m.Register("trades", ErrorCheck(func() error { return errors.New("channel closed") }, StatusUnhealthy))
	report := m.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "channel closed", report.Components[3].Message)
}

func TestMonitor_PanickingCheck(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	m.Register("broken", func(context.Context) Component { panic("boom") })

	report := m.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	c := report.Components[2]
	assert.Equal(t, "broken", c.Name)
	assert.Contains(t, c.Message, "boom")
}

func TestMonitor_GoroutineThreshold(t *testing.T) {
	m := NewMonitor(Config{GoroutineThreshold: 1})
	report := m.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Components[1].Status)
}

func TestMonitor_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMonitor(DefaultConfig())
	r := gin.New()
	r.GET("/health", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.Register("session", ErrorCheck(func() error { return errors.New("expired") }, StatusUnhealthy))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Len(t, report.Components, 3)
}
