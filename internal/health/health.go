// Package health reports whether the live parts of a client session are
// working: push channels, refresh loops and the process itself.
package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc/iter"
)

// Status is the health of one component or of the whole report.
type Status string

const (
	StatusHealthy   Status = "HEALTHY"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"
)

// Component is the result of one check.
type Component struct {
	Name    string                 `json:"name"`
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Latency time.Duration          `json:"latency_ns"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Check inspects one component. Name and Latency are filled in by the
// monitor.
type Check func(ctx context.Context) Component

// Report is the outcome of running every check.
type Report struct {
	Status     Status      `json:"status"`
	Uptime     string      `json:"uptime"`
	CheckedAt  time.Time   `json:"checked_at"`
	Components []Component `json:"components"`
}

// Config holds the process thresholds.
type Config struct {
	Timeout            time.Duration
	MemoryThresholdMB  uint64
	GoroutineThreshold int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Timeout:            5 * time.Second,
		MemoryThresholdMB:  500,
		GoroutineThreshold: 1000,
	}
}

type namedCheck struct {
	name  string
	check Check
}

// Monitor runs registered checks on demand.
type Monitor struct {
	config Config
	start  time.Time

	mu     sync.RWMutex
	checks []namedCheck
}

// NewMonitor creates a monitor with the process checks registered.
func NewMonitor(config Config) *Monitor {
	m := &Monitor{config: config, start: time.Now()}
	m.Register("memory", m.checkMemory)
	m.Register("goroutines", m.checkGoroutines)
	return m
}

// Register adds a check. Checks run in registration order in the report.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, namedCheck{name: name, check: check})
}

// Run executes every check concurrently. A check that panics is reported
// unhealthy.
func (m *Monitor) Run(ctx context.Context) Report {
	m.mu.RLock()
	checks := append([]namedCheck(nil), m.checks...)
	m.mu.RUnlock()

	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	components := iter.Map(checks, func(nc *namedCheck) Component {
		return runCheck(ctx, nc.name, nc.check)
	})

	report := Report{
		Status:     StatusHealthy,
		Uptime:     time.Since(m.start).Round(time.Second).String(),
		CheckedAt:  time.Now(),
		Components: components,
	}
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func runCheck(ctx context.Context, name string, check Check) (c Component) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c = Component{Status: StatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		c.Name = name
		c.Latency = time.Since(start)
	}()
	return check(ctx)
}

// Handler serves the report as JSON. Degraded still answers 200.
func (m *Monitor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := m.Run(c.Request.Context())
		status := http.StatusOK
		if report.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// ErrorCheck turns an error probe into a check. A non-nil error reports
// failStatus with the error text.
func ErrorCheck(probe func() error, failStatus Status) Check {
	return func(ctx context.Context) Component {
		if err := probe(); err != nil {
			return Component{Status: failStatus, Message: err.Error()}
		}
		return Component{Status: StatusHealthy}
	}
}

func (m *Monitor) checkMemory(ctx context.Context) Component {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	allocMB := ms.Alloc / 1024 / 1024
	c := Component{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("Memory usage: %d MB", allocMB),
		Details: map[string]interface{}{
			"alloc_mb": allocMB,
			"sys_mb":   ms.Sys / 1024 / 1024,
			"num_gc":   ms.NumGC,
		},
	}
	if m.config.MemoryThresholdMB > 0 && allocMB > m.config.MemoryThresholdMB {
		c.Status = StatusDegraded
		c.Message = fmt.Sprintf("Memory usage high: %d MB", allocMB)
	}
	return c
}

func (m *Monitor) checkGoroutines(ctx context.Context) Component {
	n := runtime.NumGoroutine()
	c := Component{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("Goroutine count: %d", n),
		Details: map[string]interface{}{"count": n},
	}
	if m.config.GoroutineThreshold > 0 && n > m.config.GoroutineThreshold {
		c.Status = StatusDegraded
		c.Message = fmt.Sprintf("High goroutine count: %d", n)
	}
	return c
}
