package utils

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base, ceiling := 100*time.Millisecond, time.Second
	assert.Equal(t, 100*time.Millisecond, Backoff(0, base, ceiling))
	assert.Equal(t, 400*time.Millisecond, Backoff(2, base, ceiling))
	assert.Equal(t, time.Second, Backoff(4, base, ceiling))
	assert.Equal(t, time.Second, Backoff(1000, base, ceiling))
}

// Property: delays never shrink as attempts grow and never pass the ceiling.
func TestProperty_BackoffBounded(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("monotonic and capped", prop.ForAll(
		func(attempt int, baseMs int64) bool {
			base, ceiling := time.Duration(baseMs)*time.Millisecond, 30*time.Second
			d, next := Backoff(attempt, base, ceiling), Backoff(attempt+1, base, ceiling)
			return d <= next && next <= ceiling
		},
		gen.IntRange(0, 200),
		gen.Int64Range(1, 5000),
	))

	properties.TestingRun(t)
}

func TestSleep(t *testing.T) {
	assert.True(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.False(t, Sleep(ctx, 0))
}
