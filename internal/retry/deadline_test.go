// internal/retry/deadline_test.go
package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/meterhub/internal/fault"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func TestUntil_SucceedsAfterFailures(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	calls := 0

	err := Until(clk, clk.now.Add(time.Second), 100*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, clk.sleeps)
}

func TestUntil_TimeoutWrapsLastError(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	errBusy := errors.New("port busy")
	calls := 0

	err := Until(clk, clk.now.Add(250*time.Millisecond), 100*time.Millisecond, func() error {
		calls++
		return errBusy
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrTimeout)
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 3, calls)
	// last sleep is cut to the remaining time
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond}, clk.sleeps)
}

func TestUntil_DeadlineAlreadyPassed(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}

	err := Until(clk, clk.now, 10*time.Millisecond, func() error {
		t.Fatal("op must not run")
		return nil
	})

	assert.ErrorIs(t, err, fault.ErrTimeout)
}
