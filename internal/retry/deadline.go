// internal/retry/deadline.go
package retry

import (
	"fmt"
	"time"

	"github.com/tamzrod/meterhub/internal/fault"
)

// Clock abstracts wall time for deadline loops.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Until calls op until it succeeds or the deadline passes.
// Between attempts it sleeps backoff, cut short at the deadline.
// On expiry the returned error wraps fault.ErrTimeout and the last op error.
func Until(clk Clock, deadline time.Time, backoff time.Duration, op func() error) error {
	var last error

	for clk.Now().Before(deadline) {
		err := op()
		if err == nil {
			return nil
		}
		last = err

		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			break
		}
		if backoff < remaining {
			clk.Sleep(backoff)
		} else {
			clk.Sleep(remaining)
		}
	}

	if last == nil {
		return fmt.Errorf("retry: %w before first attempt", fault.ErrTimeout)
	}
	return fmt.Errorf("retry: %w: %w", fault.ErrTimeout, last)
}
