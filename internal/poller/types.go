// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/meterhub/internal/live"
)

// Reader is one driver. Read performs exactly one acquisition and
// updates the driver's own liveness cell.
type Reader interface {
	Name() string
	Read() error
}

// Source is a Reader whose value can be observed.
type Source interface {
	Reader
	Get(now time.Time, def any, path ...any) any
	Info(now time.Time) live.Info
}

// ReadResult is the outcome of one driver read.
type ReadResult struct {
	Source  string
	At      time.Time // when Read returned
	Elapsed time.Duration
	Err     error // non-nil means no value this cycle
}

// PollResult is produced by one poll cycle of a poller.
type PollResult struct {
	Poller  string
	At      time.Time
	Results []ReadResult
}
