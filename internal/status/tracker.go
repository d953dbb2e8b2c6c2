// internal/status/tracker.go
package status

import (
	"sync"
	"time"

	"github.com/tamzrod/meterhub/internal/fault"
	"github.com/tamzrod/meterhub/internal/live"
)

// InfoFunc reports the liveness of a source's value.
type InfoFunc func(now time.Time) live.Info

// Tracker owns the health state of every source.
// Observe is fed by the pollers; Tick is driven by a 1 Hz ticker.
type Tracker struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
}

type entry struct {
	info     InfoFunc
	snap     Snapshot
	lastErr  string
	lastRead time.Time
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*entry)}
}

// Add registers a source in the unknown state.
func (t *Tracker) Add(name string, info InfoFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[name]; !exists {
		t.order = append(t.order, name)
	}
	t.entries[name] = &entry{
		info: info,
		snap: Snapshot{Health: HealthUnknown},
	}
}

// Observe records the outcome of one read.
// Unknown sources are ignored.
func (t *Tracker) Observe(name string, err error, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	if e == nil {
		return
	}
	e.lastRead = at

	if err == nil {
		// Recovery / OK
		e.snap.Health = HealthOK
		e.snap.LastErrorCode = 0
		e.snap.SecondsInError = 0
		e.lastErr = ""
		return
	}

	e.snap.LastErrorCode = fault.Code(err)
	e.lastErr = err.Error()
	if e.info != nil && e.info(at).Present {
		e.snap.Health = HealthStale
	} else {
		e.snap.Health = HealthError
	}
	// NOTE: seconds_in_error increments on Tick only.
}

// Tick advances seconds_in_error of every source that is not OK.
func (t *Tracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.snap.Health != HealthOK && e.snap.SecondsInError < MaxSeconds {
			e.snap.SecondsInError++
		}
	}
}

// Snapshot returns the status of name at now.
func (t *Tracker) Snapshot(name string, now time.Time) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[name]
	if e == nil {
		return Snapshot{}, false
	}
	return e.current(now), true
}

// Reports returns the JSON view of every source in registration order.
func (t *Tracker) Reports(now time.Time) []Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Report, 0, len(t.order))
	for _, name := range t.order {
		e := t.entries[name]
		s := e.current(now)

		r := Report{
			Source:         name,
			Health:         HealthName(s.Health),
			LastErrorCode:  s.LastErrorCode,
			LastError:      e.lastErr,
			SecondsInError: s.SecondsInError,
		}
		if e.info != nil {
			info := e.info(now)
			r.Present = info.Present
			if !info.ProducedAt.IsZero() {
				p := info.ProducedAt
				r.ProducedAt = &p
			}
			if !info.ExpiresAt.IsZero() {
				x := info.ExpiresAt
				r.ExpiresAt = &x
			}
		}
		if !e.lastRead.IsZero() {
			l := e.lastRead
			r.LastReadAt = &l
		}
		out = append(out, r)
	}
	return out
}

// current folds the cell state into the snapshot: a stale value that
// has since lapsed is an error, and value_age follows the cell.
func (e *entry) current(now time.Time) Snapshot {
	s := e.snap
	s.ValueAge = MaxSeconds

	if e.info == nil {
		return s
	}
	info := e.info(now)
	if s.Health == HealthStale && !info.Present {
		s.Health = HealthError
	}
	if info.Present && !info.ProducedAt.IsZero() {
		age := now.Sub(info.ProducedAt) / time.Second
		if age < 0 {
			age = 0
		}
		if age < time.Duration(MaxSeconds) {
			s.ValueAge = uint16(age)
		}
	}
	return s
}
