// internal/live/cell.go
package live

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configure a Cell.
type Options struct {
	// Name identifies the source in logs and hooks.
	Name string

	// Lifetime is the grace window after a successful write.
	// Zero means the value is only visible until the next failed read.
	Lifetime time.Duration

	Log *logrus.Entry

	// OnExpire is called once per lapse, after the value was cleared.
	OnExpire func(name string)
}

// state is published as a whole and never mutated after publish.
type state[T any] struct {
	value      T
	present    bool
	producedAt time.Time

	// zero expiresAt means expiry is disarmed.
	expiresAt time.Time
}

// Cell holds the latest value of one source.
// One goroutine writes (Update/Miss); any number of goroutines read.
type Cell[T any] struct {
	name     string
	lifetime time.Duration
	log      *logrus.Entry
	onExpire func(string)

	cur atomic.Pointer[state[T]]
}

// New creates an absent cell. With a lifetime, expiry is armed from now
// so a source that never delivers still reports its lapse once.
func New[T any](opts Options) *Cell[T] {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	c := &Cell[T]{
		name:     opts.Name,
		lifetime: opts.Lifetime,
		log:      log,
		onExpire: opts.OnExpire,
	}

	st := &state[T]{}
	if c.lifetime > 0 {
		st.expiresAt = time.Now().Add(c.lifetime)
	}
	c.cur.Store(st)
	return c
}

// Name returns the source name.
func (c *Cell[T]) Name() string { return c.name }

// Lifetime returns the configured grace window.
func (c *Cell[T]) Lifetime() time.Duration { return c.lifetime }

// Update replaces the value. at is the start of the read that produced it.
func (c *Cell[T]) Update(v T, at time.Time) {
	st := &state[T]{
		value:      v,
		present:    true,
		producedAt: at,
	}
	if c.lifetime > 0 {
		st.expiresAt = at.Add(c.lifetime)
	}
	c.cur.Store(st)
}

// Miss records a failed read.
// Without a lifetime the value is cleared at once.
// With a lifetime only expiry is evaluated.
func (c *Cell[T]) Miss(now time.Time) {
	if c.lifetime <= 0 {
		if st := c.cur.Load(); st.present {
			c.cur.Store(&state[T]{producedAt: st.producedAt})
		}
		return
	}
	c.expire(now)
}

// Observe returns the value if it is visible at now.
func (c *Cell[T]) Observe(now time.Time) (T, bool) {
	st := c.cur.Load()
	if c.lifetime > 0 && !st.expiresAt.IsZero() && !now.Before(st.expiresAt) {
		c.expire(now)
		var zero T
		return zero, false
	}
	if !st.present {
		var zero T
		return zero, false
	}
	return st.value, true
}

// Get resolves path against the visible value.
// Any absence or shape mismatch returns def.
func (c *Cell[T]) Get(now time.Time, def any, path ...any) any {
	v, ok := c.Observe(now)
	if !ok {
		return def
	}
	out, ok := Lookup(v, path...)
	if !ok {
		return def
	}
	return out
}

// Info describes the cell at now.
type Info struct {
	Present    bool
	ProducedAt time.Time
	ExpiresAt  time.Time
}

// Info reports visibility and timestamps without triggering expiry.
func (c *Cell[T]) Info(now time.Time) Info {
	st := c.cur.Load()
	visible := st.present
	if c.lifetime > 0 && !st.expiresAt.IsZero() && !now.Before(st.expiresAt) {
		visible = false
	}
	return Info{
		Present:    visible,
		ProducedAt: st.producedAt,
		ExpiresAt:  st.expiresAt,
	}
}

// expire clears an armed, lapsed state. The swap succeeds for exactly one
// caller per lapse; a concurrent Update wins over it.
func (c *Cell[T]) expire(now time.Time) {
	st := c.cur.Load()
	if st.expiresAt.IsZero() || now.Before(st.expiresAt) {
		return
	}
	if !c.cur.CompareAndSwap(st, &state[T]{producedAt: st.producedAt}) {
		return
	}

	c.log.WithField("lifetime", c.lifetime).Error("data lifetime expired")
	if c.onExpire != nil {
		c.onExpire(c.name)
	}
}
