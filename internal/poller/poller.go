// internal/poller/poller.go
package poller

import (
	"errors"
	"time"
)

// Config is the minimal runtime config the poller needs.
type Config struct {
	Name     string
	Interval time.Duration
}

// Poller is a dumb, clock-driven reader.
// Its readers are read one after the other, never concurrently.
type Poller struct {
	cfg     Config
	readers []Reader
	now     func() time.Time
}

// New creates a poller with immutable config.
func New(cfg Config, readers ...Reader) (*Poller, error) {
	if cfg.Name == "" {
		return nil, errors.New("poller: name required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(readers) == 0 {
		return nil, errors.New("poller: at least one reader required")
	}
	return &Poller{cfg: cfg, readers: readers, now: time.Now}, nil
}

// Name returns the poller name.
func (p *Poller) Name() string { return p.cfg.Name }

// Interval returns the tick interval.
func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Readers returns the names of the readers in poll order.
func (p *Poller) Readers() []string {
	out := make([]string, len(p.readers))
	for i, r := range p.readers {
		out[i] = r.Name()
	}
	return out
}

// PollOnce performs exactly one poll cycle.
// A failing reader does not abort the cycle; every reader gets its turn.
func (p *Poller) PollOnce() PollResult {
	res := PollResult{
		Poller:  p.cfg.Name,
		At:      p.now(),
		Results: make([]ReadResult, 0, len(p.readers)),
	}

	for _, r := range p.readers {
		t0 := p.now()
		err := r.Read()
		t1 := p.now()
		res.Results = append(res.Results, ReadResult{
			Source:  r.Name(),
			At:      t1,
			Elapsed: t1.Sub(t0),
			Err:     err,
		})
	}
	return res
}
