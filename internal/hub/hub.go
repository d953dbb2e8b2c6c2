// internal/hub/hub.go
package hub

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/metrics"
	"github.com/tamzrod/meterhub/internal/trace"
)

const (
	DefaultCycle = time.Second

	// TimeLayout formats the record "time" key in local time.
	TimeLayout = "2006-01-02 15:04:05"
)

// Record is the merged output of one cycle.
type Record = trace.Record

// Getter resolves a path against a source's visible value.
type Getter interface {
	Get(now time.Time, def any, path ...any) any
}

// Sender delivers one command query to a device.
type Sender interface {
	Send(ctx context.Context, query string) error
}

// Sink receives every record.
type Sink interface {
	Name() string
	Deliver(rec Record) error
}

// Pusher consumes records without reporting errors (trace, archive).
type Pusher interface {
	Push(rec Record)
}

// Term is one signed summand of a computed output.
type Term struct {
	Source string
	Path   []any
	Sign   int
}

// Output is one record key. It is either Source+Path or a sum of Terms.
type Output struct {
	Key     string
	Source  string
	Path    []any
	Default any
	Terms   []Term
}

// PublishKey is a key external clients may set, with its expiry.
type PublishKey struct {
	Key     string
	Timeout time.Duration
}

// Config is the runtime config of the hub.
type Config struct {
	Sources  map[string]Getter
	Outputs  []Output
	Publish  []PublishKey
	Commands map[string]Sender
	Pushers  []Pusher
	Sinks    []Sink
	Cycle    time.Duration
	Log      *logrus.Entry
	Now      func() time.Time
}

type published struct {
	value   any
	expires time.Time
}

// Hub builds one record per cycle from the sources' cells. It never
// talks to a meter itself; it only observes.
type Hub struct {
	cfg Config
	log *logrus.Entry
	now func() time.Time

	mu        sync.Mutex
	pending   map[string]string // target -> raw query, "" means empty slot
	published map[string]published

	sinks []*sinkWorker

	last atomic.Pointer[Record]
}

func New(cfg Config) (*Hub, error) {
	for _, o := range cfg.Outputs {
		if o.Key == "" {
			return nil, errors.New("hub: output key required")
		}
		if o.Source != "" {
			if _, ok := cfg.Sources[o.Source]; !ok {
				return nil, errors.New("hub: output " + o.Key + ": unknown source " + o.Source)
			}
		}
		for _, t := range o.Terms {
			if _, ok := cfg.Sources[t.Source]; !ok {
				return nil, errors.New("hub: output " + o.Key + ": unknown source " + t.Source)
			}
		}
	}
	if cfg.Cycle <= 0 {
		cfg.Cycle = DefaultCycle
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	pending := make(map[string]string, len(cfg.Commands))
	for target := range cfg.Commands {
		pending[target] = ""
	}

	h := &Hub{
		cfg:       cfg,
		log:       log.WithField("component", "hub"),
		now:       now,
		pending:   pending,
		published: make(map[string]published),
	}
	for _, s := range cfg.Sinks {
		h.sinks = append(h.sinks, newSinkWorker(s, h.log))
	}
	return h, nil
}

// Run executes one cycle per tick until ctx is cancelled. Sinks are
// served by their own goroutines; Run returns after they have stopped.
func (h *Hub) Run(ctx context.Context) {
	wait := h.startSinks(ctx)
	defer wait()

	ticker := time.NewTicker(h.cfg.Cycle)
	defer ticker.Stop()

	for {
		h.Cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startSinks starts one delivery goroutine per sink. The returned func
// waits for them to stop after ctx is cancelled.
func (h *Hub) startSinks(ctx context.Context) func() {
	var wg sync.WaitGroup
	for _, w := range h.sinks {
		wg.Add(1)
		go func(w *sinkWorker) {
			defer wg.Done()
			w.run(ctx)
		}(w)
	}
	return wg.Wait
}

// Cycle runs commands, builds the record, publishes it as the latest one,
// hands it to the pushers and queues it for the sinks. Sink I/O never
// runs on the cycle goroutine.
func (h *Hub) Cycle(ctx context.Context) Record {
	t0 := h.now()

	rec := Record{
		"time":      t0.Local().Format(TimeLayout),
		"timestamp": t0.Unix(),
	}

	h.dispatchCommands(ctx)

	for _, o := range h.cfg.Outputs {
		rec[o.Key] = h.resolve(o, t0)
	}

	h.applyPublished(rec, t0)

	elapsed := h.now().Sub(t0)
	rec["measure_time"] = math.Round(elapsed.Seconds()*1000) / 1000
	metrics.CycleDuration.Observe(elapsed.Seconds())

	h.last.Store(&rec)

	for _, p := range h.cfg.Pushers {
		p.Push(rec)
	}
	for _, w := range h.sinks {
		w.offer(rec)
	}
	return rec
}

// Last returns the latest record, nil before the first cycle.
func (h *Hub) Last() Record {
	if r := h.last.Load(); r != nil {
		return *r
	}
	return nil
}

// ---- outputs ----

func (h *Hub) resolve(o Output, now time.Time) any {
	if len(o.Terms) == 0 {
		return h.cfg.Sources[o.Source].Get(now, o.Default, o.Path...)
	}

	var sum number
	for _, t := range o.Terms {
		v := h.cfg.Sources[t.Source].Get(now, int64(0), t.Path...)
		if !sum.add(v, t.Sign) {
			h.log.WithFields(logrus.Fields{"key": o.Key, "source": t.Source}).Debug("term is not a number")
		}
	}
	return sum.value()
}

// number sums integers exactly and switches to float64 on the first float.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n *number) add(v any, sign int) bool {
	if sign == 0 {
		sign = 1
	}
	switch x := v.(type) {
	case int64:
		n.addInt(x * int64(sign))
	case int:
		n.addInt(int64(x) * int64(sign))
	case float64:
		n.addFloat(x * float64(sign))
	default:
		return false
	}
	return true
}

func (n *number) addInt(v int64) {
	if n.isFloat {
		n.f += float64(v)
		return
	}
	n.i += v
}

func (n *number) addFloat(v float64) {
	if !n.isFloat {
		n.isFloat = true
		n.f = float64(n.i)
	}
	n.f += v
}

func (n *number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}
