// internal/register/meter.go
package register

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/fault"
	"github.com/tamzrod/meterhub/internal/live"
	"github.com/tamzrod/meterhub/internal/metrics"
	"github.com/tamzrod/meterhub/internal/retry"
)

const (
	DefaultTimeout = time.Second

	openBackoff  = 100 * time.Millisecond
	fieldBackoff = 10 * time.Millisecond
)

// PollResult is the outcome of one read. Values holds only fields that were read.
type PollResult struct {
	Values  map[string]int64
	Elapsed time.Duration
	Err     error // first error seen; nil only if every field was read
}

// Config is the runtime config of one register meter.
type Config struct {
	Name     string
	Model    string
	Slave    byte
	Bus      *Bus
	Fields   []string // defaults to every field of the model
	Timeout  time.Duration
	Lifetime time.Duration
	Log      *logrus.Entry
	OnExpire func(name string)
	Clock    retry.Clock
}

// Meter reads one slave on a shared bus.
type Meter struct {
	name    string
	model   Model
	slave   byte
	bus     *Bus
	fields  []string
	timeout time.Duration
	clk     retry.Clock
	log     *logrus.Entry

	cell *live.Cell[map[string]int64]
}

// NewMeter validates cfg and creates an absent meter.
func NewMeter(cfg Config) (*Meter, error) {
	if cfg.Name == "" {
		return nil, errors.New("register: name required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("register %s: bus required", cfg.Name)
	}
	model, err := LookupModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	fields := cfg.Fields
	if len(fields) == 0 {
		fields = model.Fields()
	}
	for _, f := range fields {
		if _, ok := model[f]; !ok {
			return nil, fmt.Errorf("register %s: model %s has no field %q", cfg.Name, cfg.Model, f)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = retry.SystemClock{}
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("device", cfg.Name)

	return &Meter{
		name:    cfg.Name,
		model:   model,
		slave:   cfg.Slave,
		bus:     cfg.Bus,
		fields:  fields,
		timeout: timeout,
		clk:     clk,
		log:     log,
		cell: live.New[map[string]int64](live.Options{
			Name:     cfg.Name,
			Lifetime: cfg.Lifetime,
			Log:      log,
			OnExpire: cfg.OnExpire,
		}),
	}, nil
}

// Name returns the source name.
func (m *Meter) Name() string { return m.name }

// Cell exposes the liveness cell.
func (m *Meter) Cell() *live.Cell[map[string]int64] { return m.cell }

// Read reads the configured fields with the configured timeout.
func (m *Meter) Read() error {
	return m.ReadFields(m.fields, m.timeout).Err
}

// Get resolves path against the visible values.
func (m *Meter) Get(now time.Time, def any, path ...any) any {
	return m.cell.Get(now, def, path...)
}

// Info describes the cell at now.
func (m *Meter) Info(now time.Time) live.Info { return m.cell.Info(now) }

// ReadFields reads fields within timeout.
//
// Phase 1 acquires the bus (100ms backoff), phase 2 retries the pending
// fields round-robin (10ms backoff) so a dead register does not starve the
// others. The cell is updated only when every field arrived before the
// deadline; the partial result is returned either way.
func (m *Meter) ReadFields(fields []string, timeout time.Duration) PollResult {
	t0 := m.clk.Now()
	deadline := t0.Add(timeout)
	res := PollResult{Values: make(map[string]int64, len(fields))}

	var conn Conn
	res.Err = retry.Until(m.clk, deadline, openBackoff, func() error {
		c, err := m.bus.acquire(m.slave)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})

	if conn != nil {
		pending := append([]string(nil), fields...)
		res.Err = retry.Until(m.clk, deadline, fieldBackoff, func() error {
			var failed []string
			var errs []string
			for _, f := range pending {
				v, err := m.readField(conn, f)
				if err != nil {
					failed = append(failed, f)
					errs = append(errs, fmt.Sprintf("%s: %v", f, err))
					continue
				}
				res.Values[f] = v
			}
			pending = failed
			if len(pending) == 0 {
				return nil
			}
			return &fieldError{fields: pending, msg: strings.Join(errs, " | ")}
		})

		if err := m.bus.release(conn); err != nil {
			m.log.WithError(err).Debug("close failed")
		}
	}

	now := m.clk.Now()
	res.Elapsed = now.Sub(t0)
	if res.Err == nil && !now.Before(deadline) {
		res.Err = fmt.Errorf("register: read finished after deadline: %w", fault.ErrTimeout)
	}

	ok := res.Err == nil
	metrics.ObserveRead(m.name, ok)
	if ok {
		m.cell.Update(copyValues(res.Values), t0)
		m.log.WithFields(logrus.Fields{
			"elapsed": res.Elapsed,
			"data":    res.Values,
		}).Debug("read done")
	} else {
		m.cell.Miss(now)
		m.log.WithFields(logrus.Fields{
			"elapsed": res.Elapsed,
			"code":    fault.Code(res.Err),
		}).WithError(res.Err).Debug("read failed")
	}
	return res
}

func (m *Meter) readField(conn Conn, field string) (int64, error) {
	reg, ok := m.model[field]
	if !ok {
		return 0, fmt.Errorf("unknown field: %w", fault.ErrDecode)
	}
	b, err := conn.ReadInputRegisters(reg.Address, 2)
	if err != nil {
		return 0, err
	}
	return decodeFloat(b, reg.Scale)
}

// decodeFloat reads a big-endian float32 and returns round(value × scale), half to even.
func decodeFloat(b []byte, scale float64) (int64, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("register: %d bytes for float32: %w", len(b), fault.ErrDecode)
	}
	f := float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
	v := math.RoundToEven(f * scale)
	if math.IsNaN(v) || math.IsInf(v, 0) || v >= math.MaxInt64 || v < math.MinInt64 {
		return 0, fmt.Errorf("register: value %v out of range: %w", f, fault.ErrDecode)
	}
	return int64(v), nil
}

// fieldError lists the fields still missing after one pass.
type fieldError struct {
	fields []string
	msg    string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("pending %v: %s", e.fields, e.msg)
}

func copyValues(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
