// internal/sml/meter.go
package sml

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/goburrow/serial"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/fault"
	"github.com/tamzrod/meterhub/internal/live"
	"github.com/tamzrod/meterhub/internal/metrics"
)

const (
	// maxBuffer bounds the receive buffer while waiting for an end marker.
	maxBuffer = 64 * 1024

	readChunk = 8192
)

// Opener opens the IR coupler port.
type Opener func() (io.ReadCloser, error)

// SerialOpener opens address as 9600 8N1 with a short read timeout.
func SerialOpener(address string, readTimeout time.Duration) Opener {
	return func() (io.ReadCloser, error) {
		return serial.Open(&serial.Config{
			Address:  address,
			BaudRate: 9600,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  readTimeout,
		})
	}
}

// Meter reads SML frames pushed by a meter's optical interface.
type Meter struct {
	name string
	open Opener
	log  *logrus.Entry
	now  func() time.Time

	port  io.ReadCloser
	rx    []byte
	chunk []byte

	cell *live.Cell[map[string]int64]
}

// Config is the runtime config of one SML meter.
type Config struct {
	Name     string
	Open     Opener
	Lifetime time.Duration
	Log      *logrus.Entry
	OnExpire func(name string)
}

// NewMeter creates a meter. The port is opened on the first Read.
func NewMeter(cfg Config) (*Meter, error) {
	if cfg.Name == "" {
		return nil, errors.New("sml: name required")
	}
	if cfg.Open == nil {
		return nil, errors.New("sml: opener required")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("device", cfg.Name)

	return &Meter{
		name:  cfg.Name,
		open:  cfg.Open,
		log:   log,
		now:   time.Now,
		chunk: make([]byte, readChunk),
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

// ErrNoFrame is returned when a read completed no valid frame and no
// dataset is visible any more.
var ErrNoFrame = errors.New("sml: no complete frame")

// Read pulls what the port has buffered and decodes every complete frame.
// It returns nil if at least one valid dataset was found, or if nothing
// failed and the previous dataset is still within its lifetime.
func (m *Meter) Read() error {
	t0 := m.now()

	lastErr := m.fill()
	if lastErr != nil {
		m.log.WithError(lastErr).Debug("read failed")
	}

	found, extracted := false, false
	for {
		rest, frame := ExtractFrame(m.rx)
		m.rx = rest
		if frame == nil {
			break
		}
		extracted = true
		m.log.WithField("len", len(frame)).Debug("found frame")

		ds, fieldErrs, err := DecodeFrame(frame)
		if err != nil {
			metrics.Frames.WithLabelValues("checksum").Inc()
			m.log.WithError(err).Debug("frame dropped")
			lastErr = err
			continue
		}
		metrics.Frames.WithLabelValues("ok").Inc()
		for _, fe := range fieldErrs {
			m.log.WithError(fe).Debug("field skipped")
		}

		m.log.WithField("data", map[string]int64(ds)).Debug("valid sml data")
		m.cell.Update(ds, t0)
		found = true
	}

	switch {
	case len(m.rx) > maxBuffer:
		m.log.WithField("len", len(m.rx)).Debug("receive buffer overflow, flushed")
		m.rx = nil
	case extracted:
		// rest aliases the consumed frames
		m.rx = append([]byte(nil), m.rx...)
	}

	if found {
		metrics.ObserveRead(m.name, true)
		return nil
	}

	now := m.now()
	m.cell.Miss(now)

	// No frame completed yet, but the last dataset is still within its
	// lifetime: the meter simply has not pushed again.
	if lastErr == nil && m.cell.Info(now).Present {
		m.log.WithField("buffered", len(m.rx)).Debug("waiting for frame")
		return nil
	}

	metrics.ObserveRead(m.name, false)
	if lastErr == nil {
		lastErr = ErrNoFrame
	}
	return lastErr
}

// Get resolves path against the visible dataset.
func (m *Meter) Get(now time.Time, def any, path ...any) any {
	return m.cell.Get(now, def, path...)
}

// Info describes the cell at now.
func (m *Meter) Info(now time.Time) live.Info { return m.cell.Info(now) }

// fill appends one chunk from the port, opening it if needed.
// A port error closes the port and drops the buffer.
func (m *Meter) fill() error {
	if m.port == nil {
		p, err := m.open()
		if err != nil {
			m.rx = nil
			return fault.Transport("sml open", err)
		}
		m.port = p
	}

	n, err := m.port.Read(m.chunk)
	if n > 0 {
		m.rx = append(m.rx, m.chunk[:n]...)
	}
	if err == nil || isTimeout(err) {
		return nil
	}

	_ = m.port.Close()
	m.port = nil
	m.rx = nil
	return fault.Transport("sml read", err)
}

// Close releases the port.
func (m *Meter) Close() error {
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	m.port = nil
	return err
}

func isTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout) || os.IsTimeout(err)
}
