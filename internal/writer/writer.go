// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tamzrod/meterhub/internal/status"
	"github.com/tamzrod/meterhub/internal/trace"
)

// NotAvailable is written for absent or non-numeric values.
const NotAvailable int32 = math.MinInt32

// StatusSource supplies per-source snapshots.
type StatusSource interface {
	Snapshot(name string, now time.Time) (status.Snapshot, bool)
}

// Mirror replicates record keys into holding registers as signed 32-bit
// big-endian pairs, and writes one status block per opted-in source.
type Mirror struct {
	plan    Plan
	cli     endpointClient
	tracker StatusSource
	now     func() time.Time

	status []*deviceStatusWriter
}

func New(plan Plan, cli endpointClient, tracker StatusSource) *Mirror {
	m := &Mirror{
		plan:    plan,
		cli:     cli,
		tracker: tracker,
		now:     time.Now,
	}
	for _, sp := range plan.Status {
		m.status = append(m.status, newDeviceStatusWriter(sp, cli))
	}
	return m
}

// Name identifies the sink.
func (m *Mirror) Name() string { return "mirror" }

// Deliver writes rec and the status blocks. Every write is attempted;
// errors are joined.
func (m *Mirror) Deliver(rec trace.Record) error {
	var errs []string

	// ------------------------------------------------------------
	// DATA WRITES (contiguous keys in one request)
	// ------------------------------------------------------------

	for _, run := range m.runs(rec) {
		if err := m.cli.WriteRegisters(m.plan.UnitID, run.addr, run.regs); err != nil {
			errs = append(errs, fmt.Sprintf(
				"writer: ep=%s unit=%d addr=%d qty=%d err=%v",
				m.plan.Endpoint, m.plan.UnitID, run.addr, len(run.regs), err,
			))
		}
	}

	// ------------------------------------------------------------
	// STATUS WRITES
	// ------------------------------------------------------------

	if m.tracker != nil {
		now := m.now()
		for _, sw := range m.status {
			snap, ok := m.tracker.Snapshot(sw.plan.Source, now)
			if !ok {
				continue
			}
			if err := sw.WriteStatus(snap); err != nil {
				errs = append(errs, fmt.Sprintf("source=%s: %v", sw.plan.Source, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

type run struct {
	addr uint16
	regs []uint16
}

// runs groups the key registers into contiguous write requests.
// Plan.Registers is sorted by address.
func (m *Mirror) runs(rec trace.Record) []run {
	var out []run
	for _, kr := range m.plan.Registers {
		hi, lo := splitInt32(toInt32(rec[kr.Key]))

		if n := len(out); n > 0 {
			last := &out[n-1]
			if uint32(last.addr)+uint32(len(last.regs)) == uint32(kr.Address) && len(last.regs) < 120 {
				last.regs = append(last.regs, hi, lo)
				continue
			}
		}
		out = append(out, run{addr: kr.Address, regs: []uint16{hi, lo}})
	}
	return out
}

// toInt32 converts a record value. Floats round half to even; values
// beyond the int32 range saturate.
func toInt32(v any) int32 {
	var f float64
	switch x := v.(type) {
	case int64:
		return clamp(float64(x))
	case int:
		return clamp(float64(x))
	case float64:
		if math.IsNaN(x) {
			return NotAvailable
		}
		f = math.RoundToEven(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return NotAvailable
	}
	return clamp(f)
}

func clamp(f float64) int32 {
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		// MinInt32 is reserved for NotAvailable
		return math.MinInt32 + 1
	}
	return int32(f)
}

func splitInt32(v int32) (hi, lo uint16) {
	u := uint32(v)
	return uint16(u >> 16), uint16(u)
}
