// internal/writer/writer_test.go
package writer

import (
	"errors"
	"math"
	"testing"
	"time"

	cfg "github.com/tamzrod/meterhub/internal/config"
	"github.com/tamzrod/meterhub/internal/status"
	"github.com/tamzrod/meterhub/internal/trace"
)

// ---- fake endpoint client ----

type fakeEndpointClient struct {
	writes       []writeCall
	lastRegs     []uint16
	lastRegsAddr uint16
	fail         bool
}

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail {
		return errors.New("connection refused")
	}
	f.writes = append(f.writes, writeCall{unitID: unitID, addr: addr, regs: append([]uint16(nil), regs...)})
	f.lastRegs = regs
	f.lastRegsAddr = addr
	return nil
}

// ---- tests ----

func TestMirror_ContiguousKeysOneWrite(t *testing.T) {
	fake := &fakeEndpointClient{}

	plan := Plan{
		Endpoint: "ep1",
		UnitID:   7,
		Registers: []KeyRegister{
			{Key: "grid_p", Address: 100},
			{Key: "pv_p", Address: 102},
			{Key: "bat_soc", Address: 200},
		},
	}

	m := New(plan, fake, nil)
	rec := trace.Record{"grid_p": int64(-304), "pv_p": 2688.5, "bat_soc": nil}

	if err := m.Deliver(rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fake.writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(fake.writes))
	}

	w := fake.writes[0]
	if w.unitID != 7 || w.addr != 100 || len(w.regs) != 4 {
		t.Fatalf("unexpected first write: %+v", w)
	}
	// -304 as int32 big-endian pair
	if w.regs[0] != 0xFFFF || w.regs[1] != 0xFED0 {
		t.Fatalf("grid_p regs: %04x %04x", w.regs[0], w.regs[1])
	}
	// 2688.5 rounds half to even
	if w.regs[2] != 0 || w.regs[3] != 2688 {
		t.Fatalf("pv_p regs: %d %d", w.regs[2], w.regs[3])
	}

	if fake.writes[1].addr != 200 || fake.writes[1].regs[0] != 0x8000 || fake.writes[1].regs[1] != 0 {
		t.Fatalf("absent value must be written as not available: %+v", fake.writes[1])
	}
}

func TestMirror_WriteErrorReported(t *testing.T) {
	fake := &fakeEndpointClient{fail: true}
	m := New(Plan{Endpoint: "ep1", Registers: []KeyRegister{{Key: "a", Address: 0}}}, fake, nil)

	if err := m.Deliver(trace.Record{"a": int64(1)}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestToInt32(t *testing.T) {
	cases := []struct {
		in   any
		want int32
	}{
		{int64(5), 5},
		{7, 7},
		{2.5, 2},
		{3.5, 4},
		{true, 1},
		{false, 0},
		{"text", NotAvailable},
		{nil, NotAvailable},
		{math.NaN(), NotAvailable},
		{int64(1) << 40, math.MaxInt32},
		{float64(math.MinInt32), math.MinInt32 + 1},
	}
	for _, c := range cases {
		if got := toInt32(c.in); got != c.want {
			t.Fatalf("toInt32(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

type fakeTracker map[string]status.Snapshot

func (f fakeTracker) Snapshot(name string, _ time.Time) (status.Snapshot, bool) {
	s, ok := f[name]
	return s, ok
}

func TestMirror_StatusBlocks(t *testing.T) {
	fake := &fakeEndpointClient{}
	tr := fakeTracker{"grid": {Health: status.HealthOK}}

	plan := Plan{
		Endpoint: "ep1",
		Status: []StatusPlan{
			{Source: "grid", UnitID: 2, BaseSlot: 3, DeviceName: "GRID"},
			{Source: "ghost", UnitID: 2, BaseSlot: 4},
		},
	}

	m := New(plan, fake, tr)
	if err := m.Deliver(trace.Record{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.writes) != 1 {
		t.Fatalf("expected one status block, got %d writes", len(fake.writes))
	}
	if fake.writes[0].unitID != 2 || fake.writes[0].addr != 3*status.SlotsPerDevice {
		t.Fatalf("unexpected status write: %+v", fake.writes[0])
	}
}

func TestBuildPlan(t *testing.T) {
	slot := uint16(5)
	unit := uint8(9)
	c := &cfg.Config{
		Sources: []cfg.SourceConfig{
			{ID: "grid", StatusSlot: &slot, DeviceName: "MT175"},
			{ID: "pv"},
		},
		Mirror: &cfg.MirrorConfig{
			Endpoint:     "127.0.0.1:502",
			UnitID:       1,
			StatusUnitID: &unit,
			Registers:    map[string]int{"b": 12, "a": 10},
		},
	}

	plan, err := BuildPlan(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Registers) != 2 || plan.Registers[0].Key != "a" || plan.Registers[1].Address != 12 {
		t.Fatalf("registers not sorted: %+v", plan.Registers)
	}
	if len(plan.Status) != 1 || plan.Status[0].BaseSlot != 5 || plan.Status[0].UnitID != 9 {
		t.Fatalf("status plan: %+v", plan.Status)
	}

	if _, err := BuildPlan(&cfg.Config{}); err == nil {
		t.Fatalf("expected error without mirror")
	}
}
