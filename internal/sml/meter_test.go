// internal/sml/meter_test.go
package sml

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/meterhub/internal/fault"
)

// fakePort serves queued chunks, then times out.
type fakePort struct {
	chunks [][]byte
	err    error
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if len(p.chunks) == 0 {
		return 0, serial.ErrTimeout
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func newTestMeter(t *testing.T, lifetime time.Duration, ports ...*fakePort) (*Meter, *int) {
	t.Helper()
	opens := 0
	m, err := NewMeter(Config{
		Name:     "mt175",
		Lifetime: lifetime,
		Open: func() (io.ReadCloser, error) {
			if opens >= len(ports) {
				opens++
				return nil, errors.New("no such device")
			}
			p := ports[opens]
			opens++
			return p, nil
		},
	})
	require.NoError(t, err)
	return m, &opens
}

func meterFrame() []byte {
	return sealFrame(
		entry(keyImport, []byte{0x01}, -1, 0x59, u64(45395370)),
		entry(keyExport, []byte{0x01}, -1, 0x59, u64(306365900)),
		entry(keyPower, []byte{0x01}, 0, 0x55, []byte{0x00, 0x00, 0x01, 0x30}),
	)
}

func TestMeter_ReadAcrossChunks(t *testing.T) {
	frame := meterFrame()
	port := &fakePort{chunks: [][]byte{
		append([]byte{0x00, 0x00}, frame[:20]...),
		frame[20:],
	}}
	m, _ := newTestMeter(t, 0, port)

	assert.ErrorIs(t, m.Read(), ErrNoFrame, "first half only")
	require.NoError(t, m.Read())

	v, ok := m.Cell().Observe(time.Now())
	require.True(t, ok)
	assert.Equal(t, map[string]int64{"e_import": 4539537, "e_export": 30636590, "p": 304}, v)

	// nothing new and no lifetime: blanked
	assert.ErrorIs(t, m.Read(), ErrNoFrame)
	_, ok = m.Cell().Observe(time.Now())
	assert.False(t, ok)
}

func TestMeter_CorruptFrameIgnored(t *testing.T) {
	bad := meterFrame()
	bad[len(bad)-2] ^= 0x01
	good := meterFrame()

	port := &fakePort{chunks: [][]byte{append(append([]byte{}, bad...), good...)}}
	m, _ := newTestMeter(t, time.Minute, port)

	assert.NoError(t, m.Read(), "valid frame after corrupt one")
	assert.Equal(t, int64(304), m.Get(time.Now(), int64(0), "p"))
	assert.True(t, m.Info(time.Now()).Present)
}

func TestMeter_PortErrorReopens(t *testing.T) {
	broken := &fakePort{err: errors.New("device disconnected")}
	healthy := &fakePort{chunks: [][]byte{meterFrame()}}
	m, opens := newTestMeter(t, 10*time.Second, broken, healthy)

	assert.ErrorIs(t, m.Read(), fault.ErrTransport)
	assert.True(t, broken.closed)

	assert.NoError(t, m.Read())
	assert.Equal(t, 2, *opens)
	require.NoError(t, m.Close())
	assert.True(t, healthy.closed)
}

func TestMeter_OpenFailureKeepsLifetime(t *testing.T) {
	port := &fakePort{chunks: [][]byte{meterFrame()}}
	m, _ := newTestMeter(t, time.Hour, port)
	require.NoError(t, m.Read())

	port.err = errors.New("gone")
	assert.Error(t, m.Read())
	assert.ErrorIs(t, m.Read(), fault.ErrTransport, "open fails, no ports left")

	_, ok := m.Cell().Observe(time.Now())
	assert.True(t, ok, "within lifetime")
}

func TestNewMeter_Validation(t *testing.T) {
	_, err := NewMeter(Config{Open: func() (io.ReadCloser, error) { return nil, nil }})
	assert.Error(t, err)
	_, err = NewMeter(Config{Name: "x"})
	assert.Error(t, err)
}

func TestMeter_WaitingWithinLifetimeIsNotAFailure(t *testing.T) {
	port := &fakePort{chunks: [][]byte{meterFrame()}}
	m, _ := newTestMeter(t, 10*time.Second, port)

	clock := time.Unix(1664049957, 0)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Read())

	// the meter pushes every 2s, the poll runs every 1s
	clock = clock.Add(time.Second)
	assert.NoError(t, m.Read(), "no frame yet, dataset still live")
	assert.Equal(t, int64(304), m.Get(clock, int64(0), "p"))

	clock = clock.Add(10 * time.Second)
	assert.ErrorIs(t, m.Read(), ErrNoFrame, "lifetime elapsed")
	assert.False(t, m.Info(clock).Present)
}

func TestMeter_ChecksumFailureReportedWithinLifetime(t *testing.T) {
	bad := meterFrame()
	bad[len(bad)-2] ^= 0x01
	port := &fakePort{chunks: [][]byte{meterFrame(), bad}}
	m, _ := newTestMeter(t, time.Minute, port)

	require.NoError(t, m.Read())
	assert.ErrorIs(t, m.Read(), fault.ErrChecksum)
}
