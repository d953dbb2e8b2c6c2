// internal/register/bus.go
package register

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/meterhub/internal/fault"
)

// Conn is one opened link to a slave.
type Conn interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error) // FC 4
	Close() error
}

// Dialer opens a link to slave.
type Dialer func(slave byte) (Conn, error)

// ErrBusBusy is returned while another meter holds the bus.
var ErrBusBusy = errors.New("register: bus busy")

// Bus is one half-duplex transport shared by several meters.
// A link is opened per acquisition and closed on release.
type Bus struct {
	name string
	dial Dialer
	mu   sync.Mutex
}

// NewBus wraps dial.
func NewBus(name string, dial Dialer) *Bus {
	return &Bus{name: name, dial: dial}
}

// Name returns the bus name.
func (b *Bus) Name() string { return b.name }

func (b *Bus) acquire(slave byte) (Conn, error) {
	if !b.mu.TryLock() {
		return nil, ErrBusBusy
	}
	c, err := b.dial(slave)
	if err != nil {
		b.mu.Unlock()
		return nil, fault.Transport("register open "+b.name, err)
	}
	return c, nil
}

func (b *Bus) release(c Conn) error {
	defer b.mu.Unlock()
	return c.Close()
}

// ---- goburrow/modbus links ----

// SerialConfig is the RS485 line setup.
type SerialConfig struct {
	Address  string
	BaudRate int
	Timeout  time.Duration
}

type handlerConn struct {
	client modbus.Client
	close  func() error
}

func (c *handlerConn) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return c.client.ReadInputRegisters(address, quantity)
}

func (c *handlerConn) Close() error { return c.close() }

// RTUDialer opens the serial port for each acquisition.
func RTUDialer(cfg SerialConfig) Dialer {
	return func(slave byte) (Conn, error) {
		h := modbus.NewRTUClientHandler(cfg.Address)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.SlaveId = slave
		h.Timeout = cfg.Timeout

		if err := h.Connect(); err != nil {
			return nil, err
		}
		return &handlerConn{client: modbus.NewClient(h), close: h.Close}, nil
	}
}

// TCPDialer connects to a Modbus TCP gateway for each acquisition.
func TCPDialer(endpoint string, timeout time.Duration) Dialer {
	return func(slave byte) (Conn, error) {
		h := modbus.NewTCPClientHandler(endpoint)
		h.SlaveId = slave
		h.Timeout = timeout

		if err := h.Connect(); err != nil {
			return nil, err
		}
		return &handlerConn{client: modbus.NewClient(h), close: h.Close}, nil
	}
}
