// internal/writer/modbus/client.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/fault"
)

// MaxRegisters is the FC16 quantity limit.
const MaxRegisters = 123

// EndpointClient is a single TCP connection to one mirror endpoint.
// Requests are serialized since SlaveId is set per write.
// The connection is opened on first use and dropped after a failure.
type EndpointClient struct {
	mu        sync.Mutex
	endpoint  string
	handler   *modbus.TCPClientHandler
	client    modbus.Client
	connected bool
	log       *logrus.Entry
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
	Log      *logrus.Entry
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	return &EndpointClient{
		endpoint: cfg.Endpoint,
		handler:  h,
		client:   modbus.NewClient(h),
		log:      log.WithField("endpoint", cfg.Endpoint),
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	return c.handler.Close()
}

// WriteRegisters issues one FC16 request.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 || len(regs) > MaxRegisters {
		return fmt.Errorf("writer modbus: quantity %d out of range 1..%d", len(regs), MaxRegisters)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		if err := c.handler.Connect(); err != nil {
			return fmt.Errorf("writer modbus: connect %s: %w (%w)", c.endpoint, fault.ErrTransport, err)
		}
		c.connected = true
		c.log.Info("mirror connected")
	}

	c.handler.SlaveId = unitID

	if _, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs)); err != nil {
		_ = c.handler.Close()
		c.connected = false
		c.log.WithError(err).Debug("mirror connection dropped")
		return fmt.Errorf("writer modbus: unit=%d addr=%d qty=%d: %w (%w)",
			unitID, addr, len(regs), fault.ErrTransport, err)
	}
	return nil
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		binary.BigEndian.PutUint16(out[2*i:], r)
	}
	return out
}
