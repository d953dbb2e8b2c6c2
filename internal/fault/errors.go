// internal/fault/errors.go
package fault

import (
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

// Error classes shared by every driver.
// Concrete errors wrap one of these with %w.
var (
	ErrTransport      = errors.New("transport error")
	ErrTimeout        = errors.New("deadline exceeded")
	ErrChecksum       = errors.New("checksum mismatch")
	ErrDecode         = errors.New("decode error")
	ErrProtocolStatus = errors.New("protocol status error")
)

// Stable codes for the status block.
const (
	CodeNone           uint16 = 0
	CodeGeneric        uint16 = 1
	CodeTransport      uint16 = 10
	CodeTimeout        uint16 = 11
	CodeChecksum       uint16 = 12
	CodeDecode         uint16 = 13
	CodeProtocolStatus uint16 = 14

	// CodeModbusException is OR-ed with the Modbus exception code.
	CodeModbusException uint16 = 0x0100
)

// StatusError is a non-success reply from an HTTP endpoint.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status_code=%d url=%s", e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrProtocolStatus }

// Code exposes the HTTP status as the device error code.
func (e *StatusError) Code() uint16 { return uint16(e.StatusCode) }

// Transport wraps err as a transport failure.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Code extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code and matches no class, returns CodeGeneric.
func Code(err error) uint16 {
	if err == nil {
		return CodeNone
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return CodeModbusException | uint16(me.ExceptionCode)
	}

	switch {
	case errors.Is(err, ErrChecksum):
		return CodeChecksum
	case errors.Is(err, ErrDecode):
		return CodeDecode
	case errors.Is(err, ErrProtocolStatus):
		return CodeProtocolStatus
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrTransport):
		return CodeTransport
	}
	return CodeGeneric
}
