// internal/sml/frame.go
package sml

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/meterhub/internal/fault"
)

var (
	startMarker = []byte{0x1B, 0x1B, 0x1B, 0x1B, 0x01, 0x01, 0x01, 0x01}
	endMarker   = []byte{0x1B, 0x1B, 0x1B, 0x1B, 0x1A}
)

const (
	// minBuffer is the size a buffer must exceed before a search starts.
	minBuffer = 16

	// trailerLen covers the end marker, padding count and CRC.
	trailerLen = 8
)

// ExtractFrame takes at most one frame from the front of buf.
//
//   - len(buf) <= 16: buf is returned untouched.
//   - no start marker: everything is discarded.
//   - start marker: leading garbage is dropped; if an end marker with its
//     trailer is complete the frame is cut off, otherwise the rest waits.
//
// Call it repeatedly until frame is nil.
func ExtractFrame(buf []byte) (rest, frame []byte) {
	if len(buf) <= minBuffer {
		return buf, nil
	}

	p := bytes.Index(buf, startMarker)
	if p < 0 {
		return buf[:0], nil
	}
	buf = buf[p:]

	p = bytes.Index(buf, endMarker)
	if p >= 0 && len(buf) >= p+trailerLen {
		return buf[p+trailerLen:], buf[:p+trailerLen]
	}
	return buf, nil
}

// VerifyChecksum compares the trailing little-endian CRC of frame with
// the CRC computed over everything before it.
func VerifyChecksum(frame []byte) error {
	if len(frame) < 2 {
		return fmt.Errorf("sml: frame of %d bytes: %w", len(frame), fault.ErrChecksum)
	}
	body := frame[:len(frame)-2]
	want := binary.LittleEndian.Uint16(frame[len(frame)-2:])
	if got := Checksum(body); got != want {
		return fmt.Errorf("sml: crc calc=%04X frame=%04X: %w", got, want, fault.ErrChecksum)
	}
	return nil
}
