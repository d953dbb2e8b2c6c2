// internal/sml/decode.go
package sml

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/tamzrod/meterhub/internal/fault"
)

// Dataset is the sparse field map of one frame.
type Dataset map[string]int64

// Field names.
const (
	FieldImport = "e_import"
	FieldExport = "e_export"
	FieldPower  = "p"
)

// OBIS address keys including the list and octet-string headers.
var (
	keyImport = []byte{0x77, 0x07, 0x01, 0x00, 0x01, 0x08, 0x00, 0xFF} // 1.8.0
	keyExport = []byte{0x77, 0x07, 0x01, 0x00, 0x02, 0x08, 0x00, 0xFF} // 2.8.0
	keyPower  = []byte{0x77, 0x07, 0x01, 0x00, 0x10, 0x07, 0x00, 0xFF} // 16.7.0
	keyPowerL = []byte{0x77, 0x07, 0x01, 0x00, 0x0F, 0x07, 0x00, 0xFF} // 15.7.0, EMH eHZ
)

type fieldSpec struct {
	name string
	keys [][]byte // tried in order
}

var fieldSpecs = []fieldSpec{
	{name: FieldImport, keys: [][]byte{keyImport}},
	{name: FieldExport, keys: [][]byte{keyExport}},
	{name: FieldPower, keys: [][]byte{keyPower, keyPowerL}},
}

// ErrKeyNotFound marks a field whose address key is not in the frame.
var ErrKeyNotFound = errors.New("sml: address key not found")

// DecodeFrame verifies the checksum and extracts the known fields.
// A checksum mismatch yields no dataset. A field that fails to decode
// is left out; decode errors are returned alongside the dataset.
func DecodeFrame(frame []byte) (Dataset, []error, error) {
	if err := VerifyChecksum(frame); err != nil {
		return nil, nil, err
	}

	ds := make(Dataset, len(fieldSpecs))
	var errs []error

	for _, fs := range fieldSpecs {
		var (
			v   int64
			err error
		)
		for _, key := range fs.keys {
			v, err = DecodeField(frame, key)
			if !errors.Is(err, ErrKeyNotFound) {
				break
			}
		}
		switch {
		case err == nil:
			ds[fs.name] = v
		case errors.Is(err, ErrKeyNotFound):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", fs.name, err))
		}
	}
	return ds, errs, nil
}

// DecodeField reads one list entry addressed by key:
// status, 4 fixed bytes (valTime, unit), scaler, type tag, value.
func DecodeField(frame, key []byte) (int64, error) {
	pos := bytes.Index(frame, key)
	if pos < 0 {
		return 0, ErrKeyNotFound
	}
	pos += len(key)

	if pos >= len(frame) {
		return 0, truncated("status")
	}
	pos += statusSkip(frame[pos])
	pos += 4

	if pos+2 > len(frame) {
		return 0, truncated("scaler")
	}
	scaler := int8(frame[pos])
	tag := frame[pos+1]
	pos += 2

	raw, err := readValue(frame[pos:], tag)
	if err != nil {
		return 0, err
	}
	return applyScale(raw, scaler)
}

// statusSkip returns the encoded length of the status entry.
// 0x62..0x65 are unsigned with 1..4 data bytes; anything else is one byte.
//
// Readers that only honour 0x64 and 0x65 skip a single byte for 0x62 and
// 0x63 too. That agrees for an 0x01 status but misaligns the scaler by
// one or two bytes when a meter sends a u8 or u16 status; here the full
// TL length is skipped.
func statusSkip(tl byte) int {
	if tl >= 0x62 && tl <= 0x65 {
		return int(tl & 0x0F)
	}
	return 1
}

func readValue(b []byte, tag byte) (*big.Int, error) {
	need := func(n int) error {
		if len(b) < n {
			return truncated(fmt.Sprintf("value tag %02X", tag))
		}
		return nil
	}

	var width int
	switch tag {
	case 0x52, 0x62:
		width = 1
	case 0x53, 0x63:
		width = 2
	case 0x55, 0x65:
		width = 4
	case 0x59, 0x69:
		width = 8
	case 0x56:
		width = 5
	default:
		return nil, fmt.Errorf("sml: unknown type tag %02X: %w", tag, fault.ErrDecode)
	}
	if err := need(width); err != nil {
		return nil, err
	}

	switch tag {
	case 0x52:
		return big.NewInt(int64(int8(b[0]))), nil
	case 0x53:
		return big.NewInt(int64(int16(binary.BigEndian.Uint16(b)))), nil
	case 0x55:
		return big.NewInt(int64(int32(binary.BigEndian.Uint32(b)))), nil
	case 0x59:
		return big.NewInt(int64(binary.BigEndian.Uint64(b))), nil
	case 0x62:
		return new(big.Int).SetUint64(uint64(b[0])), nil
	case 0x63:
		return new(big.Int).SetUint64(uint64(binary.BigEndian.Uint16(b))), nil
	case 0x65:
		return new(big.Int).SetUint64(uint64(binary.BigEndian.Uint32(b))), nil
	case 0x69:
		return new(big.Int).SetUint64(binary.BigEndian.Uint64(b)), nil
	default: // 0x56: 5 bytes, zero-padded to 64 bits
		var pad [8]byte
		copy(pad[3:], b[:5])
		return big.NewInt(int64(binary.BigEndian.Uint64(pad[:]))), nil
	}
}

var (
	bigOne = big.NewInt(1)
	bigTen = big.NewInt(10)
)

// applyScale returns raw × 10^exp rounded half to even, exactly.
func applyScale(raw *big.Int, exp int8) (int64, error) {
	v := new(big.Int).Set(raw)

	if exp >= 0 {
		v.Mul(v, new(big.Int).Exp(bigTen, big.NewInt(int64(exp)), nil))
	} else {
		d := new(big.Int).Exp(bigTen, big.NewInt(-int64(exp)), nil)
		r := new(big.Int)
		v.QuoRem(v, d, r)

		twice := new(big.Int).Abs(r)
		twice.Lsh(twice, 1)
		c := twice.Cmp(d)
		if c > 0 || (c == 0 && v.Bit(0) == 1) {
			if r.Sign() < 0 {
				v.Sub(v, bigOne)
			} else {
				v.Add(v, bigOne)
			}
		}
	}

	if !v.IsInt64() {
		return 0, fmt.Errorf("sml: value %s scale %d out of range: %w", raw, exp, fault.ErrDecode)
	}
	return v.Int64(), nil
}

func truncated(what string) error {
	return fmt.Errorf("sml: truncated %s: %w", what, fault.ErrDecode)
}
