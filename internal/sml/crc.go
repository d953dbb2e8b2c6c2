// internal/sml/crc.go
package sml

// CRC16/X25: reflected poly 0x1021 (0x8408), init 0xFFFF, xorout 0xFFFF.
var x25Table = func() [256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i)
		for b := 0; b < 8; b++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8408
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// Checksum computes CRC16/X25 over b.
func Checksum(b []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, v := range b {
		crc = x25Table[byte(crc)^v] ^ crc>>8
	}
	return crc ^ 0xFFFF
}
