// Package payload defines the binary telemetry payloads uplinked by the node
// and the decoder the console uses to turn them back into fields. All
// multi-byte values are big endian.
package payload

import (
	"encoding/binary"
	"math"
)

// Encoder appends big-endian fields to a payload buffer. The zero value is
// ready to use.
type Encoder struct {
	buf []byte
}

// Uint8 appends a single byte.
func (e *Encoder) Uint8(v uint8) {
	e.buf = append(e.buf, v)
}

// Uint16 appends a 16-bit value.
func (e *Encoder) Uint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// Uint32 appends a 32-bit value.
func (e *Encoder) Uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// Int16 appends a signed 16-bit value.
func (e *Encoder) Int16(v int16) {
	e.Uint16(uint16(v))
}

// Temperature appends a temperature in 0.01 degree Celsius steps.
func (e *Encoder) Temperature(celsius float64) {
	e.Int16(int16(math.Round(celsius * 100)))
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Bytes returns the accumulated payload.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Reset discards the accumulated payload.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

func clampUint16(v float64) uint16 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}

func clampUint32(v float64) uint32 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 4294967295 {
		return 4294967295
	}
	return uint32(v)
}
