// Package canon implements the frozen canonical binary encoding used as
// the sole pre-image for signing and for Merkle Mountain Range leaf
// hashing (spec.md §4.1). It deliberately avoids JSON, CBOR, or any other
// self-describing or whitespace-sensitive format: the signed bytes must
// be a deterministic function of the value alone, independent of
// encoding-library version, field ordering latitude, or host locale.
//
// Rules (all fixed, do not change without re-deriving every existing
// signature and leaf digest):
//
//	integers   little-endian, fixed width
//	bool       one byte, 0x00 or 0x01
//	fixed []byte   raw bytes, no length prefix
//	var []byte/string   uint32 LE length prefix, then raw bytes
//	sequence   uint32 LE count, then elements in order
//	optional   presence byte, then value if present
//	struct     concatenation of fields in declared order
package canon

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned by Decoder methods when fewer bytes remain
// than the field being read requires.
var ErrTruncated = errors.New("canon: truncated input")

// Encoder accumulates a canonical byte stream.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated canonical encoding.
func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

// Bool writes a single presence/boolean byte.
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf.WriteByte(0x01)
	} else {
		e.buf.WriteByte(0x00)
	}
}

// Uint32 writes a fixed-width little-endian uint32.
func (e *Encoder) Uint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf.Write(tmp[:])
}

// Uint64 writes a fixed-width little-endian uint64.
func (e *Encoder) Uint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf.Write(tmp[:])
}

// Int64 writes a fixed-width little-endian int64 (used for timestamps).
func (e *Encoder) Int64(v int64) {
	e.Uint64(uint64(v))
}

// FixedBytes writes raw bytes with no length prefix. Callers are
// responsible for ensuring the slice is exactly the declared fixed width.
func (e *Encoder) FixedBytes(b []byte) {
	e.buf.Write(b)
}

// VarBytes writes a uint32 LE length prefix followed by raw bytes.
func (e *Encoder) VarBytes(b []byte) {
	e.Uint32(uint32(len(b)))
	e.buf.Write(b)
}

// String writes a uint32 LE length prefix followed by the UTF-8 bytes.
func (e *Encoder) String(s string) {
	e.VarBytes([]byte(s))
}

// Seq writes a uint32 LE element count followed by n calls to encode,
// each of which is expected to write exactly one element.
func (e *Encoder) Seq(n int, encode func(i int)) {
	e.Uint32(uint32(n))
	for i := 0; i < n; i++ {
		encode(i)
	}
}

// Optional writes a presence byte, and if present is true, invokes
// encode to write the value.
func (e *Encoder) Optional(present bool, encode func()) {
	e.Bool(present)
	if present {
		encode()
	}
}

// Decoder reads a canonical byte stream produced by Encoder.
type Decoder struct {
	b   []byte
	pos int
}

// NewDecoder wraps b for sequential canonical decoding.
func NewDecoder(b []byte) *Decoder { return &Decoder{b: b} }

// Remaining reports how many bytes are left unread.
func (d *Decoder) Remaining() int { return len(d.b) - d.pos }

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, ErrTruncated
	}
	out := d.b[d.pos : d.pos+n]
	d.pos += n
	return out, nil
}

// Bool reads a single presence/boolean byte.
func (d *Decoder) Bool() (bool, error) {
	raw, err := d.take(1)
	if err != nil {
		return false, err
	}
	switch raw[0] {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, fmt.Errorf("canon: invalid bool byte %#x", raw[0])
	}
}

// Uint32 reads a fixed-width little-endian uint32.
func (d *Decoder) Uint32() (uint32, error) {
	raw, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

// Uint64 reads a fixed-width little-endian uint64.
func (d *Decoder) Uint64() (uint64, error) {
	raw, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// Int64 reads a fixed-width little-endian int64.
func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

// FixedBytes reads exactly n raw bytes.
func (d *Decoder) FixedBytes(n int) ([]byte, error) {
	raw, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

// VarBytes reads a uint32 LE length prefix followed by that many bytes.
func (d *Decoder) VarBytes() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	return d.FixedBytes(int(n))
}

// String reads a uint32 LE length prefix followed by UTF-8 bytes.
func (d *Decoder) String() (string, error) {
	raw, err := d.VarBytes()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Seq reads a uint32 LE element count, then invokes decode once per
// element.
func (d *Decoder) Seq(decode func(i int) error) (int, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	for i := 0; i < int(n); i++ {
		if err := decode(i); err != nil {
			return 0, err
		}
	}
	return int(n), nil
}

// Optional reads a presence byte, and if present, invokes decode.
func (d *Decoder) Optional(decode func() error) (bool, error) {
	present, err := d.Bool()
	if err != nil {
		return false, err
	}
	if present {
		if err := decode(); err != nil {
			return false, err
		}
	}
	return present, nil
}
