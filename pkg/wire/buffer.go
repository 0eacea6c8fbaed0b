// Package wire implements the byte-cursor primitives the game login
// protocol and the voice protocol are both built out of: big-endian
// fixed-width integers, a LEB128-style VarInt, UUIDs, and length-prefixed
// UTF-8 strings.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrShortBuffer is returned by any reader that needs more bytes than remain.
var ErrShortBuffer = errors.New("wire: short buffer")

// ErrMalformedVarInt is returned when a VarInt exceeds 5 bytes.
var ErrMalformedVarInt = errors.New("wire: malformed varint")

// ErrInvalidUTF8 is returned when a decoded string is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("wire: invalid utf8")

// MaxStringLen bounds String's varint-prefixed length.
const MaxStringLen = 32768

// Buffer is an ordered byte sequence with a read cursor and a growable
// write tail. A single Buffer is used both to decode an inbound packet and
// to build an outbound one; which mode is in play depends on which methods
// the caller uses.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer wraps an existing byte slice for reading.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// NewWriteBuffer returns an empty Buffer ready for writing.
func NewWriteBuffer() *Buffer {
	return &Buffer{}
}

// Bytes returns the buffer's full backing slice (not just the unread tail).
func (b *Buffer) Bytes() []byte { return b.data }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// Mark returns the current cursor position, for use with Reset.
func (b *Buffer) Mark() int { return b.pos }

// Reset restores the cursor to a position previously returned by Mark.
func (b *Buffer) Reset(pos int) { b.pos = pos }

// Skip advances the cursor by n bytes without returning them.
func (b *Buffer) Skip(n int) error {
	if b.Remaining() < n {
		return ErrShortBuffer
	}
	b.pos += n
	return nil
}

// Peek returns the next n bytes without advancing the cursor.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, ErrShortBuffer
	}
	return b.data[b.pos : b.pos+n], nil
}

// ReadBytes consumes and returns the next n bytes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, ErrShortBuffer
	}
	out := make([]byte, n)
	copy(out, b.data[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// WriteBytes appends raw bytes to the write tail.
func (b *Buffer) WriteBytes(p []byte) {
	b.data = append(b.data, p...)
}

// ReadU8 reads a single unsigned byte.
func (b *Buffer) ReadU8() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// WriteU8 appends a single byte.
func (b *Buffer) WriteU8(v byte) {
	b.data = append(b.data, v)
}

// ReadBool reads a boolean stored as a single byte (0 or 1).
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// WriteBool appends a boolean as a single byte.
func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteU8(1)
	} else {
		b.WriteU8(0)
	}
}

// ReadI32BE reads a big-endian signed 32-bit integer.
func (b *Buffer) ReadI32BE() (int32, error) {
	raw, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

// WriteI32BE appends a big-endian signed 32-bit integer.
func (b *Buffer) WriteI32BE(v int32) {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], uint32(v))
	b.WriteBytes(raw[:])
}

// ReadI64BE reads a big-endian signed 64-bit integer.
func (b *Buffer) ReadI64BE() (int64, error) {
	raw, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// WriteI64BE appends a big-endian signed 64-bit integer.
func (b *Buffer) WriteI64BE(v int64) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], uint64(v))
	b.WriteBytes(raw[:])
}

// ReadF32BE reads a big-endian IEEE-754 single-precision float.
func (b *Buffer) ReadF32BE() (float32, error) {
	raw, err := b.ReadI32BE()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(raw)), nil
}

// WriteF32BE appends a big-endian IEEE-754 single-precision float.
func (b *Buffer) WriteF32BE(v float32) {
	b.WriteI32BE(int32(math.Float32bits(v)))
}

// ReadF64BE reads a big-endian IEEE-754 double-precision float.
func (b *Buffer) ReadF64BE() (float64, error) {
	raw, err := b.ReadI64BE()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(raw)), nil
}

// WriteF64BE appends a big-endian IEEE-754 double-precision float.
func (b *Buffer) WriteF64BE(v float64) {
	b.WriteI64BE(int64(math.Float64bits(v)))
}

// ReadVarInt reads a LEB128-style, 7-bit-per-byte, little-endian unsigned
// varint with a high-bit continuation flag. It is capped at 5 bytes; a
// 5th byte with the continuation bit still set is malformed.
func (b *Buffer) ReadVarInt() (int32, error) {
	var result int32
	for i := 0; i < 5; i++ {
		by, err := b.ReadU8()
		if err != nil {
			return 0, err
		}
		result |= int32(by&0x7F) << (7 * i)
		if by&0x80 == 0 {
			return result, nil
		}
	}
	return 0, ErrMalformedVarInt
}

// WriteVarInt appends v encoded as a VarInt (1 to 5 bytes).
func (b *Buffer) WriteVarInt(v int32) {
	u := uint32(v)
	for {
		by := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			by |= 0x80
		}
		b.WriteU8(by)
		if u == 0 {
			return
		}
	}
}

// ReadUUID reads a 16-byte big-endian UUID (high 8 bytes then low 8 bytes).
func (b *Buffer) ReadUUID() (uuid.UUID, error) {
	raw, err := b.ReadBytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	var u uuid.UUID
	copy(u[:], raw)
	return u, nil
}

// WriteUUID appends a UUID as 16 big-endian bytes.
func (b *Buffer) WriteUUID(u uuid.UUID) {
	b.WriteBytes(u[:])
}

// ReadString reads a VarInt-length-prefixed UTF-8 string, capped at
// MaxStringLen bytes.
func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadVarInt()
	if err != nil {
		return "", err
	}
	if n < 0 || n > MaxStringLen {
		return "", fmt.Errorf("wire: string length %d exceeds max %d", n, MaxStringLen)
	}
	raw, err := b.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", ErrInvalidUTF8
	}
	return string(raw), nil
}

// WriteString appends s as a VarInt length prefix followed by its UTF-8 bytes.
func (b *Buffer) WriteString(s string) {
	raw := []byte(s)
	b.WriteVarInt(int32(len(raw)))
	b.WriteBytes(raw)
}
