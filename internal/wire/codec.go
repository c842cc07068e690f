package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ringdb/ringdb/internal/xcrypto"
)

// ErrTruncated is returned by decode when the buffer ends before a value's
// declared length.
var ErrTruncated = errors.New("wire: truncated message")

// encoder builds a message body: a byte appended tag followed by its
// fields, in the fixed order the two peers both agree on.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) byte(b byte) {
	e.buf.WriteByte(b)
}

func (e *encoder) uint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) uint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) int64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
}

func (e *encoder) bool(v bool) {
	if v {
		e.byte(1)
	} else {
		e.byte(0)
	}
}

func (e *encoder) fixed(b []byte) {
	e.buf.Write(b)
}

// bytesField writes a uint32 length prefix followed by b.
func (e *encoder) bytesField(b []byte) {
	e.uint32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) stringField(s string) {
	e.bytesField([]byte(s))
}

func (e *encoder) uid(u xcrypto.Uid) {
	e.fixed(u[:])
}

// uids writes a uint16 count followed by each Uid in order.
func (e *encoder) uids(ids []xcrypto.Uid) {
	e.uint16(uint16(len(ids)))
	for _, id := range ids {
		e.uid(id)
	}
}

func (e *encoder) bytes() []byte {
	return e.buf.Bytes()
}

// decoder reads a message body written by encoder, in the same field
// order.
type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder {
	return &decoder{data: data}
}

func (d *decoder) need(n int) error {
	if len(d.data)-d.pos < n {
		return ErrTruncated
	}
	return nil
}

func (d *decoder) byte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) uint16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) int64() (int64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return int64(v), nil
}

func (d *decoder) boolean() (bool, error) {
	b, err := d.byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (d *decoder) fixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	return d.fixed(int(n))
}

func (d *decoder) stringField() (string, error) {
	b, err := d.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) uid() (xcrypto.Uid, error) {
	b, err := d.fixed(xcrypto.UidSize)
	if err != nil {
		return xcrypto.Uid{}, err
	}
	return xcrypto.UidFromBytes(b)
}

func (d *decoder) uids() ([]xcrypto.Uid, error) {
	count, err := d.uint16()
	if err != nil {
		return nil, err
	}
	ids := make([]xcrypto.Uid, count)
	for i := range ids {
		id, err := d.uid()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (d *decoder) finish() error {
	if d.pos != len(d.data) {
		return fmt.Errorf("wire: %d trailing bytes after decode", len(d.data)-d.pos)
	}
	return nil
}
