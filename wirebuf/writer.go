// Copyright (C) 2013-2017 The btcsuite developers
// Copyright (C) 2015-2016 The Decred developers
// Copyright (C) 2015-2022 Lightning Labs and The Lightning Network Developers
// Copyright (C) 2022 Bottlepay and The Lightning Network Developers

// Package wirebuf provides an append-only binary writer used to lay out
// scripts, outpoint hashes and PSBT key-value maps.
package wirebuf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	// ErrPushTooLarge is returned when a script push exceeds what
	// OP_PUSHDATA1 can carry.
	ErrPushTooLarge = errors.New("push data too large")

	// ErrSmallIntRange is returned for small integers that cannot be
	// represented as a single opcode or a one byte push.
	ErrSmallIntRange = errors.New("small int out of range")
)

// MaxPushData1 is the largest push this writer will encode.
const MaxPushData1 = 255

// Writer accumulates little-endian integers, Bitcoin compact sizes and
// script pushes. The first error is sticky: later calls are no-ops and the
// error is reported by Err.
type Writer struct {
	buf bytes.Buffer
	err error
}

// New returns an empty Writer.
func New() *Writer {
	return &Writer{}
}

// Byte appends a single byte.
func (w *Writer) Byte(b byte) *Writer {
	if w.err == nil {
		w.buf.WriteByte(b)
	}
	return w
}

// Op appends a script opcode.
func (w *Writer) Op(op byte) *Writer {
	return w.Byte(op)
}

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) *Writer {
	if w.err == nil {
		w.buf.Write(b)
	}
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.Raw(b[:])
}

func (w *Writer) Int32(v int32) *Writer {
	return w.Uint32(uint32(v))
}

func (w *Writer) Uint64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.Raw(b[:])
}

func (w *Writer) Int64(v int64) *Writer {
	return w.Uint64(uint64(v))
}

// VarInt appends v as a Bitcoin compact size.
func (w *Writer) VarInt(v uint64) *Writer {
	if w.err == nil {
		w.err = wire.WriteVarInt(&w.buf, 0, v)
	}
	return w
}

// VarBytes appends b prefixed by its compact size length.
func (w *Writer) VarBytes(b []byte) *Writer {
	if w.err == nil {
		w.err = wire.WriteVarBytes(&w.buf, 0, b)
	}
	return w
}

// PushData appends a script push of data: a direct push for fewer than 76
// bytes, OP_PUSHDATA1 up to 255 bytes.
func (w *Writer) PushData(data []byte) *Writer {
	if w.err != nil {
		return w
	}

	switch n := len(data); {
	case n < txscript.OP_PUSHDATA1:
		w.buf.WriteByte(byte(n))
	case n <= MaxPushData1:
		w.buf.WriteByte(txscript.OP_PUSHDATA1)
		w.buf.WriteByte(byte(n))
	default:
		w.err = fmt.Errorf("%w: %d bytes", ErrPushTooLarge, n)
		return w
	}
	w.buf.Write(data)

	return w
}

// SmallInt appends n as OP_1..OP_16 when it fits, otherwise as a one byte
// push of n. A one byte script number is signed, so n stops at 127.
func (w *Writer) SmallInt(n int) *Writer {
	switch {
	case n >= 1 && n <= 16:
		return w.Op(txscript.OP_1 + byte(n-1))
	case n > 16 && n <= 0x7f:
		return w.PushData([]byte{byte(n)})
	}

	if w.err == nil {
		w.err = fmt.Errorf("%w: %d", ErrSmallIntRange, n)
	}
	return w
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Bytes returns a copy of the accumulated bytes, or the sticky error.
func (w *Writer) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return bytes.Clone(w.buf.Bytes()), nil
}

// WriteTo copies the accumulated bytes to dst. The writer keeps its
// contents, so Bytes and Len are unchanged afterwards.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	return bytes.NewReader(w.buf.Bytes()).WriteTo(dst)
}
