/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2026 fastd-go Contributors. All Rights Reserved.
 */

// Package wire implements the TLV handshake record format and the data
// frame layout described in spec.md §6: a one-byte request id, two
// reserved bytes, and a stream of type/length/value records for
// handshake frames; a little-endian nonce header followed by opaque
// ciphertext for data frames.
package wire

import (
	"encoding/binary"
	"errors"
)

// Generic record types, shared with any future non-protocol-specific
// handshake record space.
const (
	RecordHandshakeType = 0
	RecordReplyCode     = 1
	RecordErrorDetail   = 2
	RecordFlags         = 3
	RecordMode          = 4
	RecordProtocolName  = 5
)

// Protocol-specific record types reserve a contiguous sub-range above the
// generic space, per the Design Note in spec.md §9.
const (
	RecordSenderKey             = 16
	RecordRecipientKey          = 17
	RecordSenderHandshakeKey    = 18
	RecordRecipientHandshakeKey = 19
	RecordT                     = 20
)

// Handshake message types (the HANDSHAKE_TYPE record's value).
const (
	HandshakeRequest = 1
	HandshakeReply   = 2
	HandshakeFinish  = 3
)

// CommonNonceBytes is the width of the data-frame nonce header.
const CommonNonceBytes = 6

var (
	// ErrTruncated is returned when a frame or record is too short to
	// parse; callers must treat this as a malformed handshake (drop
	// silently, per spec.md §7 kind 3), not propagate it further.
	ErrTruncated     = errors.New("wire: truncated frame")
	ErrRecordTooLong = errors.New("wire: record value exceeds 65535 bytes")
	// ErrReservedNotZero is returned when a frame's reserved header
	// bytes are not zero.
	ErrReservedNotZero = errors.New("wire: reserved header bytes are not zero")
)

// Record is one decoded TLV entry.
type Record struct {
	Type  uint8
	Value []byte
}

// Frame is a parsed handshake datagram: the one-byte request id plus the
// decoded TLV record stream. The two reserved bytes are validated as
// zero on decode and always written as zero on encode.
type Frame struct {
	ReqID   byte
	Records []Record
}

// Get returns the value of the first record of the given type, if any.
func (f *Frame) Get(recordType uint8) ([]byte, bool) {
	for _, r := range f.Records {
		if r.Type == recordType {
			return r.Value, true
		}
	}
	return nil, false
}

// GetFixed returns the value of the first record of the given type,
// requiring it to be exactly n bytes long.
func (f *Frame) GetFixed(recordType uint8, n int) ([]byte, bool) {
	v, ok := f.Get(recordType)
	if !ok || len(v) != n {
		return nil, false
	}
	return v, true
}

// Add appends a record to the frame being built.
func (f *Frame) Add(recordType uint8, value []byte) {
	f.Records = append(f.Records, Record{Type: recordType, Value: value})
}

// Marshal encodes the frame as req_id, two reserved zero bytes, and the
// TLV stream.
func (f *Frame) Marshal() ([]byte, error) {
	out := make([]byte, 3)
	out[0] = f.ReqID
	// out[1], out[2] are the reserved bytes, left zero.

	for _, r := range f.Records {
		if len(r.Value) > 0xFFFF {
			return nil, ErrRecordTooLong
		}
		hdr := make([]byte, 3)
		hdr[0] = r.Type
		binary.LittleEndian.PutUint16(hdr[1:], uint16(len(r.Value)))
		out = append(out, hdr...)
		out = append(out, r.Value...)
	}
	return out, nil
}

// Unmarshal decodes a handshake datagram into a Frame. It never returns
// a partially-populated Frame: on any truncation it returns ErrTruncated
// and an empty Frame, and on non-zero reserved bytes ErrReservedNotZero.
func Unmarshal(b []byte) (Frame, error) {
	if len(b) < 3 {
		return Frame{}, ErrTruncated
	}
	if b[1] != 0 || b[2] != 0 {
		return Frame{}, ErrReservedNotZero
	}
	f := Frame{ReqID: b[0]}
	rest := b[3:]

	for len(rest) > 0 {
		if len(rest) < 3 {
			return Frame{}, ErrTruncated
		}
		typ := rest[0]
		length := int(binary.LittleEndian.Uint16(rest[1:3]))
		rest = rest[3:]
		if len(rest) < length {
			return Frame{}, ErrTruncated
		}
		f.Records = append(f.Records, Record{Type: typ, Value: rest[:length:length]})
		rest = rest[length:]
	}
	return f, nil
}

// PutNonce writes a little-endian CommonNonceBytes counter.
func PutNonce(dst *[CommonNonceBytes]byte, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	copy(dst[:], buf[:CommonNonceBytes])
}

// NonceValue reads a little-endian CommonNonceBytes counter.
func NonceValue(n [CommonNonceBytes]byte) uint64 {
	var buf [8]byte
	copy(buf[:CommonNonceBytes], n[:])
	return binary.LittleEndian.Uint64(buf[:])
}
