// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpnor

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// The wire layout is the FFS flash layout: all integers big-endian,
// the name field a raw byte sequence. The typed records above never
// rely on Go struct layout; these functions are the only place the
// byte offsets appear.

func putHeader(b []byte, h *Header) {
	be := binary.BigEndian
	be.PutUint32(b[0:], h.Magic)
	be.PutUint32(b[4:], h.Version)
	be.PutUint32(b[8:], h.Size)
	be.PutUint32(b[12:], h.EntrySize)
	be.PutUint32(b[16:], h.EntryCount)
	be.PutUint32(b[20:], h.BlockSize)
	be.PutUint32(b[24:], h.BlockCount)
	for i, r := range h.Reserved {
		be.PutUint32(b[28+4*i:], r)
	}
	be.PutUint32(b[44:], h.Checksum)
}

func getHeader(b []byte) Header {
	be := binary.BigEndian
	var h Header
	h.Magic = be.Uint32(b[0:])
	h.Version = be.Uint32(b[4:])
	h.Size = be.Uint32(b[8:])
	h.EntrySize = be.Uint32(b[12:])
	h.EntryCount = be.Uint32(b[16:])
	h.BlockSize = be.Uint32(b[20:])
	h.BlockCount = be.Uint32(b[24:])
	for i := range h.Reserved {
		h.Reserved[i] = be.Uint32(b[28+4*i:])
	}
	h.Checksum = be.Uint32(b[44:])
	return h
}

func putEntry(b []byte, e *Entry) {
	be := binary.BigEndian
	copy(b[0:NameMax+1], e.Name.Value[:])
	be.PutUint32(b[16:], e.Base)
	be.PutUint32(b[20:], e.Size)
	be.PutUint32(b[24:], e.Pid)
	be.PutUint32(b[28:], e.ID)
	be.PutUint32(b[32:], e.Type)
	be.PutUint32(b[36:], e.Flags)
	be.PutUint32(b[40:], e.Actual)
	for i, r := range e.Reserved {
		be.PutUint32(b[44+4*i:], r)
	}
	for i, u := range e.User {
		be.PutUint32(b[60+4*i:], u)
	}
	be.PutUint32(b[124:], e.Checksum)
}

func getEntry(b []byte) Entry {
	be := binary.BigEndian
	var e Entry
	copy(e.Name.Value[:], b[0:NameMax+1])
	e.Base = be.Uint32(b[16:])
	e.Size = be.Uint32(b[20:])
	e.Pid = be.Uint32(b[24:])
	e.ID = be.Uint32(b[28:])
	e.Type = be.Uint32(b[32:])
	e.Flags = be.Uint32(b[36:])
	e.Actual = be.Uint32(b[40:])
	for i := range e.Reserved {
		e.Reserved[i] = be.Uint32(b[44+4*i:])
	}
	for i := range e.User {
		e.User[i] = be.Uint32(b[60+4*i:])
	}
	e.Checksum = be.Uint32(b[124:])
	return e
}

// encode serializes the table into its wire form: header, then
// EntryCount entries, zero-padded out to Size blocks.
func (t *Table) encode() []byte {
	out := make([]byte, int(t.header.Size)*BlockSize)
	putHeader(out, &t.header)
	for i := range t.entries {
		putEntry(out[HeaderSize+i*EntrySize:], &t.entries[i])
	}
	return out
}

// ChecksumError reports a record whose stored checksum does not match
// its fields.
type ChecksumError struct {
	Record   string
	Stored   uint32
	Computed uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%s checksum mismatch: stored %#08x, computed %#08x",
		e.Record, e.Stored, e.Computed)
}

// DecodeTable parses and verifies a wire-format table, as read back
// from flash or received from a remote side. The header geometry is
// checked first; checksum mismatches across all records are collected
// and reported together. A table that fails verification is never
// returned partially.
func DecodeTable(data []byte) (*Table, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("table too small: %d bytes, header needs %d",
			len(data), HeaderSize)
	}
	h := getHeader(data)
	if h.Magic != HeaderMagic {
		return nil, fmt.Errorf("bad table magic %#08x, want %#08x", h.Magic, uint32(HeaderMagic))
	}
	if h.Version != HeaderVersion {
		return nil, fmt.Errorf("unsupported table version %d", h.Version)
	}
	if h.EntrySize != EntrySize {
		return nil, fmt.Errorf("unsupported entry size %d, want %d", h.EntrySize, EntrySize)
	}
	need := HeaderSize + int(h.EntryCount)*EntrySize
	if len(data) < need {
		return nil, fmt.Errorf("table truncated: %d entries need %d bytes, have %d",
			h.EntryCount, need, len(data))
	}

	var result *multierror.Error
	if got := h.computeChecksum(); got != h.Checksum {
		result = multierror.Append(result, &ChecksumError{
			Record: "header", Stored: h.Checksum, Computed: got,
		})
	}
	t := &Table{header: h, entries: make([]Entry, 0, h.EntryCount)}
	for i := 0; i < int(h.EntryCount); i++ {
		e := getEntry(data[HeaderSize+i*EntrySize:])
		if got := e.computeChecksum(); got != e.Checksum {
			result = multierror.Append(result, &ChecksumError{
				Record:   fmt.Sprintf("entry %d (%s)", i, e.Name.String()),
				Stored:   e.Checksum,
				Computed: got,
			})
		}
		t.entries = append(t.entries, e)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	t.wire = make([]byte, len(data))
	copy(t.wire, data)
	return t, nil
}
