// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vpnor builds the virtual PNOR partition table that a BMC
// serves to the host over the mailbox protocol. The table is read
// from a textual table-of-contents file, laid out in 4 KB flash
// blocks, and serialized to the big-endian FFS wire layout.
package vpnor

import (
	"strings"
)

// The table reuses the on-flash FFS layout: a 48-byte header followed
// by 128-byte partition entries.
const (
	// HeaderMagic spells "PART" on the wire.
	HeaderMagic   = 0x50415254
	HeaderVersion = 1

	// HeaderSize and EntrySize are the serialized record sizes in
	// bytes, including the trailing checksum word.
	HeaderSize = 48
	EntrySize  = 128

	// BlockSize is the flash erase-block granularity. Every partition
	// extent is rounded up to it.
	BlockSize = 4096

	// NameMax is the longest partition name an entry can hold. The
	// field itself is NameMax+1 bytes and always NUL terminated.
	NameMax = 15

	reservedWords = 4
	userWords     = 16
)

// Partition types. Only data partitions are produced from a TOC.
const (
	TypeData      = 1
	TypeLogical   = 2
	TypePartition = 3
)

// NoParent marks an entry without a parent partition; the table is
// flat, so every entry carries it.
const NoParent = 0xffffffff

// Attribute bits derived from TOC attribute tokens. ECC protection
// lives in user word 0, the permission bits in user word 1.
const (
	UserECCProtected = 0x8000
	UserReadOnly     = 0x00400000
	UserPreserved    = 0x00800000
)

// Name wraps the fixed-width partition name field so its string form
// stays under our control.
type Name struct {
	Value [NameMax + 1]byte
}

func (n *Name) String() string {
	return strings.TrimRight(string(n.Value[:]), "\x00")
}

// makeName clips s to NameMax bytes and NUL-pads the remainder of the
// field. Over-long names are clipped silently.
func makeName(s string) Name {
	var n Name
	copy(n.Value[:NameMax], s)
	return n
}

// Header describes the whole table.
type Header struct {
	Magic      uint32
	Version    uint32
	Size       uint32 // table size in blocks
	EntrySize  uint32 // bytes per entry record
	EntryCount uint32 // accepted partitions
	BlockSize  uint32
	BlockCount uint32 // virtual image size in blocks
	Reserved   [reservedWords]uint32
	Checksum   uint32
}

// Entry describes one partition.
type Entry struct {
	Name     Name
	Base     uint32 // starting block within the virtual image
	Size     uint32 // extent in blocks
	Pid      uint32 // parent id, always NoParent
	ID       uint32
	Type     uint32
	Flags    uint32 // reserved, zero
	Actual   uint32 // byte length before block rounding
	Reserved [reservedWords]uint32
	User     [userWords]uint32
	Checksum uint32
}

// ECCProtected reports whether the partition data carries ECC.
func (e *Entry) ECCProtected() bool {
	return e.User[0]&UserECCProtected != 0
}

// ReadOnly reports whether the host may only read the partition.
func (e *Entry) ReadOnly() bool {
	return e.User[1]&UserReadOnly != 0
}

// Preserved reports whether the partition contents survive a reset.
func (e *Entry) Preserved() bool {
	return e.User[1]&UserPreserved != 0
}
