// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpnor

import (
	"encoding/binary"
)

// checksum XORs successive big-endian 32-bit words of data. Trailing
// bytes that do not fill a word are ignored; record sizes here are
// always word multiples.
func checksum(data []byte) uint32 {
	var sum uint32
	for i := 0; i+4 <= len(data); i += 4 {
		sum ^= binary.BigEndian.Uint32(data[i:])
	}
	return sum
}

// Record checksums cover the wire encoding of every field preceding
// the checksum word itself. XOR commutes with the per-word byte swap,
// so the value stored in the native record is the same one that ends
// up on the wire.

func (h *Header) computeChecksum() uint32 {
	var b [HeaderSize]byte
	putHeader(b[:], h)
	return checksum(b[:HeaderSize-4])
}

func (e *Entry) computeChecksum() uint32 {
	var b [EntrySize]byte
	putEntry(b[:], e)
	return checksum(b[:EntrySize-4])
}
