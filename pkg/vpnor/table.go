// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpnor

// Table is the virtual PNOR partition table: a header plus the
// accepted partitions in TOC order. A table is built once and never
// mutated, so concurrent readers need no locking.
type Table struct {
	header  Header
	entries []Entry
	wire    []byte
}

// blocks rounds a byte length up to whole flash blocks.
func blocks(n uint64) uint32 {
	return uint32((n + BlockSize - 1) / BlockSize)
}

// ReadTable builds the partition table from the TOC file in
// directory. Per-line problems (missing partition file, inverted
// range) are logged and the line dropped; a missing or unreadable TOC
// is fatal and no table is produced.
func ReadTable(directory string) (*Table, error) {
	parts, hint, err := parseTOC(directory)
	if err != nil {
		return nil, err
	}

	// Header space is reserved from the sizing hint rather than the
	// accepted count: a rejected line still leaves its entry slot
	// behind, and the first partition's base depends on it.
	sizeBlocks := blocks(uint64(HeaderSize + hint*EntrySize))

	t := &Table{entries: make([]Entry, 0, len(parts))}
	nextBlock := sizeBlocks
	for _, p := range parts {
		e := newEntry(p, nextBlock)
		nextBlock += e.Size
		t.entries = append(t.entries, e)
	}

	t.header = Header{
		Magic:      HeaderMagic,
		Version:    HeaderVersion,
		Size:       sizeBlocks,
		EntrySize:  EntrySize,
		EntryCount: uint32(len(t.entries)),
		BlockSize:  BlockSize,
		BlockCount: nextBlock,
	}
	t.header.Checksum = t.header.computeChecksum()

	t.wire = t.encode()
	return t, nil
}

// newEntry lays the partition out at base and fills in every entry
// field, checksum included.
func newEntry(p tocPartition, base uint32) Entry {
	actual := p.end - p.start
	e := Entry{
		Name:   makeName(p.name),
		Base:   base,
		Size:   blocks(actual),
		Pid:    NoParent,
		ID:     p.id,
		Type:   TypeData,
		Actual: uint32(actual),
		User:   userdata(p.attrs),
	}
	e.Checksum = e.computeChecksum()
	return e
}

// Header returns a copy of the table header.
func (t *Table) Header() Header {
	return t.header
}

// Entries returns the partitions in TOC order. The slice is shared;
// callers must not modify it.
func (t *Table) Entries() []Entry {
	return t.entries
}

// Partition returns the partition containing the given flash byte
// offset. ok is false when the offset falls within header-reserved
// blocks or beyond the configured partitions.
func (t *Table) Partition(offset uint64) (Entry, bool) {
	block := offset / BlockSize
	for _, e := range t.entries {
		if block >= uint64(e.Base) && block < uint64(e.Base)+uint64(e.Size) {
			return e, true
		}
	}
	return Entry{}, false
}

// Wire returns the big-endian wire-format table served to the host.
// The buffer is shared; callers must not modify it.
func (t *Table) Wire() []byte {
	return t.wire
}
