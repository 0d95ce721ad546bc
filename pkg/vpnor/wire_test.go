// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpnor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// The wire layout is big-endian. Field positions are checked against
// hand-assembled bytes, fmap-style.
func TestWireLayout(t *testing.T) {
	dir := writeTOC(t, []string{
		"partition01=HBB,00010000,000a0000,ECC,PRESERVED",
	}, "HBB")

	tbl, err := ReadTable(dir)
	if err != nil {
		t.Fatal(err)
	}
	wire := tbl.Wire()

	if len(wire) != BlockSize {
		t.Fatalf("expected a one-block table, got %d bytes", len(wire))
	}

	header := [][]byte{
		// Magic "PART"
		{0x50, 0x41, 0x52, 0x54},
		// Version
		{0x00, 0x00, 0x00, 0x01},
		// Size: one table block
		{0x00, 0x00, 0x00, 0x01},
		// EntrySize
		{0x00, 0x00, 0x00, 0x80},
		// EntryCount
		{0x00, 0x00, 0x00, 0x01},
		// BlockSize
		{0x00, 0x00, 0x10, 0x00},
		// BlockCount: 1 header block + 0x90 partition blocks
		{0x00, 0x00, 0x00, 0x91},
	}
	for i, want := range header {
		if got := wire[4*i : 4*i+4]; !bytes.Equal(got, want) {
			t.Errorf("header word %d: expected % x, got % x", i, want, got)
		}
	}
	// Header checksum: XOR of the seven words above.
	if want, got := []byte{0x50, 0x41, 0x42, 0x44}, wire[44:48]; !bytes.Equal(got, want) {
		t.Errorf("header checksum: expected % x, got % x", want, got)
	}

	entry := wire[HeaderSize : HeaderSize+EntrySize]
	if want := append([]byte("HBB"), make([]byte, 13)...); !bytes.Equal(entry[0:16], want) {
		t.Errorf("name: expected % x, got % x", want, entry[0:16])
	}
	fields := []struct {
		name string
		off  int
		want []byte
	}{
		{"base", 16, []byte{0x00, 0x00, 0x00, 0x01}},
		{"size", 20, []byte{0x00, 0x00, 0x00, 0x90}},
		{"pid", 24, []byte{0xff, 0xff, 0xff, 0xff}},
		{"id", 28, []byte{0x00, 0x00, 0x00, 0x01}},
		{"type", 32, []byte{0x00, 0x00, 0x00, 0x01}},
		{"flags", 36, []byte{0x00, 0x00, 0x00, 0x00}},
		{"actual", 40, []byte{0x00, 0x09, 0x00, 0x00}},
		{"user0", 60, []byte{0x00, 0x00, 0x80, 0x00}},
		{"user1", 64, []byte{0x00, 0x80, 0x00, 0x00}},
	}
	for _, f := range fields {
		if got := entry[f.off : f.off+4]; !bytes.Equal(got, f.want) {
			t.Errorf("%s: expected % x, got % x", f.name, f.want, got)
		}
	}
	var want [4]byte
	binary.BigEndian.PutUint32(want[:], tbl.Entries()[0].Checksum)
	if got := entry[124:128]; !bytes.Equal(got, want[:]) {
		t.Errorf("entry checksum: expected % x, got % x", want, got)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		files []string
	}{
		{"empty", []string{"# no content"}, nil},
		{"one", []string{
			"partition01=HBB,00010000,000a0000,ECC",
		}, []string{"HBB"}},
		{"several", []string{
			"partition00=TOC,00000000,00001000",
			"partition01=HBB,00010000,000a0000,ECC,PRESERVED",
			"partition02=HBI,000a0000,00400000,READONLY",
		}, []string{"TOC", "HBB", "HBI"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeTOC(t, tt.lines, tt.files...)
			tbl, err := ReadTable(dir)
			if err != nil {
				t.Fatal(err)
			}

			decoded, err := DecodeTable(tbl.Wire())
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(tbl.Header(), decoded.Header()) {
				t.Errorf("header: expected %+v, got %+v", tbl.Header(), decoded.Header())
			}
			if !reflect.DeepEqual(tbl.Entries(), decoded.Entries()) {
				t.Errorf("entries: expected %+v, got %+v", tbl.Entries(), decoded.Entries())
			}
			if !bytes.Equal(tbl.Wire(), decoded.Wire()) {
				t.Error("re-encoded wire buffer differs")
			}
		})
	}
}

func TestDecodeBadMagic(t *testing.T) {
	dir := writeTOC(t, []string{"partition00=P,00000000,00001000"}, "P")
	tbl, err := ReadTable(dir)
	if err != nil {
		t.Fatal(err)
	}

	wire := append([]byte(nil), tbl.Wire()...)
	wire[0] ^= 0xff
	if _, err := DecodeTable(wire); err == nil ||
		!strings.Contains(err.Error(), "bad table magic") {
		t.Errorf("expected bad magic error, got %v", err)
	}
}

func TestDecodeCorruptEntry(t *testing.T) {
	dir := writeTOC(t, []string{
		"partition00=TOC,00000000,00001000",
		"partition01=HBB,00010000,000a0000",
	}, "TOC", "HBB")
	tbl, err := ReadTable(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a byte inside the second entry's name field.
	wire := append([]byte(nil), tbl.Wire()...)
	wire[HeaderSize+EntrySize+1] ^= 0xff
	_, err = DecodeTable(wire)
	if err == nil {
		t.Fatal("expected a corrupt table error")
	}
	var cerr *ChecksumError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a ChecksumError, got %v", err)
	}
	if !strings.Contains(cerr.Record, "entry 1") {
		t.Errorf("expected the error to name entry 1, got %q", cerr.Record)
	}
}

func TestDecodeTruncated(t *testing.T) {
	dir := writeTOC(t, []string{"partition00=P,00000000,00001000"}, "P")
	tbl, err := ReadTable(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeTable(tbl.Wire()[:HeaderSize+10]); err == nil ||
		!strings.Contains(err.Error(), "truncated") {
		t.Errorf("expected truncation error, got %v", err)
	}
	if _, err := DecodeTable(tbl.Wire()[:10]); err == nil ||
		!strings.Contains(err.Error(), "too small") {
		t.Errorf("expected short buffer error, got %v", err)
	}
}
