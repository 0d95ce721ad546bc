// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pnortool inspects a virtual PNOR partition directory.
//
// Synopsis:
//     pnortool show [-d DIR]
//     pnortool lookup [-d DIR] -o OFFSET
//     pnortool wire [-d DIR] [-f FILE]
//     pnortool verify -f FILE
//
// Description:
//     show:   Build the partition table from the TOC and print it.
//     lookup: Report which partition owns a flash byte offset.
//     wire:   Emit the big-endian wire table, as served to the host.
//     verify: Decode and checksum-verify an existing wire table.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jessevdk/go-flags"

	"github.com/linuxboot/vpnor/pkg/vpnor"
)

type dirOptions struct {
	Directory string `short:"d" long:"directory" description:"partition directory containing pnor.toc" default:"/usr/share/pnor"`
}

type showCmd struct {
	dirOptions
}

func attrNames(e *vpnor.Entry) string {
	var names []string
	if e.ECCProtected() {
		names = append(names, "ECC")
	}
	if e.ReadOnly() {
		names = append(names, "READONLY")
	}
	if e.Preserved() {
		names = append(names, "PRESERVED")
	}
	return strings.Join(names, "|")
}

func (c *showCmd) Execute(args []string) error {
	t, err := vpnor.ReadTable(c.Directory)
	if err != nil {
		return err
	}

	hdr := t.Header()
	h := table.NewWriter()
	h.SetOutputMirror(os.Stdout)
	h.SetTitle("Partition table header")
	h.AppendHeader(table.Row{"Magic", "Version", "Table Blocks", "Entries", "Image Blocks"})
	h.AppendRow([]interface{}{
		fmt.Sprintf("%#08x", hdr.Magic), hdr.Version, hdr.Size, hdr.EntryCount, hdr.BlockCount,
	})
	h.Render()

	p := table.NewWriter()
	p.SetOutputMirror(os.Stdout)
	p.SetTitle("Partitions")
	p.AppendHeader(table.Row{"ID", "Name", "Base", "Blocks", "Actual", "Attributes"})
	for i := range t.Entries() {
		e := &t.Entries()[i]
		p.AppendRow([]interface{}{
			e.ID,
			e.Name.String(),
			fmt.Sprintf("%#x", e.Base),
			e.Size,
			humanize.IBytes(uint64(e.Actual)),
			attrNames(e),
		})
	}
	p.Render()
	return nil
}

type lookupCmd struct {
	dirOptions
	Offset string `short:"o" long:"offset" required:"true" description:"flash byte offset (0x prefix for hex)"`
}

func (c *lookupCmd) Execute(args []string) error {
	offset, err := strconv.ParseUint(c.Offset, 0, 64)
	if err != nil {
		return fmt.Errorf("bad offset %q: %w", c.Offset, err)
	}
	t, err := vpnor.ReadTable(c.Directory)
	if err != nil {
		return err
	}
	e, ok := t.Partition(offset)
	if !ok {
		fmt.Printf("no partition at offset %#x\n", offset)
		return nil
	}
	fmt.Printf("offset %#x belongs to %s (id %d, blocks %#x..%#x)\n",
		offset, e.Name.String(), e.ID, e.Base, e.Base+e.Size)
	return nil
}

type wireCmd struct {
	dirOptions
	File string `short:"f" long:"file" description:"output file (default stdout)"`
}

func (c *wireCmd) Execute(args []string) error {
	t, err := vpnor.ReadTable(c.Directory)
	if err != nil {
		return err
	}
	if c.File == "" {
		_, err := os.Stdout.Write(t.Wire())
		return err
	}
	return os.WriteFile(c.File, t.Wire(), 0o644)
}

type verifyCmd struct {
	File string `short:"f" long:"file" required:"true" description:"wire table to verify"`
}

func (c *verifyCmd) Execute(args []string) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	t, err := vpnor.DecodeTable(data)
	if err != nil {
		return err
	}
	fmt.Printf("%s: valid table, %d partitions, %d image blocks\n",
		c.File, t.Header().EntryCount, t.Header().BlockCount)
	return nil
}

func main() {
	parser := flags.NewParser(nil, flags.Default)
	for _, cmd := range []struct {
		name, description string
		command           interface{}
	}{
		{"show", "print the partition table built from a TOC directory", &showCmd{}},
		{"lookup", "find the partition owning a flash offset", &lookupCmd{}},
		{"wire", "emit the big-endian wire table", &wireCmd{}},
		{"verify", "decode and checksum-verify a wire table", &verifyCmd{}},
	} {
		if _, err := parser.AddCommand(cmd.name, cmd.description, "", cmd.command); err != nil {
			panic(err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		log.Fatal(err)
	}
}
