// Copyright 2023 the LinuxBoot Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vpnor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/linuxboot/vpnor/pkg/log"
)

const (
	// TOCFile is the table-of-contents file name within the partition
	// directory.
	TOCFile = "pnor.toc"

	// DefaultDir is where the daemon looks for the TOC and partition
	// files when no directory is given.
	DefaultDir = "/usr/share/pnor"
)

// A TOC partition line looks like:
//
//	partition01=HBB,00010000,000a0000,ECC,PRESERVED
//
// with start and end byte addresses in hex and trailing tokens naming
// partition attributes. Anything not matching the pattern is treated
// as a comment.
var tocLine = regexp.MustCompile(
	`^partition([0-9]+)=([A-Za-z0-9_]+),([0-9a-fA-F]+),([0-9a-fA-F]+)(.*)$`)

// tocPartition is one accepted TOC line, before layout.
type tocPartition struct {
	id    uint32
	name  string
	start uint64
	end   uint64
	attrs []string
}

// parseTOC reads the TOC file in directory once, returning the
// accepted partitions in file order together with the count of lines
// containing "partition". The count intentionally over-approximates
// the entry count: lines rejected below still reserve header space,
// so the layout matches what hosts have always been given.
//
// A line whose partition file is missing, or whose end address
// precedes its start, is logged and dropped. The table is built from
// whatever remains.
func parseTOC(directory string) ([]tocPartition, int, error) {
	path := filepath.Join(directory, TOCFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("cannot open TOC: %w", err)
	}
	defer f.Close()

	var parts []tocPartition
	hint := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "partition") {
			hint++
		}
		m := tocLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			log.Errorf("partition %s has unusable id %q: %v", m[2], m[1], err)
			continue
		}
		start, err := strconv.ParseUint(m[3], 16, 32)
		if err != nil {
			log.Errorf("partition %s has unusable start address %q: %v", m[2], m[3], err)
			continue
		}
		end, err := strconv.ParseUint(m[4], 16, 32)
		if err != nil {
			log.Errorf("partition %s has unusable end address %q: %v", m[2], m[4], err)
			continue
		}
		if end < start {
			log.Errorf("partition %s has end %#x before start %#x, skipping", m[2], end, start)
			continue
		}
		file := filepath.Join(directory, m[2])
		if _, err := os.Stat(file); err != nil {
			log.Errorf("partition file %s does not exist", file)
			continue
		}
		parts = append(parts, tocPartition{
			id:    uint32(id),
			name:  m[2],
			start: start,
			end:   end,
			attrs: splitAttrs(m[5]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading TOC %s: %w", path, err)
	}
	return parts, hint, nil
}

func splitAttrs(rest string) []string {
	rest = strings.TrimPrefix(rest, ",")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, ",")
}

// userdata maps attribute tokens to user words. Tokens are matched
// exactly; unknown ones are ignored.
func userdata(attrs []string) [userWords]uint32 {
	var user [userWords]uint32
	for _, a := range attrs {
		switch a {
		case "ECC":
			user[0] = UserECCProtected
		case "READONLY":
			user[1] |= UserReadOnly
		case "PRESERVED":
			user[1] |= UserPreserved
		}
	}
	return user
}
