// Package markers reads and writes the companion navigation file kept next
// to a document: per-line marker bits and the selection.
//
// Layout:
//
//	0x96                      header
//	0x10 n0 n1 n2 m[0..n)     MARKERS: 3-byte little-endian line count, one byte per line
//	0x20 s0 s1 s2 e0 e1 e2    SELECTION: start and end, 3-byte little-endian each
package markers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	header       = 0x96
	tagMarkers   = 0x10
	tagSelection = 0x20

	maxPacked = 1<<24 - 1
)

// ErrCorrupt is returned for data that does not follow the layout.
var ErrCorrupt = errors.New("markers: corrupt file")

// File is the decoded content. Lines holds one marker byte per line.
type File struct {
	Lines    []byte
	SelStart int
	SelEnd   int
}

// Encode serializes f. Counts and offsets must fit in 24 bits.
func Encode(f File) ([]byte, error) {
	if len(f.Lines) > maxPacked {
		return nil, fmt.Errorf("markers: %d lines exceed the packed limit", len(f.Lines))
	}
	if f.SelStart < 0 || f.SelEnd < 0 || f.SelStart > maxPacked || f.SelEnd > maxPacked {
		return nil, fmt.Errorf("markers: selection %d..%d out of range", f.SelStart, f.SelEnd)
	}
	out := make([]byte, 0, 1+4+len(f.Lines)+7)
	out = append(out, header, tagMarkers)
	out = appendPacked(out, len(f.Lines))
	out = append(out, f.Lines...)
	out = append(out, tagSelection)
	out = appendPacked(out, f.SelStart)
	out = appendPacked(out, f.SelEnd)
	return out, nil
}

// Decode parses data. Blocks may appear in either order; a missing block
// leaves the corresponding field zero.
func Decode(data []byte) (File, error) {
	var f File
	if len(data) == 0 || data[0] != header {
		return f, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	p := data[1:]
	for len(p) > 0 {
		tag := p[0]
		p = p[1:]
		switch tag {
		case tagMarkers:
			if len(p) < 3 {
				return f, fmt.Errorf("%w: short marker count", ErrCorrupt)
			}
			n := unpack(p)
			p = p[3:]
			if len(p) < n {
				return f, fmt.Errorf("%w: %d marker bytes, have %d", ErrCorrupt, n, len(p))
			}
			f.Lines = append([]byte(nil), p[:n]...)
			p = p[n:]
		case tagSelection:
			if len(p) < 6 {
				return f, fmt.Errorf("%w: short selection", ErrCorrupt)
			}
			f.SelStart, f.SelEnd = unpack(p), unpack(p[3:])
			p = p[6:]
		default:
			return f, fmt.Errorf("%w: unknown block 0x%02x", ErrCorrupt, tag)
		}
	}
	return f, nil
}

func appendPacked(b []byte, v int) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16))
}

func unpack(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

// CompanionPath returns the marker file path for the document at path.
func CompanionPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".nav")
}

// Save writes f as the companion of the document at docPath.
func Save(docPath string, f File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(CompanionPath(docPath), data, 0o644); err != nil {
		return fmt.Errorf("markers: write: %w", err)
	}
	return nil
}

// Load reads the companion of the document at docPath. A missing file
// yields os.ErrNotExist.
func Load(docPath string) (File, error) {
	data, err := os.ReadFile(CompanionPath(docPath))
	if err != nil {
		return File{}, fmt.Errorf("markers: read: %w", err)
	}
	return Decode(data)
}
