// Package textbuf is the in-memory Text Buffer: line storage, per-line
// marker bits, selection and a read-only switch. It is not safe for
// concurrent use; the document's UI goroutine owns it.
package textbuf

import (
	"errors"
	"strings"
)

// Marker is a bit set of line markers. The low five bits are the ones
// persisted in the companion marker file.
type Marker uint8

const (
	Bookmark   Marker = 0x01
	Breakpoint Marker = 0x02
	Folded     Marker = 0x04
	Saved      Marker = 0x08
	Find       Marker = 0x10
	ErrorLine  Marker = 0x20
	Current    Marker = 0x40

	Persisted = Bookmark | Breakpoint | Folded | Saved | Find
)

// ErrReadOnly is returned by mutations while the buffer is read-only.
var ErrReadOnly = errors.New("textbuf: buffer is read-only")

// Selection is a byte range in the text joined with "\n". Start <= End.
type Selection struct {
	Start, End int
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool { return s.Start == s.End }

type Buffer struct {
	lines    []string
	marks    []Marker
	sel      Selection
	readOnly bool
	useTabs  bool
	tabWidth int
}

// New returns a buffer holding lines. An empty document has one empty line.
func New(lines []string) *Buffer {
	b := &Buffer{useTabs: true, tabWidth: 4}
	b.swap(lines)
	return b
}

func (b *Buffer) swap(lines []string) {
	if len(lines) == 0 {
		lines = []string{""}
	}
	b.lines = lines
	marks := make([]Marker, len(lines))
	copy(marks, b.marks)
	b.marks = marks
	b.sel = b.clamp(b.sel)
}

// LineCount returns the number of lines, at least 1.
func (b *Buffer) LineCount() int { return len(b.lines) }

// Line returns line n (1-based) and whether it exists.
func (b *Buffer) Line(n int) (string, bool) {
	if n < 1 || n > len(b.lines) {
		return "", false
	}
	return b.lines[n-1], true
}

// Lines returns a copy of every line.
func (b *Buffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Text joins the lines with sep.
func (b *Buffer) Text(sep string) string { return strings.Join(b.lines, sep) }

// SetLines replaces the whole content. Markers of surviving line numbers are
// kept and the selection is clamped.
func (b *Buffer) SetLines(lines []string) error {
	if b.readOnly {
		return ErrReadOnly
	}
	b.swap(lines)
	return nil
}

// ReplaceLines replaces lines from..to (1-based, inclusive) with repl,
// which must have the same length.
func (b *Buffer) ReplaceLines(from int, repl []string) error {
	if b.readOnly {
		return ErrReadOnly
	}
	if from < 1 || from-1+len(repl) > len(b.lines) {
		return errors.New("textbuf: line range out of bounds")
	}
	copy(b.lines[from-1:], repl)
	return nil
}

// ReplaceSelection replaces the selected text (the whole document when
// nothing is selected) and selects the result.
func (b *Buffer) ReplaceSelection(text string) error {
	sel := b.sel
	if sel.Empty() {
		sel = Selection{0, len(b.Text("\n"))}
	}
	return b.replaceRange(sel, text)
}

// InsertAtCursor inserts text at the end of the selection.
func (b *Buffer) InsertAtCursor(text string) error {
	return b.replaceRange(Selection{b.sel.End, b.sel.End}, text)
}

func (b *Buffer) replaceRange(sel Selection, text string) error {
	if b.readOnly {
		return ErrReadOnly
	}
	all := b.Text("\n")
	sel = b.clamp(sel)
	all = all[:sel.Start] + text + all[sel.End:]
	b.swap(strings.Split(all, "\n"))
	b.sel = Selection{sel.Start, sel.Start + len(text)}
	return nil
}

func (b *Buffer) SetReadOnly(ro bool) { b.readOnly = ro }
func (b *Buffer) ReadOnly() bool      { return b.readOnly }

// AddMarker sets kind on line n. It reports false for a line that does not
// exist.
func (b *Buffer) AddMarker(n int, kind Marker) bool {
	if n < 1 || n > len(b.marks) {
		return false
	}
	b.marks[n-1] |= kind
	return true
}

// DeleteMarker clears kind on line n.
func (b *Buffer) DeleteMarker(n int, kind Marker) {
	if n >= 1 && n <= len(b.marks) {
		b.marks[n-1] &^= kind
	}
}

// ToggleMarker flips kind on line n and reports whether it is now set.
func (b *Buffer) ToggleMarker(n int, kind Marker) bool {
	if n < 1 || n > len(b.marks) {
		return false
	}
	b.marks[n-1] ^= kind
	return b.marks[n-1]&kind != 0
}

// DeleteMarkers clears kind on every line.
func (b *Buffer) DeleteMarkers(kind Marker) {
	for i := range b.marks {
		b.marks[i] &^= kind
	}
}

func (b *Buffer) HasMarker(n int, kind Marker) bool {
	return b.Markers(n)&kind != 0
}

// Markers returns the marker bits of line n.
func (b *Buffer) Markers(n int) Marker {
	if n < 1 || n > len(b.marks) {
		return 0
	}
	return b.marks[n-1]
}

// LinesWith lists, in ascending order, the lines carrying kind.
func (b *Buffer) LinesWith(kind Marker) []int {
	var out []int
	for i, m := range b.marks {
		if m&kind != 0 {
			out = append(out, i+1)
		}
	}
	return out
}

// Selection returns the current selection.
func (b *Buffer) Selection() Selection { return b.sel }

// SetSelection sets the selection, clamped to the text.
func (b *Buffer) SetSelection(s Selection) { b.sel = b.clamp(s) }

// SelectedText returns the selected text.
func (b *Buffer) SelectedText() string {
	return b.Text("\n")[b.sel.Start:b.sel.End]
}

func (b *Buffer) clamp(s Selection) Selection {
	n := len(b.Text("\n"))
	s.Start = min(max(s.Start, 0), n)
	s.End = min(max(s.End, 0), n)
	if s.End < s.Start {
		s.Start, s.End = s.End, s.Start
	}
	return s
}

// SetIndent configures the indentation unit.
func (b *Buffer) SetIndent(useTabs bool, width int) {
	b.useTabs = useTabs
	if width > 0 {
		b.tabWidth = width
	}
}

// IndentUnit is one level of indentation.
func (b *Buffer) IndentUnit() string {
	if b.useTabs {
		return "\t"
	}
	return strings.Repeat(" ", b.tabWidth)
}

func (b *Buffer) UseTabs() bool { return b.useTabs }
func (b *Buffer) TabWidth() int { return b.tabWidth }
