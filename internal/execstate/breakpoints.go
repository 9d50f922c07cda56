package execstate

import "slices"

// Breakpoints is an immutable set of 1-based line numbers.
type Breakpoints struct {
	lines map[int]struct{}
}

func NewBreakpoints(lines []int) *Breakpoints {
	b := &Breakpoints{lines: make(map[int]struct{}, len(lines))}
	for _, l := range lines {
		if l > 0 {
			b.lines[l] = struct{}{}
		}
	}
	return b
}

func (b *Breakpoints) Has(line int) bool {
	_, ok := b.lines[line]
	return ok
}

func (b *Breakpoints) Len() int { return len(b.lines) }

// Lines returns the set in ascending order.
func (b *Breakpoints) Lines() []int {
	out := make([]int, 0, len(b.lines))
	for l := range b.lines {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}
