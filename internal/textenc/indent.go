package textenc

// candidateWidths are the space indentation widths InferIndent can pick.
var candidateWidths = []int{3, 4, 6, 8}

// IndentGuess is the result of InferIndent.
type IndentGuess struct {
	TabLines   int
	SpaceLines int
	Width      int  // inferred space width; 0 when no space-led line was seen
	UseSpaces  bool // spaces strictly outnumber tabs
}

// InferIndent scans up to maxLines lines (all when maxLines <= 0) and
// classifies each indented line as tab-led or space-led. For the space-led
// lines the width in {3,4,6,8} that divides the most indentation counts
// wins; ties go to the wider candidate so an 8-space file is not read as 4.
func InferIndent(lines []string, maxLines int) IndentGuess {
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	var g IndentGuess
	score := make(map[int]int, len(candidateWidths))
	for _, line := range lines {
		if line == "" {
			continue
		}
		switch line[0] {
		case '\t':
			g.TabLines++
		case ' ':
			n := 0
			for n < len(line) && line[n] == ' ' {
				n++
			}
			if n == len(line) || line[n] == '\t' {
				// whitespace-only or mixed lines say nothing about width
				continue
			}
			g.SpaceLines++
			for _, w := range candidateWidths {
				if n%w == 0 {
					score[w]++
				}
			}
		}
	}
	best := 0
	for _, w := range candidateWidths {
		if score[w] > 0 && score[w] >= score[best] {
			best = w
		}
	}
	g.Width = best
	g.UseSpaces = g.SpaceLines > g.TabLines && best > 0
	return g
}
