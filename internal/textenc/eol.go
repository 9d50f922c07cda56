package textenc

import "strings"

// EOL is a line-ending style.
type EOL int

const (
	LF EOL = iota
	CRLF
	CR
)

func (e EOL) String() string {
	switch e {
	case CRLF:
		return "CRLF"
	case CR:
		return "CR"
	default:
		return "LF"
	}
}

// Terminator returns the byte sequence for e.
func (e EOL) Terminator() string {
	switch e {
	case CRLF:
		return "\r\n"
	case CR:
		return "\r"
	default:
		return "\n"
	}
}

// ParseEOL maps a configuration value ("lf", "crlf", "cr") to an EOL.
func ParseEOL(s string) (EOL, bool) {
	switch strings.ToLower(s) {
	case "lf":
		return LF, true
	case "crlf":
		return CRLF, true
	case "cr":
		return CR, true
	}
	return LF, false
}

// EOLReport is the result of DetectEOL.
type EOLReport struct {
	Mode  EOL
	CRLF  int
	LF    int
	CR    int
	Mixed bool // more than one style was seen
}

// DetectEOL counts line endings in the first limit bytes of text (all of it
// when limit <= 0) and picks the majority. Ties and documents without line
// breaks fall back to def.
func DetectEOL(text string, limit int, def EOL) EOLReport {
	if limit > 0 && len(text) > limit {
		text = text[:limit]
	}
	var r EOLReport
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				r.CRLF++
				i++
			} else {
				r.CR++
			}
		case '\n':
			r.LF++
		}
	}
	kinds := 0
	for _, n := range []int{r.CRLF, r.LF, r.CR} {
		if n > 0 {
			kinds++
		}
	}
	r.Mixed = kinds > 1

	r.Mode = def
	switch {
	case r.LF > r.CRLF && r.LF > r.CR:
		r.Mode = LF
	case r.CRLF > r.LF && r.CRLF > r.CR:
		r.Mode = CRLF
	case r.CR > r.LF && r.CR > r.CRLF:
		r.Mode = CR
	}
	return r
}

// NormalizeEOL rewrites every line ending in text to mode. Applying it twice
// gives the same result as applying it once.
func NormalizeEOL(text string, mode EOL) string {
	if !strings.ContainsRune(text, '\r') && mode == LF {
		return text
	}
	unified := strings.ReplaceAll(text, "\r\n", "\n")
	unified = strings.ReplaceAll(unified, "\r", "\n")
	if mode == LF {
		return unified
	}
	return strings.ReplaceAll(unified, "\n", mode.Terminator())
}

// SplitLines splits text normalized to mode into lines without terminators.
// A trailing terminator does not produce an extra empty line.
func SplitLines(text string, mode EOL) []string {
	if text == "" {
		return []string{""}
	}
	lines := strings.Split(text, mode.Terminator())
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
