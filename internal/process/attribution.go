package process

import (
	"path/filepath"
	"regexp"
	"strconv"

	"codeberg.org/sigterm-de/goscribe/internal/logging"
)

// Built-in locations, tried in order: Python tracebacks, file(line) as
// printed by MSVC-style tools, and file:line as printed by most compilers,
// linters and interpreters.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`File "(?P<file>[^"]+)", line (?P<line>\d+)`),
	regexp.MustCompile(`(?P<file>[^\s:"'()]+)\((?P<line>\d+)(?:,\d+)?\)`),
	regexp.MustCompile(`(?P<file>[^\s:"'()]+):(?P<line>\d+)`),
}

// ParseErrorLine scans tool output for the first line number reported
// against file. Only the base name of file is compared; an empty file
// accepts any location. pattern, when set, is tried before the built-ins.
// It must have a group named "line" and may have one named "file"; without
// a "line" group its first group is used. It returns 0 when nothing matches.
func ParseErrorLine(output, file, pattern string) int {
	pats := builtinPatterns
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logging.Log(logging.WARN, "process", "bad error pattern", "pattern", pattern, "error", err)
		} else {
			pats = append([]*regexp.Regexp{re}, builtinPatterns...)
		}
	}
	want := ""
	if file != "" {
		want = filepath.Base(file)
	}
	for _, re := range pats {
		if n := firstLine(re, output, want); n > 0 {
			return n
		}
	}
	return 0
}

func firstLine(re *regexp.Regexp, output, want string) int {
	lineIdx, fileIdx := re.SubexpIndex("line"), re.SubexpIndex("file")
	if lineIdx < 0 {
		if re.NumSubexp() == 0 {
			return 0
		}
		lineIdx = 1
	}
	for _, m := range re.FindAllStringSubmatch(output, -1) {
		if want != "" && fileIdx >= 0 && filepath.Base(m[fileIdx]) != want {
			continue
		}
		if n, err := strconv.Atoi(m[lineIdx]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
