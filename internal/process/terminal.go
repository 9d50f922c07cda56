package process

import (
	"strings"

	"codeberg.org/sigterm-de/goscribe/internal/config"
)

// BuildTerminalCommand produces the shell command line that opens the
// configured terminal emulator running cmd. The Args template may use
// {title}, {shell}, {dir} and {cmd}; each expands to a single-quoted shell
// word. An empty template falls back to "-e {shell} -c {cmd}".
func BuildTerminalCommand(t config.Terminal, title, cmd, dir string) string {
	args := t.Args
	if strings.TrimSpace(args) == "" {
		args = "-e {shell} -c {cmd}"
	}
	shell := t.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	r := strings.NewReplacer(
		"{title}", Quote(title),
		"{shell}", Quote(shell),
		"{dir}", Quote(dir),
		"{cmd}", Quote(cmd),
	)
	return Quote(t.Path) + " " + r.Replace(args)
}

// Quote returns s as one single-quoted POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:,+@%", r):
		return false
	}
	return true
}
