package lang

import (
	"encoding/json"
	"encoding/xml"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// maxDetectBytes caps the content a sniffer will parse.
const maxDetectBytes = 4 << 20

// sniffer reports whether trimmed, non-empty content is in one data format.
// A cheap structural gate runs before any parse.
type sniffer func(content string) bool

// sniffers are the names a table entry may list under `content:`.
var sniffers = map[string]sniffer{
	"html": isHTML,
	"json": isJSON,
	"xml":  isXML,
	"yaml": isYAML,
	"toml": isTOML,
}

// ForContent picks a language from content alone. A "#!" line naming one
// of a language's interpreters wins; otherwise the content sniffers run in
// table order and the first match is returned.
func (t *Table) ForContent(content string) (Language, bool) {
	if tag, ok := t.byInterp[interpreter(content)]; ok {
		return t.byTag[tag], true
	}
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxDetectBytes {
		return Plain, false
	}
	for _, l := range t.sniffed {
		if sniffers[l.Content](content) {
			return l, true
		}
	}
	return Plain, false
}

// interpreter returns the program named by a leading "#!" line, looking
// through env: "#!/usr/bin/env -S node --flag" gives "node".
func interpreter(content string) string {
	line, ok := strings.CutPrefix(content, "#!")
	if !ok {
		return ""
	}
	line, _, _ = strings.Cut(line, "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	prog := path.Base(fields[0])
	if prog != "env" {
		return prog
	}
	for _, f := range fields[1:] {
		if !strings.HasPrefix(f, "-") && !strings.Contains(f, "=") {
			return path.Base(f)
		}
	}
	return ""
}

func isJSON(s string) bool {
	return (s[0] == '{' || s[0] == '[') && json.Valid([]byte(s))
}

// isHTML looks for a doctype or an html element near the start. It runs
// before isXML in the default table since HTML is often not well-formed XML.
func isHTML(s string) bool {
	head := strings.ToLower(s[:min(512, len(s))])
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

func isXML(s string) bool {
	if !strings.HasPrefix(s, "<?xml") && (len(s) < 2 || s[0] != '<' || !(isLetter(s[1]) || s[1] == '!')) {
		return false
	}
	_, err := xml.NewDecoder(strings.NewReader(s)).Token()
	return err == nil
}

func isYAML(s string) bool {
	if !strings.HasPrefix(s, "---") && !isKeyLine(firstLine(s, "#"), ':') {
		return false
	}
	var v any
	return yaml.Unmarshal([]byte(s), &v) == nil && v != nil
}

func isTOML(s string) bool {
	first := firstLine(s, "#")
	table := strings.HasPrefix(first, "[") && strings.HasSuffix(first, "]")
	if !table && !isKeyLine(first, '=') {
		return false
	}
	var v map[string]any
	_, err := toml.Decode(s, &v)
	return err == nil && len(v) > 0
}

// isKeyLine matches a bare key followed by sep and then nothing, a space
// or a tab; '=' may also be preceded by spaces as TOML allows.
func isKeyLine(line string, sep byte) bool {
	i := strings.IndexByte(line, sep)
	if i < 1 {
		return false
	}
	key := line[:i]
	if sep == '=' {
		key = strings.TrimRight(key, " \t")
	}
	if key == "" || strings.ContainsAny(key, " \t/") {
		return false
	}
	rest := line[i+1:]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// firstLine returns the first of the leading ten lines that is neither
// blank nor a comment.
func firstLine(s, comment string) string {
	for i, line := range strings.SplitN(s, "\n", 11) {
		if i == 10 {
			break
		}
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, comment) {
			return line
		}
	}
	return ""
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
