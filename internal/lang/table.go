// Package lang maps a document to a language tag and the per-language
// editing strategy: line comment syntax and the keywords after which the
// next line is indented.
package lang

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"codeberg.org/sigterm-de/goscribe/assets"
	"gopkg.in/yaml.v3"
)

// Language is one row of the strategy table.
type Language struct {
	Tag              string   `yaml:"tag"`
	Name             string   `yaml:"name"`
	Extensions       []string `yaml:"extensions"`
	CommentPrefix    string   `yaml:"comment"`
	IndentOnKeywords []string `yaml:"indent-after"`
	Runnable         bool     `yaml:"runnable"` // can be run by the embedded engine
	Content          string   `yaml:"content"`  // sniffer recognising the language from text
	Interpreters     []string `yaml:"interpreters"`
}

// CommentLength is the byte length of the comment prefix.
func (l Language) CommentLength() int { return len(l.CommentPrefix) }

// Plain is returned when nothing matches.
var Plain = Language{Tag: "text", Name: "Plain text"}

// Table is the strategy map from tag to Language.
type Table struct {
	byTag    map[string]Language
	byExt    map[string]string
	byInterp map[string]string
	sniffed  []Language // entries with a content sniffer, in table order
}

// Parse builds a Table from YAML of the form `languages: [...]`.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		Languages []Language `yaml:"languages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lang: parse table: %w", err)
	}
	t := &Table{
		byTag:    make(map[string]Language),
		byExt:    make(map[string]string),
		byInterp: make(map[string]string),
	}
	for _, l := range doc.Languages {
		if l.Tag == "" {
			return nil, fmt.Errorf("lang: entry %q has no tag", l.Name)
		}
		if _, ok := sniffers[l.Content]; l.Content != "" && !ok {
			return nil, fmt.Errorf("lang: %s: unknown content sniffer %q", l.Tag, l.Content)
		}
		t.byTag[l.Tag] = l
		for _, ext := range l.Extensions {
			t.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = l.Tag
		}
		for _, prog := range l.Interpreters {
			t.byInterp[prog] = l.Tag
		}
		if l.Content != "" {
			t.sniffed = append(t.sniffed, l)
		}
	}
	return t, nil
}

// Default parses the embedded table.
func Default() (*Table, error) {
	return Parse(assets.Languages())
}

// Lookup returns the language for tag.
func (t *Table) Lookup(tag string) (Language, bool) {
	l, ok := t.byTag[tag]
	return l, ok
}

// ForFile picks a language by extension first, then by content.
func (t *Table) ForFile(path, content string) Language {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if tag, ok := t.byExt[ext]; ok {
		return t.byTag[tag]
	}
	l, _ := t.ForContent(content)
	return l
}

// Tags lists the known tags in sorted order.
func (t *Table) Tags() []string {
	tags := make([]string, 0, len(t.byTag))
	for tag := range t.byTag {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// ToggleComment comments every line of lines when any of them is
// uncommented, otherwise uncomments them all. Blank lines are left alone.
// Languages without a line comment return lines unchanged.
func (l Language) ToggleComment(lines []string) []string {
	if l.CommentPrefix == "" {
		return lines
	}
	allCommented := true
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed != "" && !strings.HasPrefix(trimmed, l.CommentPrefix) {
			allCommented = false
			break
		}
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		body := line[len(indent):]
		switch {
		case body == "":
			out[i] = line
		case allCommented:
			body = strings.TrimPrefix(body, l.CommentPrefix)
			out[i] = indent + strings.TrimPrefix(body, " ")
		default:
			out[i] = indent + l.CommentPrefix + " " + body
		}
	}
	return out
}

// IndentAfter returns the indentation for the line following prev: prev's
// own leading whitespace, plus one unit when prev ends with (or starts with)
// one of the language's block keywords.
func (l Language) IndentAfter(prev, unit string) string {
	indent := prev[:len(prev)-len(strings.TrimLeft(prev, " \t"))]
	trimmed := strings.TrimSpace(prev)
	if trimmed == "" {
		return indent
	}
	fields := strings.Fields(trimmed)
	first, last := fields[0], fields[len(fields)-1]
	for _, kw := range l.IndentOnKeywords {
		if first == kw || last == kw {
			return indent + unit
		}
		// punctuation such as "{" or ":" may be glued to the last word
		if !isLetter(kw[0]) && strings.HasSuffix(trimmed, kw) {
			return indent + unit
		}
	}
	return indent
}
