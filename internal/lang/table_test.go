package lang

import (
	"strings"
	"testing"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := Default()
	if err != nil {
		t.Fatalf("Default(): %v", err)
	}
	return tbl
}

func TestForFile(t *testing.T) {
	tbl := defaultTable(t)
	cases := []struct {
		path, content, want string
	}{
		{"main.js", "", "javascript"},
		{"SCRIPT.JS", "", "javascript"},
		{"init.lua", "", "lua"},
		{"tool.py", "", "python"},
		{"data", `{"a": 1}`, "json"},
		{"notes", "just words", "text"},
	}
	for _, tc := range cases {
		if got := tbl.ForFile(tc.path, tc.content); got.Tag != tc.want {
			t.Errorf("ForFile(%q) = %q; want %q", tc.path, got.Tag, tc.want)
		}
	}
}

func TestJavaScriptIsRunnable(t *testing.T) {
	l, ok := defaultTable(t).Lookup("javascript")
	if !ok || !l.Runnable || l.CommentPrefix != "//" || l.CommentLength() != 2 {
		t.Fatalf("javascript entry = %+v", l)
	}
}

func TestToggleComment(t *testing.T) {
	js := Language{Tag: "javascript", CommentPrefix: "//"}
	in := []string{"var a = 1;", "", "  if (a) {"}
	commented := js.ToggleComment(in)
	want := []string{"// var a = 1;", "", "  // if (a) {"}
	if strings.Join(commented, "\n") != strings.Join(want, "\n") {
		t.Fatalf("comment = %q; want %q", commented, want)
	}
	back := js.ToggleComment(commented)
	if strings.Join(back, "\n") != strings.Join(in, "\n") {
		t.Errorf("uncomment = %q; want %q", back, in)
	}

	mixed := js.ToggleComment([]string{"// a", "b"})
	if mixed[0] != "// // a" || mixed[1] != "// b" {
		t.Errorf("mixed block = %q; want every line commented", mixed)
	}

	if got := Plain.ToggleComment(in); &got[0] != &in[0] {
		t.Error("language without comment syntax should return lines unchanged")
	}
}

func TestIndentAfter(t *testing.T) {
	lua := Language{IndentOnKeywords: []string{"then", "do", "function", "{"}}
	cases := []struct {
		prev, want string
	}{
		{"if x then", "\t"},
		{"  for i = 1, 3 do", "  \t"},
		{"local t = {", "\t"},
		{"function f()", "\t"},
		{"undo()", ""},
		{"    print(x)", "    "},
		{"", ""},
	}
	for _, tc := range cases {
		if got := lua.IndentAfter(tc.prev, "\t"); got != tc.want {
			t.Errorf("IndentAfter(%q) = %q; want %q", tc.prev, got, tc.want)
		}
	}
}

func TestParseRejectsMissingTag(t *testing.T) {
	if _, err := Parse([]byte("languages:\n  - name: nameless\n")); err == nil {
		t.Error("Parse should reject an entry without a tag")
	}
}
