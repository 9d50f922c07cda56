package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"codeberg.org/sigterm-de/goscribe/internal/textbuf"
	"codeberg.org/sigterm-de/goscribe/internal/textenc"
)

func input(doc Document, src string) ExecutionInput {
	return ExecutionInput{
		ScriptSource: src,
		ScriptName:   "test-script",
		Doc:          doc,
		Timeout:      5 * time.Second,
	}
}

func noSelInput(text, src string) ExecutionInput {
	return input(Document{Text: text}, src)
}

func run(inp ExecutionInput) ExecutionResult {
	return NewExecutor().Execute(context.Background(), inp)
}

func TestTransformMutations(t *testing.T) {
	cases := []struct {
		name     string
		inp      ExecutionInput
		kind     MutationKind
		wantText string
	}{
		{"text", noSelInput("hello", `function main(state) { state.text = state.text.toUpperCase(); }`),
			MutationReplaceSelect, "HELLO"},
		{"fullText", noSelInput("abc", `function main(state) { state.fullText = "XYZ"; }`),
			MutationReplaceDoc, "XYZ"},
		{"insert", input(Document{}, `function main(state) { state.insert("HELLO"); }`),
			MutationInsertAtCursor, "HELLO"},
		{"text wins over fullText", noSelInput("a", `function main(state) { state.fullText = "doc"; state.text = "sel"; }`),
			MutationReplaceSelect, "sel"},
		{"read only", noSelInput("hello", `function main(state) { var x = state.fullText.length; }`),
			MutationNone, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := run(tc.inp)
			if !res.Success {
				t.Fatalf("expected success, got error: %s", res.ErrorMessage)
			}
			if res.MutationKind != tc.kind {
				t.Fatalf("MutationKind = %d, want %d", res.MutationKind, tc.kind)
			}
			var got string
			switch tc.kind {
			case MutationReplaceSelect:
				got = res.NewText
			case MutationReplaceDoc:
				got = res.NewFullText
			case MutationInsertAtCursor:
				got = res.InsertText
			}
			if got != tc.wantText {
				t.Errorf("text = %q, want %q", got, tc.wantText)
			}
		})
	}
}

func TestTransformSeesDocument(t *testing.T) {
	doc := Document{
		Text:      "one\ntwo\nthree",
		Selection: textbuf.Selection{Start: 4, End: 7},
		EOL:       textenc.CRLF,
		Language:  "yaml",
		Name:      "list.yml",
	}
	res := run(input(doc, `function main(state) {
		state.postInfo([state.text, state.selection.start, state.selection.end, state.selection.empty,
			JSON.stringify(state.eol), state.language, state.name, state.lines.length].join(" "));
		state.selection.start = 0;
		state.text = state.text.toUpperCase();
	}`))
	if !res.Success {
		t.Fatal(res.ErrorMessage)
	}
	if want := `two 4 7 false "\r\n" yaml list.yml 3`; res.InfoMessage != want {
		t.Errorf("info = %q, want %q", res.InfoMessage, want)
	}
	if res.MutationKind != MutationReplaceSelect || res.NewText != "TWO" || res.Selection != doc.Selection {
		t.Errorf("result = %+v", res)
	}
}

func TestTransformEmptySelectionCoversDocument(t *testing.T) {
	res := run(input(Document{Text: "ab\ncd", Selection: textbuf.Selection{Start: 3, End: 3}},
		`function main(state) { state.text = state.selection.empty + ":" + state.text; }`))
	if res.NewText != "true:ab\ncd" || res.Selection != (textbuf.Selection{Start: 0, End: 5}) {
		t.Fatalf("result = %+v", res)
	}
}

func TestTransformLinesWritesDocument(t *testing.T) {
	res := run(noSelInput("b\na\nc", `function main(state) { state.lines = state.lines.sort(); }`))
	if res.MutationKind != MutationReplaceDoc || res.NewFullText != "a\nb\nc" {
		t.Fatalf("result = %+v", res)
	}
	res = run(noSelInput("x", `function main(state) { state.lines = 42; }`))
	if res.Success {
		t.Fatalf("assigning a number to state.lines succeeded: %+v", res)
	}
}

func TestTransformPostErrorDiscardsMutations(t *testing.T) {
	res := run(noSelInput("hello",
		`function main(state) { state.fullText = "REPLACED"; state.postError("oops"); }`))
	if res.Success {
		t.Fatal("expected failure after postError")
	}
	if res.ErrorMessage != "oops" || res.MutationKind != MutationNone {
		t.Fatalf("result = %+v", res)
	}
}

func TestTransformPostInfo(t *testing.T) {
	res := run(noSelInput("a\nb", `function main(state) { state.postInfo("2 lines"); }`))
	if !res.Success || res.InfoMessage != "2 lines" {
		t.Fatalf("result = %+v", res)
	}
}

func TestTransformExceptionReportsLine(t *testing.T) {
	res := run(noSelInput("hello", "function main(state) {\n  state.fullText = 'x';\n  throw new Error('boom');\n}"))
	if res.Success {
		t.Fatal("expected failure after unhandled exception")
	}
	if res.MutationKind != MutationNone {
		t.Fatalf("MutationKind = %d, want none", res.MutationKind)
	}
	if res.ErrorLine != 3 || !strings.Contains(res.ErrorMessage, "boom") {
		t.Errorf("error = %q at line %d", res.ErrorMessage, res.ErrorLine)
	}
}

func TestTransformTimeout(t *testing.T) {
	inp := noSelInput("x", `function main(state) { while(true) {} }`)
	inp.Timeout = 200 * time.Millisecond
	res := run(inp)
	if res.Success || !res.TimedOut || res.ErrorMessage == "" {
		t.Fatalf("result = %+v, want timeout", res)
	}
}

func TestTransformContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	res := NewExecutor().Execute(ctx, noSelInput("x", `function main(state) { while(true) {} }`))
	if res.Success || !res.Cancelled || res.TimedOut {
		t.Fatalf("result = %+v, want cancelled", res)
	}
}

func TestTransformMissingMain(t *testing.T) {
	res := run(noSelInput("x", `var a = 1;`))
	if res.Success || !strings.Contains(res.ErrorMessage, "main") {
		t.Fatalf("result = %+v", res)
	}
}

func TestTransformBtoaAtob(t *testing.T) {
	res := run(noSelInput("hello", `function main(state) { state.text = btoa(state.text); }`))
	if res.NewText != "aGVsbG8=" {
		t.Fatalf("btoa = %q (%s)", res.NewText, res.ErrorMessage)
	}
	res = run(noSelInput("", `function main(state) { state.text = atob("aGVsbG8="); }`))
	if res.NewText != "hello" {
		t.Fatalf("atob = %q (%s)", res.NewText, res.ErrorMessage)
	}
	if res := run(noSelInput("", `function main(state) { state.text = atob("!!!not-base64!!!"); }`)); res.Success {
		t.Fatal("expected failure for invalid base64")
	}
	if res := run(noSelInput("", `function main(state) { state.text = btoa("€"); }`)); res.Success {
		t.Fatal("btoa should reject characters outside Latin-1")
	}
}

func TestTransformYAMLModule(t *testing.T) {
	res := run(noSelInput("name: Alice\nage: 30", `
var yaml = require('@goscribe/yaml');
function main(state) {
    var obj = yaml.parse(state.fullText);
    state.fullText = yaml.stringify({name: obj.name, age: obj.age + 1});
}`))
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.ErrorMessage)
	}
	if !strings.Contains(res.NewFullText, "Alice") || !strings.Contains(res.NewFullText, "31") {
		t.Errorf("output = %q", res.NewFullText)
	}
}

func TestTransformPlistModule(t *testing.T) {
	plistXML := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0"><dict><key>foo</key><string>bar</string></dict></plist>`
	res := run(noSelInput(plistXML, `
var plist = require('@goscribe/plist');
function main(state) {
    var obj = plist.parse(state.fullText);
    state.fullText = JSON.stringify(obj) + plist.stringify({key: "value"});
}`))
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.ErrorMessage)
	}
	if !strings.Contains(res.NewFullText, `"foo":"bar"`) || !strings.Contains(res.NewFullText, "<?xml") {
		t.Errorf("output = %q", res.NewFullText)
	}
}

func TestTransformPrintGoesToHost(t *testing.T) {
	h := &fakeHost{}
	inp := noSelInput("x", `function main(state) { console.log("seen"); }`)
	inp.Host = h
	if res := run(inp); !res.Success {
		t.Fatal(res.ErrorMessage)
	}
	if len(h.printed) != 1 || h.printed[0] != "seen" {
		t.Errorf("printed %q", h.printed)
	}
}

func TestTransformRejectsBrokenScripts(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"syntax", `function main(state) { this is not valid JS`},
		{"unknown module", `function main(state) { require('lodash'); }`},
		{"module outside namespace", `var fs = require('fs'); function main(state) {}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := run(noSelInput("x", tc.src))
			if res.Success || res.ErrorMessage == "" {
				t.Fatalf("result = %+v, want failure with message", res)
			}
		})
	}
}

func TestTransformYAMLNestedValues(t *testing.T) {
	res := run(noSelInput("", `
var yaml = require('@goscribe/yaml');
function main(state) {
    var obj = yaml.parse("items:\n  - a\n  - b\n1: one\nnested: {x: 1}");
    state.fullText = JSON.stringify(obj);
}`))
	if !res.Success {
		t.Fatal(res.ErrorMessage)
	}
	for _, want := range []string{`"items":["a","b"]`, `"1":"one"`, `"nested":{"x":1}`} {
		if !strings.Contains(res.NewFullText, want) {
			t.Errorf("output %q lacks %s", res.NewFullText, want)
		}
	}
}

func TestTransformPlistParseBinaryAcceptsXML(t *testing.T) {
	plistXML := `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0"><dict><key>foo</key><string>bar</string></dict></plist>`
	res := run(noSelInput(plistXML, `
var plist = require('@goscribe/plist');
function main(state) { state.fullText = JSON.stringify(plist.parseBinary(state.fullText)); }`))
	if !res.Success || !strings.Contains(res.NewFullText, `"foo":"bar"`) {
		t.Fatalf("result = %+v", res)
	}
}

func TestTransformTOMLModule(t *testing.T) {
	res := run(noSelInput("[server]\nport = 8080\n", `
var toml = require('@goscribe/toml');
function main(state) {
    var cfg = toml.parse(state.fullText);
    cfg.server.port += 1;
    state.fullText = toml.stringify(cfg);
}`))
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.ErrorMessage)
	}
	if !strings.Contains(res.NewFullText, "[server]") || !strings.Contains(res.NewFullText, "port = 8081") {
		t.Errorf("output = %q", res.NewFullText)
	}
}

func TestTransformLangModuleUsesDocumentLanguage(t *testing.T) {
	doc := Document{Text: "a = 1\nb = 2", Language: "python"}
	res := run(input(doc, `
var lang = require('@goscribe/lang');
function main(state) {
    var l = lang.lookup(state.language);
    state.postInfo(l.name + " " + l.comment + " " + lang.lookup("nope") + " " + lang.forFile("x.lua", "").tag);
    state.lines = lang.toggleComment(state.language, state.lines);
}`))
	if !res.Success {
		t.Fatal(res.ErrorMessage)
	}
	if res.InfoMessage != "Python # null lua" {
		t.Errorf("info = %q", res.InfoMessage)
	}
	if res.NewFullText != "# a = 1\n# b = 2" {
		t.Errorf("commented = %q", res.NewFullText)
	}
}

func TestTransformLangIndentAfter(t *testing.T) {
	res := run(noSelInput("", `
var lang = require('@goscribe/lang');
function main(state) {
    state.text = JSON.stringify([lang.indentAfter("python", "  if x:", "    "), lang.indentAfter("unknown", "  if x:", "    ")]);
}`))
	if res.NewText != `["      ","  "]` {
		t.Fatalf("indentAfter = %q (%s)", res.NewText, res.ErrorMessage)
	}
}
