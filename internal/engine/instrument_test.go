package engine

import (
	"strings"
	"testing"

	"github.com/dop251/goja/parser"
)

func instrumentString(t *testing.T, src string) string {
	t.Helper()
	prog, err := parser.ParseFile(nil, "t.js", src, 0, parser.WithDisableSourceMaps)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := instrument(prog, src, "H")
	if strings.Count(out, "\n") != strings.Count(src, "\n") {
		t.Fatalf("line count changed:\n%s", out)
	}
	if _, err := parser.ParseFile(nil, "t.js", out, 0); err != nil {
		t.Fatalf("instrumented source does not parse: %v\n%s", err, out)
	}
	return out
}

func TestInstrument(t *testing.T) {
	cases := []struct {
		name, src, want string
	}{
		{
			"blocks and parenthesized start",
			"var a = 1;\nif (a) {\n  a = 2;\n}\n(a).toString();\n",
			"H(1);var a = 1;\nH(2);if (a) {\n  H(3);a = 2;\n}\nH(5);(a).toString();\n",
		},
		{
			"directive and function declaration",
			"'use strict';\nfunction f() {\n  return 1;\n}\nf();",
			"'use strict';\nfunction f() {\n  H(3);return 1;\n}\nH(5);f();",
		},
		{
			"switch cases",
			"switch (x) {\ncase 1:\n  y();\n  break;\n}",
			"H(1);switch (x) {\ncase 1:\n  H(3);y();\n  H(4);break;\n}",
		},
		{
			"several statements on one line",
			"a(); b();",
			"H(1);a(); H(1);b();",
		},
		{
			"immediately invoked function",
			"var n = 0;\n((function () {\n  n++;\n}))();\n",
			"H(1);var n = 0;\nH(2);((function () {\n  H(3);n++;\n}))();\n",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := instrumentString(t, tc.src); got != tc.want {
				t.Errorf("instrument =\n%s\nwant\n%s", got, tc.want)
			}
		})
	}
}

func TestInstrumentWithoutSemicolons(t *testing.T) {
	src := "var a = 1\nvar b = a\nb++\n"
	got := instrumentString(t, src)
	if strings.Count(got, "H(") != 3 {
		t.Errorf("want three hook calls:\n%s", got)
	}
}
