package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const testConfig = `
[run]
poll-interval = "20ms"

[tools.cat]
command = "cat \"$(FileName)\""
redirect = true

[tools.fail]
command = "echo \"$(FileName):2: bad line\"; exit 3"
redirect = true
`

type result struct {
	out, err string
	code     int
}

// execute runs the command line against a private config dir with a short
// poll interval.
func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "config")
	t.Setenv("GOSCRIBE_CONFIG_HOME", cfgDir)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out, errOut bytes.Buffer
	all := append([]string{"--log-file", filepath.Join(dir, "goscribe.log")}, args...)
	code := run(ctx, "test", all, strings.NewReader(stdin), &out, &errOut)
	return result{out: out.String(), err: errOut.String(), code: code}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestVersion(t *testing.T) {
	r := execute(t, "", "--version")
	if r.code != 0 || r.out != "goscribe test\n" {
		t.Fatalf("version: %+v", r)
	}
}

func TestRunPrintsOutput(t *testing.T) {
	p := writeFile(t, "hello.js", "print('hello');\nprint('world');\n")
	r := execute(t, "", "run", p)
	if r.code != 0 || r.out != "hello\nworld\n" {
		t.Fatalf("run: %+v", r)
	}
}

func TestRunErrorExitsNonZero(t *testing.T) {
	p := writeFile(t, "boom.js", "print('one');\nthrow new Error('boom');\n")
	r := execute(t, "", "run", p)
	if r.code != 1 {
		t.Fatalf("code = %d, want 1 (%+v)", r.code, r)
	}
	if !strings.Contains(r.err, "line 2:") || !strings.Contains(r.err, "boom") {
		t.Errorf("stderr = %q", r.err)
	}
}

func TestRunReadsStdin(t *testing.T) {
	p := writeFile(t, "ask.js", "var n = readStr('name? ');\nprint('hi ' + n);\n")
	r := execute(t, "ada\n", "run", p)
	if r.code != 0 || r.out != "hi ada\n" || !strings.Contains(r.err, "name? ") {
		t.Fatalf("run: %+v", r)
	}
}

func TestRunAskAnswers(t *testing.T) {
	p := writeFile(t, "ask.js", "print(ask('sure?'));\nprint(ask('really?'));\n")
	r := execute(t, "y\n", "run", p)
	if r.code != 0 || r.out != "1\n-1\n" {
		t.Fatalf("run: %+v", r)
	}
}

func TestRunBreakpointThenContinue(t *testing.T) {
	p := writeFile(t, "loop.js", "var s = 0;\nfor (var i = 0; i < 3; i++) {\n  s += i;\n}\nprint(s);\n")
	r := execute(t, "c\n", "run", "--break", "3", p)
	if r.code != 0 || r.out != "3\n" {
		t.Fatalf("run: %+v", r)
	}
	if n := strings.Count(r.err, "paused at line 3"); n != 1 {
		t.Errorf("paused %d times, want 1; stderr %q", n, r.err)
	}
}

func TestRunBreakpointNext(t *testing.T) {
	p := writeFile(t, "loop.js", "var s = 0;\nfor (var i = 0; i < 3; i++) {\n  s += i;\n}\nprint(s);\n")
	r := execute(t, "n\nn\nn\n", "run", "--break", "3", p)
	if r.code != 0 || r.out != "3\n" {
		t.Fatalf("run: %+v", r)
	}
	if n := strings.Count(r.err, "paused at line 3"); n != 3 {
		t.Errorf("paused %d times, want 3; stderr %q", n, r.err)
	}
}

func TestRunBreakpointQuit(t *testing.T) {
	p := writeFile(t, "loop.js", "print('start');\nwhile (true) {\n  print('x');\n}\n")
	r := execute(t, "q\n", "run", "-b", "3", p)
	if r.code != ExitInterrupted {
		t.Fatalf("code = %d, want %d (%+v)", r.code, ExitInterrupted, r)
	}
	if r.out != "start\n" {
		t.Errorf("stdout = %q", r.out)
	}
}

func TestRunBreakpointOutOfRange(t *testing.T) {
	p := writeFile(t, "one.js", "print(1);\n")
	if r := execute(t, "", "run", "--break", "9", p); r.code != 1 || !strings.Contains(r.err, "out of range") {
		t.Fatalf("run: %+v", r)
	}
}

func TestDetect(t *testing.T) {
	p := writeFile(t, "quotes.txt", "\x93quoted\x94\r\n      indented\r\n")
	r := execute(t, "", "detect", p)
	if r.code != 0 {
		t.Fatalf("detect: %+v", r)
	}
	for _, want := range []string{"CP1252", "CRLF", "6 spaces", "lines:"} {
		if !strings.Contains(r.out, want) {
			t.Errorf("detect output lacks %q:\n%s", want, r.out)
		}
	}
}

func TestScripts(t *testing.T) {
	r := execute(t, "", "scripts")
	if r.code != 0 || !strings.Contains(r.out, "Upcase") || !strings.Contains(r.out, "YAML to JSON") {
		t.Fatalf("scripts: %+v", r)
	}
	r = execute(t, "", "scripts", "yaml")
	if !strings.Contains(r.out, "YAML to JSON") || strings.Contains(r.out, "Sort Lines") {
		t.Errorf("scripts yaml: %q", r.out)
	}
}

func TestTransformPrintsResult(t *testing.T) {
	p := writeFile(t, "in.txt", "b\nc\na")
	cases := []struct {
		script string
		want   string
	}{
		{"upcase", "B\nC\nA\n"},
		{"Sort Lines", "a\nb\nc\n"},
		{"count lines", "3 lines\nb\nc\na\n"},
	}
	for _, tc := range cases {
		t.Run(tc.script, func(t *testing.T) {
			r := execute(t, "", "transform", tc.script, p)
			if r.code != 0 || r.out != tc.want {
				t.Fatalf("transform: %+v", r)
			}
		})
	}
}

func TestTransformWrite(t *testing.T) {
	p := writeFile(t, "in.txt", "abc\r\n")
	if r := execute(t, "", "transform", "-w", "Upcase", p); r.code != 0 || r.out != "" {
		t.Fatalf("transform: %+v", r)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ABC\r\n" {
		t.Errorf("file = %q", got)
	}
}

func TestTransformUnknownScript(t *testing.T) {
	p := writeFile(t, "in.txt", "abc")
	if r := execute(t, "", "transform", "nope", p); r.code != 1 || !strings.Contains(r.err, `no script named "nope"`) {
		t.Fatalf("transform: %+v", r)
	}
}

func TestTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	p := writeFile(t, "prog.sh", "echo one\necho two\n")
	r := execute(t, "", "tool", "cat", p)
	if r.code != 0 || r.out != "echo one\necho two\n" {
		t.Fatalf("tool cat: %+v", r)
	}

	r = execute(t, "", "tool", "fail", p)
	if r.code != 3 {
		t.Fatalf("code = %d, want 3 (%+v)", r.code, r)
	}
	if !strings.Contains(r.out, "prog.sh:2: bad line") || !strings.Contains(r.err, "error at line 2") {
		t.Errorf("tool fail: %+v", r)
	}

	if r := execute(t, "", "tool", "nope", p); r.code != 1 || !strings.Contains(r.err, "unknown tool") {
		t.Errorf("unknown tool: %+v", r)
	}
}
