package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/lang"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja_nodejs/require"
)

// Host receives a running script's interactive I/O. ReadString and Ask
// block until the user answers; a non-nil error aborts the script.
type Host interface {
	Print(text string)
	ReadString(prompt string) (string, error)
	Ask(question string) (int, error)
}

// Frame is one script frame, innermost first.
type Frame struct {
	Line int
	Func string
}

// HookFunc is called before every instrumented statement with the line about
// to run. stack captures the script's call stack, frames[0] being that line;
// it is only valid during the call. A non-nil return aborts the script with
// that error.
type HookFunc func(line int, stack func() []Frame) error

// Result is the outcome of RunScriptText. ErrorLine is 0 when the failure
// has no source position. Err is nil on success; for a stop request it
// matches errs.ErrCancelled.
type Result struct {
	Success   bool
	Message   string
	ErrorLine int
	Err       error
}

type Options struct {
	Name          string // source name, used to tell script frames from module frames
	Host          Host
	MaxStackDepth int         // frames inspected by the debug hook
	Languages     *lang.Table // served as @goscribe/lang; the bundled table when nil
}

// Engine is one goja runtime. It is not safe for concurrent use except for
// Interrupt, which may be called from any goroutine.
type Engine struct {
	vm       *goja.Runtime
	name     string
	host     Host
	hook     HookFunc
	maxDepth int
	line     int            // statement the hook is running for
	stack    func() []Frame // built once, reads line
}

// New builds a sandboxed runtime: network, process and timer globals are
// removed, require() only resolves @goscribe/ modules, and print, console,
// readStr, ask, btoa and atob are installed.
func New(opts Options) (e *Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Resource("script engine", fmt.Errorf("%v", r))
		}
	}()
	if opts.Name == "" {
		opts.Name = "script"
	}
	if opts.MaxStackDepth <= 0 {
		opts.MaxStackDepth = 64
	}
	e = &Engine{
		vm:       goja.New(),
		name:     opts.Name,
		host:     opts.Host,
		maxDepth: opts.MaxStackDepth,
	}
	if e.host == nil {
		e.host = logHost{name: opts.Name}
	}
	e.stack = e.hookFrames
	e.vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	// eval is removed because it reaches local scope. Function is kept: it
	// only builds global-scope closures and bundled libraries rely on it.
	poisoned := []string{
		"fetch", "XMLHttpRequest", "WebSocket",
		"process", "global", "Buffer",
		"setTimeout", "setInterval", "clearTimeout", "clearInterval",
		"eval",
	}
	for _, name := range poisoned {
		e.vm.Set(name, goja.Undefined())
	}

	registry := require.NewRegistry(require.WithLoader(blockingRequireLoader))
	langs := opts.Languages
	if langs == nil {
		langs = defaultLanguages()
	}
	registerModules(registry, langs)
	registry.Enable(e.vm)

	registerBtoaAtob(e.vm)
	e.registerIO()
	e.vm.Set(hookName, e.onLine)
	return e, nil
}

// Runtime exposes the goja runtime for callers binding extra globals.
func (e *Engine) Runtime() *goja.Runtime { return e.vm }

// InstallDebugHook makes the next RunScriptText instrument the source so
// that h runs before each statement.
func (e *Engine) InstallDebugHook(h HookFunc) { e.hook = h }

// RemoveDebugHook stops calling the hook. Instrumentation already compiled
// into a running script stays but does nothing.
func (e *Engine) RemoveDebugHook() { e.hook = nil }

// Interrupt aborts the running script at the next JavaScript instruction.
// The run then fails with an error wrapping v when v is an error.
func (e *Engine) Interrupt(v error) { e.vm.Interrupt(v) }

// Close releases the runtime. The engine must not be used afterwards.
func (e *Engine) Close() {
	e.hook = nil
	e.vm = nil
}

// RunScriptText compiles and runs src. It never panics.
func (e *Engine) RunScriptText(src string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal engine error: %v", r)
			res = Result{Message: msg, Err: &errs.ScriptError{Message: msg}}
		}
	}()
	prog, err := e.compile(src)
	if err != nil {
		return e.failure(err)
	}
	if _, err := e.vm.RunProgram(prog); err != nil {
		return e.failure(err)
	}
	return Result{Success: true}
}

// compile parses src, instrumenting it when a hook is installed.
func (e *Engine) compile(src string) (*goja.Program, error) {
	tree, err := parser.ParseFile(nil, e.name, src, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, err
	}
	if e.hook != nil {
		instrumented := instrument(tree, src, hookName)
		itree, ierr := parser.ParseFile(nil, e.name, instrumented, 0, parser.WithDisableSourceMaps)
		if ierr == nil {
			tree = itree
		} else {
			logging.Log(logging.WARN, "engine", "instrumented source does not parse, running without line hook",
				"script", e.name, "error", ierr)
		}
	}
	return goja.CompileAST(tree, false)
}

// failure classifies a compile or run error into a Result.
func (e *Engine) failure(err error) Result {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		cause, _ := interrupted.Value().(error)
		if cause == nil {
			cause = fmt.Errorf("interrupted: %v", interrupted.Value())
		}
		return Result{Message: cause.Error(), Err: cause}
	}

	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		msg := "SyntaxError: " + first.Message
		return Result{Message: msg, ErrorLine: first.Position.Line,
			Err: &errs.ScriptError{Message: msg, Line: first.Position.Line, Err: err}}
	}
	var perr *parser.Error
	if errors.As(err, &perr) {
		msg := "SyntaxError: " + perr.Message
		return Result{Message: msg, ErrorLine: perr.Position.Line,
			Err: &errs.ScriptError{Message: msg, Line: perr.Position.Line, Err: err}}
	}

	var cerr *goja.CompilerSyntaxError
	if errors.As(err, &cerr) {
		line := 0
		if cerr.File != nil {
			line = cerr.File.Position(cerr.Offset).Line
		}
		msg := "SyntaxError: " + cerr.Message
		return Result{Message: msg, ErrorLine: line,
			Err: &errs.ScriptError{Message: msg, Line: line, Err: err}}
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg := err.Error()
		if v := exc.Value(); v != nil {
			msg = v.String()
		}
		line := e.scriptLine(exc.Stack())
		return Result{Message: msg, ErrorLine: line,
			Err: &errs.ScriptError{Message: msg, Line: line, Err: err}}
	}
	return Result{Message: err.Error(), Err: &errs.ScriptError{Message: err.Error(), Err: err}}
}

// scriptLine is the line of the innermost frame belonging to the script.
func (e *Engine) scriptLine(stack []goja.StackFrame) int {
	for i := range stack {
		if stack[i].SrcName() == e.name {
			return stack[i].Position().Line
		}
	}
	return 0
}

// Frames returns up to limit script frames, innermost first. It must be
// called from inside the running script, i.e. from the hook or a native
// function.
func (e *Engine) Frames(limit int) []Frame {
	raw := e.vm.CaptureCallStack(0, nil)
	frames := make([]Frame, 0, min(len(raw), limit))
	for i := range raw {
		if len(frames) == limit {
			break
		}
		if raw[i].SrcName() != e.name {
			continue
		}
		frames = append(frames, Frame{Line: raw[i].Position().Line, Func: raw[i].FuncName()})
	}
	return frames
}

// StackTrace formats the current script stack, cut at a line boundary so it
// fits in maxBytes.
func (e *Engine) StackTrace(maxBytes int) string {
	return FormatStack(e.Frames(e.maxDepth), maxBytes)
}

// FormatStack renders frames one per line as "#n func (line N)".
func FormatStack(frames []Frame, maxBytes int) string {
	var b strings.Builder
	for i, f := range frames {
		line := "#" + strconv.Itoa(i) + " " + f.Func + " (line " + strconv.Itoa(f.Line) + ")\n"
		if maxBytes > 0 && b.Len()+len(line) > maxBytes {
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

// onLine is the instrumentation callback. line is the statement's line in
// the original source.
func (e *Engine) onLine(call goja.FunctionCall) goja.Value {
	h := e.hook
	if h == nil {
		return goja.Undefined()
	}
	e.line = int(call.Argument(0).ToInteger())
	if err := h(e.line, e.stack); err != nil {
		e.vm.Interrupt(err)
	}
	return goja.Undefined()
}

// hookFrames is the stack handed to the hook. The innermost frame carries
// the instrumented line rather than the position of the hook call.
func (e *Engine) hookFrames() []Frame {
	frames := e.Frames(e.maxDepth)
	if len(frames) == 0 {
		frames = []Frame{{}}
	}
	frames[0].Line = e.line
	return frames
}

// logHost serves scripts run without an interactive owner.
type logHost struct{ name string }

func (h logHost) Print(text string) { logging.Log(logging.INFO, h.name, text) }

func (h logHost) ReadString(string) (string, error) {
	return "", errors.New("readStr is not available here")
}

func (h logHost) Ask(string) (int, error) {
	return -1, errors.New("ask is not available here")
}

// hookName is the global the instrumentation calls.
const hookName = "__goscribe_line__"
