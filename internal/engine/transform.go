package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/lang"
	"codeberg.org/sigterm-de/goscribe/internal/textbuf"
	"github.com/dop251/goja"
)

// errTimeout is the interrupt value used to distinguish a timeout from other
// interrupt causes.
var errTimeout = errors.New("script execution timed out")

// MutationKind describes which mutation (if any) a transform applied.
type MutationKind int

const (
	MutationNone           MutationKind = iota // Script made no changes
	MutationReplaceDoc                         // state.fullText was written
	MutationReplaceSelect                      // state.text was written
	MutationInsertAtCursor                     // state.insert() was called

	mutationKinds
)

// ExecutionInput carries everything a transform script needs.
type ExecutionInput struct {
	ScriptSource string // full JS source, defining main(state)
	ScriptName   string
	Doc          Document
	Timeout      time.Duration
	Host         Host        // optional; print and console.log go to the log without one
	Languages    *lang.Table // optional; see Options.Languages
}

// ExecutionResult is the outcome of a transform. MutationKind and the New*
// fields are only valid when Success is true.
type ExecutionResult struct {
	Success      bool
	MutationKind MutationKind
	NewFullText  string            // MutationReplaceDoc
	NewText      string            // MutationReplaceSelect
	InsertText   string            // MutationInsertAtCursor
	Selection    textbuf.Selection // range NewText replaces
	ErrorMessage string
	ErrorLine    int
	InfoMessage  string // set by state.postInfo()
	ScriptName   string
	TimedOut     bool
	Cancelled    bool
}

// Executor runs transform scripts. Implementations are safe to call from any
// goroutine; each call builds a fresh runtime.
type Executor interface {
	Execute(ctx context.Context, input ExecutionInput) ExecutionResult
}

type executor struct{}

func NewExecutor() Executor {
	return &executor{}
}

// Execute runs input.ScriptSource, then calls its main(state). Cancelling
// ctx stops the script and marks the result Cancelled. It never panics.
func (x *executor) Execute(ctx context.Context, input ExecutionInput) (result ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ExecutionResult{
				ScriptName:   input.ScriptName,
				ErrorMessage: fmt.Sprintf("internal engine error: %v", r),
			}
		}
	}()

	e, err := New(Options{Name: input.ScriptName, Host: input.Host, Languages: input.Languages})
	if err != nil {
		return ExecutionResult{ScriptName: input.ScriptName, ErrorMessage: err.Error()}
	}
	defer e.Close()
	vm := e.Runtime()

	state := NewScriptState(input.Doc)
	if err := bindState(vm, state); err != nil {
		return ExecutionResult{
			ScriptName:   input.ScriptName,
			ErrorMessage: fmt.Sprintf("internal engine error: bind state: %v", err),
		}
	}

	// compile before arming the timer so syntax errors are not timed
	prog, err := e.compile(input.ScriptSource)
	if err != nil {
		return x.failure(e.failure(err), input.ScriptName)
	}

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		vm.Interrupt(errTimeout)
	})
	defer timer.Stop()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(errs.ErrCancelled)
		case <-stop:
		}
	}()

	if _, runErr := vm.RunProgram(prog); runErr != nil {
		return x.runError(e, runErr, timedOut.Load(), timeout, input.ScriptName)
	}

	mainFn, ok := goja.AssertFunction(vm.Get("main"))
	if !ok {
		return ExecutionResult{
			ScriptName:   input.ScriptName,
			ErrorMessage: "script does not define a top-level function main(state)",
		}
	}
	if _, callErr := mainFn(goja.Undefined(), vm.Get("state")); callErr != nil {
		return x.runError(e, callErr, timedOut.Load(), timeout, input.ScriptName)
	}

	return state.Result(input.ScriptName)
}

func (x *executor) runError(e *Engine, err error, timedOut bool, timeout time.Duration, scriptName string) ExecutionResult {
	if timedOut {
		return ExecutionResult{
			TimedOut:     true,
			ScriptName:   scriptName,
			ErrorMessage: fmt.Sprintf("Script execution timed out after %v", timeout),
		}
	}
	return x.failure(e.failure(err), scriptName)
}

func (x *executor) failure(res Result, scriptName string) ExecutionResult {
	return ExecutionResult{
		ScriptName:   scriptName,
		ErrorMessage: res.Message,
		ErrorLine:    res.ErrorLine,
		Cancelled:    errors.Is(res.Err, errs.ErrCancelled),
	}
}

// bindState exposes state to the VM. Reads go through the Go side so every
// write is recorded; selection, eol, language and name are read-only.
func bindState(vm *goja.Runtime, state *ScriptState) error {
	obj := vm.NewObject()
	accessors := []struct {
		name string
		get  func() any
		set  func(goja.Value) error
	}{
		{"fullText", func() any { return state.FullText() }, func(v goja.Value) error {
			state.SetFullText(v.String())
			return nil
		}},
		{"text", func() any { return state.Text() }, func(v goja.Value) error {
			state.SetText(v.String())
			return nil
		}},
		{"lines", func() any { return vm.NewArray(toAnySlice(state.Lines())...) }, func(v goja.Value) error {
			var lines []string
			if err := vm.ExportTo(v, &lines); err != nil {
				return fmt.Errorf("state.lines must be an array of strings: %w", err)
			}
			state.SetLines(lines)
			return nil
		}},
	}
	for _, a := range accessors {
		getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(a.get()) })
		setter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if err := a.set(call.Argument(0)); err != nil {
				panic(vm.NewTypeError(err.Error()))
			}
			return goja.Undefined()
		})
		if err := obj.DefineAccessorProperty(a.name, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("%s property: %w", a.name, err)
		}
	}

	sel := state.Selection()
	selObj := vm.NewObject()
	constants := []struct {
		on    *goja.Object
		name  string
		value any
	}{
		{selObj, "start", sel.Start},
		{selObj, "end", sel.End},
		{selObj, "empty", state.doc.Selection.Empty()},
		{obj, "selection", selObj},
		{obj, "eol", state.EOL()},
		{obj, "language", state.doc.Language},
		{obj, "name", state.doc.Name},
	}
	for _, c := range constants {
		if err := c.on.DefineDataProperty(c.name, vm.ToValue(c.value), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return fmt.Errorf("%s property: %w", c.name, err)
		}
	}

	methods := map[string]func(string){
		"insert":    state.Insert,
		"postError": state.PostError,
		"postInfo":  state.PostInfo,
	}
	for name, fn := range methods {
		obj.Set(name, func(call goja.FunctionCall) goja.Value {
			fn(optString(call))
			return goja.Undefined()
		})
	}

	vm.Set("state", obj)
	return nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func optString(call goja.FunctionCall) string {
	if len(call.Arguments) == 0 {
		return ""
	}
	return call.Arguments[0].String()
}
