// Package worker runs one script execution on its own goroutine and reports
// back to the owning document through events.
//
// Every started Thread posts exactly one FINISHED event, after any
// PRINT_ERROR, even when the engine panics.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/sigterm-de/goscribe/internal/engine"
	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/event"
	"codeberg.org/sigterm-de/goscribe/internal/execstate"
	"codeberg.org/sigterm-de/goscribe/internal/lang"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
)

// Poster delivers an event to document id. It reports false when the
// document is gone; the worker then keeps running but its events are
// dropped.
type Poster interface {
	Post(id uint64, ev event.Event) bool
}

// Status is the thread's lifecycle state.
type Status int32

const (
	Created Status = iota
	Running
	Finished
	Errored
	StoppedByUser
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	case StoppedByUser:
		return "stopped"
	}
	return "unknown"
}

type Config struct {
	Name          string        // script name shown in stack frames
	Poll          time.Duration // sleep between checks while waiting
	StackBytes    int           // cap on a formatted stack trace
	MaxStackDepth int
	MaxScriptSize int64
	Languages     *lang.Table // answers require("@goscribe/lang")
}

func (c *Config) defaults() {
	if c.Poll <= 0 {
		c.Poll = 100 * time.Millisecond
	}
	if c.StackBytes <= 0 {
		c.StackBytes = 4096
	}
	if c.MaxStackDepth <= 0 {
		c.MaxStackDepth = 64
	}
	if c.Name == "" {
		c.Name = "script"
	}
}

// Thread is one execution. Create it with NewThread or NewTransform, then
// call Start once.
type Thread struct {
	id     uint64
	poster Poster
	state  *execstate.State
	cfg    Config

	src       string
	eng       *engine.Engine
	transform *engine.ExecutionInput

	status    atomic.Int32
	started   atomic.Bool
	done      chan struct{}
	hitBefore bool
	lastLine  int
}

// NewThread prepares a run of src, a document of lineCount lines. It fails
// with a SizeLimitError for oversized scripts and with ErrResource when the
// engine cannot be built.
func NewThread(id uint64, poster Poster, st *execstate.State, src string, lineCount int, cfg Config) (*Thread, error) {
	cfg.defaults()
	if cfg.MaxScriptSize > 0 && int64(len(src)) > cfg.MaxScriptSize {
		return nil, &errs.SizeLimitError{What: "script", Size: int64(len(src)), Limit: cfg.MaxScriptSize}
	}
	t := &Thread{id: id, poster: poster, state: st, cfg: cfg, src: src, done: make(chan struct{})}
	eng, err := engine.New(engine.Options{Name: cfg.Name, Host: t, MaxStackDepth: cfg.MaxStackDepth, Languages: cfg.Languages})
	if err != nil {
		return nil, err
	}
	t.eng = eng
	logging.Log(logging.DEBUG, "worker", "thread created", "doc", id, "lines", lineCount, "bytes", len(src))
	return t, nil
}

// NewTransform prepares a transform script run against the document text
// carried in input. A successful mutation is posted as a MUTATION event
// before FINISHED.
func NewTransform(id uint64, poster Poster, st *execstate.State, input engine.ExecutionInput, cfg Config) (*Thread, error) {
	cfg.defaults()
	if cfg.MaxScriptSize > 0 && int64(len(input.ScriptSource)) > cfg.MaxScriptSize {
		return nil, &errs.SizeLimitError{What: "script", Size: int64(len(input.ScriptSource)), Limit: cfg.MaxScriptSize}
	}
	t := &Thread{id: id, poster: poster, state: st, cfg: cfg, done: make(chan struct{})}
	input.Host = t
	if input.Languages == nil {
		input.Languages = cfg.Languages
	}
	t.transform = &input
	return t, nil
}

// Status reports the lifecycle state.
func (t *Thread) Status() Status { return Status(t.status.Load()) }

// Done is closed after FINISHED has been posted.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Wait blocks until Done.
func (t *Thread) Wait() { <-t.done }

// Start launches the goroutine. The debug hook is installed only when debug
// mode is requested at this point.
func (t *Thread) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	t.status.Store(int32(Running))
	if t.eng != nil && t.state.IsDebugRequested() {
		t.eng.InstallDebugHook(t.hook)
	}
	go t.run()
}

func (t *Thread) post(ev event.Event) {
	t.poster.Post(t.id, ev)
}

func (t *Thread) run() {
	status, summary := Errored, "failed"
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error: %v", r)
			logging.Log(logging.ERROR, "worker", msg, "doc", t.id)
			t.post(event.Event{Kind: event.PrintError, Text: msg})
			status, summary = Errored, "failed"
		}
		if t.eng != nil {
			t.eng.Close()
		}
		t.state.SetEngine(nil)
		t.status.Store(int32(status))
		logging.Log(logging.INFO, "worker", "run finished", "doc", t.id, "status", status)
		t.post(event.Event{Kind: event.Finished, Value: int(status), Text: summary})
		close(t.done)
	}()

	logging.Log(logging.INFO, "worker", "run started", "doc", t.id, "script", t.cfg.Name)
	if t.transform != nil {
		status, summary = t.runTransform()
		return
	}
	t.state.SetEngine(t.eng)

	stopWatch := t.watchStop(func() { t.eng.Interrupt(errs.ErrCancelled) })
	res := t.eng.RunScriptText(t.src)
	stopWatch()

	status, summary = t.report(res.Success, res.Err, res.Message, res.ErrorLine)
}

// report posts PRINT_ERROR for failures and returns the terminal status.
// A stop request is reported without a line so no error marker is placed.
func (t *Thread) report(ok bool, err error, msg string, line int) (Status, string) {
	switch {
	case ok:
		return Finished, "finished"
	case errors.Is(err, errs.ErrCancelled):
		t.post(event.Event{Kind: event.PrintError, Text: errs.ErrCancelled.Error()})
		return StoppedByUser, errs.ErrCancelled.Error()
	default:
		t.post(event.Event{Kind: event.PrintError, Line: line, Text: msg})
		return Errored, "failed"
	}
}

func (t *Thread) runTransform() (Status, string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopWatch := t.watchStop(cancel)
	res := engine.NewExecutor().Execute(ctx, *t.transform)
	stopWatch()

	if res.Cancelled {
		return t.report(false, errs.ErrCancelled, "", 0)
	}
	if !res.Success {
		return t.report(false, nil, res.ErrorMessage, res.ErrorLine)
	}
	if res.InfoMessage != "" {
		t.post(event.Event{Kind: event.Print, Text: res.InfoMessage})
	}
	if res.MutationKind != engine.MutationNone {
		t.post(event.Event{Kind: event.Mutation, Payload: res})
	}
	return Finished, "finished"
}

// watchStop polls the stop flag and calls interrupt once when it is set. It
// covers runs without a debug hook. The returned func stops the watcher
// and waits for it, so interrupt is never called after it returns.
func (t *Thread) watchStop(interrupt func()) func() {
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(t.cfg.Poll)
		defer tick.Stop()
		for {
			select {
			case <-quit:
				return
			case <-tick.C:
				if t.state.IsStopRequested() {
					interrupt()
					return
				}
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

// ShouldBreak applies the break rule to the script's frame lines, innermost
// first: a breakpoint on the current line always breaks; one further up the
// stack breaks only when stepping into calls.
func ShouldBreak(lines []int, bps *execstate.Breakpoints, stepInto bool) bool {
	for depth, line := range lines {
		if bps.Has(line) {
			return depth == 0 || stepInto
		}
	}
	return false
}

// hook runs on the worker goroutine before every statement of a debug run.
// The call stack is captured only when stepping into calls or when pausing.
func (t *Thread) hook(line int, stack func() []engine.Frame) error {
	stop, debug, stepInto := t.state.Flags()
	if stop {
		return errs.ErrCancelled
	}
	if !debug {
		return nil
	}
	t.state.SetCurrentLine(line)
	if line != t.lastLine {
		t.lastLine = line
		t.post(event.Event{Kind: event.CurrentLine, Line: line})
	}

	bps := t.state.Breakpoints()
	var frames []engine.Frame
	if stepInto {
		frames = stack()
		lines := make([]int, len(frames))
		for i, f := range frames {
			lines[i] = f.Line
		}
		if !ShouldBreak(lines, bps, true) {
			return nil
		}
	} else {
		if !bps.Has(line) {
			return nil
		}
		frames = stack()
	}

	first := !t.hitBefore
	t.hitBefore = true
	logging.Log(logging.DEBUG, "worker", "breakpoint hit", "doc", t.id, "line", line)
	t.state.SetPaused(true)
	t.post(event.Event{Kind: event.BreakpointHit, Line: line, Flag: first})
	t.post(event.Event{Kind: event.StackUpdate, Line: line, Text: engine.FormatStack(frames, t.cfg.StackBytes)})

	var err error
	execstate.WaitUntil(func() bool {
		stop, debug, _ := t.state.Flags()
		if stop {
			err = errs.ErrCancelled
			return true
		}
		return !debug || t.state.TakeResume()
	}, t.cfg.Poll)
	t.state.SetPaused(false)
	return err
}

// Print implements engine.Host.
func (t *Thread) Print(text string) {
	t.post(event.Event{Kind: event.Print, Text: text})
}

// ReadString implements engine.Host: it posts READ_REQUEST and polls the
// read mailbox until the owner answers or a stop is requested.
func (t *Thread) ReadString(prompt string) (string, error) {
	t.state.BeginRead()
	t.post(event.Event{Kind: event.ReadRequest, Text: prompt})
	var (
		text string
		err  error
	)
	execstate.WaitUntil(func() bool {
		if t.state.IsStopRequested() {
			err = errs.ErrCancelled
			return true
		}
		var ok bool
		text, ok = t.state.TakeRead()
		return ok
	}, t.cfg.Poll)
	return text, err
}

// Ask implements engine.Host like ReadString, for yes/no/cancel questions.
func (t *Thread) Ask(question string) (int, error) {
	t.state.BeginAsk()
	t.post(event.Event{Kind: event.AskRequest, Text: question})
	var (
		n   int
		err error
	)
	execstate.WaitUntil(func() bool {
		if t.state.IsStopRequested() {
			err = errs.ErrCancelled
			return true
		}
		var ok bool
		n, ok = t.state.TakeAnswer()
		return ok
	}, t.cfg.Poll)
	return n, err
}
