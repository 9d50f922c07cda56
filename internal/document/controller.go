package document

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/sigterm-de/goscribe/internal/config"
	"codeberg.org/sigterm-de/goscribe/internal/engine"
	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/event"
	"codeberg.org/sigterm-de/goscribe/internal/execstate"
	"codeberg.org/sigterm-de/goscribe/internal/lang"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
	"codeberg.org/sigterm-de/goscribe/internal/markers"
	"codeberg.org/sigterm-de/goscribe/internal/process"
	"codeberg.org/sigterm-de/goscribe/internal/scripts"
	"codeberg.org/sigterm-de/goscribe/internal/textbuf"
	"codeberg.org/sigterm-de/goscribe/internal/textenc"
	"codeberg.org/sigterm-de/goscribe/internal/worker"
	"go.uber.org/multierr"
)

// Controller is one open document. Except for Notify, every method must be
// called from the goroutine that owns the document.
type Controller struct {
	id  uint64
	reg *Registry
	cfg config.Config

	path        string
	buf         *textbuf.Buffer
	lang        lang.Language
	enc         textenc.Encoding
	bom         bool
	eol         textenc.EOL
	trailingEOL bool
	modified    bool
	warning     error

	state    *execstate.State
	queue    *event.Queue
	thread   *worker.Thread
	stepInto bool

	sup      *process.Supervisor
	toolName string
	toolQuit chan struct{}

	output strings.Builder
	stack  string
	status string
	prompt string
}

func newController(r *Registry, id uint64) *Controller {
	c := &Controller{
		id:    id,
		reg:   r,
		cfg:   r.cfg,
		buf:   textbuf.New(nil),
		lang:  lang.Plain,
		enc:   textenc.UTF8,
		eol:   r.cfg.EOL(),
		state: execstate.New(),
		queue: event.NewQueue(),
	}
	c.buf.SetIndent(c.cfg.Editor.UseTabs, c.cfg.Editor.TabWidth)
	c.sup = process.NewSupervisor(process.Options{
		Shell:     c.cfg.Terminal.Shell,
		Terminal:  c.cfg.Terminal,
		ReadChunk: c.cfg.Output.ReadChunk,
		MaxOutput: c.cfg.Output.MaxOutput,
		OnExit: func(ex process.Exit) {
			r.Post(id, event.Event{Kind: event.ToolExit, Value: ex.Code, Line: ex.ErrorLine, Flag: ex.Killed})
		},
	})
	return c
}

func (c *Controller) ID() uint64                 { return c.id }
func (c *Controller) Path() string               { return c.path }
func (c *Controller) Buffer() *textbuf.Buffer    { return c.buf }
func (c *Controller) Language() lang.Language    { return c.lang }
func (c *Controller) Encoding() textenc.Encoding { return c.enc }
func (c *Controller) EOL() textenc.EOL           { return c.eol }
func (c *Controller) BOM() bool                  { return c.bom }
func (c *Controller) State() *execstate.State    { return c.state }
func (c *Controller) Modified() bool             { return c.modified }

// Warning is the condition recovered during the last load, if any.
func (c *Controller) Warning() error { return c.warning }

// Output is the text printed by scripts and tools since the last clear.
func (c *Controller) Output() string { return c.output.String() }

// Stack is the stack trace published at the last break.
func (c *Controller) Stack() string { return c.stack }

// Status is a one-line summary of the last run.
func (c *Controller) Status() string { return c.status }

// Prompt is the pending readStr or ask question, empty when none.
func (c *Controller) Prompt() string { return c.prompt }

// Notify receives a value when events are waiting for ProcessEvents. It is
// safe to use from any goroutine.
func (c *Controller) Notify() <-chan struct{} { return c.queue.Notify() }

// Busy reports whether a script or tool is in flight.
func (c *Controller) Busy() bool { return c.state.IsRunning() }

// SetText replaces the content with text split on "\n".
func (c *Controller) SetText(text string) error {
	if c.Busy() {
		return errs.ErrBusy
	}
	if err := c.buf.SetLines(strings.Split(text, "\n")); err != nil {
		return err
	}
	c.modified = true
	return nil
}

// SetStepInto chooses whether debug runs started later break on breakpoints
// further up the call stack.
func (c *Controller) SetStepInto(on bool) { c.stepInto = on }

// Load reads path, converts it to UTF-8 and swaps it into the buffer. The
// buffer is untouched on failure. Recovered conditions (unknown encoding,
// mixed line endings) are logged and kept in Warning.
func (c *Controller) Load(path string) error {
	if c.Busy() {
		return errs.ErrBusy
	}
	raw, err := textenc.ReadFile(path, c.cfg.Editor.MaxFileSize)
	if err != nil {
		logging.Log(logging.ERROR, "document", "load failed", "path", path, "error", err)
		return err
	}
	dec, err := textenc.Decode(raw, c.cfg.DecodeOptions())
	if err != nil {
		logging.Log(logging.ERROR, "document", "decode failed", "path", path, "error", err)
		return err
	}

	buf := textbuf.New(dec.Lines)
	buf.SetIndent(c.cfg.Editor.UseTabs, c.cfg.Editor.TabWidth)
	if dec.Indent.UseSpaces && dec.Indent.Width > 0 {
		buf.SetIndent(false, dec.Indent.Width)
	}

	c.path, c.buf = path, buf
	c.enc, c.bom = dec.Encoding, dec.HasBOM
	c.eol, c.trailingEOL = dec.EOL.Mode, dec.TrailingEOL
	c.warning, c.modified = dec.Warning, false
	c.lang = lang.Plain
	if c.reg.langs != nil {
		c.lang = c.reg.langs.ForFile(path, buf.Text("\n"))
	}
	if dec.Warning != nil {
		logging.Log(logging.WARN, "document", "load warning", "path", path, "warning", dec.Warning)
	}
	c.restoreMarkers()
	logging.Log(logging.INFO, "document", "loaded", "doc", c.id, "path", path,
		"encoding", c.enc, "eol", c.eol, "lines", buf.LineCount(), "lang", c.lang.Tag)
	return nil
}

func (c *Controller) restoreMarkers() {
	f, err := markers.Load(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return
	case err != nil:
		logging.Log(logging.WARN, "document", "marker file ignored", "path", c.path, "error", err)
		return
	case len(f.Lines) != c.buf.LineCount():
		logging.Log(logging.WARN, "document", "marker file out of date", "path", c.path,
			"markerLines", len(f.Lines), "lines", c.buf.LineCount())
		return
	}
	for i, m := range f.Lines {
		c.buf.AddMarker(i+1, textbuf.Marker(m)&textbuf.Persisted)
	}
	c.buf.SetSelection(textbuf.Selection{Start: f.SelStart, End: f.SelEnd})
}

// Save writes the document back in its detected encoding, BOM and line
// ending, then the marker file when save-navigation is on. A marker file
// failure is logged and does not fail the save.
func (c *Controller) Save() error {
	if c.path == "" {
		return errors.New("document has no file name")
	}
	return c.SaveAs(c.path)
}

func (c *Controller) SaveAs(path string) error {
	text := c.buf.Text(c.eol.Terminator())
	if c.trailingEOL {
		text += c.eol.Terminator()
	}
	data, err := textenc.Encode(text, c.enc, c.bom)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logging.Log(logging.ERROR, "document", "save failed", "path", path, "error", err)
		return fmt.Errorf("save %s: %w", path, err)
	}
	c.path, c.modified = path, false
	if c.reg.langs != nil && c.lang.Tag == lang.Plain.Tag {
		c.lang = c.reg.langs.ForFile(path, c.buf.Text("\n"))
	}
	if c.cfg.Editor.SaveNavigation {
		if err := markers.Save(path, c.markerFile()); err != nil {
			logging.Log(logging.WARN, "document", "marker file not written", "path", path, "error", err)
		}
	}
	logging.Log(logging.INFO, "document", "saved", "doc", c.id, "path", path, "bytes", len(data))
	return nil
}

func (c *Controller) markerFile() markers.File {
	f := markers.File{Lines: make([]byte, c.buf.LineCount())}
	for i := range f.Lines {
		f.Lines[i] = byte(c.buf.Markers(i+1) & textbuf.Persisted)
	}
	sel := c.buf.Selection()
	f.SelStart, f.SelEnd = sel.Start, sel.End
	return f
}

// Run executes the document as a script. While a run is paused at a
// breakpoint another Run continues it; any other overlap returns ErrBusy.
// A debug run makes the buffer read-only until it ends.
func (c *Controller) Run(debug bool) error {
	if c.state.IsRunning() {
		if c.state.Paused() {
			c.DebugStep(c.stepInto)
			return nil
		}
		return errs.ErrBusy
	}
	if !c.lang.Runnable && c.lang.Tag != lang.Plain.Tag {
		return fmt.Errorf("%s documents cannot be run", c.lang.Name)
	}
	if !c.state.TryBeginRun(debug) {
		return errs.ErrBusy
	}
	c.state.SetStepInto(c.stepInto)
	c.state.SetBreakpoints(execstate.NewBreakpoints(c.buf.LinesWith(textbuf.Breakpoint)))
	c.beginRun()

	src := c.buf.Text("\n")
	th, err := worker.NewThread(c.id, c.reg, c.state, src, c.buf.LineCount(), c.workerConfig())
	if err != nil {
		c.state.Finish()
		c.status = err.Error()
		logging.Log(logging.ERROR, "document", "run not started", "doc", c.id, "error", err)
		return err
	}
	c.thread = th
	c.buf.SetReadOnly(debug)
	th.Start()
	return nil
}

// Transform runs a stored script against the text and applies its
// mutation when it finishes.
func (c *Controller) Transform(s scripts.Script) error {
	if !c.state.TryBeginRun(false) {
		return errs.ErrBusy
	}
	c.beginRun()
	name := ""
	if c.path != "" {
		name = filepath.Base(c.path)
	}
	in := engine.ExecutionInput{
		ScriptSource: s.Content,
		ScriptName:   s.Name,
		Doc: engine.Document{
			Text:      c.buf.Text("\n"),
			Selection: c.buf.Selection(),
			EOL:       c.eol,
			Language:  c.lang.Tag,
			Name:      name,
		},
		Timeout: c.cfg.Run.TransformTimeout,
	}
	cfg := c.workerConfig()
	cfg.Name = s.Name
	th, err := worker.NewTransform(c.id, c.reg, c.state, in, cfg)
	if err != nil {
		c.state.Finish()
		c.status = err.Error()
		return err
	}
	c.thread = th
	th.Start()
	return nil
}

func (c *Controller) workerConfig() worker.Config {
	name := "untitled"
	if c.path != "" {
		name = filepath.Base(c.path)
	}
	return worker.Config{
		Name:          name,
		Poll:          c.cfg.Run.PollInterval,
		StackBytes:    c.cfg.Run.StackBytes,
		MaxStackDepth: c.cfg.Run.MaxStackDepth,
		MaxScriptSize: c.cfg.Run.MaxScriptSize,
		Languages:     c.reg.langs,
	}
}

// beginRun clears the markers and output of the previous run.
func (c *Controller) beginRun() {
	c.buf.DeleteMarkers(textbuf.ErrorLine | textbuf.Current)
	c.stack, c.prompt = "", ""
	c.status = "running"
	c.queue.Post(event.Event{Kind: event.ClearOutput})
}

// Stop asks the running script to stop and kills a running tool.
func (c *Controller) Stop() error {
	c.state.RequestStop()
	return c.sup.Kill()
}

// DebugStep toggles debug mode of the current run, or starts a debug run
// when idle. While paused it resumes the script to completion.
func (c *Controller) DebugStep(stepInto bool) error {
	if !c.state.IsRunning() {
		c.stepInto = stepInto
		return c.Run(true)
	}
	debug := c.state.RequestDebugStep(stepInto)
	c.buf.SetReadOnly(debug)
	return nil
}

// Continue resumes a paused run. With next set the run stays in debug mode
// and pauses again at the next breakpoint; otherwise it runs to completion.
func (c *Controller) Continue(next bool) {
	if !c.state.Paused() {
		return
	}
	if next {
		c.state.RequestResume()
		return
	}
	c.DebugStep(c.stepInto)
}

// SupplyRead answers a pending readStr.
func (c *Controller) SupplyRead(text string) {
	c.prompt = ""
	c.state.PublishReadResult(text)
}

// SupplyAnswer answers a pending ask: 1 yes, 0 no, -1 cancel.
func (c *Controller) SupplyAnswer(n int) {
	c.prompt = ""
	c.state.PublishAnswer(n)
}

// ToggleBreakpoint flips the breakpoint on line n. A running script sees
// the change at its next statement.
func (c *Controller) ToggleBreakpoint(n int) bool {
	on := c.buf.ToggleMarker(n, textbuf.Breakpoint)
	c.state.SetBreakpoints(execstate.NewBreakpoints(c.buf.LinesWith(textbuf.Breakpoint)))
	return on
}

// SetBreakpoint sets or clears the breakpoint on line n.
func (c *Controller) SetBreakpoint(n int, on bool) {
	if on {
		c.buf.AddMarker(n, textbuf.Breakpoint)
	} else {
		c.buf.DeleteMarker(n, textbuf.Breakpoint)
	}
	c.state.SetBreakpoints(execstate.NewBreakpoints(c.buf.LinesWith(textbuf.Breakpoint)))
}

func (c *Controller) ToggleBookmark(n int) bool {
	return c.buf.ToggleMarker(n, textbuf.Bookmark)
}

// ToggleComment comments or uncomments lines from..to (1-based, inclusive)
// with the language's line comment prefix.
func (c *Controller) ToggleComment(from, to int) error {
	if from > to {
		from, to = to, from
	}
	all := c.buf.Lines()
	if from < 1 || to > len(all) {
		return fmt.Errorf("lines %d..%d out of range", from, to)
	}
	if err := c.buf.ReplaceLines(from, c.lang.ToggleComment(all[from-1:to])); err != nil {
		return err
	}
	c.modified = true
	return nil
}

// IndentFor returns the indentation for a new line inserted after line n.
func (c *Controller) IndentFor(n int) string {
	prev, ok := c.buf.Line(n)
	if !ok {
		return ""
	}
	return c.lang.IndentAfter(prev, c.buf.IndentUnit())
}

// ProcessEvents applies every pending event to the buffer and output and
// returns them for display, in post order. Tool polls come back as PRINT
// events carrying the output read on that tick.
func (c *Controller) ProcessEvents() []event.Event {
	var out []event.Event
	for _, ev := range c.queue.Drain() {
		switch ev.Kind {
		case event.ClearOutput:
			c.output.Reset()
		case event.Print:
			c.output.WriteString(ev.Text)
			if !ev.Flag {
				c.output.WriteByte('\n')
			}
		case event.PrintError:
			c.output.WriteString(ev.Text)
			c.output.WriteByte('\n')
			if ev.Line > 0 {
				c.buf.AddMarker(ev.Line, textbuf.ErrorLine)
			}
		case event.CurrentLine:
			c.markCurrent(ev.Line)
		case event.BreakpointHit:
			c.markCurrent(ev.Line)
			c.status = fmt.Sprintf("paused at line %d", ev.Line)
		case event.StackUpdate:
			c.stack = ev.Text
		case event.ReadRequest, event.AskRequest:
			c.prompt = ev.Text
		case event.Mutation:
			c.applyMutation(ev.Payload)
		case event.Finished:
			c.finishRun(ev.Text)
		case event.ToolPoll:
			text := c.sup.Poll()
			if text == "" {
				continue
			}
			c.output.WriteString(text)
			ev = event.Event{Kind: event.Print, Text: text, Flag: true}
		case event.ToolExit:
			out = append(out, c.finishTool(ev)...)
		}
		out = append(out, ev)
	}
	if !c.state.IsRunning() {
		c.buf.SetReadOnly(false)
	}
	return out
}

func (c *Controller) markCurrent(line int) {
	c.buf.DeleteMarkers(textbuf.Current)
	c.buf.AddMarker(line, textbuf.Current)
}

func (c *Controller) finishRun(summary string) {
	c.state.Finish()
	c.thread = nil
	c.prompt = ""
	c.buf.DeleteMarkers(textbuf.Current)
	c.buf.SetReadOnly(false)
	c.status = summary
}

func (c *Controller) applyMutation(payload any) {
	res, ok := payload.(engine.ExecutionResult)
	if !ok {
		return
	}
	var err error
	switch res.MutationKind {
	case engine.MutationReplaceSelect:
		c.buf.SetSelection(res.Selection)
		err = c.buf.ReplaceSelection(res.NewText)
	case engine.MutationReplaceDoc:
		err = c.buf.SetLines(strings.Split(res.NewFullText, "\n"))
	case engine.MutationInsertAtCursor:
		err = c.buf.InsertAtCursor(res.InsertText)
	}
	if err != nil {
		logging.Log(logging.WARN, "document", "transform not applied", "doc", c.id, "script", res.ScriptName, "error", err)
		return
	}
	c.modified = true
}

// Close stops any run or tool and removes the document from the registry.
// Events still in flight are dropped.
func (c *Controller) Close() error {
	c.state.RequestStop()
	err := multierr.Append(nil, c.sup.Kill())
	c.stopToolTicker()
	if c.thread != nil {
		select {
		case <-c.thread.Done():
		case <-time.After(2 * c.cfg.Run.PollInterval):
			err = multierr.Append(err, fmt.Errorf("document %d: worker still finishing", c.id))
		}
	}
	c.reg.remove(c.id)
	c.queue.Close()
	logging.Log(logging.DEBUG, "document", "closed", "doc", c.id)
	return err
}
