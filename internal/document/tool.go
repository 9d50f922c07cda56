package document

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/event"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
	"codeberg.org/sigterm-de/goscribe/internal/textbuf"
)

// Tools lists the configured tools that apply to this document's file
// extension, sorted by name. Tools without extensions apply everywhere.
func (c *Controller) Tools() []string {
	ext := strings.TrimPrefix(filepath.Ext(c.path), ".")
	var out []string
	for _, name := range c.cfg.ToolNames() {
		t := c.cfg.Tools[name]
		if len(t.Extensions) == 0 || slices.Contains(t.Extensions, ext) {
			out = append(out, name)
		}
	}
	return out
}

// ExpandCommand substitutes $(FilePath), $(FileName) and $(FileDir) in a
// tool command.
func ExpandCommand(command, path string) string {
	return strings.NewReplacer(
		"$(FilePath)", path,
		"$(FileName)", filepath.Base(path),
		"$(FileDir)", filepath.Dir(path),
	).Replace(command)
}

// RunTool starts the named tool on the saved file, saving first when the
// buffer is modified. Output arrives as PRINT events on each poll tick and
// the exit as TOOL_EXIT, with the error line marked when the tool failed.
func (c *Controller) RunTool(name string) error {
	tool, ok := c.cfg.Tools[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if c.path == "" {
		return fmt.Errorf("tool %s: document has no file name", name)
	}
	if !c.state.TryBeginRun(false) {
		return errs.ErrBusy
	}
	if c.modified {
		if err := c.Save(); err != nil {
			c.state.Finish()
			return err
		}
	}

	dir := filepath.Dir(c.path)
	if tool.WorkDir != "" {
		dir = ExpandCommand(tool.WorkDir, c.path)
	}
	command := ExpandCommand(tool.Command, c.path)
	c.beginRun()
	c.sup.SetErrorPattern(c.path, tool.ErrorPattern)
	pid, err := c.sup.Execute(command, dir, tool.Redirect)
	if err != nil {
		c.state.Finish()
		c.status = err.Error()
		return err
	}
	c.toolName = name
	c.status = fmt.Sprintf("%s running (pid %d)", name, pid)
	c.startToolTicker()
	logging.Log(logging.INFO, "document", "tool started", "doc", c.id, "tool", name, "pid", pid)
	return nil
}

// KillTool terminates the running tool, if any.
func (c *Controller) KillTool() error {
	return c.sup.Kill()
}

func (c *Controller) startToolTicker() {
	quit := make(chan struct{})
	c.toolQuit = quit
	reg, id, poll := c.reg, c.id, c.cfg.Run.PollInterval
	go func() {
		tick := time.NewTicker(poll)
		defer tick.Stop()
		for {
			select {
			case <-quit:
				return
			case <-tick.C:
				if !reg.Post(id, event.Event{Kind: event.ToolPoll}) {
					return
				}
			}
		}
	}()
}

func (c *Controller) stopToolTicker() {
	if c.toolQuit != nil {
		close(c.toolQuit)
		c.toolQuit = nil
	}
}

// finishTool drains the remaining output, marks the error line and ends the
// run. It returns the drained output as PRINT events.
func (c *Controller) finishTool(ev event.Event) []event.Event {
	c.stopToolTicker()
	var out []event.Event
	for text := c.sup.Poll(); text != ""; text = c.sup.Poll() {
		c.output.WriteString(text)
		out = append(out, event.Event{Kind: event.Print, Text: text, Flag: true})
	}
	if ev.Line > 0 {
		c.buf.AddMarker(ev.Line, textbuf.ErrorLine)
	}
	switch {
	case ev.Flag:
		c.status = c.toolName + " killed"
	case ev.Value == 0:
		c.status = c.toolName + " finished"
	default:
		c.status = fmt.Sprintf("%s exited with code %d", c.toolName, ev.Value)
	}
	logging.Log(logging.INFO, "document", "tool finished", "doc", c.id, "tool", c.toolName, "code", ev.Value, "errorLine", ev.Line)
	c.state.Finish()
	c.toolName = ""
	return out
}
