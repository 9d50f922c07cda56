package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"codeberg.org/sigterm-de/goscribe/internal/document"
	"codeberg.org/sigterm-de/goscribe/internal/event"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
	"codeberg.org/sigterm-de/goscribe/internal/worker"
)

// pending is what the next input line answers.
type pending int

const (
	none pending = iota
	readAnswer
	askAnswer
	pauseCommand
)

// session owns one document for the duration of a run: it is the goroutine
// that drains the document's events and the only caller of its methods.
type session struct {
	doc    *document.Controller
	out    io.Writer
	errOut io.Writer
	lines  <-chan string
	eof    bool
	queued []string
	want   pending
}

func (a *App) newSession(doc *document.Controller) *session {
	return &session{doc: doc, out: a.out, errOut: a.errOut, lines: a.Lines()}
}

// wait renders events until the run or tool ends and returns the exit code.
// Cancelling ctx stops the run; the session keeps draining until the
// worker or process has reported its end.
func (s *session) wait(ctx context.Context) int {
	interrupt := ctx.Done()
	for {
		for _, ev := range s.doc.ProcessEvents() {
			if code, done := s.render(ev); done {
				return code
			}
		}
		select {
		case <-s.doc.Notify():
		case <-interrupt:
			interrupt = nil
			logging.Log(logging.INFO, "session", "interrupted", "doc", s.doc.ID())
			if err := s.doc.Stop(); err != nil {
				fmt.Fprintln(s.errOut, "stop:", err)
			}
		case line, ok := <-s.lines:
			switch {
			case !ok:
				s.lines, s.eof = nil, true
				if s.want != none {
					s.answer("", true)
				}
			case s.want == none:
				s.queued = append(s.queued, line)
			default:
				s.answer(line, false)
			}
		}
	}
}

// render displays ev and reports whether the run is over.
func (s *session) render(ev event.Event) (int, bool) {
	switch ev.Kind {
	case event.Print:
		if ev.Flag {
			io.WriteString(s.out, ev.Text)
		} else {
			fmt.Fprintln(s.out, ev.Text)
		}
	case event.PrintError:
		if ev.Line > 0 {
			fmt.Fprintf(s.errOut, "line %d: %s\n", ev.Line, ev.Text)
		} else {
			fmt.Fprintln(s.errOut, ev.Text)
		}
	case event.BreakpointHit:
		src, _ := s.doc.Buffer().Line(ev.Line)
		fmt.Fprintf(s.errOut, "-- paused at line %d: %s\n", ev.Line, strings.TrimSpace(src))
	case event.StackUpdate:
		for _, l := range strings.Split(strings.TrimRight(ev.Text, "\n"), "\n") {
			fmt.Fprintln(s.errOut, "   ", l)
		}
		fmt.Fprint(s.errOut, "[n]ext breakpoint, [c]ontinue, [q]uit> ")
		s.expect(pauseCommand)
	case event.ReadRequest:
		fmt.Fprint(s.errOut, ev.Text)
		s.expect(readAnswer)
	case event.AskRequest:
		fmt.Fprintf(s.errOut, "%s [y/n/c] ", ev.Text)
		s.expect(askAnswer)
	case event.Finished:
		switch worker.Status(ev.Value) {
		case worker.Finished:
			return 0, true
		case worker.StoppedByUser:
			return ExitInterrupted, true
		default:
			return 1, true
		}
	case event.ToolExit:
		fmt.Fprintln(s.errOut, s.doc.Status())
		if ev.Line > 0 {
			fmt.Fprintf(s.errOut, "error at line %d\n", ev.Line)
		}
		if ev.Flag {
			return ExitInterrupted, true
		}
		return ev.Value, true
	}
	return 0, false
}

// expect records what the next line answers, using a line typed ahead of
// the prompt when there is one.
func (s *session) expect(p pending) {
	s.want = p
	switch {
	case len(s.queued) > 0:
		line := s.queued[0]
		s.queued = s.queued[1:]
		s.answer(line, false)
	case s.eof:
		s.answer("", true)
	}
}

// answer applies one input line to whatever is pending. At end of input a
// read gets the empty string, an ask is cancelled and a pause continues.
func (s *session) answer(line string, eof bool) {
	line = strings.TrimSpace(line)
	want := s.want
	s.want = none
	switch want {
	case readAnswer:
		s.doc.SupplyRead(line)
	case askAnswer:
		s.doc.SupplyAnswer(parseAnswer(line, eof))
	case pauseCommand:
		switch {
		case eof || line == "c":
			s.doc.Continue(false)
		case line == "" || line == "n":
			s.doc.Continue(true)
		case line == "q":
			s.doc.Stop()
		default:
			fmt.Fprint(s.errOut, "[n]ext breakpoint, [c]ontinue, [q]uit> ")
			s.expect(pauseCommand)
		}
	}
}

func parseAnswer(line string, eof bool) int {
	switch {
	case eof:
		return -1
	case strings.HasPrefix(strings.ToLower(line), "y"):
		return 1
	case strings.HasPrefix(strings.ToLower(line), "n"):
		return 0
	default:
		return -1
	}
}

// scanLines feeds r line by line into a channel that is closed at end of
// input.
func scanLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
