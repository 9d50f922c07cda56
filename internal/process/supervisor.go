// Package process runs external tools for a document: one child process at
// a time, output collected into a bounded buffer and drained by the owner on
// a timer, and exactly one exit notification per spawned process.
package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"codeberg.org/sigterm-de/goscribe/internal/config"
	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// TruncationMarker is appended once to the output after MaxOutput bytes.
const TruncationMarker = "\n[output truncated]\n"

// waitDelay bounds how long Wait keeps copying output after the child exits
// while a grandchild still holds the pipes.
const waitDelay = 2 * time.Second

type Status int32

const (
	Idle Status = iota
	Alive
	Terminated
	SpawnFailed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Alive:
		return "alive"
	case Terminated:
		return "terminated"
	case SpawnFailed:
		return "spawn failed"
	}
	return "unknown"
}

// Exit describes how a process ended. Code is -1 when the process was
// killed or died from a signal.
type Exit struct {
	PID       int
	Code      int
	Killed    bool
	Err       error
	ErrorLine int // 0 when the output names no line
}

type Options struct {
	Shell     string // runs the command line with -c
	Terminal  config.Terminal
	ReadChunk int
	MaxOutput int
	OnExit    func(Exit)
}

func (o *Options) defaults() {
	if o.Shell == "" {
		o.Shell = "/bin/sh"
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = 64 << 10
	}
	if o.MaxOutput < o.ReadChunk {
		o.MaxOutput = o.ReadChunk
	}
}

// handle is one spawned process. notified flips exactly once, by whichever
// of Kill or the wait goroutine gets there first.
type handle struct {
	cmd         *exec.Cmd
	pid         int
	redirect    bool
	commandLine string
	workDir     string
	out         *outputBuffer
	errFile     string
	errPattern  string
	notified    atomic.Bool
	done        chan struct{}
}

// Supervisor owns at most one live process.
type Supervisor struct {
	opts Options

	mu     sync.Mutex
	h      *handle
	status Status
	out    *outputBuffer

	errFile    string
	errPattern string
}

func NewSupervisor(opts Options) *Supervisor {
	opts.defaults()
	return &Supervisor{opts: opts, out: newOutputBuffer(opts.MaxOutput)}
}

// SetErrorPattern sets the document name and tool pattern used to find an
// error line in the output of the next process. See ParseErrorLine.
func (s *Supervisor) SetErrorPattern(file, pattern string) {
	s.mu.Lock()
	s.errFile, s.errPattern = file, pattern
	s.mu.Unlock()
}

// Execute starts command in workDir. With redirect the command runs under
// the shell and its stdout and stderr are collected for Poll; without it the
// command is wrapped in the configured terminal emulator. It returns the
// pid, ErrBusy while a process is alive, or an ErrProcessSpawn error.
func (s *Supervisor) Execute(command, workDir string, redirect bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h != nil {
		return 0, fmt.Errorf("process %d still running: %w", s.h.pid, errs.ErrBusy)
	}

	line := command
	if !redirect {
		line = BuildTerminalCommand(s.opts.Terminal, "goscribe: "+command, command, workDir)
	}
	cmd := exec.Command(s.opts.Shell, "-c", line)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = waitDelay
	s.out = newOutputBuffer(s.opts.MaxOutput)
	if redirect {
		cmd.Stdout = s.out
		cmd.Stderr = s.out
	}

	if err := cmd.Start(); err != nil {
		s.status = SpawnFailed
		logging.Log(logging.ERROR, "process", "spawn failed", "command", line, "error", err)
		return 0, fmt.Errorf("%w: %s: %w", errs.ErrProcessSpawn, command, err)
	}

	h := &handle{
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		redirect:    redirect,
		commandLine: line,
		workDir:     workDir,
		out:         s.out,
		errFile:     s.errFile,
		errPattern:  s.errPattern,
		done:        make(chan struct{}),
	}
	s.h = h
	s.status = Alive
	logging.Log(logging.INFO, "process", "spawned", "pid", h.pid, "command", line, "dir", workDir, "redirect", redirect)
	go s.wait(h)
	return h.pid, nil
}

func (s *Supervisor) wait(h *handle) {
	err := h.cmd.Wait()
	close(h.done)

	code := 0
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
		err = nil
	default:
		code = -1
	}

	s.mu.Lock()
	if s.h == h {
		s.h = nil
		s.status = Terminated
	}
	s.mu.Unlock()

	if !h.notified.CompareAndSwap(false, true) {
		return
	}
	ex := Exit{PID: h.pid, Code: code, Err: err}
	if code != 0 && h.redirect {
		ex.ErrorLine = ParseErrorLine(h.out.String(), h.errFile, h.errPattern)
	}
	logging.Log(logging.INFO, "process", "terminated", "pid", h.pid, "code", code, "errorLine", ex.ErrorLine)
	s.notify(ex)
}

// Kill terminates the process group of the live process and reports the
// exit as killed. It is a no-op when nothing is running, so it is safe to
// call repeatedly or after a natural exit.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	h := s.h
	s.h = nil
	if h != nil {
		s.status = Terminated
	}
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	claimed := h.notified.CompareAndSwap(false, true)

	var err error
	if e := unix.Kill(-h.pid, unix.SIGTERM); e != nil && !errors.Is(e, unix.ESRCH) {
		err = multierr.Append(err, fmt.Errorf("signal group %d: %w", h.pid, e))
	}
	select {
	case <-h.done:
	case <-time.After(500 * time.Millisecond):
		if e := unix.Kill(-h.pid, unix.SIGKILL); e != nil && !errors.Is(e, unix.ESRCH) {
			err = multierr.Append(err, fmt.Errorf("kill group %d: %w", h.pid, e))
		}
	}

	if claimed {
		logging.Log(logging.INFO, "process", "killed", "pid", h.pid)
		s.notify(Exit{PID: h.pid, Code: -1, Killed: true, Err: err})
	}
	return err
}

func (s *Supervisor) notify(ex Exit) {
	if s.opts.OnExit != nil {
		s.opts.OnExit(ex)
	}
}

// Poll returns at most ReadChunk bytes of output collected since the last
// call. Once the hard cap has been hit and the rest drained, the next call
// returns TruncationMarker.
func (s *Supervisor) Poll() string {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	return out.take(s.opts.ReadChunk)
}

// Output returns everything collected so far, up to MaxOutput bytes.
func (s *Supervisor) Output() string {
	s.mu.Lock()
	out := s.out
	s.mu.Unlock()
	return out.String()
}

func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h != nil
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// PID returns the live process id, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == nil {
		return 0
	}
	return s.h.pid
}

// CommandLine returns the shell command line of the live process.
func (s *Supervisor) CommandLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == nil {
		return ""
	}
	return s.h.commandLine
}
