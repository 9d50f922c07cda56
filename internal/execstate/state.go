// Package execstate holds the per-document execution record shared by the
// owning goroutine and the script worker.
//
// A single mutex guards the whole record. Methods called from inside the
// script engine (the debug hook and the interactive I/O waits) acquire it with
// TryLock and a short sleep between attempts instead of blocking. No method
// holds the lock while sleeping or doing I/O.
package execstate

import (
	"sync"
	"sync/atomic"
	"time"
)

const spinDelay = time.Millisecond

type State struct {
	mu sync.Mutex

	running        bool
	stopRequested  bool
	debugRequested bool
	stepInto       bool
	paused         bool
	resume         bool

	pendingRead   *string
	readDone      bool
	pendingAnswer *int
	askDone       bool

	currentLine int
	engine      any

	breakpoints atomic.Pointer[Breakpoints]
}

func New() *State {
	s := &State{}
	s.breakpoints.Store(NewBreakpoints(nil))
	return s
}

// lockSpin acquires the lock without blocking inside the engine's call stack.
func (s *State) lockSpin() {
	for !s.mu.TryLock() {
		time.Sleep(spinDelay)
	}
}

// TryBeginRun resets the record and marks it running, unless a run is
// already in flight, in which case it returns false and changes nothing.
func (s *State) TryBeginRun(debug bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.resetLocked()
	s.running = true
	s.debugRequested = debug
	return true
}

// ResetForRun clears every per-run field.
func (s *State) ResetForRun() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

func (s *State) resetLocked() {
	s.running = false
	s.stopRequested = false
	s.debugRequested = false
	s.stepInto = false
	s.paused = false
	s.resume = false
	s.pendingRead, s.readDone = nil, false
	s.pendingAnswer, s.askDone = nil, false
	s.currentLine = 0
	s.engine = nil
}

// Finish marks the run over. It is called once, on the owning goroutine,
// when the worker's FINISHED event is processed.
func (s *State) Finish() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()
}

// RequestStop asks the running script to stop and leaves debug mode.
func (s *State) RequestStop() {
	s.mu.Lock()
	if s.running {
		s.stopRequested = true
	}
	s.debugRequested = false
	s.mu.Unlock()
}

// RequestDebugStep toggles debug mode and records the step-into choice. It
// returns the new debug state; false while paused means run to completion.
func (s *State) RequestDebugStep(stepInto bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debugRequested = !s.debugRequested
	s.stepInto = stepInto
	return s.debugRequested
}

// RequestResume lets a paused script continue while staying in debug mode,
// so the next breakpoint pauses again. It has no effect unless paused.
func (s *State) RequestResume() {
	s.mu.Lock()
	if s.paused {
		s.resume = true
	}
	s.mu.Unlock()
}

// TakeResume consumes a pending resume request.
func (s *State) TakeResume() bool {
	s.lockSpin()
	defer s.mu.Unlock()
	r := s.resume
	s.resume = false
	return r
}

// SetStepInto records whether breakpoints further up the call stack break.
func (s *State) SetStepInto(on bool) {
	s.mu.Lock()
	s.stepInto = on
	s.mu.Unlock()
}

func (s *State) IsStopRequested() bool {
	s.lockSpin()
	defer s.mu.Unlock()
	return s.stopRequested
}

func (s *State) IsDebugRequested() bool {
	s.lockSpin()
	defer s.mu.Unlock()
	return s.debugRequested
}

// Flags reads the hook's inputs in one critical section.
func (s *State) Flags() (stop, debug, stepInto bool) {
	s.lockSpin()
	defer s.mu.Unlock()
	return s.stopRequested, s.debugRequested, s.stepInto
}

func (s *State) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsDebugging is running && debugRequested.
func (s *State) IsDebugging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.debugRequested
}

func (s *State) SetCurrentLine(n int) {
	s.lockSpin()
	s.currentLine = n
	s.mu.Unlock()
}

func (s *State) CurrentLine() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLine
}

// SetPaused records whether the worker is blocked at a breakpoint.
func (s *State) SetPaused(p bool) {
	s.lockSpin()
	s.paused = p
	if p {
		s.resume = false
	}
	s.mu.Unlock()
}

func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetEngine stores the worker's engine handle for display only.
func (s *State) SetEngine(h any) {
	s.lockSpin()
	s.engine = h
	s.mu.Unlock()
}

func (s *State) Engine() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// BeginRead empties the read mailbox before the worker asks for input.
func (s *State) BeginRead() {
	s.lockSpin()
	s.pendingRead, s.readDone = nil, false
	s.mu.Unlock()
}

// PublishReadResult fills the read mailbox.
func (s *State) PublishReadResult(text string) {
	s.mu.Lock()
	s.pendingRead, s.readDone = &text, true
	s.mu.Unlock()
}

// TakeRead empties the read mailbox, reporting whether it held a value.
func (s *State) TakeRead() (string, bool) {
	s.lockSpin()
	defer s.mu.Unlock()
	if !s.readDone {
		return "", false
	}
	text := ""
	if s.pendingRead != nil {
		text = *s.pendingRead
	}
	s.pendingRead, s.readDone = nil, false
	return text, true
}

// BeginAsk empties the answer mailbox.
func (s *State) BeginAsk() {
	s.lockSpin()
	s.pendingAnswer, s.askDone = nil, false
	s.mu.Unlock()
}

// PublishAnswer fills the answer mailbox: 1 yes, 0 no, -1 cancel.
func (s *State) PublishAnswer(n int) {
	s.mu.Lock()
	s.pendingAnswer, s.askDone = &n, true
	s.mu.Unlock()
}

// TakeAnswer empties the answer mailbox, reporting whether it held a value.
func (s *State) TakeAnswer() (int, bool) {
	s.lockSpin()
	defer s.mu.Unlock()
	if !s.askDone {
		return 0, false
	}
	n := -1
	if s.pendingAnswer != nil {
		n = *s.pendingAnswer
	}
	s.pendingAnswer, s.askDone = nil, false
	return n, true
}

// SetBreakpoints publishes a new snapshot. The worker only ever reads
// snapshots, so no lock is involved.
func (s *State) SetBreakpoints(b *Breakpoints) {
	if b == nil {
		b = NewBreakpoints(nil)
	}
	s.breakpoints.Store(b)
}

func (s *State) Breakpoints() *Breakpoints { return s.breakpoints.Load() }

// WaitUntil sleeps in poll steps until pred returns true. pred is evaluated
// before the first sleep.
func WaitUntil(pred func() bool, poll time.Duration) {
	for !pred() {
		time.Sleep(poll)
	}
}
