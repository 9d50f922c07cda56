// Package event carries notifications from worker goroutines and process
// pollers to the goroutine that owns a document.
package event

import "sync"

// Kind identifies an event.
type Kind int

const (
	ClearOutput   Kind = iota
	Print              // Text: script output; Flag: raw tool output, no line break
	PrintError         // Line, Text: script failure; Line 0 when unknown
	CurrentLine        // Line: line being executed
	BreakpointHit      // Line, Flag: first break of the run
	StackUpdate        // Line, Text: formatted stack trace
	Finished           // Value: worker status, Text: completion summary
	ReadRequest        // Text: prompt; answer with PublishReadResult
	AskRequest         // Text: question; answer with PublishAnswer
	Mutation           // Payload: transform result to apply
	ToolPoll           // timer tick while a tool process is alive
	ToolExit           // Value: exit code, Line: attributed error line
)

var kindNames = [...]string{
	"CLEAR_OUTPUT", "PRINT", "PRINT_ERROR", "CURRENT_LINE", "BREAKPOINT_HIT",
	"STACK_UPDATE", "FINISHED", "READ_REQUEST", "ASK_REQUEST", "MUTATION",
	"TOOL_POLL", "TOOL_EXIT",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN"
}

// Event is one notification. Payload fields are copies; nothing in an Event
// is shared with the producer after Post.
type Event struct {
	Kind    Kind
	Line    int
	Flag    bool
	Value   int
	Text    string
	Payload any
}

// Queue is an unbounded FIFO safe for any number of producers. Events are
// delivered in post order.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Post appends ev. It reports false when the queue is closed and the event
// was dropped.
func (q *Queue) Post(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Drain removes and returns every queued event.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Notify receives a value after one or more Posts.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

// Close drops pending events and makes later Posts no-ops.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
