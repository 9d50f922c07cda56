package worker

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/sigterm-de/goscribe/internal/engine"
	"codeberg.org/sigterm-de/goscribe/internal/errs"
	"codeberg.org/sigterm-de/goscribe/internal/event"
	"codeberg.org/sigterm-de/goscribe/internal/execstate"
)

const testPoll = 20 * time.Millisecond

type recorder struct {
	mu     sync.Mutex
	events []event.Event
	gone   bool
}

func (r *recorder) Post(_ uint64, ev event.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone {
		return false
	}
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func (r *recorder) count(kind event.Kind) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// waitFor polls until an event of kind has been posted.
func (r *recorder) waitFor(t *testing.T, kind event.Kind) event.Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range r.snapshot() {
			if ev.Kind == kind {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event; got %v", kind, kinds(r.snapshot()))
	return event.Event{}
}

func kinds(evs []event.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind.String()
	}
	return out
}

func waitDone(t *testing.T, th *Thread) {
	t.Helper()
	select {
	case <-th.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("thread did not finish")
	}
}

func startThread(t *testing.T, src string, debug bool, bps ...int) (*Thread, *recorder, *execstate.State) {
	t.Helper()
	st := execstate.New()
	if !st.TryBeginRun(debug) {
		t.Fatal("TryBeginRun refused")
	}
	st.SetBreakpoints(execstate.NewBreakpoints(bps))
	rec := &recorder{}
	th, err := NewThread(1, rec, st, src, strings.Count(src, "\n")+1, Config{Name: "doc.js", Poll: testPoll})
	if err != nil {
		t.Fatalf("NewThread: %v", err)
	}
	th.Start()
	return th, rec, st
}

func TestShouldBreak(t *testing.T) {
	bps := execstate.NewBreakpoints([]int{10})
	cases := []struct {
		name     string
		lines    []int
		stepInto bool
		want     bool
	}{
		{"current line", []int{10}, false, true},
		{"caller without step into", []int{3, 7, 10}, false, false},
		{"caller with step into", []int{3, 7, 10}, true, true},
		{"no breakpoint on stack", []int{3, 7}, true, false},
		{"empty stack", nil, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldBreak(tc.lines, bps, tc.stepInto); got != tc.want {
				t.Errorf("ShouldBreak(%v, step=%v) = %v, want %v", tc.lines, tc.stepInto, got, tc.want)
			}
		})
	}
}

func TestRunPostsOutputThenFinished(t *testing.T) {
	th, rec, _ := startThread(t, `print("hi");`, false)
	waitDone(t, th)
	got := kinds(rec.snapshot())
	if strings.Join(got, ",") != "PRINT,FINISHED" {
		t.Fatalf("events = %v", got)
	}
	if th.Status() != Finished {
		t.Errorf("status = %s", th.Status())
	}
}

func TestErrorReportedBeforeFinished(t *testing.T) {
	th, rec, _ := startThread(t, "var a = 1;\nnull.x;\n", false)
	waitDone(t, th)
	evs := rec.snapshot()
	if len(evs) != 2 || evs[0].Kind != event.PrintError || evs[1].Kind != event.Finished {
		t.Fatalf("events = %v", kinds(evs))
	}
	if evs[0].Line != 2 {
		t.Errorf("error line = %d, want 2", evs[0].Line)
	}
	if th.Status() != Errored {
		t.Errorf("status = %s", th.Status())
	}
}

func TestBreakpointThenContinue(t *testing.T) {
	var lines []string
	for i := 1; i <= 10; i++ {
		lines = append(lines, "var v"+string(rune('0'+i%10))+" = 1;")
	}
	th, rec, st := startThread(t, strings.Join(lines, "\n"), true, 5)

	hit := rec.waitFor(t, event.BreakpointHit)
	if hit.Line != 5 || !hit.Flag {
		t.Fatalf("BREAKPOINT_HIT = line %d first %v, want 5 true", hit.Line, hit.Flag)
	}
	if !st.Paused() || st.CurrentLine() != 5 {
		t.Fatalf("paused=%v line=%d", st.Paused(), st.CurrentLine())
	}
	rec.waitFor(t, event.StackUpdate)

	if st.RequestDebugStep(false) {
		t.Fatal("toggle while paused should leave debug mode")
	}
	waitDone(t, th)
	if rec.count(event.PrintError) != 0 {
		t.Errorf("unexpected error: %v", kinds(rec.snapshot()))
	}
	if n := rec.count(event.Finished); n != 1 {
		t.Errorf("FINISHED posted %d times", n)
	}
	if th.Status() != Finished {
		t.Errorf("status = %s", th.Status())
	}
}

func TestResumePausesAtNextBreakpoint(t *testing.T) {
	src := "var s = 0;\nfor (var i = 0; i < 3; i++) {\n  s += i;\n}\n"
	th, rec, st := startThread(t, src, true, 3)

	for hit := 1; hit <= 3; hit++ {
		deadline := time.Now().Add(5 * time.Second)
		for rec.count(event.BreakpointHit) < hit || !st.Paused() {
			if time.Now().After(deadline) {
				t.Fatalf("hit %d never came: %v", hit, kinds(rec.snapshot()))
			}
			time.Sleep(5 * time.Millisecond)
		}
		st.RequestResume()
	}
	waitDone(t, th)
	if n := rec.count(event.BreakpointHit); n != 3 {
		t.Errorf("BREAKPOINT_HIT posted %d times, want 3", n)
	}
	if th.Status() != Finished {
		t.Errorf("status = %s", th.Status())
	}
}

func TestStopWhilePaused(t *testing.T) {
	th, rec, st := startThread(t, "var a = 1;\nvar b = 2;\nvar c = 3;\n", true, 2)
	rec.waitFor(t, event.BreakpointHit)

	begin := time.Now()
	st.RequestStop()
	waitDone(t, th)
	// two poll periods plus scheduling slack
	if d := time.Since(begin); d > 2*testPoll+200*time.Millisecond {
		t.Errorf("stop took %v", d)
	}
	if n := rec.count(event.Finished); n != 1 {
		t.Errorf("FINISHED posted %d times", n)
	}
	for _, ev := range rec.snapshot() {
		if ev.Kind == event.PrintError && ev.Line != 0 {
			t.Errorf("stop reported with line %d", ev.Line)
		}
	}
	if th.Status() != StoppedByUser {
		t.Errorf("status = %s", th.Status())
	}
}

func TestStopEndlessLoopWithoutDebug(t *testing.T) {
	th, rec, st := startThread(t, "while (true) {}\n", false)
	time.Sleep(2 * testPoll)
	st.RequestStop()
	waitDone(t, th)
	if th.Status() != StoppedByUser {
		t.Fatalf("status = %s", th.Status())
	}
	evs := rec.snapshot()
	if evs[len(evs)-1].Kind != event.Finished || rec.count(event.Finished) != 1 {
		t.Errorf("events = %v", kinds(evs))
	}
}

func TestHookStepIntoDecision(t *testing.T) {
	st := execstate.New()
	st.TryBeginRun(true)
	st.SetBreakpoints(execstate.NewBreakpoints([]int{10}))
	rec := &recorder{}
	th, err := NewThread(1, rec, st, "", 1, Config{Poll: testPoll})
	if err != nil {
		t.Fatal(err)
	}
	frames := []engine.Frame{{Line: 3, Func: "inner"}, {Line: 10}}
	stack := func() []engine.Frame { return frames }

	if err := th.hook(3, stack); err != nil {
		t.Fatalf("hook without step into = %v", err)
	}
	if rec.count(event.BreakpointHit) != 0 {
		t.Fatal("broke on a caller line without step into")
	}

	st.SetStepInto(true)
	res := make(chan error, 1)
	go func() { res <- th.hook(3, stack) }()
	hit := rec.waitFor(t, event.BreakpointHit)
	if hit.Line != 3 {
		t.Errorf("hit line = %d, want 3", hit.Line)
	}
	st.RequestStop()
	select {
	case err := <-res:
		if !errors.Is(err, errs.ErrCancelled) {
			t.Errorf("hook = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("hook did not return after stop")
	}
}

func TestHookCapturesStackOnlyWhenNeeded(t *testing.T) {
	st := execstate.New()
	st.TryBeginRun(true)
	st.SetBreakpoints(execstate.NewBreakpoints([]int{10}))
	th, err := NewThread(1, &recorder{}, st, "", 1, Config{Poll: testPoll})
	if err != nil {
		t.Fatal(err)
	}
	captures := 0
	stack := func() []engine.Frame {
		captures++
		return []engine.Frame{{Line: 3}, {Line: 7}}
	}

	for line := 1; line <= 5; line++ {
		if err := th.hook(line, stack); err != nil {
			t.Fatal(err)
		}
	}
	if captures != 0 {
		t.Errorf("debugging without step into captured the stack %d times", captures)
	}

	// Debug mode switched off, as after "continue".
	if st.RequestDebugStep(false) {
		t.Fatal("debug mode still on")
	}
	st.SetStepInto(true)
	for line := 1; line <= 100; line++ {
		if err := th.hook(line, stack); err != nil {
			t.Fatal(err)
		}
	}
	if captures != 0 {
		t.Errorf("continued run captured the stack %d times", captures)
	}

	st.RequestDebugStep(true)
	if err := th.hook(4, stack); err != nil {
		t.Fatal(err)
	}
	if captures != 1 {
		t.Errorf("step into captured the stack %d times, want 1", captures)
	}
}

func TestCurrentLinePostedOnChange(t *testing.T) {
	th, rec, _ := startThread(t, "var a = 1; var b = 2;\nvar c = 3;\n", true)
	waitDone(t, th)
	var got []int
	for _, ev := range rec.snapshot() {
		if ev.Kind == event.CurrentLine {
			got = append(got, ev.Line)
		}
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("CURRENT_LINE lines = %v, want [1 2]", got)
	}
}

func TestReadStrMailbox(t *testing.T) {
	th, rec, st := startThread(t, `print("got " + readStr("name?"));`, false)
	req := rec.waitFor(t, event.ReadRequest)
	if req.Text != "name?" {
		t.Errorf("prompt = %q", req.Text)
	}
	st.PublishReadResult("bob")
	waitDone(t, th)
	evs := rec.snapshot()
	found := false
	for _, ev := range evs {
		if ev.Kind == event.Print && ev.Text == "got bob" {
			found = true
		}
	}
	if !found {
		t.Errorf("events = %v", kinds(evs))
	}
}

func TestAskStopped(t *testing.T) {
	th, rec, st := startThread(t, `ask("sure?"); print("after");`, false)
	rec.waitFor(t, event.AskRequest)
	st.RequestStop()
	waitDone(t, th)
	if th.Status() != StoppedByUser || rec.count(event.Print) != 0 {
		t.Errorf("status = %s events = %v", th.Status(), kinds(rec.snapshot()))
	}
}

func TestNewThreadSizeLimit(t *testing.T) {
	_, err := NewThread(1, &recorder{}, execstate.New(), strings.Repeat("x", 64), 1, Config{MaxScriptSize: 16})
	var sle *errs.SizeLimitError
	if !errors.As(err, &sle) || !errors.Is(err, errs.ErrSizeLimit) {
		t.Fatalf("err = %v, want size limit", err)
	}
}

func TestPosterGoneStillFinishes(t *testing.T) {
	st := execstate.New()
	st.TryBeginRun(false)
	rec := &recorder{gone: true}
	th, err := NewThread(1, rec, st, `print(1);`, 1, Config{Poll: testPoll})
	if err != nil {
		t.Fatal(err)
	}
	th.Start()
	waitDone(t, th)
	if th.Status() != Finished {
		t.Errorf("status = %s", th.Status())
	}
}

func TestTransformPostsMutationBeforeFinished(t *testing.T) {
	st := execstate.New()
	st.TryBeginRun(false)
	rec := &recorder{}
	in := engine.ExecutionInput{
		ScriptSource: `function main(state) { state.postInfo("done"); state.text = state.text.toUpperCase(); }`,
		ScriptName:   "upcase",
		Doc:          engine.Document{Text: "abc"},
		Timeout:      5 * time.Second,
	}
	th, err := NewTransform(1, rec, st, in, Config{Poll: testPoll})
	if err != nil {
		t.Fatal(err)
	}
	th.Start()
	waitDone(t, th)
	evs := rec.snapshot()
	if got := strings.Join(kinds(evs), ","); got != "PRINT,MUTATION,FINISHED" {
		t.Fatalf("events = %s", got)
	}
	res, ok := evs[1].Payload.(engine.ExecutionResult)
	if !ok || res.NewText != "ABC" {
		t.Errorf("payload = %#v", evs[1].Payload)
	}
}
