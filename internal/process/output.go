package process

import "sync"

// outputBuffer collects a child's stdout and stderr. It keeps the first limit
// bytes; everything after is discarded and reported by a single
// TruncationMarker once the kept bytes have been taken.
type outputBuffer struct {
	mu        sync.Mutex
	all       []byte
	next      int // offset of the first byte not yet taken
	limit     int
	truncated bool
	marked    bool
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{limit: limit}
}

// Write never fails, so a chatty child is not blocked on a full pipe.
func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - len(b.all)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.all = append(b.all, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.all = append(b.all, p...)
	return len(p), nil
}

func (b *outputBuffer) take(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rest := len(b.all) - b.next; rest > 0 {
		if rest > n {
			rest = n
		}
		s := string(b.all[b.next : b.next+rest])
		b.next += rest
		return s
	}
	if b.truncated && !b.marked {
		b.marked = true
		return TruncationMarker
	}
	return ""
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.all)
}
