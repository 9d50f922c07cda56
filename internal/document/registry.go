// Package document ties one open file to its buffer, execution state,
// script worker and tool process. A Controller is owned by one goroutine;
// workers and processes reach it only by posting events through the
// Registry under the document's id.
package document

import (
	"sync"
	"sync/atomic"

	"codeberg.org/sigterm-de/goscribe/internal/config"
	"codeberg.org/sigterm-de/goscribe/internal/event"
	"codeberg.org/sigterm-de/goscribe/internal/lang"
	"codeberg.org/sigterm-de/goscribe/internal/logging"
)

// Registry issues document ids and routes events to open documents. It is
// safe for concurrent use.
type Registry struct {
	cfg   config.Config
	langs *lang.Table

	nextID atomic.Uint64

	mu   sync.RWMutex
	docs map[uint64]*Controller
}

func NewRegistry(cfg config.Config, langs *lang.Table) *Registry {
	return &Registry{cfg: cfg, langs: langs, docs: make(map[uint64]*Controller)}
}

func (r *Registry) Config() config.Config { return r.cfg }

// Open creates an empty document.
func (r *Registry) Open() *Controller {
	c := newController(r, r.nextID.Add(1))
	r.mu.Lock()
	r.docs[c.id] = c
	r.mu.Unlock()
	logging.Log(logging.DEBUG, "document", "opened", "doc", c.id)
	return c
}

// OpenFile creates a document and loads path into it.
func (r *Registry) OpenFile(path string) (*Controller, error) {
	c := r.Open()
	if err := c.Load(path); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Lookup returns the open document with id.
func (r *Registry) Lookup(id uint64) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.docs[id]
	return c, ok
}

// Post delivers ev to document id. It reports false once the document has
// been closed.
func (r *Registry) Post(id uint64, ev event.Event) bool {
	c, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return c.queue.Post(ev)
}

// Len returns the number of open documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.docs, id)
	r.mu.Unlock()
}
