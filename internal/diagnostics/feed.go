package diagnostics

import (
	"sync"

	"github.com/google/uuid"
)

const feedHistory = 64

// Feed fans diagnostics out to subscribers and keeps the most recent ones for
// late subscribers.
type Feed struct {
	mu     sync.Mutex
	recent []Diagnostic
	subs   map[int]func(Diagnostic)
	next   int
}

func NewFeed() *Feed { return &Feed{subs: map[int]func(Diagnostic){}} }

// Publish stamps d with an ID if it has none and delivers it to every
// subscriber. Subscribers run on the caller's goroutine and must not block.
func (f *Feed) Publish(d Diagnostic) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	f.mu.Lock()
	f.recent = append(f.recent, d)
	if len(f.recent) > feedHistory {
		f.recent = f.recent[len(f.recent)-feedHistory:]
	}
	subs := make([]func(Diagnostic), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(d)
	}
}

// Subscribe registers fn and returns a func that removes it.
func (f *Feed) Subscribe(fn func(Diagnostic)) (cancel func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Recent returns up to the last 64 diagnostics, oldest first.
func (f *Feed) Recent() []Diagnostic {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Diagnostic(nil), f.recent...)
}
