package dashboard

import (
	"maps"
	"sync"
)

// Fragment is the rendered content of one page region
type Fragment struct {
	Target string `json:"target"`
	HTML   string `json:"html"`
	Seq    uint64 `json:"seq"`
}

// View holds the current fragment of every target and fans replacements out to subscribers
type View struct {
	seq *Sequencer

	mu          sync.RWMutex
	fragments   map[string]Fragment
	subscribers map[int]chan Fragment
	nextID      int
}

// NewView creates an empty view. Pass nil to use a fresh Sequencer.
func NewView(seq *Sequencer) *View {
	if seq == nil {
		seq = NewSequencer()
	}
	return &View{
		seq:         seq,
		fragments:   make(map[string]Fragment),
		subscribers: make(map[int]chan Fragment),
	}
}

// Begin tags a fetch for target
func (v *View) Begin(target string) uint64 {
	return v.seq.Next(target)
}

// Commit replaces the fragment of target when seq is newer than the last committed one.
// It returns false when the content is stale and was discarded.
func (v *View) Commit(target string, seq uint64, html string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.seq.Commit(target, seq) {
		return false
	}

	fragment := Fragment{Target: target, HTML: html, Seq: seq}
	v.fragments[target] = fragment

	for _, ch := range v.subscribers {
		select {
		case ch <- fragment:
		default:
			// slow subscriber, it resyncs from Snapshot on reconnect
		}
	}
	return true
}

// Set begins and commits in one step, for content that does not depend on a fetch
func (v *View) Set(target, html string) uint64 {
	seq := v.Begin(target)
	v.Commit(target, seq, html)
	return seq
}

// Get returns the current fragment of target
func (v *View) Get(target string) (Fragment, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	fragment, ok := v.fragments[target]
	return fragment, ok
}

// Snapshot returns the HTML of every target
func (v *View) Snapshot() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]string, len(v.fragments))
	for target, fragment := range v.fragments {
		out[target] = fragment.HTML
	}
	return out
}

// Fragments returns a copy of every current fragment
func (v *View) Fragments() map[string]Fragment {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return maps.Clone(v.fragments)
}

// Subscribe registers a listener for fragment replacements. The returned function
// unregisters it and closes the channel.
func (v *View) Subscribe(buffer int) (<-chan Fragment, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Fragment, buffer)

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subscribers[id] = ch
	v.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subscribers, id)
			v.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of registered listeners
func (v *View) Subscribers() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return len(v.subscribers)
}
