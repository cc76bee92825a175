package auth

import "sync"

// Stream broadcasts Results to any number of subscribers. Each subscriber
// holds at most one unread Result: a new emission replaces an unread one, so
// Emit never blocks. Emissions with no subscribers are dropped.
type Stream struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewStream creates an empty Stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[*Subscription]struct{})}
}

// Subscription receives Results from a Stream until closed.
type Subscription struct {
	stream *Stream
	ch     chan Result
	once   sync.Once
}

// Subscribe registers a new subscriber. Results emitted before the call are
// not replayed.
func (s *Stream) Subscribe() *Subscription {
	sub := &Subscription{stream: s, ch: make(chan Result, 1)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	return sub
}

// Emit delivers r to every subscriber, overwriting unread values.
func (s *Stream) Emit(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		select {
		case sub.ch <- r:
			continue
		default:
		}
		// Slot full: drop the stale value. Sends only happen under s.mu, so
		// the slot stays free for the retry.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- r:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// C returns the receive side. It is closed by Close.
func (sub *Subscription) C() <-chan Result {
	return sub.ch
}

// Close detaches the subscription and closes C. Safe to call more than once.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.stream.mu.Lock()
		defer sub.stream.mu.Unlock()
		delete(sub.stream.subs, sub)
		close(sub.ch)
	})
}
