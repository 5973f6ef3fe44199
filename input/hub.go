package input

import (
	"context"
	"io"
	"sync"
)

// Hub runs one session and hands every sample to each subscriber through its
// own buffer, so subscribers consume at their own pace up to the buffer depth.
// A full buffer blocks the session.
type Hub struct {
	depth int

	mu   sync.Mutex
	subs []chan Sample
}

// NewHub returns a hub whose subscriptions buffer depth samples each.
func NewHub(depth int) *Hub {
	if depth < 1 {
		depth = 1
	}
	return &Hub{depth: depth}
}

// Subscribe adds a subscriber. It must be called before Run.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Sample, h.depth)

	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()

	return &Subscription{ch: ch}
}

// Run starts sess and fans its samples out until it ends. Every subscription
// is closed on return.
func (h *Hub) Run(ctx context.Context, sess Session) error {
	h.mu.Lock()
	subs := append([]chan Sample(nil), h.subs...)
	h.mu.Unlock()

	defer func() {
		for _, ch := range subs {
			close(ch)
		}
	}()

	return sess.Start(ctx, func(s Sample) error {
		for _, ch := range subs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- s:
			}
		}
		return nil
	})
}

// Subscription is one subscriber's view of a hub.
type Subscription struct {
	ch chan Sample
}

// Next returns the next sample, or io.EOF once the hub has stopped and the
// buffer is drained.
func (s *Subscription) Next(ctx context.Context) (Sample, error) {
	select {
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	case smpl, ok := <-s.ch:
		if !ok {
			return Sample{}, io.EOF
		}
		return smpl, nil
	}
}
