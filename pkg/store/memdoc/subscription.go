package memdoc

import (
	"context"
	"sync"

	"github.com/surrealdb/surrealsync/pkg/store"
)

// subscription buffers events without bound so writers never block on a slow
// consumer, and pumps them to the channel in order.
type subscription struct {
	owner      *Store
	collection string
	events     chan store.ChangeEvent

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []store.ChangeEvent
	stopped bool
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newSubscription(owner *Store, collection string) *subscription {
	sub := &subscription{
		owner:      owner,
		collection: collection,
		events:     make(chan store.ChangeEvent),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)
	go sub.pump()
	return sub
}

func (s *subscription) Collection() string {
	return s.collection
}

func (s *subscription) Events() <-chan store.ChangeEvent {
	return s.events
}

// Close stops delivery. Events not yet received are dropped.
func (s *subscription) Close(ctx context.Context) error {
	err := s.owner.unsubscribe(s)
	s.stop()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *subscription) push(event store.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.queue = append(s.queue, event)
	s.cond.Signal()
}

func (s *subscription) stop() {
	s.once.Do(func() {
		close(s.quit)
		s.mu.Lock()
		s.stopped = true
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}

func (s *subscription) pump() {
	defer close(s.done)
	defer close(s.events)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped {
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- event:
		case <-s.quit:
			return
		}
	}
}
