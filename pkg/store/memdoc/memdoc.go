// Package memdoc is an in-memory [store.DocumentStore].
//
// It behaves like the real-time store as far as the sync engine can observe:
// writes emit change events to every subscription of the collection, in write
// order, and [Store.Redeliver] replays an event to model at-least-once delivery.
// Write, subscribe and unsubscribe failures can be injected for tests.
package memdoc

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"sort"
	"sync"

	"github.com/surrealdb/surrealsync/pkg/store"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memdoc: store closed")

// Store is an in-memory document store. The zero value is not usable; use [New].
type Store struct {
	mu           sync.Mutex
	docs         map[string]map[string]map[string]any
	subs         map[string][]*subscription
	writeErr     error
	subscribeErr map[string]error
	closeErr     map[string]error
	closed       bool
}

var _ store.DocumentStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		docs:         make(map[string]map[string]map[string]any),
		subs:         make(map[string][]*subscription),
		subscribeErr: make(map[string]error),
		closeErr:     make(map[string]error),
	}
}

// FailWrites makes every subsequent write return err until called with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// FailSubscribe makes subscribing to collection return err.
func (s *Store) FailSubscribe(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeErr[collection] = err
}

// FailClose makes closing subscriptions of collection return err.
func (s *Store) FailClose(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeErr[collection] = err
}

// Get returns a copy of the document, or nil when it does not exist.
func (s *Store) Get(_ context.Context, ref store.DocumentRef) (*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	fields, ok := s.docs[ref.Collection][ref.ID]
	if !ok {
		return nil, nil
	}
	return &store.Document{DocumentRef: ref, Fields: maps.Clone(fields)}, nil
}

// Set creates or replaces the document and notifies subscribers.
func (s *Store) Set(_ context.Context, ref store.DocumentRef, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.set(ref, fields)
	return nil
}

// Delete removes the document and notifies subscribers.
func (s *Store) Delete(_ context.Context, ref store.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.delete(ref)
	return nil
}

// DeleteBatch removes all refs under one lock, so no reader observes a partial batch.
func (s *Store) DeleteBatch(_ context.Context, refs []store.DocumentRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	for _, ref := range refs {
		s.delete(ref)
	}
	return nil
}

// ListByField returns documents of collection whose field equals value, ordered by id.
func (s *Store) ListByField(_ context.Context, collection, field string, value any) ([]*store.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []*store.Document
	for id, fields := range s.docs[collection] {
		if v, ok := fields[field]; ok && reflect.DeepEqual(v, value) {
			out = append(out, &store.Document{
				DocumentRef: store.DocumentRef{Collection: collection, ID: id},
				Fields:      maps.Clone(fields),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Subscribe starts delivering changes of collection.
func (s *Store) Subscribe(_ context.Context, collection string) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if err := s.subscribeErr[collection]; err != nil {
		return nil, err
	}
	sub := newSubscription(s, collection)
	s.subs[collection] = append(s.subs[collection], sub)
	return sub, nil
}

// Redeliver sends event to the subscribers of its collection again without
// touching stored data.
func (s *Store) Redeliver(event store.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(event)
}

// Subscribers returns the number of open subscriptions on collection.
func (s *Store) Subscribers(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[collection])
}

// Len returns the number of documents in collection.
func (s *Store) Len(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs[collection])
}

// Close closes all subscriptions.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	var subs []*subscription
	for _, list := range s.subs {
		subs = append(subs, list...)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (s *Store) writable() error {
	if s.closed {
		return ErrClosed
	}
	return s.writeErr
}

func (s *Store) set(ref store.DocumentRef, fields map[string]any) {
	coll, ok := s.docs[ref.Collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.docs[ref.Collection] = coll
	}
	_, existed := coll[ref.ID]
	coll[ref.ID] = maps.Clone(fields)

	doc := store.Document{DocumentRef: ref, Fields: maps.Clone(fields)}
	if existed {
		s.publish(store.Updated{Document: doc})
	} else {
		s.publish(store.Created{Document: doc})
	}
}

func (s *Store) delete(ref store.DocumentRef) {
	fields, ok := s.docs[ref.Collection][ref.ID]
	if !ok {
		return
	}
	delete(s.docs[ref.Collection], ref.ID)
	s.publish(store.Deleted{Document: store.Document{DocumentRef: ref, Fields: fields}})
}

func (s *Store) publish(event store.ChangeEvent) {
	for _, sub := range s.subs[event.Ref().Collection] {
		sub.push(event)
	}
}

func (s *Store) unsubscribe(sub *subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[sub.collection]
	for i, candidate := range list {
		if candidate == sub {
			s.subs[sub.collection] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return s.closeErr[sub.collection]
}
