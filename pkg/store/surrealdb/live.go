package surrealdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
)

// Subscribe starts a LIVE query on collection.
func (s *Store) Subscribe(ctx context.Context, collection string) (store.Subscription, error) {
	live, err := surrealdb.Live(ctx, s.db, models.Table(collection), false)
	if err != nil {
		return nil, fmt.Errorf("failed to start live query on %s: %w", collection, err)
	}

	notifications, err := s.db.LiveNotifications(live.String())
	if err != nil {
		_ = surrealdb.Kill(ctx, s.db, live.String())
		return nil, fmt.Errorf("failed to get live notifications for %s: %w", collection, err)
	}

	sub := &liveSubscription{
		store:      s,
		collection: collection,
		liveID:     live.String(),
		events:     make(chan store.ChangeEvent),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go sub.run(notifications)

	s.logger.Info().Str("collection", collection).Str("live_id", sub.liveID).Msg("Live query started")
	return sub, nil
}

type liveSubscription struct {
	store      *Store
	collection string
	liveID     string
	events     chan store.ChangeEvent
	quit       chan struct{}
	done       chan struct{}
	once       sync.Once
}

func (l *liveSubscription) Collection() string {
	return l.collection
}

func (l *liveSubscription) Events() <-chan store.ChangeEvent {
	return l.events
}

// Close kills the live query and waits for the delivery goroutine to exit.
func (l *liveSubscription) Close(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.quit)
		if killErr := surrealdb.Kill(ctx, l.store.db, l.liveID); killErr != nil {
			err = fmt.Errorf("failed to kill live query %s: %w", l.liveID, killErr)
		}
	})

	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (l *liveSubscription) run(notifications chan connection.Notification) {
	defer close(l.done)
	defer close(l.events)

	for {
		select {
		case <-l.quit:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			event, err := toChangeEvent(l.collection, n)
			if err != nil {
				l.store.logger.Warn().Err(err).Str("collection", l.collection).Msg("Dropping live notification")
				continue
			}
			if event == nil {
				continue
			}
			select {
			case l.events <- event:
			case <-l.quit:
				return
			}
		}
	}
}

func toChangeEvent(collection string, n connection.Notification) (store.ChangeEvent, error) {
	record, ok := n.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected notification result %T", n.Result)
	}
	doc, err := toDocument(collection, record)
	if err != nil {
		return nil, err
	}

	switch n.Action {
	case connection.CreateAction:
		return store.Created{Document: *doc}, nil
	case connection.UpdateAction:
		return store.Updated{Document: *doc}, nil
	case connection.DeleteAction:
		return store.Deleted{Document: *doc}, nil
	default:
		return nil, nil
	}
}
