package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/surrealdb/surrealsync/pkg/models"
	"github.com/surrealdb/surrealsync/pkg/store"
	"golang.org/x/time/rate"
)

// Defaults applied by New.
const (
	DefaultEventTimeout = 30 * time.Second
	DefaultMaxRetries   = 5
	DefaultRetryBatch   = 50
	DefaultRetryRate    = 10
	DefaultOutboxBatch  = 100

	// failureTimeout bounds persisting a sync error after the event context ended.
	failureTimeout = 5 * time.Second
)

// Options configures an Engine. The zero value is usable.
type Options struct {
	// Now is the clock. Defaults to time.Now in UTC.
	Now func() time.Time

	// Guard is the loop guard. When nil a guard with GuardTTL is created.
	Guard    *Guard
	GuardTTL time.Duration

	// EventTimeout bounds the processing of one change event.
	EventTimeout time.Duration

	// MaxRetries is stored on new sync errors.
	MaxRetries int

	// RetryBatch is the number of sync errors one retry pass picks up.
	RetryBatch int

	// RetryRate is the number of replays per second during a retry pass.
	RetryRate float64

	// Backoff schedules the next attempt of a failed retry.
	Backoff Backoff

	// OutboxBatch is the number of outbox tasks one drain picks up.
	OutboxBatch int

	ConflictPolicy ConflictPolicy
	// TieBreak wins last-write-wins conflicts with equal timestamps.
	TieBreak Side

	// Handlers overrides the entity handlers. Defaults to DefaultHandlers.
	Handlers []EntitySyncHandler

	Logger zerolog.Logger

	// Registerer receives the engine metrics. Defaults to a private registry.
	Registerer prometheus.Registerer
}

// Engine keeps a relational store and a document store in sync.
//
// Changes made on the document store are observed by one listener per
// collection and applied relationally. Changes made relationally go through
// [Engine.WithForwardSync] (or a [Writer]) and are mirrored after commit.
// Failures in either direction are persisted as sync errors and replayed by
// [Engine.RetryFailedSyncs].
type Engine struct {
	rel  store.RelationalStore
	docs store.DocumentStore

	guard     *Guard
	mappings  *MappingResolver
	audit     *AuditRecorder
	state     *StateTracker
	conflicts *ConflictResolver
	backoff   Backoff
	limiter   *rate.Limiter
	metrics   *metrics

	handlers     []EntitySyncHandler
	byCollection map[string]EntitySyncHandler
	byType       map[string]EntitySyncHandler

	opts   Options
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	listeners []*listener
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	tasksMu  sync.Mutex
	inflight map[uint64]struct{}
}

// New returns an engine over the two stores.
func New(rel store.RelationalStore, docs store.DocumentStore, opts Options) (*Engine, error) {
	if rel == nil || docs == nil {
		return nil, errors.New("syncengine: both stores are required")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Guard == nil {
		opts.Guard = NewGuard(opts.GuardTTL, opts.Now)
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = DefaultEventTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryBatch <= 0 {
		opts.RetryBatch = DefaultRetryBatch
	}
	if opts.RetryRate <= 0 {
		opts.RetryRate = DefaultRetryRate
	}
	if opts.OutboxBatch <= 0 {
		opts.OutboxBatch = DefaultOutboxBatch
	}
	if opts.Backoff == nil {
		opts.Backoff = NewExponentialBackoff()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	conflicts, err := NewConflictResolver(opts.ConflictPolicy, opts.TieBreak)
	if err != nil {
		return nil, err
	}

	mappings := &MappingResolver{now: opts.Now}
	if opts.Handlers == nil {
		opts.Handlers = DefaultHandlers(mappings, opts.Now)
	}

	e := &Engine{
		rel:          rel,
		docs:         docs,
		guard:        opts.Guard,
		mappings:     mappings,
		audit:        &AuditRecorder{now: opts.Now},
		state:        &StateTracker{now: opts.Now},
		conflicts:    conflicts,
		backoff:      opts.Backoff,
		limiter:      rate.NewLimiter(rate.Limit(opts.RetryRate), 1),
		handlers:     opts.Handlers,
		byCollection: make(map[string]EntitySyncHandler, len(opts.Handlers)),
		byType:       make(map[string]EntitySyncHandler, len(opts.Handlers)),
		opts:         opts,
		now:          opts.Now,
		logger:       opts.Logger.With().Str("component", "syncengine").Logger(),
		inflight:     make(map[uint64]struct{}),
	}
	for _, h := range opts.Handlers {
		if _, dup := e.byCollection[h.Collection()]; dup {
			return nil, fmt.Errorf("syncengine: duplicate handler for collection %s", h.Collection())
		}
		e.byCollection[h.Collection()] = h
		e.byType[h.EntityType()] = h
	}
	e.metrics = newMetrics(opts.Registerer, e.guard)
	return e, nil
}

// Guard returns the loop guard.
func (e *Engine) Guard() *Guard {
	return e.guard
}

// Mappings returns the identifier mapping resolver.
func (e *Engine) Mappings() *MappingResolver {
	return e.mappings
}

// Initialize subscribes to every watched collection and starts one listener
// per subscription. Collections that cannot be subscribed are logged and
// skipped. It returns the number of active listeners.
func (e *Engine) Initialize(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		return len(e.listeners), errors.New("syncengine: already initialized")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	for _, h := range e.handlers {
		sub, err := e.docs.Subscribe(ctx, h.Collection())
		if err != nil {
			e.logger.Error().Err(err).Str("collection", h.Collection()).Msg("Failed to subscribe to collection")
			continue
		}
		l := &listener{engine: e, handler: h, sub: sub}
		e.listeners = append(e.listeners, l)
		e.wg.Add(1)
		go l.run(runCtx)
	}
	e.cancel = cancel
	e.metrics.subscriptions.Set(float64(len(e.listeners)))

	if len(e.listeners) == 0 && len(e.handlers) > 0 {
		return 0, errors.New("syncengine: no collection could be subscribed")
	}
	e.logger.Info().Int("listeners", len(e.listeners)).Msg("Sync engine initialized")
	return len(e.listeners), nil
}

// Shutdown closes every subscription and waits for the listeners to finish
// their current event, or for ctx to expire. Close failures are logged.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	listeners := e.listeners
	cancel := e.cancel
	e.listeners = nil
	e.cancel = nil
	e.mu.Unlock()

	for _, l := range listeners {
		if err := l.sub.Close(ctx); err != nil {
			e.logger.Warn().Err(err).Str("collection", l.handler.Collection()).Msg("Failed to close subscription")
		}
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn().Err(ctx.Err()).Msg("Listeners did not stop before shutdown deadline")
	}
	if cancel != nil {
		cancel()
	}
	e.metrics.subscriptions.Set(0)
	e.logger.Info().Int("listeners", len(listeners)).Msg("Sync engine stopped")
}

// Listeners returns the number of active listeners.
func (e *Engine) Listeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *Engine) handlerForType(entityType string) (EntitySyncHandler, error) {
	h, ok := e.byType[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	return h, nil
}

// entityID returns the relational key of a document.
func (e *Engine) entityID(ctx context.Context, tx store.Tx, h EntitySyncHandler, docID string) (string, error) {
	if h.EntityType() != (models.Group{}).TableName() {
		return docID, nil
	}
	id, ok, err := e.mappings.Lookup(ctx, tx, docID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: group %s", ErrMappingNotFound, docID)
	}
	return groupEntityID(id), nil
}
