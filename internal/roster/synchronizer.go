// Package roster keeps a local, eventually consistent mirror of the
// registrants table.
//
// The Synchronizer never edits its snapshot in place. Every change
// notification from the store triggers a full reload, and write intents are
// forwarded to the store without touching local state; the store's own
// notification brings the result back.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scrabble-bot/internal/metrics"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/store"
)

const defaultRefreshTimeout = 15 * time.Second

type Synchronizer struct {
	store          store.RecordStore
	table          string
	logger         *slog.Logger
	metrics        *metrics.Metrics
	refreshTimeout time.Duration

	// issued numbers loads in the order they start.
	issued atomic.Uint64

	mu       sync.RWMutex
	snapshot models.Roster
	applied  uint64

	watchMu   sync.Mutex
	watchers  map[int]func(models.Roster)
	nextWatch int

	deliverMu sync.Mutex
	delivered uint64

	subMu sync.Mutex
	sub   *subscription

	flightMu   sync.Mutex
	flightCond *sync.Cond
	flights    int
	closing    bool
}

type Option func(*Synchronizer)

func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithTable overrides the registrants table name.
func WithTable(table string) Option {
	return func(s *Synchronizer) { s.table = table }
}

// WithRefreshTimeout bounds each notification-triggered reload.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.refreshTimeout = d }
}

func New(st store.RecordStore, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:          st,
		table:          store.TableRegistrants,
		logger:         slog.Default(),
		refreshTimeout: defaultRefreshTimeout,
		snapshot:       models.NewRoster(nil, 0),
		watchers:       map[int]func(models.Roster){},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop()
	}
	s.logger = s.logger.With(slog.String("component", "roster"), slog.String("table", s.table))
	s.flightCond = sync.NewCond(&s.flightMu)
	return s
}

// Snapshot returns the current roster. The value never changes; call again
// after a replacement to see newer data.
func (s *Synchronizer) Snapshot() models.Roster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Load fetches the whole table and replaces the snapshot in one step. On
// failure the previous snapshot stays in place and a *FetchError is returned.
//
// Loads may overlap. Each takes a sequence number when it starts; a load
// that completes after a later-started one has been applied is dropped, so
// the settled snapshot always comes from the most recent query.
func (s *Synchronizer) Load(ctx context.Context) error {
	gen := s.issued.Add(1)

	recs, err := s.store.Query(ctx, s.table, store.ColRegisteredAt, store.Descending)
	s.metrics.ObserveLoad(err)
	if err != nil {
		s.logger.Warn("roster load failed, keeping previous snapshot",
			slog.Uint64("load", gen),
			slog.String("error", err.Error()))
		return &FetchError{Err: err}
	}

	items := make([]models.Registrant, 0, len(recs))
	for _, rec := range recs {
		r, err := models.FromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping malformed registrant row", slog.String("error", err.Error()))
			continue
		}
		items = append(items, r)
	}

	s.mu.Lock()
	if gen <= s.applied {
		applied := s.applied
		s.mu.Unlock()
		s.metrics.StaleLoadsDropped.Inc()
		s.logger.Debug("dropping stale roster load",
			slog.Uint64("load", gen),
			slog.Uint64("applied", applied))
		return nil
	}
	next := models.NewRoster(items, gen)
	s.snapshot = next
	s.applied = gen
	s.mu.Unlock()

	s.metrics.RosterSize.Set(float64(next.Len()))
	s.logger.Debug("roster replaced", slog.Uint64("load", gen), slog.Int("registrants", next.Len()))
	s.deliver(next)
	return nil
}

// Watch calls fn with every new snapshot until the returned cancel func is
// called. fn must not call Load.
func (s *Synchronizer) Watch(fn func(models.Roster)) (cancel func()) {
	s.watchMu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
		})
	}
}

// deliver hands r to the watchers unless a newer snapshot already went out.
func (s *Synchronizer) deliver(r models.Roster) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if r.Version() <= s.delivered {
		return
	}
	s.delivered = r.Version()

	s.watchMu.Lock()
	fns := make([]func(models.Roster), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
}

// Subscribe opens the store's change feed; every notification, whatever it
// is about, triggers a full Load on its own goroutine. The returned release
// func unsubscribes and waits for in-flight reloads. It is safe to call
// more than once.
func (s *Synchronizer) Subscribe(ctx context.Context) (release func(), err error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.sub != nil {
		return nil, ErrAlreadySubscribed
	}

	s.flightMu.Lock()
	s.closing = false
	s.flightMu.Unlock()

	// Reloads outlive the caller's request but keep its values.
	base := context.WithoutCancel(ctx)
	sub, err := s.store.SubscribeToChanges(s.table, func(store.Change) {
		s.metrics.Notifications.Inc()
		if !s.beginFlight() {
			return
		}
		go func() {
			defer s.endFlight()
			rctx, cancel := context.WithTimeout(base, s.refreshTimeout)
			defer cancel()
			// Failures are already logged by Load and leave the snapshot as it was.
			_ = s.Load(rctx)
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", s.table, err)
	}
	own := &subscription{Subscription: sub}
	s.sub = own
	s.logger.Info("subscribed to roster changes")

	var once sync.Once
	return func() { once.Do(func() { s.release(own) }) }, nil
}

// subscription gives each open feed a comparable identity; stores may hand
// back func-typed subscriptions.
type subscription struct {
	store.Subscription
}

func (s *Synchronizer) release(sub *subscription) {
	s.subMu.Lock()
	if s.sub != sub {
		s.subMu.Unlock()
		return
	}
	s.sub = nil

	s.flightMu.Lock()
	s.closing = true
	s.flightMu.Unlock()

	sub.Unsubscribe()
	s.Wait()
	s.subMu.Unlock()
	s.logger.Info("roster subscription released")
}

// Start subscribes first and then loads, so no change between the two is
// missed. A failed initial load is returned but leaves the subscription open.
func (s *Synchronizer) Start(ctx context.Context) (release func(), err error) {
	release, err = s.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return release, s.Load(ctx)
}

// Close releases the current subscription, if any.
func (s *Synchronizer) Close() {
	s.subMu.Lock()
	sub := s.sub
	s.subMu.Unlock()
	if sub != nil {
		s.release(sub)
	}
}

// Subscribed reports whether a change feed is currently open.
func (s *Synchronizer) Subscribed() bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.sub != nil
}

// Wait blocks until every notification-triggered reload has settled.
func (s *Synchronizer) Wait() {
	s.flightMu.Lock()
	for s.flights > 0 {
		s.flightCond.Wait()
	}
	s.flightMu.Unlock()
}

func (s *Synchronizer) beginFlight() bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.closing {
		return false
	}
	s.flights++
	return true
}

func (s *Synchronizer) endFlight() {
	s.flightMu.Lock()
	s.flights--
	if s.flights == 0 {
		s.flightCond.Broadcast()
	}
	s.flightMu.Unlock()
}

// SubmitInsert forwards a new registration. Status is forced to pending.
// The snapshot is not touched; the store's notification updates it.
func (s *Synchronizer) SubmitInsert(ctx context.Context, d models.Draft) error {
	err := s.store.Insert(ctx, s.table, models.InsertRecord(d))
	s.metrics.ObserveWrite(OpInsert, err)
	if err != nil {
		s.logger.Warn("insert rejected", slog.String("error", err.Error()))
	}
	return writeError(OpInsert, "", err)
}

// SubmitStatusChange forwards a status update for one registrant.
func (s *Synchronizer) SubmitStatusChange(ctx context.Context, id string, status models.Status) error {
	if !status.Valid() {
		return &WriteError{Op: OpUpdate, ID: id, Reason: fmt.Sprintf("unknown status %q", status)}
	}
	err := s.store.Update(ctx, s.table, id, store.Record{store.ColStatus: string(status)})
	s.metrics.ObserveWrite(OpUpdate, err)
	if err != nil {
		s.logger.Warn("status change rejected", slog.String("id", id), slog.String("error", err.Error()))
	}
	return writeError(OpUpdate, id, err)
}

// SubmitDelete forwards the removal of one registrant.
func (s *Synchronizer) SubmitDelete(ctx context.Context, id string) error {
	err := s.store.Delete(ctx, s.table, id)
	s.metrics.ObserveWrite(OpDelete, err)
	if err != nil {
		s.logger.Warn("delete rejected", slog.String("id", id), slog.String("error", err.Error()))
	}
	return writeError(OpDelete, id, err)
}
