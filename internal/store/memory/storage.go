package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/store"
)

// Storage is an in-memory implementation of store.RecordStore. It delivers
// change notifications synchronously, after the write is committed.
type Storage struct {
	mu     sync.RWMutex
	clock  clock.Clock
	tables map[string]*table
	unique map[string]bool

	subMu  sync.Mutex
	nextID int
	subs   map[string]map[int]func(store.Change)
}

type table struct {
	rows  map[string]store.Record
	order []string
}

type Option func(*Storage)

// WithClock sets the clock used for registered_at.
func WithClock(c clock.Clock) Option {
	return func(s *Storage) { s.clock = c }
}

// WithUniqueColumn rejects inserts that repeat a value in col (case-insensitive).
func WithUniqueColumn(col string) Option {
	return func(s *Storage) { s.unique[col] = true }
}

func New(opts ...Option) *Storage {
	s := &Storage{
		clock:  clock.New(),
		tables: make(map[string]*table),
		unique: make(map[string]bool),
		subs:   make(map[string]map[int]func(store.Change)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.RecordStore = (*Storage)(nil)

func (s *Storage) tableLocked(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string]store.Record)}
		s.tables[name] = t
	}
	return t
}

func (s *Storage) Query(ctx context.Context, name, orderBy string, dir store.Direction) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[name]
	if !ok {
		return []store.Record{}, nil
	}
	out := make([]store.Record, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rows[id].Clone())
	}
	if orderBy != "" {
		store.SortRecords(out, orderBy, dir)
	}
	return out, nil
}

func (s *Storage) Insert(ctx context.Context, name string, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	t := s.tableLocked(name)
	for col := range s.unique {
		v := strings.TrimSpace(fmt.Sprint(rec[col]))
		if rec[col] == nil || v == "" {
			continue
		}
		for _, existing := range t.rows {
			if strings.EqualFold(strings.TrimSpace(fmt.Sprint(existing[col])), v) {
				s.mu.Unlock()
				return fmt.Errorf("duplicate %s", col)
			}
		}
	}
	row := rec.Clone()
	id := uuid.NewString()
	row[store.ColID] = id
	row[store.ColRegisteredAt] = s.clock.Now().UTC()
	t.rows[id] = row
	t.order = append(t.order, id)
	s.mu.Unlock()

	s.notify(name)
	return nil
}

func (s *Storage) Update(ctx context.Context, name, id string, patch store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tables[name]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	row, ok := t.rows[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	updated := row.Clone()
	for k, v := range patch {
		if k == store.ColID || k == store.ColRegisteredAt {
			continue
		}
		updated[k] = v
	}
	t.rows[id] = updated
	s.mu.Unlock()

	s.notify(name)
	return nil
}

func (s *Storage) Delete(ctx context.Context, name, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tables[name]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	if _, ok := t.rows[id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify(name)
	return nil
}

func (s *Storage) SubscribeToChanges(name string, handler func(store.Change)) (store.Subscription, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs[name] == nil {
		s.subs[name] = make(map[int]func(store.Change))
	}
	id := s.nextID
	s.nextID++
	s.subs[name][id] = handler

	var once sync.Once
	return store.SubscriptionFunc(func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs[name], id)
			s.subMu.Unlock()
		})
	}), nil
}

// SubscriberCount reports live subscriptions on a table.
func (s *Storage) SubscriberCount(name string) int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs[name])
}

func (s *Storage) notify(name string) {
	s.subMu.Lock()
	handlers := make([]func(store.Change), 0, len(s.subs[name]))
	for _, h := range s.subs[name] {
		handlers = append(handlers, h)
	}
	s.subMu.Unlock()

	for _, h := range handlers {
		h(store.Change{Table: name})
	}
}
