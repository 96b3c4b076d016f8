package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/metrics"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/store"
	"scrabble-bot/internal/store/memory"
)

// gatedStore wraps the memory store so tests can fail queries or hold them
// in flight after they have read the data.
type gatedStore struct {
	*memory.Storage

	mu       sync.Mutex
	queryErr error
	hold     bool
	gates    []chan struct{}
	started  chan struct{}
	raw      []store.Record
}

func newGatedStore(c clock.Clock) *gatedStore {
	return &gatedStore{
		Storage: memory.New(memory.WithClock(c), memory.WithUniqueColumn(store.ColEmail)),
		started: make(chan struct{}, 64),
	}
}

func (g *gatedStore) Query(ctx context.Context, table, orderBy string, dir store.Direction) ([]store.Record, error) {
	g.mu.Lock()
	qerr, hold, extra := g.queryErr, g.hold, g.raw
	var gate chan struct{}
	if hold {
		gate = make(chan struct{})
		g.gates = append(g.gates, gate)
	}
	g.mu.Unlock()

	if qerr != nil {
		return nil, qerr
	}
	recs, err := g.Storage.Query(ctx, table, orderBy, dir)
	recs = append(recs, extra...)
	if gate != nil {
		g.started <- struct{}{}
		<-gate
	}
	return recs, err
}

func (g *gatedStore) setHold(v bool) {
	g.mu.Lock()
	g.hold = v
	g.mu.Unlock()
}

func (g *gatedStore) setQueryErr(err error) {
	g.mu.Lock()
	g.queryErr = err
	g.mu.Unlock()
}

func (g *gatedStore) openGate(i int) {
	g.mu.Lock()
	gate := g.gates[i]
	g.mu.Unlock()
	close(gate)
}

type SynchronizerSuite struct {
	suite.Suite
	clock *clock.Fake
	store *gatedStore
	sync  *Synchronizer
	ctx   context.Context
}

func TestSynchronizerSuite(t *testing.T) {
	suite.Run(t, new(SynchronizerSuite))
}

func (s *SynchronizerSuite) SetupTest() {
	s.clock = clock.NewFake(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	s.store = newGatedStore(s.clock)
	s.sync = New(s.store, WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	s.ctx = context.Background()
}

func (s *SynchronizerSuite) TearDownTest() {
	s.store.setHold(false)
	s.sync.Close()
}

func (s *SynchronizerSuite) register(name, email string) {
	s.Require().NoError(s.sync.SubmitInsert(s.ctx, models.Draft{Name: name, Email: email, Category: models.CategoryOpen}))
	s.clock.Advance(time.Minute)
}

func (s *SynchronizerSuite) storeRecords() []store.Record {
	recs, err := s.store.Storage.Query(s.ctx, store.TableRegistrants, store.ColRegisteredAt, store.Descending)
	s.Require().NoError(err)
	return recs
}

// assertMirrorsStore checks that the snapshot is set-equal to the store and newest first.
func (s *SynchronizerSuite) assertMirrorsStore() {
	recs := s.storeRecords()
	snap := s.sync.Snapshot()
	s.Require().Equal(len(recs), snap.Len())
	for i, rec := range recs {
		want, err := models.FromRecord(rec)
		s.Require().NoError(err)
		s.Equal(want, snap.At(i))
	}
}

func (s *SynchronizerSuite) TestLoadReplacesSnapshot() {
	s.register("Ada", "ada@example.com")
	s.register("Grace", "grace@example.com")
	s.Equal(0, s.sync.Snapshot().Len(), "writes never touch the snapshot directly")

	s.Require().NoError(s.sync.Load(s.ctx))

	snap := s.sync.Snapshot()
	s.Require().Equal(2, snap.Len())
	s.Equal("Grace", snap.At(0).Name)
	s.Equal("Ada", snap.At(1).Name)
}

func (s *SynchronizerSuite) TestLoadFailureKeepsPreviousSnapshot() {
	s.register("Ada", "ada@example.com")
	s.Require().NoError(s.sync.Load(s.ctx))
	before := s.sync.Snapshot()

	boom := errors.New("connection reset")
	s.store.setQueryErr(boom)
	err := s.sync.Load(s.ctx)

	var fe *FetchError
	s.Require().ErrorAs(err, &fe)
	s.ErrorIs(err, boom)
	s.Equal(before, s.sync.Snapshot())
	s.Equal(1, s.sync.Snapshot().Len())
}

func (s *SynchronizerSuite) TestMalformedRowsAreSkipped() {
	s.register("Ada", "ada@example.com")
	s.store.raw = []store.Record{{store.ColID: "junk", store.ColStatus: "whatever"}}

	s.Require().NoError(s.sync.Load(s.ctx))
	s.Equal(1, s.sync.Snapshot().Len())
	s.Equal("Ada", s.sync.Snapshot().At(0).Name)
}

func (s *SynchronizerSuite) TestInsertConvergesThroughNotification() {
	release, err := s.sync.Start(s.ctx)
	s.Require().NoError(err)
	defer release()

	s.Require().NoError(s.sync.SubmitInsert(s.ctx, models.Draft{Name: "Ada Lovelace", Category: models.CategoryOpen}))
	s.sync.Wait()

	snap := s.sync.Snapshot()
	s.Require().Equal(1, snap.Len())
	s.Equal("Ada Lovelace", snap.At(0).Name)
	s.Equal(models.StatusPending, snap.At(0).Status)
	s.NotEmpty(snap.At(0).ID)
}

func (s *SynchronizerSuite) TestRejectedInsertSurfacesReasonVerbatim() {
	release, err := s.sync.Start(s.ctx)
	s.Require().NoError(err)
	defer release()

	s.register("Ada", "ada@example.com")
	s.sync.Wait()
	before := s.sync.Snapshot()

	err = s.sync.SubmitInsert(s.ctx, models.Draft{Name: "Ada Again", Email: "ada@example.com"})
	var we *WriteError
	s.Require().ErrorAs(err, &we)
	s.Equal(OpInsert, we.Op)
	s.Equal("duplicate email", we.Reason)

	s.sync.Wait()
	s.Equal(before, s.sync.Snapshot())
}

func (s *SynchronizerSuite) TestStatusChangeAffectsOnlyTarget() {
	release, err := s.sync.Start(s.ctx)
	s.Require().NoError(err)
	defer release()

	s.register("Ada", "ada@example.com")
	s.register("Grace", "grace@example.com")
	s.sync.Wait()
	before := s.sync.Snapshot()
	target, _ := before.Find(before.At(1).ID)

	s.Require().NoError(s.sync.SubmitStatusChange(s.ctx, target.ID, models.StatusConfirmed))
	s.sync.Wait()

	after := s.sync.Snapshot()
	got, ok := after.Find(target.ID)
	s.Require().True(ok)
	s.Equal(models.StatusConfirmed, got.Status)
	s.Equal(before.At(0), after.At(0))
	s.assertMirrorsStore()
}

func (s *SynchronizerSuite) TestWriteIntentErrors() {
	err := s.sync.SubmitStatusChange(s.ctx, "x", models.Status("paid"))
	var we *WriteError
	s.Require().ErrorAs(err, &we)
	s.Equal(OpUpdate, we.Op)

	err = s.sync.SubmitDelete(s.ctx, "missing")
	s.Require().ErrorAs(err, &we)
	s.Equal(OpDelete, we.Op)
	s.Equal("missing", we.ID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *SynchronizerSuite) TestOverlappingLoadsSettleOnLatest() {
	s.register("Ada", "ada@example.com")
	s.Require().NoError(s.sync.Load(s.ctx))

	var mu sync.Mutex
	var seen []int
	cancel := s.sync.Watch(func(r models.Roster) {
		mu.Lock()
		seen = append(seen, r.Len())
		mu.Unlock()
	})
	defer cancel()

	_, err := s.sync.Subscribe(s.ctx)
	s.Require().NoError(err)
	s.store.setHold(true)

	s.register("Grace", "grace@example.com")
	<-s.store.started
	s.register("Alan", "alan@example.com")
	<-s.store.started

	// The later load finishes first, then the older one arrives late.
	s.store.openGate(1)
	s.store.openGate(0)
	s.sync.Wait()

	s.Equal(3, s.sync.Snapshot().Len())
	s.assertMirrorsStore()

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]int{3}, seen, "stale load must not be published and nothing empty ever shows")
}

func (s *SynchronizerSuite) TestConvergesUnderShuffledCompletion() {
	_, err := s.sync.Subscribe(s.ctx)
	s.Require().NoError(err)
	s.store.setHold(true)

	ids := []string{}
	for i := 0; i < 6; i++ {
		s.register(string(rune('A'+i))+"name", "")
		<-s.store.started
	}
	for _, rec := range s.storeRecords() {
		ids = append(ids, rec[store.ColID].(string))
	}
	s.Require().NoError(s.store.Storage.Update(s.ctx, store.TableRegistrants, ids[0], store.Record{store.ColStatus: "confirmed"}))
	<-s.store.started
	s.Require().NoError(s.store.Storage.Delete(s.ctx, store.TableRegistrants, ids[1]))
	<-s.store.started

	order := rand.New(rand.NewSource(42)).Perm(8)
	for _, i := range order {
		s.store.openGate(i)
	}
	s.sync.Wait()

	s.Equal(5, s.sync.Snapshot().Len())
	s.assertMirrorsStore()
}

func (s *SynchronizerSuite) TestDuplicateNotificationsAreHarmless() {
	release, err := s.sync.Start(s.ctx)
	s.Require().NoError(err)
	defer release()

	s.register("Ada", "ada@example.com")
	// A store may deliver the same change more than once.
	s.Require().NoError(s.store.Storage.Update(s.ctx, store.TableRegistrants, s.storeRecords()[0][store.ColID].(string), store.Record{}))
	s.sync.Wait()

	s.assertMirrorsStore()
}

func (s *SynchronizerSuite) TestReleaseStopsFollowingTheStore() {
	release, err := s.sync.Start(s.ctx)
	s.Require().NoError(err)
	s.True(s.sync.Subscribed())
	s.Equal(1, s.store.SubscriberCount(store.TableRegistrants))

	_, err = s.sync.Subscribe(s.ctx)
	s.ErrorIs(err, ErrAlreadySubscribed)

	release()
	release()
	s.False(s.sync.Subscribed())
	s.Equal(0, s.store.SubscriberCount(store.TableRegistrants))

	s.register("Ada", "ada@example.com")
	s.sync.Wait()
	s.Equal(0, s.sync.Snapshot().Len())

	release, err = s.sync.Subscribe(s.ctx)
	s.Require().NoError(err)
	release()
	s.Equal(0, s.store.SubscriberCount(store.TableRegistrants))
}

func (s *SynchronizerSuite) TestCloseUnsubscribesFromEveryStore() {
	for _, st := range []*memory.Storage{memory.New(), s.store.Storage} {
		m := metrics.Nop()
		syn := New(st, WithMetrics(m), WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))

		stale, err := syn.Start(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, st.SubscriberCount(store.TableRegistrants))

		syn.Close()
		s.False(syn.Subscribed())
		s.Equal(0, st.SubscriberCount(store.TableRegistrants))
		syn.Close()

		loads := testutil.ToFloat64(m.RosterLoads.WithLabelValues("ok"))
		s.Require().NoError(st.Insert(s.ctx, store.TableRegistrants, store.Record{store.ColName: "Ada", store.ColStatus: "pending"}))
		syn.Wait()
		s.Equal(loads, testutil.ToFloat64(m.RosterLoads.WithLabelValues("ok")), "no reload after close")
		s.Zero(testutil.ToFloat64(m.Notifications))

		// A release func from an earlier subscription leaves a newer one alone.
		release, err := syn.Subscribe(s.ctx)
		s.Require().NoError(err)
		stale()
		s.True(syn.Subscribed())
		s.Equal(1, st.SubscriberCount(store.TableRegistrants))
		release()
		s.Equal(0, st.SubscriberCount(store.TableRegistrants))
	}
}

func (s *SynchronizerSuite) TestWatchCancel() {
	calls := 0
	cancel := s.sync.Watch(func(models.Roster) { calls++ })

	s.register("Ada", "ada@example.com")
	s.Require().NoError(s.sync.Load(s.ctx))
	s.Equal(1, calls)

	cancel()
	cancel()
	s.register("Grace", "grace@example.com")
	s.Require().NoError(s.sync.Load(s.ctx))
	s.Equal(1, calls)
}

func (s *SynchronizerSuite) TestSnapshotValuesAreStableAcrossReplacement() {
	s.register("Ada", "ada@example.com")
	s.Require().NoError(s.sync.Load(s.ctx))
	held := s.sync.Snapshot()

	s.register("Grace", "grace@example.com")
	s.Require().NoError(s.sync.Load(s.ctx))

	s.Equal(1, held.Len())
	s.Equal(2, s.sync.Snapshot().Len())
	s.Greater(s.sync.Snapshot().Version(), held.Version())
}
