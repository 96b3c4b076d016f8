package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/store"
)

type StorageSuite struct {
	suite.Suite
	clock   *clock.Fake
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.clock = clock.NewFake(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	s.storage = New(WithClock(s.clock), WithUniqueColumn(store.ColEmail))
	s.ctx = context.Background()
}

func (s *StorageSuite) insert(name, email string) {
	s.Require().NoError(s.storage.Insert(s.ctx, store.TableRegistrants, store.Record{
		store.ColName:  name,
		store.ColEmail: email,
	}))
	s.clock.Advance(time.Minute)
}

func (s *StorageSuite) TestInsertAssignsIDAndTimestamp() {
	s.insert("Ada", "ada@example.com")

	recs, err := s.storage.Query(s.ctx, store.TableRegistrants, store.ColRegisteredAt, store.Descending)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.NotEmpty(recs[0][store.ColID])
	s.Equal(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC), recs[0][store.ColRegisteredAt])
}

func (s *StorageSuite) TestQueryNewestFirst() {
	s.insert("Ada", "ada@example.com")
	s.insert("Grace", "grace@example.com")
	s.insert("Alan", "alan@example.com")

	recs, err := s.storage.Query(s.ctx, store.TableRegistrants, store.ColRegisteredAt, store.Descending)
	s.Require().NoError(err)
	s.Require().Len(recs, 3)
	s.Equal("Alan", recs[0][store.ColName])
	s.Equal("Grace", recs[1][store.ColName])
	s.Equal("Ada", recs[2][store.ColName])
}

func (s *StorageSuite) TestQueryUnknownTableIsEmpty() {
	recs, err := s.storage.Query(s.ctx, "nothing", "", store.Ascending)
	s.Require().NoError(err)
	s.Empty(recs)
}

func (s *StorageSuite) TestUniqueColumnRejectsDuplicate() {
	s.insert("Ada", "ada@example.com")

	err := s.storage.Insert(s.ctx, store.TableRegistrants, store.Record{
		store.ColName:  "Ada Again",
		store.ColEmail: "ADA@example.com",
	})
	s.EqualError(err, "duplicate email")
}

func (s *StorageSuite) TestUpdateAndDelete() {
	s.insert("Ada", "ada@example.com")
	recs, _ := s.storage.Query(s.ctx, store.TableRegistrants, "", store.Ascending)
	id := recs[0][store.ColID].(string)

	s.Require().NoError(s.storage.Update(s.ctx, store.TableRegistrants, id, store.Record{store.ColStatus: "confirmed", store.ColID: "hijack"}))
	recs, _ = s.storage.Query(s.ctx, store.TableRegistrants, "", store.Ascending)
	s.Equal("confirmed", recs[0][store.ColStatus])
	s.Equal(id, recs[0][store.ColID])

	s.Require().NoError(s.storage.Delete(s.ctx, store.TableRegistrants, id))
	recs, _ = s.storage.Query(s.ctx, store.TableRegistrants, "", store.Ascending)
	s.Empty(recs)

	s.ErrorIs(s.storage.Delete(s.ctx, store.TableRegistrants, id), store.ErrNotFound)
	s.ErrorIs(s.storage.Update(s.ctx, store.TableRegistrants, id, store.Record{}), store.ErrNotFound)
}

func (s *StorageSuite) TestQueryReturnsCopies() {
	s.insert("Ada", "ada@example.com")
	recs, _ := s.storage.Query(s.ctx, store.TableRegistrants, "", store.Ascending)
	recs[0][store.ColName] = "mutated"

	again, _ := s.storage.Query(s.ctx, store.TableRegistrants, "", store.Ascending)
	s.Equal("Ada", again[0][store.ColName])
}

func (s *StorageSuite) TestSubscribersSeeEveryWrite() {
	var changes []store.Change
	sub, err := s.storage.SubscribeToChanges(store.TableRegistrants, func(c store.Change) {
		changes = append(changes, c)
	})
	s.Require().NoError(err)
	s.Equal(1, s.storage.SubscriberCount(store.TableRegistrants))

	s.insert("Ada", "ada@example.com")
	recs, _ := s.storage.Query(s.ctx, store.TableRegistrants, "", store.Ascending)
	id := recs[0][store.ColID].(string)
	_ = s.storage.Update(s.ctx, store.TableRegistrants, id, store.Record{store.ColStatus: "confirmed"})
	_ = s.storage.Delete(s.ctx, store.TableRegistrants, id)

	s.Len(changes, 3)
	s.Equal(store.TableRegistrants, changes[0].Table)

	sub.Unsubscribe()
	sub.Unsubscribe()
	s.Equal(0, s.storage.SubscriberCount(store.TableRegistrants))
	s.insert("Grace", "grace@example.com")
	s.Len(changes, 3)
}

func (s *StorageSuite) TestRejectedWriteDoesNotNotify() {
	s.insert("Ada", "ada@example.com")
	calls := 0
	_, _ = s.storage.SubscribeToChanges(store.TableRegistrants, func(store.Change) { calls++ })

	_ = s.storage.Insert(s.ctx, store.TableRegistrants, store.Record{store.ColEmail: "ada@example.com"})
	s.Equal(0, calls)
}
