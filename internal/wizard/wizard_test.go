package wizard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrabble-bot/internal/models"
	"scrabble-bot/internal/proof/whatsapp"
	"scrabble-bot/internal/roster"
	"scrabble-bot/internal/store"
	"scrabble-bot/internal/store/memory"
)

type fakeSubmitter struct {
	calls   atomic.Int32
	err     error
	gate    chan struct{}
	entered chan struct{}
	last    models.Draft
}

func (f *fakeSubmitter) SubmitInsert(_ context.Context, d models.Draft) error {
	f.calls.Add(1)
	f.last = d
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.err
}

type staticLinks struct{}

func (staticLinks) Link(d models.Draft) string { return "proof:" + d.Name }

func toPayment(t *testing.T, w *Wizard) {
	t.Helper()
	require.NoError(t, w.SetName("Ada"))
	for _, want := range []Step{StepCategory, StepReview, StepPayment} {
		step, err := w.Forward(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, step)
	}
}

func TestForwardFromIdentityNeedsName(t *testing.T) {
	w := New(&fakeSubmitter{}, staticLinks{})
	ctx := context.Background()

	for _, name := range []string{"", "   ", "\t\n"} {
		require.NoError(t, w.SetName(name))
		assert.False(t, w.CanForward())
		step, err := w.Forward(ctx)
		assert.NoError(t, err)
		assert.Equal(t, StepIdentity, step)
	}

	// Nothing but the name gates progress.
	require.NoError(t, w.SetName("A"))
	require.NoError(t, w.SetEmail("not an email"))
	require.NoError(t, w.SetPhone("???"))
	require.NoError(t, w.SetCategory("Grandmasters"))
	step, err := w.Forward(ctx)
	assert.NoError(t, err)
	assert.Equal(t, StepCategory, step)
}

func TestBackBoundaries(t *testing.T) {
	w := New(&fakeSubmitter{}, staticLinks{})
	assert.Equal(t, StepIdentity, w.Back())

	toPayment(t, w)
	assert.Equal(t, StepReview, w.Back())
	assert.Equal(t, StepCategory, w.Back())
	assert.Equal(t, StepIdentity, w.Back())
	assert.Equal(t, StepIdentity, w.Back())
}

func TestSubmitSucceedsOnce(t *testing.T) {
	sub := &fakeSubmitter{}
	w := New(sub, staticLinks{})
	toPayment(t, w)

	_, ok := w.ProofLink()
	assert.False(t, ok, "no proof link before submission")

	step, err := w.Forward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, step)
	assert.EqualValues(t, 1, sub.calls.Load())
	assert.Equal(t, "Ada", sub.last.Name)

	// Payment can never be re-entered.
	assert.Equal(t, StepConfirmation, w.Back())
	assert.ErrorIs(t, w.SetName("Eve"), ErrSubmitted)

	link, ok := w.ProofLink()
	assert.True(t, ok)
	assert.Equal(t, "proof:Ada", link)

	step, err = w.Forward(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, StepConfirmation, step)
	assert.True(t, w.Closed())

	_, err = w.Forward(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.EqualValues(t, 1, sub.calls.Load())
}

func TestFailedSubmitStaysOnPayment(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("duplicate email")}
	w := New(sub, staticLinks{})
	toPayment(t, w)

	step, err := w.Forward(context.Background())
	assert.EqualError(t, err, "duplicate email")
	assert.Equal(t, StepPayment, step)
	assert.Equal(t, StepPayment, w.Step())
	assert.Equal(t, err, w.LastError())
	assert.False(t, w.Submitted())

	// The draft can still be corrected and resubmitted.
	require.NoError(t, w.SetEmail("other@example.com"))
	sub.err = nil
	step, err = w.Forward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, step)
	assert.Nil(t, w.LastError())
	assert.EqualValues(t, 2, sub.calls.Load())
}

func TestRapidForwardSubmitsOnce(t *testing.T) {
	sub := &fakeSubmitter{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	w := New(sub, staticLinks{})
	toPayment(t, w)

	first := make(chan Step, 1)
	go func() {
		step, _ := w.Forward(context.Background())
		first <- step
	}()
	<-sub.entered

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			step, err := w.Forward(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, StepPayment, step)
		}()
	}
	wg.Wait()

	assert.Equal(t, StepPayment, w.Back(), "back is ignored while submitting")
	assert.ErrorIs(t, w.SetName("Eve"), ErrSubmitted)

	close(sub.gate)
	assert.Equal(t, StepConfirmation, <-first)
	assert.EqualValues(t, 1, sub.calls.Load())
}

func TestStepAlwaysInRange(t *testing.T) {
	w := New(&fakeSubmitter{}, staticLinks{})
	require.NoError(t, w.SetName("Ada"))
	moves := []bool{false, true, true, false, true, true, true, false, true, false, true, true}
	for _, fwd := range moves {
		var step Step
		if fwd {
			step, _ = w.Forward(context.Background())
		} else {
			step = w.Back()
		}
		assert.GreaterOrEqual(t, int(step), int(StepIdentity))
		assert.LessOrEqual(t, int(step), int(StepConfirmation))
	}
}

func TestCloseDiscardsDraft(t *testing.T) {
	w := New(&fakeSubmitter{}, staticLinks{})
	require.NoError(t, w.SetName("Ada"))
	w.Close()
	assert.Empty(t, w.Draft().Name)
	assert.ErrorIs(t, w.SetName("x"), ErrClosed)
}

func TestSlotHandsOutFreshDrafts(t *testing.T) {
	slot := NewSlot(func() *Wizard { return New(&fakeSubmitter{}, staticLinks{}) })

	_, ok := slot.Current()
	assert.False(t, ok)

	first := slot.Open()
	require.NoError(t, first.SetName("Ada"))
	cur, ok := slot.Current()
	require.True(t, ok)
	assert.Same(t, first, cur)

	second := slot.Open()
	assert.True(t, first.Closed(), "opening again closes the previous wizard")
	assert.Empty(t, second.Draft().Name)
	assert.Equal(t, models.CategoryMasters, second.Draft().Category)

	slot.Close()
	_, ok = slot.Current()
	assert.False(t, ok)
}

func newSynchronizer(t *testing.T) *roster.Synchronizer {
	t.Helper()
	st := memory.New(memory.WithUniqueColumn(store.ColEmail))
	s := roster.New(st, roster.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	release, err := s.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(release)
	return s
}

func TestSubmitAddsPendingRegistrant(t *testing.T) {
	syn := newSynchronizer(t)
	w := New(syn, whatsapp.New("2347034849762", "₦10,000"))

	require.NoError(t, w.SetName("Ada Lovelace"))
	_, _ = w.Forward(context.Background())
	require.NoError(t, w.SetCategory(models.CategoryOpen))
	_, _ = w.Forward(context.Background())
	_, _ = w.Forward(context.Background())

	step, err := w.Forward(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StepConfirmation, step)
	syn.Wait()

	snap := syn.Snapshot()
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "Ada Lovelace", snap.At(0).Name)
	assert.Equal(t, models.StatusPending, snap.At(0).Status)

	link, ok := w.ProofLink()
	require.True(t, ok)
	assert.Contains(t, link, "Ada%20Lovelace")
	assert.Contains(t, link, "Open")
}

func TestDuplicateEmailKeepsWizardOnPayment(t *testing.T) {
	syn := newSynchronizer(t)
	require.NoError(t, syn.SubmitInsert(context.Background(), models.Draft{Name: "Ada", Email: "ada@example.com"}))
	syn.Wait()
	before := syn.Snapshot()

	w := New(syn, whatsapp.New("2347034849762", "₦10,000"))
	toPayment(t, w)
	require.NoError(t, w.SetEmail("ada@example.com"))

	step, err := w.Forward(context.Background())
	assert.Equal(t, StepPayment, step)
	var we *roster.WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "duplicate email", we.Reason)

	syn.Wait()
	assert.Equal(t, before, syn.Snapshot())
}
