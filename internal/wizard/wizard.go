// Package wizard implements the five-step registration flow.
package wizard

import (
	"context"
	"errors"
	"strings"
	"sync"

	"scrabble-bot/internal/models"
)

type Step int

const (
	StepIdentity Step = iota + 1
	StepCategory
	StepReview
	StepPayment
	StepConfirmation
)

func (s Step) String() string {
	switch s {
	case StepIdentity:
		return "identity"
	case StepCategory:
		return "category"
	case StepReview:
		return "review"
	case StepPayment:
		return "payment"
	case StepConfirmation:
		return "confirmation"
	}
	return "unknown"
}

var (
	ErrSubmitted = errors.New("wizard: draft already submitted")
	ErrClosed    = errors.New("wizard: closed")
)

// Submitter forwards the finished draft. *roster.Synchronizer implements it.
type Submitter interface {
	SubmitInsert(ctx context.Context, d models.Draft) error
}

// LinkBuilder renders the proof-of-payment action for a submitted draft.
type LinkBuilder interface {
	Link(d models.Draft) string
}

// Wizard holds one draft and walks it through the steps. It is safe for
// concurrent use; a second Forward while the insert is in flight is a no-op.
type Wizard struct {
	submitter Submitter
	links     LinkBuilder

	mu         sync.Mutex
	step       Step
	draft      models.Draft
	submitting bool
	submitted  bool
	closed     bool
	lastErr    error
}

func New(submitter Submitter, links LinkBuilder) *Wizard {
	return &Wizard{
		submitter: submitter,
		links:     links,
		step:      StepIdentity,
		draft:     models.NewDraft(),
	}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

func (w *Wizard) Draft() models.Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

func (w *Wizard) Submitted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitted
}

func (w *Wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// LastError is the most recent submit failure, cleared by a successful submit.
func (w *Wizard) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Wizard) SetName(v string) error {
	return w.edit(func(d *models.Draft) { d.Name = v })
}

func (w *Wizard) SetEmail(v string) error {
	return w.edit(func(d *models.Draft) { d.Email = v })
}

func (w *Wizard) SetPhone(v string) error {
	return w.edit(func(d *models.Draft) { d.Phone = v })
}

// SetCategory accepts any value; unknown labels are stored as entered.
func (w *Wizard) SetCategory(c models.Category) error {
	return w.edit(func(d *models.Draft) { d.Category = c })
}

func (w *Wizard) SetRatingID(v string) error {
	return w.edit(func(d *models.Draft) { d.RatingID = v })
}

func (w *Wizard) edit(fn func(*models.Draft)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return ErrClosed
	case w.submitted || w.submitting:
		return ErrSubmitted
	}
	fn(&w.draft)
	return nil
}

// CanForward reports whether Forward would leave the current step.
func (w *Wizard) CanForward() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canForwardLocked()
}

func (w *Wizard) canForwardLocked() bool {
	if w.closed || w.submitting {
		return false
	}
	if w.step == StepIdentity {
		return strings.TrimSpace(w.draft.Name) != ""
	}
	return true
}

// Forward advances one step and returns the step the wizard is on afterwards.
//
// Leaving StepIdentity needs a non-blank name; otherwise the wizard stays
// put and no error is returned. Leaving StepPayment submits the draft: on
// failure the wizard stays on StepPayment and the submit error is returned,
// so pressing Forward again retries. Forward on StepConfirmation closes the
// wizard.
func (w *Wizard) Forward(ctx context.Context) (Step, error) {
	w.mu.Lock()
	if w.closed {
		step := w.step
		w.mu.Unlock()
		return step, ErrClosed
	}
	if !w.canForwardLocked() {
		step := w.step
		w.mu.Unlock()
		return step, nil
	}

	switch w.step {
	case StepConfirmation:
		w.closeLocked()
		w.mu.Unlock()
		return StepConfirmation, nil
	case StepPayment:
		if w.submitted {
			// unreachable: a submitted wizard is past this step
			w.mu.Unlock()
			return StepConfirmation, ErrSubmitted
		}
		w.submitting = true
		d := w.draft
		w.mu.Unlock()
		return w.submit(ctx, d)
	default:
		w.step++
		step := w.step
		w.mu.Unlock()
		return step, nil
	}
}

func (w *Wizard) submit(ctx context.Context, d models.Draft) (Step, error) {
	err := w.submitter.SubmitInsert(ctx, d)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if err != nil {
		w.lastErr = err
		return w.step, err
	}
	w.lastErr = nil
	w.submitted = true
	if !w.closed {
		w.step = StepConfirmation
	}
	return StepConfirmation, nil
}

// Back goes one step back. It does nothing on the first and last steps and
// while a submit is in flight.
func (w *Wizard) Back() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.submitting {
		return w.step
	}
	if w.step > StepIdentity && w.step < StepConfirmation {
		w.step--
	}
	return w.step
}

// ProofLink is available once the draft has been submitted.
func (w *Wizard) ProofLink() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.submitted || w.links == nil {
		return "", false
	}
	return w.links.Link(w.draft), true
}

// Close discards the draft. A submit already in flight still completes but
// its result is no longer shown.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLocked()
}

func (w *Wizard) closeLocked() {
	w.closed = true
	w.draft = models.Draft{}
}
