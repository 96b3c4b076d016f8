// Package admin guards the roster mutations behind an admin session.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/identity"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/store"
)

var (
	ErrUnauthenticated     = errors.New("admin: not signed in")
	ErrUnknownConfirmation = errors.New("admin: unknown or expired delete confirmation")
)

// AuthError is a failed sign-in. Reason is safe to show to the operator.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string { return "sign-in failed: " + e.Reason }

func (e *AuthError) Unwrap() error { return e.Err }

type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// IdentityProvider is the session source the gate observes. *identity.Client
// implements it.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context) error
	CurrentSession() *identity.Session
	OnSessionChange(fn func(*identity.Session)) (unsubscribe func())
}

// Roster is the part of the synchronizer the gate drives.
type Roster interface {
	Snapshot() models.Roster
	SubmitStatusChange(ctx context.Context, id string, status models.Status) error
	SubmitDelete(ctx context.Context, id string) error
}

// Confirmation is a pending delete waiting for a second, explicit step.
type Confirmation struct {
	Token      string
	Registrant models.Registrant
	ExpiresAt  time.Time
}

const defaultConfirmTTL = 2 * time.Minute

type Gate struct {
	idp        IdentityProvider
	roster     Roster
	clock      clock.Clock
	logger     *slog.Logger
	confirmTTL time.Duration

	mu          sync.Mutex
	state       State
	email       string
	pending     map[string]Confirmation
	unsubscribe func()
}

type Option func(*Gate)

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

func WithClock(c clock.Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithConfirmTTL bounds how long a delete confirmation stays usable.
func WithConfirmTTL(d time.Duration) Option {
	return func(g *Gate) { g.confirmTTL = d }
}

func New(idp IdentityProvider, r Roster, opts ...Option) *Gate {
	g := &Gate{
		idp:        idp,
		roster:     r,
		clock:      clock.New(),
		logger:     slog.Default(),
		confirmTTL: defaultConfirmTTL,
		pending:    map[string]Confirmation{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "admin"))
	g.unsubscribe = idp.OnSessionChange(g.onSessionChange)
	if s := idp.CurrentSession(); s != nil {
		g.state, g.email = Authenticated, s.Email
	}
	return g
}

// Close stops observing the identity provider.
func (g *Gate) Close() {
	g.unsubscribe()
}

func (g *Gate) onSessionChange(s *identity.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.pending)
	if s == nil {
		if g.state == Authenticated {
			g.logger.Info("admin session ended", slog.String("email", g.email))
		}
		g.state, g.email = Unauthenticated, ""
		return
	}
	g.state, g.email = Authenticated, s.Email
	g.logger.Info("admin session started", slog.String("email", s.Email))
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Email is the signed-in admin, or "".
func (g *Gate) Email() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.email
}

func (g *Gate) SignIn(ctx context.Context, email, password string) error {
	s, err := g.idp.SignIn(ctx, email, password)
	if err != nil {
		g.logger.Warn("admin sign-in failed", slog.String("email", email), slog.String("error", err.Error()))
		reason := "could not sign in"
		if errors.Is(err, identity.ErrInvalidCredentials) {
			reason = err.Error()
		}
		return &AuthError{Reason: reason, Err: err}
	}
	// Providers that do not emit on sign-in still leave the gate consistent.
	g.onSessionChange(&s)
	return nil
}

func (g *Gate) SignOut(ctx context.Context) error {
	return g.idp.SignOut(ctx)
}

// authorize consults the provider on every call; the cached state is only
// for display.
func (g *Gate) authorize() (string, error) {
	s := g.idp.CurrentSession()
	g.mu.Lock()
	defer g.mu.Unlock()
	if s == nil || g.state != Authenticated || g.email != s.Email {
		if g.state == Authenticated {
			clear(g.pending)
			g.state, g.email = Unauthenticated, ""
		}
		return "", ErrUnauthenticated
	}
	return s.Email, nil
}

func (g *Gate) List() (models.Roster, error) {
	if _, err := g.authorize(); err != nil {
		return models.Roster{}, err
	}
	return g.roster.Snapshot(), nil
}

// ToggleStatus flips pending and confirmed for one registrant and returns
// the status requested from the store.
func (g *Gate) ToggleStatus(ctx context.Context, id string) (models.Status, error) {
	email, err := g.authorize()
	if err != nil {
		return "", err
	}
	r, ok := g.roster.Snapshot().Find(id)
	if !ok {
		return "", fmt.Errorf("registrant %s: %w", id, store.ErrNotFound)
	}
	next := r.Status.Toggled()
	if err := g.roster.SubmitStatusChange(ctx, id, next); err != nil {
		return "", err
	}
	g.logger.Info("status changed",
		slog.String("admin", email),
		slog.String("id", id),
		slog.String("status", string(next)))
	return next, nil
}

// RequestDelete is the first step of a removal. Nothing is deleted until
// ConfirmDelete is called with the returned token.
func (g *Gate) RequestDelete(id string) (Confirmation, error) {
	if _, err := g.authorize(); err != nil {
		return Confirmation{}, err
	}
	r, ok := g.roster.Snapshot().Find(id)
	if !ok {
		return Confirmation{}, fmt.Errorf("registrant %s: %w", id, store.ErrNotFound)
	}
	c := Confirmation{
		Token:      uuid.NewString(),
		Registrant: r,
		ExpiresAt:  g.clock.Now().Add(g.confirmTTL),
	}
	g.mu.Lock()
	g.pending[c.Token] = c
	g.mu.Unlock()
	return c, nil
}

func (g *Gate) ConfirmDelete(ctx context.Context, token string) error {
	email, err := g.authorize()
	if err != nil {
		return err
	}
	g.mu.Lock()
	c, ok := g.pending[token]
	delete(g.pending, token)
	g.mu.Unlock()
	if !ok || g.clock.Now().After(c.ExpiresAt) {
		return ErrUnknownConfirmation
	}

	if err := g.roster.SubmitDelete(ctx, c.Registrant.ID); err != nil {
		return err
	}
	g.logger.Info("registrant removed",
		slog.String("admin", email),
		slog.String("id", c.Registrant.ID),
		slog.String("name", c.Registrant.Name))
	return nil
}

// CancelDelete drops a pending confirmation. Unknown tokens are ignored.
func (g *Gate) CancelDelete(token string) {
	g.mu.Lock()
	delete(g.pending, token)
	g.mu.Unlock()
}
