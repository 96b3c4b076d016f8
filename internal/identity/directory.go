// Package identity authenticates tournament admins and issues their session
// tokens. The admin gate only consumes it through a narrow provider interface.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"scrabble-bot/internal/clock"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

const issuer = "scrabble-bot"

// Session is a signed-in admin.
type Session struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Directory holds the admin accounts and signs session tokens.
type Directory struct {
	accounts   map[string][]byte
	signingKey []byte
	ttl        time.Duration
	clock      clock.Clock

	mu      sync.Mutex
	revoked map[string]time.Time // token id -> expiry
}

// NewDirectory takes accounts as email -> bcrypt hash.
func NewDirectory(accounts map[string]string, signingKey string, ttl time.Duration, c clock.Clock) *Directory {
	acc := make(map[string][]byte, len(accounts))
	for email, hash := range accounts {
		acc[normalizeEmail(email)] = []byte(hash)
	}
	return &Directory{
		accounts:   acc,
		signingKey: []byte(signingKey),
		ttl:        ttl,
		clock:      c,
		revoked:    map[string]time.Time{},
	}
}

// HashPassword produces the value stored in ADMIN_ACCOUNTS.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticate checks the credentials and issues a fresh session token.
func (d *Directory) Authenticate(email, password string) (Session, error) {
	email = normalizeEmail(email)
	hash, ok := d.accounts[email]
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return d.issue(email)
}

func (d *Directory) issue(email string) (Session, error) {
	now := d.clock.Now()
	// Tokens carry whole seconds.
	exp := now.Add(d.ttl).Truncate(time.Second).UTC()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	})
	signed, err := tok.SignedString(d.signingKey)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Email: email, Token: signed, ExpiresAt: exp}, nil
}

// Validate returns the session a token stands for. Expired, revoked or
// foreign tokens yield ErrInvalidSession.
func (d *Directory) Validate(token string) (Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return d.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return Session{}, ErrInvalidSession
	}
	if _, known := d.accounts[claims.Email]; !known {
		return Session{}, ErrInvalidSession
	}

	d.mu.Lock()
	_, revoked := d.revoked[claims.ID]
	d.mu.Unlock()
	if revoked {
		return Session{}, ErrInvalidSession
	}
	return Session{Email: claims.Email, Token: token, ExpiresAt: claims.ExpiresAt.Time.UTC()}, nil
}

// Revoke invalidates a token before its expiry. Unparseable tokens are ignored.
func (d *Directory) Revoke(token string) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil || claims.ID == "" {
		return
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, until := range d.revoked {
		if now.After(until) {
			delete(d.revoked, id)
		}
	}
	d.revoked[claims.ID] = exp
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
