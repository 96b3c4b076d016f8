package identity

import (
	"context"
	"sync"
)

// Client is one operator's view of the directory: it remembers the current
// token and tells observers when the session starts or ends. Expiry is
// noticed the next time the session is looked at.
type Client struct {
	dir *Directory

	mu       sync.Mutex
	token    string
	handlers map[int]func(*Session)
	nextID   int
}

func (d *Directory) NewClient() *Client {
	return &Client{dir: d, handlers: map[int]func(*Session){}}
}

// SignIn replaces any current session. On failure the client is left signed out.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	s, err := c.dir.Authenticate(email, password)

	c.mu.Lock()
	prev := c.token
	if err != nil {
		c.token = ""
	} else {
		c.token = s.Token
	}
	c.mu.Unlock()

	if prev != "" {
		c.dir.Revoke(prev)
	}
	switch {
	case err == nil:
		c.emit(&s)
	case prev != "":
		c.emit(nil)
	}
	return s, err
}

func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	prev := c.token
	c.token = ""
	c.mu.Unlock()

	if prev == "" {
		return nil
	}
	c.dir.Revoke(prev)
	c.emit(nil)
	return ctx.Err()
}

// CurrentSession returns nil when signed out. A token that no longer
// validates is dropped and observers are told the session ended.
func (c *Client) CurrentSession() *Session {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return nil
	}

	s, err := c.dir.Validate(token)
	if err == nil {
		return &s
	}

	c.mu.Lock()
	lost := c.token == token
	if lost {
		c.token = ""
	}
	c.mu.Unlock()
	if lost {
		c.emit(nil)
	}
	return nil
}

// OnSessionChange registers fn for sign-in (non-nil) and session loss (nil).
func (c *Client) OnSessionChange(fn func(*Session)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	}
}

func (c *Client) emit(s *Session) {
	c.mu.Lock()
	fns := make([]func(*Session), 0, len(c.handlers))
	for _, fn := range c.handlers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
