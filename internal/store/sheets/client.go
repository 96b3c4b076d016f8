package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"scrabble-bot/internal/clock"
)

// Client is a store.RecordStore over a Google spreadsheet: one sheet per
// table, first row is the header naming the columns.
type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
	clock         clock.Clock
	logger        *slog.Logger
	pollInterval  time.Duration

	// fetch reads a sheet's values; readAll outside tests.
	fetch func(ctx context.Context, table string) ([][]interface{}, error)

	mu       sync.Mutex
	sheetIDs map[string]int64
	watchers map[string]*watcher
}

func New(ctx context.Context, serviceAccountJSONPath, spreadsheetID string, pollInterval time.Duration, logger *slog.Logger) (*Client, error) {
	if _, err := os.Stat(serviceAccountJSONPath); err != nil {
		return nil, fmt.Errorf("service account json: %w", err)
	}
	srv, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(serviceAccountJSONPath),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	c := &Client{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		clock:         clock.New(),
		logger:        logger.With(slog.String("component", "sheets")),
		pollInterval:  pollInterval,
		sheetIDs:      map[string]int64{},
		watchers:      map[string]*watcher{},
	}
	c.fetch = c.readAll
	return c, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

// Close stops every change poller.
func (c *Client) Close() error {
	c.mu.Lock()
	ws := c.watchers
	c.watchers = map[string]*watcher{}
	c.mu.Unlock()
	for _, w := range ws {
		w.stop()
	}
	return nil
}
