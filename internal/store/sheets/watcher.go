package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// watcher turns a sheet without push notifications into a change feed: it
// polls the sheet's values and fires when their fingerprint moves.
type watcher struct {
	fetch    func(ctx context.Context) ([][]interface{}, error)
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[int]func()
	nextID   int
	last     [32]byte
	primed   bool

	cancel context.CancelFunc
	done   chan struct{}
}

func newWatcher(fetch func(ctx context.Context) ([][]interface{}, error), interval time.Duration, logger *slog.Logger) *watcher {
	return &watcher{
		fetch:    fetch,
		interval: interval,
		logger:   logger,
		handlers: map[int]func(){},
	}
}

func (w *watcher) start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		w.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

func (w *watcher) stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

// add registers h and returns a func that removes it, reporting whether no
// handlers remain.
func (w *watcher) add(h func()) func() bool {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = h
	w.mu.Unlock()

	return func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.handlers, id)
		return len(w.handlers) == 0
	}
}

// poll fetches once; the first successful fetch only records a baseline.
func (w *watcher) poll(ctx context.Context) {
	values, err := w.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("sheet poll failed", slog.String("error", err.Error()))
		}
		return
	}
	sum := fingerprint(values)

	w.mu.Lock()
	changed := w.primed && sum != w.last
	w.last = sum
	w.primed = true
	w.mu.Unlock()

	if changed {
		w.fire()
	}
}

func (w *watcher) fire() {
	w.mu.Lock()
	hs := make([]func(), 0, len(w.handlers))
	for _, h := range w.handlers {
		hs = append(hs, h)
	}
	w.mu.Unlock()
	for _, h := range hs {
		h()
	}
}

// fingerprint hashes cell values with length-prefixed framing so that
// shifting text between cells changes the sum.
func fingerprint(values [][]interface{}) [32]byte {
	h := blake3.New()
	for _, row := range values {
		fmt.Fprintf(h, "r%d|", len(row))
		for _, cell := range row {
			s := ""
			if cell != nil {
				s = fmt.Sprint(cell)
			}
			fmt.Fprintf(h, "%d:%s", len(s), s)
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
