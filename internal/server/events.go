package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"scrabble-bot/internal/models"
)

const pingPeriod = 30 * time.Second

// handleEvents streams one "roster" event per snapshot, starting with the
// current one. A slow client only ever receives the newest snapshot.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	updates := make(chan models.Roster, 1)
	cancel := s.roster.Watch(func(next models.Roster) {
		select {
		case updates <- next:
			return
		default:
		}
		// Replace the unsent snapshot with the newer one.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- next:
		default:
		}
	})
	defer cancel()

	if err := writeRosterEvent(w, s.roster.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap := <-updates:
			if err := writeRosterEvent(w, snap); err != nil {
				s.logger.Debug("sse client gone", slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeRosterEvent(w http.ResponseWriter, snap models.Roster) error {
	items := snap.Registrants()
	data, err := json.Marshal(rosterResponse{
		Version:     snap.Version(),
		Count:       len(items),
		Registrants: toPublic(items),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: roster\nid: %d\ndata: %s\n\n", snap.Version(), data)
	return err
}
