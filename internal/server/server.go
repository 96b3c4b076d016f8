package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/config"
	"scrabble-bot/internal/event"
	"scrabble-bot/internal/export"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/util"
)

// RosterSource is the read side of the synchronizer.
type RosterSource interface {
	Snapshot() models.Roster
	Watch(fn func(models.Roster)) (cancel func())
}

type Server struct {
	cfg      config.Config
	roster   RosterSource
	gatherer prometheus.Gatherer
	clock    clock.Clock
	logger   *slog.Logger
}

func New(cfg config.Config, r RosterSource, gatherer prometheus.Gatherer, c clock.Clock, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(cfg, r, gatherer, c, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewHandler(cfg config.Config, r RosterSource, gatherer prometheus.Gatherer, c clock.Clock, logger *slog.Logger) http.Handler {
	s := &Server{cfg: cfg, roster: r, gatherer: gatherer, clock: c, logger: logger.With(slog.String("component", "http"))}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(Logging(s.logger))

	router.Get("/healthz", s.handleHealth)
	router.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/api/roster", s.handleRoster)
		r.Get("/api/roster/stats", s.handleStats)
		r.Get("/export/roster.csv", s.handleExport)
	})
	// No timeout: the stream lives as long as the client stays connected.
	router.Get("/api/roster/events", s.handleEvents)

	return router
}

// publicRegistrant leaves out contact details.
type publicRegistrant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Status       string    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	Registered   string    `json:"registered"`
}

type rosterResponse struct {
	Version     uint64             `json:"version"`
	Count       int                `json:"count"`
	Registrants []publicRegistrant `json:"registrants"`
}

func toPublic(items []models.Registrant) []publicRegistrant {
	out := make([]publicRegistrant, 0, len(items))
	for _, r := range items {
		out = append(out, publicRegistrant{
			ID:           r.ID,
			Name:         r.Name,
			Category:     string(r.Category),
			Status:       string(r.Status),
			RegisteredAt: r.RegisteredAt,
			Registered:   util.FormatRegisteredAt(r.RegisteredAt),
		})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"registrants": s.roster.Snapshot().Len(),
		"ts":          util.NowISO(),
	})
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	snap := s.roster.Snapshot()
	items := snap.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, rosterResponse{
		Version:     snap.Version(),
		Count:       len(items),
		Registrants: toPublic(items),
	})
}

type statsResponse struct {
	models.Stats
	Event     string          `json:"event"`
	StartsAt  time.Time       `json:"starts_at"`
	Countdown event.Remaining `json:"countdown"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ev := s.cfg.Event
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:     s.roster.Snapshot().Stats(ev.Capacity),
		Event:     ev.Name,
		StartsAt:  ev.Start,
		Countdown: event.Countdown(s.clock.Now(), ev.Start),
	})
}

// handleExport is the organisers' CSV download, authorized by an HMAC token.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}
	if !export.Verify(s.cfg.ExportSecret, token) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	body, err := export.CSV(s.roster.Snapshot())
	if err != nil {
		s.logger.Error("export roster", slog.String("error", err.Error()))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="roster.csv"`)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
