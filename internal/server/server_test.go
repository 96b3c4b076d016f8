package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/config"
	"scrabble-bot/internal/export"
	"scrabble-bot/internal/metrics"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/roster"
	"scrabble-bot/internal/store/memory"
)

type ServerSuite struct {
	suite.Suite
	clock   *clock.Fake
	sync    *roster.Synchronizer
	release func()
	handler http.Handler
	cfg     config.Config
	ctx     context.Context
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFake(time.Date(2026, 2, 6, 8, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	s.sync = roster.New(memory.New(memory.WithClock(s.clock)),
		roster.WithLogger(logger),
		roster.WithMetrics(metrics.New(reg)))
	var err error
	s.release, err = s.sync.Start(s.ctx)
	s.Require().NoError(err)

	s.cfg = config.Config{ExportSecret: "export-secret", Event: config.DefaultEvent()}
	s.handler = NewHandler(s.cfg, s.sync, reg, s.clock, logger)
}

func (s *ServerSuite) TearDownTest() {
	s.release()
}

func (s *ServerSuite) add(name string, cat models.Category) {
	s.Require().NoError(s.sync.SubmitInsert(s.ctx, models.Draft{Name: name, Email: strings.ToLower(name) + "@example.com", Category: cat}))
	s.clock.Advance(time.Minute)
	s.sync.Wait()
}

func (s *ServerSuite) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (s *ServerSuite) TestHealth() {
	s.add("Ada", models.CategoryOpen)
	rec := s.get("/healthz")
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(true, body["ok"])
	s.EqualValues(1, body["registrants"])
}

func (s *ServerSuite) TestRosterSearch() {
	s.add("Ada", models.CategoryOpen)
	s.add("Grace", models.CategoryMasters)

	var all rosterResponse
	rec := s.get("/api/roster")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &all))
	s.Equal(2, all.Count)
	s.Equal("Grace", all.Registrants[0].Name)
	s.NotContains(rec.Body.String(), "@example.com", "contact details stay private")

	var masters rosterResponse
	rec = s.get("/api/roster?q=masters")
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &masters))
	s.Equal(1, masters.Count)
	s.Equal("Grace", masters.Registrants[0].Name)
}

func (s *ServerSuite) TestStats() {
	s.add("Ada", models.CategoryOpen)
	s.add("Grace", models.CategoryOpen)

	var st statsResponse
	rec := s.get("/api/roster/stats")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &st))
	s.Equal(2, st.Total)
	s.Equal(24, st.Capacity)
	s.Equal(8, st.Occupancy)
	s.Equal([]models.CategoryCount{{Category: "Open", Count: 2}}, st.Categories)
	s.Equal(0, st.Countdown.Days)
	s.Equal(23, st.Countdown.Hours)
	s.False(st.Countdown.Started)
}

func (s *ServerSuite) TestExport() {
	s.add("Ada", models.CategoryOpen)

	s.Equal(http.StatusBadRequest, s.get("/export/roster.csv").Code)
	s.Equal(http.StatusForbidden, s.get("/export/roster.csv?token=nope").Code)

	rec := s.get("/export/roster.csv?token=" + export.Token(s.cfg.ExportSecret))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	s.Contains(rec.Body.String(), "1,Ada,ada@example.com")
}

func (s *ServerSuite) TestMetrics() {
	s.add("Ada", models.CategoryOpen)
	rec := s.get("/metrics")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "regbot_roster_size 1")
	s.Contains(rec.Body.String(), `regbot_write_intents_total{op="insert",result="ok"} 1`)
}

func (s *ServerSuite) TestEventsStreamSnapshots() {
	s.add("Ada", models.CategoryOpen)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/roster/events", nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	first := readEvent(s.T(), lines)
	s.Equal(1, first.Count)

	s.add("Grace", models.CategoryMasters)
	next := readEvent(s.T(), lines)
	s.Equal(2, next.Count)
	s.Greater(next.Version, first.Version)
}

func readEvent(t *testing.T, lines *bufio.Scanner) rosterResponse {
	t.Helper()
	var name string
	for lines.Scan() {
		line := lines.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && name == "roster":
			var out rosterResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &out); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return out
		}
	}
	t.Fatalf("stream ended: %v", lines.Err())
	return rosterResponse{}
}
