package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goodtune/hubwatch/internal/record"
	"github.com/rs/zerolog"
)

type stubSnapshotter struct {
	rec *record.DayRecord
	err error
}

func (s *stubSnapshotter) Snapshot(ctx context.Context) (*record.DayRecord, error) {
	return s.rec, s.err
}

func testServer(snap Snapshotter) *Server {
	return NewServer("127.0.0.1:0", snap, zerolog.Nop())
}

func TestHandleRecord(t *testing.T) {
	rec := &record.DayRecord{
		Date: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Hub:  "living-room",
		Activities: record.Tally{
			"1":  {Name: "Watch TV", Active: 17},
			"-1": {Name: "PowerOff", Active: 2},
		},
	}
	srv := testServer(&stubSnapshotter{rec: rec})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	var got struct {
		Date       string                          `json:"date"`
		Hub        string                          `json:"hub"`
		Activities map[string]record.ActivityTally `json:"activities"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Hub != "living-room" {
		t.Errorf("hub = %q", got.Hub)
	}
	if got.Activities["1"].Active != 17 {
		t.Errorf("activities.1.active = %d, want 17", got.Activities["1"].Active)
	}
}

func TestHandleRecord_SnapshotFailure(t *testing.T) {
	srv := testServer(&stubSnapshotter{err: errors.New("redis down")})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	// Internal details stay in the logs, not the response.
	if body := w.Body.String(); body != "snapshot unavailable\n" {
		t.Errorf("body = %q", body)
	}
}

func TestHandleRecord_UnknownPath(t *testing.T) {
	srv := testServer(&stubSnapshotter{rec: &record.DayRecord{}})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(&stubSnapshotter{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
