package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func probe(t *testing.T, h http.HandlerFunc, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rec, resp
}

func TestLiveHandler_Healthy(t *testing.T) {
	c := New()
	rec, resp := probe(t, c.LiveHandler(), "/live")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.Status != StatusUp {
		t.Fatalf("expected status up, got %s", resp.Status)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
}

func TestLiveHandler_ShuttingDown(t *testing.T) {
	c := New()
	c.SetShuttingDown()

	rec, resp := probe(t, c.LiveHandler(), "/live")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if resp.Status != StatusDown {
		t.Fatalf("expected status down, got %s", resp.Status)
	}
}

func TestReadyHandler_AllHealthy(t *testing.T) {
	c := New()
	c.Register("exporter", func() error { return nil })
	c.Register("queue", func() error { return nil })

	rec, resp := probe(t, c.ReadyHandler(), "/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.Status != StatusUp {
		t.Fatalf("expected status up, got %s", resp.Status)
	}
	if len(resp.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(resp.Components))
	}
}

func TestReadyHandler_OneDown(t *testing.T) {
	c := New()
	c.Register("queue", func() error { return nil })
	c.Register("exporter", func() error {
		return errors.New("connection refused")
	})

	rec, resp := probe(t, c.ReadyHandler(), "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if resp.Status != StatusDown {
		t.Fatalf("expected status down, got %s", resp.Status)
	}
	exp := resp.Components["exporter"]
	if exp.Status != StatusDown {
		t.Fatalf("expected exporter down, got %s", exp.Status)
	}
	if exp.Message != "connection refused" {
		t.Fatalf("unexpected message: %s", exp.Message)
	}
}

func TestReadyHandler_ShuttingDown(t *testing.T) {
	c := New()
	c.Register("queue", func() error { return nil })
	c.SetShuttingDown()

	rec, _ := probe(t, c.ReadyHandler(), "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadyHandler_NoChecks(t *testing.T) {
	c := New()
	rec, _ := probe(t, c.ReadyHandler(), "/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no checks, got %d", rec.Code)
	}
}

func TestQueueSaturationCheck(t *testing.T) {
	depth := 0
	check := QueueSaturationCheck(func() (int, int) { return depth, 100 }, 0.9)

	if err := check(); err != nil {
		t.Errorf("empty queue should be healthy: %v", err)
	}
	depth = 89
	if err := check(); err != nil {
		t.Errorf("below threshold should be healthy: %v", err)
	}
	depth = 95
	if err := check(); err == nil {
		t.Error("saturated queue should fail the check")
	}
}
