package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seantiz/ember/internal/model"
)

func TestListEngines(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/engines")
	if err != nil {
		t.Fatalf("GET /v1/engines: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var engines []engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&engines); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(engines) != len(model.DefaultEngines()) {
		t.Fatalf("len(engines) = %d, want %d", len(engines), len(model.DefaultEngines()))
	}
	if engines[0].Name != "rcs0" {
		t.Errorf("engines[0].Name = %q, want rcs0", engines[0].Name)
	}
	if engines[0].Resets != 0 {
		t.Errorf("engines[0].Resets = %d, want 0", engines[0].Resets)
	}
}

func TestGetEngine(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/engines/2")
	if err != nil {
		t.Fatalf("GET /v1/engines/2: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var eng engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&eng); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if eng.Name != "vcs0" {
		t.Errorf("Name = %q, want vcs0", eng.Name)
	}
}

func TestGetEngineNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/v1/engines/99", "/v1/engines/rcs0"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestResetEngine(t *testing.T) {
	srv, ctrl := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body := strings.NewReader(`{"reason": "hangcheck"}`)
	resp, err := http.Post(ts.URL+"/v1/engines/1/reset", "application/json", body)
	if err != nil {
		t.Fatalf("POST /v1/engines/1/reset: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var rr model.ResetRequest
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.EngineName != "bcs0" {
		t.Errorf("EngineName = %q, want bcs0", rr.EngineName)
	}
	if rr.State != model.StateIdle {
		t.Errorf("State = %q, want %q", rr.State, model.StateIdle)
	}
	if rr.Reason != model.ReasonHangcheck {
		t.Errorf("Reason = %q, want %q", rr.Reason, model.ReasonHangcheck)
	}

	if got := ctrl.Counters().Engine(1); got != 1 {
		t.Errorf("engine 1 reset count = %d, want 1", got)
	}
}

func TestResetEngineDefaultsToManual(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engines/0/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/engines/0/reset: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var rr model.ResetRequest
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.Reason != model.ReasonManual {
		t.Errorf("Reason = %q, want %q", rr.Reason, model.ReasonManual)
	}
}

func TestResetEngineNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engines/99/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/engines/99/reset: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestResetEngineWedgedConflict(t *testing.T) {
	srv, ctrl := newTestServer(t)

	if err := ctrl.MarkWedged(3); err != nil {
		t.Fatalf("MarkWedged: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engines/3/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/engines/3/reset: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if got := ctrl.Counters().Global(); got != 0 {
		t.Errorf("global reset count = %d, want 0", got)
	}
}

func TestResetEngineInvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/engines/0/reset", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST /v1/engines/0/reset: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
