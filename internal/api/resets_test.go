package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/ember/internal/model"
)

func TestListResets(t *testing.T) {
	srv, ctrl := newTestServer(t)

	for i := 0; i < 3; i++ {
		if _, err := ctrl.Reset(context.Background(), 0, model.ReasonManual); err != nil {
			t.Fatalf("Reset %d: %v", i, err)
		}
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/resets?limit=2")
	if err != nil {
		t.Fatalf("GET /v1/resets: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out listResetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Total != 3 {
		t.Errorf("Total = %d, want 3", out.Total)
	}
	if len(out.Resets) != 2 {
		t.Errorf("len(Resets) = %d, want 2", len(out.Resets))
	}
	if out.Limit != 2 {
		t.Errorf("Limit = %d, want 2", out.Limit)
	}
}

func TestListResetsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/resets")
	if err != nil {
		t.Fatalf("GET /v1/resets: %v", err)
	}
	defer resp.Body.Close()

	var out listResetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Total != 0 {
		t.Errorf("Total = %d, want 0", out.Total)
	}
	if out.Resets == nil {
		t.Error("Resets = null, want empty array")
	}
}

func TestGetReset(t *testing.T) {
	srv, ctrl := newTestServer(t)

	rr, err := ctrl.Reset(context.Background(), 2, model.ReasonHangcheck)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/resets/" + rr.ID)
	if err != nil {
		t.Fatalf("GET /v1/resets/%s: %v", rr.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var ev model.ResetEvent
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ev.ID != rr.ID {
		t.Errorf("ID = %q, want %q", ev.ID, rr.ID)
	}
	if ev.EngineName != "vcs0" {
		t.Errorf("EngineName = %q, want vcs0", ev.EngineName)
	}
	if ev.Outcome != model.OutcomeCompleted {
		t.Errorf("Outcome = %q, want %q", ev.Outcome, model.OutcomeCompleted)
	}
}

func TestGetResetNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/resets/nonexistent")
	if err != nil {
		t.Fatalf("GET /v1/resets/nonexistent: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
