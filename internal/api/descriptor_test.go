package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seantiz/ember/internal/descriptor"
	"github.com/seantiz/ember/internal/model"
)

func TestGetDescriptor(t *testing.T) {
	srv, _ := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/descriptor")
	if err != nil {
		t.Fatalf("GET /v1/descriptor: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out descriptorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if out.Size != descriptor.BlobSize {
		t.Errorf("Size = %d, want %d", out.Size, descriptor.BlobSize)
	}
	if out.ResumeAddress == 0 {
		t.Error("ResumeAddress = 0, want nonzero")
	}
	if out.PolicyOffset <= out.Base {
		t.Errorf("PolicyOffset = %#x, want above base %#x", out.PolicyOffset, out.Base)
	}
	if len(out.EngineStateSize) != model.MaxEngines {
		t.Errorf("len(EngineStateSize) = %d, want %d", len(out.EngineStateSize), model.MaxEngines)
	}
	if len(out.SaveLists) != len(model.DefaultEngines()) {
		t.Errorf("len(SaveLists) = %d, want %d", len(out.SaveLists), len(model.DefaultEngines()))
	}
	for i, l := range out.SaveLists {
		if l.Entries == 0 {
			t.Errorf("SaveLists[%d].Entries = 0, want nonzero", i)
		}
		if l.Dropped != 0 {
			t.Errorf("SaveLists[%d].Dropped = %d, want 0", i, l.Dropped)
		}
	}
}
