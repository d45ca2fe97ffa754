package api

import (
	"net/http"

	"github.com/seantiz/ember/internal/descriptor"
)

// descriptorResponse is the JSON response for GET /v1/descriptor: the
// published blob's layout as the firmware sees it.
type descriptorResponse struct {
	Base            uint32              `json:"base"`
	Size            int                 `json:"size"`
	ResumeAddress   uint32              `json:"resume_address"`
	PolicyOffset    uint32              `json:"policy_table_offset"`
	RegSetOffset    uint32              `json:"reg_set_offset"`
	RegStateOffset  uint32              `json:"reg_state_buffer_offset"`
	EngineStateSize []uint32            `json:"engine_state_size"`
	SaveLists       []saveListResponse  `json:"save_lists"`
	Whitelists      []whitelistResponse `json:"whitelists"`
}

type saveListResponse struct {
	Entries int `json:"entries"`
	Dropped int `json:"dropped"`
}

type whitelistResponse struct {
	Base  uint32 `json:"base"`
	Slots int    `json:"slots"`
}

func (s *Server) handleGetDescriptor(w http.ResponseWriter, r *http.Request) {
	b := s.blob

	resp := descriptorResponse{
		Base:            b.Base(),
		Size:            len(b.Bytes()),
		ResumeAddress:   b.Header.ResumeAddress,
		PolicyOffset:    b.Header.PolicyTableOffset,
		RegSetOffset:    b.Header.RegSetOffset,
		RegStateOffset:  b.Header.RegStateBufferOffset,
		EngineStateSize: b.Header.EngineStateSize[:],
	}
	for _, l := range b.SaveLists {
		resp.SaveLists = append(resp.SaveLists, saveListResponse{
			Entries: l.Len(),
			Dropped: l.Dropped(),
		})
	}
	for _, wl := range b.Whitelists {
		resp.Whitelists = append(resp.Whitelists, whitelistResponse{
			Base:  wl.Base,
			Slots: descriptor.WhitelistSlots,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}
