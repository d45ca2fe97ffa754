package descriptor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
)

// Wire layout of the descriptor blob. All fields are little-endian 32-bit
// words at fixed positions, so the blob is byte-stable across rebuilds:
//
//	header | policy table | per-engine reg state | reg-state buffer
//
// The per-engine reg state holds each engine's whitelist followed by its
// save list, both padded to capacity.
const (
	headerSize = 4 + model.MaxEngines*4 + 12

	policyCellSize  = 16
	policyTableSize = NumPriorities*model.MaxEngines*policyCellSize + 16

	regEntrySize       = 12
	regSetSize         = MaxSaveListEntries*regEntrySize + 4
	whitelistEntrySize = 8 + WhitelistSlots*4
	engineRegStateSize = whitelistEntrySize + regSetSize
	regStateSize       = model.MaxEngines * engineRegStateSize

	// Scratch pages the firmware uses to park saved register state.
	saveSpacePages     = 10
	regStateBufferSize = saveSpacePages * mmio.PageSize

	// BlobSize is the total size of the descriptor blob.
	BlobSize = headerSize + policyTableSize + regStateSize + regStateBufferSize

	// Intra-blob byte offsets of each sub-structure.
	policyTableOffset    = headerSize
	regSetOffset         = policyTableOffset + policyTableSize
	regStateBufferOffset = regSetOffset + regStateSize
)

var (
	// ErrTruncatedBlob is returned by Parse when the data is shorter than
	// a full descriptor blob.
	ErrTruncatedBlob = errors.New("descriptor: truncated blob")
	// ErrBadLayout is returned by Parse when the header offsets do not
	// describe the expected non-overlapping layout.
	ErrBadLayout = errors.New("descriptor: header offsets do not match layout")
)

// Header is the firmware-visible descriptor header. The three offsets are
// absolute firmware addresses (blob base + intra-blob offset).
type Header struct {
	ResumeAddress        uint32
	EngineStateSize      [model.MaxEngines]uint32
	PolicyTableOffset    uint32
	RegStateBufferOffset uint32
	RegSetOffset         uint32
}

func encodeHeader(buf []byte, h Header) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], h.ResumeAddress)
	for i, sz := range h.EngineStateSize {
		le.PutUint32(buf[4+i*4:], sz)
	}
	n := 4 + model.MaxEngines*4
	le.PutUint32(buf[n:], h.PolicyTableOffset)
	le.PutUint32(buf[n+4:], h.RegStateBufferOffset)
	le.PutUint32(buf[n+8:], h.RegSetOffset)
}

func decodeHeader(buf []byte) Header {
	le := binary.LittleEndian
	var h Header
	h.ResumeAddress = le.Uint32(buf[0:])
	for i := range h.EngineStateSize {
		h.EngineStateSize[i] = le.Uint32(buf[4+i*4:])
	}
	n := 4 + model.MaxEngines*4
	h.PolicyTableOffset = le.Uint32(buf[n:])
	h.RegStateBufferOffset = le.Uint32(buf[n+4:])
	h.RegSetOffset = le.Uint32(buf[n+8:])
	return h
}

// encodePolicies writes the policy table. The validity word is written
// last so a reader that observes it set sees every cell populated.
func encodePolicies(buf []byte, t *PolicyTable) {
	le := binary.LittleEndian
	for p := 0; p < NumPriorities; p++ {
		for e := 0; e < model.MaxEngines; e++ {
			cell := t.Cells[p][e]
			off := (p*model.MaxEngines + e) * policyCellSize
			le.PutUint32(buf[off:], cell.ExecutionQuantum)
			le.PutUint32(buf[off+4:], cell.PreemptionTime)
			le.PutUint32(buf[off+8:], cell.FaultTime)
			le.PutUint32(buf[off+12:], cell.Flags)
		}
	}

	n := NumPriorities * model.MaxEngines * policyCellSize
	le.PutUint32(buf[n:], t.PromoteTime)
	le.PutUint32(buf[n+4:], t.MaxWorkItems)
	le.PutUint32(buf[n+12:], 0) // reserved

	var valid uint32
	if t.Valid {
		valid = 1
	}
	le.PutUint32(buf[n+8:], valid)
}

func decodePolicies(buf []byte) PolicyTable {
	le := binary.LittleEndian
	var t PolicyTable
	for p := 0; p < NumPriorities; p++ {
		for e := 0; e < model.MaxEngines; e++ {
			off := (p*model.MaxEngines + e) * policyCellSize
			t.Cells[p][e] = Policy{
				ExecutionQuantum: le.Uint32(buf[off:]),
				PreemptionTime:   le.Uint32(buf[off+4:]),
				FaultTime:        le.Uint32(buf[off+8:]),
				Flags:            le.Uint32(buf[off+12:]),
			}
		}
	}
	n := NumPriorities * model.MaxEngines * policyCellSize
	t.PromoteTime = le.Uint32(buf[n:])
	t.MaxWorkItems = le.Uint32(buf[n+4:])
	t.Valid = le.Uint32(buf[n+8:]) != 0
	return t
}

// encodeEngineRegState writes one engine's whitelist followed by its save
// list into a 360-byte slot. Unused entries stay zero so the layout is
// identical regardless of list length.
func encodeEngineRegState(buf []byte, wl Whitelist, list *SaveList) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], wl.Base)
	le.PutUint32(buf[4:], WhitelistSlots)
	for i, v := range wl.Values {
		le.PutUint32(buf[8+i*4:], v)
	}

	regs := buf[whitelistEntrySize:]
	for i, entry := range list.Entries() {
		off := i * regEntrySize
		le.PutUint32(regs[off:], entry.Offset)
		le.PutUint32(regs[off+4:], entry.Flags)
		le.PutUint32(regs[off+8:], entry.Value)
	}
	le.PutUint32(regs[MaxSaveListEntries*regEntrySize:], uint32(list.Len()))
}

func decodeEngineRegState(buf []byte) (Whitelist, []RegisterEntry) {
	le := binary.LittleEndian
	var wl Whitelist
	wl.Base = le.Uint32(buf[0:])
	count := le.Uint32(buf[4:])
	if count > WhitelistSlots {
		count = WhitelistSlots
	}
	for i := 0; i < int(count); i++ {
		wl.Values[i] = le.Uint32(buf[8+i*4:])
	}

	regs := buf[whitelistEntrySize:]
	n := le.Uint32(regs[MaxSaveListEntries*regEntrySize:])
	if n > MaxSaveListEntries {
		n = MaxSaveListEntries
	}
	entries := make([]RegisterEntry, n)
	for i := range entries {
		off := i * regEntrySize
		entries[i] = RegisterEntry{
			Offset: le.Uint32(regs[off:]),
			Flags:  le.Uint32(regs[off+4:]),
			Value:  le.Uint32(regs[off+8:]),
		}
	}
	return wl, entries
}

// Image is the firmware-side decoding of a published descriptor blob.
type Image struct {
	Header     Header
	Policies   PolicyTable
	Whitelists [model.MaxEngines]Whitelist
	SaveLists  [model.MaxEngines][]RegisterEntry
}

// Parse decodes a published blob as the firmware would: data is the
// region's contents and base its firmware-visible address. The header's
// absolute offsets are checked against the expected layout before any
// sub-structure is read.
func Parse(data []byte, base uint32) (*Image, error) {
	if len(data) < BlobSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrTruncatedBlob, len(data), BlobSize)
	}

	img := &Image{Header: decodeHeader(data)}

	if img.Header.PolicyTableOffset != base+policyTableOffset ||
		img.Header.RegSetOffset != base+regSetOffset ||
		img.Header.RegStateBufferOffset != base+regStateBufferOffset {
		return nil, ErrBadLayout
	}

	img.Policies = decodePolicies(data[policyTableOffset : policyTableOffset+policyTableSize])

	for e := 0; e < model.MaxEngines; e++ {
		slot := regSetOffset + e*engineRegStateSize
		img.Whitelists[e], img.SaveLists[e] = decodeEngineRegState(data[slot : slot+engineRegStateSize])
	}

	return img, nil
}
