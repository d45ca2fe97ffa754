package descriptor

import (
	"bytes"
	"errors"
	"testing"

	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
)

const testCtxAddr uint32 = 0x00800000

func buildTestBlob(t *testing.T, bus mmio.Bus) *Blob {
	t.Helper()
	alloc := mmio.NewAllocator(0x10000, 2*BlobSize)
	region, err := alloc.Alloc(BlobSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	builder := NewBuilder(bus, model.DefaultEngines(), []WorkaroundReg{{Offset: 0x7004, Value: 0x1}}, discardLogger())
	blob, err := builder.Build(region, testCtxAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return blob
}

func TestBlobOffsetsStrictlyIncreasingAndNonOverlapping(t *testing.T) {
	blob := buildTestBlob(t, mmio.NewSimBus())
	base := blob.Base()

	// Each sub-structure's [offset, offset+size) interval, in layout order.
	intervals := []struct {
		name       string
		start, end uint32
	}{
		{"header", base, base + headerSize},
		{"policy table", blob.Header.PolicyTableOffset, blob.Header.PolicyTableOffset + policyTableSize},
		{"reg state", blob.Header.RegSetOffset, blob.Header.RegSetOffset + regStateSize},
		{"reg state buffer", blob.Header.RegStateBufferOffset, blob.Header.RegStateBufferOffset + regStateBufferSize},
	}

	for i := 1; i < len(intervals); i++ {
		prev, cur := intervals[i-1], intervals[i]
		if cur.start <= prev.start {
			t.Errorf("%s offset %#x not strictly above %s offset %#x", cur.name, cur.start, prev.name, prev.start)
		}
		if cur.start < prev.end {
			t.Errorf("%s [%#x,%#x) overlaps %s ending at %#x", cur.name, cur.start, cur.end, prev.name, prev.end)
		}
	}

	regionEnd := base + blob.region.Size()
	for _, iv := range intervals {
		if iv.start < base || iv.end > regionEnd {
			t.Errorf("%s [%#x,%#x) outside backing region [%#x,%#x)", iv.name, iv.start, iv.end, base, regionEnd)
		}
	}
}

func TestBlobResumeAddress(t *testing.T) {
	blob := buildTestBlob(t, mmio.NewSimBus())

	want := testCtxAddr + mmio.PageSize + 80*4
	if blob.Header.ResumeAddress != want {
		t.Errorf("resume address = %#x, want %#x (context + page + 80 words)", blob.Header.ResumeAddress, want)
	}
}

func TestBlobRestorableStateSizes(t *testing.T) {
	blob := buildTestBlob(t, mmio.NewSimBus())

	for _, eng := range model.DefaultEngines() {
		want := eng.ContextSize - (pphwspPages*mmio.PageSize + headerSkip)
		if got := blob.Header.EngineStateSize[eng.ID]; got != want {
			t.Errorf("%s restorable state size = %d, want %d", eng.Name, got, want)
		}
	}
	// Unpopulated engine slots stay zero.
	for id := len(model.DefaultEngines()); id < model.MaxEngines; id++ {
		if blob.Header.EngineStateSize[id] != 0 {
			t.Errorf("unused slot %d has state size %d", id, blob.Header.EngineStateSize[id])
		}
	}
}

func TestBlobParseRoundTrip(t *testing.T) {
	bus := mmio.NewSimBus()
	engines := model.DefaultEngines()
	for _, eng := range engines {
		bus.Write32(mmio.ModeRegister(eng.MMIOBase), uint32(0x40+eng.ID))
		for i := 0; i < WhitelistSlots; i++ {
			bus.Write32(mmio.NonPrivRegister(eng.MMIOBase, i), uint32(eng.ID*100+i))
		}
	}

	blob := buildTestBlob(t, bus)

	img, err := Parse(blob.Bytes(), blob.Base())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if img.Header != blob.Header {
		t.Errorf("parsed header differs:\n got %+v\nwant %+v", img.Header, blob.Header)
	}
	if !img.Policies.Valid {
		t.Error("parsed policy table not valid")
	}

	for _, eng := range engines {
		if img.Whitelists[eng.ID] != blob.Whitelists[eng.ID] {
			t.Errorf("%s whitelist differs after parse", eng.Name)
		}
		want := blob.SaveLists[eng.ID].Entries()
		got := img.SaveLists[eng.ID]
		if len(got) != len(want) {
			t.Fatalf("%s save list length = %d, want %d", eng.Name, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s save list entry %d = %+v, want %+v", eng.Name, i, got[i], want[i])
			}
		}
	}
}

func TestBlobByteStableAcrossRebuilds(t *testing.T) {
	seed := func() *mmio.SimBus {
		bus := mmio.NewSimBus()
		for _, eng := range model.DefaultEngines() {
			bus.Write32(mmio.ModeRegister(eng.MMIOBase), 0x8000)
		}
		return bus
	}

	// Same bus state and same base address must produce identical bytes.
	first := buildTestBlob(t, seed())
	second := buildTestBlob(t, seed())

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("rebuild with identical inputs produced different blob bytes")
	}
}

func TestBuildFailsWithoutPartialBlob(t *testing.T) {
	alloc := mmio.NewAllocator(0x10000, 4*BlobSize)
	region, err := alloc.Alloc(BlobSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	// A context too small to cover the skipped header must abort the build.
	engines := model.DefaultEngines()
	engines[1].ContextSize = mmio.PageSize

	builder := NewBuilder(mmio.NewSimBus(), engines, nil, discardLogger())
	if _, err := builder.Build(region, testCtxAddr); err == nil {
		t.Fatal("Build accepted a context smaller than the skipped header")
	}

	// The failed build released the region and wrote nothing.
	buf, err := region.Map()
	if err != nil {
		t.Fatalf("region still mapped after failed build: %v", err)
	}
	defer region.Unmap()
	for _, b := range buf {
		if b != 0 {
			t.Fatal("failed build left bytes behind in the region")
		}
	}
}

func TestBuildRejectsMappedRegion(t *testing.T) {
	alloc := mmio.NewAllocator(0, BlobSize)
	region, err := alloc.Alloc(BlobSize)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if _, err := region.Map(); err != nil {
		t.Fatalf("Map: %v", err)
	}

	builder := NewBuilder(mmio.NewSimBus(), model.DefaultEngines(), nil, discardLogger())
	if _, err := builder.Build(region, testCtxAddr); !errors.Is(err, mmio.ErrAlreadyMapped) {
		t.Errorf("Build on held region: err = %v, want ErrAlreadyMapped", err)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	blob := buildTestBlob(t, mmio.NewSimBus())

	if _, err := Parse(blob.Bytes()[:100], blob.Base()); !errors.Is(err, ErrTruncatedBlob) {
		t.Errorf("short data: err = %v, want ErrTruncatedBlob", err)
	}

	// Parsing against the wrong base makes every absolute offset wrong.
	if _, err := Parse(blob.Bytes(), blob.Base()+mmio.PageSize); !errors.Is(err, ErrBadLayout) {
		t.Errorf("wrong base: err = %v, want ErrBadLayout", err)
	}
}
