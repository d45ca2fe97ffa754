package descriptor

import (
	"fmt"
	"log/slog"

	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
)

// The firmware resumes a reinitialised engine partway into the default
// context image, past the shared-data page and the first 80 words of
// execution-list state; it manages that header itself.
const (
	lrHWContextSize = 80 * 4
	headerSkip      = mmio.PageSize + lrHWContextSize

	// Pages of per-context hardware status the firmware excludes from the
	// restorable state it reads back.
	pphwspPages = 1
	skippedSize = pphwspPages*mmio.PageSize + headerSkip
)

// Builder constructs descriptor blobs. It reads live register values
// through the bus at build time; the blob it produces is immutable.
type Builder struct {
	bus         mmio.Bus
	engines     []model.Engine
	workarounds []WorkaroundReg
	logger      *slog.Logger
}

// NewBuilder creates a builder for the given engine set. workarounds are
// the render-class registers the firmware must reapply after reset.
func NewBuilder(bus mmio.Bus, engines []model.Engine, workarounds []WorkaroundReg, logger *slog.Logger) *Builder {
	return &Builder{
		bus:         bus,
		engines:     engines,
		workarounds: workarounds,
		logger:      logger,
	}
}

// Blob is a fully built, published descriptor. Everything it exposes is
// read-only: the firmware reads the region bytes, the host reads the
// decoded fields.
type Blob struct {
	Header     Header
	Policies   PolicyTable
	Whitelists []Whitelist
	SaveLists  []*SaveList

	region *mmio.Region
}

// Base returns the blob's firmware-visible base address.
func (b *Blob) Base() uint32 { return b.region.Base() }

// Bytes returns the published region contents for the firmware side.
func (b *Blob) Bytes() []byte { return b.region.Bytes() }

// Build lays the descriptor out in region and returns the published blob.
// defaultCtxAddr is the firmware-visible address of the pinned default
// execution context. The region is mapped for the duration of the build
// and released before the blob is returned; a failed build never leaves a
// partially written blob behind.
func (b *Builder) Build(region *mmio.Region, defaultCtxAddr uint32) (*Blob, error) {
	if err := model.ValidateEngines(b.engines); err != nil {
		return nil, fmt.Errorf("build descriptor: %w", err)
	}
	if region.Size() < BlobSize {
		return nil, fmt.Errorf("build descriptor: region holds %d bytes, need %d", region.Size(), BlobSize)
	}
	for _, eng := range b.engines {
		if eng.ContextSize <= skippedSize {
			return nil, fmt.Errorf("build descriptor: engine %s context size %d does not cover the %d skipped bytes",
				eng.Name, eng.ContextSize, skippedSize)
		}
	}

	buf, err := region.Map()
	if err != nil {
		return nil, fmt.Errorf("build descriptor: map region: %w", err)
	}
	defer region.Unmap()

	blob := &Blob{region: region}

	blob.Policies.Init()
	encodePolicies(buf[policyTableOffset:policyTableOffset+policyTableSize], &blob.Policies)

	blob.Whitelists = make([]Whitelist, len(b.engines))
	blob.SaveLists = make([]*SaveList, len(b.engines))
	for i, eng := range b.engines {
		blob.SaveLists[i] = buildSaveList(b.bus, eng, b.workarounds, b.logger)
		blob.Whitelists[i] = snapshotWhitelist(b.bus, eng)

		slot := regSetOffset + eng.ID*engineRegStateSize
		encodeEngineRegState(buf[slot:slot+engineRegStateSize], blob.Whitelists[i], blob.SaveLists[i])
	}

	base := region.Base()
	blob.Header = Header{
		ResumeAddress:        defaultCtxAddr + headerSkip,
		PolicyTableOffset:    base + policyTableOffset,
		RegStateBufferOffset: base + regStateBufferOffset,
		RegSetOffset:         base + regSetOffset,
	}
	for _, eng := range b.engines {
		blob.Header.EngineStateSize[eng.ID] = eng.ContextSize - skippedSize
	}
	encodeHeader(buf[:headerSize], blob.Header)

	b.logger.Info("descriptor blob built",
		"base", fmt.Sprintf("%#x", base),
		"size", BlobSize,
		"engines", len(b.engines),
	)

	return blob, nil
}
