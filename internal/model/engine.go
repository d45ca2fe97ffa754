package model

import "fmt"

// Engine class constants.
const (
	ClassRender       = "render"
	ClassCopy         = "copy"
	ClassVideo        = "video"
	ClassVideoEnhance = "video-enhance"
)

// MaxEngines is the number of engine slots in the firmware descriptor.
// The descriptor always reserves this many slots so its byte layout does
// not depend on how many engines the platform actually exposes.
const MaxEngines = 5

// Engine is the immutable identity of one hardware execution unit.
// Engines are enumerated once at startup and shared read-only; no
// component owns them, everything references them by ID.
type Engine struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Class       string `json:"class"`
	MMIOBase    uint32 `json:"mmio_base"`
	ContextSize uint32 `json:"context_size"`
}

// DefaultEngines returns the built-in four-engine set used when no
// engine-set file is configured.
func DefaultEngines() []Engine {
	return []Engine{
		{ID: 0, Name: "rcs0", Class: ClassRender, MMIOBase: 0x02000, ContextSize: 22 * 4096},
		{ID: 1, Name: "bcs0", Class: ClassCopy, MMIOBase: 0x22000, ContextSize: 5 * 4096},
		{ID: 2, Name: "vcs0", Class: ClassVideo, MMIOBase: 0x12000, ContextSize: 5 * 4096},
		{ID: 3, Name: "vecs0", Class: ClassVideoEnhance, MMIOBase: 0x1a000, ContextSize: 5 * 4096},
	}
}

// ValidateEngines checks that an engine set is usable: IDs dense and
// contiguous from 0, names unique, and no more engines than the
// descriptor has slots for.
func ValidateEngines(engines []Engine) error {
	if len(engines) == 0 {
		return fmt.Errorf("engine set is empty")
	}
	if len(engines) > MaxEngines {
		return fmt.Errorf("engine set has %d engines, descriptor supports at most %d", len(engines), MaxEngines)
	}

	names := make(map[string]bool, len(engines))
	for i, e := range engines {
		if e.ID != i {
			return fmt.Errorf("engine %q has id %d, want %d (ids must be dense and contiguous)", e.Name, e.ID, i)
		}
		if e.Name == "" {
			return fmt.Errorf("engine %d has no name", i)
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate engine name %q", e.Name)
		}
		names[e.Name] = true
	}
	return nil
}
