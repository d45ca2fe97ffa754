// Package descriptor builds the binary blob published to the recovery
// firmware: per-engine register save/restore lists, the privileged-register
// whitelists, the scheduling policy table, and the header that tells the
// firmware where each piece lives.
package descriptor

import (
	"log/slog"

	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
)

// RegisterEntry flag bits, as consumed by the firmware.
const (
	FlagEngineReset uint32 = 1 << 0 // replay this entry on engine reset
	FlagSaveCurrent uint32 = 1 << 1 // firmware captures the live value before reset
	FlagSaveDefault uint32 = 1 << 2 // firmware restores the value stored in the entry
)

// MaxSaveListEntries is the per-engine save-list capacity.
const MaxSaveListEntries = 25

// WhitelistSlots is the number of privileged-register values snapshotted
// per engine.
const WhitelistSlots = 12

// RegisterEntry is one register the firmware saves and restores across an
// engine reset. Value is meaningful only for save-default entries.
type RegisterEntry struct {
	Offset uint32
	Flags  uint32
	Value  uint32
}

// SaveList is a bounded, append-only sequence of register entries.
// Insertion order is preserved; the firmware replays entries in exactly
// this order. Adds past capacity are dropped and counted, never treated
// as a build failure, and never disturb earlier entries.
type SaveList struct {
	entries []RegisterEntry
	dropped int
}

// Add appends an entry if the list is below capacity. It returns false
// when the entry was dropped.
func (l *SaveList) Add(offset, flags, value uint32) bool {
	if len(l.entries) >= MaxSaveListEntries {
		l.dropped++
		return false
	}
	l.entries = append(l.entries, RegisterEntry{Offset: offset, Flags: flags, Value: value})
	return true
}

// Len returns the number of entries successfully added.
func (l *SaveList) Len() int { return len(l.entries) }

// Dropped returns how many adds were rejected at capacity.
func (l *SaveList) Dropped() int { return l.dropped }

// Entries returns the entries in insertion order. The returned slice is
// the list's backing storage; callers must not modify it.
func (l *SaveList) Entries() []RegisterEntry { return l.entries }

// Whitelist is the per-engine privileged-register window: its base offset
// and a one-time snapshot of the values held in its slots at build time.
type Whitelist struct {
	Base   uint32
	Values [WhitelistSlots]uint32
}

// WorkaroundReg is a caller-supplied register/value pair the firmware must
// reapply after resetting a render-class engine.
type WorkaroundReg struct {
	Offset uint32
	Value  uint32
}

// buildSaveList assembles one engine's save list in the fixed order the
// firmware expects: status page, execution mode, interrupt mask, then (for
// render engines only) the workaround registers.
func buildSaveList(bus mmio.Bus, eng model.Engine, workarounds []WorkaroundReg, logger *slog.Logger) *SaveList {
	list := &SaveList{}

	list.Add(mmio.HWSRegister(eng.MMIOBase), FlagEngineReset|FlagSaveCurrent, 0)

	// The mode register is masked, and the firmware mishandles masked
	// registers when asked to capture them live. Store the value to
	// restore instead: the current value with execution-list mode and
	// firmware interrupt steering forced on, and every sub-field's mask
	// bit set so the write takes effect.
	mode := bus.Read32(mmio.ModeRegister(eng.MMIOBase)) |
		mmio.RunListEnable | mmio.InterruptSteering | mmio.MaskedEnableAll
	list.Add(mmio.ModeRegister(eng.MMIOBase), FlagEngineReset|FlagSaveDefault, mode)

	list.Add(mmio.IMRRegister(eng.MMIOBase), FlagEngineReset|FlagSaveCurrent, 0)

	if eng.Class == model.ClassRender {
		for _, wa := range workarounds {
			list.Add(wa.Offset, FlagEngineReset|FlagSaveDefault, wa.Value)
		}
	}

	if list.Dropped() > 0 {
		logger.Warn("register save list truncated",
			"engine", eng.Name,
			"kept", list.Len(),
			"dropped", list.Dropped(),
		)
	}
	logger.Debug("register save list built", "engine", eng.Name, "count", list.Len())

	return list
}

// snapshotWhitelist captures an engine's privileged-register window. The
// snapshot is taken once at build time and never revalidated.
func snapshotWhitelist(bus mmio.Bus, eng model.Engine) Whitelist {
	wl := Whitelist{Base: mmio.NonPrivRegister(eng.MMIOBase, 0)}
	for i := range wl.Values {
		wl.Values[i] = bus.Read32(mmio.NonPrivRegister(eng.MMIOBase, i))
	}
	return wl
}
