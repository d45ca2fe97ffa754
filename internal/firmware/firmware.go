// Package firmware simulates the companion microcontroller that executes
// autonomous engine recovery. It consumes the published descriptor blob
// exactly as the real device would: by decoding the wire bytes, not by
// sharing host data structures.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/seantiz/ember/internal/descriptor"
	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
)

// ErrNoDescriptor is returned when a reset is requested before a
// descriptor blob has been loaded.
var ErrNoDescriptor = errors.New("firmware: no descriptor loaded")

// Microcontroller is the simulated recovery firmware. It owns no engine
// state beyond the register values it captures during a reset; everything
// it knows about engines comes from the descriptor.
type Microcontroller struct {
	bus *mmio.SimBus
	log *logrus.Logger

	mu    sync.Mutex
	img   *descriptor.Image
	saved map[int][]uint32 // captured save-current values, by engine id

	faultMu      sync.Mutex
	resetFault   error // injected failure for the next reset
	restoreFault error // injected failure for the next restore
}

// New creates a microcontroller attached to the given register bus. A nil
// logger silences firmware-side logging.
func New(bus *mmio.SimBus, log *logrus.Logger) *Microcontroller {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
		log.SetLevel(logrus.PanicLevel)
	}
	return &Microcontroller{
		bus:   bus,
		log:   log,
		saved: make(map[int][]uint32),
	}
}

// LoadDescriptor points the firmware at a published blob: data is the
// blob region's contents and base its firmware-visible address. The
// firmware decodes it once; the host must not touch the region afterwards.
func (m *Microcontroller) LoadDescriptor(data []byte, base uint32) error {
	img, err := descriptor.Parse(data, base)
	if err != nil {
		return fmt.Errorf("firmware: load descriptor: %w", err)
	}
	if !img.Policies.Valid {
		return errors.New("firmware: descriptor policy table not valid")
	}

	m.mu.Lock()
	m.img = img
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"base":           fmt.Sprintf("%#x", base),
		"resume_address": fmt.Sprintf("%#x", img.Header.ResumeAddress),
	}).Info("descriptor loaded")
	return nil
}

// ResetEngine pulses exactly one engine's reset domain. Before the pulse
// it captures the live value of every save-current entry in that engine's
// save list; the captured values are consumed by the following
// RestoreEngine. Blocks until the (simulated) hardware confirms the reset.
func (m *Microcontroller) ResetEngine(ctx context.Context, eng model.Engine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.takeFault(&m.resetFault); err != nil {
		return fmt.Errorf("firmware: reset %s: %w", eng.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.img == nil {
		return ErrNoDescriptor
	}

	list := m.img.SaveLists[eng.ID]
	saved := make([]uint32, len(list))
	for i, entry := range list {
		if entry.Flags&descriptor.FlagSaveCurrent != 0 {
			saved[i] = m.bus.Read32(entry.Offset)
		}
	}
	m.saved[eng.ID] = saved

	m.bus.ClearRange(eng.MMIOBase, mmio.EngineWindow)

	m.log.WithField("engine", eng.Name).Debug("engine reset domain pulsed")
	return nil
}

// RestoreEngine replays the engine's save list in descriptor order:
// save-current entries get the value captured by the preceding
// ResetEngine, save-default entries get the value stored in the
// descriptor. The whitelist snapshot is written back into the engine's
// privileged-register window.
func (m *Microcontroller) RestoreEngine(ctx context.Context, eng model.Engine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.takeFault(&m.restoreFault); err != nil {
		return fmt.Errorf("firmware: restore %s: %w", eng.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.img == nil {
		return ErrNoDescriptor
	}

	saved := m.saved[eng.ID]
	for i, entry := range m.img.SaveLists[eng.ID] {
		if entry.Flags&descriptor.FlagEngineReset == 0 {
			continue
		}
		value := entry.Value
		if entry.Flags&descriptor.FlagSaveCurrent != 0 && i < len(saved) {
			value = saved[i]
		}
		m.bus.Write32(entry.Offset, value)
	}
	delete(m.saved, eng.ID)

	wl := m.img.Whitelists[eng.ID]
	for i, v := range wl.Values {
		m.bus.Write32(wl.Base+uint32(i)*4, v)
	}

	m.log.WithFields(logrus.Fields{
		"engine":    eng.Name,
		"registers": len(m.img.SaveLists[eng.ID]),
	}).Debug("engine state restored")
	return nil
}

// InjectResetFault makes the next ResetEngine fail with err.
func (m *Microcontroller) InjectResetFault(err error) {
	m.faultMu.Lock()
	m.resetFault = err
	m.faultMu.Unlock()
}

// InjectRestoreFault makes the next RestoreEngine fail with err.
func (m *Microcontroller) InjectRestoreFault(err error) {
	m.faultMu.Lock()
	m.restoreFault = err
	m.faultMu.Unlock()
}

func (m *Microcontroller) takeFault(slot *error) error {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	err := *slot
	*slot = nil
	return err
}
