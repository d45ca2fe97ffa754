package mmio

// Per-engine register offsets, relative to the engine's MMIO base.
const (
	RingHWSPGA         uint32 = 0x080 // hardware status page address
	RingIMR            uint32 = 0x0a8 // interrupt mask
	RingMode           uint32 = 0x29c // execution-list mode control (masked register)
	RingForceToNonPriv uint32 = 0x4d0 // privileged-register whitelist window, 12 slots
	RingScratch        uint32 = 0x1f0 // scratch, used by the simulated submission path
)

// EngineWindow is the size of one engine's register window. A per-engine
// reset wipes exactly this range and nothing outside it.
const EngineWindow uint32 = 0x1000

// RingMode bits. The register is masked: the upper 16 bits select which of
// the lower 16 take effect on a write.
const (
	RunListEnable     uint32 = 1 << 15 // execution-list submission mode
	InterruptSteering uint32 = 1 << 4  // route engine interrupts to the firmware
	MaskedEnableAll   uint32 = 0xFFFF << 16
)

// HWSRegister returns the hardware-status-page register for an engine base.
func HWSRegister(base uint32) uint32 { return base + RingHWSPGA }

// ModeRegister returns the execution-mode register for an engine base.
func ModeRegister(base uint32) uint32 { return base + RingMode }

// IMRRegister returns the interrupt-mask register for an engine base.
func IMRRegister(base uint32) uint32 { return base + RingIMR }

// NonPrivRegister returns the i-th whitelist slot for an engine base.
func NonPrivRegister(base uint32, i int) uint32 {
	return base + RingForceToNonPriv + uint32(i)*4
}

// ScratchRegister returns the scratch register for an engine base.
func ScratchRegister(base uint32) uint32 { return base + RingScratch }
