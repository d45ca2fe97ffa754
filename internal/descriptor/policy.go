package descriptor

import "github.com/seantiz/ember/internal/model"

// NumPriorities is the number of client priority levels the firmware
// scheduler distinguishes.
const NumPriorities = 4

// Default scheduling parameters, in microseconds.
const (
	defaultExecutionQuantumUS uint32 = 1000000
	defaultPreemptionTimeUS   uint32 = 500000
	defaultFaultTimeUS        uint32 = 250000
	defaultPromoteTimeUS      uint32 = 500000
	defaultMaxWorkItems       uint32 = 15
)

// Policy is the scheduling parameters for one (priority, engine) cell.
type Policy struct {
	ExecutionQuantum uint32
	PreemptionTime   uint32
	FaultTime        uint32
	Flags            uint32
}

// PolicyTable is the full scheduling policy matrix handed to the firmware.
// Valid must only become true once every cell and table-level field is
// populated; the firmware relies on Valid implying a complete table.
type PolicyTable struct {
	Cells        [NumPriorities][model.MaxEngines]Policy
	PromoteTime  uint32
	MaxWorkItems uint32
	Valid        bool
}

// Init populates every cell with the default policy, then the table-level
// fields, and sets Valid as the very last step.
func (t *PolicyTable) Init() {
	for p := 0; p < NumPriorities; p++ {
		for e := 0; e < model.MaxEngines; e++ {
			t.Cells[p][e] = Policy{
				ExecutionQuantum: defaultExecutionQuantumUS,
				PreemptionTime:   defaultPreemptionTimeUS,
				FaultTime:        defaultFaultTimeUS,
				Flags:            0,
			}
		}
	}

	t.PromoteTime = defaultPromoteTimeUS
	t.MaxWorkItems = defaultMaxWorkItems

	t.Valid = true
}
