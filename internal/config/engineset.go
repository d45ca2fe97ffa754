package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/seantiz/ember/internal/model"
)

type engineSetFile struct {
	Engine []engineEntry `toml:"engine"`
}

type engineEntry struct {
	Name        string `toml:"name"`
	Class       string `toml:"class"`
	MMIOBase    uint32 `toml:"mmio_base"`
	ContextSize uint32 `toml:"context_size"`
}

// LoadEngineSet reads a TOML engine-set file and returns the validated
// engine list. Engine IDs are assigned from file order. An empty path
// returns the built-in default set.
func LoadEngineSet(path string) ([]model.Engine, error) {
	if path == "" {
		return model.DefaultEngines(), nil
	}

	var file engineSetFile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return nil, fmt.Errorf("decode engine set %s: %w", path, err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("engine set %s: unknown key %q", path, undec[0].String())
	}

	engines := make([]model.Engine, len(file.Engine))
	for i, e := range file.Engine {
		engines[i] = model.Engine{
			ID:          i,
			Name:        e.Name,
			Class:       e.Class,
			MMIOBase:    e.MMIOBase,
			ContextSize: e.ContextSize,
		}
	}

	if err := model.ValidateEngines(engines); err != nil {
		return nil, fmt.Errorf("engine set %s: %w", path, err)
	}
	return engines, nil
}
