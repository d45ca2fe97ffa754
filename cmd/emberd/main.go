package main

import (
	"log"
	"os"

	"github.com/seantiz/ember/internal/api"
	"github.com/seantiz/ember/internal/config"
	"github.com/seantiz/ember/internal/descriptor"
	"github.com/seantiz/ember/internal/firmware"
	"github.com/seantiz/ember/internal/mmio"
	"github.com/seantiz/ember/internal/model"
	"github.com/seantiz/ember/internal/reset"
	"github.com/seantiz/ember/internal/store"
)

// Firmware-visible address space layout.
const (
	descriptorBase = 0x00100000
	goldenCtxBase  = 0x00800000
)

// renderWorkarounds are the register fixups reapplied after every
// render-class engine reset.
var renderWorkarounds = []descriptor.WorkaroundReg{
	{Offset: 0x7004, Value: 0x0000a248},
	{Offset: 0x7300, Value: 0x00008450},
	{Offset: 0xe4f0, Value: 0x10000000},
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("emberd: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"engine_set", cfg.EngineSetPath,
	)

	engines, err := config.LoadEngineSet(cfg.EngineSetPath)
	if err != nil {
		log.Fatalf("failed to load engine set: %v", err)
	}

	bus := mmio.NewSimBus()
	seedPowerOnState(bus, engines)

	alloc := mmio.NewAllocator(descriptorBase, 2*descriptor.BlobSize)
	region, err := alloc.Alloc(descriptor.BlobSize)
	if err != nil {
		log.Fatalf("failed to allocate descriptor region: %v", err)
	}

	builder := descriptor.NewBuilder(bus, engines, renderWorkarounds, logger)
	blob, err := builder.Build(region, goldenCtxBase)
	if err != nil {
		log.Fatalf("failed to build descriptor: %v", err)
	}
	logger.Info("descriptor published",
		"base", blob.Base(),
		"size", len(blob.Bytes()),
		"resume_address", blob.Header.ResumeAddress,
	)

	fw := firmware.New(bus, nil)
	if err := fw.LoadDescriptor(blob.Bytes(), blob.Base()); err != nil {
		log.Fatalf("firmware rejected descriptor: %v", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	broker := reset.NewBroker()
	ctrl := reset.NewController(engines, fw, db, broker, logger)

	srv := api.NewServer(cfg.ListenAddr, db, ctrl, broker, blob, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// seedPowerOnState writes each engine's power-on register values so the
// descriptor build snapshots a live machine rather than an all-zero bus.
func seedPowerOnState(bus *mmio.SimBus, engines []model.Engine) {
	for _, eng := range engines {
		bus.Write32(mmio.ModeRegister(eng.MMIOBase), 0x0040)
		bus.Write32(mmio.IMRRegister(eng.MMIOBase), 0xffff0000)
		bus.Write32(mmio.HWSRegister(eng.MMIOBase), 0x00a00000+uint32(eng.ID)*mmio.PageSize)
		for i := 0; i < descriptor.WhitelistSlots; i++ {
			bus.Write32(mmio.NonPrivRegister(eng.MMIOBase, i), eng.MMIOBase+0x180+uint32(i)*4)
		}
	}
}
