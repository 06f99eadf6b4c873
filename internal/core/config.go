package core

import "time"

// Physical constants for the reference infusion line.
const (
	EquipmentTareG  = 12.0
	EmptyBagTareG   = 60.0
	TotalTareG      = EquipmentTareG + EmptyBagTareG
	DefaultDropsMl  = 20.0
	DefaultDensity  = 1.0
	WpdClampLowGpd  = 0.04
	WpdClampHighGpd = 0.06
	WpdGateLowGpd   = 0.01
	WpdGateHighGpd  = 0.20
	DebounceMs      = 50

	FastConvergenceDur = 60 * time.Second
	NoDripTimeout      = 10 * time.Second
	StallCheckInterval = 10 * time.Second
	MainTickPeriod     = 1 * time.Second

	WpdLongCalDuration  = 60 * time.Second
	WpdLongCalMinDrops  = 30
	WpdCalibrateMinDrop = 5
	WpdCalibrateMinMass = 0.01

	DropRingMinCapacity = 8
	DropRingCapacity    = 20

	MaxPersistentInitFailures = 3
)

// Config bundles the runtime-tunable knobs of the core. Mirrors the
// Config/DefaultConfig convention used for the filter packages.
type Config struct {
	TickPeriod          time.Duration
	FastConvergenceDur  time.Duration
	NoDripTimeout       time.Duration
	StallCheckInterval  time.Duration
	DropRingCapacity    int
	TargetEmptyG        float64
	WpdLongCalDuration  time.Duration
	WpdLongCalMinDrops  int
}

// DefaultConfig returns the reference tunings.
func DefaultConfig() Config {
	return Config{
		TickPeriod:         MainTickPeriod,
		FastConvergenceDur: FastConvergenceDur,
		NoDripTimeout:      NoDripTimeout,
		StallCheckInterval: StallCheckInterval,
		DropRingCapacity:   DropRingCapacity,
		TargetEmptyG:       0,
		WpdLongCalDuration: WpdLongCalDuration,
		WpdLongCalMinDrops: WpdLongCalMinDrops,
	}
}
