package core

import (
	"infusioncore/internal/fusion"
	"infusioncore/internal/kalman"
	"infusioncore/internal/wpd"
)

// Core wires the two Kalman filters, the WPD estimator, the fusion stage,
// drop-edge ingest, the calibration context, and the supervisory state
// machine into a single per-tick orchestrator. A Core is
// safe for one goroutine to drive via Tick/OnButton/OnCommand; OnDropEdge
// may be called concurrently from an interrupt-like context since DropRing
// guards its own state.
type Core struct {
	cfg Config
	sink EventSink

	weight      *kalman.Weight
	drip        *kalman.Drip
	wpdEst      *wpd.Estimator
	fusionStage *fusion.Stage
	ring        *DropRing
	calib       CalibrationContext

	saved savedR

	state                  State
	fastConvergenceUntilMs int64
	lastStallCheckMs       int64
	stallBaselineMs        int64
	initFailures           int

	calWindowOpen bool
	calStartMs    int64
	calStartDrops int64

	totalVolumeMl float64
	autoClamp     bool

	lastTickMs  int64
	havePrevRaw bool
	prevRawMassG float64
}

// NewCore constructs a Core with reference tunings and wires
// it to sink for event publication. sink may be nil for tests that don't
// care about the event stream.
func NewCore(cfg Config, sink EventSink) *Core {
	weight := kalman.NewWeight(0.05, 0.01, 0.25)
	drip := kalman.NewDrip(0.05, 0.01)
	wpdEst := wpd.New(wpd.DefaultConfig())
	fusionCfg := fusion.DefaultConfig()
	fusionStage := fusion.New(fusionCfg, 0)

	c := &Core{
		cfg:         cfg,
		sink:        sink,
		weight:      weight,
		drip:        drip,
		wpdEst:      wpdEst,
		fusionStage: fusionStage,
		ring:        NewDropRing(cfg.DropRingCapacity),
		state:       Initializing,
		saved: savedR{
			weight:     weight.GetR(),
			drip:       drip.GetR(),
			wpd:        wpdEst.GetR(),
			flowWeight: fusionCfg.RFlowWeight,
			flowDrip:   fusionCfg.RFlowDrip,
			remWeight:  fusionCfg.RRemWeight,
			remDrip:    fusionCfg.RRemDrip,
		},
	}
	return c
}

// OnDropEdge records a drop-sensor edge. Safe to call from any goroutine.
func (c *Core) OnDropEdge(nowMs int64) {
	c.ring.OnEdge(nowMs)
}

// OnButton handles a physical pushbutton event per the state machine's
// transition table. The Init button always (re)starts the reinitialization
// procedure; the Reset button clears InfusionError/Completed back to
// Normal, or retries reinitialization from InitError. Once three
// consecutive reinitialization failures have latched InitError, a
// short-press Reset retry is a no-op — only a long-press Reset counts as
// the distinct operator intervention that clears the failure count and
// retries.
func (c *Core) OnButton(kind ButtonKind, event ButtonEvent, nowMs int64, rawMassG float64, massOK bool) {
	switch kind {
	case ButtonInit:
		c.reinit(nowMs, rawMassG, massOK)
	case ButtonReset:
		switch c.state {
		case InfusionError:
			if event != ShortPress {
				return
			}
			c.autoClamp = false
			c.stallBaselineMs = nowMs
			c.setState(nowMs, Normal)
			c.emit(Event{Kind: EventInfusionAbnormalityCleared, TimeMs: nowMs})
		case Completed:
			if event != ShortPress {
				return
			}
			c.autoClamp = false
			c.setState(nowMs, Normal)
		case InitError:
			locked := c.initFailures >= MaxPersistentInitFailures
			if locked {
				if event != LongPress {
					return
				}
				c.initFailures = 0
			} else if event != ShortPress {
				return
			}
			c.reinit(nowMs, rawMassG, massOK)
		}
	}
}

// CommandResult reports whether a WebSocket command was accepted.
type CommandResult struct {
	Accepted bool
	Err      error
}

// OnCommand applies a parsed WebSocket command.
func (c *Core) OnCommand(cmd Command, nowMs int64) CommandResult {
	switch cmd.Kind {
	case CommandCalibrateWpdStart:
		c.wpdEst.Start()
		c.calWindowOpen = true
		c.calStartMs = nowMs
		c.calStartDrops = c.calib.CumulativeDrops
		c.emit(Event{Kind: EventWpdCalibrationStarted, TimeMs: nowMs})
		return CommandResult{Accepted: true}
	case CommandCalibrateWpdStop:
		c.wpdEst.Stop()
		c.calWindowOpen = false
		return CommandResult{Accepted: true}
	case CommandSetTotalVolume:
		if cmd.TotalVolumeMl <= 0 {
			return CommandResult{Accepted: false, Err: ErrInvalidCommand}
		}
		c.totalVolumeMl = cmd.TotalVolumeMl
		return CommandResult{Accepted: true}
	default:
		return CommandResult{Accepted: false, Err: ErrInvalidCommand}
	}
}

// Tick is the per-tick orchestrator. nowMs is the tick
// timestamp; rawMassG/massOK is this tick's weight-sensor reading (polled,
// not pushed — unlike the drop channel, which arrives via OnDropEdge).
// rawMassG is the gross reading, tare included, as reinit receives it; the
// fixed tare is subtracted before filtering.
func (c *Core) Tick(nowMs int64, rawMassG float64, massOK bool) Snapshot {
	dtS := 0.0
	if c.lastTickMs != 0 {
		dtS = float64(nowMs-c.lastTickMs) / 1000.0
	}
	c.lastTickMs = nowMs

	lastFiltered := c.weight.MassG()
	massIn := sanitizeRawMass(rawMassG-TotalTareG, massOK, lastFiltered)

	var rawFlowWeight float64
	if c.havePrevRaw && dtS > 1e-6 {
		rawFlowWeight = (c.prevRawMassG - massIn) / dtS
		if rawFlowWeight < 0 {
			rawFlowWeight = 0
		}
	}
	c.prevRawMassG = massIn
	c.havePrevRaw = true

	massFiltered := c.weight.Update(massIn, dtS)
	flowWeight := c.weight.FlowGps()

	rateDps, newDrops, measured := c.ring.TickExtract()
	c.calib.AddDrops(newDrops)

	dripMeasurement := c.drip.DropRateDps()
	if measured {
		dripMeasurement = rateDps
	}
	dropRateFiltered := c.drip.Update(dripMeasurement, dtS)

	if c.wpdEst.Active() && c.state == Normal {
		c.wpdEst.Calibrate(c.calib.InitialTotalMassG, massFiltered, c.calib.CumulativeDrops)
		c.drip.SetWpdGpd(c.wpdEst.Gpd())
	}

	dropRemaining := c.calib.InitialTotalMassG - float64(c.calib.CumulativeDrops)*c.wpdEst.Gpd()
	if dropRemaining < 0 {
		dropRemaining = 0
	}

	flowDrip := c.drip.FlowDripGps()
	c.fusionStage.Step(dtS, flowWeight, flowDrip, massFiltered, dropRemaining, massOK)

	c.checkFastConvergenceExit(nowMs)
	c.checkStall(nowMs)
	c.checkCompletion(nowMs)
	c.checkWpdLongCalibration(nowMs)

	rawDropRate := rateDps
	rawFlowDrip := rawDropRate * c.wpdEst.Gpd()

	progress := 0.0
	if c.calib.InitialTotalMassG > 1e-6 {
		progress = 100 * (1 - c.fusionStage.RemainingG()/c.calib.InitialTotalMassG)
		if progress < 0 {
			progress = 0
		} else if progress > 100 {
			progress = 100
		}
	}

	return Snapshot{
		TimeMs: nowMs,

		FilteredMassG:   massFiltered,
		RawMassG:        massIn,
		FilteredDropDps: dropRateFiltered,
		RawDropDps:      rawDropRate,

		FlowWeightGps: flowWeight,
		FlowDripGps:   flowDrip,
		FusedFlowGps:  c.fusionStage.FlowGps(),

		FusedRemainingG: c.fusionStage.RemainingG(),
		DropRemainingG:  dropRemaining,

		WpdGpd:          c.wpdEst.Gpd(),
		CumulativeDrops: c.calib.CumulativeDrops,
		ProgressPct:     progress,

		RemainingTimeRawWeightS:  remainingTime(massIn, rawFlowWeight, c.cfg.TargetEmptyG),
		RemainingTimeFiltWeightS: remainingTime(massFiltered, flowWeight, c.cfg.TargetEmptyG),
		RemainingTimeRawDripS:    remainingTime(dropRemaining, rawFlowDrip, c.cfg.TargetEmptyG),
		RemainingTimeFiltDripS:   remainingTime(dropRemaining, flowDrip, c.cfg.TargetEmptyG),
		RemainingTimeFusedS:      remainingTime(c.fusionStage.RemainingG(), c.fusionStage.FlowGps(), c.cfg.TargetEmptyG),

		State:     c.state,
		AutoClamp: c.autoClamp,

		TotalVolumeMl:     c.totalVolumeMl,
		InitialTotalMassG: c.calib.InitialTotalMassG,
		TargetEmptyG:      c.cfg.TargetEmptyG,
		WpdActive:         c.wpdEst.Active(),
		FastConvergence:   c.state == FastConvergence,
		TickDtS:           dtS,
	}
}

// State returns the current supervisory state (for collaborators that need
// a read without waiting on the next Snapshot).
func (c *Core) State() State { return c.state }
