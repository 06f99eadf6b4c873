// Command infusioncore wires the estimation core to its collaborators:
// the WebSocket broadcaster, the async CSV logger, the restart-replay
// ring buffer, and the structured event logger. It also drives a
// simulated weight sensor and drop-edge source, standing in for the
// out-of-scope ADC and GPIO drivers so the pipeline can run
// end to end without real hardware attached.
package main

import (
	"context"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"infusioncore/internal/broadcast"
	"infusioncore/internal/bus"
	"infusioncore/internal/core"
	"infusioncore/internal/corelog"
	"infusioncore/internal/history"
	"infusioncore/internal/logger"
)

const historyCapacity = 3600 // 1 hour of 1s snapshots

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		addr         string
		logDir       string
		deviceID     string
		targetEmptyG float64
		simulate     bool
	)

	root := &cobra.Command{
		Use:   "infusioncore",
		Short: "Infusion-monitoring estimation core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, logDir, deviceID, targetEmptyG, simulate)
		},
	}
	root.Flags().StringVar(&addr, "addr", ":8080", "WebSocket listen address")
	root.Flags().StringVar(&logDir, "log-dir", "logs", "CSV log directory")
	root.Flags().StringVar(&deviceID, "device-id", "infusioncore-1", "device identifier for cloud uploads")
	root.Flags().Float64Var(&targetEmptyG, "target-empty-g", 0, "remaining mass considered empty")
	root.Flags().BoolVar(&simulate, "simulate", true, "drive the core from a simulated weight/drip sensor")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(addr, logDir, deviceID string, targetEmptyG float64, simulate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.NewBus()

	cfg := core.DefaultConfig()
	cfg.TargetEmptyG = targetEmptyG
	eng := core.NewCore(cfg, eventBus)

	eventLogger := corelog.New()
	go eventLogger.Run(eventBus.Subscribe(256))

	snapLogger := logger.NewLogger(logDir)

	snapBuffer := history.NewRingBuffer(historyCapacity)
	for _, snap := range history.LoadFromCSV(logDir, historyCapacity) {
		snapBuffer.Add(snap)
	}
	log.Printf("history buffer pre-loaded with %d snapshots from CSV", snapBuffer.Size())

	snapshotCh := make(chan core.Snapshot, 1024)
	broadcaster := broadcast.NewBroadcaster(snapshotCh, snapBuffer, eng)
	go broadcaster.Start(addr)

	if simulate {
		go simulateDropEdges(ctx, eng)
	}

	nowMs := time.Now().UnixMilli()
	eng.OnButton(core.ButtonInit, core.ShortPress, nowMs, simulatedRawMass(0), true)

	ticker := time.NewTicker(cfg.TickPeriod)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var tickCount int64
	var lastLogSec int64
	for {
		select {
		case <-ticker.C:
			nowMs := time.Now().UnixMilli()
			rawMass := simulatedRawMass(tickCount)
			tickCount++

			snap := eng.Tick(nowMs, rawMass, true)

			snapBuffer.Add(snap)
			select {
			case snapshotCh <- snap:
			default:
			}

			if nowMs/1000 != lastLogSec {
				lastLogSec = nowMs / 1000
				snapLogger.Log(snap)
			}

		case <-sigCh:
			log.Println("shutting down")
			return nil
		}
	}
}

// simulatedRawMass produces a monotonically draining mass curve with a
// little sensor noise, standing in for the load-cell ADC.
func simulatedRawMass(tick int64) float64 {
	const startMassG = 512.0 // liquid + tare
	const drainGps = 0.05
	drained := drainGps * float64(tick)
	noise := (rand.Float64() - 0.5) * 0.3
	mass := startMassG - drained + noise
	if mass < core.TotalTareG {
		mass = core.TotalTareG
	}
	return mass
}

// simulateDropEdges fires a drop edge roughly every 1.2 s (±10% jitter),
// which at 0.06 g/drop matches simulatedRawMass's 0.05 g/s drain rate.
func simulateDropEdges(ctx context.Context, eng *core.Core) {
	const meanIntervalMs = 1200
	t := time.NewTimer(jitterDuration(meanIntervalMs))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			eng.OnDropEdge(time.Now().UnixMilli())
			t.Reset(jitterDuration(meanIntervalMs))
		}
	}
}

func jitterDuration(meanMs int) time.Duration {
	jitter := 1.0 + (rand.Float64()-0.5)*0.2
	return time.Duration(math.Round(float64(meanMs)*jitter)) * time.Millisecond
}
