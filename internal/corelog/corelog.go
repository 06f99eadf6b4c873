// Package corelog is the structured event logger: it subscribes to the
// event bus and renders every state transition and calibration milestone
// as a structured zerolog line, layered on top of plain stdlib `log` for
// transport-level messages elsewhere — state transitions are exactly the
// kind of discrete, field-rich event zerolog is meant for.
package corelog

import (
	"os"

	"github.com/rs/zerolog"

	"infusioncore/internal/core"
)

// Logger drains an event channel and logs each event until the channel is
// closed.
type Logger struct {
	logger zerolog.Logger
}

// New builds a console-rendered zerolog logger for core events.
func New() *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("component", "core").Logger()
	return &Logger{logger: l}
}

// Run drains events from ch until it is closed. Intended to be launched
// in its own goroutine.
func (l *Logger) Run(ch <-chan core.Event) {
	for ev := range ch {
		l.logEvent(ev)
	}
}

func (l *Logger) logEvent(ev core.Event) {
	if ev.Kind == core.EventInfusionAbnormalityDetected {
		l.logger.Warn().Int64("time_ms", ev.TimeMs).Msg("infusion abnormality detected")
		return
	}

	base := l.logger.Info().
		Str("event", ev.Kind.String()).
		Int64("time_ms", ev.TimeMs)

	switch ev.Kind {
	case core.EventStateChanged:
		base.Str("state", ev.NewState.String()).Msg("state transition")
	case core.EventWpdCalibrationCompleted:
		base.Float64("wpd_gpd", ev.WpdGpd).
			Int64("drops", ev.Drops).
			Float64("duration_s", ev.DurationS).
			Msg("wpd calibration completed")
	case core.EventWpdCalibrationTimedOutLowDrops:
		base.Int64("drops", ev.Drops).Msg("wpd calibration timed out with too few drops")
	case core.EventInfusionAbnormalityCleared:
		base.Msg("infusion abnormality cleared")
	case core.EventInfusionCompleted:
		base.Msg("infusion completed")
	case core.EventFastConvergenceEnded:
		base.Msg("fast convergence window ended")
	default:
		base.Msg("wpd calibration started")
	}
}
