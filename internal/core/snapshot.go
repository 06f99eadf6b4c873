package core

import (
	"fmt"
	"strings"
)

// UndefinedTimeS is rendered by collaborators as ~88,888s when a
// remaining-time estimate is undefined (flow ≈ 0 and mass still above
// target).
const UndefinedTimeS = 88888.0

// Snapshot is the read-only struct published every tick.
// Collaborators receive copies by value; the core never hands out a
// pointer to its internal state.
type Snapshot struct {
	TimeMs int64

	FilteredMassG  float64
	RawMassG       float64
	FilteredDropDps float64
	RawDropDps     float64

	FlowWeightGps float64
	FlowDripGps   float64
	FusedFlowGps  float64

	FusedRemainingG float64
	DropRemainingG  float64

	WpdGpd          float64
	CumulativeDrops int64
	ProgressPct     float64

	RemainingTimeRawWeightS  float64
	RemainingTimeFiltWeightS float64
	RemainingTimeRawDripS    float64
	RemainingTimeFiltDripS   float64
	RemainingTimeFusedS      float64

	State     State
	AutoClamp bool

	TotalVolumeMl     float64
	InitialTotalMassG float64
	TargetEmptyG      float64
	WpdActive         bool
	FastConvergence   bool
	TickDtS           float64
}

// Columns is the fixed 26-field order required for dashboard
// compatibility; internal/broadcast and internal/logger must both use this.
var Columns = []string{
	"filtered_mass_g", "raw_mass_g",
	"filtered_drop_rate_dps", "raw_drop_rate_dps",
	"flow_weight_gps", "flow_drip_gps", "fused_flow_gps",
	"fused_remaining_g", "drop_remaining_g",
	"wpd_gpd", "cumulative_drops", "progress_pct",
	"remaining_time_raw_weight_s", "remaining_time_filt_weight_s",
	"remaining_time_raw_drip_s", "remaining_time_filt_drip_s",
	"remaining_time_fused_s",
	"state", "auto_clamp",
	"total_volume_ml", "initial_total_mass_g", "target_empty_g",
	"wpd_active", "fast_convergence", "tick_dt_s", "timestamp_ms",
}

// CSVRow renders the snapshot in the fixed 26-column order as a
// comma-separated line (no trailing newline).
func (s Snapshot) CSVRow() string {
	fields := []string{
		fmt.Sprintf("%.3f", s.FilteredMassG),
		fmt.Sprintf("%.3f", s.RawMassG),
		fmt.Sprintf("%.4f", s.FilteredDropDps),
		fmt.Sprintf("%.4f", s.RawDropDps),
		fmt.Sprintf("%.4f", s.FlowWeightGps),
		fmt.Sprintf("%.4f", s.FlowDripGps),
		fmt.Sprintf("%.4f", s.FusedFlowGps),
		fmt.Sprintf("%.3f", s.FusedRemainingG),
		fmt.Sprintf("%.3f", s.DropRemainingG),
		fmt.Sprintf("%.5f", s.WpdGpd),
		fmt.Sprintf("%d", s.CumulativeDrops),
		fmt.Sprintf("%.2f", s.ProgressPct),
		fmt.Sprintf("%.1f", s.RemainingTimeRawWeightS),
		fmt.Sprintf("%.1f", s.RemainingTimeFiltWeightS),
		fmt.Sprintf("%.1f", s.RemainingTimeRawDripS),
		fmt.Sprintf("%.1f", s.RemainingTimeFiltDripS),
		fmt.Sprintf("%.1f", s.RemainingTimeFusedS),
		s.State.String(),
		boolField(s.AutoClamp),
		fmt.Sprintf("%.1f", s.TotalVolumeMl),
		fmt.Sprintf("%.3f", s.InitialTotalMassG),
		fmt.Sprintf("%.3f", s.TargetEmptyG),
		boolField(s.WpdActive),
		boolField(s.FastConvergence),
		fmt.Sprintf("%.3f", s.TickDtS),
		fmt.Sprintf("%d", s.TimeMs),
	}
	return strings.Join(fields, ",")
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// remainingTime computes a per-channel time-to-target estimate:
// max(0, (mass-target)/flow) when flow is meaningfully positive; 0 if
// already at/below target with no flow; otherwise the "undefined" sentinel.
func remainingTime(massG, flowGps, targetG float64) float64 {
	if flowGps > 1e-5 {
		t := (massG - targetG) / flowGps
		if t < 0 {
			return 0
		}
		return t
	}
	if massG <= targetG {
		return 0
	}
	return UndefinedTimeS
}
