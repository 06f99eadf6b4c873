package history

import (
	"bufio"
	"encoding/csv"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"infusioncore/internal/core"
)

// LoadFromCSV reads the latest CSV log file in logDir and returns up to
// `limit` snapshots (most recent), for hydrating the ring buffer on
// restart. Returns nil if no log file exists yet — a fresh install is not
// an error.
func LoadFromCSV(logDir string, limit int) []core.Snapshot {
	pattern := filepath.Join(logDir, "*.csv")
	files, err := filepath.Glob(pattern)
	if err != nil || len(files) == 0 {
		log.Printf("[history] no CSV files found in %s", logDir)
		return nil
	}

	sort.Strings(files)
	latest := files[len(files)-1]
	log.Printf("[history] loading history from %s", latest)

	f, err := os.Open(latest)
	if err != nil {
		log.Printf("[history] failed to open %s: %v", latest, err)
		return nil
	}
	defer f.Close()

	reader := csv.NewReader(bufio.NewReaderSize(f, 1<<20))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		log.Printf("[history] failed to read header: %v", err)
		return nil
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	log.Printf("[history] parsed %d rows from CSV", len(rows))

	snapshots := make([]core.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap := csvRowToSnapshot(row, idx)
		if snap.TimeMs > 0 {
			snapshots = append(snapshots, snap)
		}
	}
	return snapshots
}

// csvRowToSnapshot converts one CSV row back into a core.Snapshot, keyed
// by header name so column reordering doesn't silently corrupt history.
func csvRowToSnapshot(row []string, idx map[string]int) core.Snapshot {
	get := func(col string) float64 {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return 0
		}
		v, _ := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		return v
	}
	getInt64 := func(col string) int64 {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return 0
		}
		v, _ := strconv.ParseInt(strings.TrimSpace(row[i]), 10, 64)
		return v
	}
	getBool := func(col string) bool {
		return get(col) != 0
	}
	getState := func(col string) core.State {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return core.Initializing
		}
		return parseState(strings.TrimSpace(row[i]))
	}

	return core.Snapshot{
		TimeMs: getInt64("timestamp_ms"),

		FilteredMassG:   get("filtered_mass_g"),
		RawMassG:        get("raw_mass_g"),
		FilteredDropDps: get("filtered_drop_rate_dps"),
		RawDropDps:      get("raw_drop_rate_dps"),

		FlowWeightGps: get("flow_weight_gps"),
		FlowDripGps:   get("flow_drip_gps"),
		FusedFlowGps:  get("fused_flow_gps"),

		FusedRemainingG: get("fused_remaining_g"),
		DropRemainingG:  get("drop_remaining_g"),

		WpdGpd:          get("wpd_gpd"),
		CumulativeDrops: getInt64("cumulative_drops"),
		ProgressPct:     get("progress_pct"),

		RemainingTimeRawWeightS:  get("remaining_time_raw_weight_s"),
		RemainingTimeFiltWeightS: get("remaining_time_filt_weight_s"),
		RemainingTimeRawDripS:    get("remaining_time_raw_drip_s"),
		RemainingTimeFiltDripS:   get("remaining_time_filt_drip_s"),
		RemainingTimeFusedS:      get("remaining_time_fused_s"),

		State:     getState("state"),
		AutoClamp: getBool("auto_clamp"),

		TotalVolumeMl:     get("total_volume_ml"),
		InitialTotalMassG: get("initial_total_mass_g"),
		TargetEmptyG:      get("target_empty_g"),
		WpdActive:         getBool("wpd_active"),
		FastConvergence:   getBool("fast_convergence"),
		TickDtS:           get("tick_dt_s"),
	}
}

func parseState(s string) core.State {
	switch s {
	case "INITIALIZING":
		return core.Initializing
	case "INIT_ERROR":
		return core.InitError
	case "FAST_CONVERGENCE":
		return core.FastConvergence
	case "NORMAL":
		return core.Normal
	case "INFUSION_ERROR":
		return core.InfusionError
	case "COMPLETED":
		return core.Completed
	default:
		return core.Initializing
	}
}
