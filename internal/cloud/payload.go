// Package cloud builds the cloud JSON upload payload from a Snapshot.
// The upload transport itself (HTTP client, auth, retry) is an
// out-of-scope external collaborator; this package only fixes the data
// contract.
package cloud

import (
	"encoding/json"
	"math"

	"infusioncore/internal/core"
)

// Payload is the cloud JSON upload contract.
type Payload struct {
	DeviceID        string  `json:"deviceId"`
	TotalVolume     float64 `json:"totalVolume"`
	RemainingVolume float64 `json:"remainingVolume"`
	CurrentRate     int     `json:"currentRate"`
	EstimatedTime   int     `json:"estimatedTime"`
	SystemState     string  `json:"systemState"`
	AutoClamp       int     `json:"autoClamp"`
}

// BuildPayload projects a Snapshot into the cloud upload contract.
// currentRate is drops/minute rounded to the nearest integer;
// estimatedTime is the fused remaining time rounded up to whole minutes.
func BuildPayload(deviceID string, snap core.Snapshot) Payload {
	currentRate := int(math.Round(snap.FilteredDropDps * 60))

	estimatedTime := 0
	if snap.RemainingTimeFusedS > 0 && snap.RemainingTimeFusedS < core.UndefinedTimeS {
		estimatedTime = int(math.Ceil(snap.RemainingTimeFusedS / 60))
	}

	autoClamp := 0
	if snap.AutoClamp {
		autoClamp = 1
	}

	return Payload{
		DeviceID:        deviceID,
		TotalVolume:     snap.TotalVolumeMl,
		RemainingVolume: snap.FusedRemainingG,
		CurrentRate:     currentRate,
		EstimatedTime:   estimatedTime,
		SystemState:     snap.State.String(),
		AutoClamp:       autoClamp,
	}
}

// Marshal renders the payload as JSON bytes.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
