// internal/device/goe/wallbox.go
package goe

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultTimeout = time.Second

	// DefaultLifetime is generous because the wallbox sits on weak WiFi.
	DefaultLifetime = 30 * time.Second

	// Mains voltage used for the power setpoint.
	lineVoltage = 230
)

// StatusURL returns the filtered API v2 status endpoint.
func StatusURL(host string) string {
	return fmt.Sprintf("http://%s/api/status?filter=amp,frc,fsp,eto,nrg,car,wh", host)
}

// CommandBase returns the base URL commands are sent to (…/api/set?<query>).
func CommandBase(host string) string {
	return fmt.Sprintf("http://%s", host)
}

// CommandPath is appended to CommandBase.
const CommandPath = "/api/set"

// states maps the car field to readable charging states.
var states = map[float64]string{
	1: "idle",
	2: "charge",
	3: "wait",
	4: "complete",
}

// Transform maps the raw status reply to the wallbox record:
// amp, phase, p_set, p, stop, e_cycle, eto, state.
// Absent or malformed inputs become nil, never an error.
func Transform(body any) (any, error) {
	r, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("goe: status reply is %T", body)
	}

	d := make(map[string]any, 8)
	d["amp"] = r["amp"]

	// fsp = force single phase
	switch r["fsp"] {
	case true:
		d["phase"] = int64(1)
	case false:
		d["phase"] = int64(3)
	default:
		d["phase"] = nil
	}

	d["p_set"] = nil
	if amp, ok := r["amp"].(float64); ok {
		if phase, ok := d["phase"].(int64); ok {
			d["p_set"] = amp * float64(phase) * lineVoltage
		}
	}

	d["p"] = nil
	if nrg, ok := r["nrg"].([]any); ok && len(nrg) > 11 {
		d["p"] = nrg[11]
	}

	// frc: 0 neutral, 1 force stop
	switch frc := r["frc"]; frc {
	case float64(1):
		d["stop"] = true
	case float64(0):
		d["stop"] = false
	default:
		d["stop"] = frc
	}

	d["e_cycle"] = nil
	if wh, ok := r["wh"].(float64); ok {
		d["e_cycle"] = int64(math.RoundToEven(wh))
	}

	d["eto"] = r["eto"]

	d["state"] = "error"
	if car, ok := r["car"].(float64); ok {
		if s, ok := states[car]; ok {
			d["state"] = s
		}
	}

	return d, nil
}
