// internal/status/snapshot.go
package status

import "time"

// Snapshot represents exactly what a status writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	ValueAge       uint16
}

// HealthName returns the lower-case name of a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Report is the JSON view of one source.
type Report struct {
	Source         string     `json:"source"`
	Health         string     `json:"health"`
	LastErrorCode  uint16     `json:"last_error_code"`
	LastError      string     `json:"last_error,omitempty"`
	SecondsInError uint16     `json:"seconds_in_error"`
	Present        bool       `json:"present"`
	ProducedAt     *time.Time `json:"produced_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}
