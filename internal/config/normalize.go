// internal/config/normalize.go
package config

import (
	"time"

	"github.com/tamzrod/meterhub/internal/device/fronius"
	"github.com/tamzrod/meterhub/internal/status"
	"github.com/tamzrod/meterhub/internal/trace"
)

// Defaults applied by Normalize.
const (
	DefaultListen          = ":8080"
	DefaultCycleMs         = 1000
	DefaultIntervalMs      = 1000
	DefaultBaudRate        = 9600
	DefaultArchiveInterval = 5
	DefaultArchiveSave     = 6
	DefaultMirrorTimeoutMs = 1000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Hub.Listen == "" {
		cfg.Hub.Listen = DefaultListen
	}
	if cfg.Hub.CycleMs == 0 {
		cfg.Hub.CycleMs = DefaultCycleMs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	for bi := range cfg.Buses {
		b := &cfg.Buses[bi]
		if b.Type == "rtu" && b.BaudRate == 0 {
			b.BaudRate = DefaultBaudRate
		}
	}

	for si := range cfg.Sources {
		s := &cfg.Sources[si]

		if s.IntervalMs == 0 {
			s.IntervalMs = DefaultIntervalMs
			if s.Kind == KindFronius {
				s.IntervalMs = int(fronius.DefaultInterval / time.Millisecond)
			}
		}

		// ------------------------------------------------------------
		// DEVICE STATUS BLOCK NORMALIZATION (OPT-IN)
		// ------------------------------------------------------------

		if s.StatusSlot == nil {
			continue
		}
		if s.DeviceName == "" {
			s.DeviceName = s.ID
		}
		if len(s.DeviceName) > status.DeviceNameMaxChars {
			s.DeviceName = s.DeviceName[:status.DeviceNameMaxChars]
		}
	}

	for oi := range cfg.Outputs {
		for ti := range cfg.Outputs[oi].Terms {
			t := &cfg.Outputs[oi].Terms[ti]
			if t.Sign == 0 {
				t.Sign = 1
			}
		}
	}

	if cfg.Trace.Size == nil {
		n := trace.DefaultSize
		cfg.Trace.Size = &n
	}
	if cfg.Archive.IntervalMinutes == 0 {
		cfg.Archive.IntervalMinutes = DefaultArchiveInterval
	}
	if cfg.Archive.SaveHours == 0 {
		cfg.Archive.SaveHours = DefaultArchiveSave
	}

	if cfg.Mirror != nil && cfg.Mirror.TimeoutMs == 0 {
		cfg.Mirror.TimeoutMs = DefaultMirrorTimeoutMs
	}
	if cfg.MQTT != nil && cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "meterhub"
	}
}
