// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// BUSES
	// ------------------------------------------------------------

	buses := make(map[string]BusConfig)
	for _, b := range cfg.Buses {
		if b.ID == "" {
			return fmt.Errorf("bus: id is required")
		}
		if _, exists := buses[b.ID]; exists {
			return fmt.Errorf("bus %q: duplicate id", b.ID)
		}
		switch b.Type {
		case "rtu", "tcp":
		default:
			return fmt.Errorf("bus %q: unsupported type %q (want rtu or tcp)", b.ID, b.Type)
		}
		if b.Address == "" {
			return fmt.Errorf("bus %q: address is required", b.ID)
		}
		if b.TimeoutMs < 0 {
			return fmt.Errorf("bus %q: timeout_ms must be >= 0", b.ID)
		}
		buses[b.ID] = b
	}

	// ------------------------------------------------------------
	// SOURCES
	// ------------------------------------------------------------

	sources := make(map[string]SourceConfig)
	for _, s := range cfg.Sources {
		if s.ID == "" {
			return fmt.Errorf("source: id is required")
		}
		if _, exists := sources[s.ID]; exists {
			return fmt.Errorf("source %q: duplicate id", s.ID)
		}
		if s.LifetimeMs < 0 || s.IntervalMs < 0 || s.TimeoutMs < 0 {
			return fmt.Errorf("source %q: durations must be >= 0", s.ID)
		}

		// device_name sanity (ASCII only)
		for i := 0; i < len(s.DeviceName); i++ {
			if s.DeviceName[i] > 0x7F {
				return fmt.Errorf(
					"source %q: device_name must contain ASCII characters only",
					s.ID,
				)
			}
		}

		if err := validateSourceKind(s, buses); err != nil {
			return err
		}
		sources[s.ID] = s
	}

	// ------------------------------------------------------------
	// OUTPUTS
	// ------------------------------------------------------------

	keys := map[string]bool{"time": true, "timestamp": true, "measure_time": true}
	for _, o := range cfg.Outputs {
		if o.Key == "" {
			return fmt.Errorf("output: key is required")
		}
		if keys[o.Key] {
			return fmt.Errorf("output %q: duplicate or reserved key", o.Key)
		}
		keys[o.Key] = true

		hasSource := o.Source != ""
		hasTerms := len(o.Terms) > 0
		if hasSource == hasTerms {
			return fmt.Errorf("output %q: exactly one of source or terms is required", o.Key)
		}
		if hasSource {
			if _, ok := sources[o.Source]; !ok {
				return fmt.Errorf("output %q: unknown source %q", o.Key, o.Source)
			}
			if err := validatePath(o.Path); err != nil {
				return fmt.Errorf("output %q: %w", o.Key, err)
			}
		}
		for i, t := range o.Terms {
			if _, ok := sources[t.Source]; !ok {
				return fmt.Errorf("output %q: term %d: unknown source %q", o.Key, i, t.Source)
			}
			if t.Sign != 0 && t.Sign != 1 && t.Sign != -1 {
				return fmt.Errorf("output %q: term %d: sign must be 1 or -1", o.Key, i)
			}
			if err := validatePath(t.Path); err != nil {
				return fmt.Errorf("output %q: term %d: %w", o.Key, i, err)
			}
		}
	}

	// ------------------------------------------------------------
	// PUBLISH / COMMANDS
	// ------------------------------------------------------------

	for _, p := range cfg.Publish {
		if p.Key == "" {
			return fmt.Errorf("publish: key is required")
		}
		if keys[p.Key] {
			return fmt.Errorf("publish %q: duplicate or reserved key", p.Key)
		}
		if p.TimeoutMs <= 0 {
			return fmt.Errorf("publish %q: timeout_ms must be > 0", p.Key)
		}
		keys[p.Key] = true
	}

	targets := make(map[string]bool)
	for _, c := range cfg.Commands {
		if c.Target == "" {
			return fmt.Errorf("command: target is required")
		}
		if targets[c.Target] {
			return fmt.Errorf("command %q: duplicate target", c.Target)
		}
		targets[c.Target] = true

		if c.BaseURL != "" {
			continue
		}
		s, ok := sources[c.Target]
		if !ok || s.Kind != KindGoe {
			return fmt.Errorf("command %q: base_url is required unless target is a goe source", c.Target)
		}
	}

	// ------------------------------------------------------------
	// TRACE / ARCHIVE
	// ------------------------------------------------------------

	if cfg.Trace.Size != nil && *cfg.Trace.Size < 0 {
		return fmt.Errorf("trace: size must be >= 0")
	}
	if cfg.Archive.Path != "" {
		if cfg.Archive.IntervalMinutes < 0 || cfg.Archive.IntervalMinutes > 60 {
			return fmt.Errorf("archive: interval_minutes must be within 0..60")
		}
		if cfg.Archive.SaveHours < 0 || cfg.Archive.SaveHours > 24 {
			return fmt.Errorf("archive: save_hours must be within 0..24")
		}
		if len(cfg.Archive.Keys) == 0 {
			return fmt.Errorf("archive: keys are required when path is set")
		}
		for _, k := range cfg.Archive.Keys {
			if !keys[k] {
				return fmt.Errorf("archive: unknown key %q", k)
			}
		}
		if f := cfg.Archive.FTP; f != nil {
			if f.Server == "" {
				return fmt.Errorf("archive: ftp.server is required")
			}
			if f.TimeoutMs < 0 {
				return fmt.Errorf("archive: ftp.timeout_ms must be >= 0")
			}
		}
	} else if cfg.Archive.FTP != nil {
		return fmt.Errorf("archive: ftp requires path")
	}

	// ------------------------------------------------------------
	// SINKS
	// ------------------------------------------------------------

	if err := validateMirror(cfg, keys); err != nil {
		return err
	}

	if m := cfg.MQTT; m != nil {
		if m.Broker == "" {
			return fmt.Errorf("mqtt: broker is required")
		}
		if m.Topic == "" {
			return fmt.Errorf("mqtt: topic is required")
		}
		if m.QoS > 2 {
			return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
		}
	}

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unsupported format %q", cfg.Log.Format)
	}
	if cfg.Log.Output == "file" && cfg.Log.FilePath == "" {
		return fmt.Errorf("log: file_path is required when output is file")
	}

	return nil
}

func validateSourceKind(s SourceConfig, buses map[string]BusConfig) error {
	switch s.Kind {
	case KindSML:
		if s.SML == nil || s.SML.Port == "" {
			return fmt.Errorf("source %q: sml.port is required", s.ID)
		}

	case KindRegister:
		r := s.Register
		if r == nil {
			return fmt.Errorf("source %q: register block is required", s.ID)
		}
		if _, ok := buses[r.Bus]; !ok {
			return fmt.Errorf("source %q: unknown bus %q", s.ID, r.Bus)
		}
		if r.Model == "" {
			return fmt.Errorf("source %q: register.model is required", s.ID)
		}
		if r.TimeoutMs < 0 {
			return fmt.Errorf("source %q: register.timeout_ms must be >= 0", s.ID)
		}

	case KindJSON:
		if s.JSON == nil || s.JSON.URL == "" {
			return fmt.Errorf("source %q: json.url is required", s.ID)
		}

	case KindFronius, KindGoe:
		if s.Host == "" {
			return fmt.Errorf("source %q: host is required", s.ID)
		}

	default:
		return fmt.Errorf("source %q: unsupported kind %q", s.ID, s.Kind)
	}
	return nil
}

// validatePath accepts string keys and integer indices.
func validatePath(path []any) error {
	for i, p := range path {
		switch p.(type) {
		case string, int:
		default:
			return fmt.Errorf("path element %d: want string or int, got %T", i, p)
		}
	}
	return nil
}

func validateMirror(cfg *Config, keys map[string]bool) error {
	type span struct {
		start int
		end   int
		key   string
	}

	m := cfg.Mirror
	if m == nil {
		for _, s := range cfg.Sources {
			if s.StatusSlot != nil {
				return fmt.Errorf("source %q: status_slot is set but no mirror is defined", s.ID)
			}
		}
		return nil
	}

	if m.Endpoint == "" {
		return fmt.Errorf("mirror: endpoint is required")
	}

	// ------------------------------------------------------------
	// REGISTER GEOMETRY (each key occupies two registers)
	// ------------------------------------------------------------

	var spans []span
	for key, addr := range m.Registers {
		if !keys[key] {
			return fmt.Errorf("mirror: unknown key %q", key)
		}
		if addr < 0 || addr > 0xFFFE {
			return fmt.Errorf("mirror: key %q: address %d out of range", key, addr)
		}
		start, end := addr, addr+1
		for _, s := range spans {
			// overlap check (inclusive)
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"mirror overlap: key=%s range=%d-%d overlaps with key=%s range=%d-%d",
					key, start, end, s.key, s.start, s.end,
				)
			}
		}
		spans = append(spans, span{start: start, end: end, key: key})
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	slotOwner := make(map[uint16]string)
	for _, s := range cfg.Sources {
		if s.StatusSlot == nil {
			continue
		}
		if m.StatusUnitID == nil {
			return fmt.Errorf("source %q: status_slot is set but mirror has no status_unit_id", s.ID)
		}
		slot := *s.StatusSlot
		if prev, exists := slotOwner[slot]; exists {
			return fmt.Errorf(
				"status_slot collision: status_unit_id=%d slot=%d used by sources %q and %q",
				*m.StatusUnitID, slot, prev, s.ID,
			)
		}
		slotOwner[slot] = s.ID
	}
	return nil
}
