// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"

	"github.com/tamzrod/meterhub/internal/trace"
)

func u16(v uint16) *uint16 { return &v }
func u8(v uint8) *uint8    { return &v }

// helper to build a minimal valid config
func baseConfig() *Config {
	return &Config{
		Buses: []BusConfig{
			{ID: "rs485", Type: "rtu", Address: "/dev/ttyUSB0", BaudRate: 9600},
		},
		Sources: []SourceConfig{
			{ID: "grid", Kind: KindSML, SML: &SMLConfig{Port: "/dev/ttyUSB1"}},
			{ID: "heatpump", Kind: KindRegister, Register: &RegisterConfig{Bus: "rs485", Model: "SDM120", Slave: 1}},
			{ID: "wallbox", Kind: KindGoe, Host: "192.168.1.20"},
		},
		Outputs: []OutputConfig{
			{Key: "grid_p", Source: "grid", Path: []any{"p"}},
			{Key: "house_p", Terms: []TermConfig{
				{Source: "grid", Path: []any{"p"}},
				{Source: "wallbox", Path: []any{"p"}, Sign: -1},
			}},
		},
		Publish:  []PublishConfig{{Key: "battery_soc", TimeoutMs: 30000}},
		Commands: []CommandConfig{{Target: "wallbox"}},
	}
}

func expectError(t *testing.T, cfg *Config, contains string) {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", contains)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Fatalf("expected error containing %q, got %v", contains, err)
	}
}

// ---- tests ----

func TestValidate_BaseConfig(t *testing.T) {
	if err := Validate(baseConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DuplicateSource(t *testing.T) {
	cfg := baseConfig()
	cfg.Sources = append(cfg.Sources, SourceConfig{ID: "grid", Kind: KindGoe, Host: "x"})
	expectError(t, cfg, "duplicate id")
}

func TestValidate_UnknownBus(t *testing.T) {
	cfg := baseConfig()
	cfg.Sources[1].Register.Bus = "missing"
	expectError(t, cfg, "unknown bus")
}

func TestValidate_UnknownKind(t *testing.T) {
	cfg := baseConfig()
	cfg.Sources[0].Kind = "dlms"
	expectError(t, cfg, "unsupported kind")
}

func TestValidate_OutputNeedsSourceXorTerms(t *testing.T) {
	cfg := baseConfig()
	cfg.Outputs[0].Terms = []TermConfig{{Source: "grid"}}
	expectError(t, cfg, "exactly one of source or terms")
}

func TestValidate_ReservedKey(t *testing.T) {
	cfg := baseConfig()
	cfg.Outputs[0].Key = "timestamp"
	expectError(t, cfg, "reserved")
}

func TestValidate_BadSign(t *testing.T) {
	cfg := baseConfig()
	cfg.Outputs[1].Terms[0].Sign = 2
	expectError(t, cfg, "sign")
}

func TestValidate_BadPathElement(t *testing.T) {
	cfg := baseConfig()
	cfg.Outputs[0].Path = []any{"p", 1.5}
	expectError(t, cfg, "path element 1")
}

func TestValidate_CommandNeedsBaseURL(t *testing.T) {
	cfg := baseConfig()
	cfg.Commands = append(cfg.Commands, CommandConfig{Target: "grid"})
	expectError(t, cfg, "base_url is required")
}

func TestValidate_DeviceNameASCII(t *testing.T) {
	cfg := baseConfig()
	cfg.Sources[0].DeviceName = "Zähler"
	expectError(t, cfg, "ASCII")
}

func TestValidate_MirrorOverlap(t *testing.T) {
	cfg := baseConfig()
	cfg.Mirror = &MirrorConfig{
		Endpoint:  "127.0.0.1:502",
		Registers: map[string]int{"grid_p": 10, "house_p": 11},
	}
	expectError(t, cfg, "mirror overlap")
}

func TestValidate_MirrorAdjacentOK(t *testing.T) {
	cfg := baseConfig()
	cfg.Mirror = &MirrorConfig{
		Endpoint:  "127.0.0.1:502",
		Registers: map[string]int{"grid_p": 10, "house_p": 12, "battery_soc": 14},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StatusSlotWithoutMirror(t *testing.T) {
	cfg := baseConfig()
	cfg.Sources[0].StatusSlot = u16(0)
	expectError(t, cfg, "no mirror")
}

func TestValidate_StatusSlotCollision(t *testing.T) {
	cfg := baseConfig()
	cfg.Mirror = &MirrorConfig{Endpoint: "127.0.0.1:502", StatusUnitID: u8(2)}
	cfg.Sources[0].StatusSlot = u16(3)
	cfg.Sources[1].StatusSlot = u16(3)
	expectError(t, cfg, "status_slot collision")
}

func TestValidate_StatusSlotNeedsUnit(t *testing.T) {
	cfg := baseConfig()
	cfg.Mirror = &MirrorConfig{Endpoint: "127.0.0.1:502"}
	cfg.Sources[0].StatusSlot = u16(0)
	expectError(t, cfg, "status_unit_id")
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := baseConfig()
	cfg.Sources[0].StatusSlot = u16(0)
	cfg.Sources[0].DeviceName = "a-very-long-device-name"
	Normalize(cfg)

	if cfg.Hub.Listen != DefaultListen || cfg.Hub.CycleMs != DefaultCycleMs {
		t.Fatalf("hub defaults not applied: %+v", cfg.Hub)
	}
	if cfg.Sources[1].IntervalMs != DefaultIntervalMs {
		t.Fatalf("interval default not applied: %d", cfg.Sources[1].IntervalMs)
	}
	if got := cfg.Sources[0].DeviceName; got != "a-very-long-devi" {
		t.Fatalf("device_name not truncated: %q", got)
	}
	if cfg.Outputs[1].Terms[0].Sign != 1 || cfg.Outputs[1].Terms[1].Sign != -1 {
		t.Fatalf("term signs: %+v", cfg.Outputs[1].Terms)
	}
	if cfg.Trace.Size == nil || *cfg.Trace.Size != trace.DefaultSize {
		t.Fatalf("trace size default not applied")
	}
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("hub:\n  listen: \":80\"\n  bogus: 1\n"))
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestParse_Example(t *testing.T) {
	cfg, err := Parse([]byte(`
hub:
  listen: ":9000"
sources:
  - id: grid
    kind: sml
    lifetime_ms: 10000
    sml:
      port: /dev/ttyUSB0
outputs:
  - key: grid_p
    source: grid
    path: [p]
  - key: pv_p
    source: grid
    path: [list, 0]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if got := cfg.Outputs[1].Path[1]; got != 0 {
		t.Fatalf("integer path element decoded as %T %v", got, got)
	}
}

func TestValidate_ArchiveKeys(t *testing.T) {
	cfg := baseConfig()
	cfg.Archive.Path = "/tmp/archive"
	expectError(t, cfg, "keys are required")

	cfg.Archive.Keys = []string{"nope"}
	expectError(t, cfg, "unknown key")
}

func TestValidate_ArchiveFTP(t *testing.T) {
	cfg := baseConfig()
	cfg.Archive.FTP = &FTPConfig{Server: "nas.local"}
	expectError(t, cfg, "ftp requires path")

	cfg.Archive.Path = "/tmp/archive"
	cfg.Archive.Keys = []string{"time", "grid_p"}
	cfg.Archive.FTP.Server = ""
	expectError(t, cfg, "ftp.server is required")

	cfg.Archive.FTP.Server = "nas.local"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load("../../config.example.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	Normalize(cfg)

	if cfg.Hub.Listen != ":8008" {
		t.Fatalf("listen: got %q", cfg.Hub.Listen)
	}
	if len(cfg.Publish) != 5 {
		t.Fatalf("publish keys: got %d", len(cfg.Publish))
	}
	if cfg.MQTT.ClientID != "meterhub" {
		t.Fatalf("mqtt client id: got %q", cfg.MQTT.ClientID)
	}
}
