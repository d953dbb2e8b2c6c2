// internal/config/config.go
package config

type Config struct {
	Hub      HubConfig       `yaml:"hub"`
	Log      LogConfig       `yaml:"log"`
	Buses    []BusConfig     `yaml:"buses"`
	Sources  []SourceConfig  `yaml:"sources"`
	Outputs  []OutputConfig  `yaml:"outputs"`
	Publish  []PublishConfig `yaml:"publish"`
	Commands []CommandConfig `yaml:"commands"`
	Trace    TraceConfig     `yaml:"trace"`
	Archive  ArchiveConfig   `yaml:"archive"`
	Mirror   *MirrorConfig   `yaml:"mirror"`
	MQTT     *MQTTConfig     `yaml:"mqtt"`
}

// ---- HUB ----

type HubConfig struct {
	Listen  string `yaml:"listen"`
	CycleMs int    `yaml:"cycle_ms"`
	Metrics bool   `yaml:"metrics"`
}

// ---- LOG ----

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // text | json
	Output   string `yaml:"output"` // stdout | file
	FilePath string `yaml:"file_path"`
}

// ---- BUS ----

// BusConfig is a shared Modbus transport.
type BusConfig struct {
	ID        string `yaml:"id"`
	Type      string `yaml:"type"`    // rtu | tcp
	Address   string `yaml:"address"` // serial device or host:port
	BaudRate  int    `yaml:"baud_rate"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- SOURCE ----

// Source kinds.
const (
	KindSML      = "sml"
	KindRegister = "register"
	KindJSON     = "json"
	KindFronius  = "fronius"
	KindGoe      = "goe"
)

type SourceConfig struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"`
	LifetimeMs int    `yaml:"lifetime_ms"`
	IntervalMs int    `yaml:"interval_ms"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
	DeviceName string  `yaml:"device_name"`

	SML      *SMLConfig      `yaml:"sml"`
	Register *RegisterConfig `yaml:"register"`
	JSON     *JSONConfig     `yaml:"json"`

	// Host is the address of fronius and goe devices.
	Host      string `yaml:"host"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type SMLConfig struct {
	Port          string `yaml:"port"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

type RegisterConfig struct {
	Bus       string   `yaml:"bus"`
	Model     string   `yaml:"model"`
	Slave     uint8    `yaml:"slave"`
	Fields    []string `yaml:"fields"`
	TimeoutMs int      `yaml:"timeout_ms"`
}

type JSONConfig struct {
	URL       string         `yaml:"url"`
	Post      map[string]any `yaml:"post"`
	TimeoutMs int            `yaml:"timeout_ms"`
}

// ---- OUTPUT ----

// OutputConfig names one record key. Either Source+Path or Terms.
type OutputConfig struct {
	Key     string       `yaml:"key"`
	Source  string       `yaml:"source"`
	Path    []any        `yaml:"path"`
	Default any          `yaml:"default"`
	Terms   []TermConfig `yaml:"terms"`
}

// TermConfig is one signed summand; absent values count as 0.
type TermConfig struct {
	Source string `yaml:"source"`
	Path   []any  `yaml:"path"`
	Sign   int    `yaml:"sign"` // +1 (default) or -1
}

// ---- PUBLISH ----

type PublishConfig struct {
	Key       string `yaml:"key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- COMMAND ----

// CommandConfig enables /command/<target>. A target naming a goe source
// derives its URL from the source host.
type CommandConfig struct {
	Target    string `yaml:"target"`
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- TRACE / ARCHIVE ----

type TraceConfig struct {
	Size *int `yaml:"size"`
}

type ArchiveConfig struct {
	Path            string     `yaml:"path"`
	IntervalMinutes int        `yaml:"interval_minutes"`
	SaveHours       int        `yaml:"save_hours"`
	Keys            []string   `yaml:"keys"`
	FTP             *FTPConfig `yaml:"ftp"`
}

// FTPConfig uploads every saved day file to <path>/<yyyy>/<yyyy-mm-dd>.csv.
type FTPConfig struct {
	Server    string `yaml:"server"` // host[:port]
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Path      string `yaml:"path"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- SINKS ----

// MirrorConfig replicates record keys into a Modbus TCP register map.
type MirrorConfig struct {
	Endpoint     string         `yaml:"endpoint"`
	UnitID       uint8          `yaml:"unit_id"`
	StatusUnitID *uint8         `yaml:"status_unit_id"`
	TimeoutMs    int            `yaml:"timeout_ms"`
	Registers    map[string]int `yaml:"registers"` // key -> holding register address (2 regs, int32)
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}
