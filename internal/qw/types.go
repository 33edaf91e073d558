package qw

import "context"

// WorkModeCommand is a WORKMODE instruction received from the Qilowatt
// control channel. Source identifies the upstream system that issued it
// ("timer", "fusebox", ...). Immutable once received.
type WorkModeCommand struct {
	Mode             string  `json:"mode"`
	Source           string  `json:"_source"`
	PowerLimit       float64 `json:"power_limit,omitempty"`
	ChargeCurrent    float64 `json:"charge_current,omitempty"`
	DischargeCurrent float64 `json:"discharge_current,omitempty"`
	PeakShaving      float64 `json:"peak_shaving,omitempty"`
	BatterySoc       int     `json:"battery_soc,omitempty"`
	Timestamp        int64   `json:"timestamp,omitempty"` // unix seconds, issuer clock
}

// EnergyData is one grid-side measurement snapshot, published on the
// ENERGY topic.
type EnergyData struct {
	Power     []float64 `json:"Power"`
	Today     float64   `json:"Today"`
	Total     float64   `json:"Total"`
	Current   []float64 `json:"Current"`
	Voltage   []float64 `json:"Voltage"`
	Frequency float64   `json:"Frequency"`
}

// MetricsData is one inverter-side measurement snapshot, published on the
// METRICS topic.
type MetricsData struct {
	PvPower             []float64 `json:"PvPower"`
	PvVoltage           []float64 `json:"PvVoltage"`
	PvCurrent           []float64 `json:"PvCurrent"`
	LoadPower           []float64 `json:"LoadPower"`
	AlarmCodes          []int     `json:"AlarmCodes"`
	BatterySOC          int       `json:"BatterySOC"`
	LoadCurrent         []float64 `json:"LoadCurrent"`
	BatteryPower        []float64 `json:"BatteryPower"`
	BatteryCurrent      []float64 `json:"BatteryCurrent"`
	BatteryVoltage      []float64 `json:"BatteryVoltage"`
	InverterStatus      int       `json:"InverterStatus"`
	GridExportLimit     float64   `json:"GridExportLimit"`
	BatteryTemperature  []float64 `json:"BatteryTemperature"`
	InverterTemperature float64   `json:"InverterTemperature"`
}

// Inverter is the controllable device behind the bridge. SetMode may block
// on device I/O; callers decide where it runs. Implementations must
// tolerate concurrent SetMode calls.
type Inverter interface {
	SetMode(ctx context.Context, cmd WorkModeCommand) error
	GetEnergyData() (EnergyData, error)
	GetMetricsData() (MetricsData, error)
}

// CommandCallback is invoked by the Link on its own goroutine whenever a
// WORKMODE command arrives. It must return promptly and never panic.
type CommandCallback func(cmd WorkModeCommand)

// Link is the Qilowatt messaging channel for one inverter.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SetCommandCallback(fn CommandCallback)
	PublishEnergy(ctx context.Context, data EnergyData) error
	PublishMetrics(ctx context.Context, data MetricsData) error
	IsConnected() bool
}
