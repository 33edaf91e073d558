package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"
)

/* =========================
   Types
   ========================= */

type BridgeConfig struct {
	BrokerURL                string           `json:"brokerUrl"`
	ConnectTimeoutMs         int              `json:"connectTimeoutMs"`
	PublishTimeoutMs         int              `json:"publishTimeoutMs"`
	SubscribeTimeoutMs       int              `json:"subscribeTimeoutMs"`
	PollIntervalSeconds      int              `json:"pollIntervalSeconds"`      // telemetry cadence
	HeartbeatIntervalSeconds int              `json:"heartbeatIntervalSeconds"` // republish unchanged telemetry
	TaskBufferSize           int              `json:"taskBufferSize"`           // host loop queue depth
	Inverters                []InverterConfig `json:"inverters"`
}

type InverterConfig struct {
	InverterId   string     `json:"inverterId"`
	Model        string     `json:"model"` // key in inverter registry: "solarassistant" | "deye"
	MqttUsername string     `json:"mqttUsername"`
	MqttPassword string     `json:"mqttPassword"`
	EntityPrefix string     `json:"entityPrefix,omitempty"` // solarassistant sensor entity prefix
	Bus          *BusConfig `json:"bus,omitempty"`          // deye modbus link
}

type BusConfig struct {
	Type      string `json:"type"` // "rtu" | "tcp"
	TCPAddr   string `json:"tcpAddr"`
	Port      string `json:"port"`
	Baud      int    `json:"baud"`
	DataBits  int    `json:"dataBits"`
	StopBits  int    `json:"stopBits"`
	Parity    string `json:"parity"`
	TimeoutMs int    `json:"timeoutMs"`
	UnitId    uint8  `json:"unitId"`
	Debug     bool   `json:"debug"`
}

/* =========================
   Helpers
   ========================= */

func (c BridgeConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}
func (c BridgeConfig) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutMs) * time.Millisecond
}
func (c BridgeConfig) SubscribeTimeout() time.Duration {
	return time.Duration(c.SubscribeTimeoutMs) * time.Millisecond
}
func (c BridgeConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
func (c BridgeConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

func (b BusConfig) Timeout() time.Duration { return time.Duration(b.TimeoutMs) * time.Millisecond }

/* =========================
   Strict load + validate
   ========================= */

func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseBridgeConfig(raw)
}

func LoadBridgeConfigFromReader(r io.Reader) (*BridgeConfig, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parseBridgeConfig(raw)
}

func parseBridgeConfig(raw []byte) (*BridgeConfig, error) {
	clean := stripJSONComments(raw)

	dec := json.NewDecoder(strings.NewReader(string(clean)))
	dec.DisallowUnknownFields()

	var cfg BridgeConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *BridgeConfig) Validate() error {
	var errs multiErr

	if strings.TrimSpace(c.BrokerURL) == "" {
		errs.add("brokerUrl is required")
	}
	if c.ConnectTimeoutMs <= 0 {
		c.ConnectTimeoutMs = 10000
	}
	if c.PublishTimeoutMs <= 0 {
		c.PublishTimeoutMs = 5000
	}
	if c.SubscribeTimeoutMs <= 0 {
		c.SubscribeTimeoutMs = 5000
	}
	if c.PollIntervalSeconds < 0 {
		errs.add("pollIntervalSeconds cannot be negative")
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 10
	}
	if c.HeartbeatIntervalSeconds < 0 {
		errs.add("heartbeatIntervalSeconds cannot be negative")
	}
	if c.TaskBufferSize < 0 {
		errs.add("taskBufferSize cannot be negative")
	}

	if len(c.Inverters) == 0 {
		errs.add("inverters cannot be empty")
	}
	seen := map[string]int{}
	for i := range c.Inverters {
		inv := &c.Inverters[i]
		if strings.TrimSpace(inv.InverterId) == "" {
			errs.addf("inverters[%d]: inverterId is required", i)
		} else if j, ok := seen[inv.InverterId]; ok {
			errs.addf("inverters[%d]: duplicate inverterId %q (also at inverters[%d])", i, inv.InverterId, j)
		} else {
			seen[inv.InverterId] = i
		}
		if inv.MqttUsername == "" || inv.MqttPassword == "" {
			errs.addf("inverters[%d/%s]: mqttUsername and mqttPassword are required", i, inv.InverterId)
		}

		switch strings.ToLower(inv.Model) {
		case "solarassistant":
			if strings.TrimSpace(inv.EntityPrefix) == "" {
				errs.addf("inverters[%d/%s]: entityPrefix is required for model=solarassistant", i, inv.InverterId)
			}
		case "deye":
			if inv.Bus == nil {
				errs.addf("inverters[%d/%s]: bus is required for model=deye", i, inv.InverterId)
			} else {
				inv.Bus.validate(&errs, i, inv.InverterId)
			}
		case "":
			errs.addf("inverters[%d/%s]: model is required", i, inv.InverterId)
		default:
			errs.addf("inverters[%d/%s]: unknown model %q", i, inv.InverterId, inv.Model)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (b *BusConfig) validate(errs *multiErr, i int, inverterId string) {
	switch strings.ToLower(b.Type) {
	case "tcp":
		if strings.TrimSpace(b.TCPAddr) == "" {
			errs.addf("inverters[%d/%s].bus: tcpAddr is required for type=tcp", i, inverterId)
		}
	case "rtu":
		if strings.TrimSpace(b.Port) == "" {
			errs.addf("inverters[%d/%s].bus: port is required for type=rtu", i, inverterId)
		}
		if b.Baud <= 0 {
			errs.addf("inverters[%d/%s].bus: baud must be > 0 for type=rtu", i, inverterId)
		}
		if b.DataBits == 0 {
			b.DataBits = 8
		}
		if b.StopBits == 0 {
			b.StopBits = 1
		}
		if b.Parity == "" {
			b.Parity = "N"
		}
		if !slices.Contains([]string{"N", "E", "O"}, strings.ToUpper(b.Parity)) {
			errs.addf("inverters[%d/%s].bus: parity must be one of N,E,O", i, inverterId)
		}
	default:
		errs.addf("inverters[%d/%s].bus: type must be 'rtu' or 'tcp'", i, inverterId)
	}
	if b.UnitId == 0 || b.UnitId > 247 {
		errs.addf("inverters[%d/%s].bus: unitId must be 1..247", i, inverterId)
	}
	if b.TimeoutMs <= 0 {
		b.TimeoutMs = 1000
	}
}

/* =========================
   Comment stripping + utils
   ========================= */

// stripJSONComments removes // and /* */ comments. It tracks JSON string
// state so the "//" in URLs like "ssl://host:8883" is left alone.
func stripJSONComments(in []byte) []byte {
	out := make([]byte, 0, len(in))
	inString := false
	for i := 0; i < len(in); i++ {
		c := in[i]
		if inString {
			out = append(out, c)
			switch c {
			case '\\':
				if i+1 < len(in) {
					i++
					out = append(out, in[i])
				}
			case '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(in) && in[i+1] == '/':
			for i < len(in) && in[i] != '\n' && in[i] != '\r' {
				i++
			}
			if i < len(in) {
				out = append(out, in[i])
			}
		case c == '/' && i+1 < len(in) && in[i+1] == '*':
			i += 2
			for i+1 < len(in) && !(in[i] == '*' && in[i+1] == '/') {
				i++
			}
			i++ // skip the closing '/'
		default:
			out = append(out, c)
		}
	}
	return out
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
