package inverter

import (
	"fmt"
	"strings"

	"github.com/qilowatt/qwbridge/internal/config"
	"github.com/qilowatt/qwbridge/internal/hass"
	"github.com/qilowatt/qwbridge/internal/qw"
)

// HostDeps are the host-side capabilities adapters may need. Modbus-direct
// adapters ignore them.
type HostDeps struct {
	States   hass.StateStore
	Services hass.ServiceCaller
}

// ForModel builds the adapter for a configured inverter model.
func ForModel(cfg config.InverterConfig, deps HostDeps) (qw.Inverter, error) {
	switch strings.ToLower(cfg.Model) {
	case "solarassistant":
		return NewSolarAssistant(cfg, deps.States, deps.Services), nil
	case "deye":
		return NewDeye(cfg)
	default:
		return nil, fmt.Errorf("unsupported inverter model: %s", cfg.Model)
	}
}
