package inverter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qilowatt/qwbridge/internal/config"
	"github.com/qilowatt/qwbridge/internal/hass"
	"github.com/qilowatt/qwbridge/internal/logging"
	"github.com/qilowatt/qwbridge/internal/qw"
)

// SolarAssistant adapts an inverter integrated through SolarAssistant:
// telemetry is read from its sensor entities in the host state store and
// control happens through switch/number/select service calls.
type SolarAssistant struct {
	inverterID string
	prefix     string // sensor entity prefix, e.g. "sensor.solar_assistant_"
	states     hass.StateStore
	services   hass.ServiceCaller
}

func NewSolarAssistant(cfg config.InverterConfig, states hass.StateStore, services hass.ServiceCaller) *SolarAssistant {
	return &SolarAssistant{
		inverterID: cfg.InverterId,
		prefix:     cfg.EntityPrefix,
		states:     states,
		services:   services,
	}
}

func (s *SolarAssistant) stateFloat(name string) float64 {
	entityID := s.prefix + name
	v, ok := s.states.State(entityID)
	if !ok || v == "" || v == "unknown" || v == "unavailable" {
		logging.Warn("sensor state unavailable or unknown", "inverter", s.inverterID, "entity", entityID)
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logging.Warn("could not convert sensor state to float", "inverter", s.inverterID, "entity", entityID)
		return 0
	}
	return f
}

func (s *SolarAssistant) stateInt(name string) int {
	return int(s.stateFloat(name))
}

func (s *SolarAssistant) GetEnergyData() (qw.EnergyData, error) {
	return qw.EnergyData{
		Power: []float64{
			s.stateFloat("grid_power_1"),
			s.stateFloat("grid_power_2"),
			s.stateFloat("grid_power_3"),
		},
		Today:   s.stateFloat("grid_energy_in"),
		Total:   0,
		Current: []float64{0, 0, 0},
		Voltage: []float64{
			s.stateFloat("grid_voltage_1"),
			s.stateFloat("grid_voltage_2"),
			s.stateFloat("grid_voltage_3"),
		},
		Frequency: s.stateFloat("grid_frequency"),
	}, nil
}

func (s *SolarAssistant) GetMetricsData() (qw.MetricsData, error) {
	return qw.MetricsData{
		PvPower: []float64{
			s.stateFloat("pv_power_1"),
			s.stateFloat("pv_power_2"),
		},
		PvVoltage: []float64{
			s.stateFloat("pv_voltage_1"),
			s.stateFloat("pv_voltage_2"),
		},
		PvCurrent: []float64{
			s.stateFloat("pv_current_1"),
			s.stateFloat("pv_current_2"),
		},
		LoadPower: []float64{
			s.stateFloat("load_power_1"),
			s.stateFloat("load_power_2"),
			s.stateFloat("load_power_3"),
		},
		AlarmCodes:          []int{0, 0, 0, 0, 0, 0},
		BatterySOC:          s.stateInt("battery_state_of_charge"),
		LoadCurrent:         []float64{0, 0, 0},
		BatteryPower:        []float64{s.stateFloat("battery_power")},
		BatteryCurrent:      []float64{s.stateFloat("battery_current")},
		BatteryVoltage:      []float64{s.stateFloat("battery_voltage")},
		InverterStatus:      2,
		GridExportLimit:     s.stateFloat("max_sell_power"),
		BatteryTemperature:  []float64{s.stateFloat("battery_temperature")},
		InverterTemperature: s.stateFloat("temperature"),
	}, nil
}

// SetMode drives the SolarAssistant work-mode entities for the three
// qilowatt modes. Grid charge points 1..4 mirror the capacity schedule
// slots SolarAssistant exposes.
func (s *SolarAssistant) SetMode(ctx context.Context, cmd qw.WorkModeCommand) error {
	logging.Debug("controlling inverter", "inverter", s.inverterID, "mode", cmd.Mode)

	switch cmd.Mode {
	case "buy":
		if err := s.setGridChargePoints(ctx, true); err != nil {
			return err
		}
		if err := s.setCapacityPoints(ctx, 100); err != nil {
			return err
		}
		if err := s.services.CallService(ctx, "number", "set_value", "number.max_grid_charge_current", cmd.ChargeCurrent); err != nil {
			return err
		}
		return s.services.CallService(ctx, "select", "select_option", "select.work_mode", "Zero export to CT")

	case "sell":
		if err := s.setGridChargePoints(ctx, false); err != nil {
			return err
		}
		if err := s.setCapacityPoints(ctx, 10); err != nil {
			return err
		}
		if err := s.services.CallService(ctx, "number", "set_value", "number.max_discharge_current", cmd.DischargeCurrent); err != nil {
			return err
		}
		return s.services.CallService(ctx, "select", "select_option", "select.work_mode", "Selling first")

	case "normal":
		if err := s.setGridChargePoints(ctx, false); err != nil {
			return err
		}
		return s.services.CallService(ctx, "select", "select_option", "select.work_mode", "Zero export to load")

	default:
		return fmt.Errorf("unsupported work mode: %s", cmd.Mode)
	}
}

func (s *SolarAssistant) setGridChargePoints(ctx context.Context, on bool) error {
	service := "turn_off"
	if on {
		service = "turn_on"
	}
	for i := 1; i <= 4; i++ {
		entityID := fmt.Sprintf("switch.grid_charge_point_%d", i)
		if err := s.services.CallService(ctx, "switch", service, entityID, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *SolarAssistant) setCapacityPoints(ctx context.Context, value float64) error {
	for i := 1; i <= 4; i++ {
		entityID := fmt.Sprintf("number.capacity_point_%d", i)
		if err := s.services.CallService(ctx, "number", "set_value", entityID, value); err != nil {
			return err
		}
	}
	return nil
}
