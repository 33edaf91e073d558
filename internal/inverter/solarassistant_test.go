package inverter

import (
	"context"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/qilowatt/qwbridge/internal/config"
	"github.com/qilowatt/qwbridge/internal/hass"
	"github.com/qilowatt/qwbridge/internal/qw"
)

type serviceCall struct {
	domain   string
	service  string
	entityID string
	value    any
}

type recordingServices struct {
	calls []serviceCall
}

func (r *recordingServices) CallService(ctx context.Context, domain, service, entityID string, value any) error {
	r.calls = append(r.calls, serviceCall{domain, service, entityID, value})
	return nil
}

const prefix = "sensor.solar_assistant_"

func newSolarAssistant(states *hass.MemoryStateStore, services hass.ServiceCaller) *SolarAssistant {
	return NewSolarAssistant(config.InverterConfig{
		InverterId:   "inv1",
		Model:        "solarassistant",
		EntityPrefix: prefix,
	}, states, services)
}

func TestEnergyDataFromSensorStates(t *testing.T) {
	states := hass.NewMemoryStateStore()
	states.SetState(prefix+"grid_power_1", "100.5")
	states.SetState(prefix+"grid_power_2", "-50")
	states.SetState(prefix+"grid_power_3", "0")
	states.SetState(prefix+"grid_energy_in", "12.3")
	states.SetState(prefix+"grid_voltage_1", "230.1")
	states.SetState(prefix+"grid_voltage_2", "231")
	states.SetState(prefix+"grid_voltage_3", "229.9")
	states.SetState(prefix+"grid_frequency", "50.02")

	inv := newSolarAssistant(states, &recordingServices{})
	data, err := inv.GetEnergyData()
	assert.NilError(t, err)

	assert.DeepEqual(t, data.Power, []float64{100.5, -50, 0})
	assert.Equal(t, data.Today, 12.3)
	assert.Equal(t, data.Frequency, 50.02)
	assert.DeepEqual(t, data.Voltage, []float64{230.1, 231, 229.9})
	assert.DeepEqual(t, data.Current, []float64{0, 0, 0})
}

func TestUnavailableSensorReadsAsZero(t *testing.T) {
	states := hass.NewMemoryStateStore()
	states.SetState(prefix+"grid_power_1", "unavailable")
	states.SetState(prefix+"grid_power_2", "unknown")
	states.SetState(prefix+"grid_power_3", "not-a-number")

	inv := newSolarAssistant(states, &recordingServices{})
	data, err := inv.GetEnergyData()
	assert.NilError(t, err)
	assert.DeepEqual(t, data.Power, []float64{0, 0, 0})
}

func TestMetricsDataFromSensorStates(t *testing.T) {
	states := hass.NewMemoryStateStore()
	states.SetState(prefix+"battery_state_of_charge", "84")
	states.SetState(prefix+"battery_power", "-1200")
	states.SetState(prefix+"max_sell_power", "8000")

	inv := newSolarAssistant(states, &recordingServices{})
	data, err := inv.GetMetricsData()
	assert.NilError(t, err)

	assert.Equal(t, data.BatterySOC, 84)
	assert.DeepEqual(t, data.BatteryPower, []float64{-1200})
	assert.Equal(t, data.GridExportLimit, float64(8000))
	assert.Equal(t, data.InverterStatus, 2)
}

func TestSetModeBuy(t *testing.T) {
	services := &recordingServices{}
	inv := newSolarAssistant(hass.NewMemoryStateStore(), services)

	err := inv.SetMode(context.Background(), qw.WorkModeCommand{Mode: "buy", Source: "timer", ChargeCurrent: 40})
	assert.NilError(t, err)

	// four grid charge switches on, four capacity points to 100, charge
	// current, then the work mode select
	assert.Equal(t, len(services.calls), 10)
	for i := 0; i < 4; i++ {
		assert.Equal(t, services.calls[i].service, "turn_on")
		assert.Equal(t, services.calls[i].entityID, fmt.Sprintf("switch.grid_charge_point_%d", i+1))
	}
	for i := 4; i < 8; i++ {
		assert.Equal(t, services.calls[i].value, float64(100))
	}
	assert.Equal(t, services.calls[8].entityID, "number.max_grid_charge_current")
	assert.Equal(t, services.calls[8].value, float64(40))
	assert.Equal(t, services.calls[9].entityID, "select.work_mode")
	assert.Equal(t, services.calls[9].value, "Zero export to CT")
}

func TestSetModeSell(t *testing.T) {
	services := &recordingServices{}
	inv := newSolarAssistant(hass.NewMemoryStateStore(), services)

	err := inv.SetMode(context.Background(), qw.WorkModeCommand{Mode: "sell", Source: "fusebox", DischargeCurrent: 60})
	assert.NilError(t, err)

	last := services.calls[len(services.calls)-1]
	assert.Equal(t, last.value, "Selling first")
	for i := 0; i < 4; i++ {
		assert.Equal(t, services.calls[i].service, "turn_off")
	}
}

func TestSetModeUnknown(t *testing.T) {
	inv := newSolarAssistant(hass.NewMemoryStateStore(), &recordingServices{})
	err := inv.SetMode(context.Background(), qw.WorkModeCommand{Mode: "frobnicate"})
	assert.ErrorContains(t, err, "unsupported work mode")
}

func TestForModelUnknown(t *testing.T) {
	_, err := ForModel(config.InverterConfig{InverterId: "inv1", Model: "acme"}, HostDeps{})
	assert.ErrorContains(t, err, "unsupported inverter model")
}

func TestForModelSolarAssistant(t *testing.T) {
	inv, err := ForModel(config.InverterConfig{
		InverterId:   "inv1",
		Model:        "solarassistant",
		EntityPrefix: prefix,
	}, HostDeps{States: hass.NewMemoryStateStore(), Services: hass.LogServiceCaller{}})
	assert.NilError(t, err)
	assert.Assert(t, inv != nil)
}
