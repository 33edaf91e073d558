package inverter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/qilowatt/qwbridge/internal/config"
	"github.com/qilowatt/qwbridge/internal/logging"
	"github.com/qilowatt/qwbridge/internal/qw"
	"github.com/qilowatt/qwbridge/internal/util"
)

// Deye SUN-*K-SG0xLP3 holding registers.
const (
	regGridChargeCurrent uint16 = 128
	regGridCharge        uint16 = 130
	regLimitControl      uint16 = 142
	regSolarSell         uint16 = 145
	regSolarSellPower    uint16 = 340

	regTotalGridBuyLow  uint16 = 522
	regTotalGridSellLow uint16 = 524

	regBatteryVoltage  uint16 = 587
	regBatteryCapacity uint16 = 588
	regBatteryPower    uint16 = 590

	regGridPowerTotal       uint16 = 625
	regInverterOutputPower1 uint16 = 633
	regLoadPowerTotal       uint16 = 653
)

// Values of the limit control register (142).
const (
	modeSellingFirst     uint16 = 0
	modeZeroExportToLoad uint16 = 1
	modeZeroExportToCT   uint16 = 2
)

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// TCP doesn't have .Close(), so wrap it:
type tcpHandlerWithClose struct {
	*modbus.TCPClientHandler
}

func (h *tcpHandlerWithClose) Close() error {
	// TCP doesn't need explicit close; safe no-op
	return nil
}

// Deye talks Modbus (RTU or TCP) to a Deye hybrid inverter directly. The
// mutex serializes bus access, so concurrent SetMode and telemetry reads
// are safe.
type Deye struct {
	inverterID string
	handler    modbusHandler
	client     modbus.Client

	mu sync.Mutex
	// Connection and backoff state
	connOK      bool
	backoff     time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration
	lastConnErr error
}

func NewDeye(cfg config.InverterConfig) (*Deye, error) {
	bus := cfg.Bus
	var handler modbusHandler
	switch strings.ToLower(bus.Type) {
	case "rtu":
		h := modbus.NewRTUClientHandler(bus.Port)
		h.BaudRate = bus.Baud
		h.DataBits = bus.DataBits
		h.Parity = bus.Parity
		h.StopBits = bus.StopBits
		h.SlaveId = bus.UnitId
		h.Timeout = bus.Timeout()
		if bus.Debug {
			h.Logger = logging.WrapSlog("inverter", cfg.InverterId)
		}
		handler = h
	case "tcp":
		h := modbus.NewTCPClientHandler(bus.TCPAddr)
		h.SlaveId = bus.UnitId
		h.Timeout = bus.Timeout()
		if bus.Debug {
			h.Logger = logging.WrapSlog("inverter", cfg.InverterId)
		}
		handler = &tcpHandlerWithClose{h}
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", bus.Type)
	}

	return &Deye{
		inverterID: cfg.InverterId,
		handler:    handler,
		client:     modbus.NewClient(handler),
		connOK:     true,
		backoff:    0, // means "ready to try now"
		backoffMin: 200 * time.Millisecond,
		backoffMax: 5 * time.Second,
	}, nil
}

func (d *Deye) ensureConnected(ctx context.Context) error {
	if d.connOK {
		return nil
	}
	if d.backoff > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.backoff):
		}
	}

	d.closeLocked() // cleanup any stale
	if err := d.handler.Connect(); err != nil {
		d.bumpBackoff(err)
		return err
	}

	d.client = modbus.NewClient(d.handler)
	d.connOK = true
	d.backoff = 0
	d.lastConnErr = nil
	return nil
}

func (d *Deye) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
}

func (d *Deye) closeLocked() {
	d.handler.Close()
	d.connOK = false
}

func (d *Deye) bumpBackoff(err error) {
	d.connOK = false
	d.lastConnErr = err
	if d.backoff == 0 {
		d.backoff = d.backoffMin
	} else {
		d.backoff *= 2
		if d.backoff > d.backoffMax {
			d.backoff = d.backoffMax
		}
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "reset") ||
		strings.Contains(s, "closed") ||
		strings.Contains(s, "i/o") ||
		strings.Contains(s, "timeout")
}

// withClient runs one bus operation under the lock, reconnecting once on a
// transient failure.
func (d *Deye) withClient(ctx context.Context, fn func(c modbus.Client) ([]byte, error)) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureConnected(ctx); err != nil {
		return nil, err
	}
	v, err := fn(d.client)
	if err == nil {
		return v, nil
	}
	if isTransient(err) {
		logging.Warn("modbus error, retrying once", "inverter", d.inverterID, "error", err)
		d.bumpBackoff(err)
		if err2 := d.ensureConnected(ctx); err2 == nil {
			return fn(d.client)
		}
	}
	return nil, err
}

func (d *Deye) readUint(ctx context.Context, reg uint16) (uint16, error) {
	b, err := d.withClient(ctx, func(c modbus.Client) ([]byte, error) {
		return c.ReadHoldingRegisters(reg, 1)
	})
	if err != nil {
		return 0, err
	}
	return util.WordToUint16(b), nil
}

func (d *Deye) readInt(ctx context.Context, reg uint16) (int16, error) {
	b, err := d.withClient(ctx, func(c modbus.Client) ([]byte, error) {
		return c.ReadHoldingRegisters(reg, 1)
	})
	if err != nil {
		return 0, err
	}
	return util.WordToInt16(b), nil
}

// readKWh reads a low/high register pair holding 0.1 kWh counts.
func (d *Deye) readKWh(ctx context.Context, regLow uint16) (float64, error) {
	b, err := d.withClient(ctx, func(c modbus.Client) ([]byte, error) {
		return c.ReadHoldingRegisters(regLow, 2)
	})
	if err != nil {
		return 0, err
	}
	return float64(util.LowHighToUint32(b)) / 10, nil
}

func (d *Deye) writeUint(ctx context.Context, reg uint16, value uint16) error {
	_, err := d.withClient(ctx, func(c modbus.Client) ([]byte, error) {
		return c.WriteMultipleRegisters(reg, 1, util.Uint16ToWord(value))
	})
	return err
}

func (d *Deye) GetEnergyData() (qw.EnergyData, error) {
	ctx := context.Background()

	b, err := d.withClient(ctx, func(c modbus.Client) ([]byte, error) {
		return c.ReadHoldingRegisters(regInverterOutputPower1, 3)
	})
	if err != nil {
		return qw.EnergyData{}, fmt.Errorf("output power read: %w", err)
	}
	power := []float64{
		float64(util.WordToInt16(b[0:2])),
		float64(util.WordToInt16(b[2:4])),
		float64(util.WordToInt16(b[4:6])),
	}

	totalBuy, err := d.readKWh(ctx, regTotalGridBuyLow)
	if err != nil {
		return qw.EnergyData{}, fmt.Errorf("grid buy read: %w", err)
	}

	// Grid voltage and frequency are not part of this register map.
	return qw.EnergyData{
		Power:     power,
		Today:     0,
		Total:     totalBuy,
		Current:   []float64{0, 0, 0},
		Voltage:   []float64{0, 0, 0},
		Frequency: 0,
	}, nil
}

func (d *Deye) GetMetricsData() (qw.MetricsData, error) {
	ctx := context.Background()

	soc, err := d.readUint(ctx, regBatteryCapacity)
	if err != nil {
		return qw.MetricsData{}, fmt.Errorf("battery soc read: %w", err)
	}
	batteryPower, err := d.readInt(ctx, regBatteryPower)
	if err != nil {
		return qw.MetricsData{}, fmt.Errorf("battery power read: %w", err)
	}
	batteryVoltage, err := d.readUint(ctx, regBatteryVoltage)
	if err != nil {
		return qw.MetricsData{}, fmt.Errorf("battery voltage read: %w", err)
	}
	loadPower, err := d.readUint(ctx, regLoadPowerTotal)
	if err != nil {
		return qw.MetricsData{}, fmt.Errorf("load power read: %w", err)
	}
	exportLimit, err := d.readUint(ctx, regSolarSellPower)
	if err != nil {
		return qw.MetricsData{}, fmt.Errorf("sell power read: %w", err)
	}

	return qw.MetricsData{
		PvPower:             []float64{0, 0},
		PvVoltage:           []float64{0, 0},
		PvCurrent:           []float64{0, 0},
		LoadPower:           []float64{float64(loadPower), 0, 0},
		AlarmCodes:          []int{0, 0, 0, 0, 0, 0},
		BatterySOC:          int(soc),
		LoadCurrent:         []float64{0, 0, 0},
		BatteryPower:        []float64{float64(batteryPower)},
		BatteryCurrent:      []float64{0},
		BatteryVoltage:      []float64{float64(batteryVoltage) / 100},
		InverterStatus:      2,
		GridExportLimit:     float64(exportLimit),
		BatteryTemperature:  []float64{0},
		InverterTemperature: 0,
	}, nil
}

// SetMode maps the qilowatt work modes onto the grid charge and limit
// control registers.
func (d *Deye) SetMode(ctx context.Context, cmd qw.WorkModeCommand) error {
	logging.Debug("controlling inverter", "inverter", d.inverterID, "mode", cmd.Mode)

	switch cmd.Mode {
	case "buy":
		if err := d.writeUint(ctx, regGridCharge, 1); err != nil {
			return err
		}
		if cmd.ChargeCurrent > 0 {
			if err := d.writeUint(ctx, regGridChargeCurrent, uint16(cmd.ChargeCurrent)); err != nil {
				return err
			}
		}
		return d.writeUint(ctx, regLimitControl, modeZeroExportToCT)

	case "sell":
		if err := d.writeUint(ctx, regGridCharge, 0); err != nil {
			return err
		}
		if err := d.writeUint(ctx, regSolarSell, 1); err != nil {
			return err
		}
		if cmd.PowerLimit > 0 {
			if err := d.writeUint(ctx, regSolarSellPower, uint16(cmd.PowerLimit)); err != nil {
				return err
			}
		}
		return d.writeUint(ctx, regLimitControl, modeSellingFirst)

	case "normal":
		if err := d.writeUint(ctx, regGridCharge, 0); err != nil {
			return err
		}
		return d.writeUint(ctx, regLimitControl, modeZeroExportToLoad)

	default:
		return fmt.Errorf("unsupported work mode: %s", cmd.Mode)
	}
}
