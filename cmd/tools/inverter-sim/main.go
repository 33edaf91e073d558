package main

// cSpell:ignore mbserver Modbus deye
//
// Serves a Deye-style holding register map so the bridge can be bench
// tested without hardware: TCP by default, RTU when SIM_SERIAL_PORT is
// set.
import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/goburrow/serial"
	tcpsim "github.com/tbrandon/mbserver"
	rtusim "github.com/womat/mbserver"
)

// Register layout mirrors the deye adapter in internal/inverter.
const (
	regGridChargeCurrent = 128
	regGridCharge        = 130
	regLimitControl      = 142
	regSolarSell         = 145
	regSolarSellPower    = 340
	regTotalGridBuyLow   = 522
	regBatteryVoltage    = 587
	regBatteryCapacity   = 588
	regBatteryPower      = 590
	regOutputPower1      = 633
	regLoadPowerTotal    = 653
)

func seedDeye(set func(reg int, value uint16)) {
	set(regGridChargeCurrent, 40)
	set(regGridCharge, 0)
	set(regLimitControl, 1) // zero export to load
	set(regSolarSell, 0)
	set(regSolarSellPower, 5000)
	set(regTotalGridBuyLow, 1234) // 123.4 kWh, high word zero
	set(regBatteryVoltage, 5120)  // 51.20 V
	set(regBatteryCapacity, 78)
	set(regBatteryPower, 350)
	set(regOutputPower1, 900)
	set(regOutputPower1+1, 850)
	set(regOutputPower1+2, 920)
	set(regLoadPowerTotal, 2600)
}

func main() {
	if port := os.Getenv("SIM_SERIAL_PORT"); port != "" {
		runRTU(port)
		return
	}

	addr := os.Getenv("SIM_LISTEN_ADDR")
	if addr == "" {
		addr = ":1502"
	}

	srv := tcpsim.NewServer()
	seedDeye(func(reg int, value uint16) {
		srv.HoldingRegisters[reg] = value
	})

	if err := srv.ListenTCP(addr); err != nil {
		log.Fatalf("ListenTCP: %v", err)
	}
	defer srv.Close()
	log.Printf("Deye simulator listening on %s (tcp)", addr)
	// Wait forever
	for {
		time.Sleep(1 * time.Second)
	}
}

func runRTU(portName string) {
	baud := 9600
	if v := os.Getenv("SIM_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			baud = n
		}
	}
	unitID := uint8(1)
	if v := os.Getenv("SIM_UNIT_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			unitID = uint8(n)
		}
	}

	s := rtusim.NewServer()
	if unitID != 1 {
		if err := s.NewDevice(unitID); err != nil {
			log.Fatalf("NewDevice(%d): %v", unitID, err)
		}
	}
	seedDeye(func(reg int, value uint16) {
		s.Devices[unitID].HoldingRegisters[reg] = value
	})

	port, err := serial.Open(&serial.Config{
		Address:  portName,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  2 * time.Second,
	})
	if err != nil {
		log.Fatalf("serial open %s: %v", portName, err)
	}
	defer port.Close()

	if err := s.ListenRTU(port); err != nil {
		log.Fatalf("listenRTU: %v", err)
	}
	log.Printf("Deye simulator ready on %s (rtu, unit %d)", portName, unitID)
	for {
		time.Sleep(1 * time.Second)
	}
}
