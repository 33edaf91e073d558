package main

// cSpell:ignore mqtt qwbridge workmode
import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qilowatt/qwbridge/internal/authz"
	"github.com/qilowatt/qwbridge/internal/bridge"
	"github.com/qilowatt/qwbridge/internal/config"
	"github.com/qilowatt/qwbridge/internal/hass"
	"github.com/qilowatt/qwbridge/internal/inverter"
	"github.com/qilowatt/qwbridge/internal/logging"
	"github.com/qilowatt/qwbridge/internal/messaging"
	"github.com/qilowatt/qwbridge/internal/qw"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	path := getenv("BRIDGE_CONFIG_PATH", "/etc/qwbridge/bridge-config.json")

	logging.Init()
	cfg, err := config.LoadBridgeConfig(path)
	if err != nil {
		logging.Fatal("Bridge config error", "error", err)
	}

	logging.Info("Loaded config",
		"inverters", len(cfg.Inverters),
		"pollSeconds", cfg.PollIntervalSeconds,
	)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := hass.NewLoop(cfg.TaskBufferSize)
	go loop.Run(ctx)

	states := hass.NewMemoryStateStore()
	dispatcher := hass.NewDispatcher()
	registry := bridge.NewRegistry()

	for _, invCfg := range cfg.Inverters {
		// The control-mode select entity starts in its default option
		// until the hosting layer writes something else.
		entityID := "select." + invCfg.InverterId + "_inverter_control"
		states.Register("select", bridge.Domain, bridge.ControlSelectUniqueID(invCfg.InverterId), entityID)
		states.SetState(entityID, authz.DefaultOption())

		adapter, err := inverter.ForModel(invCfg, inverter.HostDeps{
			States:   states,
			Services: hass.LogServiceCaller{},
		})
		if err != nil {
			logging.Fatal("inverter init", "inverter", invCfg.InverterId, "error", err)
		}

		client := bridge.NewClient(invCfg, bridge.Options{
			Loop:       loop,
			States:     states,
			Dispatcher: dispatcher,
			Inverter:   adapter,
			NewLink: func() qw.Link {
				return messaging.NewQilowattLink(messaging.LinkConfig{
					BrokerURL:         cfg.BrokerURL,
					Username:          invCfg.MqttUsername,
					Password:          invCfg.MqttPassword,
					InverterID:        invCfg.InverterId,
					InverterModel:     invCfg.Model,
					ConnectTimeout:    cfg.ConnectTimeout(),
					PublishTimeout:    cfg.PublishTimeout(),
					SubscribeTimeout:  cfg.SubscribeTimeout(),
					HeartbeatInterval: cfg.HeartbeatInterval(),
				})
			},
			PollInterval: cfg.PollInterval(),
		})
		if err := registry.Register(invCfg.InverterId, client); err != nil {
			logging.Fatal("client registry", "inverter", invCfg.InverterId, "error", err)
		}

		dispatcher.Connect(bridge.WorkModeSignal(invCfg.InverterId), func(payload any) {
			logging.Debug("workmode update", "inverter", invCfg.InverterId, "command", payload)
		})

		if err := client.Start(ctx); err != nil {
			logging.Fatal("client start", "inverter", invCfg.InverterId, "error", err)
		}
	}

	// Wait for SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	logging.Info("Shutting down", "signal", s)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	registry.StopAll(shutdownCtx)
	cancel()
	logging.Info("bye")
}
