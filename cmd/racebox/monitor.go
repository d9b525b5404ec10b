package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Stefanor62/racebox-v/internal/groutine"
	"github.com/Stefanor62/racebox-v/pkg/connection"
	"github.com/Stefanor62/racebox-v/pkg/sink"
	"github.com/Stefanor62/racebox-v/pkg/telemetry"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream live telemetry from a RaceBox device",
	Long: `Connect to the nearest RaceBox device and display live GPS and
motion data. The connection is re-established automatically after a
link loss, up to the configured retry budget.

Press 'q' to quit and 'p' to pause the display.`,
	RunE: runMonitor,
}

var (
	monitorRawLog bool
	monitorBroker string
)

func init() {
	monitorCmd.Flags().BoolVar(&monitorRawLog, "raw-log", false, "Log raw BLE notifications to a file")
	monitorCmd.Flags().StringVar(&monitorBroker, "mqtt-broker", "", "Publish readings to this MQTT broker (e.g. tcp://host:1883)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if monitorRawLog {
		cfg.Debug.RawDataLogging = true
	}
	if monitorBroker != "" {
		cfg.MQTT.BrokerURL = monitorBroker
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	transport, err := connection.NewBLETransport(cfg.Bluetooth, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize BLE transport: %w", err)
	}

	loop := telemetry.NewLoop(transport, cfg, logger)

	var rawLog *sink.RawLog
	if cfg.Debug.RawDataLogging {
		rawLog, err = sink.NewRawLog(cfg.Debug.RawLogDir, logger)
		if err != nil {
			return fmt.Errorf("failed to open raw log: %w", err)
		}
		defer func() {
			_ = rawLog.Close()
			fmt.Printf("Raw data logged to %s (%d bytes)\n", rawLog.Path(), rawLog.BytesLogged())
		}()
		loop.AddRawSink(rawLog)
	}

	var publisher *sink.MQTTPublisher
	if cfg.MQTT.BrokerURL != "" {
		publisher, err = sink.NewMQTTPublisher(ctx, cfg.MQTT, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer publisher.Close()
	}

	keyboard, err := OpenKeyboard()
	if err != nil {
		return fmt.Errorf("failed to set up terminal: %w", err)
	}
	defer keyboard.Close()

	display := NewDisplay(cfg.Display, os.Stdout)
	display.SetRawMode(keyboard.Active())
	display.SetStatus("scanning")

	errCh := make(chan error, 1)
	groutine.Go(ctx, "telemetry-loop", func(ctx context.Context) {
		errCh <- loop.Run(ctx)
	})

	refresh := time.NewTicker(cfg.Display.RefreshRate)
	defer refresh.Stop()

	for {
		select {
		case runErr := <-errCh:
			display.SetStatus("disconnected")
			display.Render()
			keyboard.Close()
			fmt.Println()
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil

		case r := <-loop.Readings():
			display.SetReading(r)
			if publisher != nil {
				publisher.Publish(r)
			}

		case ev := <-loop.Events():
			applyEvent(display, ev)

		case key := <-keyboard.Keys():
			switch key {
			case 'q', 'Q', 0x03: // Ctrl+C in raw mode arrives as a byte
				cancel()
			case 'p', 'P', ' ':
				display.TogglePause()
			}

		case <-refresh.C:
			display.SetDecodeErrors(loop.DecodeErrorCount())
			display.Render()
		}
	}
}

// applyEvent folds a lifecycle event into the display state.
func applyEvent(display *Display, ev telemetry.Event) {
	switch ev.Type {
	case telemetry.EventDeviceFound:
		display.SetDevice(ev.Device.Name)
		display.SetStatus("connecting")
	case telemetry.EventConnected:
		display.SetDevice(ev.Device.Name)
		display.SetMTU(ev.MTU)
		display.SetStatus("connected")
	case telemetry.EventReconnecting:
		display.SetAttempt(ev.Attempt)
		display.SetStatus("reconnecting")
	case telemetry.EventDisconnected:
		display.SetStatus("disconnected")
	}
}
