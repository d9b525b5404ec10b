package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Stefanor62/racebox-v/pkg/config"
	"github.com/Stefanor62/racebox-v/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for RaceBox devices",
	Long: `Scan for Bluetooth Low Energy devices and display the RaceBox units
in range with their names, addresses and signal strength.

Use --all to list every advertising device, not just RaceBox units.`,
	RunE: runScan,
}

var (
	scanDuration     time.Duration
	scanFormat       string
	scanAll          bool
	scanNoDuplicates bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Show all BLE devices, not only RaceBox units")
	scanCmd.Flags().BoolVar(&scanNoDuplicates, "no-duplicates", true, "Filter duplicate advertisements")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", scanFormat)
	}

	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	prefixes := cfg.Device.NamePrefixes
	if scanAll {
		prefixes = nil
	}

	s, err := scanner.NewScanner(logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewProgressPrinter("Scanning for RaceBox devices", "Scanning", scanDuration, "Processing results")
	progress.Start()
	defer progress.Stop()

	devices, err := s.Scan(ctx, &scanner.ScanOptions{
		Timeout:         scanDuration,
		DuplicateFilter: scanNoDuplicates,
		NamePrefixes:    prefixes,
	}, progress.Callback())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	progress.Stop()

	if scanFormat == "json" {
		return displayDevicesJSON(devices)
	}
	return displayDevicesTable(devices)
}

func displayDevicesTable(devices []scanner.DeviceDescriptor) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE\tLAST SEEN")

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%t\t%s ago\n",
			name, d.Address, d.RSSI, d.Connectable,
			time.Since(d.LastSeen).Truncate(time.Second))
	}

	return w.Flush()
}

func displayDevicesJSON(devices []scanner.DeviceDescriptor) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}

// loadConfig reads the file named by --config, or falls back to defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}
