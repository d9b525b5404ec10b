// Package scanner implements BLE device discovery and selection of
// RaceBox-family devices by advertised name prefix.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/Stefanor62/racebox-v/internal/bledev"
	"github.com/Stefanor62/racebox-v/internal/ringchan"
)

// DeviceDescriptor is a snapshot of a discovered peripheral. It is
// transient: produced by a scan, consumed by the selector, not owned
// beyond the scan result's lifetime.
type DeviceDescriptor struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	LastSeen    time.Time `json:"lastSeen"`
	// Order is the sequence in which the device was first seen;
	// used to break RSSI ties deterministically.
	Order int `json:"-"`
}

// DeviceEventType marks if the device was newly discovered or updated.
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type       DeviceEventType
	Descriptor DeviceDescriptor
}

// ProgressCallback is called when the scan phase changes.
type ProgressCallback func(phase string)

// ScanOptions configures scanning behavior.
type ScanOptions struct {
	Timeout         time.Duration
	DuplicateFilter bool
	// NamePrefixes restricts results to devices whose advertised name
	// starts with any of the prefixes. Empty means no restriction.
	NamePrefixes []string
}

// DefaultScanOptions returns default scanning options.
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Timeout:         10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles BLE device discovery.
type Scanner struct {
	devices *hashmap.Map[string, *DeviceDescriptor]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	opts  *ScanOptions
	order int
}

// NewScanner creates a new BLE scanner.
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		events: ringchan.New[DeviceEvent](100),
		logger: logger,
	}, nil
}

// Scan performs BLE discovery with the provided options and returns
// the discovered devices in discovery order.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progress ProgressCallback) ([]DeviceDescriptor, error) {
	s.devices = hashmap.New[string, *DeviceDescriptor]()
	s.order = 0

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}

	s.logger.WithFields(logrus.Fields{
		"timeout":  opts.Timeout,
		"prefixes": opts.NamePrefixes,
	}).Info("Starting BLE scan...")

	progress("Scanning")

	dev, err := bledev.Factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	scanCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s.opts = opts
	defer func() {
		s.opts = nil
	}()
	err = dev.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	progress("Processing results")
	return s.snapshot(), nil
}

// handleAdvertisement updates an existing descriptor or adds a new one.
func (s *Scanner) handleAdvertisement(adv blelib.Advertisement) {
	name := adv.LocalName()
	if !matchesAnyPrefix(name, s.opts.NamePrefixes) {
		return
	}

	addr := adv.Addr().String()
	now := time.Now()

	if desc, ok := s.devices.Get(addr); ok {
		desc.RSSI = adv.RSSI()
		desc.LastSeen = now
		if name != "" {
			desc.Name = name
		}
		s.events.Send(DeviceEvent{Type: EventUpdated, Descriptor: *desc})
		return
	}

	desc := &DeviceDescriptor{
		Name:        name,
		Address:     addr,
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		LastSeen:    now,
		Order:       s.order,
	}
	s.order++
	s.devices.Set(addr, desc)

	s.logger.WithFields(logrus.Fields{
		"device":  desc.Name,
		"address": desc.Address,
		"rssi":    desc.RSSI,
	}).Info("Discovered new device")

	s.events.Send(DeviceEvent{Type: EventNew, Descriptor: *desc})
}

// snapshot returns the discovered devices sorted by discovery order.
func (s *Scanner) snapshot() []DeviceDescriptor {
	devs := make([]DeviceDescriptor, 0, s.devices.Len())
	s.devices.Range(func(_ string, desc *DeviceDescriptor) bool {
		devs = append(devs, *desc)
		return true
	})
	sort.Slice(devs, func(i, j int) bool {
		return devs[i].Order < devs[j].Order
	})
	return devs
}

// Events returns a read-only stream of device events. The channel is
// bounded; slow consumers lose the oldest events, never block the scan.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
