package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/Stefanor62/racebox-v/internal/bledev"
	"github.com/Stefanor62/racebox-v/pkg/config"
	"github.com/Stefanor62/racebox-v/scanner"
)

// defaultWriteChunk is used until an MTU has been negotiated. BLE
// guarantees 23-byte ATT MTU, leaving 20 bytes per write.
const defaultWriteChunk = 20

// BLETransport implements Transport on top of go-ble. It dials the
// UART-style service described by the bluetooth configuration: one
// notify characteristic (device to host) and one write characteristic
// (host to device).
type BLETransport struct {
	serviceUUID ble.UUID
	rxCharUUID  ble.UUID
	txCharUUID  ble.UUID
	logger      *logrus.Logger
}

// NewBLETransport parses the configured UUIDs and returns a transport.
func NewBLETransport(cfg config.BluetoothConfig, logger *logrus.Logger) (*BLETransport, error) {
	if logger == nil {
		logger = logrus.New()
	}

	serviceUUID, err := ble.Parse(cfg.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid service UUID %q: %w", cfg.ServiceUUID, err)
	}
	rxCharUUID, err := ble.Parse(cfg.RxCharUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid RX characteristic UUID %q: %w", cfg.RxCharUUID, err)
	}
	txCharUUID, err := ble.Parse(cfg.TxCharUUID)
	if err != nil {
		return nil, fmt.Errorf("invalid TX characteristic UUID %q: %w", cfg.TxCharUUID, err)
	}

	return &BLETransport{
		serviceUUID: serviceUUID,
		rxCharUUID:  rxCharUUID,
		txCharUUID:  txCharUUID,
		logger:      logger,
	}, nil
}

// Scan discovers peripherals advertising a matching name.
func (t *BLETransport) Scan(ctx context.Context, timeout time.Duration, prefixes []string) ([]scanner.DeviceDescriptor, error) {
	s, err := scanner.NewScanner(t.logger)
	if err != nil {
		return nil, err
	}

	opts := &scanner.ScanOptions{
		Timeout:         timeout,
		DuplicateFilter: true,
		NamePrefixes:    prefixes,
	}
	return s.Scan(ctx, opts, nil)
}

// Dial connects to the peripheral, discovers the UART service and
// locates its characteristics.
func (t *BLETransport) Dial(ctx context.Context, desc scanner.DeviceDescriptor, timeout time.Duration) (Link, error) {
	if _, err := bledev.Factory(); err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"address": desc.Address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := ble.Dial(dialCtx, ble.NewAddr(desc.Address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", desc.Address, err)
	}

	t.logger.Debug("Connected, discovering services...")

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("failed to discover profile: %w", err)
	}

	var uartService *ble.Service
	for _, service := range profile.Services {
		if service.UUID.Equal(t.serviceUUID) {
			uartService = service
			break
		}
	}
	if uartService == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("UART service %s not found on %s", t.serviceUUID, desc.Address)
	}

	link := &bleLink{
		client:     client,
		logger:     t.logger,
		writeChunk: defaultWriteChunk,
	}
	for _, char := range uartService.Characteristics {
		switch {
		case char.UUID.Equal(t.txCharUUID):
			link.txChar = char
		case char.UUID.Equal(t.rxCharUUID):
			link.rxChar = char
		}
	}

	if link.txChar == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("TX characteristic %s not found", t.txCharUUID)
	}
	if link.rxChar == nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("RX characteristic %s not found", t.rxCharUUID)
	}

	t.logger.WithFields(logrus.Fields{
		"address": desc.Address,
		"service": uartService.UUID.String(),
	}).Info("UART service resolved")

	return link, nil
}

// bleLink adapts ble.Client to the Link interface.
type bleLink struct {
	client ble.Client
	txChar *ble.Characteristic
	rxChar *ble.Characteristic
	logger *logrus.Logger

	writeMu    sync.Mutex
	writeChunk int
}

func (l *bleLink) ExchangeMTU(desired int) (int, error) {
	mtu, err := l.client.ExchangeMTU(desired)
	if err != nil {
		return 0, fmt.Errorf("MTU exchange failed: %w", err)
	}

	l.writeMu.Lock()
	if chunk := mtu - 3; chunk > l.writeChunk {
		l.writeChunk = chunk
	}
	l.writeMu.Unlock()

	return mtu, nil
}

func (l *bleLink) Subscribe(onData func([]byte)) error {
	if err := l.client.Subscribe(l.txChar, false, onData); err != nil {
		return fmt.Errorf("failed to subscribe to TX characteristic: %w", err)
	}
	return nil
}

// Write sends data to the RX characteristic, split into MTU-sized
// chunks under a mutex so writers do not interleave.
func (l *bleLink) Write(data []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	for len(data) > 0 {
		n := len(data)
		if n > l.writeChunk {
			n = l.writeChunk
		}

		if err := l.client.WriteCharacteristic(l.rxChar, data[:n], false); err != nil {
			return fmt.Errorf("failed to write to RX characteristic: %w", err)
		}
		l.logger.WithField("bytes", n).Debug("Wrote chunk to device")
		data = data[n:]
	}
	return nil
}

func (l *bleLink) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

func (l *bleLink) Close() error {
	return l.client.CancelConnection()
}
