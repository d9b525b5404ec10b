package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Stefanor62/racebox-v/internal/ringchan"
	"github.com/Stefanor62/racebox-v/pkg/config"
	"github.com/Stefanor62/racebox-v/scanner"
)

// State enumerates the connection manager lifecycle.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateNegotiating
	StateConnected
	StateReconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange is a lifecycle transition published by the Manager.
type StateChange struct {
	State State
	// Attempt is the consecutive reconnect attempt, set for
	// StateReconnecting.
	Attempt int
	// MTU is the negotiated MTU, set for StateConnected.
	MTU int
	// Device is the selected peripheral, set once scanning succeeds.
	Device scanner.DeviceDescriptor
	// Err is the terminal reason, set for StateDisconnected.
	Err error
}

// Manager owns the lifecycle of a single device connection. It runs
// the state machine
//
//	Idle -> Scanning -> Connecting -> Negotiating -> Connected
//	Connected -> Reconnecting -> Connecting (bounded retries)
//	any -> Disconnected (terminal)
//
// Raw notification chunks are pushed to Data(); transitions to
// States(). A Manager is single-use: once Disconnected it stays
// terminal and a new instance is needed to try again.
type Manager struct {
	transport Transport
	device    config.DeviceConfig
	bluetooth config.BluetoothConfig
	logger    *logrus.Logger

	data   *ringchan.RingChannel[[]byte]
	states *ringchan.RingChannel[StateChange]

	// activity is pulsed on every received chunk; feeds the idle
	// watchdog.
	activity chan struct{}

	mu      sync.Mutex
	state   State
	started bool
}

// NewManager creates a manager over the given transport.
func NewManager(transport Transport, cfg *config.Config, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		transport: transport,
		device:    cfg.Device,
		bluetooth: cfg.Bluetooth,
		logger:    logger,
		data:      ringchan.New[[]byte](256),
		states:    ringchan.New[StateChange](32),
		activity:  make(chan struct{}, 1),
		state:     StateIdle,
	}
}

// Data returns the stream of raw notification chunks. The channel is
// bounded with overwrite-oldest semantics so a stalled consumer never
// blocks the notification path.
func (m *Manager) Data() <-chan []byte {
	return m.data.C()
}

// States returns the stream of lifecycle transitions.
func (m *Manager) States() <-chan StateChange {
	return m.states.C()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(change StateChange) {
	m.mu.Lock()
	m.state = change.State
	m.mu.Unlock()

	m.logger.WithField("state", change.State.String()).Debug("Connection state changed")
	m.states.Send(change)
}

// Run drives the state machine until the context is cancelled or the
// manager reaches terminal Disconnected. A stop request returns nil;
// discovery failure and retry exhaustion return their terminal error.
// Run may be called at most once per Manager.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("connection manager is single-use and was already started")
	}
	m.started = true
	m.mu.Unlock()

	err := m.run(ctx)

	reason := err
	if reason == nil {
		reason = ErrStopped
	}
	m.setState(StateChange{State: StateDisconnected, Err: reason})
	return err
}

func (m *Manager) run(ctx context.Context) error {
	// Discovery phase. No matching device within the scan timeout is
	// terminal: retries cover connection failures, not discovery.
	m.setState(StateChange{State: StateScanning})

	devs, err := m.transport.Scan(ctx, m.bluetooth.ScanTimeout, m.device.NamePrefixes)
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	target, err := scanner.PickDevice(devs, m.device.NamePrefixes)
	if err != nil {
		return fmt.Errorf("%w: no device matching %v", ErrDeviceNotFound, m.device.NamePrefixes)
	}

	m.logger.WithFields(logrus.Fields{
		"device":  target.Name,
		"address": target.Address,
		"rssi":    target.RSSI,
	}).Info("Device selected")

	attempts := 0
	for {
		link, err := m.connect(ctx, target)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			attempts++
			m.logger.WithFields(logrus.Fields{
				"attempt": attempts,
				"max":     m.device.MaxRetryAttempts,
				"error":   err,
			}).Warn("Connection attempt failed")

			if attempts >= m.device.MaxRetryAttempts {
				return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
			}
			if !m.backoff(ctx, attempts) {
				return nil
			}
			continue
		}

		// Successful return to Connected resets the retry budget.
		attempts = 0

		err = m.monitor(ctx, link)
		_ = link.Close()
		if ctx.Err() != nil {
			return nil
		}

		m.logger.WithError(err).Warn("Link lost, reconnecting")
		attempts++
		if attempts >= m.device.MaxRetryAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}
		if !m.backoff(ctx, attempts) {
			return nil
		}
	}
}

// connect performs one Connecting -> Negotiating -> Connected cycle.
func (m *Manager) connect(ctx context.Context, target scanner.DeviceDescriptor) (Link, error) {
	m.setState(StateChange{State: StateConnecting, Device: target})

	link, err := m.transport.Dial(ctx, target, m.bluetooth.ConnectionTimeout)
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			err = fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return nil, err
	}

	m.setState(StateChange{State: StateNegotiating, Device: target})

	mtu, err := link.ExchangeMTU(m.bluetooth.DesiredMTU)
	switch {
	case err != nil:
		// Negotiation failure is degraded mode, not fatal: the
		// default MTU still carries frames.
		m.logger.WithError(err).Warn("MTU negotiation failed, using transport default")
		mtu = 0
	case mtu < m.bluetooth.DesiredMTU:
		m.logger.WithFields(logrus.Fields{
			"desired":    m.bluetooth.DesiredMTU,
			"negotiated": mtu,
		}).Warn("Negotiated MTU below desired, continuing degraded")
	}

	if err := link.Subscribe(m.handleChunk); err != nil {
		_ = link.Close()
		return nil, err
	}

	m.setState(StateChange{State: StateConnected, MTU: mtu, Device: target})
	m.logger.WithFields(logrus.Fields{
		"device": target.Name,
		"mtu":    mtu,
	}).Info("Connected")
	return link, nil
}

// handleChunk is the notification callback: it pulses the idle
// watchdog and hands the chunk to the data stream. The chunk is copied
// because the transport may reuse its buffer.
func (m *Manager) handleChunk(p []byte) {
	select {
	case m.activity <- struct{}{}:
	default:
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)
	m.data.Send(chunk)
}

// monitor watches an established link until it is lost or the context
// is cancelled. Link loss is detected through the transport's own
// disconnect signal or through the device idle timeout.
func (m *Manager) monitor(ctx context.Context, link Link) error {
	idle := time.NewTimer(m.bluetooth.DeviceTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-link.Disconnected():
			return fmt.Errorf("%w: transport disconnect", ErrLinkLost)
		case <-m.activity:
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(m.bluetooth.DeviceTimeout)
		case <-idle.C:
			return fmt.Errorf("%w: no data for %s", ErrLinkLost, m.bluetooth.DeviceTimeout)
		}
	}
}

// backoff waits out the retry delay. Returns false when the context
// was cancelled while waiting.
func (m *Manager) backoff(ctx context.Context, attempt int) bool {
	m.setState(StateChange{State: StateReconnecting, Attempt: attempt})

	select {
	case <-ctx.Done():
		return false
	case <-time.After(m.device.RetryDelay):
		return true
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
