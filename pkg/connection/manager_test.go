package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stefanor62/racebox-v/pkg/config"
	"github.com/Stefanor62/racebox-v/scanner"
)

type fakeLink struct {
	mtu          int
	mtuErr       error
	subscribeErr error

	mu           sync.Mutex
	onData       func([]byte)
	disconnected chan struct{}
	closed       bool
}

func newFakeLink(mtu int) *fakeLink {
	return &fakeLink{mtu: mtu, disconnected: make(chan struct{})}
}

func (l *fakeLink) ExchangeMTU(desired int) (int, error) {
	if l.mtuErr != nil {
		return 0, l.mtuErr
	}
	if l.mtu > desired {
		return desired, nil
	}
	return l.mtu, nil
}

func (l *fakeLink) Subscribe(onData func([]byte)) error {
	if l.subscribeErr != nil {
		return l.subscribeErr
	}
	l.mu.Lock()
	l.onData = onData
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) Write([]byte) error { return nil }

func (l *fakeLink) Disconnected() <-chan struct{} { return l.disconnected }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// push delivers a notification chunk as the transport would.
func (l *fakeLink) push(p []byte) {
	l.mu.Lock()
	onData := l.onData
	l.mu.Unlock()
	if onData != nil {
		onData(p)
	}
}

func (l *fakeLink) dropLink() { close(l.disconnected) }

type fakeTransport struct {
	mu      sync.Mutex
	devices []scanner.DeviceDescriptor
	scanErr error

	// dial results are consumed in order; the last entry repeats.
	dials     []dialResult
	dialCount int
}

type dialResult struct {
	link *fakeLink
	err  error
}

func (t *fakeTransport) Scan(ctx context.Context, _ time.Duration, _ []string) ([]scanner.DeviceDescriptor, error) {
	if t.scanErr != nil {
		return nil, t.scanErr
	}
	return t.devices, nil
}

func (t *fakeTransport) Dial(ctx context.Context, _ scanner.DeviceDescriptor, _ time.Duration) (Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.dialCount
	if i >= len(t.dials) {
		i = len(t.dials) - 1
	}
	t.dialCount++

	r := t.dials[i]
	if r.err != nil {
		return nil, r.err
	}
	return r.link, nil
}

func (t *fakeTransport) dialAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialCount
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Device.MaxRetryAttempts = 3
	cfg.Device.RetryDelay = 10 * time.Millisecond
	cfg.Bluetooth.ScanTimeout = 100 * time.Millisecond
	cfg.Bluetooth.ConnectionTimeout = 100 * time.Millisecond
	cfg.Bluetooth.DeviceTimeout = 80 * time.Millisecond
	return cfg
}

func raceboxDescriptor() scanner.DeviceDescriptor {
	return scanner.DeviceDescriptor{
		Name:    "RaceBox Mini 0042",
		Address: "AA:BB:CC:DD:EE:FF",
		RSSI:    -50,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// drainStates collects everything currently buffered on States().
func drainStates(m *Manager) []StateChange {
	var out []StateChange
	for {
		select {
		case s := <-m.States():
			out = append(out, s)
		default:
			return out
		}
	}
}

func statesSeen(changes []StateChange) []State {
	out := make([]State, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.State)
	}
	return out
}

func TestManager_RetriesExhausted(t *testing.T) {
	transport := &fakeTransport{
		devices: []scanner.DeviceDescriptor{raceboxDescriptor()},
		dials:   []dialResult{{err: errors.New("dial refused")}},
	}
	m := NewManager(transport, testConfig(), quietLogger())

	err := m.Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)

	// Exactly max_retry_attempts dials, then terminal: no automatic
	// retry beyond the budget.
	assert.Equal(t, 3, transport.dialAttempts())
	assert.Equal(t, StateDisconnected, m.State())

	changes := drainStates(m)
	last := changes[len(changes)-1]
	assert.Equal(t, StateDisconnected, last.State)
	assert.ErrorIs(t, last.Err, ErrRetriesExhausted)
	// Two Reconnecting transitions separate the three attempts.
	reconnects := 0
	for _, c := range changes {
		if c.State == StateReconnecting {
			reconnects++
		}
	}
	assert.Equal(t, 2, reconnects)
}

func TestManager_DeviceNotFound(t *testing.T) {
	tests := []struct {
		name      string
		transport *fakeTransport
	}{
		{
			name:      "empty scan result",
			transport: &fakeTransport{},
		},
		{
			name: "no name matches",
			transport: &fakeTransport{
				devices: []scanner.DeviceDescriptor{{Name: "Other Device", Address: "11:22:33:44:55:66", RSSI: -40}},
			},
		},
		{
			name:      "scan error",
			transport: &fakeTransport{scanErr: errors.New("adapter down")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.transport, testConfig(), quietLogger())

			err := m.Run(context.Background())
			require.ErrorIs(t, err, ErrDeviceNotFound)
			assert.Equal(t, StateDisconnected, m.State())
			assert.Zero(t, tt.transport.dialAttempts())
		})
	}
}

func TestManager_ConnectAndReceive(t *testing.T) {
	link := newFakeLink(247)
	transport := &fakeTransport{
		devices: []scanner.DeviceDescriptor{raceboxDescriptor()},
		dials:   []dialResult{{link: link}},
	}
	m := NewManager(transport, testConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Wait until the subscription is live, then push chunks.
	require.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, time.Second, time.Millisecond)

	link.push([]byte{0x01, 0x02})
	link.push([]byte{0x03})

	var chunks [][]byte
	timeout := time.After(time.Second)
	for len(chunks) < 2 {
		select {
		case c := <-m.Data():
			chunks = append(chunks, c)
		case <-timeout:
			t.Fatal("timed out waiting for chunks")
		}
	}
	assert.Equal(t, [][]byte{{0x01, 0x02}, {0x03}}, chunks)

	cancel()
	require.NoError(t, <-done)

	changes := drainStates(m)
	seen := statesSeen(changes)
	assert.Equal(t, []State{StateScanning, StateConnecting, StateNegotiating, StateConnected, StateDisconnected}, seen)

	for _, c := range changes {
		if c.State == StateConnected {
			assert.Equal(t, 247, c.MTU)
			assert.Equal(t, "RaceBox Mini 0042", c.Device.Name)
		}
	}
}

func TestManager_DegradedMTUIsNotFatal(t *testing.T) {
	tests := []struct {
		name string
		link *fakeLink
	}{
		{name: "smaller negotiated mtu", link: newFakeLink(23)},
		{
			name: "mtu exchange unsupported",
			link: func() *fakeLink {
				l := newFakeLink(0)
				l.mtuErr = errors.New("not supported")
				return l
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{
				devices: []scanner.DeviceDescriptor{raceboxDescriptor()},
				dials:   []dialResult{{link: tt.link}},
			}
			m := NewManager(transport, testConfig(), quietLogger())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- m.Run(ctx) }()

			require.Eventually(t, func() bool {
				return m.State() == StateConnected
			}, time.Second, time.Millisecond)

			cancel()
			require.NoError(t, <-done)
		})
	}
}

func TestManager_ReconnectAfterLinkLoss(t *testing.T) {
	first := newFakeLink(247)
	second := newFakeLink(247)
	transport := &fakeTransport{
		devices: []scanner.DeviceDescriptor{raceboxDescriptor()},
		dials:   []dialResult{{link: first}, {link: second}},
	}
	m := NewManager(transport, testConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, time.Second, time.Millisecond)

	first.dropLink()

	// The manager must come back through Reconnecting to Connected on
	// the second link.
	require.Eventually(t, func() bool {
		return transport.dialAttempts() == 2 && m.State() == StateConnected
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	first.mu.Lock()
	assert.True(t, first.closed)
	first.mu.Unlock()
}

func TestManager_IdleWatchdogDetectsSilentLink(t *testing.T) {
	first := newFakeLink(247)
	second := newFakeLink(247)
	transport := &fakeTransport{
		devices: []scanner.DeviceDescriptor{raceboxDescriptor()},
		dials:   []dialResult{{link: first}, {link: second}},
	}
	m := NewManager(transport, testConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Never push data on the first link: the idle watchdog must treat
	// the silence as link loss and reconnect.
	require.Eventually(t, func() bool {
		return transport.dialAttempts() == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestManager_StopDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.Device.RetryDelay = 10 * time.Second // stop must not wait this out

	transport := &fakeTransport{
		devices: []scanner.DeviceDescriptor{raceboxDescriptor()},
		dials:   []dialResult{{err: errors.New("dial refused")}},
	}
	m := NewManager(transport, cfg, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return m.State() == StateReconnecting
	}, time.Second, time.Millisecond)

	start := time.Now()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("stop request was not honored during backoff")
	}
}

func TestManager_SingleUse(t *testing.T) {
	transport := &fakeTransport{scanErr: errors.New("adapter down")}
	m := NewManager(transport, testConfig(), quietLogger())

	_ = m.Run(context.Background())
	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single-use")
}
