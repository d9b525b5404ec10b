// Package telemetry implements the acquisition loop: it drives a
// connection manager, feeds incoming bytes through the frame scanner
// and packet decoder, and emits decoded readings and lifecycle events
// to consumers.
package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Stefanor62/racebox-v/internal/groutine"
	"github.com/Stefanor62/racebox-v/internal/ringchan"
	"github.com/Stefanor62/racebox-v/pkg/config"
	"github.com/Stefanor62/racebox-v/pkg/connection"
	"github.com/Stefanor62/racebox-v/pkg/protocol"
)

// RawSink receives every raw notification chunk before framing. Used
// for debug raw-data logging; implementations must not block.
type RawSink interface {
	Push(chunk []byte)
}

// Loop is the telemetry acquisition orchestrator. It owns one
// connection manager and one frame scanner/decoder pair per live
// connection; readings are delivered to consumers strictly in frame
// arrival order.
type Loop struct {
	manager  *connection.Manager
	decoder  *protocol.Decoder
	logger   *logrus.Logger
	readings *ringchan.RingChannel[protocol.Reading]
	events   *ringchan.RingChannel[Event]
	rawSinks []RawSink

	decodeErrs atomic.Uint64
}

// NewLoop creates an acquisition loop over a transport described by cfg.
func NewLoop(transport connection.Transport, cfg *config.Config, logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		manager:  connection.NewManager(transport, cfg, logger),
		decoder:  protocol.NewDecoder(cfg.Parser.Scaling),
		logger:   logger,
		readings: ringchan.New[protocol.Reading](256),
		events:   ringchan.New[Event](64),
	}
}

// Readings returns the decoded reading stream, in frame arrival order.
// The channel is bounded: a consumer that falls behind loses the
// oldest readings rather than stalling acquisition.
func (l *Loop) Readings() <-chan protocol.Reading {
	return l.readings.C()
}

// Events returns the lifecycle/diagnostic event stream.
func (l *Loop) Events() <-chan Event {
	return l.events.C()
}

// DecodeErrorCount returns the number of frames rejected so far.
func (l *Loop) DecodeErrorCount() uint64 {
	return l.decodeErrs.Load()
}

// AddRawSink registers a pass-through sink for raw chunks. Must be
// called before Run.
func (l *Loop) AddRawSink(sink RawSink) {
	l.rawSinks = append(l.rawSinks, sink)
}

// Run drives the pipeline until the context is cancelled or the
// connection manager reaches terminal Disconnected. Malformed data
// never stops the loop; it degrades to diagnostics only.
func (l *Loop) Run(ctx context.Context) error {
	managerDone := make(chan error, 1)
	groutine.Go(ctx, "connection-manager", func(ctx context.Context) {
		managerDone <- l.manager.Run(ctx)
	})

	frames := protocol.NewFrameScanner()
	deviceSeen := false

	for {
		select {
		case <-ctx.Done():
			// In-flight chunks already pulled are decoded; nothing
			// new is started.
			l.drain(frames)
			<-managerDone
			l.drainStates(&deviceSeen)
			return nil

		case err := <-managerDone:
			l.drain(frames)
			l.drainStates(&deviceSeen)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil

		case chunk := <-l.manager.Data():
			l.ingest(frames, chunk)

		case change := <-l.manager.States():
			if change.State == connection.StateConnected {
				// One frame scanner per connection: stale partial
				// frames from a dropped link are never glued to
				// fresh data.
				frames = protocol.NewFrameScanner()
			}
			l.forwardState(change, &deviceSeen)
		}
	}
}

// ingest appends a chunk and decodes every complete candidate frame.
func (l *Loop) ingest(frames *protocol.FrameScanner, chunk []byte) {
	for _, sink := range l.rawSinks {
		sink.Push(chunk)
	}

	frames.Append(chunk)
	for {
		frame, ok := frames.Next()
		if !ok {
			return
		}

		reading, err := l.decoder.Decode(frame)
		if err != nil {
			l.decodeErrs.Add(1)

			var de *protocol.DecodeError
			kind := protocol.FieldParse
			if errors.As(err, &de) {
				kind = de.Kind
			}
			l.logger.WithFields(logrus.Fields{
				"kind":  kind.String(),
				"total": l.decodeErrs.Load(),
			}).Debug("Dropped invalid frame")

			l.events.Send(Event{Type: EventDecodeError, Time: time.Now(), DecodeKind: kind})
			continue
		}

		l.readings.Send(reading)
	}
}

// drain decodes whatever complete frames are already buffered before
// the loop exits.
func (l *Loop) drain(frames *protocol.FrameScanner) {
	for {
		select {
		case chunk := <-l.manager.Data():
			l.ingest(frames, chunk)
		default:
			return
		}
	}
}

// drainStates forwards transitions still buffered after the manager
// finished, so consumers always observe the terminal Disconnected.
func (l *Loop) drainStates(deviceSeen *bool) {
	for {
		select {
		case change := <-l.manager.States():
			l.forwardState(change, deviceSeen)
		default:
			return
		}
	}
}

// forwardState translates manager transitions into consumer events.
func (l *Loop) forwardState(change connection.StateChange, deviceSeen *bool) {
	now := time.Now()

	switch change.State {
	case connection.StateConnecting:
		if !*deviceSeen {
			*deviceSeen = true
			l.events.Send(Event{Type: EventDeviceFound, Time: now, Device: change.Device})
		}
	case connection.StateConnected:
		l.events.Send(Event{Type: EventConnected, Time: now, Device: change.Device, MTU: change.MTU})
	case connection.StateReconnecting:
		l.events.Send(Event{Type: EventReconnecting, Time: now, Attempt: change.Attempt})
	case connection.StateDisconnected:
		l.events.Send(Event{Type: EventDisconnected, Time: now, Reason: change.Err})
	}
}
