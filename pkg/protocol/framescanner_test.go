package protocol_test

import (
	"testing"
	"time"

	"github.com/Stefanor62/racebox-v/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReading(speed float64) protocol.Reading {
	return protocol.Reading{
		Timestamp:    time.Date(2024, 6, 15, 14, 30, 12, 0, time.UTC),
		FixStatus:    protocol.Fix3D,
		Satellites:   11,
		Latitude:     42.670726,
		Longitude:    23.287813,
		AltitudeWGS:  625.76,
		AltitudeMSL:  590.095,
		Speed:        speed,
		Heading:      181.5,
		GForceX:      0.063,
		GForceY:      -0.120,
		GForceZ:      1.004,
		RotationX:    1.22,
		RotationY:    -0.57,
		RotationZ:    0.01,
		BatteryLevel: 89,
	}
}

func validFrame(t *testing.T, speed float64) []byte {
	t.Helper()
	frame := protocol.EncodeFrame(testReading(speed), protocol.DefaultScalingTable())
	require.Len(t, frame, protocol.PacketSize)
	return frame
}

func TestFrameScanner_SingleFrame(t *testing.T) {
	s := protocol.NewFrameScanner()
	frame := validFrame(t, 10)

	s.Append(frame)

	got, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, frame, got)

	_, ok = s.Next()
	assert.False(t, ok)
	assert.Zero(t, s.Buffered())
}

func TestFrameScanner_EmitsExactPacketSize(t *testing.T) {
	tests := []struct {
		name   string
		stream func(t *testing.T) []byte
		frames int
	}{
		{
			name: "back to back frames",
			stream: func(t *testing.T) []byte {
				return append(validFrame(t, 1), validFrame(t, 2)...)
			},
			frames: 2,
		},
		{
			name: "leading noise",
			stream: func(t *testing.T) []byte {
				noise := []byte{0x00, 0x13, 0x37, 0xB5, 0x00, 0x62}
				return append(noise, validFrame(t, 3)...)
			},
			frames: 1,
		},
		{
			name: "trailing partial frame retained",
			stream: func(t *testing.T) []byte {
				return append(validFrame(t, 4), validFrame(t, 5)[:protocol.PacketSize/2]...)
			},
			frames: 1,
		},
		{
			name: "noise only",
			stream: func(t *testing.T) []byte {
				return []byte{0x01, 0x02, 0x03, 0x04}
			},
			frames: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := protocol.NewFrameScanner()
			s.Append(tt.stream(t))

			count := 0
			for {
				frame, ok := s.Next()
				if !ok {
					break
				}
				assert.Len(t, frame, protocol.PacketSize)
				count++
			}
			assert.Equal(t, tt.frames, count)
		})
	}
}

func TestFrameScanner_ByteAtATime(t *testing.T) {
	s := protocol.NewFrameScanner()
	frame := validFrame(t, 42)

	for i, b := range frame {
		s.Append([]byte{b})
		got, ok := s.Next()
		if i < len(frame)-1 {
			require.False(t, ok, "no frame expected after %d bytes", i+1)
		} else {
			require.True(t, ok)
			assert.Equal(t, frame, got)
		}
	}
}

func TestFrameScanner_MarkerSplitAcrossChunks(t *testing.T) {
	s := protocol.NewFrameScanner()
	frame := validFrame(t, 7)

	// Noise ends with the first sync byte; the second arrives in the
	// next chunk together with the rest of the frame.
	s.Append([]byte{0xFF, 0xEE, frame[0]})
	_, ok := s.Next()
	require.False(t, ok)

	s.Append(frame[1:])
	got, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, frame, got)
}

func TestFrameScanner_FalseMarkerResync(t *testing.T) {
	s := protocol.NewFrameScanner()
	frame := validFrame(t, 88)

	// A bare sync marker inside noise has no plausible header behind
	// it; the scanner must skip it and still find the real frame.
	stream := []byte{protocol.Sync1, protocol.Sync2, 0x00, 0x00, 0x00, 0x00}
	stream = append(stream, frame...)
	s.Append(stream)

	got, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, frame, got)
}

func TestFrameScanner_NotRestartableAcrossInstances(t *testing.T) {
	// A fresh scanner starts with an empty buffer: a partial frame fed
	// to an old instance is not visible to a new one.
	old := protocol.NewFrameScanner()
	old.Append(validFrame(t, 9)[:10])
	assert.Equal(t, 10, old.Buffered())

	fresh := protocol.NewFrameScanner()
	assert.Zero(t, fresh.Buffered())
}
