// Package sink provides consumers for the telemetry streams: a raw
// notification hex logger used for debugging and an optional MQTT
// publisher for decoded readings.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RawLog records every raw notification chunk as a timestamped hex
// dump in a per-session file. It implements telemetry.RawSink.
type RawLog struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	bytes uint64

	logger *logrus.Logger
}

// NewRawLog opens a session-stamped log file in dir.
func NewRawLog(dir string, logger *logrus.Logger) (*RawLog, error) {
	if logger == nil {
		logger = logrus.New()
	}

	session := uuid.NewString()[:8]
	name := fmt.Sprintf("racebox_raw_%s_%s.log", time.Now().Format("20060102_150405"), session)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw log file: %w", err)
	}

	logger.WithField("path", path).Info("Raw data logging enabled")
	return &RawLog{f: f, path: path, logger: logger}, nil
}

// Push appends one chunk as a hex line. Write errors are logged once
// per chunk and never propagate into the acquisition path.
func (s *RawLog) Push(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return
	}

	line := fmt.Sprintf("%s | %3d bytes | % X\n",
		time.Now().Format("15:04:05.000"), len(chunk), chunk)
	if _, err := s.f.WriteString(line); err != nil {
		s.logger.WithError(err).Warn("Failed to write raw log entry")
		return
	}
	s.bytes += uint64(len(chunk))
}

// BytesLogged returns the number of payload bytes recorded.
func (s *RawLog) BytesLogged() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Path returns the log file location.
func (s *RawLog) Path() string {
	return s.path
}

// Close flushes and closes the file. Push becomes a no-op afterwards.
func (s *RawLog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
