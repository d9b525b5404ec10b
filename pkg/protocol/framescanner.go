package protocol

// FrameScanner converts an append-only byte stream into complete
// candidate frames. It owns an accumulation buffer: bytes preceding a
// recognized start marker are discarded as noise, a marker followed by
// an implausible header is treated as a false match and skipped, and a
// partial frame is retained until more data arrives.
//
// A FrameScanner is bound to a single connection. It is not safe for
// concurrent use; the acquisition loop owns it exclusively. Create a
// fresh instance for every new connection.
type FrameScanner struct {
	buf []byte
}

// NewFrameScanner returns an empty scanner.
func NewFrameScanner() *FrameScanner {
	return &FrameScanner{buf: make([]byte, 0, 4*PacketSize)}
}

// Append adds a received chunk to the accumulation buffer.
func (s *FrameScanner) Append(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next extracts the next complete candidate frame, or returns false
// when the buffer holds no complete frame yet. Every returned frame is
// exactly PacketSize bytes and starts with the sync marker; checksum
// validation is the decoder's job.
func (s *FrameScanner) Next() ([]byte, bool) {
	for {
		s.resync()

		if len(s.buf) < headerSize {
			return nil, false
		}

		// A sync marker with a wrong class/id or payload length is a
		// false match inside other data; skip it and rescan from the
		// next marker.
		if !headerPlausible(s.buf) {
			s.buf = s.buf[2:]
			continue
		}

		if len(s.buf) < PacketSize {
			return nil, false
		}

		frame := make([]byte, PacketSize)
		copy(frame, s.buf[:PacketSize])
		s.buf = s.buf[PacketSize:]
		return frame, true
	}
}

// Buffered returns the number of bytes retained for a partial frame.
func (s *FrameScanner) Buffered() int {
	return len(s.buf)
}

// resync discards leading noise until the sync marker is aligned at
// the buffer head. A trailing 0xB5 is kept: it may be the first half
// of a marker split across chunks.
func (s *FrameScanner) resync() {
	for len(s.buf) >= 2 && !(s.buf[0] == Sync1 && s.buf[1] == Sync2) {
		s.buf = s.buf[1:]
	}
	if len(s.buf) == 1 && s.buf[0] != Sync1 {
		s.buf = s.buf[:0]
	}
}

// headerPlausible checks the fixed header of a marker-aligned buffer
// with at least headerSize bytes available.
func headerPlausible(b []byte) bool {
	return b[2] == MsgClass && b[3] == MsgID &&
		int(b[4])|int(b[5])<<8 == payloadSize
}
