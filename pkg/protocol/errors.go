package protocol

import "fmt"

// DecodeErrorKind classifies why a frame was rejected.
type DecodeErrorKind int

const (
	// LengthMismatch: the frame is not exactly PacketSize bytes.
	LengthMismatch DecodeErrorKind = iota
	// ChecksumInvalid: the trailing Fletcher bytes do not match.
	ChecksumInvalid
	// FieldParse: the header fields (sync, class/id, payload length)
	// are inconsistent with a RaceBox data message.
	FieldParse
)

func (k DecodeErrorKind) String() string {
	switch k {
	case LengthMismatch:
		return "length mismatch"
	case ChecksumInvalid:
		return "checksum invalid"
	case FieldParse:
		return "field parse"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// DecodeError describes a rejected frame. Frames that fail decoding
// are dropped, never corrected.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("decode: %s", e.Kind)
	}
	return fmt.Sprintf("decode: %s: %s", e.Kind, e.Detail)
}

func newDecodeError(kind DecodeErrorKind, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
