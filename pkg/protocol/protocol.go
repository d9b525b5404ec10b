// Package protocol implements the RaceBox BLE wire format: fixed-size
// UBX-framed binary packets carrying GNSS and motion data.
//
// A data packet is 80 bytes: a 6-byte UBX header (sync bytes 0xB5 0x62,
// message class 0xFF, message id 0x01, little-endian payload length 72),
// a 72-byte payload and a 2-byte Fletcher checksum. The package provides
// a streaming frame scanner, a pure decoder and a frame encoder.
package protocol

import "time"

// Framing constants for the RaceBox data message.
const (
	Sync1 = 0xB5
	Sync2 = 0x62

	MsgClass = 0xFF
	MsgID    = 0x01

	// PacketSize is the total frame size on the wire.
	PacketSize = 80

	headerSize   = 6
	payloadSize  = 72
	checksumSize = 2
)

// Payload offsets, relative to the start of the 72-byte payload.
const (
	offITOW       = 0
	offYear       = 4
	offMonth      = 6
	offDay        = 7
	offHour       = 8
	offMinute     = 9
	offSecond     = 10
	offValidity   = 11
	offTimeAcc    = 12
	offNanos      = 16
	offFixStatus  = 20
	offFixFlags   = 21
	offDateFlags  = 22
	offSatellites = 23
	offLongitude  = 24
	offLatitude   = 28
	offAltWGS     = 32
	offAltMSL     = 36
	offHorizAcc   = 40
	offVertAcc    = 44
	offSpeed      = 48
	offHeading    = 52
	offPDOP       = 56
	offLLFlags    = 58
	offBattery    = 59
	offGForceX    = 60
	offGForceY    = 62
	offGForceZ    = 64
	offRotationX  = 66
	offRotationY  = 68
	offRotationZ  = 70
)

// Validity bits in the date/time validity byte.
const (
	validDate = 1 << 0
	validTime = 1 << 1
)

// FixStatus is the GNSS fix status reported by the device.
type FixStatus uint8

const (
	FixNone FixStatus = 0
	Fix2D   FixStatus = 2
	Fix3D   FixStatus = 3
)

// HasFix reports whether the device has a usable position fix.
func (f FixStatus) HasFix() bool {
	return f == Fix2D || f == Fix3D
}

func (f FixStatus) String() string {
	switch f {
	case Fix3D:
		return "3D FIX"
	case Fix2D:
		return "2D FIX"
	default:
		return "NO FIX"
	}
}

// Reading is a single decoded telemetry record. All fields are in
// physical units; a Reading is immutable once produced and carries no
// reference to the frame it was decoded from.
type Reading struct {
	// Timestamp is the GNSS UTC time of the sample. Zero when the
	// device has not yet resolved date and time.
	Timestamp time.Time
	ITOW      uint32 // GPS time of week, ms

	FixStatus  FixStatus
	Satellites int

	Latitude    float64 // degrees
	Longitude   float64 // degrees
	AltitudeWGS float64 // meters above WGS84 ellipsoid
	AltitudeMSL float64 // meters above mean sea level
	HorizAcc    float64 // meters
	VertAcc     float64 // meters
	Speed       float64 // km/h
	Heading     float64 // degrees
	PDOP        float64

	GForceX float64 // g
	GForceY float64
	GForceZ float64

	RotationX float64 // deg/s
	RotationY float64
	RotationZ float64

	BatteryLevel int // percent
	Charging     bool
}

// ScalingTable maps raw integer fields to physical units. Divisors
// follow the RaceBox protocol documentation; values are read-only
// after load and safe to share across concurrent decodes.
type ScalingTable struct {
	Acceleration float64 `yaml:"acceleration"` // raw per g (milli-g)
	Rotation     float64 `yaml:"rotation"`     // raw per deg/s (centi-deg/s)
	Coordinate   float64 `yaml:"coordinate"`   // raw per degree
	Speed        float64 `yaml:"speed"`        // raw per m/s (mm/s)
}

// DefaultScalingTable returns the divisors published for the RaceBox
// Mini, Mini S and Micro.
func DefaultScalingTable() ScalingTable {
	return ScalingTable{
		Acceleration: 1000.0,
		Rotation:     100.0,
		Coordinate:   10000000.0,
		Speed:        1000.0,
	}
}
