package protocol

import (
	"encoding/binary"
	"time"
)

// Decoder turns candidate frames into Readings. Decoding is pure:
// a Decoder holds only the immutable scaling table and may be shared
// across goroutines decoding independent frames.
type Decoder struct {
	scaling ScalingTable
}

// NewDecoder creates a decoder with the given scaling table.
func NewDecoder(scaling ScalingTable) *Decoder {
	return &Decoder{scaling: scaling}
}

// Decode validates frame and decodes its payload into a Reading.
//
// Validation order: exact length, header consistency, Fletcher
// checksum. A frame that fails any step is rejected with a
// *DecodeError and no Reading is produced.
func (d *Decoder) Decode(frame []byte) (Reading, error) {
	if len(frame) != PacketSize {
		return Reading{}, newDecodeError(LengthMismatch, "got %d bytes, want %d", len(frame), PacketSize)
	}
	if frame[0] != Sync1 || frame[1] != Sync2 {
		return Reading{}, newDecodeError(FieldParse, "missing sync marker")
	}
	if !headerPlausible(frame) {
		return Reading{}, newDecodeError(FieldParse, "unexpected class/id %#02x/%#02x or payload length %d",
			frame[2], frame[3], binary.LittleEndian.Uint16(frame[4:6]))
	}
	if !verifyChecksum(frame) {
		return Reading{}, newDecodeError(ChecksumInvalid, "fletcher bytes do not match")
	}

	p := frame[headerSize : headerSize+payloadSize]

	r := Reading{
		ITOW:       binary.LittleEndian.Uint32(p[offITOW:]),
		FixStatus:  FixStatus(p[offFixStatus]),
		Satellites: int(p[offSatellites]),

		Longitude:   float64(int32(binary.LittleEndian.Uint32(p[offLongitude:]))) / d.scaling.Coordinate,
		Latitude:    float64(int32(binary.LittleEndian.Uint32(p[offLatitude:]))) / d.scaling.Coordinate,
		AltitudeWGS: float64(int32(binary.LittleEndian.Uint32(p[offAltWGS:]))) / 1000.0,
		AltitudeMSL: float64(int32(binary.LittleEndian.Uint32(p[offAltMSL:]))) / 1000.0,
		HorizAcc:    float64(binary.LittleEndian.Uint32(p[offHorizAcc:])) / 1000.0,
		VertAcc:     float64(binary.LittleEndian.Uint32(p[offVertAcc:])) / 1000.0,

		// mm/s -> m/s -> km/h
		Speed:   float64(int32(binary.LittleEndian.Uint32(p[offSpeed:]))) / d.scaling.Speed * 3.6,
		Heading: float64(int32(binary.LittleEndian.Uint32(p[offHeading:]))) / 100000.0,
		PDOP:    float64(binary.LittleEndian.Uint16(p[offPDOP:])) / 100.0,

		GForceX: float64(int16(binary.LittleEndian.Uint16(p[offGForceX:]))) / d.scaling.Acceleration,
		GForceY: float64(int16(binary.LittleEndian.Uint16(p[offGForceY:]))) / d.scaling.Acceleration,
		GForceZ: float64(int16(binary.LittleEndian.Uint16(p[offGForceZ:]))) / d.scaling.Acceleration,

		RotationX: float64(int16(binary.LittleEndian.Uint16(p[offRotationX:]))) / d.scaling.Rotation,
		RotationY: float64(int16(binary.LittleEndian.Uint16(p[offRotationY:]))) / d.scaling.Rotation,
		RotationZ: float64(int16(binary.LittleEndian.Uint16(p[offRotationZ:]))) / d.scaling.Rotation,

		// MSB flags an active charger, low 7 bits are the level.
		BatteryLevel: int(p[offBattery] & 0x7F),
		Charging:     p[offBattery]&0x80 != 0,
	}

	if p[offValidity]&(validDate|validTime) == validDate|validTime {
		r.Timestamp = time.Date(
			int(binary.LittleEndian.Uint16(p[offYear:])),
			time.Month(p[offMonth]),
			int(p[offDay]),
			int(p[offHour]), int(p[offMinute]), int(p[offSecond]),
			0, time.UTC,
		).Add(time.Duration(int32(binary.LittleEndian.Uint32(p[offNanos:]))) * time.Nanosecond)
	}

	return r, nil
}
