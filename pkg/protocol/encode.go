package protocol

import (
	"encoding/binary"
	"time"
)

// EncodeFrame builds a wire frame from a Reading using the given
// scaling table. It is the inverse of Decoder.Decode and exists for
// tests and device emulation; physical values are rounded to the
// nearest raw integer.
func EncodeFrame(r Reading, scaling ScalingTable) []byte {
	frame := make([]byte, PacketSize)
	frame[0] = Sync1
	frame[1] = Sync2
	frame[2] = MsgClass
	frame[3] = MsgID
	binary.LittleEndian.PutUint16(frame[4:6], payloadSize)

	p := frame[headerSize : headerSize+payloadSize]

	itow := r.ITOW
	if itow == 0 && !r.Timestamp.IsZero() {
		itow = timeOfWeek(r.Timestamp)
	}
	binary.LittleEndian.PutUint32(p[offITOW:], itow)
	if !r.Timestamp.IsZero() {
		ts := r.Timestamp.UTC()
		binary.LittleEndian.PutUint16(p[offYear:], uint16(ts.Year()))
		p[offMonth] = byte(ts.Month())
		p[offDay] = byte(ts.Day())
		p[offHour] = byte(ts.Hour())
		p[offMinute] = byte(ts.Minute())
		p[offSecond] = byte(ts.Second())
		p[offValidity] = validDate | validTime
		binary.LittleEndian.PutUint32(p[offNanos:], uint32(int32(ts.Nanosecond())))
	}

	p[offFixStatus] = byte(r.FixStatus)
	p[offSatellites] = byte(r.Satellites)

	binary.LittleEndian.PutUint32(p[offLongitude:], uint32(roundi32(r.Longitude*scaling.Coordinate)))
	binary.LittleEndian.PutUint32(p[offLatitude:], uint32(roundi32(r.Latitude*scaling.Coordinate)))
	binary.LittleEndian.PutUint32(p[offAltWGS:], uint32(roundi32(r.AltitudeWGS*1000.0)))
	binary.LittleEndian.PutUint32(p[offAltMSL:], uint32(roundi32(r.AltitudeMSL*1000.0)))
	binary.LittleEndian.PutUint32(p[offHorizAcc:], uint32(roundi32(r.HorizAcc*1000.0)))
	binary.LittleEndian.PutUint32(p[offVertAcc:], uint32(roundi32(r.VertAcc*1000.0)))
	binary.LittleEndian.PutUint32(p[offSpeed:], uint32(roundi32(r.Speed/3.6*scaling.Speed)))
	binary.LittleEndian.PutUint32(p[offHeading:], uint32(roundi32(r.Heading*100000.0)))
	binary.LittleEndian.PutUint16(p[offPDOP:], uint16(roundi32(r.PDOP*100.0)))

	battery := byte(r.BatteryLevel & 0x7F)
	if r.Charging {
		battery |= 0x80
	}
	p[offBattery] = battery

	binary.LittleEndian.PutUint16(p[offGForceX:], uint16(roundi16(r.GForceX*scaling.Acceleration)))
	binary.LittleEndian.PutUint16(p[offGForceY:], uint16(roundi16(r.GForceY*scaling.Acceleration)))
	binary.LittleEndian.PutUint16(p[offGForceZ:], uint16(roundi16(r.GForceZ*scaling.Acceleration)))
	binary.LittleEndian.PutUint16(p[offRotationX:], uint16(roundi16(r.RotationX*scaling.Rotation)))
	binary.LittleEndian.PutUint16(p[offRotationY:], uint16(roundi16(r.RotationY*scaling.Rotation)))
	binary.LittleEndian.PutUint16(p[offRotationZ:], uint16(roundi16(r.RotationZ*scaling.Rotation)))

	ckA, ckB := Checksum(frame[2 : PacketSize-checksumSize])
	frame[PacketSize-2] = ckA
	frame[PacketSize-1] = ckB
	return frame
}

func roundi32(v float64) int32 {
	if v < 0 {
		return int32(v - 0.5)
	}
	return int32(v + 0.5)
}

func roundi16(v float64) int16 {
	if v < 0 {
		return int16(v - 0.5)
	}
	return int16(v + 0.5)
}

// timeOfWeek computes the GPS time-of-week in milliseconds for ts.
// Helper for emulation code that wants a consistent ITOW.
func timeOfWeek(ts time.Time) uint32 {
	ts = ts.UTC()
	weekday := int(ts.Weekday()) // Sunday == 0, matching the GPS week start
	midnight := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	return uint32(weekday)*86400000 + uint32(ts.Sub(midnight)/time.Millisecond)
}
