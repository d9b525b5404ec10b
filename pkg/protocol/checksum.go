package protocol

// Checksum computes the UBX 8-bit Fletcher checksum over p and returns
// the two checksum bytes. For a full frame the covered region is
// everything between the sync bytes and the trailing checksum, i.e.
// frame[2 : PacketSize-2].
func Checksum(p []byte) (ckA, ckB byte) {
	for _, b := range p {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// verifyChecksum reports whether the trailing two bytes of an
// 80-byte frame match the Fletcher sum of its covered region.
func verifyChecksum(frame []byte) bool {
	ckA, ckB := Checksum(frame[2 : PacketSize-checksumSize])
	return frame[PacketSize-2] == ckA && frame[PacketSize-1] == ckB
}
