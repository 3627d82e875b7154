package format

import "hash/crc32"

// Checksum computes the standard IEEE-polynomial CRC32 used for frame
// payloads and the index trailer. Canonical vector:
// Checksum([]byte("hello")) == 0x3610A686.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}
