package protocol

import "hash/crc32"

// CRC32 computes the IEEE CRC-32 of data, the same algorithm the DFU bootloader uses
// for Select and Calculate Checksum responses.
//
// Every call starts from a zero seed; no running value is carried between calls.
// To checksum the first n bytes of an object pass data[:n].
func CRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// PrefixCRC32 returns the CRC-32 of the first n bytes of data.
// ok is false when n exceeds len(data), in which case the peripheral claims bytes
// the host never had and no checksum can match.
func PrefixCRC32(data []byte, n uint32) (crc uint32, ok bool) {
	if uint64(n) > uint64(len(data)) {
		return 0, false
	}
	return CRC32(data[:n]), true
}
