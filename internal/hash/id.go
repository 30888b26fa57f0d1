// Package hash provides the fast non-cryptographic hashing archivepatch
// uses to build O(1) lookup indexes over ZIP entry filenames during
// pre-diff planning; it is never used for the CRC-32 values the ZIP
// format itself mandates (those stay hash/crc32, stdlib).
package hash

import "github.com/cespare/xxhash/v2"

// OfBytes computes the xxHash64 of a raw filename byte slice, used as
// the key for the planner's old/new filename index.
func OfBytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// OfString computes the xxHash64 of a string.
func OfString(data string) uint64 {
	return xxhash.Sum64String(data)
}
