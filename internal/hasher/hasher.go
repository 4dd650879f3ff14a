// Package hasher fingerprints ordered string sequences. Windows use it to
// recognise a reopened tab set as the same saved window.
package hasher

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// terminator follows every element so that an empty string still feeds
// bytes into the digest: ["a",""] and ["a"] hash differently.
const terminator = 0x00

// Size is the length of a digest in hex characters.
const Size = blake2b.Size256 * 2

// Ordered returns the hex BLAKE2b-256 digest of strs, folded in order.
// Each element is written as its uvarint length, its bytes and the
// terminator, so elements containing NUL cannot shift a boundary.
// It depends on nothing but its input.
func Ordered(strs []string) string {
	h, _ := blake2b.New256(nil) // only fails for an oversized key
	var buf []byte
	for _, s := range strs {
		buf = binary.AppendUvarint(buf[:0], uint64(len(s)))
		buf = append(buf, s...)
		buf = append(buf, terminator)
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
