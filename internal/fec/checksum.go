package fec

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const checksumSize = 8

// Checksum returns the hex digest carried in the checksum field.
func Checksum(payload []byte) string {
	h, err := blake2b.New(checksumSize, nil)
	if err != nil {
		// only returned for invalid sizes or keys
		panic(err)
	}
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
