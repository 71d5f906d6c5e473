package fec

import (
	"fmt"

	"github.com/pitscout/fountain/internal/protocol"
)

// Sender represents sender-side functions.
type Sender interface {
	K() int
	BlockSize() int
	TotalBytes() int
	Encode(n protocol.PacketNumber) ([]int, []byte)
	Next() (protocol.PacketNumber, []int, []byte)
	Reset()
}

// Receiver represents receiver-side functions.
type Receiver interface {
	K() int
	Add(indices []int, data []byte) ([]int, error)
	NumResolved() int
	Complete() bool
	Assemble(totalBytes int) ([]byte, error)
	State() DecoderState
}

// NewSender creates the packet generator for a payload under the given profile.
func NewSender(profile protocol.Profile, payload []byte, blockSize int, seed uint64) (*Generator, error) {
	switch profile {
	case protocol.ProfileFast, protocol.ProfileReliable:
		return newGenerator(payload, blockSize, func(k int) DegreeDistribution {
			return distributionFor(profile, k)
		}, seed)
	default:
		return nil, fmt.Errorf("unknown profile: %d", profile)
	}
}

// NewReceiver creates a decoder for a session of totalBytes split into blocks of blockSize.
// It fails if k doesn't match the block layout.
func NewReceiver(k int, totalBytes, blockSize int) (*Decoder, error) {
	if totalBytes <= 0 {
		return nil, fmt.Errorf("invalid payload size %d", totalBytes)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	if want := NumBlocks(totalBytes, blockSize); want != k {
		return nil, fmt.Errorf("%d bytes in blocks of %d need %d source blocks, session declares %d", totalBytes, blockSize, want, k)
	}
	return NewDecoder(k, blockSize)
}
