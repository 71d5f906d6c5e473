package fec

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPayload = errors.New("payload is empty")
	ErrIncomplete   = errors.New("not all source blocks are resolved")
)

// NumBlocks returns k for a payload of totalBytes split into blocks of blockSize.
func NumBlocks(totalBytes, blockSize int) int {
	return (totalBytes + blockSize - 1) / blockSize
}

// Split cuts the payload into source blocks of blockSize bytes. The last block is zero-padded.
func Split(payload []byte, blockSize int) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	k := NumBlocks(len(payload), blockSize)
	blocks := make([][]byte, k)
	for i := range blocks {
		b := make([]byte, blockSize)
		copy(b, payload[i*blockSize:])
		blocks[i] = b
	}
	return blocks, nil
}

// assemble concatenates the blocks in index order and trims the padding.
func assemble(blocks [][]byte, totalBytes int) ([]byte, error) {
	out := make([]byte, 0, len(blocks)*len(blocks[0]))
	for i, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("%w: block %d missing", ErrIncomplete, i)
		}
		out = append(out, b...)
	}
	if totalBytes > len(out) {
		return nil, fmt.Errorf("declared size %d exceeds %d assembled bytes", totalBytes, len(out))
	}
	return out[:totalBytes], nil
}
