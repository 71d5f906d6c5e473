package fec

// xorInto XORs src into dst byte by byte. dst must be at least as long as src.
func xorInto(dst, src []byte) []byte {
	for i := 0; i < len(src); i++ {
		dst[i] ^= src[i]
	}
	return dst
}

// combine returns the XOR of the given source blocks, all of length blockSize.
func combine(blocks [][]byte, indices []int, blockSize int) []byte {
	xorSoFar := make([]byte, blockSize)
	for _, i := range indices {
		xorInto(xorSoFar, blocks[i])
	}
	return xorSoFar
}
