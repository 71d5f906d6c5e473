package fec

import (
	"fmt"
	"math/rand"

	"github.com/pitscout/fountain/internal/protocol"
	"golang.org/x/exp/slices"
)

// Generator turns a payload into an unbounded stream of encoded blocks.
// The packet with number n is a pure function of the seed and n, so the stream can be restarted.
type Generator struct {
	blocks     [][]byte
	blockSize  int
	totalBytes int
	dist       DegreeDistribution
	seed       uint64
	next       protocol.PacketNumber
}

var _ Sender = &Generator{}

func newGenerator(payload []byte, blockSize int, dist func(k int) DegreeDistribution, seed uint64) (*Generator, error) {
	if blockSize <= 0 || blockSize > protocol.MaxBlockSize {
		return nil, fmt.Errorf("block size %d out of range (0, %d]", blockSize, protocol.MaxBlockSize)
	}
	blocks, err := Split(payload, blockSize)
	if err != nil {
		return nil, err
	}
	if len(blocks) > protocol.MaxSourceBlocks {
		return nil, fmt.Errorf("payload needs %d source blocks, max %d", len(blocks), protocol.MaxSourceBlocks)
	}
	return &Generator{
		blocks:     blocks,
		blockSize:  blockSize,
		totalBytes: len(payload),
		dist:       dist(len(blocks)),
		seed:       seed,
		next:       protocol.FirstPacketNumber,
	}, nil
}

func (g *Generator) K() int { return len(g.blocks) }
func (g *Generator) BlockSize() int { return g.blockSize }
func (g *Generator) TotalBytes() int { return g.totalBytes }

// Encode returns the source block indices (ascending) and the combined bytes of packet n.
func (g *Generator) Encode(n protocol.PacketNumber) ([]int, []byte) {
	r := rand.New(rand.NewSource(int64(mix(g.seed, uint64(n)))))
	k := len(g.blocks)
	d := g.dist.Sample(r)
	if d > k {
		d = k
	}
	indices := pick(r, k, d)
	return indices, combine(g.blocks, indices, g.blockSize)
}

// Next encodes the packet at the cursor and advances it.
func (g *Generator) Next() (protocol.PacketNumber, []int, []byte) {
	n := g.next
	g.next++
	indices, data := g.Encode(n)
	return n, indices, data
}

// Reset rewinds the cursor to the first packet number.
func (g *Generator) Reset() {
	g.next = protocol.FirstPacketNumber
}

// pick selects d distinct values from [0, k) uniformly (Floyd's algorithm) and sorts them.
func pick(r *rand.Rand, k, d int) []int {
	chosen := make(map[int]struct{}, d)
	out := make([]int, 0, d)
	for j := k - d; j < k; j++ {
		t := r.Intn(j + 1)
		if _, ok := chosen[t]; ok {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// mix derives the per-packet seed (splitmix64 finalizer).
func mix(seed, n uint64) uint64 {
	z := seed + (n+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
