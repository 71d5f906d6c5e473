package fec

import (
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var (
	ErrInvalidIndex   = errors.New("source block index out of range")
	ErrDuplicateIndex = errors.New("duplicate source block index")
	ErrNoIndices      = errors.New("packet references no source blocks")
	ErrBlockLength    = errors.New("packet data length doesn't match the block size")
)

// equation is an accepted packet that still references at least two unresolved blocks.
// data has already been reduced by every resolved block it referenced.
type equation struct {
	unknown map[int]struct{}
	data    []byte
}

type resolution struct {
	index int
	data  []byte
}

// Decoder reconstructs source blocks from encoded packets by peeling. When peeling stalls
// it falls back to Gaussian elimination over the pending equations.
// It is not safe for concurrent use.
type Decoder struct {
	k         int
	blockSize int

	resolved    [][]byte
	numResolved int

	equations map[uint64]*equation
	// byIndex maps an unresolved block to the pending equations referencing it.
	byIndex map[int]map[uint64]struct{}
	nextID  uint64

	basis *basis
}

var _ Receiver = &Decoder{}

// NewDecoder creates a decoder for k source blocks of blockSize bytes.
func NewDecoder(k, blockSize int) (*Decoder, error) {
	if k <= 0 {
		return nil, fmt.Errorf("invalid number of source blocks %d", k)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	return &Decoder{
		k:         k,
		blockSize: blockSize,
		resolved:  make([][]byte, k),
		equations: make(map[uint64]*equation),
		byIndex:   make(map[int]map[uint64]struct{}),
	}, nil
}

func (d *Decoder) K() int { return d.k }

func (d *Decoder) BlockSize() int { return d.blockSize }

// NumResolved returns how many source blocks are known.
func (d *Decoder) NumResolved() int { return d.numResolved }

// Pending returns the number of equations waiting for more blocks.
func (d *Decoder) Pending() int { return len(d.equations) }

// Complete says whether every source block is resolved.
func (d *Decoder) Complete() bool { return d.numResolved == d.k }

// Resolved returns the bytes of block i, or nil if it isn't known yet. The slice must not be modified.
func (d *Decoder) Resolved(i int) []byte {
	if i < 0 || i >= d.k {
		return nil
	}
	return d.resolved[i]
}

func (d *Decoder) validate(indices []int, data []byte) error {
	if len(indices) == 0 {
		return ErrNoIndices
	}
	if len(data) != d.blockSize {
		return fmt.Errorf("%w: got %d, want %d", ErrBlockLength, len(data), d.blockSize)
	}
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= d.k {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, i, d.k)
		}
		if _, ok := seen[i]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateIndex, i)
		}
		seen[i] = struct{}{}
	}
	return nil
}

// Add folds one packet into the decoder and returns the blocks it resolved, in resolution order.
// An invalid packet returns an error and leaves the decoder untouched.
func (d *Decoder) Add(indices []int, data []byte) ([]int, error) {
	if err := d.validate(indices, data); err != nil {
		return nil, err
	}

	reduced := make([]byte, d.blockSize)
	copy(reduced, data)
	unknown := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if b := d.resolved[i]; b != nil {
			xorInto(reduced, b)
			continue
		}
		unknown[i] = struct{}{}
	}

	var (
		newly []int
		added *equation
	)
	switch len(unknown) {
	case 0:
		// nothing new
		return nil, nil
	case 1:
		for i := range unknown {
			newly = d.peel([]resolution{{index: i, data: reduced}})
		}
	default:
		added = d.addEquation(unknown, reduced)
	}
	// peeling and elimination feed each other until neither resolves anything
	for {
		res := d.eliminate(added)
		added = nil
		if len(res) == 0 {
			return newly, nil
		}
		newly = append(newly, d.peel(res)...)
	}
}

func (d *Decoder) addEquation(unknown map[int]struct{}, data []byte) *equation {
	id := d.nextID
	d.nextID++
	eq := &equation{unknown: unknown, data: data}
	d.equations[id] = eq
	for i := range unknown {
		refs, ok := d.byIndex[i]
		if !ok {
			refs = make(map[uint64]struct{})
			d.byIndex[i] = refs
		}
		refs[id] = struct{}{}
	}
	return eq
}

// peel resolves blocks from a worklist until no pending equation is left with a single unknown.
func (d *Decoder) peel(queue []resolution) []int {
	var newly []int
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if d.resolved[r.index] != nil {
			continue
		}
		d.resolved[r.index] = r.data
		d.numResolved++
		newly = append(newly, r.index)

		for id := range d.byIndex[r.index] {
			eq := d.equations[id]
			xorInto(eq.data, r.data)
			delete(eq.unknown, r.index)
			switch len(eq.unknown) {
			case 0:
				d.removeEquation(id)
			case 1:
				for last := range eq.unknown {
					queue = append(queue, resolution{index: last, data: eq.data})
				}
				d.removeEquation(id)
			}
		}
		delete(d.byIndex, r.index)
	}
	return newly
}

func (d *Decoder) removeEquation(id uint64) {
	eq, ok := d.equations[id]
	if !ok {
		return
	}
	for i := range eq.unknown {
		if refs, ok := d.byIndex[i]; ok {
			delete(refs, id)
			if len(refs) == 0 {
				delete(d.byIndex, i)
			}
		}
	}
	delete(d.equations, id)
}

// maxEliminationUnknowns bounds the system size handed to Gaussian elimination.
const maxEliminationUnknowns = 1024

type row struct {
	pivot int
	bits  []uint64
	data  []byte
	// done is set once the row is down to its pivot and has been reported as resolved
	done bool
}

func (r *row) has(c int) bool { return r.bits[c/64]>>(c%64)&1 == 1 }

func (r *row) xor(o *row) {
	for w := range o.bits {
		r.bits[w] ^= o.bits[w]
	}
	xorInto(r.data, o.data)
}

func (r *row) first() int {
	for w, v := range r.bits {
		if v != 0 {
			return w*64 + bits.TrailingZeros64(v)
		}
	}
	return -1
}

func (r *row) ones() int {
	n := 0
	for _, w := range r.bits {
		n += bits.OnesCount64(w)
	}
	return n
}

// basis holds the pending equations in reduced row echelon form over GF(2), so a pivot column
// is set in exactly one row. Columns are the blocks that were unresolved when it was built.
type basis struct {
	cols  []int
	colOf map[int]int
	rows  []*row
	// resolved is the decoder's NumResolved the rows account for
	resolved int
}

func (b *basis) row(eq *equation) *row {
	r := &row{bits: make([]uint64, (len(b.cols)+63)/64), data: slices.Clone(eq.data)}
	for i := range eq.unknown {
		c := b.colOf[i]
		r.bits[c/64] |= 1 << (c % 64)
	}
	return r
}

// insert reduces r against the basis and keeps it if it's independent. It returns the blocks
// that became determined.
func (b *basis) insert(r *row) []resolution {
	for _, p := range b.rows {
		if r.has(p.pivot) {
			r.xor(p)
		}
	}
	if r.pivot = r.first(); r.pivot < 0 {
		return nil
	}
	for _, p := range b.rows {
		if p.has(r.pivot) {
			p.xor(r)
		}
	}
	b.rows = append(b.rows, r)

	var res []resolution
	for _, p := range b.rows {
		if !p.done && p.ones() == 1 {
			p.done = true
			res = append(res, resolution{index: b.cols[p.pivot], data: slices.Clone(p.data)})
		}
	}
	return res
}

// eliminate resolves the blocks the pending equations determine but peeling can't reach.
// It only runs while there are at least as many equations as unresolved blocks. The basis is
// kept between calls and extended with added; it's rebuilt from every pending equation when
// blocks were resolved outside of it.
func (d *Decoder) eliminate(added *equation) []resolution {
	unknowns := d.k - d.numResolved
	if len(d.equations) < unknowns || unknowns > maxEliminationUnknowns {
		d.basis = nil
		return nil
	}
	if b := d.basis; b != nil && b.resolved == d.numResolved {
		if added == nil {
			return nil
		}
		res := b.insert(b.row(added))
		b.resolved += len(res)
		return res
	}

	b := &basis{
		cols:  make([]int, 0, unknowns),
		colOf: make(map[int]int, unknowns),
		rows:  make([]*row, 0, unknowns),
	}
	for i, blk := range d.resolved {
		if blk == nil {
			b.colOf[i] = len(b.cols)
			b.cols = append(b.cols, i)
		}
	}
	ids := maps.Keys(d.equations)
	slices.Sort(ids)
	var res []resolution
	for _, id := range ids {
		res = append(res, b.insert(b.row(d.equations[id]))...)
	}
	b.resolved = d.numResolved + len(res)
	d.basis = b
	return res
}

// Assemble concatenates all blocks and trims the result to totalBytes.
func (d *Decoder) Assemble(totalBytes int) ([]byte, error) {
	if !d.Complete() {
		return nil, fmt.Errorf("%w: %d of %d", ErrIncomplete, d.numResolved, d.k)
	}
	return assemble(d.resolved, totalBytes)
}

// EquationState is a pending equation as stored in a DecoderState.
type EquationState struct {
	Indices []int
	Data    []byte
}

// DecoderState is a copy of the decoder's progress, used for snapshots.
type DecoderState struct {
	Resolved  map[int][]byte
	Equations []EquationState
}

// State returns a deep copy of the decoder's progress.
func (d *Decoder) State() DecoderState {
	st := DecoderState{Resolved: make(map[int][]byte, d.numResolved)}
	for i, b := range d.resolved {
		if b != nil {
			st.Resolved[i] = slices.Clone(b)
		}
	}
	ids := maps.Keys(d.equations)
	slices.Sort(ids)
	for _, id := range ids {
		eq := d.equations[id]
		indices := maps.Keys(eq.unknown)
		slices.Sort(indices)
		st.Equations = append(st.Equations, EquationState{Indices: indices, Data: slices.Clone(eq.data)})
	}
	return st
}

// RestoreDecoder rebuilds a decoder from a state returned by State.
func RestoreDecoder(k, blockSize int, st DecoderState) (*Decoder, error) {
	d, err := NewDecoder(k, blockSize)
	if err != nil {
		return nil, err
	}
	for i, b := range st.Resolved {
		if i < 0 || i >= k {
			return nil, fmt.Errorf("%w: resolved block %d", ErrInvalidIndex, i)
		}
		if len(b) != blockSize {
			return nil, fmt.Errorf("%w: resolved block %d", ErrBlockLength, i)
		}
		if d.resolved[i] == nil {
			d.numResolved++
		}
		d.resolved[i] = slices.Clone(b)
	}
	for _, eq := range st.Equations {
		if _, err := d.Add(eq.Indices, eq.Data); err != nil {
			return nil, err
		}
	}
	return d, nil
}
