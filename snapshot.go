package fountain

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/pitscout/fountain/internal/fec"
	"github.com/pitscout/fountain/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const snapshotVersion = 1

type equationSnapshot struct {
	Indices []int  `cbor:"1,keyasint"`
	Data    []byte `cbor:"2,keyasint"`
}

type sessionSnapshot struct {
	Version    uint8  `cbor:"1,keyasint"`
	SessionID  string `cbor:"2,keyasint"`
	K          int    `cbor:"3,keyasint"`
	TotalBytes int64  `cbor:"4,keyasint"`
	Checksum   string `cbor:"5,keyasint"`
	Profile    string `cbor:"6,keyasint,omitempty"`
	BlockSize  int    `cbor:"7,keyasint"`
	// Seen are the accepted packet numbers, sorted.
	Seen      []int64            `cbor:"8,keyasint"`
	Resolved  map[int][]byte     `cbor:"9,keyasint"`
	Equations []equationSnapshot `cbor:"10,keyasint,omitempty"`
}

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	var err error
	if snapshotEncMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if snapshotDecMode, err = (cbor.DecOptions{MaxArrayElements: 1 << 20, MaxMapPairs: protocol.MaxSourceBlocks}).DecMode(); err != nil {
		panic(err)
	}
}

// Snapshot encodes the decode state of a collecting session, e.g. to survive an app suspend.
// Only sessions whose header is known can be snapshotted.
func (c *Collector) Snapshot(id string) ([]byte, error) {
	s, err := c.getSession(id)
	if err != nil {
		return nil, err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.state != StateCollecting || s.decoder == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCollecting, id, s.state)
	}

	st := s.decoder.State()
	seen := make([]int64, 0, len(s.seen))
	for n := range s.seen {
		seen = append(seen, int64(n))
	}
	slices.Sort(seen)
	snap := sessionSnapshot{
		Version:    snapshotVersion,
		SessionID:  s.id,
		K:          s.header.K,
		TotalBytes: int64(s.header.TotalBytes),
		Checksum:   s.header.Checksum,
		Profile:    s.header.Profile.String(),
		BlockSize:  s.decoder.BlockSize(),
		Seen:       seen,
		Resolved:   st.Resolved,
	}
	for _, eq := range st.Equations {
		snap.Equations = append(snap.Equations, equationSnapshot{Indices: eq.Indices, Data: eq.Data})
	}
	return snapshotEncMode.Marshal(snap)
}

// Restore adds a session from a Snapshot. It fails if the collector already holds a session with that ID.
// If the restored state resolves every block, the session is finished right away: the payload goes
// to the handler, and a checksum failure is returned as well as reported.
func (c *Collector) Restore(data []byte) error {
	var snap sessionSnapshot
	if err := snapshotDecMode.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %s", ErrBadSnapshot, err.Error())
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, snap.Version)
	}
	if snap.SessionID == "" || snap.Checksum == "" {
		return fmt.Errorf("%w: missing session fields", ErrBadSnapshot)
	}
	profile, err := protocol.ParseProfile(snap.Profile)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadSnapshot, err.Error())
	}
	if _, err := fec.NewReceiver(snap.K, int(snap.TotalBytes), snap.BlockSize); err != nil {
		return fmt.Errorf("%w: %s", ErrBadSnapshot, err.Error())
	}
	st := fec.DecoderState{Resolved: snap.Resolved}
	for _, eq := range snap.Equations {
		st.Equations = append(st.Equations, fec.EquationState{Indices: eq.Indices, Data: eq.Data})
	}
	d, err := fec.RestoreDecoder(snap.K, snap.BlockSize, st)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadSnapshot, err.Error())
	}

	s := newSession(snap.SessionID, c.config.MaxPendingPackets, c.logger, c.now())
	s.header = SessionHeader{
		K:          snap.K,
		TotalBytes: protocol.ByteCount(snap.TotalBytes),
		Checksum:   snap.Checksum,
		Profile:    profile,
	}
	s.decoder = d
	for _, n := range snap.Seen {
		s.seen[protocol.PacketNumber(n)] = struct{}{}
	}

	s.mx.Lock()
	c.mutex.Lock()
	if _, ok := c.sessions[snap.SessionID]; ok {
		c.mutex.Unlock()
		s.mx.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionExists, snap.SessionID)
	}
	c.sessions[snap.SessionID] = s
	c.mutex.Unlock()
	c.logger.Debug("session restored",
		zap.String("session", snap.SessionID),
		zap.Int("resolved", d.NumResolved()),
		zap.Int("k", snap.K),
	)
	if !d.Complete() {
		s.mx.Unlock()
		return nil
	}

	// the stored equations already determine every block
	s.state = StateResolving
	payload, err := s.finish()
	s.mx.Unlock()
	c.report(Status{SessionID: s.id, Payload: payload}, err)
	return err
}
