package fountain

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pitscout/fountain/internal/fec"
	"github.com/pitscout/fountain/internal/protocol"
	"github.com/pitscout/fountain/internal/wire"
	"go.uber.org/zap"
)

type orphan struct {
	packet *wire.Packet
	data   []byte
}

// session is the decode state of one transfer. All fields are guarded by mx.
type session struct {
	mx sync.Mutex

	id         string
	logger     *zap.Logger
	maxPending int

	// header accumulates the session fields seen so far.
	// Once decoder is set, K, TotalBytes and Checksum are fixed.
	header  wire.SessionHeader
	decoder *fec.Decoder

	seen map[protocol.PacketNumber]struct{}
	// orphans are packets accepted before the header was complete.
	orphans []orphan

	state        State
	lastActivity time.Time
}

func newSession(id string, maxPending int, logger *zap.Logger, now time.Time) *session {
	return &session{
		id:           id,
		logger:       logger.With(zap.String("session", id)),
		maxPending:   maxPending,
		seen:         make(map[protocol.PacketNumber]struct{}),
		state:        StateCollecting,
		lastActivity: now,
	}
}

// mergeHeader fills the fields of h that o carries and h doesn't.
// The caller checks for conflicts first.
func mergeHeader(h wire.SessionHeader, o *wire.SessionHeader) wire.SessionHeader {
	if o == nil {
		return h
	}
	if h.K == 0 {
		h.K = o.K
	}
	if h.TotalBytes == 0 {
		h.TotalBytes = o.TotalBytes
	}
	if h.Checksum == "" {
		h.Checksum = o.Checksum
	}
	if h.Profile == protocol.ProfileUnset {
		h.Profile = o.Profile
	}
	return h
}

func (s *session) status(v Verdict) Status {
	st := Status{
		SessionID: s.id,
		Verdict:   v,
		State:     s.state,
		K:         s.header.K,
	}
	switch {
	case s.decoder != nil:
		st.Resolved = s.decoder.NumResolved()
	case s.state.Terminal():
		st.Resolved = s.header.K
	}
	return st
}

func (s *session) drop(p *wire.Packet, v Verdict, reason error) Status {
	s.logger.Debug("dropping packet",
		zap.Int64("packet", int64(p.PacketNumber)),
		zap.Stringer("verdict", v),
		zap.Error(reason),
	)
	return s.status(v)
}

// add folds p into the session. It returns the payload on completion, and an error
// wrapping ErrChecksumMismatch if the session failed. s.mx must be held.
func (s *session) add(p *wire.Packet, now time.Time) (Status, error) {
	if s.state.Terminal() {
		return s.status(VerdictClosed), nil
	}
	if _, ok := s.seen[p.PacketNumber]; ok {
		return s.status(VerdictDuplicate), nil
	}
	data, err := p.Payload()
	if err == nil && len(data) == 0 {
		err = errors.New("empty data")
	}
	if err != nil {
		return s.drop(p, VerdictMalformed, err), nil
	}
	if p.Header != nil && s.header.Conflicts(p.Header) {
		return s.drop(p, VerdictInconsistent, errors.New("session fields changed")), nil
	}

	header := mergeHeader(s.header, p.Header)
	d := s.decoder
	if d == nil {
		if !header.IsComplete() {
			if len(s.orphans) >= s.maxPending {
				return s.drop(p, VerdictOverflow, fmt.Errorf("%d packets waiting for the session header", len(s.orphans))), nil
			}
			s.header = header
			s.seen[p.PacketNumber] = struct{}{}
			s.orphans = append(s.orphans, orphan{packet: p, data: data})
			s.lastActivity = now
			return s.status(VerdictAccepted), nil
		}
		d, err = fec.NewReceiver(header.K, int(header.TotalBytes), len(data))
		if err != nil {
			return s.drop(p, VerdictInconsistent, err), nil
		}
	}

	unlocked, v, err := fold(d, p, data)
	if v != VerdictAccepted {
		return s.drop(p, v, err), nil
	}
	s.header = header
	s.seen[p.PacketNumber] = struct{}{}
	s.lastActivity = now
	if s.decoder == nil {
		s.decoder = d
		unlocked += s.replay()
		s.logger.Debug("session header complete",
			zap.Int("k", header.K),
			zap.Int64("bytes", int64(header.TotalBytes)),
			zap.Int("block_size", d.BlockSize()),
		)
	}

	var payload []byte
	if unlocked > 0 {
		s.state = StateResolving
		if d.Complete() {
			payload, err = s.finish()
		} else {
			s.state = StateCollecting
		}
	}
	st := s.status(VerdictAccepted)
	st.Unlocked = unlocked
	st.Payload = payload
	return st, err
}

// replay folds the buffered orphans into the freshly opened decoder, in arrival order.
func (s *session) replay() int {
	var unlocked int
	for _, o := range s.orphans {
		n, v, err := fold(s.decoder, o.packet, o.data)
		if v != VerdictAccepted {
			delete(s.seen, o.packet.PacketNumber)
			s.drop(o.packet, v, err)
			continue
		}
		unlocked += n
	}
	s.orphans = nil
	return unlocked
}

func fold(d *fec.Decoder, p *wire.Packet, data []byte) (int, Verdict, error) {
	resolved, err := d.Add(p.Indices, data)
	switch {
	case err == nil:
		return len(resolved), VerdictAccepted, nil
	case errors.Is(err, fec.ErrBlockLength):
		return 0, VerdictInconsistent, err
	default:
		return 0, VerdictInvalidReference, err
	}
}

// finish assembles and verifies the payload once every block is resolved.
func (s *session) finish() ([]byte, error) {
	d := s.decoder
	s.decoder = nil
	s.orphans = nil
	payload, err := d.Assemble(int(s.header.TotalBytes))
	if err == nil && fec.Checksum(payload) != s.header.Checksum {
		err = ErrChecksumMismatch
	}
	if err != nil {
		s.state = StateFailed
		s.logger.Warn("transfer failed", zap.Error(err))
		return nil, fmt.Errorf("session %s: %w", s.id, err)
	}
	s.state = StateComplete
	s.logger.Info("transfer complete",
		zap.Int("bytes", len(payload)),
		zap.Int("packets", len(s.seen)),
	)
	return payload, nil
}

func (s *session) progress() Progress {
	st := s.status(VerdictAccepted)
	p := Progress{
		State:    s.state,
		Resolved: st.Resolved,
		K:        st.K,
		Received: len(s.seen),
		Pending:  len(s.orphans),
	}
	if s.decoder != nil {
		p.Pending = s.decoder.Pending()
	}
	if p.K > 0 {
		p.Expected = int(math.Ceil(float64(p.K) * s.header.Profile.Params().Overhead))
	}
	return p
}
