package fountain

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/pitscout/fountain/internal/fec"
	"github.com/pitscout/fountain/internal/protocol"
	"github.com/pitscout/fountain/internal/wire"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const sessionIDLen = 8

// A Transmitter produces the frame stream of one transfer session.
// The stream never ends: it keeps producing new packets until the caller stops asking.
// A Transmitter is not safe for concurrent use.
type Transmitter struct {
	config *Config
	logger *zap.Logger

	sessionID string
	header    wire.SessionHeader
	sender    fec.Sender
}

// NewTransmitter starts a new session for payload.
func NewTransmitter(payload []byte, config *Config) (*Transmitter, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = populateConfig(config)

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	seed := config.Seed
	if seed == 0 {
		if seed, err = randomSeed(); err != nil {
			return nil, err
		}
	}
	sender, err := fec.NewSender(config.Profile, payload, config.BlockSize, seed)
	if err != nil {
		return nil, err
	}
	t := &Transmitter{
		config:    config,
		sessionID: id,
		header: wire.SessionHeader{
			K:          sender.K(),
			TotalBytes: protocol.ByteCount(len(payload)),
			Checksum:   fec.Checksum(payload),
			Profile:    config.Profile,
		},
		sender: sender,
	}
	t.logger = config.Logger.With(zap.String("session", id))
	t.logger.Debug("starting transfer",
		zap.Int("bytes", len(payload)),
		zap.Int("k", sender.K()),
		zap.Stringer("profile", config.Profile),
		zap.Stringer("format", config.Format),
	)
	return t, nil
}

// SessionID returns the random identifier of the session.
func (t *Transmitter) SessionID() string { return t.sessionID }

// Header returns the session-level fields of the transfer.
func (t *Transmitter) Header() SessionHeader { return t.header }

// Packet builds packet n of the stream. It doesn't move the cursor.
func (t *Transmitter) Packet(n protocol.PacketNumber) *Packet {
	indices, data := t.sender.Encode(n)
	return t.packet(n, indices, data)
}

func (t *Transmitter) packet(n protocol.PacketNumber, indices []int, data []byte) *Packet {
	p := &Packet{
		SessionID:    t.sessionID,
		PacketNumber: n,
		Indices:      indices,
		Data:         wire.EncodeData(data),
	}
	if t.carriesHeader(n) {
		h := t.header
		p.Header = &h
	}
	return p
}

func (t *Transmitter) carriesHeader(n protocol.PacketNumber) bool {
	if t.config.Format == FormatLegacy {
		return true
	}
	return int64(n-protocol.FirstPacketNumber)%int64(t.config.HeaderInterval) == 0
}

// NextPacket returns the packet at the cursor and advances it.
func (t *Transmitter) NextPacket() *Packet {
	return t.packet(t.sender.Next())
}

// NextFrame returns the wire text of the next packet.
func (t *Transmitter) NextFrame() (string, error) {
	return wire.Encode(t.NextPacket(), t.config.Format)
}

// Reset restarts the stream from the first packet number.
// The same packets are produced again.
func (t *Transmitter) Reset() { t.sender.Reset() }

// Run hands frames to display at the configured frame rate until ctx is done
// or display returns an error.
func (t *Transmitter) Run(ctx context.Context, display func(frame string) error) error {
	limiter := rate.NewLimiter(t.config.FrameRate, 1)
	var shown int
	defer func() {
		t.logger.Debug("display loop stopped", zap.Int("frames", shown))
	}()
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait gives up early if the next frame is due after the deadline
			<-ctx.Done()
			return ctx.Err()
		}
		frame, err := t.NextFrame()
		if err != nil {
			return err
		}
		if err := display(frame); err != nil {
			return err
		}
		shown++
	}
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func randomSeed() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generating seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
