package fountain

import (
	"errors"

	"github.com/pitscout/fountain/internal/wire"
)

var (
	// ErrMalformed is wrapped by every error returned from DecodePacket.
	ErrMalformed = wire.ErrMalformed

	// ErrChecksumMismatch is returned when all source blocks were resolved but the
	// assembled payload doesn't match the declared checksum. The session is failed.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")

	ErrUnknownSession = errors.New("unknown session")
	ErrSessionExists  = errors.New("session already exists")
	// ErrNotCollecting is returned when snapshotting a session that has no decode state.
	ErrNotCollecting = errors.New("session is not collecting")
	ErrBadSnapshot   = errors.New("invalid session snapshot")

	ErrQueueFull   = errors.New("scan queue full")
	ErrQueueClosed = errors.New("scan queue closed")
)
