// Package fountain moves a payload between two devices over a one-way visual channel.
// A Transmitter turns the payload into an endless stream of fountain-coded frames,
// a Collector rebuilds it from whatever subset of frames gets scanned.
package fountain

import (
	"github.com/pitscout/fountain/internal/protocol"
	"github.com/pitscout/fountain/internal/wire"
)

// A Packet is one encoded unit of a transfer, independent of its wire format.
type Packet = wire.Packet

// A SessionHeader holds the session-level fields carried by header packets.
type SessionHeader = wire.SessionHeader

// A Format selects how packets are written to the wire.
type Format = wire.Format

const (
	// FormatCompact carries the session fields only on header packets.
	FormatCompact = wire.FormatCompact
	// FormatLegacy carries every field on every packet.
	FormatLegacy = wire.FormatLegacy
)

// A Profile tunes the degree distribution of a transfer.
type Profile = protocol.Profile

const (
	ProfileFast     = protocol.ProfileFast
	ProfileReliable = protocol.ProfileReliable
)

// ParseProfile parses a profile name as carried on the wire.
func ParseProfile(s string) (Profile, error) { return protocol.ParseProfile(s) }

// ParseFormat parses a wire format name ("compact" or "legacy").
func ParseFormat(s string) (Format, error) { return wire.ParseFormat(s) }

// EncodePacket writes p in the given wire format.
func EncodePacket(p *Packet, f Format) (string, error) { return wire.Encode(p, f) }

// DecodePacket parses scanned text in either wire format.
// It returns nil and an error wrapping ErrMalformed for anything that isn't a transfer packet.
func DecodePacket(s string) (*Packet, error) { return wire.Parse(s) }

// A PayloadHandler is told about the outcome of every session.
// It is called without any collector lock held.
type PayloadHandler interface {
	// HandlePayload is called once when a session's payload passed its checksum.
	HandlePayload(sessionID string, payload []byte)
	// HandleFailure is called once when a session failed terminally.
	HandleFailure(sessionID string, err error)
}
