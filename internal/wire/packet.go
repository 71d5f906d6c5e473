package wire

import (
	"encoding/base64"
	"fmt"

	"github.com/pitscout/fountain/internal/protocol"
	"golang.org/x/exp/slices"
)

// Format selects the wire shape used by Encode.
type Format uint8

const (
	// FormatCompact omits session fields on packets that don't carry the header.
	FormatCompact Format = iota
	// FormatLegacy carries every field on every packet.
	FormatLegacy
)

func (f Format) String() string {
	switch f {
	case FormatCompact:
		return "compact"
	case FormatLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseFormat parses the name of a wire format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "compact":
		return FormatCompact, nil
	case "legacy":
		return FormatLegacy, nil
	default:
		return 0, fmt.Errorf("unknown wire format %q", s)
	}
}

// SessionHeader holds the session-level fields of a transfer.
// A zero field means the packet didn't carry it.
type SessionHeader struct {
	K          int
	TotalBytes protocol.ByteCount
	Checksum   string
	Profile    protocol.Profile
}

// IsComplete says whether the header has everything needed to open a session.
func (h *SessionHeader) IsComplete() bool {
	return h.K > 0 && h.TotalBytes > 0 && h.Checksum != ""
}

// Conflicts reports whether two headers disagree on a field both of them carry.
func (h *SessionHeader) Conflicts(o *SessionHeader) bool {
	if h.K != 0 && o.K != 0 && h.K != o.K {
		return true
	}
	if h.TotalBytes != 0 && o.TotalBytes != 0 && h.TotalBytes != o.TotalBytes {
		return true
	}
	if h.Checksum != "" && o.Checksum != "" && h.Checksum != o.Checksum {
		return true
	}
	return h.Profile != protocol.ProfileUnset && o.Profile != protocol.ProfileUnset && h.Profile != o.Profile
}

// Packet is the in-memory form of a transfer packet, independent of the wire format.
type Packet struct {
	SessionID    string
	PacketNumber protocol.PacketNumber
	// Indices are the source blocks XORed into Data.
	Indices []int
	// Data is the text form of the combined block bytes.
	Data string
	// Header is set iff the packet carries the type discriminator and session fields.
	Header *SessionHeader
}

// Degree is the number of source blocks combined into the packet.
func (p *Packet) Degree() int { return len(p.Indices) }

// Payload decodes Data into the combined block bytes.
func (p *Packet) Payload() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("packet %d: %w", p.PacketNumber, err)
	}
	return b, nil
}

// Equal reports whether two packets are field-for-field equal.
func (p *Packet) Equal(o *Packet) bool {
	if p.SessionID != o.SessionID || p.PacketNumber != o.PacketNumber || p.Data != o.Data {
		return false
	}
	if !slices.Equal(p.Indices, o.Indices) {
		return false
	}
	if (p.Header == nil) != (o.Header == nil) {
		return false
	}
	return p.Header == nil || *p.Header == *o.Header
}

// EncodeData returns the text form of block bytes as carried in the data field.
func EncodeData(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
