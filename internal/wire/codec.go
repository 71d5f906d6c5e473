package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/francoispqt/gojay"
	"github.com/pitscout/fountain/internal/protocol"
)

var (
	// ErrMalformed is wrapped by every error returned from Parse.
	ErrMalformed = errors.New("malformed transfer packet")
	// ErrMissingHeader is returned when encoding a legacy packet without session fields.
	ErrMissingHeader = errors.New("legacy packets need a session header")
)

const (
	keyType      = "type"
	keySessionID = "sessionId"
	keyPacketID  = "packetId"
	keyK         = "k"
	keyBytes     = "bytes"
	keyChecksum  = "checksum"
	keyIndices   = "indices"
	keyData      = "data"
	keyProfile   = "profile"
)

type indexList []int

func (l indexList) MarshalJSONArray(enc *gojay.Encoder) {
	for _, i := range l {
		enc.Int(i)
	}
}

func (l indexList) IsNil() bool { return l == nil }

func (l *indexList) UnmarshalJSONArray(dec *gojay.Decoder) error {
	var i int64
	if err := decodeInt(dec, &i); err != nil {
		return err
	}
	*l = append(*l, int(i))
	return nil
}

// decodeInt reads a number that has to be written as an integer. dec.Int64 would truncate 7.9 to 7.
func decodeInt(dec *gojay.Decoder, v *int64) error {
	var raw gojay.EmbeddedJSON
	if err := dec.EmbeddedJSON(&raw); err != nil {
		return err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %s", raw)
	}
	*v = n
	return nil
}

// packetObject is the JSON object for both shapes. The has* flags record which keys were present.
type packetObject struct {
	format Format

	typ       string
	sessionID string
	packetID  int64
	k         int64
	bytes     int64
	checksum  string
	indices   indexList
	data      string
	profile   string

	hasType, hasSessionID, hasPacketID bool
	hasK, hasBytes, hasChecksum        bool
	hasIndices, hasData, hasProfile    bool
}

func (o *packetObject) IsNil() bool { return o == nil }

func (o *packetObject) MarshalJSONObject(enc *gojay.Encoder) {
	if o.format == FormatLegacy {
		enc.StringKey(keyType, o.typ)
		enc.StringKey(keySessionID, o.sessionID)
		enc.Int64Key(keyPacketID, o.packetID)
		enc.Int64Key(keyK, o.k)
		enc.Int64Key(keyBytes, o.bytes)
		enc.StringKey(keyChecksum, o.checksum)
		enc.ArrayKey(keyIndices, o.indices)
		enc.StringKey(keyData, o.data)
		enc.StringKeyOmitEmpty(keyProfile, o.profile)
		return
	}
	enc.StringKeyOmitEmpty(keyType, o.typ)
	enc.StringKey(keySessionID, o.sessionID)
	enc.Int64Key(keyPacketID, o.packetID)
	enc.Int64KeyOmitEmpty(keyK, o.k)
	enc.Int64KeyOmitEmpty(keyBytes, o.bytes)
	enc.StringKeyOmitEmpty(keyChecksum, o.checksum)
	enc.ArrayKey(keyIndices, o.indices)
	enc.StringKey(keyData, o.data)
	enc.StringKeyOmitEmpty(keyProfile, o.profile)
}

func (o *packetObject) NKeys() int { return 0 }

func (o *packetObject) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	var seen *bool
	switch key {
	case keyType:
		seen = &o.hasType
	case keySessionID:
		seen = &o.hasSessionID
	case keyPacketID:
		seen = &o.hasPacketID
	case keyK:
		seen = &o.hasK
	case keyBytes:
		seen = &o.hasBytes
	case keyChecksum:
		seen = &o.hasChecksum
	case keyIndices:
		seen = &o.hasIndices
	case keyData:
		seen = &o.hasData
	case keyProfile:
		seen = &o.hasProfile
	default:
		// unknown keys, including the retired tag, are skipped
		return nil
	}
	if *seen {
		return fmt.Errorf("duplicate key %q", key)
	}
	*seen = true

	switch key {
	case keyType:
		return dec.String(&o.typ)
	case keySessionID:
		return dec.String(&o.sessionID)
	case keyPacketID:
		return decodeInt(dec, &o.packetID)
	case keyK:
		return decodeInt(dec, &o.k)
	case keyBytes:
		return decodeInt(dec, &o.bytes)
	case keyChecksum:
		return dec.String(&o.checksum)
	case keyIndices:
		return dec.Array(&o.indices)
	case keyData:
		return dec.String(&o.data)
	default:
		return dec.String(&o.profile)
	}
}

// Encode serializes p in the given format.
func Encode(p *Packet, f Format) (string, error) {
	o := getPacketObject()
	defer putPacketObject(o)
	o.format = f
	o.sessionID = p.SessionID
	o.packetID = int64(p.PacketNumber)
	o.indices = indexList(p.Indices)
	o.data = p.Data
	if o.indices == nil {
		o.indices = indexList{}
	}
	switch f {
	case FormatLegacy:
		if p.Header == nil {
			return "", ErrMissingHeader
		}
	case FormatCompact:
	default:
		return "", fmt.Errorf("unknown wire format %d", f)
	}
	if h := p.Header; h != nil {
		o.typ = protocol.PacketType
		o.k = int64(h.K)
		o.bytes = int64(h.TotalBytes)
		o.checksum = h.Checksum
		o.profile = h.Profile.String()
	}
	b, err := gojay.MarshalJSONObject(o)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse decodes a packet in either wire shape. The shape is detected from the fields present.
// Every error wraps ErrMalformed.
func Parse(s string) (*Packet, error) {
	raw := bytes.TrimSpace([]byte(s))
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	var object gojay.EmbeddedJSON
	if err := gojay.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	if len(object) != len(raw) {
		return nil, fmt.Errorf("%w: trailing data after the object", ErrMalformed)
	}
	o := getPacketObject()
	defer putPacketObject(o)
	if err := gojay.UnmarshalJSONObject(raw, o); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	p, err := o.toPacket()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}
	return p, nil
}

func (o *packetObject) toPacket() (*Packet, error) {
	if o.hasType && o.typ != protocol.PacketType {
		return nil, fmt.Errorf("unexpected type %q", o.typ)
	}
	if !o.hasSessionID || o.sessionID == "" {
		return nil, errors.New("missing sessionId")
	}
	if !o.hasPacketID {
		return nil, errors.New("missing packetId")
	}
	if o.packetID < 0 {
		return nil, fmt.Errorf("negative packetId %d", o.packetID)
	}
	if !o.hasData || o.data == "" {
		return nil, errors.New("missing data")
	}
	for _, i := range o.indices {
		if i < 0 {
			return nil, fmt.Errorf("negative index %d", i)
		}
	}
	profile, err := protocol.ParseProfile(o.profile)
	if err != nil {
		return nil, err
	}

	p := &Packet{
		SessionID:    o.sessionID,
		PacketNumber: protocol.PacketNumber(o.packetID),
		Indices:      []int(o.indices),
		Data:         o.data,
	}
	legacy := o.hasK && o.hasBytes && o.hasChecksum
	switch {
	case legacy:
		if !o.hasType {
			return nil, errors.New("missing type")
		}
		if !o.hasIndices || len(o.indices) == 0 {
			return nil, errors.New("missing indices")
		}
		if o.k <= 0 || o.bytes <= 0 {
			return nil, fmt.Errorf("invalid session size k=%d bytes=%d", o.k, o.bytes)
		}
	case o.hasType:
		if o.k < 0 || o.bytes < 0 {
			return nil, fmt.Errorf("invalid session size k=%d bytes=%d", o.k, o.bytes)
		}
		if !o.hasIndices {
			// header packets of single-block sessions may leave out the only index
			p.Indices = []int{0}
		} else if len(o.indices) == 0 {
			return nil, errors.New("empty indices")
		}
	default:
		if o.hasK || o.hasBytes || o.hasChecksum || o.hasProfile {
			return nil, errors.New("session fields without type")
		}
		if !o.hasIndices || len(o.indices) == 0 {
			return nil, errors.New("missing indices")
		}
	}
	if o.hasType {
		p.Header = &SessionHeader{
			K:          int(o.k),
			TotalBytes: protocol.ByteCount(o.bytes),
			Checksum:   o.checksum,
			Profile:    profile,
		}
	}
	return p, nil
}
