package protocol

// PacketNumber is the per-session sequence number of a transfer packet.
type PacketNumber int64

// ByteCount is used to count bytes of a payload.
type ByteCount int64

// FirstPacketNumber is the packet number of the first packet of every session.
const FirstPacketNumber PacketNumber = 0

// PacketType is the discriminator carried in the "type" field.
const PacketType = "fountain"

// RetiredTagField is a legacy field name that is never emitted.
const RetiredTagField = "tag"

// DefaultBlockSize is the source block size in bytes.
// 128 bytes of base64 text keeps a full legacy packet inside a version 10 QR code.
const DefaultBlockSize = 128

// MaxBlockSize bounds the block size so a packet still fits one QR frame.
const MaxBlockSize = 1024

// DefaultHeaderInterval is how often the compact stream repeats the session header.
const DefaultHeaderInterval = 8

// DefaultFrameRate is the number of frames shown per second.
const DefaultFrameRate = 8.0

// DefaultMaxPendingPackets bounds the packets buffered for a session whose header hasn't been seen.
const DefaultMaxPendingPackets = 512

// MaxSourceBlocks bounds k.
const MaxSourceBlocks = 1 << 16
