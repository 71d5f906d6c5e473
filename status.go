package fountain

// A Verdict says what a Collector did with one packet.
type Verdict uint8

const (
	// VerdictAccepted means the packet was folded into the session, or buffered until its header arrives.
	VerdictAccepted Verdict = iota
	// VerdictDuplicate means a packet with the same session and packet number was already accepted.
	VerdictDuplicate
	// VerdictMalformed means the text isn't a transfer packet or its data isn't decodable.
	VerdictMalformed
	// VerdictInconsistent means the packet disagrees with the session's established fields or block size.
	VerdictInconsistent
	// VerdictInvalidReference means the packet references source blocks out of range or more than once.
	VerdictInvalidReference
	// VerdictClosed means the session already completed or failed.
	VerdictClosed
	// VerdictOverflow means the session buffers too many packets waiting for a header.
	VerdictOverflow
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictDuplicate:
		return "duplicate"
	case VerdictMalformed:
		return "malformed"
	case VerdictInconsistent:
		return "inconsistent"
	case VerdictInvalidReference:
		return "invalid reference"
	case VerdictClosed:
		return "closed"
	case VerdictOverflow:
		return "overflow"
	default:
		return "unknown verdict"
	}
}

// State is the life cycle state of a session.
type State uint8

const (
	StateCollecting State = iota
	// StateResolving is held while a packet's resolved blocks propagate through the pending packets.
	StateResolving
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateResolving:
		return "resolving"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown state"
	}
}

// Terminal says whether no packet can change the session anymore.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Status reports the outcome of ingesting one packet.
type Status struct {
	// SessionID is empty for malformed input.
	SessionID string
	Verdict   Verdict
	State     State
	// Resolved is the number of source blocks known. K is 0 until the session header is known.
	Resolved int
	K        int
	// Unlocked is the number of source blocks this packet resolved.
	Unlocked int
	// Payload is set on the one status that completes the session.
	Payload []byte
}

// Progress describes how far a session got.
type Progress struct {
	State    State
	Resolved int
	K        int
	// Expected estimates the number of distinct packets needed, from the profile's overhead.
	Expected int
	Received int
	Pending  int
}

// Fraction returns the share of resolved source blocks, in [0, 1].
func (p Progress) Fraction() float64 {
	if p.K == 0 {
		return 0
	}
	return float64(p.Resolved) / float64(p.K)
}
