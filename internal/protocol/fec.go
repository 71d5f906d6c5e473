package protocol

import "fmt"

// Profile selects the degree distribution and expected overhead of a transfer.
type Profile uint8

const (
	// ProfileUnset is carried by legacy packets that omit the profile field.
	ProfileUnset Profile = iota
	ProfileFast
	ProfileReliable
)

func (p Profile) String() string {
	switch p {
	case ProfileFast:
		return "fast"
	case ProfileReliable:
		return "reliable"
	case ProfileUnset:
		return ""
	default:
		return "unknown"
	}
}

// ParseProfile parses the wire name of a profile. The empty string maps to ProfileUnset.
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "fast":
		return ProfileFast, nil
	case "reliable":
		return ProfileReliable, nil
	case "":
		return ProfileUnset, nil
	default:
		return ProfileUnset, fmt.Errorf("unknown profile %q", s)
	}
}

// ProfileParams tunes the robust soliton distribution for a profile.
type ProfileParams struct {
	// C and Delta are the robust soliton parameters.
	C     float64
	Delta float64
	// Overhead is the expected ratio of packets needed to source blocks.
	Overhead float64
}

// Params returns the tuning for p. ProfileUnset uses the fast tuning.
func (p Profile) Params() ProfileParams {
	switch p {
	case ProfileReliable:
		// larger spike, more low-degree packets: more redundancy per frame
		return ProfileParams{C: 0.2, Delta: 0.05, Overhead: 1.6}
	default:
		return ProfileParams{C: 0.03, Delta: 0.5, Overhead: 1.25}
	}
}
