// Package conflict detects disagreements between provider matches. A
// conflict is never stored; it is recomputed from match state on every read
// so resolving either side clears it automatically.
package conflict

import (
	"cratedig/internal/library"
)

// Conflict describes two providers that matched the same track to different
// releases.
type Conflict struct {
	TrackID string
	Left    library.Provider
	LeftID  string
	Right   library.Provider
	RightID string
}

// Check reports the conflicts among a track's provider states. Only pairs
// where both sides are successful matches with differing release ids count.
func Check(trackID string, states map[library.Provider]library.ProviderState) []Conflict {
	providers := library.Providers()
	var conflicts []Conflict
	for i := 0; i < len(providers); i++ {
		for j := i + 1; j < len(providers); j++ {
			left, lok := states[providers[i]]
			right, rok := states[providers[j]]
			if !lok || !rok {
				continue
			}
			if !matched(left) || !matched(right) {
				continue
			}
			if left.ReleaseID == right.ReleaseID {
				continue
			}
			conflicts = append(conflicts, Conflict{
				TrackID: trackID,
				Left:    providers[i],
				LeftID:  left.ReleaseID,
				Right:   providers[j],
				RightID: right.ReleaseID,
			})
		}
	}
	return conflicts
}

// Conflicted reports whether any provider pair disagrees.
func Conflicted(states map[library.Provider]library.ProviderState) bool {
	return len(Check("", states)) > 0
}

func matched(state library.ProviderState) bool {
	return state.Status == library.StatusSuccess && state.ReleaseID != ""
}
