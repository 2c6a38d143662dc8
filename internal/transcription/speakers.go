package transcription

import (
	"fmt"
	"math"
	"sort"

	"github.com/codebuildervaibhav/call-transcription/internal/types"
)

// SpeakerLabels maps opaque diarization tags to "Caller N" labels
type SpeakerLabels map[string]string

// SortTurns returns a copy of turns ordered by start time. Turns that start
// at the same instant keep the diarizer's order.
func SortTurns(turns []types.SpeakerTurn) []types.SpeakerTurn {
	sorted := make([]types.SpeakerTurn, len(turns))
	copy(sorted, turns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	return sorted
}

// MapSpeakers numbers speakers in the order their tags first appear among
// the start-sorted turns, beginning at "Caller 1".
func MapSpeakers(turns []types.SpeakerTurn) SpeakerLabels {
	labels := make(SpeakerLabels)
	for _, turn := range SortTurns(turns) {
		if _, seen := labels[turn.Tag]; !seen {
			labels[turn.Tag] = fmt.Sprintf("Caller %d", len(labels)+1)
		}
	}
	return labels
}

// Label returns the caller label for tag
func (l SpeakerLabels) Label(tag string) string {
	if label, ok := l[tag]; ok {
		return label
	}
	return fmt.Sprintf("Unknown Speaker (%s)", tag)
}

// FormatTimestamp renders seconds as MM:SS. Minutes are not wrapped into
// hours.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	minutes := int(seconds / 60)
	secs := int(math.Mod(seconds, 60))
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
