package domain

// DisplayState is what the remote message shows for a subject.
type DisplayState string

const (
	DisplayPending    DisplayState = "pending"
	DisplayProcessing DisplayState = "processing"
	DisplayApproved   DisplayState = "approved"
	DisplayRejected   DisplayState = "rejected"
	DisplayCompleted  DisplayState = "completed"
)

var displayRank = map[DisplayState]int{
	DisplayPending:    0,
	DisplayProcessing: 1,
	DisplayApproved:   2,
	DisplayRejected:   2,
	DisplayCompleted:  2,
}

// IsTerminal returns true for states that never change again.
func (d DisplayState) IsTerminal() bool {
	return displayRank[d] == 2
}

// CanAdvanceTo reports whether moving from d to next keeps the display monotonic.
// Terminal states accept nothing, including themselves.
func (d DisplayState) CanAdvanceTo(next DisplayState) bool {
	if d.IsTerminal() {
		return false
	}
	return displayRank[next] > displayRank[d]
}
