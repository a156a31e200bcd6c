// ABOUTME: Version engine request types, append outcomes and the metrics hook
// ABOUTME: Shared by the Version Store and the Revert Coordinator

package version

// Outcome reports what an append or revert did
type Outcome int

const (
	// OutcomeCreated means a new version became the head
	OutcomeCreated Outcome = iota + 1
	// OutcomeUnchanged means the call was a no-op and the existing head was returned
	OutcomeUnchanged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// AppendRequest describes new content for a prompt
type AppendRequest struct {
	PromptID string

	// CollectionID, when set, must be the prompt's collection
	CollectionID string

	Content string
	Summary *string

	// RevertedFrom is set by the Revert Coordinator
	RevertedFrom *string
}

// RevertRequest asks for a prompt to be restored to an earlier version's content
type RevertRequest struct {
	PromptID        string
	CollectionID    string
	TargetVersionID string

	// Summary defaults to "Reverted to version N"
	Summary *string
}

// Recorder receives version engine events.
// internal/metrics implements it with Prometheus counters.
type Recorder interface {
	AppendOutcome(outcome string, attempts int)
	AllocatorConflict()
	RevertOutcome(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AppendOutcome(string, int) {}
func (nopRecorder) AllocatorConflict()        {}
func (nopRecorder) RevertOutcome(string)      {}
