// ABOUTME: Prompt registry request types and field limits
// ABOUTME: Prompts own version histories; collections group prompts

package prompt

// Field limits in runes
const (
	MaxTitleLength       = 200
	MaxNameLength        = 200
	MaxDescriptionLength = 500
)

// InitialSummary annotates the version created together with a prompt
const InitialSummary = "Initial version"

// CreateCollectionRequest describes a new collection
type CreateCollectionRequest struct {
	Name        string
	Description *string
}

// CreatePromptRequest describes a new prompt and its first content
type CreatePromptRequest struct {
	CollectionID string
	Title        string
	Content      string
	Description  *string
}

// UpdatePromptRequest changes prompt metadata. Nil fields are left alone.
// Content changes go through the version store.
type UpdatePromptRequest struct {
	Title       *string
	Description *string
}

// ListPromptsRequest filters a prompt listing. Empty fields match everything.
type ListPromptsRequest struct {
	CollectionID string
	// Search matches a case-insensitive substring of the title or description
	Search string
}
