// ABOUTME: Records shared by the version engine, comment store and storage backends
// ABOUTME: Versions are immutable snapshots; optional fields are pointers

package model

import "time"

// Collection groups prompts
type Collection struct {
	CollectionID string
	Name         string
	Description  *string
	CreatedAt    time.Time
}

// Prompt is the owner of a version history
type Prompt struct {
	PromptID     string
	CollectionID string
	Title        string
	Description  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time // Bumped whenever a new version is appended
}

// PromptVersion is one immutable content snapshot of a prompt
type PromptVersion struct {
	VersionID           string    // UUIDv4
	PromptID            string    // Owning prompt
	CollectionID        string    // Prompt's collection at creation time
	VersionNumber       int       // 1..N per prompt, no gaps
	Content             string    // Full text, not a delta
	ChangesSummary      *string   // Optional annotation
	CreatedAt           time.Time // UTC
	RevertedFromVersion *string   // VersionID whose content this version copies
}

// IsRevert reports whether the version was produced by a revert
func (v *PromptVersion) IsRevert() bool {
	return v.RevertedFromVersion != nil
}

// Comment is a free-text annotation on a version
type Comment struct {
	CommentID string
	VersionID string
	PromptID  string // Denormalized so prompt deletion can cascade
	AuthorID  string
	Text      string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
