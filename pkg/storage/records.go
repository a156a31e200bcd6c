// ABOUTME: Record layouts for the key-value backend
// ABOUTME: Each record is a tuple of columns encoded with EncodeValues

package storage

import (
	"fmt"

	"github.com/nainya/promptvault/pkg/model"
)

// Table prefixes
const (
	PREFIX_COLLECTION        = uint32(1000)
	PREFIX_PROMPT            = uint32(2000)
	PREFIX_PROMPT_COLLECTION = uint32(2100) // Index by (collectionID, createdAt, promptID)
	PREFIX_PROMPT_TITLE      = uint32(2200) // Index by (collectionID, title) -> promptID
	PREFIX_HEAD              = uint32(3000) // Head version number per prompt
	PREFIX_VERSION           = uint32(4000)
	PREFIX_VERSION_NUMBER    = uint32(4100) // Index by (promptID, versionNumber) -> versionID
	PREFIX_COMMENT           = uint32(5000)
	PREFIX_COMMENT_VERSION   = uint32(5100) // Index by (versionID, createdAt, commentID)
)

func collectionKey(collectionID string) []byte {
	return EncodeKey(PREFIX_COLLECTION, NewStringValue(collectionID))
}

func promptKey(promptID string) []byte {
	return EncodeKey(PREFIX_PROMPT, NewStringValue(promptID))
}

func promptCollectionKey(p *model.Prompt) []byte {
	return EncodeKey(PREFIX_PROMPT_COLLECTION,
		NewStringValue(p.CollectionID),
		NewTimeValue(p.CreatedAt),
		NewStringValue(p.PromptID),
	)
}

func promptTitleKey(collectionID, title string) []byte {
	return EncodeKey(PREFIX_PROMPT_TITLE, NewStringValue(collectionID), NewStringValue(title))
}

func headKey(promptID string) []byte {
	return EncodeKey(PREFIX_HEAD, NewStringValue(promptID))
}

func versionKey(versionID string) []byte {
	return EncodeKey(PREFIX_VERSION, NewStringValue(versionID))
}

func versionNumberKey(promptID string, number int) []byte {
	return EncodeKey(PREFIX_VERSION_NUMBER, NewStringValue(promptID), NewUint64Value(uint64(number)))
}

func commentKey(commentID string) []byte {
	return EncodeKey(PREFIX_COMMENT, NewStringValue(commentID))
}

func commentVersionKey(c *model.Comment) []byte {
	return EncodeKey(PREFIX_COMMENT_VERSION,
		NewStringValue(c.VersionID),
		NewTimeValue(c.CreatedAt),
		NewStringValue(c.CommentID),
	)
}

func encodeCollection(c *model.Collection) []byte {
	return EncodeValues([]Value{
		NewStringValue(c.CollectionID),
		NewStringValue(c.Name),
		NewOptionalString(c.Description),
		NewTimeValue(c.CreatedAt),
	})
}

func decodeCollection(data []byte) (*model.Collection, error) {
	vals, err := decodeRecord(data, 4, "collection")
	if err != nil {
		return nil, err
	}
	return &model.Collection{
		CollectionID: vals[0].String(),
		Name:         vals[1].String(),
		Description:  vals[2].OptionalString(),
		CreatedAt:    vals[3].Time,
	}, nil
}

func encodePrompt(p *model.Prompt) []byte {
	return EncodeValues([]Value{
		NewStringValue(p.PromptID),
		NewStringValue(p.CollectionID),
		NewStringValue(p.Title),
		NewOptionalString(p.Description),
		NewTimeValue(p.CreatedAt),
		NewTimeValue(p.UpdatedAt),
	})
}

func decodePrompt(data []byte) (*model.Prompt, error) {
	vals, err := decodeRecord(data, 6, "prompt")
	if err != nil {
		return nil, err
	}
	return &model.Prompt{
		PromptID:     vals[0].String(),
		CollectionID: vals[1].String(),
		Title:        vals[2].String(),
		Description:  vals[3].OptionalString(),
		CreatedAt:    vals[4].Time,
		UpdatedAt:    vals[5].Time,
	}, nil
}

func encodeVersion(v *model.PromptVersion) []byte {
	return EncodeValues([]Value{
		NewStringValue(v.VersionID),
		NewStringValue(v.PromptID),
		NewStringValue(v.CollectionID),
		NewUint64Value(uint64(v.VersionNumber)),
		NewStringValue(v.Content),
		NewOptionalString(v.ChangesSummary),
		NewTimeValue(v.CreatedAt),
		NewOptionalString(v.RevertedFromVersion),
	})
}

func decodeVersion(data []byte) (*model.PromptVersion, error) {
	vals, err := decodeRecord(data, 8, "version")
	if err != nil {
		return nil, err
	}
	return &model.PromptVersion{
		VersionID:           vals[0].String(),
		PromptID:            vals[1].String(),
		CollectionID:        vals[2].String(),
		VersionNumber:       int(vals[3].U64),
		Content:             vals[4].String(),
		ChangesSummary:      vals[5].OptionalString(),
		CreatedAt:           vals[6].Time,
		RevertedFromVersion: vals[7].OptionalString(),
	}, nil
}

func encodeComment(c *model.Comment) []byte {
	return EncodeValues([]Value{
		NewStringValue(c.CommentID),
		NewStringValue(c.VersionID),
		NewStringValue(c.PromptID),
		NewStringValue(c.AuthorID),
		NewStringValue(c.Text),
		NewTimeValue(c.CreatedAt),
		NewOptionalTime(c.UpdatedAt),
	})
}

func decodeComment(data []byte) (*model.Comment, error) {
	vals, err := decodeRecord(data, 7, "comment")
	if err != nil {
		return nil, err
	}
	return &model.Comment{
		CommentID: vals[0].String(),
		VersionID: vals[1].String(),
		PromptID:  vals[2].String(),
		AuthorID:  vals[3].String(),
		Text:      vals[4].String(),
		CreatedAt: vals[5].Time,
		UpdatedAt: vals[6].OptionalTime(),
	}, nil
}

func decodeRecord(data []byte, columns int, kind string) ([]Value, error) {
	vals, err := DecodeValues(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if len(vals) < columns {
		return nil, fmt.Errorf("incomplete %s data", kind)
	}
	return vals, nil
}
