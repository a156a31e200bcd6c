// ABOUTME: Revert coordinator: restores earlier content as a new version
// ABOUTME: History is never rewritten; reverting to the head is a no-op

package version

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
	"github.com/nainya/promptvault/pkg/storage"
)

// Reverter creates revert versions through the Store
type Reverter struct {
	store *Store
	log   zerolog.Logger
}

// NewReverter creates a revert coordinator sharing the store's logger and recorder
func NewReverter(store *Store) *Reverter {
	return &Reverter{store: store, log: store.log}
}

// Revert appends a copy of the target version's content with reverted_from
// pointing at it. The append still applies the no-op rule, so a target whose
// content matches the head yields the head unchanged.
func (r *Reverter) Revert(ctx context.Context, req RevertRequest) (*model.PromptVersion, Outcome, error) {
	if req.TargetVersionID == "" {
		return nil, 0, errs.InvalidArgument("target version id is required")
	}

	var target *model.PromptVersion
	err := r.store.db.View(ctx, func(tx storage.Tx) error {
		if _, err := loadPrompt(tx, req.PromptID, req.CollectionID); err != nil {
			return err
		}
		v, err := lookupVersion(tx, req.PromptID, req.TargetVersionID)
		if err != nil {
			return err
		}
		target = v
		return nil
	})
	if err != nil {
		r.store.rec.RevertOutcome("error")
		return nil, 0, err
	}

	summary := req.Summary
	if summary == nil {
		summary = model.StringPtr(fmt.Sprintf("Reverted to version %d", target.VersionNumber))
	}

	v, outcome, err := r.store.Append(ctx, AppendRequest{
		PromptID:     req.PromptID,
		CollectionID: req.CollectionID,
		Content:      target.Content,
		Summary:      summary,
		RevertedFrom: &target.VersionID,
	})
	if err != nil {
		r.store.rec.RevertOutcome("error")
		return nil, 0, err
	}

	r.store.rec.RevertOutcome(outcome.String())
	r.log.Info().
		Str("prompt_id", req.PromptID).
		Str("target_version_id", target.VersionID).
		Int("version_number", v.VersionNumber).
		Stringer("outcome", outcome).
		Msg("revert completed")
	return v, outcome, nil
}
