// ABOUTME: Prompt registry: collections, prompts and cascade deletion
// ABOUTME: Answers the existence checks the version engine depends on

package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
	"github.com/nainya/promptvault/pkg/storage"
	"github.com/nainya/promptvault/pkg/version"
)

// Registry manages collections and prompts
type Registry struct {
	db       storage.DB
	versions *version.Store
	log      zerolog.Logger
	now      func() time.Time
}

// NewRegistry creates a registry. Initial prompt content goes through versions.
func NewRegistry(db storage.DB, versions *version.Store, log zerolog.Logger) *Registry {
	return &Registry{db: db, versions: versions, log: log, now: time.Now}
}

// CreateCollection stores a new collection
func (r *Registry) CreateCollection(ctx context.Context, req CreateCollectionRequest) (*model.Collection, error) {
	if err := checkLength("name", req.Name, 1, MaxNameLength); err != nil {
		return nil, err
	}
	if err := checkDescription(req.Description); err != nil {
		return nil, err
	}

	c := &model.Collection{
		CollectionID: uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		CreatedAt:    r.now().UTC(),
	}
	err := r.update(ctx, "create collection", func(tx storage.Tx) error {
		return tx.PutCollection(c)
	})
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	r.log.Info().Str("collection_id", c.CollectionID).Msg("collection created")
	return c, nil
}

// GetCollection returns a collection by id
func (r *Registry) GetCollection(ctx context.Context, collectionID string) (*model.Collection, error) {
	var c *model.Collection
	err := r.db.View(ctx, func(tx storage.Tx) error {
		var err error
		c, err = tx.GetCollection(collectionID)
		return translate(err, "collection %s", collectionID)
	})
	return c, err
}

// ListCollections returns every collection, oldest first
func (r *Registry) ListCollections(ctx context.Context) ([]*model.Collection, error) {
	var collections []*model.Collection
	err := r.db.View(ctx, func(tx storage.Tx) error {
		var err error
		collections, err = tx.ListCollections()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return collections, nil
}

// DeleteCollection removes a collection together with its prompts, their
// versions and comments, in one transaction
func (r *Registry) DeleteCollection(ctx context.Context, collectionID string) error {
	var deleted int
	err := r.update(ctx, "delete collection", func(tx storage.Tx) error {
		if _, err := tx.GetCollection(collectionID); err != nil {
			return translate(err, "collection %s", collectionID)
		}
		prompts, err := tx.ListPrompts(collectionID)
		if err != nil {
			return fmt.Errorf("list prompts of %s: %w", collectionID, err)
		}
		for _, p := range prompts {
			if err := tx.DeletePrompt(p.PromptID); err != nil {
				return translate(err, "prompt %s", p.PromptID)
			}
		}
		deleted = len(prompts)
		return translate(tx.DeleteCollection(collectionID), "collection %s", collectionID)
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("collection_id", collectionID).
		Int("prompts_deleted", deleted).
		Msg("collection deleted")
	return nil
}

// CreatePrompt stores a prompt and records content as its version 1
func (r *Registry) CreatePrompt(ctx context.Context, req CreatePromptRequest) (*model.Prompt, *model.PromptVersion, error) {
	if err := checkLength("title", req.Title, 1, MaxTitleLength); err != nil {
		return nil, nil, err
	}
	if err := checkDescription(req.Description); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, nil, errs.InvalidArgument("prompt content is empty")
	}

	now := r.now().UTC()
	p := &model.Prompt{
		PromptID:     uuid.NewString(),
		CollectionID: req.CollectionID,
		Title:        req.Title,
		Description:  req.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.update(ctx, "create prompt", func(tx storage.Tx) error {
		if _, err := tx.GetCollection(req.CollectionID); err != nil {
			return translate(err, "collection %s", req.CollectionID)
		}
		if err := checkTitleFree(tx, req.CollectionID, req.Title, ""); err != nil {
			return err
		}
		return tx.PutPrompt(p)
	})
	if err != nil {
		return nil, nil, err
	}

	v, _, err := r.versions.Append(ctx, version.AppendRequest{
		PromptID:     p.PromptID,
		CollectionID: p.CollectionID,
		Content:      req.Content,
		Summary:      model.StringPtr(InitialSummary),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initial version of %s: %w", p.PromptID, err)
	}
	p.UpdatedAt = v.CreatedAt

	r.log.Info().
		Str("prompt_id", p.PromptID).
		Str("collection_id", p.CollectionID).
		Msg("prompt created")
	return p, v, nil
}

// GetPrompt returns a prompt by id
func (r *Registry) GetPrompt(ctx context.Context, promptID string) (*model.Prompt, error) {
	var p *model.Prompt
	err := r.db.View(ctx, func(tx storage.Tx) error {
		var err error
		p, err = tx.GetPrompt(promptID)
		return translate(err, "prompt %s", promptID)
	})
	return p, err
}

// ListPrompts returns prompts matching req, newest first
func (r *Registry) ListPrompts(ctx context.Context, req ListPromptsRequest) ([]*model.Prompt, error) {
	var prompts []*model.Prompt
	err := r.db.View(ctx, func(tx storage.Tx) error {
		var err error
		if req.CollectionID == "" {
			prompts, err = tx.AllPrompts()
			return err
		}
		if _, err := tx.GetCollection(req.CollectionID); err != nil {
			return translate(err, "collection %s", req.CollectionID)
		}
		prompts, err = tx.ListPrompts(req.CollectionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.Prompt, 0, len(prompts))
	query := strings.ToLower(req.Search)
	for i := len(prompts) - 1; i >= 0; i-- {
		if matches(prompts[i], query) {
			out = append(out, prompts[i])
		}
	}
	return out, nil
}

func matches(p *model.Prompt, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Title), query) ||
		(p.Description != nil && strings.Contains(strings.ToLower(*p.Description), query))
}

// UpdatePrompt changes a prompt's title or description and bumps UpdatedAt
func (r *Registry) UpdatePrompt(ctx context.Context, promptID string, req UpdatePromptRequest) (*model.Prompt, error) {
	if req.Title != nil {
		if err := checkLength("title", *req.Title, 1, MaxTitleLength); err != nil {
			return nil, err
		}
	}
	if err := checkDescription(req.Description); err != nil {
		return nil, err
	}

	var updated *model.Prompt
	err := r.update(ctx, "update prompt", func(tx storage.Tx) error {
		p, err := tx.GetPrompt(promptID)
		if err != nil {
			return translate(err, "prompt %s", promptID)
		}
		if req.Title != nil && *req.Title != p.Title {
			if err := checkTitleFree(tx, p.CollectionID, *req.Title, promptID); err != nil {
				return err
			}
			p.Title = *req.Title
		}
		if req.Description != nil {
			p.Description = req.Description
		}
		p.UpdatedAt = r.now().UTC()
		if err := tx.PutPrompt(p); err != nil {
			return fmt.Errorf("put prompt %s: %w", promptID, err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Str("prompt_id", promptID).Msg("prompt updated")
	return updated, nil
}

// DeletePrompt removes a prompt with its versions and their comments
func (r *Registry) DeletePrompt(ctx context.Context, promptID string) error {
	err := r.update(ctx, "delete prompt", func(tx storage.Tx) error {
		return translate(tx.DeletePrompt(promptID), "prompt %s", promptID)
	})
	if err != nil {
		return err
	}
	r.log.Info().Str("prompt_id", promptID).Msg("prompt deleted")
	return nil
}

// checkTitleFree fails when another prompt in the collection already has title
func checkTitleFree(tx storage.Tx, collectionID, title, exceptPromptID string) error {
	p, err := tx.PromptByTitle(collectionID, title)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up title in %s: %w", collectionID, err)
	}
	if p.PromptID != exceptPromptID {
		return errs.AlreadyExists("prompt titled %q in collection %s", title, collectionID)
	}
	return nil
}

// update runs fn in a write transaction. Losing a commit race to another
// writer is transient and surfaces as Unavailable.
func (r *Registry) update(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	err := r.db.Update(ctx, fn)
	if errors.Is(err, storage.ErrConflict) {
		return errs.Unavailable(err, "%s", op)
	}
	return err
}

// translate maps storage.ErrNotFound to errs.ErrNotFound
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return errs.NotFound(format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func checkLength(field, value string, minRunes, maxRunes int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < minRunes {
		return errs.InvalidArgument("%s is required", field)
	}
	if utf8.RuneCountInString(value) > maxRunes {
		return errs.InvalidArgument("%s exceeds %d characters", field, maxRunes)
	}
	return nil
}

func checkDescription(desc *string) error {
	if desc != nil && utf8.RuneCountInString(*desc) > MaxDescriptionLength {
		return errs.InvalidArgument("description exceeds %d characters", MaxDescriptionLength)
	}
	return nil
}
