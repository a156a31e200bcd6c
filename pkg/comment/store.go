// ABOUTME: Comment store for free-text annotations on prompt versions
// ABOUTME: Only the original author may edit or delete a comment

package comment

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
)

// DefaultMaxLength is the comment length limit in runes
const DefaultMaxLength = 2000

// Recorder receives comment operation results
type Recorder interface {
	RecordComment(operation string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordComment(string, error) {}

// Store manages version comments
type Store struct {
	db        storage.DB
	maxLength int
	log       zerolog.Logger
	rec       Recorder
	now       func() time.Time
}

// Config holds comment store settings
type Config struct {
	MaxLength int // Runes; DefaultMaxLength when zero
	Logger    zerolog.Logger
	Recorder  Recorder
}

// NewStore creates a comment store
func NewStore(db storage.DB, cfg Config) *Store {
	s := &Store{
		db:        db,
		maxLength: cfg.MaxLength,
		log:       cfg.Logger,
		rec:       cfg.Recorder,
		now:       time.Now,
	}
	if s.maxLength <= 0 {
		s.maxLength = DefaultMaxLength
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	return s
}

// Add attaches a comment to a version
func (s *Store) Add(ctx context.Context, versionID, authorID, text string) (*model.Comment, error) {
	c, err := s.add(ctx, versionID, authorID, text)
	s.rec.RecordComment("add", err)
	return c, err
}

func (s *Store) add(ctx context.Context, versionID, authorID, text string) (*model.Comment, error) {
	if authorID == "" {
		return nil, errs.InvalidArgument("author id is required")
	}
	if err := s.validate(text); err != nil {
		return nil, err
	}

	var created *model.Comment
	err := s.update(ctx, "add comment", func(tx storage.Tx) error {
		v, err := tx.GetVersion(versionID)
		if errors.Is(err, storage.ErrNotFound) {
			return errs.NotFound("version %s", versionID)
		}
		if err != nil {
			return fmt.Errorf("get version %s: %w", versionID, err)
		}

		c := &model.Comment{
			CommentID: uuid.NewString(),
			VersionID: v.VersionID,
			PromptID:  v.PromptID,
			AuthorID:  authorID,
			Text:      text,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.PutComment(c); err != nil {
			return fmt.Errorf("put comment on %s: %w", versionID, err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("comment_id", created.CommentID).
		Str("version_id", versionID).
		Str("author_id", authorID).
		Msg("comment added")
	return created, nil
}

// Edit replaces a comment's text
func (s *Store) Edit(ctx context.Context, commentID, requesterID, text string) (*model.Comment, error) {
	var edited *model.Comment
	err := s.validate(text)
	if err == nil {
		err = s.update(ctx, "edit comment", func(tx storage.Tx) error {
			c, err := s.owned(tx, commentID, requesterID)
			if err != nil {
				return err
			}
			now := s.now().UTC()
			c.Text = text
			c.UpdatedAt = &now
			if err := tx.PutComment(c); err != nil {
				return fmt.Errorf("put comment %s: %w", commentID, err)
			}
			edited = c
			return nil
		})
	}
	s.rec.RecordComment("edit", err)
	if err != nil {
		return nil, err
	}
	return edited, nil
}

// Delete removes a comment
func (s *Store) Delete(ctx context.Context, commentID, requesterID string) error {
	err := s.update(ctx, "delete comment", func(tx storage.Tx) error {
		if _, err := s.owned(tx, commentID, requesterID); err != nil {
			return err
		}
		return tx.DeleteComment(commentID)
	})
	s.rec.RecordComment("delete", err)
	return err
}

// ListForVersion returns a version's comments, oldest first
func (s *Store) ListForVersion(ctx context.Context, versionID string) ([]*model.Comment, error) {
	var comments []*model.Comment
	err := s.db.View(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetVersion(versionID); errors.Is(err, storage.ErrNotFound) {
			return errs.NotFound("version %s", versionID)
		} else if err != nil {
			return err
		}
		cs, err := tx.Comments(versionID)
		if err != nil {
			return fmt.Errorf("list comments on %s: %w", versionID, err)
		}
		comments = cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*model.Comment{}
	}
	return comments, nil
}

// update runs fn in a write transaction. A commit that lost a race with
// another writer is transient, so it surfaces as Unavailable.
func (s *Store) update(ctx context.Context, op string, fn func(tx storage.Tx) error) error {
	err := s.db.Update(ctx, fn)
	if errors.Is(err, storage.ErrConflict) {
		return errs.Unavailable(err, "%s", op)
	}
	return err
}

// owned loads a comment and checks that requesterID wrote it
func (s *Store) owned(tx storage.Tx, commentID, requesterID string) (*model.Comment, error) {
	c, err := tx.GetComment(commentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("comment %s", commentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %s: %w", commentID, err)
	}
	if c.AuthorID != requesterID {
		return nil, errs.PermissionDenied("comment %s belongs to another author", commentID)
	}
	return c, nil
}

func (s *Store) validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.InvalidArgument("comment text is empty")
	}
	if n := utf8.RuneCountInString(text); n > s.maxLength {
		return errs.InvalidArgument("comment text is %d characters, limit is %d", n, s.maxLength)
	}
	return nil
}
