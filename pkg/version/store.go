// ABOUTME: Version store: the append-only snapshot log of each prompt
// ABOUTME: Appends are optimistic transactions retried on head conflicts

package version

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
	"github.com/nainya/promptvault/pkg/storage"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 5 * time.Millisecond
	maxBackoff         = 200 * time.Millisecond
)

// Store is the sole writer of PromptVersion records
type Store struct {
	db    storage.DB
	alloc Allocator
	log   zerolog.Logger
	rec   Recorder

	maxAttempts int
	backoff     time.Duration

	now   func() time.Time
	newID func() string
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for append and retry events
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRecorder sets the metrics hook
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithMaxAttempts bounds how many times an append is tried before it
// fails with errs.ErrUnavailable
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts. Zero retries immediately.
func WithBackoff(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a version store over db
func NewStore(db storage.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		log:         zerolog.Nop(),
		rec:         nopRecorder{},
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records content as the prompt's new head. If the head already holds
// exactly this content, or req.RevertedFrom names the head itself, nothing is
// written and the head is returned with OutcomeUnchanged.
func (s *Store) Append(ctx context.Context, req AppendRequest) (*model.PromptVersion, Outcome, error) {
	if req.PromptID == "" {
		return nil, 0, errs.InvalidArgument("prompt id is required")
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		v, outcome, err := s.appendOnce(ctx, req)
		if err == nil {
			s.rec.AppendOutcome(outcome.String(), attempt)
			s.log.Debug().
				Str("prompt_id", req.PromptID).
				Str("version_id", v.VersionID).
				Int("version_number", v.VersionNumber).
				Stringer("outcome", outcome).
				Int("attempt", attempt).
				Msg("append completed")
			return v, outcome, nil
		}

		if !errors.Is(err, storage.ErrConflict) {
			s.rec.AppendOutcome("error", 0)
			return nil, 0, err
		}

		lastErr = err
		s.rec.AllocatorConflict()
		s.log.Debug().
			Str("prompt_id", req.PromptID).
			Int("attempt", attempt).
			Msg("head moved during append, retrying")

		if attempt < s.maxAttempts {
			if err := s.wait(ctx, attempt); err != nil {
				s.rec.AppendOutcome("error", 0)
				return nil, 0, err
			}
		}
	}

	s.rec.AppendOutcome("error", 0)
	s.log.Warn().
		Str("prompt_id", req.PromptID).
		Int("attempts", s.maxAttempts).
		Msg("append retries exhausted")
	return nil, 0, errs.Unavailable(lastErr, "append to prompt %s gave up after %d attempts", req.PromptID, s.maxAttempts)
}

// appendOnce is one read-check-write attempt in a single transaction
func (s *Store) appendOnce(ctx context.Context, req AppendRequest) (*model.PromptVersion, Outcome, error) {
	var (
		result  *model.PromptVersion
		outcome Outcome
	)

	err := s.db.Update(ctx, func(tx storage.Tx) error {
		prompt, err := loadPrompt(tx, req.PromptID, req.CollectionID)
		if err != nil {
			return err
		}

		head, current, err := loadHead(tx, req.PromptID)
		if err != nil {
			return err
		}

		if req.RevertedFrom != nil {
			target, err := tx.GetVersion(*req.RevertedFrom)
			if errors.Is(err, storage.ErrNotFound) || (err == nil && target.PromptID != req.PromptID) {
				return errs.NotFound("version %s in prompt %s", *req.RevertedFrom, req.PromptID)
			}
			if err != nil {
				return fmt.Errorf("get revert target %s: %w", *req.RevertedFrom, err)
			}
		}

		if current != nil {
			revertToHead := req.RevertedFrom != nil && *req.RevertedFrom == current.VersionID
			if current.Content == req.Content || revertToHead {
				result, outcome = current, OutcomeUnchanged
				return nil
			}
		}

		number, err := s.alloc.Next(tx, req.PromptID, head)
		if err != nil {
			return err
		}

		v := &model.PromptVersion{
			VersionID:           s.newID(),
			PromptID:            prompt.PromptID,
			CollectionID:        prompt.CollectionID,
			VersionNumber:       number,
			Content:             req.Content,
			ChangesSummary:      req.Summary,
			CreatedAt:           s.now().UTC(),
			RevertedFromVersion: req.RevertedFrom,
		}
		if err := tx.PutVersion(v); err != nil {
			return fmt.Errorf("put version %d of %s: %w", number, req.PromptID, err)
		}

		prompt.UpdatedAt = v.CreatedAt
		if err := tx.PutPrompt(prompt); err != nil {
			return fmt.Errorf("touch prompt %s: %w", req.PromptID, err)
		}

		result, outcome = v, OutcomeCreated
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return result, outcome, nil
}

// wait sleeps before the next attempt with exponential backoff and full jitter
func (s *Store) wait(ctx context.Context, attempt int) error {
	if s.backoff == 0 {
		return ctx.Err()
	}

	ceiling := s.backoff << (attempt - 1)
	if ceiling > maxBackoff || ceiling <= 0 {
		ceiling = maxBackoff
	}
	delay := time.Duration(rand.Int64N(int64(ceiling))) + 1

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// List returns every version of the prompt in ascending version_number order
func (s *Store) List(ctx context.Context, promptID string) ([]*model.PromptVersion, error) {
	var versions []*model.PromptVersion
	err := s.db.View(ctx, func(tx storage.Tx) error {
		if _, err := loadPrompt(tx, promptID, ""); err != nil {
			return err
		}
		vs, err := tx.Versions(promptID)
		if err != nil {
			return fmt.Errorf("list versions of %s: %w", promptID, err)
		}
		versions = vs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []*model.PromptVersion{}
	}
	return versions, nil
}

// Get resolves ref, either a version id or a decimal version number, within promptID
func (s *Store) Get(ctx context.Context, promptID, ref string) (*model.PromptVersion, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errs.InvalidArgument("version reference is required")
	}

	var result *model.PromptVersion
	err := s.db.View(ctx, func(tx storage.Tx) error {
		if _, err := loadPrompt(tx, promptID, ""); err != nil {
			return err
		}
		v, err := lookupVersion(tx, promptID, ref)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Head returns the prompt's current version
func (s *Store) Head(ctx context.Context, promptID string) (*model.PromptVersion, error) {
	var result *model.PromptVersion
	err := s.db.View(ctx, func(tx storage.Tx) error {
		if _, err := loadPrompt(tx, promptID, ""); err != nil {
			return err
		}
		_, current, err := loadHead(tx, promptID)
		if err != nil {
			return err
		}
		if current == nil {
			return errs.NotFound("prompt %s has no versions", promptID)
		}
		result = current
		return nil
	})
	return result, err
}

func loadPrompt(tx storage.Tx, promptID, collectionID string) (*model.Prompt, error) {
	p, err := tx.GetPrompt(promptID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("prompt %s", promptID)
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", promptID, err)
	}
	if collectionID != "" && p.CollectionID != collectionID {
		return nil, errs.NotFound("prompt %s in collection %s", promptID, collectionID)
	}
	return p, nil
}

// loadHead returns the stored head number and its version, nil for a versionless prompt
func loadHead(tx storage.Tx, promptID string) (int, *model.PromptVersion, error) {
	head, err := tx.Head(promptID)
	if err != nil {
		return 0, nil, fmt.Errorf("read head of %s: %w", promptID, err)
	}
	if head == 0 {
		return 0, nil, nil
	}
	v, err := tx.VersionByNumber(promptID, head)
	if err != nil {
		return 0, nil, fmt.Errorf("read head version %d of %s: %w", head, promptID, err)
	}
	return head, v, nil
}

func lookupVersion(tx storage.Tx, promptID, ref string) (*model.PromptVersion, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n <= 0 {
			return nil, errs.InvalidArgument("version number must be positive, got %d", n)
		}
		v, err := tx.VersionByNumber(promptID, n)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errs.NotFound("version %d of prompt %s", n, promptID)
		}
		return v, err
	}

	v, err := tx.GetVersion(ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errs.NotFound("version %s", ref)
	}
	if err != nil {
		return nil, err
	}
	if v.PromptID != promptID {
		return nil, errs.NotFound("version %s in prompt %s", ref, promptID)
	}
	return v, nil
}

// ByID returns a version by id regardless of prompt
func (s *Store) ByID(ctx context.Context, versionID string) (*model.PromptVersion, error) {
	if versionID == "" {
		return nil, errs.InvalidArgument("version id is required")
	}
	var result *model.PromptVersion
	err := s.db.View(ctx, func(tx storage.Tx) error {
		v, err := tx.GetVersion(versionID)
		if errors.Is(err, storage.ErrNotFound) {
			return errs.NotFound("version %s", versionID)
		}
		if err != nil {
			return fmt.Errorf("get version %s: %w", versionID, err)
		}
		result = v
		return nil
	})
	return result, err
}
