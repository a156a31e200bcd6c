// ABOUTME: Tests for version comments
// ABOUTME: Verifies validation, authorship checks and ordering

package comment

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
	"github.com/nainya/promptvault/pkg/storage"
)

func setupTestCommentStore(t *testing.T, maxLength int) (*Store, storage.DB) {
	db, err := storage.OpenBadger(storage.BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := time.Now().UTC()
	err = db.Update(context.Background(), func(tx storage.Tx) error {
		if err := tx.PutPrompt(&model.Prompt{PromptID: "p1", CollectionID: "c1", Title: "t", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.CompareAndSetHead("p1", 0, 1); err != nil {
			return err
		}
		return tx.PutVersion(&model.PromptVersion{
			VersionID: "v1", PromptID: "p1", CollectionID: "c1", VersionNumber: 1, Content: "Hello", CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("Failed to seed: %v", err)
	}

	s := NewStore(db, Config{MaxLength: maxLength})
	s.now = tickingClock(now)
	return s, db
}

// tickingClock advances one second per call so creation order is unambiguous
func tickingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestAddAndList(t *testing.T) {
	s, _ := setupTestCommentStore(t, 0)
	ctx := context.Background()

	first, err := s.Add(ctx, "v1", "alice", "Looks good")
	if err != nil {
		t.Fatalf("Failed to add comment: %v", err)
	}
	if first.PromptID != "p1" {
		t.Errorf("Expected prompt p1, got %s", first.PromptID)
	}
	if first.UpdatedAt != nil {
		t.Error("New comment should not have UpdatedAt")
	}

	if _, err := s.Add(ctx, "v1", "bob", "Needs work"); err != nil {
		t.Fatalf("Failed to add comment: %v", err)
	}

	comments, err := s.ListForVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("Expected 2 comments, got %d", len(comments))
	}
	if comments[0].CommentID != first.CommentID {
		t.Error("Comments should be ordered oldest first")
	}
}

func TestAddValidation(t *testing.T) {
	s, _ := setupTestCommentStore(t, 10)
	ctx := context.Background()

	if _, err := s.Add(ctx, "missing", "alice", "hi"); !errs.IsNotFound(err) {
		t.Errorf("Expected NotFound for missing version, got %v", err)
	}

	for _, text := range []string{"", "   \n\t", strings.Repeat("x", 11)} {
		if _, err := s.Add(ctx, "v1", "alice", text); !errs.IsInvalidArgument(err) {
			t.Errorf("Expected InvalidArgument for %q, got %v", text, err)
		}
	}

	// Limit counts characters, not bytes
	if _, err := s.Add(ctx, "v1", "alice", strings.Repeat("é", 10)); err != nil {
		t.Errorf("Ten runes should fit a limit of ten: %v", err)
	}

	if _, err := s.Add(ctx, "v1", "", "hi"); !errs.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument for missing author, got %v", err)
	}
}

func TestEditPermissions(t *testing.T) {
	s, _ := setupTestCommentStore(t, 0)
	ctx := context.Background()

	c, err := s.Add(ctx, "v1", "alice", "draft")
	if err != nil {
		t.Fatalf("Failed to add comment: %v", err)
	}

	if _, err := s.Edit(ctx, c.CommentID, "bob", "hijack"); !errs.IsPermissionDenied(err) {
		t.Errorf("Expected PermissionDenied, got %v", err)
	}
	if _, err := s.Edit(ctx, "missing", "alice", "x"); !errs.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
	if _, err := s.Edit(ctx, c.CommentID, "alice", " "); !errs.IsInvalidArgument(err) {
		t.Errorf("Expected InvalidArgument, got %v", err)
	}

	edited, err := s.Edit(ctx, c.CommentID, "alice", "final")
	if err != nil {
		t.Fatalf("Failed to edit: %v", err)
	}
	if edited.Text != "final" || edited.UpdatedAt == nil {
		t.Errorf("Edit not applied: %+v", edited)
	}

	comments, _ := s.ListForVersion(ctx, "v1")
	if len(comments) != 1 || comments[0].Text != "final" {
		t.Errorf("Stored comment not updated: %+v", comments)
	}
}

func TestDelete(t *testing.T) {
	s, _ := setupTestCommentStore(t, 0)
	ctx := context.Background()

	c, _ := s.Add(ctx, "v1", "alice", "temp")

	if err := s.Delete(ctx, c.CommentID, "bob"); !errs.IsPermissionDenied(err) {
		t.Errorf("Expected PermissionDenied, got %v", err)
	}
	if err := s.Delete(ctx, c.CommentID, "alice"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := s.Delete(ctx, c.CommentID, "alice"); !errs.IsNotFound(err) {
		t.Errorf("Expected NotFound on second delete, got %v", err)
	}

	comments, err := s.ListForVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if comments == nil || len(comments) != 0 {
		t.Errorf("Expected empty non-nil list, got %v", comments)
	}

	if _, err := s.ListForVersion(ctx, "missing"); !errs.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

type recorder struct {
	calls []string
}

func (r *recorder) RecordComment(op string, err error) {
	status := "ok"
	if err != nil {
		status = "err"
	}
	r.calls = append(r.calls, op+":"+status)
}

func TestRecorder(t *testing.T) {
	s, db := setupTestCommentStore(t, 0)
	rec := &recorder{}
	s = NewStore(db, Config{Recorder: rec})
	ctx := context.Background()

	c, _ := s.Add(ctx, "v1", "alice", "x")
	s.Edit(ctx, c.CommentID, "bob", "y")
	s.Delete(ctx, c.CommentID, "alice")

	want := []string{"add:ok", "edit:err", "delete:ok"}
	if strings.Join(rec.calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, rec.calls)
	}
}

func TestErrorsWrapSentinels(t *testing.T) {
	s, _ := setupTestCommentStore(t, 0)
	_, err := s.Add(context.Background(), "gone", "alice", "x")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Expected wrapped ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "gone") {
		t.Errorf("Error should name the missing version: %v", err)
	}
}

// conflictingDB fails every write with storage.ErrConflict, as when a
// concurrent writer commits first
type conflictingDB struct {
	storage.DB
}

func (conflictingDB) Update(context.Context, func(tx storage.Tx) error) error {
	return storage.ErrConflict
}

func TestWriteConflictsAreUnavailable(t *testing.T) {
	s, db := setupTestCommentStore(t, 0)
	ctx := context.Background()

	c, err := s.Add(ctx, "v1", "alice", "first")
	if err != nil {
		t.Fatalf("Failed to add comment: %v", err)
	}

	s = NewStore(conflictingDB{DB: db}, Config{})

	_, err = s.Add(ctx, "v1", "alice", "second")
	if !errs.IsUnavailable(err) {
		t.Errorf("Add: expected Unavailable, got %v", err)
	}
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Add: conflict cause should be kept, got %v", err)
	}

	if _, err := s.Edit(ctx, c.CommentID, "alice", "changed"); !errs.IsUnavailable(err) {
		t.Errorf("Edit: expected Unavailable, got %v", err)
	}
	if err := s.Delete(ctx, c.CommentID, "alice"); !errs.IsUnavailable(err) {
		t.Errorf("Delete: expected Unavailable, got %v", err)
	}

	// Reads are unaffected
	comments, err := s.ListForVersion(ctx, "v1")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(comments) != 1 || comments[0].Text != "first" {
		t.Errorf("Expected the original comment untouched, got %+v", comments)
	}
}
