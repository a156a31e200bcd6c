// ABOUTME: Tests for the prompt registry
// ABOUTME: Verifies validation, initial versions and cascade deletion

package prompt

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/promptvault/pkg/comment"
	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
	"github.com/nainya/promptvault/pkg/storage"
	"github.com/nainya/promptvault/pkg/version"
)

type fixture struct {
	db       storage.DB
	versions *version.Store
	registry *Registry
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenBadger(storage.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	versions := version.NewStore(db)
	return &fixture{db: db, versions: versions, registry: NewRegistry(db, versions, zerolog.Nop())}
}

func TestCreatePromptRecordsFirstVersion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "Support"})
	require.NoError(t, err)

	got, err := f.registry.GetCollection(ctx, c.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, "Support", got.Name)

	p, v, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{
		CollectionID: c.CollectionID,
		Title:        "Greeting",
		Content:      "Hello {{name}}",
		Description:  model.StringPtr("greets people"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, p.PromptID, v.PromptID)
	assert.Equal(t, c.CollectionID, v.CollectionID)
	assert.Equal(t, InitialSummary, model.StringValue(v.ChangesSummary))

	stored, err := f.registry.GetPrompt(ctx, p.PromptID)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", stored.Title)
	assert.Equal(t, "greets people", model.StringValue(stored.Description))

	prompts, err := f.registry.ListPrompts(ctx, ListPromptsRequest{CollectionID: c.CollectionID})
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Equal(t, p.PromptID, prompts[0].PromptID)
}

func TestValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "  "})
	assert.True(t, errs.IsInvalidArgument(err))

	c, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "ok"})
	require.NoError(t, err)

	tooLong := strings.Repeat("d", MaxDescriptionLength+1)
	cases := []CreatePromptRequest{
		{CollectionID: c.CollectionID, Title: "", Content: "x"},
		{CollectionID: c.CollectionID, Title: strings.Repeat("t", MaxTitleLength+1), Content: "x"},
		{CollectionID: c.CollectionID, Title: "t", Content: " \n"},
		{CollectionID: c.CollectionID, Title: "t", Content: "x", Description: &tooLong},
	}
	for _, req := range cases {
		_, _, err := f.registry.CreatePrompt(ctx, req)
		assert.True(t, errs.IsInvalidArgument(err), "request %+v", req)
	}

	_, _, err = f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: "missing", Title: "t", Content: "x"})
	assert.True(t, errs.IsNotFound(err))

	_, err = f.registry.ListPrompts(ctx, ListPromptsRequest{CollectionID: "missing"})
	assert.True(t, errs.IsNotFound(err))

	_, err = f.registry.GetPrompt(ctx, "missing")
	assert.True(t, errs.IsNotFound(err))

	_, err = f.registry.GetCollection(ctx, "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestDeletePromptCascades(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	comments := comment.NewStore(f.db, comment.Config{})

	c, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "c"})
	require.NoError(t, err)
	p, v1, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: c.CollectionID, Title: "t", Content: "one"})
	require.NoError(t, err)
	keep, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: c.CollectionID, Title: "k", Content: "keep"})
	require.NoError(t, err)

	v2, _, err := f.versions.Append(ctx, version.AppendRequest{PromptID: p.PromptID, Content: "two"})
	require.NoError(t, err)
	note, err := comments.Add(ctx, v2.VersionID, "alice", "nice")
	require.NoError(t, err)

	require.NoError(t, f.registry.DeletePrompt(ctx, p.PromptID))

	_, err = f.registry.GetPrompt(ctx, p.PromptID)
	assert.True(t, errs.IsNotFound(err))
	_, err = f.versions.Get(ctx, p.PromptID, v1.VersionID)
	assert.True(t, errs.IsNotFound(err))
	_, err = comments.ListForVersion(ctx, v2.VersionID)
	assert.True(t, errs.IsNotFound(err))
	err = comments.Delete(ctx, note.CommentID, "alice")
	assert.True(t, errs.IsNotFound(err))

	assert.True(t, errs.IsNotFound(f.registry.DeletePrompt(ctx, p.PromptID)))

	remaining, err := f.registry.ListPrompts(ctx, ListPromptsRequest{CollectionID: c.CollectionID})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.PromptID, remaining[0].PromptID)
}

func TestVariables(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"", []string{}},
		{"no variables here", []string{}},
		{"Hello {{name}}, welcome to {{place}}", []string{"name", "place"}},
		{"{{a}} {{b}} {{a}}", []string{"a", "b"}},
		{"{{ spaced }} {{ok_1}} {single}", []string{"ok_1"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Variables(tt.content), tt.content)
	}
}

func TestListPromptsFiltersAndOrders(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.registry.now = tickingClock()

	support, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "support"})
	require.NoError(t, err)
	sales, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "sales"})
	require.NoError(t, err)

	greeting, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{
		CollectionID: support.CollectionID, Title: "Greeting", Content: "Hello",
	})
	require.NoError(t, err)
	refund, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{
		CollectionID: support.CollectionID, Title: "Refund", Content: "Sorry", Description: model.StringPtr("polite GREETING first"),
	})
	require.NoError(t, err)
	pitch, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{
		CollectionID: sales.CollectionID, Title: "Pitch", Content: "Buy",
	})
	require.NoError(t, err)

	ids := func(prompts []*model.Prompt) []string {
		out := make([]string, len(prompts))
		for i, p := range prompts {
			out[i] = p.PromptID
		}
		return out
	}

	all, err := f.registry.ListPrompts(ctx, ListPromptsRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{pitch.PromptID, refund.PromptID, greeting.PromptID}, ids(all))

	inSupport, err := f.registry.ListPrompts(ctx, ListPromptsRequest{CollectionID: support.CollectionID})
	require.NoError(t, err)
	assert.Equal(t, []string{refund.PromptID, greeting.PromptID}, ids(inSupport))

	// Title or description, any case
	found, err := f.registry.ListPrompts(ctx, ListPromptsRequest{Search: "greeting"})
	require.NoError(t, err)
	assert.Equal(t, []string{refund.PromptID, greeting.PromptID}, ids(found))

	none, err := f.registry.ListPrompts(ctx, ListPromptsRequest{CollectionID: sales.CollectionID, Search: "greeting"})
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestUpdatePrompt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "c"})
	require.NoError(t, err)
	p, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{
		CollectionID: c.CollectionID, Title: "Greeting", Content: "Hello", Description: model.StringPtr("old"),
	})
	require.NoError(t, err)
	other, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: c.CollectionID, Title: "Farewell", Content: "Bye"})
	require.NoError(t, err)

	updated, err := f.registry.UpdatePrompt(ctx, p.PromptID, UpdatePromptRequest{Title: model.StringPtr("Welcome")})
	require.NoError(t, err)
	assert.Equal(t, "Welcome", updated.Title)
	assert.Equal(t, "old", model.StringValue(updated.Description))
	assert.False(t, updated.UpdatedAt.Before(p.UpdatedAt))
	assert.True(t, updated.CreatedAt.Equal(p.CreatedAt))

	// The old title is free again, the new one is taken
	_, _, err = f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: c.CollectionID, Title: "Greeting", Content: "Hi"})
	require.NoError(t, err)
	_, _, err = f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: c.CollectionID, Title: "Welcome", Content: "Hi"})
	assert.True(t, errs.IsAlreadyExists(err))

	_, err = f.registry.UpdatePrompt(ctx, other.PromptID, UpdatePromptRequest{Title: model.StringPtr("Welcome")})
	assert.True(t, errs.IsAlreadyExists(err))

	// Keeping its own title is not a clash
	same, err := f.registry.UpdatePrompt(ctx, p.PromptID, UpdatePromptRequest{
		Title: model.StringPtr("Welcome"), Description: model.StringPtr("new"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new", model.StringValue(same.Description))

	// Metadata edits leave the history alone
	versions, err := f.versions.List(ctx, p.PromptID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	_, err = f.registry.UpdatePrompt(ctx, p.PromptID, UpdatePromptRequest{Title: model.StringPtr(" ")})
	assert.True(t, errs.IsInvalidArgument(err))
	_, err = f.registry.UpdatePrompt(ctx, "missing", UpdatePromptRequest{Title: model.StringPtr("x")})
	assert.True(t, errs.IsNotFound(err))

	stored, err := f.registry.GetPrompt(ctx, p.PromptID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", stored.Title)
}

func TestDuplicateTitlesAreScopedToCollection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "a"})
	require.NoError(t, err)
	b, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "b"})
	require.NoError(t, err)

	_, _, err = f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: a.CollectionID, Title: "Greeting", Content: "x"})
	require.NoError(t, err)
	_, _, err = f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: b.CollectionID, Title: "Greeting", Content: "x"})
	require.NoError(t, err)

	// Exact match only
	_, _, err = f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: a.CollectionID, Title: "greeting", Content: "x"})
	require.NoError(t, err)

	_, _, err = f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: a.CollectionID, Title: "Greeting", Content: "x"})
	assert.True(t, errs.IsAlreadyExists(err))
}

func TestCollectionsListAndDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	comments := comment.NewStore(f.db, comment.Config{})

	doomed, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "doomed"})
	require.NoError(t, err)
	kept, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "kept"})
	require.NoError(t, err)

	p, v1, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: doomed.CollectionID, Title: "t", Content: "one"})
	require.NoError(t, err)
	_, err = comments.Add(ctx, v1.VersionID, "alice", "first")
	require.NoError(t, err)
	survivor, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: kept.CollectionID, Title: "t", Content: "two"})
	require.NoError(t, err)

	collections, err := f.registry.ListCollections(ctx)
	require.NoError(t, err)
	assert.Len(t, collections, 2)

	require.NoError(t, f.registry.DeleteCollection(ctx, doomed.CollectionID))

	_, err = f.registry.GetCollection(ctx, doomed.CollectionID)
	assert.True(t, errs.IsNotFound(err))
	_, err = f.registry.GetPrompt(ctx, p.PromptID)
	assert.True(t, errs.IsNotFound(err))
	_, err = f.versions.ByID(ctx, v1.VersionID)
	assert.True(t, errs.IsNotFound(err))
	_, err = comments.ListForVersion(ctx, v1.VersionID)
	assert.True(t, errs.IsNotFound(err))

	collections, err = f.registry.ListCollections(ctx)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, kept.CollectionID, collections[0].CollectionID)

	all, err := f.registry.ListPrompts(ctx, ListPromptsRequest{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, survivor.PromptID, all[0].PromptID)

	assert.True(t, errs.IsNotFound(f.registry.DeleteCollection(ctx, doomed.CollectionID)))
}

// tickingClock advances one second per call so creation order is unambiguous
func tickingClock() func() time.Time {
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

// conflictingDB fails every write as if another writer committed first
type conflictingDB struct {
	storage.DB
}

func (conflictingDB) Update(context.Context, func(tx storage.Tx) error) error {
	return storage.ErrConflict
}

func TestWriteConflictsAreUnavailable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	c, err := f.registry.CreateCollection(ctx, CreateCollectionRequest{Name: "c"})
	require.NoError(t, err)
	p, _, err := f.registry.CreatePrompt(ctx, CreatePromptRequest{CollectionID: c.CollectionID, Title: "t", Content: "x"})
	require.NoError(t, err)

	r := NewRegistry(conflictingDB{DB: f.db}, f.versions, zerolog.Nop())

	_, err = r.CreateCollection(ctx, CreateCollectionRequest{Name: "d"})
	assert.True(t, errs.IsUnavailable(err), "create collection: %v", err)
	_, _, err = r.CreatePrompt(ctx, CreatePromptRequest{CollectionID: c.CollectionID, Title: "u", Content: "x"})
	assert.True(t, errs.IsUnavailable(err), "create prompt: %v", err)
	_, err = r.UpdatePrompt(ctx, p.PromptID, UpdatePromptRequest{Title: model.StringPtr("v")})
	assert.True(t, errs.IsUnavailable(err), "update prompt: %v", err)
	assert.True(t, errs.IsUnavailable(r.DeletePrompt(ctx, p.PromptID)))
	assert.True(t, errs.IsUnavailable(r.DeleteCollection(ctx, c.CollectionID)))

	// Nothing changed
	stored, err := r.GetPrompt(ctx, p.PromptID)
	require.NoError(t, err)
	assert.Equal(t, "t", stored.Title)
}
