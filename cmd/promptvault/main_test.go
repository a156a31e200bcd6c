package main

import (
	"bytes"
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/nainya/promptvault/internal/config"
	"github.com/nainya/promptvault/internal/server"
	"github.com/nainya/promptvault/pkg/storage"
)

// startServer serves an in-memory PromptVault on a loopback port
func startServer(t *testing.T) string {
	t.Helper()

	db, err := storage.OpenBadger(storage.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	srv := server.New(db, config.Default(), nil, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer()
	server.RegisterPromptVaultServer(grpcServer, srv)
	go grpcServer.Serve(lis)

	t.Cleanup(func() {
		grpcServer.Stop()
		srv.Close()
	})
	return lis.Addr().String()
}

// run executes the CLI and returns stdout
func run(t *testing.T, addr string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--addr", addr, "--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, addr string, v any, args ...string) {
	t.Helper()
	out, err := run(t, addr, "", args...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestClientCommands(t *testing.T) {
	addr := startServer(t)

	var coll server.Collection
	runJSON(t, addr, &coll, "create-collection", "--name", "support")
	require.NotEmpty(t, coll.CollectionID)

	var created server.CreatePromptResponse
	runJSON(t, addr, &created, "create-prompt",
		"--collection", coll.CollectionID,
		"--title", "Greeting",
		"--content", "Hello world")
	promptID := created.Prompt.PromptID
	assert.Equal(t, 1, created.Version.VersionNumber)

	// Content from stdin
	out, err := run(t, addr, "Hello", "append", promptID, "-f", "-", "-m", "shorter")
	require.NoError(t, err, out)
	var appended server.VersionResponse
	require.NoError(t, json.Unmarshal([]byte(out), &appended))
	assert.True(t, appended.Created)
	assert.Equal(t, 2, appended.Version.VersionNumber)
	require.NotNil(t, appended.Version.ChangesSummary)
	assert.Equal(t, "shorter", *appended.Version.ChangesSummary)

	var list server.ListVersionsResponse
	runJSON(t, addr, &list, "list", promptID)
	assert.Len(t, list.Versions, 2)

	var v1 server.Version
	runJSON(t, addr, &v1, "get", promptID, "1")
	assert.Equal(t, "Hello world", v1.Content)

	out, err = run(t, addr, "", "diff", "--prompt", promptID, "-u", "1", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "-Hello world\n")
	assert.Contains(t, out, "+Hello\n")

	var reverted server.VersionResponse
	runJSON(t, addr, &reverted, "revert", promptID, "1")
	assert.Equal(t, 3, reverted.Version.VersionNumber)
	assert.Equal(t, "Hello world", reverted.Version.Content)

	var note server.Comment
	runJSON(t, addr, &note, "--author", "alice", "comment", "add", reverted.Version.VersionID, "back to the original")
	assert.Equal(t, "alice", note.AuthorID)

	_, err = run(t, addr, "", "--author", "bob", "comment", "delete", note.CommentID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PermissionDenied")

	var edited server.Comment
	runJSON(t, addr, &edited, "--author", "alice", "comment", "edit", note.CommentID, "reverted on purpose")
	assert.Equal(t, "reverted on purpose", edited.Text)

	var health server.HealthResponse
	runJSON(t, addr, &health, "health")
	assert.True(t, health.Healthy)
}

func TestContentFlagsAreExclusive(t *testing.T) {
	_, err := run(t, "127.0.0.1:1", "", "append", "p1", "--content", "a", "--file", "x.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --content or --file")

	_, err = run(t, "127.0.0.1:1", "", "append", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	_, err := run(t, "", "", "serve", "--driver", "postgres")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}

func TestCollectionAndPromptCommands(t *testing.T) {
	addr := startServer(t)

	var coll server.Collection
	runJSON(t, addr, &coll, "create-collection", "--name", "support", "--description", "tickets")

	var got server.Collection
	runJSON(t, addr, &got, "get-collection", coll.CollectionID)
	assert.Equal(t, "support", got.Name)

	var created server.CreatePromptResponse
	runJSON(t, addr, &created, "create-prompt",
		"--collection", coll.CollectionID,
		"--title", "Greeting",
		"--content", "Hello")
	promptID := created.Prompt.PromptID

	_, err := run(t, addr, "", "create-prompt", "--collection", coll.CollectionID, "--title", "Greeting", "--content", "Hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AlreadyExists")

	var updated server.Prompt
	runJSON(t, addr, &updated, "update-prompt", promptID, "--title", "Welcome")
	assert.Equal(t, "Welcome", updated.Title)

	_, err = run(t, addr, "", "update-prompt", promptID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")

	var prompt server.Prompt
	runJSON(t, addr, &prompt, "get-prompt", promptID)
	assert.Equal(t, "Welcome", prompt.Title)

	var listed server.ListPromptsResponse
	runJSON(t, addr, &listed, "list-prompts", "--collection", coll.CollectionID, "-s", "welc")
	require.Equal(t, 1, listed.Total)
	assert.Equal(t, promptID, listed.Prompts[0].PromptID)

	var collections server.ListCollectionsResponse
	runJSON(t, addr, &collections, "list-collections")
	assert.Equal(t, 1, collections.Total)

	out, err := run(t, addr, "", "delete-collection", coll.CollectionID)
	require.NoError(t, err, out)

	_, err = run(t, addr, "", "get-prompt", promptID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotFound")

	runJSON(t, addr, &collections, "list-collections")
	assert.Equal(t, 0, collections.Total)
}
