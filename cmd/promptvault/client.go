package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nainya/promptvault/internal/server"
)

// call dials the server, runs fn and prints its result as JSON
func (g *globalFlags) call(cmd *cobra.Command, fn func(ctx context.Context, c *server.Client) (any, error)) error {
	c, conn, err := server.Dial(g.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if g.author != "" {
		c = c.WithAuthor(g.author)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()

	out, err := fn(ctx, c)
	if err != nil {
		return err
	}
	if s, ok := out.(string); ok {
		_, err := io.WriteString(cmd.OutOrStdout(), s)
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// optional returns a pointer to the flag value when the flag was set
func optional(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

// readContent takes prompt content from --content or --file, where "-" is stdin
func readContent(cmd *cobra.Command, content, file string) (string, error) {
	switch {
	case cmd.Flags().Changed("content") && file != "":
		return "", errors.New("use either --content or --file")
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	case cmd.Flags().Changed("content"):
		return content, nil
	default:
		return "", errors.New("one of --content or --file is required")
	}
}

func addContentFlags(cmd *cobra.Command, content, file *string) {
	cmd.Flags().StringVar(content, "content", "", "prompt content")
	cmd.Flags().StringVarP(file, "file", "f", "", "read prompt content from a file, - for stdin")
}

func newCreateCollectionCmd(g *globalFlags) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "create-collection",
		Short: "Create a prompt collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.CreateCollection(ctx, &server.CreateCollectionRequest{
					Name:        name,
					Description: optional(cmd, "description", description),
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "collection name")
	cmd.Flags().StringVar(&description, "description", "", "collection description")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newGetCollectionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get-collection <collection-id>",
		Short: "Show a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.GetCollection(ctx, &server.GetCollectionRequest{CollectionID: args[0]})
			})
		},
	}
}

func newListCollectionsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-collections",
		Short: "List collections, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.ListCollections(ctx, &server.ListCollectionsRequest{})
			})
		},
	}
}

func newDeleteCollectionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-collection <collection-id>",
		Short: "Delete a collection and every prompt in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.DeleteCollection(ctx, &server.DeleteCollectionRequest{CollectionID: args[0]})
			})
		},
	}
}

func newCreatePromptCmd(g *globalFlags) *cobra.Command {
	var collectionID, title, description, content, file string
	cmd := &cobra.Command{
		Use:   "create-prompt",
		Short: "Create a prompt and its first version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readContent(cmd, content, file)
			if err != nil {
				return err
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.CreatePrompt(ctx, &server.CreatePromptRequest{
					CollectionID: collectionID,
					Title:        title,
					Content:      text,
					Description:  optional(cmd, "description", description),
				})
			})
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "collection id")
	cmd.Flags().StringVar(&title, "title", "", "prompt title")
	cmd.Flags().StringVar(&description, "description", "", "prompt description")
	addContentFlags(cmd, &content, &file)
	cmd.MarkFlagRequired("collection")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newGetPromptCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get-prompt <prompt-id>",
		Short: "Show prompt metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.GetPrompt(ctx, &server.GetPromptRequest{PromptID: args[0]})
			})
		},
	}
}

func newListPromptsCmd(g *globalFlags) *cobra.Command {
	var collectionID, search string
	cmd := &cobra.Command{
		Use:   "list-prompts",
		Short: "List prompts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.ListPrompts(ctx, &server.ListPromptsRequest{CollectionID: collectionID, Search: search})
			})
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "only prompts in this collection")
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive match on title or description")
	return cmd
}

func newUpdatePromptCmd(g *globalFlags) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "update-prompt <prompt-id>",
		Short: "Change a prompt's title or description",
		Long: `Change a prompt's title or description.

Content is versioned; use append to change it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &server.UpdatePromptRequest{
				PromptID:    args[0],
				Title:       optional(cmd, "title", title),
				Description: optional(cmd, "description", description),
			}
			if req.Title == nil && req.Description == nil {
				return errors.New("nothing to update: set --title or --description")
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.UpdatePrompt(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func newDeletePromptCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-prompt <prompt-id>",
		Short: "Delete a prompt with all of its versions and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.DeletePrompt(ctx, &server.DeletePromptRequest{PromptID: args[0]})
			})
		},
	}
}

func newAppendCmd(g *globalFlags) *cobra.Command {
	var collectionID, summary, content, file string
	cmd := &cobra.Command{
		Use:   "append <prompt-id>",
		Short: "Append a version; unchanged content returns the current head",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readContent(cmd, content, file)
			if err != nil {
				return err
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.AppendVersion(ctx, &server.AppendVersionRequest{
					PromptID:       args[0],
					CollectionID:   collectionID,
					Content:        text,
					ChangesSummary: optional(cmd, "summary", summary),
				})
			})
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "expected collection id")
	cmd.Flags().StringVarP(&summary, "summary", "m", "", "changes summary")
	addContentFlags(cmd, &content, &file)
	return cmd
}

func newListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <prompt-id>",
		Short: "List a prompt's versions, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.ListVersions(ctx, &server.ListVersionsRequest{PromptID: args[0]})
			})
		},
	}
}

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <prompt-id> <version>",
		Short: "Show one version by id or number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.GetVersion(ctx, &server.GetVersionRequest{PromptID: args[0], Version: args[1]})
			})
		},
	}
}

func newRevertCmd(g *globalFlags) *cobra.Command {
	var collectionID, summary string
	cmd := &cobra.Command{
		Use:   "revert <prompt-id> <target-version>",
		Short: "Append a copy of an earlier version as the new head",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.RevertVersion(ctx, &server.RevertVersionRequest{
					PromptID:        args[0],
					CollectionID:    collectionID,
					TargetVersionID: args[1],
					ChangesSummary:  optional(cmd, "summary", summary),
				})
			})
		},
	}
	cmd.Flags().StringVar(&collectionID, "collection", "", "expected collection id")
	cmd.Flags().StringVarP(&summary, "summary", "m", "", "changes summary")
	return cmd
}

func newDiffCmd(g *globalFlags) *cobra.Command {
	var (
		promptID     string
		contextLines int
		unified      bool
	)
	cmd := &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Compare two versions line by line",
		Long: `Compare two versions line by line.

With --prompt, from and to may be version numbers; otherwise they are version ids.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &server.DiffVersionsRequest{PromptID: promptID, From: args[0], To: args[1]}
			if cmd.Flags().Changed("context") {
				req.Context = &contextLines
			}
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				resp, err := c.DiffVersions(ctx, req)
				if err != nil {
					return nil, err
				}
				if unified {
					return resp.Unified, nil
				}
				return resp, nil
			})
		},
	}
	cmd.Flags().StringVar(&promptID, "prompt", "", "prompt id used to resolve version numbers")
	cmd.Flags().IntVarP(&contextLines, "context", "U", 3, "unified diff context lines")
	cmd.Flags().BoolVarP(&unified, "unified", "u", false, "print only the unified diff")
	return cmd
}

func newCommentCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Add, edit or delete version comments (requires --author)",
	}

	add := &cobra.Command{
		Use:   "add <version-id> <text>",
		Short: "Comment on a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.AddComment(ctx, &server.AddCommentRequest{VersionID: args[0], Text: args[1]})
			})
		},
	}

	edit := &cobra.Command{
		Use:   "edit <comment-id> <text>",
		Short: "Replace the text of your comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.EditComment(ctx, &server.EditCommentRequest{CommentID: args[0], Text: args[1]})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <comment-id>",
		Short: "Delete your comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.DeleteComment(ctx, &server.DeleteCommentRequest{CommentID: args[0]})
			})
		},
	}

	cmd.AddCommand(add, edit, del)
	return cmd
}

func newHealthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *server.Client) (any, error) {
				return c.Health(ctx)
			})
		},
	}
}
