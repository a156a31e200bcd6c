// Service descriptor and wire messages for promptvault.v1.PromptVault
package server

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/nainya/promptvault/pkg/diff"
	"github.com/nainya/promptvault/pkg/model"
	"github.com/nainya/promptvault/pkg/prompt"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "promptvault.v1.PromptVault"

	// AuthorMetadataKey carries the caller identity used for comment attribution
	AuthorMetadataKey = "x-author-id"

	// ServiceVersion is reported by Health
	ServiceVersion = "1.0.0"
)

// ========== Records ==========

type Collection struct {
	CollectionID string    `json:"collection_id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Prompt struct {
	PromptID     string    `json:"prompt_id"`
	CollectionID string    `json:"collection_id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Version struct {
	VersionID           string    `json:"version_id"`
	PromptID            string    `json:"prompt_id"`
	CollectionID        string    `json:"collection_id"`
	VersionNumber       int       `json:"version_number"`
	Content             string    `json:"content"`
	ChangesSummary      *string   `json:"changes_summary,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	RevertedFromVersion *string   `json:"reverted_from_version,omitempty"`
	Variables           []string  `json:"variables"`
}

type Comment struct {
	CommentID string     `json:"comment_id"`
	VersionID string     `json:"version_id"`
	AuthorID  string     `json:"author_id"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Hunk struct {
	Op    string   `json:"op"`
	Lines []string `json:"lines"`
}

type DiffStats struct {
	Equal    int `json:"equal"`
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
}

// ========== Requests and responses ==========

type CreateCollectionRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type GetCollectionRequest struct {
	CollectionID string `json:"collection_id"`
}

type ListCollectionsRequest struct{}

type ListCollectionsResponse struct {
	Collections []*Collection `json:"collections"`
	Total       int           `json:"total"`
}

// DeleteCollectionRequest removes a collection and every prompt in it
type DeleteCollectionRequest struct {
	CollectionID string `json:"collection_id"`
}

type DeleteCollectionResponse struct{}

type CreatePromptRequest struct {
	CollectionID string  `json:"collection_id"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	Description  *string `json:"description,omitempty"`
}

type CreatePromptResponse struct {
	Prompt  *Prompt  `json:"prompt"`
	Version *Version `json:"version"`
}

type GetPromptRequest struct {
	PromptID string `json:"prompt_id"`
}

// ListPromptsRequest lists prompts newest first. Both filters are optional.
type ListPromptsRequest struct {
	CollectionID string `json:"collection_id,omitempty"`
	Search       string `json:"search,omitempty"`
}

type ListPromptsResponse struct {
	Prompts []*Prompt `json:"prompts"`
	Total   int       `json:"total"`
}

// UpdatePromptRequest changes prompt metadata; omitted fields are kept.
// Content changes go through AppendVersion.
type UpdatePromptRequest struct {
	PromptID    string  `json:"prompt_id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type DeletePromptRequest struct {
	PromptID string `json:"prompt_id"`
}

type DeletePromptResponse struct{}

type AppendVersionRequest struct {
	PromptID       string  `json:"prompt_id"`
	CollectionID   string  `json:"collection_id,omitempty"`
	Content        string  `json:"content"`
	ChangesSummary *string `json:"changes_summary,omitempty"`
}

// VersionResponse is returned by AppendVersion and RevertVersion.
// Created is false when the call was a no-op and Version is the existing head.
type VersionResponse struct {
	Version *Version `json:"version"`
	Created bool     `json:"created"`
}

type ListVersionsRequest struct {
	PromptID string `json:"prompt_id"`
}

type ListVersionsResponse struct {
	Versions []*Version `json:"versions"`
}

type GetVersionRequest struct {
	PromptID string `json:"prompt_id"`
	// Version is a version id or a decimal version number
	Version string `json:"version"`
}

type RevertVersionRequest struct {
	PromptID        string  `json:"prompt_id"`
	CollectionID    string  `json:"collection_id,omitempty"`
	TargetVersionID string  `json:"target_version_id"`
	ChangesSummary  *string `json:"changes_summary,omitempty"`
}

// DiffVersionsRequest names two versions. With PromptID set, From and To are
// resolved within that prompt and may be numbers; otherwise they are version ids.
type DiffVersionsRequest struct {
	PromptID string `json:"prompt_id,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"`
	Context  *int   `json:"context,omitempty"`
}

type DiffVersionsResponse struct {
	From         *Version   `json:"from"`
	To           *Version   `json:"to"`
	Hunks        []Hunk     `json:"hunks"`
	Stats        DiffStats  `json:"stats"`
	Unified      string     `json:"unified"`
	FromComments []*Comment `json:"from_comments"`
	ToComments   []*Comment `json:"to_comments"`
}

type AddCommentRequest struct {
	VersionID string `json:"version_id"`
	Text      string `json:"text"`
}

type EditCommentRequest struct {
	CommentID string `json:"comment_id"`
	Text      string `json:"text"`
}

type DeleteCommentRequest struct {
	CommentID string `json:"comment_id"`
}

type DeleteCommentResponse struct{}

type HealthRequest struct{}

type HealthResponse struct {
	Healthy       bool   `json:"healthy"`
	Version       string `json:"version"`
	Driver        string `json:"driver"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ========== Service descriptor ==========

// PromptVaultServer is the server API for the PromptVault service
type PromptVaultServer interface {
	CreateCollection(context.Context, *CreateCollectionRequest) (*Collection, error)
	GetCollection(context.Context, *GetCollectionRequest) (*Collection, error)
	ListCollections(context.Context, *ListCollectionsRequest) (*ListCollectionsResponse, error)
	DeleteCollection(context.Context, *DeleteCollectionRequest) (*DeleteCollectionResponse, error)
	CreatePrompt(context.Context, *CreatePromptRequest) (*CreatePromptResponse, error)
	GetPrompt(context.Context, *GetPromptRequest) (*Prompt, error)
	ListPrompts(context.Context, *ListPromptsRequest) (*ListPromptsResponse, error)
	UpdatePrompt(context.Context, *UpdatePromptRequest) (*Prompt, error)
	DeletePrompt(context.Context, *DeletePromptRequest) (*DeletePromptResponse, error)
	AppendVersion(context.Context, *AppendVersionRequest) (*VersionResponse, error)
	ListVersions(context.Context, *ListVersionsRequest) (*ListVersionsResponse, error)
	GetVersion(context.Context, *GetVersionRequest) (*Version, error)
	RevertVersion(context.Context, *RevertVersionRequest) (*VersionResponse, error)
	DiffVersions(context.Context, *DiffVersionsRequest) (*DiffVersionsResponse, error)
	AddComment(context.Context, *AddCommentRequest) (*Comment, error)
	EditComment(context.Context, *EditCommentRequest) (*Comment, error)
	DeleteComment(context.Context, *DeleteCommentRequest) (*DeleteCommentResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
}

// ServiceDesc describes the PromptVault service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PromptVaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateCollection", PromptVaultServer.CreateCollection),
		unary("GetCollection", PromptVaultServer.GetCollection),
		unary("ListCollections", PromptVaultServer.ListCollections),
		unary("DeleteCollection", PromptVaultServer.DeleteCollection),
		unary("CreatePrompt", PromptVaultServer.CreatePrompt),
		unary("GetPrompt", PromptVaultServer.GetPrompt),
		unary("ListPrompts", PromptVaultServer.ListPrompts),
		unary("UpdatePrompt", PromptVaultServer.UpdatePrompt),
		unary("DeletePrompt", PromptVaultServer.DeletePrompt),
		unary("AppendVersion", PromptVaultServer.AppendVersion),
		unary("ListVersions", PromptVaultServer.ListVersions),
		unary("GetVersion", PromptVaultServer.GetVersion),
		unary("RevertVersion", PromptVaultServer.RevertVersion),
		unary("DiffVersions", PromptVaultServer.DiffVersions),
		unary("AddComment", PromptVaultServer.AddComment),
		unary("EditComment", PromptVaultServer.EditComment),
		unary("DeleteComment", PromptVaultServer.DeleteComment),
		unary("Health", PromptVaultServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "promptvault/v1/promptvault.json",
}

// RegisterPromptVaultServer registers srv on s
func RegisterPromptVaultServer(s grpc.ServiceRegistrar, srv PromptVaultServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc, running the interceptor chain
func unary[Req, Resp any](name string, call func(PromptVaultServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(PromptVaultServer), ctx, req.(*Req))
				if err != nil {
					return nil, err
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ========== Conversions ==========

func toCollection(c *model.Collection) *Collection {
	return &Collection{
		CollectionID: c.CollectionID,
		Name:         c.Name,
		Description:  c.Description,
		CreatedAt:    c.CreatedAt,
	}
}

func toPrompt(p *model.Prompt) *Prompt {
	return &Prompt{
		PromptID:     p.PromptID,
		CollectionID: p.CollectionID,
		Title:        p.Title,
		Description:  p.Description,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toVersion(v *model.PromptVersion) *Version {
	return &Version{
		VersionID:           v.VersionID,
		PromptID:            v.PromptID,
		CollectionID:        v.CollectionID,
		VersionNumber:       v.VersionNumber,
		Content:             v.Content,
		ChangesSummary:      v.ChangesSummary,
		CreatedAt:           v.CreatedAt,
		RevertedFromVersion: v.RevertedFromVersion,
		Variables:           prompt.Variables(v.Content),
	}
}

func toComment(c *model.Comment) *Comment {
	return &Comment{
		CommentID: c.CommentID,
		VersionID: c.VersionID,
		AuthorID:  c.AuthorID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toComments(cs []*model.Comment) []*Comment {
	out := make([]*Comment, len(cs))
	for i, c := range cs {
		out[i] = toComment(c)
	}
	return out
}

func toHunks(r diff.Result) []Hunk {
	out := make([]Hunk, len(r.Hunks))
	for i, h := range r.Hunks {
		out[i] = Hunk{Op: h.Op.String(), Lines: h.Lines}
	}
	return out
}
