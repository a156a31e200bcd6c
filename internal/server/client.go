package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client is a typed PromptVault client
type Client struct {
	conn   grpc.ClientConnInterface
	author string
}

// NewClient wraps an existing connection
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to a PromptVault server without transport security
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

// WithAuthor returns a client that sends authorID as the caller identity
func (c *Client) WithAuthor(authorID string) *Client {
	return &Client{conn: c.conn, author: authorID}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c.author != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, AuthorMetadataKey, c.author)
	}
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(codecName))
}

// call invokes method and decodes the reply into a new T
func call[T any](ctx context.Context, c *Client, method string, req any) (*T, error) {
	resp := new(T)
	if err := c.invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) CreateCollection(ctx context.Context, req *CreateCollectionRequest) (*Collection, error) {
	return call[Collection](ctx, c, "CreateCollection", req)
}

func (c *Client) GetCollection(ctx context.Context, req *GetCollectionRequest) (*Collection, error) {
	return call[Collection](ctx, c, "GetCollection", req)
}

func (c *Client) ListCollections(ctx context.Context, req *ListCollectionsRequest) (*ListCollectionsResponse, error) {
	return call[ListCollectionsResponse](ctx, c, "ListCollections", req)
}

func (c *Client) DeleteCollection(ctx context.Context, req *DeleteCollectionRequest) (*DeleteCollectionResponse, error) {
	return call[DeleteCollectionResponse](ctx, c, "DeleteCollection", req)
}

func (c *Client) CreatePrompt(ctx context.Context, req *CreatePromptRequest) (*CreatePromptResponse, error) {
	return call[CreatePromptResponse](ctx, c, "CreatePrompt", req)
}

func (c *Client) GetPrompt(ctx context.Context, req *GetPromptRequest) (*Prompt, error) {
	return call[Prompt](ctx, c, "GetPrompt", req)
}

func (c *Client) ListPrompts(ctx context.Context, req *ListPromptsRequest) (*ListPromptsResponse, error) {
	return call[ListPromptsResponse](ctx, c, "ListPrompts", req)
}

func (c *Client) UpdatePrompt(ctx context.Context, req *UpdatePromptRequest) (*Prompt, error) {
	return call[Prompt](ctx, c, "UpdatePrompt", req)
}

func (c *Client) DeletePrompt(ctx context.Context, req *DeletePromptRequest) (*DeletePromptResponse, error) {
	return call[DeletePromptResponse](ctx, c, "DeletePrompt", req)
}

func (c *Client) AppendVersion(ctx context.Context, req *AppendVersionRequest) (*VersionResponse, error) {
	return call[VersionResponse](ctx, c, "AppendVersion", req)
}

func (c *Client) ListVersions(ctx context.Context, req *ListVersionsRequest) (*ListVersionsResponse, error) {
	return call[ListVersionsResponse](ctx, c, "ListVersions", req)
}

func (c *Client) GetVersion(ctx context.Context, req *GetVersionRequest) (*Version, error) {
	return call[Version](ctx, c, "GetVersion", req)
}

func (c *Client) RevertVersion(ctx context.Context, req *RevertVersionRequest) (*VersionResponse, error) {
	return call[VersionResponse](ctx, c, "RevertVersion", req)
}

func (c *Client) DiffVersions(ctx context.Context, req *DiffVersionsRequest) (*DiffVersionsResponse, error) {
	return call[DiffVersionsResponse](ctx, c, "DiffVersions", req)
}

func (c *Client) AddComment(ctx context.Context, req *AddCommentRequest) (*Comment, error) {
	return call[Comment](ctx, c, "AddComment", req)
}

func (c *Client) EditComment(ctx context.Context, req *EditCommentRequest) (*Comment, error) {
	return call[Comment](ctx, c, "EditComment", req)
}

func (c *Client) DeleteComment(ctx context.Context, req *DeleteCommentRequest) (*DeleteCommentResponse, error) {
	return call[DeleteCommentResponse](ctx, c, "DeleteComment", req)
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	return call[HealthResponse](ctx, c, "Health", &HealthRequest{})
}
