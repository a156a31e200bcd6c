// Package server implements the gRPC PromptVault service
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nainya/promptvault/internal/config"
	"github.com/nainya/promptvault/internal/logger"
	"github.com/nainya/promptvault/internal/metrics"
	"github.com/nainya/promptvault/pkg/comment"
	"github.com/nainya/promptvault/pkg/diff"
	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
	"github.com/nainya/promptvault/pkg/prompt"
	"github.com/nainya/promptvault/pkg/storage"
	"github.com/nainya/promptvault/pkg/version"
)

// Server implements PromptVaultServer
type Server struct {
	db       storage.DB
	driver   string
	registry *prompt.Registry
	versions *version.Store
	reverter *version.Reverter
	comments *comment.Store

	log       *logger.Logger
	metrics   *metrics.Metrics
	startTime time.Time
}

// Open opens the configured storage and builds a server on it
func Open(cfg config.Config, log *logger.Logger, m *metrics.Metrics) (*Server, error) {
	scfg := cfg.StorageOpenConfig()
	scfg.Logger = log.Component("database").Zerolog()

	db, err := storage.Open(scfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db, cfg, log, m), nil
}

// New builds a server over an open database. The server owns db.
// A nil m records into a private registry.
func New(db storage.DB, cfg config.Config, log *logger.Logger, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if log == nil {
		log = logger.Nop()
	}

	versions := version.NewStore(db,
		version.WithLogger(log.Component("version").Zerolog()),
		version.WithRecorder(m),
		version.WithMaxAttempts(cfg.Versioning.MaxAppendAttempts),
		version.WithBackoff(cfg.Versioning.RetryBackoff),
	)

	return &Server{
		db:       db,
		driver:   cfg.Storage.Driver,
		registry: prompt.NewRegistry(db, versions, log.Component("registry").Zerolog()),
		versions: versions,
		reverter: version.NewReverter(versions),
		comments: comment.NewStore(db, comment.Config{
			MaxLength: cfg.Comments.MaxLength,
			Logger:    log.Component("comment").Zerolog(),
			Recorder:  m,
		}),
		log:       log,
		metrics:   m,
		startTime: time.Now(),
	}
}

// Close closes the database
func (s *Server) Close() error {
	return s.db.Close()
}

// Ready reports whether storage answers reads
func (s *Server) Ready(ctx context.Context) error {
	return s.db.View(ctx, func(tx storage.Tx) error {
		_, err := tx.Head("")
		return err
	})
}

// ========== Prompt Registry ==========

func (s *Server) CreateCollection(ctx context.Context, req *CreateCollectionRequest) (*Collection, error) {
	c, err := s.registry.CreateCollection(ctx, prompt.CreateCollectionRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toCollection(c), nil
}

func (s *Server) GetCollection(ctx context.Context, req *GetCollectionRequest) (*Collection, error) {
	c, err := s.registry.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toCollection(c), nil
}

func (s *Server) ListCollections(ctx context.Context, req *ListCollectionsRequest) (*ListCollectionsResponse, error) {
	collections, err := s.registry.ListCollections(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]*Collection, len(collections))
	for i, c := range collections {
		out[i] = toCollection(c)
	}
	return &ListCollectionsResponse{Collections: out, Total: len(out)}, nil
}

func (s *Server) DeleteCollection(ctx context.Context, req *DeleteCollectionRequest) (*DeleteCollectionResponse, error) {
	if err := s.registry.DeleteCollection(ctx, req.CollectionID); err != nil {
		return nil, toStatus(err)
	}
	return &DeleteCollectionResponse{}, nil
}

func (s *Server) CreatePrompt(ctx context.Context, req *CreatePromptRequest) (*CreatePromptResponse, error) {
	p, v, err := s.registry.CreatePrompt(ctx, prompt.CreatePromptRequest{
		CollectionID: req.CollectionID,
		Title:        req.Title,
		Content:      req.Content,
		Description:  req.Description,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreatePromptResponse{Prompt: toPrompt(p), Version: toVersion(v)}, nil
}

func (s *Server) GetPrompt(ctx context.Context, req *GetPromptRequest) (*Prompt, error) {
	p, err := s.registry.GetPrompt(ctx, req.PromptID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toPrompt(p), nil
}

func (s *Server) ListPrompts(ctx context.Context, req *ListPromptsRequest) (*ListPromptsResponse, error) {
	prompts, err := s.registry.ListPrompts(ctx, prompt.ListPromptsRequest{
		CollectionID: req.CollectionID,
		Search:       req.Search,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]*Prompt, len(prompts))
	for i, p := range prompts {
		out[i] = toPrompt(p)
	}
	return &ListPromptsResponse{Prompts: out, Total: len(out)}, nil
}

func (s *Server) UpdatePrompt(ctx context.Context, req *UpdatePromptRequest) (*Prompt, error) {
	p, err := s.registry.UpdatePrompt(ctx, req.PromptID, prompt.UpdatePromptRequest{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return toPrompt(p), nil
}

func (s *Server) DeletePrompt(ctx context.Context, req *DeletePromptRequest) (*DeletePromptResponse, error) {
	if err := s.registry.DeletePrompt(ctx, req.PromptID); err != nil {
		return nil, toStatus(err)
	}
	return &DeletePromptResponse{}, nil
}

// ========== Versions ==========

func (s *Server) AppendVersion(ctx context.Context, req *AppendVersionRequest) (*VersionResponse, error) {
	v, outcome, err := s.versions.Append(ctx, version.AppendRequest{
		PromptID:     req.PromptID,
		CollectionID: req.CollectionID,
		Content:      req.Content,
		Summary:      req.ChangesSummary,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &VersionResponse{Version: toVersion(v), Created: outcome == version.OutcomeCreated}, nil
}

func (s *Server) ListVersions(ctx context.Context, req *ListVersionsRequest) (*ListVersionsResponse, error) {
	versions, err := s.versions.List(ctx, req.PromptID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]*Version, len(versions))
	for i, v := range versions {
		out[i] = toVersion(v)
	}
	return &ListVersionsResponse{Versions: out}, nil
}

func (s *Server) GetVersion(ctx context.Context, req *GetVersionRequest) (*Version, error) {
	v, err := s.versions.Get(ctx, req.PromptID, req.Version)
	if err != nil {
		return nil, toStatus(err)
	}
	return toVersion(v), nil
}

func (s *Server) RevertVersion(ctx context.Context, req *RevertVersionRequest) (*VersionResponse, error) {
	v, outcome, err := s.reverter.Revert(ctx, version.RevertRequest{
		PromptID:        req.PromptID,
		CollectionID:    req.CollectionID,
		TargetVersionID: req.TargetVersionID,
		Summary:         req.ChangesSummary,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &VersionResponse{Version: toVersion(v), Created: outcome == version.OutcomeCreated}, nil
}

func (s *Server) DiffVersions(ctx context.Context, req *DiffVersionsRequest) (*DiffVersionsResponse, error) {
	from, err := s.resolve(ctx, req.PromptID, req.From)
	if err != nil {
		return nil, toStatus(err)
	}
	to, err := s.resolve(ctx, req.PromptID, req.To)
	if err != nil {
		return nil, toStatus(err)
	}

	start := time.Now()
	result, err := diff.Versions(from, to)
	if err != nil {
		return nil, toStatus(err)
	}
	stats := result.Stats()
	s.metrics.RecordDiff(time.Since(start), stats.Inserted+stats.Deleted)

	contextLines := diff.DefaultContext
	if req.Context != nil {
		contextLines = *req.Context
	}
	unified, err := diff.Unified(from, to, contextLines)
	if err != nil {
		return nil, toStatus(err)
	}

	fromNotes, err := s.comments.ListForVersion(ctx, from.VersionID)
	if err != nil {
		return nil, toStatus(err)
	}
	toNotes, err := s.comments.ListForVersion(ctx, to.VersionID)
	if err != nil {
		return nil, toStatus(err)
	}

	return &DiffVersionsResponse{
		From:         toVersion(from),
		To:           toVersion(to),
		Hunks:        toHunks(result),
		Stats:        DiffStats{Equal: stats.Equal, Inserted: stats.Inserted, Deleted: stats.Deleted},
		Unified:      unified,
		FromComments: toComments(fromNotes),
		ToComments:   toComments(toNotes),
	}, nil
}

func (s *Server) resolve(ctx context.Context, promptID, ref string) (*model.PromptVersion, error) {
	if promptID != "" {
		return s.versions.Get(ctx, promptID, ref)
	}
	return s.versions.ByID(ctx, ref)
}

// ========== Comments ==========

func (s *Server) AddComment(ctx context.Context, req *AddCommentRequest) (*Comment, error) {
	c, err := s.comments.Add(ctx, req.VersionID, authorFrom(ctx), req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return toComment(c), nil
}

func (s *Server) EditComment(ctx context.Context, req *EditCommentRequest) (*Comment, error) {
	c, err := s.comments.Edit(ctx, req.CommentID, authorFrom(ctx), req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return toComment(c), nil
}

func (s *Server) DeleteComment(ctx context.Context, req *DeleteCommentRequest) (*DeleteCommentResponse, error) {
	if err := s.comments.Delete(ctx, req.CommentID, authorFrom(ctx)); err != nil {
		return nil, toStatus(err)
	}
	return &DeleteCommentResponse{}, nil
}

// authorFrom reads the caller identity from incoming metadata
func authorFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if ids := md.Get(AuthorMetadataKey); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// ========== Health & Status ==========

func (s *Server) Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	return &HealthResponse{
		Healthy:       s.Ready(ctx) == nil,
		Version:       ServiceVersion,
		Driver:        s.driver,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}, nil
}

// toStatus maps domain errors to gRPC status codes
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errs.IsNotFound(err):
		code = codes.NotFound
	case errs.IsInvalidArgument(err):
		code = codes.InvalidArgument
	case errs.IsPermissionDenied(err):
		code = codes.PermissionDenied
	case errs.IsAlreadyExists(err):
		code = codes.AlreadyExists
	case errs.IsUnavailable(err):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
