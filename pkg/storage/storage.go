// ABOUTME: Storage contract required by the version engine
// ABOUTME: Snapshot reads, atomic updates and a compare-and-swap head marker per prompt

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nainya/promptvault/pkg/model"
)

var (
	// ErrNotFound is returned by lookups that miss
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict is returned when a conditional write loses a race.
	// Update also returns it when a concurrent commit invalidated the transaction's reads.
	ErrConflict = errors.New("storage: conflict")

	// ErrClosed is returned by operations on a closed database
	ErrClosed = errors.New("storage: closed")
)

// Tx is the set of record operations available inside a transaction.
// A Tx must not be used after the function it was passed to returns.
type Tx interface {
	PutCollection(c *model.Collection) error
	GetCollection(collectionID string) (*model.Collection, error)

	// ListCollections returns every collection ordered by creation time
	ListCollections() ([]*model.Collection, error)

	// DeleteCollection removes the collection record only. Callers delete its
	// prompts first.
	DeleteCollection(collectionID string) error

	PutPrompt(p *model.Prompt) error
	GetPrompt(promptID string) (*model.Prompt, error)

	// PromptByTitle finds the prompt with exactly this title in a collection
	PromptByTitle(collectionID, title string) (*model.Prompt, error)

	// ListPrompts returns a collection's prompts ordered by creation time
	ListPrompts(collectionID string) ([]*model.Prompt, error)

	// AllPrompts returns every prompt ordered by creation time
	AllPrompts() ([]*model.Prompt, error)

	// DeletePrompt removes the prompt, its head marker, its versions and
	// every comment on those versions.
	DeletePrompt(promptID string) error

	// Head returns the stored head version number, 0 when the prompt has none
	Head(promptID string) (int, error)

	// CompareAndSetHead sets the head to next if it is still expected,
	// and fails with ErrConflict otherwise.
	CompareAndSetHead(promptID string, expected, next int) error

	PutVersion(v *model.PromptVersion) error
	GetVersion(versionID string) (*model.PromptVersion, error)
	VersionByNumber(promptID string, number int) (*model.PromptVersion, error)

	// Versions returns a prompt's versions ordered by version number
	Versions(promptID string) ([]*model.PromptVersion, error)

	PutComment(c *model.Comment) error
	GetComment(commentID string) (*model.Comment, error)
	DeleteComment(commentID string) error

	// Comments returns a version's comments ordered by creation time
	Comments(versionID string) ([]*model.Comment, error)
}

// DB is a transactional record store
type DB interface {
	// View runs fn against a consistent snapshot
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn atomically. Nothing fn wrote is visible unless it returns nil
	// and the commit succeeds.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Drivers
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
)

// Config selects and configures a backend
type Config struct {
	Driver   string // badger or sqlite
	Path     string // Directory for badger, file for sqlite
	InMemory bool   // Badger in-memory mode / sqlite private memory

	// Badger only
	SyncWrites bool
	GCInterval time.Duration // Zero disables value log GC

	Logger zerolog.Logger
}

// Open opens the configured backend
func Open(cfg Config) (DB, error) {
	switch cfg.Driver {
	case DriverBadger, "":
		bcfg := DefaultBadgerConfig()
		bcfg.Path = cfg.Path
		bcfg.InMemory = cfg.InMemory
		bcfg.SyncWrites = cfg.SyncWrites
		bcfg.GCInterval = cfg.GCInterval
		bcfg.Logger = cfg.Logger
		return OpenBadger(bcfg)
	case DriverSQLite:
		return OpenSQLite(SQLiteConfig{Path: cfg.Path, InMemory: cfg.InMemory})
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
