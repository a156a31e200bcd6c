// ABOUTME: BadgerDB backend with optimistic transactions
// ABOUTME: Commit-time conflicts surface as ErrConflict so callers can retry

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/nainya/promptvault/pkg/model"
)

// BadgerConfig holds configuration for a Badger-backed store
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory disables disk persistence, for tests
	InMemory bool

	// SyncWrites fsyncs every commit
	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a value log file is rewritten
	GCDiscardRatio float64

	Logger zerolog.Logger
}

// DefaultBadgerConfig returns production defaults
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
		Logger:         zerolog.Nop(),
	}
}

// Badger is a DB backed by BadgerDB
type Badger struct {
	db  *badger.DB
	log zerolog.Logger

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// OpenBadger opens a Badger store and starts value log GC if configured
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites && !cfg.InMemory).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{log: cfg.Logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	b := &Badger{db: db, log: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		b.stopGC = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return b, nil
}

// Close stops GC and closes the database
func (b *Badger) Close() error {
	var err error
	b.closeOnce.Do(func() {
		if b.stopGC != nil {
			close(b.stopGC)
			<-b.gcDone
		}
		err = b.db.Close()
	})
	return err
}

// View runs fn in a read-only snapshot transaction
func (b *Badger) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return ErrClosed
	}
	return b.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

// Update runs fn in a read-write transaction and commits it
func (b *Badger) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.db.IsClosed() {
		return ErrClosed
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func (b *Badger) runGC(interval time.Duration, ratio float64) {
	defer close(b.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			err := b.db.RunValueLogGC(ratio)
			if err == nil {
				b.log.Debug().Msg("badger value log GC completed")
			} else if !errors.Is(err, badger.ErrNoRewrite) {
				b.log.Warn().Err(err).Msg("badger value log GC failed")
			}
		}
	}
}

// badgerLogger adapts zerolog to badger's Logger interface
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// scanKeys collects every key under prefix, in key order.
// Badger allows one open iterator per read-write transaction, so callers
// process the returned keys after the iterator is closed.
func (t *badgerTx) scanKeys(prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false

	it := t.txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// lastColumn decodes the trailing string column of an index key
func lastColumn(key []byte) (string, error) {
	vals, err := ExtractValues(key)
	if err != nil {
		return "", err
	}
	if len(vals) == 0 {
		return "", fmt.Errorf("empty index key")
	}
	return vals[len(vals)-1].String(), nil
}

func (t *badgerTx) PutCollection(c *model.Collection) error {
	return t.txn.Set(collectionKey(c.CollectionID), encodeCollection(c))
}

func (t *badgerTx) GetCollection(collectionID string) (*model.Collection, error) {
	val, err := t.get(collectionKey(collectionID))
	if err != nil {
		return nil, err
	}
	return decodeCollection(val)
}

func (t *badgerTx) ListCollections() ([]*model.Collection, error) {
	keys := t.scanKeys(EncodeKey(PREFIX_COLLECTION))

	collections := make([]*model.Collection, 0, len(keys))
	for _, key := range keys {
		collectionID, err := lastColumn(key)
		if err != nil {
			return nil, err
		}
		c, err := t.GetCollection(collectionID)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}

	// Keys are in id order
	sort.SliceStable(collections, func(i, j int) bool {
		return collections[i].CreatedAt.Before(collections[j].CreatedAt)
	})
	return collections, nil
}

func (t *badgerTx) DeleteCollection(collectionID string) error {
	if _, err := t.GetCollection(collectionID); err != nil {
		return err
	}
	return t.txn.Delete(collectionKey(collectionID))
}

func (t *badgerTx) PutPrompt(p *model.Prompt) error {
	old, err := t.GetPrompt(p.PromptID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		if old.CollectionID != p.CollectionID || old.Title != p.Title {
			if err := t.txn.Delete(promptTitleKey(old.CollectionID, old.Title)); err != nil {
				return err
			}
		}
		if old.CollectionID != p.CollectionID || !old.CreatedAt.Equal(p.CreatedAt) {
			if err := t.txn.Delete(promptCollectionKey(old)); err != nil {
				return err
			}
		}
	}

	if err := t.txn.Set(promptKey(p.PromptID), encodePrompt(p)); err != nil {
		return err
	}
	if err := t.txn.Set(promptTitleKey(p.CollectionID, p.Title), []byte(p.PromptID)); err != nil {
		return err
	}
	return t.txn.Set(promptCollectionKey(p), []byte{})
}

// PromptByTitle reads a single index key, so a concurrent writer claiming
// the same title makes this transaction conflict at commit
func (t *badgerTx) PromptByTitle(collectionID, title string) (*model.Prompt, error) {
	promptID, err := t.get(promptTitleKey(collectionID, title))
	if err != nil {
		return nil, err
	}
	return t.GetPrompt(string(promptID))
}

func (t *badgerTx) GetPrompt(promptID string) (*model.Prompt, error) {
	val, err := t.get(promptKey(promptID))
	if err != nil {
		return nil, err
	}
	return decodePrompt(val)
}

func (t *badgerTx) ListPrompts(collectionID string) ([]*model.Prompt, error) {
	keys := t.scanKeys(EncodeKey(PREFIX_PROMPT_COLLECTION, NewStringValue(collectionID)))

	prompts := make([]*model.Prompt, 0, len(keys))
	for _, key := range keys {
		promptID, err := lastColumn(key)
		if err != nil {
			return nil, err
		}
		p, err := t.GetPrompt(promptID)
		if err != nil {
			return nil, fmt.Errorf("prompt index points at %s: %w", promptID, err)
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// AllPrompts walks the collection index, so prompts come out grouped by
// collection and are then merged into one creation-time order
func (t *badgerTx) AllPrompts() ([]*model.Prompt, error) {
	keys := t.scanKeys(EncodeKey(PREFIX_PROMPT_COLLECTION))

	prompts := make([]*model.Prompt, 0, len(keys))
	for _, key := range keys {
		promptID, err := lastColumn(key)
		if err != nil {
			return nil, err
		}
		p, err := t.GetPrompt(promptID)
		if err != nil {
			return nil, fmt.Errorf("prompt index points at %s: %w", promptID, err)
		}
		prompts = append(prompts, p)
	}

	sort.SliceStable(prompts, func(i, j int) bool {
		return prompts[i].CreatedAt.Before(prompts[j].CreatedAt)
	})
	return prompts, nil
}

func (t *badgerTx) DeletePrompt(promptID string) error {
	p, err := t.GetPrompt(promptID)
	if err != nil {
		return err
	}

	versions, err := t.Versions(promptID)
	if err != nil {
		return err
	}

	for _, v := range versions {
		for _, key := range t.scanKeys(EncodeKey(PREFIX_COMMENT_VERSION, NewStringValue(v.VersionID))) {
			commentID, err := lastColumn(key)
			if err != nil {
				return err
			}
			if err := t.txn.Delete(commentKey(commentID)); err != nil {
				return err
			}
			if err := t.txn.Delete(key); err != nil {
				return err
			}
		}
		if err := t.txn.Delete(versionKey(v.VersionID)); err != nil {
			return err
		}
		if err := t.txn.Delete(versionNumberKey(promptID, v.VersionNumber)); err != nil {
			return err
		}
	}

	for _, key := range [][]byte{
		headKey(promptID),
		promptTitleKey(p.CollectionID, p.Title),
		promptCollectionKey(p),
		promptKey(promptID),
	} {
		if err := t.txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (t *badgerTx) Head(promptID string) (int, error) {
	val, err := t.get(headKey(promptID))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	vals, err := DecodeValues(val)
	if err != nil || len(vals) != 1 || vals[0].Type != TYPE_UINT64 {
		return 0, fmt.Errorf("corrupt head marker for prompt %s", promptID)
	}
	return int(vals[0].U64), nil
}

func (t *badgerTx) CompareAndSetHead(promptID string, expected, next int) error {
	current, err := t.Head(promptID)
	if err != nil {
		return err
	}
	if current != expected {
		return fmt.Errorf("%w: head of %s is %d, expected %d", ErrConflict, promptID, current, expected)
	}
	return t.txn.Set(headKey(promptID), EncodeValues([]Value{NewUint64Value(uint64(next))}))
}

func (t *badgerTx) PutVersion(v *model.PromptVersion) error {
	if err := t.txn.Set(versionKey(v.VersionID), encodeVersion(v)); err != nil {
		return err
	}
	return t.txn.Set(versionNumberKey(v.PromptID, v.VersionNumber), []byte(v.VersionID))
}

func (t *badgerTx) GetVersion(versionID string) (*model.PromptVersion, error) {
	val, err := t.get(versionKey(versionID))
	if err != nil {
		return nil, err
	}
	return decodeVersion(val)
}

func (t *badgerTx) VersionByNumber(promptID string, number int) (*model.PromptVersion, error) {
	versionID, err := t.get(versionNumberKey(promptID, number))
	if err != nil {
		return nil, err
	}
	return t.GetVersion(string(versionID))
}

func (t *badgerTx) Versions(promptID string) ([]*model.PromptVersion, error) {
	keys := t.scanKeys(EncodeKey(PREFIX_VERSION_NUMBER, NewStringValue(promptID)))

	versions := make([]*model.PromptVersion, 0, len(keys))
	for _, key := range keys {
		versionID, err := t.get(key)
		if err != nil {
			return nil, err
		}
		v, err := t.GetVersion(string(versionID))
		if err != nil {
			return nil, fmt.Errorf("version index points at %s: %w", versionID, err)
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func (t *badgerTx) PutComment(c *model.Comment) error {
	if err := t.txn.Set(commentKey(c.CommentID), encodeComment(c)); err != nil {
		return err
	}
	return t.txn.Set(commentVersionKey(c), []byte{})
}

func (t *badgerTx) GetComment(commentID string) (*model.Comment, error) {
	val, err := t.get(commentKey(commentID))
	if err != nil {
		return nil, err
	}
	return decodeComment(val)
}

func (t *badgerTx) DeleteComment(commentID string) error {
	c, err := t.GetComment(commentID)
	if err != nil {
		return err
	}
	if err := t.txn.Delete(commentVersionKey(c)); err != nil {
		return err
	}
	return t.txn.Delete(commentKey(commentID))
}

func (t *badgerTx) Comments(versionID string) ([]*model.Comment, error) {
	keys := t.scanKeys(EncodeKey(PREFIX_COMMENT_VERSION, NewStringValue(versionID)))

	comments := make([]*model.Comment, 0, len(keys))
	for _, key := range keys {
		commentID, err := lastColumn(key)
		if err != nil {
			return nil, err
		}
		c, err := t.GetComment(commentID)
		if err != nil {
			return nil, fmt.Errorf("comment index points at %s: %w", commentID, err)
		}
		comments = append(comments, c)
	}
	return comments, nil
}
