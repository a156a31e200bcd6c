// ABOUTME: SQLite backend for the relational deployment
// ABOUTME: The head marker CAS is a guarded UPDATE checked by rows affected

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nainya/promptvault/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
    collection_id TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    description   TEXT,
    created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompts (
    prompt_id     TEXT PRIMARY KEY,
    collection_id TEXT NOT NULL REFERENCES collections(collection_id),
    title         TEXT NOT NULL,
    description   TEXT,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prompt_heads (
    prompt_id TEXT PRIMARY KEY REFERENCES prompts(prompt_id),
    head      INTEGER NOT NULL CHECK (head > 0)
);

CREATE TABLE IF NOT EXISTS prompt_versions (
    version_id            TEXT PRIMARY KEY,
    prompt_id             TEXT NOT NULL REFERENCES prompts(prompt_id),
    collection_id         TEXT NOT NULL,
    version_number        INTEGER NOT NULL CHECK (version_number > 0),
    content               TEXT NOT NULL,
    changes_summary       TEXT,
    created_at            TEXT NOT NULL,
    reverted_from_version TEXT REFERENCES prompt_versions(version_id),
    UNIQUE (prompt_id, version_number)
);

CREATE TABLE IF NOT EXISTS version_comments (
    comment_id TEXT PRIMARY KEY,
    version_id TEXT NOT NULL REFERENCES prompt_versions(version_id),
    prompt_id  TEXT NOT NULL,
    author_id  TEXT NOT NULL,
    text       TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_prompts_collection ON prompts(collection_id, created_at);
CREATE INDEX IF NOT EXISTS idx_prompts_title ON prompts(collection_id, title);
CREATE INDEX IF NOT EXISTS idx_comments_version ON version_comments(version_id, created_at);
CREATE INDEX IF NOT EXISTS idx_comments_prompt ON version_comments(prompt_id);
`

// SQLiteConfig configures the SQLite backend
type SQLiteConfig struct {
	Path     string // Database file
	InMemory bool   // Private in-memory database, for tests
}

// SQLite is a DB backed by a SQLite database.
// Writes go through a single connection. SQLite admits one writer at a time,
// so a pool would only trade queueing for SQLITE_BUSY. File databases read
// through a separate pool, so WAL snapshot reads never wait for a writer.
type SQLite struct {
	db   *sql.DB
	read *sql.DB
}

const sqlitePragmas = "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"

// OpenSQLite opens the database and applies the schema
func OpenSQLite(cfg SQLiteConfig) (*SQLite, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		dsn = ":memory:"
	} else if dsn == "" {
		return nil, errors.New("sqlite: path is required for persistent database")
	}

	db, err := sql.Open("sqlite", dsn+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}

	// An in-memory database only exists on the connection that created it
	if cfg.InMemory {
		return &SQLite{db: db, read: db}, nil
	}

	read, err := sql.Open("sqlite", dsn+sqlitePragmas+"&_pragma=query_only(1)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening read pool: %w", err)
	}
	return &SQLite{db: db, read: read}, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	err := s.db.Close()
	if s.read != s.db {
		if rerr := s.read.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// View runs fn in a transaction that is always rolled back
func (s *SQLite) View(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.read.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError(err)
	}
	defer tx.Rollback()

	return fn(&sqliteTx{ctx: ctx, tx: tx})
}

// Update runs fn in a transaction and commits it when fn succeeds
func (s *SQLite) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError(err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return mapSQLError(tx.Commit())
}

func mapSQLError(err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Fixed-width fractional seconds keep the text column sortable
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (t *sqliteTx) PutCollection(c *model.Collection) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO collections (collection_id, name, description, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection_id) DO UPDATE SET name = excluded.name, description = excluded.description`,
		c.CollectionID, c.Name, nullString(c.Description), formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("putting collection: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetCollection(collectionID string) (*model.Collection, error) {
	c := &model.Collection{}
	var desc sql.NullString
	var createdAt string
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT collection_id, name, description, created_at FROM collections WHERE collection_id = ?`, collectionID,
	).Scan(&c.CollectionID, &c.Name, &desc, &createdAt)
	if err != nil {
		return nil, noRows(err)
	}
	c.Description = fromNullString(desc)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing collection created_at: %w", err)
	}
	return c, nil
}

func (t *sqliteTx) ListCollections() ([]*model.Collection, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT collection_id, name, description, created_at FROM collections ORDER BY created_at ASC, collection_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	collections := []*model.Collection{}
	for rows.Next() {
		c := &model.Collection{}
		var desc sql.NullString
		var createdAt string
		if err := rows.Scan(&c.CollectionID, &c.Name, &desc, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		c.Description = fromNullString(desc)
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing collection created_at: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

func (t *sqliteTx) DeleteCollection(collectionID string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM collections WHERE collection_id = ?`, collectionID)
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", collectionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) PutPrompt(p *model.Prompt) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO prompts (prompt_id, collection_id, title, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(prompt_id) DO UPDATE SET
		     collection_id = excluded.collection_id,
		     title = excluded.title,
		     description = excluded.description,
		     updated_at = excluded.updated_at`,
		p.PromptID, p.CollectionID, p.Title, nullString(p.Description), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("putting prompt: %w", err)
	}
	return nil
}

const promptColumns = `prompt_id, collection_id, title, description, created_at, updated_at`

func scanPrompt(row interface{ Scan(...any) error }) (*model.Prompt, error) {
	p := &model.Prompt{}
	var desc sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&p.PromptID, &p.CollectionID, &p.Title, &desc, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Description = fromNullString(desc)
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing prompt created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing prompt updated_at: %w", err)
	}
	return p, nil
}

func (t *sqliteTx) GetPrompt(promptID string) (*model.Prompt, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+promptColumns+` FROM prompts WHERE prompt_id = ?`, promptID)
	p, err := scanPrompt(row)
	if err != nil {
		return nil, noRows(err)
	}
	return p, nil
}

func (t *sqliteTx) PromptByTitle(collectionID, title string) (*model.Prompt, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE collection_id = ? AND title = ? LIMIT 1`, collectionID, title)
	p, err := scanPrompt(row)
	if err != nil {
		return nil, noRows(err)
	}
	return p, nil
}

func (t *sqliteTx) ListPrompts(collectionID string) ([]*model.Prompt, error) {
	return t.queryPrompts(`SELECT `+promptColumns+` FROM prompts WHERE collection_id = ? ORDER BY created_at ASC, prompt_id ASC`, collectionID)
}

func (t *sqliteTx) AllPrompts() ([]*model.Prompt, error) {
	return t.queryPrompts(`SELECT ` + promptColumns + ` FROM prompts ORDER BY created_at ASC, prompt_id ASC`)
}

func (t *sqliteTx) queryPrompts(query string, args ...any) ([]*model.Prompt, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*model.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

func (t *sqliteTx) DeletePrompt(promptID string) error {
	if _, err := t.GetPrompt(promptID); err != nil {
		return err
	}

	for _, stmt := range []string{
		`DELETE FROM version_comments WHERE prompt_id = ?`,
		`DELETE FROM prompt_versions WHERE prompt_id = ?`,
		`DELETE FROM prompt_heads WHERE prompt_id = ?`,
		`DELETE FROM prompts WHERE prompt_id = ?`,
	} {
		if _, err := t.tx.ExecContext(t.ctx, stmt, promptID); err != nil {
			return fmt.Errorf("deleting prompt %s: %w", promptID, err)
		}
	}
	return nil
}

func (t *sqliteTx) Head(promptID string) (int, error) {
	var head int
	err := t.tx.QueryRowContext(t.ctx, `SELECT head FROM prompt_heads WHERE prompt_id = ?`, promptID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return head, err
}

func (t *sqliteTx) CompareAndSetHead(promptID string, expected, next int) error {
	var res sql.Result
	var err error
	if expected == 0 {
		res, err = t.tx.ExecContext(t.ctx,
			`INSERT INTO prompt_heads (prompt_id, head) VALUES (?, ?) ON CONFLICT(prompt_id) DO NOTHING`,
			promptID, next)
	} else {
		res, err = t.tx.ExecContext(t.ctx,
			`UPDATE prompt_heads SET head = ? WHERE prompt_id = ? AND head = ?`,
			next, promptID, expected)
	}
	if err != nil {
		return fmt.Errorf("advancing head of %s: %w", promptID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%w: head of %s moved past %d", ErrConflict, promptID, expected)
	}
	return nil
}

func (t *sqliteTx) PutVersion(v *model.PromptVersion) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO prompt_versions
		     (version_id, prompt_id, collection_id, version_number, content, changes_summary, created_at, reverted_from_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VersionID, v.PromptID, v.CollectionID, v.VersionNumber, v.Content,
		nullString(v.ChangesSummary), formatTime(v.CreatedAt), nullString(v.RevertedFromVersion),
	)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	return nil
}

const versionColumns = `version_id, prompt_id, collection_id, version_number, content, changes_summary, created_at, reverted_from_version`

func scanVersion(row interface{ Scan(...any) error }) (*model.PromptVersion, error) {
	v := &model.PromptVersion{}
	var summary, revertedFrom sql.NullString
	var createdAt string
	if err := row.Scan(&v.VersionID, &v.PromptID, &v.CollectionID, &v.VersionNumber, &v.Content,
		&summary, &createdAt, &revertedFrom); err != nil {
		return nil, err
	}
	v.ChangesSummary = fromNullString(summary)
	v.RevertedFromVersion = fromNullString(revertedFrom)
	var err error
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing version created_at: %w", err)
	}
	return v, nil
}

func (t *sqliteTx) GetVersion(versionID string) (*model.PromptVersion, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+versionColumns+` FROM prompt_versions WHERE version_id = ?`, versionID)
	v, err := scanVersion(row)
	if err != nil {
		return nil, noRows(err)
	}
	return v, nil
}

func (t *sqliteTx) VersionByNumber(promptID string, number int) (*model.PromptVersion, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+versionColumns+` FROM prompt_versions WHERE prompt_id = ? AND version_number = ?`, promptID, number)
	v, err := scanVersion(row)
	if err != nil {
		return nil, noRows(err)
	}
	return v, nil
}

func (t *sqliteTx) Versions(promptID string) ([]*model.PromptVersion, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+versionColumns+` FROM prompt_versions WHERE prompt_id = ? ORDER BY version_number ASC`, promptID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	versions := []*model.PromptVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (t *sqliteTx) PutComment(c *model.Comment) error {
	var updatedAt sql.NullString
	if c.UpdatedAt != nil {
		updatedAt = sql.NullString{String: formatTime(*c.UpdatedAt), Valid: true}
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO version_comments (comment_id, version_id, prompt_id, author_id, text, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(comment_id) DO UPDATE SET text = excluded.text, updated_at = excluded.updated_at`,
		c.CommentID, c.VersionID, c.PromptID, c.AuthorID, c.Text, formatTime(c.CreatedAt), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("putting comment: %w", err)
	}
	return nil
}

const commentColumns = `comment_id, version_id, prompt_id, author_id, text, created_at, updated_at`

func scanComment(row interface{ Scan(...any) error }) (*model.Comment, error) {
	c := &model.Comment{}
	var createdAt string
	var updatedAt sql.NullString
	if err := row.Scan(&c.CommentID, &c.VersionID, &c.PromptID, &c.AuthorID, &c.Text, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing comment created_at: %w", err)
	}
	if updatedAt.Valid {
		ts, err := parseTime(updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing comment updated_at: %w", err)
		}
		c.UpdatedAt = &ts
	}
	return c, nil
}

func (t *sqliteTx) GetComment(commentID string) (*model.Comment, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+commentColumns+` FROM version_comments WHERE comment_id = ?`, commentID)
	c, err := scanComment(row)
	if err != nil {
		return nil, noRows(err)
	}
	return c, nil
}

func (t *sqliteTx) DeleteComment(commentID string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM version_comments WHERE comment_id = ?`, commentID)
	if err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqliteTx) Comments(versionID string) ([]*model.Comment, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+commentColumns+` FROM version_comments WHERE version_id = ? ORDER BY created_at ASC, comment_id ASC`, versionID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	comments := []*model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
