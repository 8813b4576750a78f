package storage

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite.sql
var sqliteSchema string

//go:embed migrations/postgres.sql
var postgresSchema string

type dialect struct {
	name   string
	schema string
	upsert string
	get    string
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		schema: sqliteSchema,
		upsert: `INSERT INTO objects (key, content_type, body, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET content_type = excluded.content_type, body = excluded.body, updated_at = excluded.updated_at`,
		get: `SELECT body FROM objects WHERE key = ?`,
	}
	postgresDialect = dialect{
		name:   "postgres",
		schema: postgresSchema,
		upsert: `INSERT INTO objects (key, content_type, body, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE SET content_type = EXCLUDED.content_type, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		get: `SELECT body FROM objects WHERE key = $1`,
	}
)

// SQLStorage keeps one row per object in an "objects" table.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
}

func NewSQLite(dbPath string) (*SQLStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite performs best with a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &SQLStorage{db: db, dialect: sqliteDialect}, nil
}

func NewPostgres(databaseURL string) (*SQLStorage, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &SQLStorage{db: db, dialect: postgresDialect}, nil
}

func (s *SQLStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("running migration: %w", err)
	}
	slog.Debug("Cache database migration completed", "dialect", s.dialect.name)
	return nil
}

func (s *SQLStorage) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading object %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, key, contentType, body, time.Now().UTC()); err != nil {
		return fmt.Errorf("storing object %s: %w", key, err)
	}
	return nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, s.dialect.get, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading object %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
