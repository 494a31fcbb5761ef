package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const schemaSQL = `
    CREATE TABLE IF NOT EXISTS chat_transcripts (
        key        TEXT PRIMARY KEY,
        messages   JSONB NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    );
    CREATE TABLE IF NOT EXISTS grant_events (
        id       BIGSERIAL PRIMARY KEY,
        agent_id TEXT NOT NULL,
        grant_id TEXT NOT NULL,
        op       TEXT NOT NULL,
        status   TEXT NOT NULL,
        amount   DOUBLE PRECISION NOT NULL,
        at       TIMESTAMPTZ NOT NULL
    );
`

// Store is the PostgreSQL persistence for chat transcripts and the grant
// event ledger. It implements schemas.TranscriptMirror.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// Connect opens a pgx pool for url and checks it answers.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return pool, nil
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const sqlSaveTranscript = `
    INSERT INTO chat_transcripts (key, messages, created_at, updated_at)
    VALUES ($1, $2, $3, $3)
    ON CONFLICT (key) DO UPDATE SET
        messages = EXCLUDED.messages,
        updated_at = EXCLUDED.updated_at;
`

// Save replaces the history stored under key. created_at is set on the first
// insert only.
func (s *Store) Save(ctx context.Context, key string, messages []schemas.ChatMessage) error {
	if messages == nil {
		messages = []schemas.ChatMessage{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlSaveTranscript, key, payload, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to save transcript %q: %w", key, err)
	}
	return nil
}

const sqlLoadTranscript = `SELECT messages, created_at FROM chat_transcripts WHERE key = $1;`

// Load returns the transcript under key, or a zero Transcript.
func (s *Store) Load(ctx context.Context, key string) (schemas.Transcript, error) {
	var (
		payload   []byte
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx, sqlLoadTranscript, key).Scan(&payload, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.Transcript{}, nil
	}
	if err != nil {
		return schemas.Transcript{}, fmt.Errorf("failed to load transcript %q: %w", key, err)
	}

	var t schemas.Transcript
	if err := json.Unmarshal(payload, &t.Messages); err != nil {
		return schemas.Transcript{}, fmt.Errorf("failed to decode transcript %q: %w", key, err)
	}
	t.CreatedAt = createdAt.UTC()
	return t, nil
}

const sqlClearTranscript = `DELETE FROM chat_transcripts WHERE key = $1;`

// Clear removes the transcript and its timestamp.
func (s *Store) Clear(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, sqlClearTranscript, key); err != nil {
		return fmt.Errorf("failed to clear transcript %q: %w", key, err)
	}
	return nil
}

var grantEventColumns = []string{"agent_id", "grant_id", "op", "status", "amount", "at"}

// RecordGrantEvents appends events to the ledger in one COPY.
func (s *Store) RecordGrantEvents(ctx context.Context, events []schemas.GrantEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(events))
	for i, ev := range events {
		rows[i] = []interface{}{ev.AgentID, ev.GrantID, ev.Op, string(ev.Status), ev.Amount, ev.At.UTC()}
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"grant_events"}, grantEventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy grant events: %w", err)
	}
	if int(n) != len(events) {
		return fmt.Errorf("mismatch in copied grant events count: expected %d, got %d", len(events), n)
	}
	return nil
}

const sqlGrantEvents = `
    SELECT agent_id, grant_id, op, status, amount, at
    FROM grant_events
    WHERE agent_id = $1
    ORDER BY at DESC, id DESC
    LIMIT $2;
`

// GrantEvents lists the most recent ledger entries for agentID.
func (s *Store) GrantEvents(ctx context.Context, agentID string, limit int) ([]schemas.GrantEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, sqlGrantEvents, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query grant events: %w", err)
	}
	defer rows.Close()

	var events []schemas.GrantEvent
	for rows.Next() {
		var (
			ev     schemas.GrantEvent
			status string
		)
		if err := rows.Scan(&ev.AgentID, &ev.GrantID, &ev.Op, &status, &ev.Amount, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan grant event row: %w", err)
		}
		ev.Status = schemas.GrantStatus(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return events, nil
}
