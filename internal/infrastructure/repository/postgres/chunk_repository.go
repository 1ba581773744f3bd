package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker/corpusprep startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS diary_chunks (
	title TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	text TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	people_involved JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diary_chunks_position ON diary_chunks(position);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// UpsertChunks writes chunks in slice order. A blank description or people list
// keeps whatever the row already holds.
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO diary_chunks (title, position, text, description, people_involved, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (title) DO UPDATE SET
	position = EXCLUDED.position,
	text = EXCLUDED.text,
	description = COALESCE(NULLIF(EXCLUDED.description, ''), diary_chunks.description),
	people_involved = CASE
		WHEN EXCLUDED.people_involved = '[]'::jsonb THEN diary_chunks.people_involved
		ELSE EXCLUDED.people_involved
	END,
	updated_at = EXCLUDED.updated_at
`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, chunk := range chunks {
		peopleJSON, err := marshalPeople(chunk.PeopleInvolved)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, chunk.Title, i, chunk.Text, chunk.Description, peopleJSON, now); err != nil {
			return fmt.Errorf("upsert chunk %q: %w", chunk.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// ListChunks returns the corpus in load order.
func (r *ChunkRepository) ListChunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT title, text, description, people_involved
FROM diary_chunks
ORDER BY position ASC, title ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0, 256)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

func (r *ChunkRepository) GetByTitle(ctx context.Context, title string) (*domain.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT title, text, description, people_involved
FROM diary_chunks
WHERE title = $1
`, title)

	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChunkNotFound, "get chunk by title", fmt.Errorf("title=%s", title))
		}
		return nil, err
	}
	return chunk, nil
}

func (r *ChunkRepository) SaveSummary(ctx context.Context, title, description string, people []string) error {
	peopleJSON, err := marshalPeople(people)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE diary_chunks
SET description = $2, people_involved = $3, updated_at = $4
WHERE title = $1
`, title, description, peopleJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save summary rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrChunkNotFound, "save summary", fmt.Errorf("title=%s", title))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var peopleRaw []byte
	if err := row.Scan(&chunk.Title, &chunk.Text, &chunk.Description, &peopleRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	if len(peopleRaw) > 0 {
		if err := json.Unmarshal(peopleRaw, &chunk.PeopleInvolved); err != nil {
			return nil, fmt.Errorf("unmarshal people_involved: %w", err)
		}
	}
	return &chunk, nil
}

func marshalPeople(people []string) ([]byte, error) {
	if people == nil {
		people = []string{}
	}
	raw, err := json.Marshal(people)
	if err != nil {
		return nil, fmt.Errorf("marshal people_involved: %w", err)
	}
	return raw, nil
}
