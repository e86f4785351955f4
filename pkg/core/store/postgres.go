package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the subset of pgxpool.Pool used here; pgxmock satisfies it too.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const auditSchema = `
	CREATE TABLE IF NOT EXISTS extraction_audit (
		job_id     TEXT        NOT NULL,
		page       INTEGER     NOT NULL,
		payload    JSONB       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (job_id, page)
	)
`

const insertAudit = `
	INSERT INTO extraction_audit (job_id, page, payload)
	VALUES ($1, $2, $3)
	ON CONFLICT (job_id, page) DO NOTHING
`

// PostgresAudit writes one row per (job_id, page). The primary key plus
// ON CONFLICT DO NOTHING makes a repeated write a no-op that reports
// ErrAlreadyWritten.
type PostgresAudit struct {
	db execer
}

func NewPostgresAudit(db execer) *PostgresAudit {
	return &PostgresAudit{db: db}
}

func (s *PostgresAudit) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("create extraction_audit: %w", err)
	}
	return nil
}

func (s *PostgresAudit) Put(ctx context.Context, jobID string, page int, payload []byte) error {
	if err := checkPut(jobID, page, payload); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, insertAudit, jobID, page, payload)
	if err != nil {
		return fmt.Errorf("insert audit payload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s page %d", ErrAlreadyWritten, jobID, page)
	}
	return nil
}
