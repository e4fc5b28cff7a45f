package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"github.com/Neuro-Trade/metatrade-metaapi-mcp-server/internal/domain"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type JournalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewJournalRepository(pool PgxPool, tracer trace.Tracer) *JournalRepository {
	return &JournalRepository{pool: pool, tracer: tracer}
}

func (r *JournalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "journal-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trade_journal (
			id BIGSERIAL PRIMARY KEY,
			tool TEXT NOT NULL,
			account_id TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			side TEXT NOT NULL DEFAULT '',
			volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			client_order_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS trade_journal_account_created_idx
			ON trade_journal (account_id, created_at DESC);
	`)
	return err
}

func (r *JournalRepository) Insert(ctx context.Context, entry domain.JournalEntry) (int64, error) {
	_, span := r.tracer.Start(ctx, "journal-repo.insert")
	defer span.End()

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO trade_journal (tool, account_id, symbol, side, volume, client_order_id, status, code, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 RETURNING id`,
		entry.Tool,
		entry.AccountID,
		entry.Symbol,
		entry.Side,
		entry.Volume,
		entry.ClientOrderID,
		entry.Status,
		entry.Code,
		entry.Detail,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *JournalRepository) List(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error) {
	_, span := r.tracer.Start(ctx, "journal-repo.list")
	defer span.End()

	args := make([]any, 0, 4)
	var sb strings.Builder
	sb.WriteString(`SELECT id, tool, account_id, symbol, side, volume, client_order_id, status, code, detail, created_at
		FROM trade_journal
		WHERE 1=1`)

	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		sb.WriteString(fmt.Sprintf(" AND account_id = $%d", len(args)))
	}
	if filter.Tool != "" {
		args = append(args, filter.Tool)
		sb.WriteString(fmt.Sprintf(" AND tool = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		sb.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.JournalEntry, 0, limit)
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(
			&e.ID,
			&e.Tool,
			&e.AccountID,
			&e.Symbol,
			&e.Side,
			&e.Volume,
			&e.ClientOrderID,
			&e.Status,
			&e.Code,
			&e.Detail,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
