package repository

import (
	"context"
	"errors"

	"github.com/foxseedlab/nyukoku/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) SaveAudit(ctx context.Context, input repository.SaveAuditInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO review_audits (session_id, thread_id, applicant_id, outcome, started_at, ended_at, log_lines)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		input.SessionID, input.ThreadID, input.ApplicantID, input.Outcome, input.StartedAt, input.EndedAt, input.LogLines)
	return err
}

func (r *PostgresRepository) ListAuditsBySessionID(ctx context.Context, sessionID string) ([]repository.AuditRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, thread_id, applicant_id, outcome, started_at, ended_at, log_lines, created_at
		 FROM review_audits WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.AuditRecord
	for rows.Next() {
		var a repository.AuditRecord
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ThreadID, &a.ApplicantID, &a.Outcome, &a.StartedAt, &a.EndedAt, &a.LogLines, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) ListActiveDenyList(ctx context.Context) ([]repository.DenyListEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, category::text, value, status::text, reason, updated_at
		 FROM deny_list_entries WHERE status = 'active' ORDER BY category, value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.DenyListEntry
	for rows.Next() {
		var e repository.DenyListEntry
		var category, status string
		if err := rows.Scan(&e.ID, &category, &e.Value, &status, &e.Reason, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Category = repository.DenyListCategory(category)
		e.Status = repository.DenyListStatus(status)
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) AddDenyListEntry(ctx context.Context, input repository.UpsertDenyListInput) (repository.UpsertResult, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT status::text FROM deny_list_entries WHERE category = $1 AND value = $2`,
		string(input.Category), input.Value)
	var status string
	err := row.Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err := r.pool.Exec(ctx,
			`INSERT INTO deny_list_entries (category, value, status, reason) VALUES ($1, $2, 'active', $3)`,
			string(input.Category), input.Value, input.Reason)
		if err != nil {
			return "", err
		}
		return repository.UpsertAdded, nil
	case err != nil:
		return "", err
	case repository.DenyListStatus(status) == repository.DenyListStatusActive:
		return repository.UpsertDuplicate, nil
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE deny_list_entries SET status = 'active', reason = $3, updated_at = NOW()
		 WHERE category = $1 AND value = $2`,
		string(input.Category), input.Value, input.Reason)
	if err != nil {
		return "", err
	}
	return repository.UpsertReactivated, nil
}

func (r *PostgresRepository) InvalidateDenyListEntry(ctx context.Context, category repository.DenyListCategory, value string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE deny_list_entries SET status = 'invalid', updated_at = NOW()
		 WHERE category = $1 AND value = $2 AND status = 'active'`,
		string(category), value)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
