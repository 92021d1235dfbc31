package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
)

// ResumeRepository stores durable suspensions.
type ResumeRepository struct {
	db *sql.DB
}

func (r *ResumeRepository) Save(ctx context.Context, resume *models.PendingResume) error {
	contextBag, err := toJSONB(resume.Context)
	if err != nil {
		return fmt.Errorf("failed to save pending resume %s: %w", resume.ID, err)
	}

	query := `
		INSERT INTO pending_resumes (
			id, kind, workflow_id, execution_id, node_id, resume_at, context, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			resume_at = EXCLUDED.resume_at,
			context = EXCLUDED.context
	`

	_, err = r.db.ExecContext(ctx, query,
		resume.ID,
		string(resume.Kind),
		resume.WorkflowID,
		nullableString(resume.ExecutionID),
		nullableString(resume.NodeID),
		resume.ResumeAt,
		contextBag,
		resume.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending resume %s: %w", resume.ID, err)
	}

	return nil
}

func (r *ResumeRepository) Due(ctx context.Context, now time.Time) ([]*models.PendingResume, error) {
	query := `
		SELECT id, kind, workflow_id, execution_id, node_id, resume_at, context, created_at
		FROM pending_resumes
		WHERE resume_at <= $1
		ORDER BY resume_at
	`

	return r.queryResumes(ctx, query, now)
}

func (r *ResumeRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.PendingResume, error) {
	query := `
		SELECT id, kind, workflow_id, execution_id, node_id, resume_at, context, created_at
		FROM pending_resumes
		WHERE execution_id = $1
		ORDER BY resume_at
	`

	return r.queryResumes(ctx, query, executionID)
}

func (r *ResumeRepository) queryResumes(ctx context.Context, query string, args ...any) ([]*models.PendingResume, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending resumes: %w", err)
	}
	defer rows.Close()

	resumes := make([]*models.PendingResume, 0)

	for rows.Next() {
		var (
			resume      models.PendingResume
			executionID sql.NullString
			nodeID      sql.NullString
			contextBag  []byte
		)

		err := rows.Scan(
			&resume.ID,
			&resume.Kind,
			&resume.WorkflowID,
			&executionID,
			&nodeID,
			&resume.ResumeAt,
			&contextBag,
			&resume.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending resume: %w", err)
		}

		resume.ExecutionID = executionID.String
		resume.NodeID = nodeID.String

		if err := fromJSONB(contextBag, &resume.Context); err != nil {
			return nil, err
		}

		resumes = append(resumes, &resume)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending resumes: %w", err)
	}

	return resumes, nil
}

func (r *ResumeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM pending_resumes WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete pending resume %s: %w", id, err)
	}

	return nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
