package file

import (
	"context"
	"sort"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

const (
	executionsDir = "executions"
	resumesDir    = "resumes"
)

// ExecutionRepository stores run records as JSON files.
type ExecutionRepository struct {
	p *Persistence
}

func (r *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	if err := r.p.writeRecord(executionsDir, execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) Update(_ context.Context, execution *models.Execution) error {
	if err := r.p.writeRecord(executionsDir, execution.ID, execution); err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	found, err := r.p.readRecord(executionsDir, id, &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	ids, err := r.p.listIDs(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, id := range ids {
		execution, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

// ResumeRepository stores pending resumes as JSON files.
type ResumeRepository struct {
	p *Persistence
}

func (r *ResumeRepository) Save(_ context.Context, resume *models.PendingResume) error {
	return r.p.writeRecord(resumesDir, resume.ID, resume)
}

func (r *ResumeRepository) Due(_ context.Context, now time.Time) ([]*models.PendingResume, error) {
	ids, err := r.p.listIDs(resumesDir)
	if err != nil {
		return nil, err
	}

	due := make([]*models.PendingResume, 0)

	for _, id := range ids {
		var resume models.PendingResume

		found, err := r.p.readRecord(resumesDir, id, &resume)
		if err != nil {
			return nil, err
		}

		if found && resume.Due(now) {
			due = append(due, &resume)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(due[j].ResumeAt)
	})

	return due, nil
}

func (r *ResumeRepository) Delete(_ context.Context, id string) error {
	return r.p.deleteRecord(resumesDir, id)
}

func (r *ResumeRepository) ListByExecution(_ context.Context, executionID string) ([]*models.PendingResume, error) {
	ids, err := r.p.listIDs(resumesDir)
	if err != nil {
		return nil, err
	}

	resumes := make([]*models.PendingResume, 0)

	for _, id := range ids {
		var resume models.PendingResume

		found, err := r.p.readRecord(resumesDir, id, &resume)
		if err != nil {
			return nil, err
		}

		if found && resume.ExecutionID == executionID {
			resumes = append(resumes, &resume)
		}
	}

	return resumes, nil
}
