package file

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

const workflowsDir = "workflows"

// WorkflowRepository stores workflow definitions as JSON files.
type WorkflowRepository struct {
	p *Persistence
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := r.p.listIDs(workflowsDir)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) ListActiveByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.Workflow, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Workflow, 0)

	for _, workflow := range all {
		if workflow.Runnable() && workflow.TriggerType == triggerType {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := r.p.readRecord(workflowsDir, id, &workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if !found || workflow.DeletedAt != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// Save persists a workflow, bumping Version when the flow definition
// changed since the stored copy.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing, err := r.GetByID(ctx, workflow.ID)
	if err == nil && flowChanged(existing.Flow, workflow.Flow) {
		workflow.Version = existing.Version + 1
	} else if workflow.Version == 0 {
		workflow.Version = 1
	}

	workflow.UpdatedAt = time.Now().UTC()

	if saveErr := r.p.writeRecord(workflowsDir, workflow.ID, workflow); saveErr != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, saveErr)
	}

	return nil
}

// Delete soft-deletes: the record stays on disk with deleted_at set so an
// in-flight run keeps its snapshot while new matching stops immediately.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	workflow, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.IsActive = false

	if err := r.p.writeRecord(workflowsDir, id, workflow); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (r *WorkflowRepository) IncrementExecutionCount(ctx context.Context, id string) error {
	return r.updateCounters(ctx, id, func(workflow *models.Workflow) {
		workflow.ExecutionCount++
	})
}

func (r *WorkflowRepository) MarkExecuted(ctx context.Context, id string, success bool, at time.Time) error {
	return r.updateCounters(ctx, id, func(workflow *models.Workflow) {
		if success {
			workflow.SuccessCount++
		}

		workflow.LastExecutedAt = &at
	})
}

// updateCounters performs a read-modify-write under the persistence mutex,
// which is what atomicity means for single-process file storage.
func (r *WorkflowRepository) updateCounters(ctx context.Context, id string, update func(*models.Workflow)) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	update(workflow)

	if err := r.p.writeRecord(workflowsDir, id, workflow); err != nil {
		return persistence.NewWorkflowError("UpdateCounters", id, err)
	}

	return nil
}

func flowChanged(before, after models.FlowDefinition) bool {
	left, err := json.Marshal(before)
	if err != nil {
		return true
	}

	right, err := json.Marshal(after)
	if err != nil {
		return true
	}

	return string(left) != string(right)
}
