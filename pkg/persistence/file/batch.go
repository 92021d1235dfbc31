package file

import (
	"context"
	"sort"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
)

const (
	batchesDir   = "batches"
	schedulesDir = "schedules"
)

// batchFile is the stored buffer of one workflow.
type batchFile struct {
	WorkflowID string                 `json:"workflow_id"`
	Events     []*models.BatchedEvent `json:"events"`
}

// BatchRepository buffers trigger events per workflow, one file per buffer.
type BatchRepository struct {
	p *Persistence
}

func (r *BatchRepository) Append(_ context.Context, event *models.BatchedEvent) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var buffer batchFile

	found, err := r.p.readRecord(batchesDir, event.WorkflowID, &buffer)
	if err != nil {
		return err
	}

	if !found {
		buffer = batchFile{WorkflowID: event.WorkflowID}
	}

	buffer.Events = append(buffer.Events, event)

	return r.p.writeRecord(batchesDir, event.WorkflowID, &buffer)
}

func (r *BatchRepository) Get(_ context.Context, workflowID string) ([]*models.BatchedEvent, error) {
	var buffer batchFile

	found, err := r.p.readRecord(batchesDir, workflowID, &buffer)
	if err != nil || !found {
		return nil, err
	}

	return buffer.Events, nil
}

func (r *BatchRepository) Clear(_ context.Context, workflowID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.deleteRecord(batchesDir, workflowID)
}

func (r *BatchRepository) WorkflowIDs(_ context.Context) ([]string, error) {
	return r.p.listIDs(batchesDir)
}

// ScheduleRepository stores cron schedule entries, one file per workflow.
type ScheduleRepository struct {
	p *Persistence
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	return r.p.writeRecord(schedulesDir, schedule.ID, schedule)
}

func (r *ScheduleRepository) Due(_ context.Context, now time.Time) ([]*models.Schedule, error) {
	ids, err := r.p.listIDs(schedulesDir)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Schedule, 0)

	for _, id := range ids {
		var schedule models.Schedule

		found, err := r.p.readRecord(schedulesDir, id, &schedule)
		if err != nil {
			return nil, err
		}

		if found && schedule.IsDue(now) {
			due = append(due, &schedule)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(due[j].NextDueAt)
	})

	return due, nil
}

func (r *ScheduleRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	ids, err := r.p.listIDs(schedulesDir)
	if err != nil {
		return err
	}

	for _, id := range ids {
		var schedule models.Schedule

		found, err := r.p.readRecord(schedulesDir, id, &schedule)
		if err != nil {
			return err
		}

		if found && schedule.WorkflowID == workflowID {
			if err := r.p.deleteRecord(schedulesDir, id); err != nil {
				return err
			}
		}
	}

	return nil
}
