package scheduler

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiancrm/meridian/pkg/actions/notification"
	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence/file"
	"github.com/meridiancrm/meridian/pkg/protocol"
	"github.com/meridiancrm/meridian/pkg/registry"
	"github.com/meridiancrm/meridian/pkg/workflow"
)

type fakeNotifier struct {
	delivered []protocol.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notification protocol.Notification) error {
	n.delivered = append(n.delivered, notification)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestPoller_Tick(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	notifier := &fakeNotifier{}

	reg := registry.NewRegistry(testLogger())
	reg.Register(notification.NewFactory(notifier))

	runScheduler := workflow.NewScheduler(p, reg, nil, testLogger())
	poller := NewPoller(p, runScheduler, testLogger())

	wf := &models.Workflow{
		ID:          "wf-daily",
		Name:        "daily digest",
		TriggerType: models.TriggerTypeSchedule,
		TriggerConfig: &models.TriggerConfig{
			ScheduleEnabled: true,
			ScheduleType:    "daily",
			ScheduleTime:    "09:00",
		},
		Flow: models.FlowDefinition{
			Nodes: []*models.Node{
				{ID: "t", Type: models.NodeTypeTrigger},
				{ID: "n", Type: models.NodeTypeNotification, Data: map[string]any{
					"target": "team", "title": "Digest", "message": "Scheduled at {{scheduled_at}}",
				}},
			},
			Edges: []*models.Edge{{ID: "t-n", Source: "t", Target: "n"}},
		},
		ErrorHandling: models.ErrorPolicy{Mode: models.ErrorModeStop},
		IsActive:      true,
	}
	require.NoError(t, p.Workflows().Save(ctx, wf))

	cronLine, err := wf.TriggerConfig.CronExpression()
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * *", cronLine)

	schedule, err := models.NewSchedule("sched-1", wf.ID, cronLine)
	require.NoError(t, err)

	// Force the schedule due now.
	schedule.NextDueAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, p.Schedules().Save(ctx, schedule))

	now := time.Now().UTC()
	require.NoError(t, poller.Tick(ctx, now))

	require.Len(t, notifier.delivered, 1)
	assert.Contains(t, notifier.delivered[0].Message, "Scheduled at ")

	// NextDueAt advanced past now: the same tick cannot double-fire.
	due, err := p.Schedules().Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	// A second tick right away does nothing.
	require.NoError(t, poller.Tick(ctx, now))
	assert.Len(t, notifier.delivered, 1)
}

func TestPoller_TickSkipsInactiveWorkflow(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	notifier := &fakeNotifier{}

	reg := registry.NewRegistry(testLogger())
	reg.Register(notification.NewFactory(notifier))

	runScheduler := workflow.NewScheduler(p, reg, nil, testLogger())
	poller := NewPoller(p, runScheduler, testLogger())

	wf := &models.Workflow{
		ID:          "wf-off",
		Name:        "switched off",
		TriggerType: models.TriggerTypeSchedule,
		Flow: models.FlowDefinition{
			Nodes: []*models.Node{{ID: "t", Type: models.NodeTypeTrigger}},
		},
		IsActive: false,
	}
	require.NoError(t, p.Workflows().Save(ctx, wf))

	schedule, err := models.NewSchedule("sched-off", wf.ID, "* * * * *")
	require.NoError(t, err)
	schedule.NextDueAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, p.Schedules().Save(ctx, schedule))

	require.NoError(t, poller.Tick(ctx, time.Now().UTC()))

	// Skipped, but the schedule still advanced.
	assert.Empty(t, notifier.delivered)

	due, err := p.Schedules().Due(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due)
}
