package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiancrm/meridian/pkg/actions/email"
	"github.com/meridiancrm/meridian/pkg/actions/fetchdata"
	"github.com/meridiancrm/meridian/pkg/actions/notification"
	"github.com/meridiancrm/meridian/pkg/actions/task"
	"github.com/meridiancrm/meridian/pkg/actions/updatestatus"
	"github.com/meridiancrm/meridian/pkg/eventbus"
	"github.com/meridiancrm/meridian/pkg/events"
	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/persistence/file"
	"github.com/meridiancrm/meridian/pkg/protocol"
	"github.com/meridiancrm/meridian/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeMailer struct {
	mu        sync.Mutex
	sent      []protocol.Email
	failUntil int
	calls     int
}

func (m *fakeMailer) Send(_ context.Context, e protocol.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.failUntil {
		return errors.New("smtp unavailable")
	}

	m.sent = append(m.sent, e)

	return nil
}

type fakeTasks struct {
	created []protocol.Task
}

func (s *fakeTasks) Create(_ context.Context, t protocol.Task) error {
	s.created = append(s.created, t)

	return nil
}

type fakeNotifier struct {
	delivered []protocol.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notification protocol.Notification) error {
	n.delivered = append(n.delivered, notification)

	return nil
}

type fakeStore struct {
	updates []string
	rows    map[string][]map[string]any
}

func (s *fakeStore) UpdateRow(_ context.Context, table, id string, fields map[string]any) error {
	for field, value := range fields {
		s.updates = append(s.updates, fmt.Sprintf("%s/%s.%s=%v", table, id, field, value))
	}

	return nil
}

func (s *fakeStore) FetchRows(_ context.Context, table string, _ map[string]any) ([]map[string]any, error) {
	return s.rows[table], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, len(p.events))
	for i, event := range p.events {
		types[i] = event.GetType()
	}

	return types
}

type collaborators struct {
	mailer   *fakeMailer
	tasks    *fakeTasks
	notifier *fakeNotifier
	store    *fakeStore
}

func newCollaborators() *collaborators {
	return &collaborators{
		mailer:   &fakeMailer{},
		tasks:    &fakeTasks{},
		notifier: &fakeNotifier{},
		store:    &fakeStore{rows: make(map[string][]map[string]any)},
	}
}

func newTestRegistry(c *collaborators) *registry.Registry {
	reg := registry.NewRegistry(testLogger())
	reg.Register(email.NewFactory(c.mailer))
	reg.Register(task.NewFactory(c.tasks))
	reg.Register(notification.NewFactory(c.notifier))
	reg.Register(updatestatus.NewFactory(c.store))
	reg.Register(fetchdata.NewFactory(c.store))

	return reg
}

type harness struct {
	scheduler   *Scheduler
	persistence persistence.Persistence
	publisher   *recordingPublisher
	collabs     *collaborators
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	collabs := newCollaborators()
	p := file.NewPersistence(t.TempDir())
	publisher := &recordingPublisher{}

	scheduler := NewScheduler(p, newTestRegistry(collabs), publisher, testLogger())
	scheduler.sleep = func(_ context.Context, _ time.Duration) error { return nil }

	return &harness{
		scheduler:   scheduler,
		persistence: p,
		publisher:   publisher,
		collabs:     collabs,
	}
}

func node(id string, nodeType models.NodeType, data map[string]any) *models.Node {
	return &models.Node{ID: id, Type: nodeType, Data: data}
}

func edge(source, target string) *models.Edge {
	return &models.Edge{ID: source + "->" + target, Source: source, Target: target}
}

func branchEdge(source, target, handle string) *models.Edge {
	return &models.Edge{ID: source + "->" + target, Source: source, Target: target, SourceHandle: handle}
}

func testWorkflow(t *testing.T, h *harness, flow models.FlowDefinition, policy models.ErrorPolicy) *models.Workflow {
	t.Helper()

	// Subtest names carry slashes; record ids must stay path-safe.
	workflow := &models.Workflow{
		ID:            "wf-" + strings.ReplaceAll(t.Name(), "/", "_"),
		Name:          "test workflow",
		TriggerType:   models.TriggerTypeEvent,
		TriggerConfig: &models.TriggerConfig{Event: "lead.created"},
		Flow:          flow,
		ErrorHandling: policy,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	require.NoError(t, h.persistence.Workflows().Save(context.Background(), workflow))

	return workflow
}

func stopPolicy() models.ErrorPolicy {
	return models.ErrorPolicy{Mode: models.ErrorModeStop}
}

func TestScheduler_LinearFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("e1", models.NodeTypeEmail, map[string]any{
				"to":      "{{owner_email}}",
				"subject": "New lead: {{name}}",
				"body":    "A lead arrived.",
			}),
			node("u1", models.NodeTypeUpdateStatus, map[string]any{
				"table": "leads",
				"field": "status",
				"value": "contacted",
			}),
		},
		Edges: []*models.Edge{edge("t", "e1"), edge("e1", "u1")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	seed := map[string]any{
		"name":        "Acme",
		"owner_email": "rep@example.com",
		"entityId":    "lead-1",
	}

	execution, err := h.scheduler.Start(ctx, workflow, "lead.created", seed)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Empty(t, execution.ErrorMessage)

	require.Len(t, h.collabs.mailer.sent, 1)
	assert.Equal(t, "rep@example.com", h.collabs.mailer.sent[0].To)
	assert.Equal(t, "New lead: Acme", h.collabs.mailer.sent[0].Subject)

	require.Len(t, h.collabs.store.updates, 1)
	assert.Equal(t, "leads/lead-1.status=contacted", h.collabs.store.updates[0])

	// Counters: one execution, one success.
	stored, err := h.persistence.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ExecutionCount)
	assert.Equal(t, int64(1), stored.SuccessCount)
	assert.NotNil(t, stored.LastExecutedAt)

	assert.Equal(t,
		[]events.EventType{events.ExecutionStartedEvent, events.ExecutionCompletedEvent},
		h.publisher.types())
}

func TestScheduler_ConditionRouting(t *testing.T) {
	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("c", models.NodeTypeCondition, map[string]any{
				"field": "value", "operator": "greater_than", "value": 1000,
			}),
			node("big", models.NodeTypeNotification, map[string]any{
				"target": "manager", "title": "Big deal", "message": "{{name}}",
			}),
			node("small", models.NodeTypeNotification, map[string]any{
				"target": "rep", "title": "Deal", "message": "{{name}}",
			}),
		},
		Edges: []*models.Edge{
			edge("t", "c"),
			branchEdge("c", "big", models.HandleTrue),
			branchEdge("c", "small", models.HandleFalse),
		},
	}

	tests := []struct {
		name       string
		value      any
		wantTarget string
	}{
		{"true branch", 5000, "manager"},
		{"false branch", 200, "rep"},
		{"non-numeric is false", "lots", "rep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			workflow := testWorkflow(t, h, flow, stopPolicy())

			execution, err := h.scheduler.Start(context.Background(), workflow, "deal.created",
				map[string]any{"name": "Acme", "value": tt.value})
			require.NoError(t, err)
			assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

			require.Len(t, h.collabs.notifier.delivered, 1)
			assert.Equal(t, tt.wantTarget, h.collabs.notifier.delivered[0].Target)
		})
	}
}

func TestScheduler_ConditionMissingBranchEndsPath(t *testing.T) {
	h := newHarness(t)

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("c", models.NodeTypeCondition, map[string]any{
				"field": "status", "operator": "equals", "value": "won",
			}),
			node("n", models.NodeTypeNotification, map[string]any{"title": "Won"}),
		},
		Edges: []*models.Edge{
			edge("t", "c"),
			branchEdge("c", "n", models.HandleTrue),
		},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(context.Background(), workflow, "deal.updated",
		map[string]any{"status": "lost"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Empty(t, h.collabs.notifier.delivered)
}

func TestScheduler_DelaySuspendsAndResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("d", models.NodeTypeDelay, map[string]any{
				"delay_value": float64(30), "delay_unit": "minutes",
			}),
			node("e", models.NodeTypeEmail, map[string]any{
				"to": "rep@example.com", "subject": "Reminder", "body": "Follow up with {{name}}",
			}),
		},
		Edges: []*models.Edge{edge("t", "d"), edge("d", "e")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(ctx, workflow, "lead.created", map[string]any{"name": "Acme"})
	require.NoError(t, err)

	// Suspended, not finished: no email yet, durable resume parked.
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Empty(t, h.collabs.mailer.sent)

	due, err := h.persistence.Resumes().Due(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.ResumeKindDelayNode, due[0].Kind)
	assert.Equal(t, "d", due[0].NodeID)
	assert.Equal(t, execution.ID, due[0].ExecutionID)

	// Not due before the delay elapses.
	early, err := h.persistence.Resumes().Due(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, early)

	require.NoError(t, h.scheduler.Resume(ctx, due[0]))

	require.Len(t, h.collabs.mailer.sent, 1)
	assert.Equal(t, "Follow up with Acme", h.collabs.mailer.sent[0].Body)

	resumed, err := h.persistence.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)

	// Resume record consumed.
	left, err := h.persistence.Resumes().Due(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.Equal(t,
		[]events.EventType{
			events.ExecutionStartedEvent,
			events.ExecutionSuspendedEvent,
			events.ExecutionResumedEvent,
			events.ExecutionCompletedEvent,
		},
		h.publisher.types())
}

func TestScheduler_DelayKeepsSiblingBranches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// The delay edge comes first, so the delay node hits the frontier before
	// the email branch. The email must still run in the same walk.
	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("d", models.NodeTypeDelay, map[string]any{
				"delay_value": float64(10), "delay_unit": "minutes",
			}),
			node("n", models.NodeTypeNotification, map[string]any{
				"target": "manager", "title": "Delayed check-in",
			}),
			node("e", models.NodeTypeEmail, map[string]any{
				"to": "rep@example.com", "subject": "Right away", "body": "Hi.",
			}),
		},
		Edges: []*models.Edge{edge("t", "d"), edge("t", "e"), edge("d", "n")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(ctx, workflow, "lead.created", nil)
	require.NoError(t, err)

	// Email branch done, delay branch parked, run held open.
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	require.Len(t, h.collabs.mailer.sent, 1)
	assert.Empty(t, h.collabs.notifier.delivered)

	due, err := h.persistence.Resumes().Due(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "d", due[0].NodeID)

	require.NoError(t, h.scheduler.Resume(ctx, due[0]))

	require.Len(t, h.collabs.notifier.delivered, 1)

	resumed, err := h.persistence.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)
}

func TestScheduler_DelayInsideLoopParksEveryIteration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("l", models.NodeTypeLoop, map[string]any{
				"array_source": "contacts", "item_variable": "contact",
			}),
			node("d", models.NodeTypeDelay, map[string]any{
				"delay_value": float64(5), "delay_unit": "minutes",
			}),
			node("e", models.NodeTypeEmail, map[string]any{
				"to": "{{contact.email}}", "subject": "Later", "body": "Hi.",
			}),
		},
		Edges: []*models.Edge{edge("t", "l"), edge("l", "d"), edge("d", "e")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(ctx, workflow, "campaign.launched", map[string]any{
		"contacts": []any{
			map[string]any{"email": "ana@example.com"},
			map[string]any{"email": "bo@example.com"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Empty(t, h.collabs.mailer.sent)

	// One resume per iteration, each pinned to its own item binding.
	due, err := h.persistence.Resumes().Due(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 2)

	require.NoError(t, h.scheduler.Resume(ctx, due[0]))

	// One branch still outstanding: the run stays open.
	mid, err := h.persistence.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, mid.Status)

	require.NoError(t, h.scheduler.Resume(ctx, due[1]))

	require.Len(t, h.collabs.mailer.sent, 2)

	recipients := []string{h.collabs.mailer.sent[0].To, h.collabs.mailer.sent[1].To}
	assert.ElementsMatch(t, []string{"ana@example.com", "bo@example.com"}, recipients)

	done, err := h.persistence.Executions().GetByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, done.Status)
}

func TestScheduler_NodeWithoutDataRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A notification node saved without a data bag still runs: defaults and
	// the owner fallback cover every field.
	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("n", models.NodeTypeNotification, nil),
		},
		Edges: []*models.Edge{edge("t", "n")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(ctx, workflow, "lead.created", map[string]any{"owner": "manager"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.Len(t, h.collabs.notifier.delivered, 1)
	assert.Equal(t, "manager", h.collabs.notifier.delivered[0].Target)
}

type panickyAction struct{}

func (panickyAction) Execute(context.Context, *models.Execution, *slog.Logger) (map[string]any, error) {
	panic("nil dereference in action")
}

type panickyFactory struct{}

func (panickyFactory) ID() string                                     { return string(models.NodeTypeTask) }
func (panickyFactory) Create(map[string]any) (protocol.Action, error) { return panickyAction{}, nil }
func (panickyFactory) Schema() map[string]any                         { return nil }

func TestScheduler_PanickingNodeFailsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.scheduler.registry.Register(panickyFactory{})

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("x", models.NodeTypeTask, map[string]any{"title": "boom"}),
		},
		Edges: []*models.Edge{edge("t", "x")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(ctx, workflow, "lead.created", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	require.Len(t, execution.NodeFailures, 1)
	assert.Equal(t, "x", execution.NodeFailures[0].NodeID)
}

func TestScheduler_LoopBindsEachItem(t *testing.T) {
	h := newHarness(t)

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("f", models.NodeTypeFetchData, map[string]any{
				"table": "contacts", "output_variable": "contacts",
			}),
			node("l", models.NodeTypeLoop, map[string]any{
				"array_source": "contacts", "item_variable": "contact",
			}),
			node("e", models.NodeTypeEmail, map[string]any{
				"to": "{{contact.email}}", "subject": "Hello {{contact.name}}", "body": "Hi.",
			}),
		},
		Edges: []*models.Edge{edge("t", "f"), edge("f", "l"), edge("l", "e")},
	}

	h.collabs.store.rows["contacts"] = []map[string]any{
		{"name": "Ana", "email": "ana@example.com"},
		{"name": "Bo", "email": "bo@example.com"},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(context.Background(), workflow, "campaign.launched", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	require.Len(t, h.collabs.mailer.sent, 2)
	assert.Equal(t, "ana@example.com", h.collabs.mailer.sent[0].To)
	assert.Equal(t, "Hello Ana", h.collabs.mailer.sent[0].Subject)
	assert.Equal(t, "bo@example.com", h.collabs.mailer.sent[1].To)
}

func TestScheduler_StopModeFailsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("e", models.NodeTypeEmail, map[string]any{
				"to": "not-an-address", "subject": "x", "body": "y",
			}),
			node("n", models.NodeTypeNotification, map[string]any{"title": "after"}),
		},
		Edges: []*models.Edge{edge("t", "e"), edge("e", "n")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())

	execution, err := h.scheduler.Start(ctx, workflow, "lead.created", nil)
	require.Error(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.NotEmpty(t, execution.ErrorMessage)
	require.Len(t, execution.NodeFailures, 1)
	assert.Equal(t, "e", execution.NodeFailures[0].NodeID)

	// Successor never ran.
	assert.Empty(t, h.collabs.notifier.delivered)

	// Executed but not successful.
	stored, err := h.persistence.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ExecutionCount)
	assert.Equal(t, int64(0), stored.SuccessCount)

	assert.Contains(t, h.publisher.types(), events.NodeFailedEvent)
	assert.Contains(t, h.publisher.types(), events.ExecutionFailedEvent)
}

func TestScheduler_ContinueModeKeepsOtherBranches(t *testing.T) {
	h := newHarness(t)

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("bad", models.NodeTypeEmail, map[string]any{
				"to": "broken", "subject": "x", "body": "y",
			}),
			node("good", models.NodeTypeNotification, map[string]any{
				"target": "rep", "title": "still here",
			}),
		},
		Edges: []*models.Edge{edge("t", "bad"), edge("t", "good")},
	}

	workflow := testWorkflow(t, h, flow, models.ErrorPolicy{Mode: models.ErrorModeContinue})

	execution, err := h.scheduler.Start(context.Background(), workflow, "lead.created", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Empty(t, execution.ErrorMessage)
	require.Len(t, execution.NodeFailures, 1)
	assert.Equal(t, "bad", execution.NodeFailures[0].NodeID)

	require.Len(t, h.collabs.notifier.delivered, 1)
}

func TestScheduler_ContinueModeAllBranchesFailed(t *testing.T) {
	h := newHarness(t)

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("bad", models.NodeTypeEmail, map[string]any{
				"to": "broken", "subject": "x", "body": "y",
			}),
		},
		Edges: []*models.Edge{edge("t", "bad")},
	}

	workflow := testWorkflow(t, h, flow, models.ErrorPolicy{Mode: models.ErrorModeContinue})

	execution, err := h.scheduler.Start(context.Background(), workflow, "lead.created", nil)
	require.NoError(t, err)

	// Still completed, but flagged.
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, "all branches failed", execution.ErrorMessage)
	require.Len(t, execution.NodeFailures, 1)
}

func TestScheduler_RetryModeRecovers(t *testing.T) {
	h := newHarness(t)
	h.collabs.mailer.failUntil = 2 // First two sends fail, third succeeds

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("e", models.NodeTypeEmail, map[string]any{
				"to": "rep@example.com", "subject": "x", "body": "y",
			}),
		},
		Edges: []*models.Edge{edge("t", "e")},
	}

	workflow := testWorkflow(t, h, flow, models.ErrorPolicy{
		Mode: models.ErrorModeRetry, MaxRetries: 3, RetryDelaySeconds: 10,
	})

	execution, err := h.scheduler.Start(context.Background(), workflow, "lead.created", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Equal(t, 3, h.collabs.mailer.calls)
	assert.Empty(t, execution.NodeFailures)
}

func TestScheduler_RetryModeExhaustionStops(t *testing.T) {
	h := newHarness(t)
	h.collabs.mailer.failUntil = 10

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("e", models.NodeTypeEmail, map[string]any{
				"to": "rep@example.com", "subject": "x", "body": "y",
			}),
		},
		Edges: []*models.Edge{edge("t", "e")},
	}

	workflow := testWorkflow(t, h, flow, models.ErrorPolicy{
		Mode: models.ErrorModeRetry, MaxRetries: 2, RetryDelaySeconds: 10,
	})

	execution, err := h.scheduler.Start(context.Background(), workflow, "lead.created", nil)
	require.Error(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, 3, h.collabs.mailer.calls) // Initial attempt plus two retries
	require.Len(t, execution.NodeFailures, 1)
	assert.Equal(t, 3, execution.NodeFailures[0].Attempts)
}

func TestScheduler_StepLimitAbortsRun(t *testing.T) {
	h := newHarness(t)
	h.scheduler.maxSteps = 10

	// a and b cycle forever.
	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("a", models.NodeTypeNotification, map[string]any{"title": "a"}),
			node("b", models.NodeTypeNotification, map[string]any{"title": "b"}),
		},
		Edges: []*models.Edge{edge("t", "a"), edge("a", "b"), edge("b", "a")},
	}

	workflow := testWorkflow(t, h, flow, models.ErrorPolicy{Mode: models.ErrorModeContinue})

	execution, err := h.scheduler.Start(context.Background(), workflow, "lead.created", nil)
	require.ErrorIs(t, err, ErrRunLimits)

	// Limit failure overrides continue mode.
	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Equal(t, ErrRunLimits.Error(), execution.ErrorMessage)
}

func TestScheduler_ManualRunOnInactiveWorkflow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("n", models.NodeTypeNotification, map[string]any{"target": "rep", "title": "test"}),
		},
		Edges: []*models.Edge{edge("t", "n")},
	}

	workflow := testWorkflow(t, h, flow, stopPolicy())
	workflow.IsActive = false
	require.NoError(t, h.persistence.Workflows().Save(ctx, workflow))

	execution, err := h.scheduler.Start(ctx, workflow, "manual", map[string]any{"sample": true})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	require.Len(t, h.collabs.notifier.delivered, 1)
}

func TestScheduler_FetchDataFeedsLaterNodes(t *testing.T) {
	flow := models.FlowDefinition{
		Nodes: []*models.Node{
			node("t", models.NodeTypeTrigger, nil),
			node("f", models.NodeTypeFetchData, map[string]any{
				"table": "deals", "output_variable": "deals",
			}),
			node("c", models.NodeTypeCondition, map[string]any{
				"field": "deals", "operator": "is_not_empty",
			}),
			node("n", models.NodeTypeNotification, map[string]any{
				"target": "rep", "title": "Open deals",
			}),
		},
		Edges: []*models.Edge{
			edge("t", "f"), edge("f", "c"),
			branchEdge("c", "n", models.HandleTrue),
		},
	}

	t.Run("rows found", func(t *testing.T) {
		h := newHarness(t)
		h.collabs.store.rows["deals"] = []map[string]any{{"title": "Acme renewal"}}
		workflow := testWorkflow(t, h, flow, stopPolicy())

		_, err := h.scheduler.Start(context.Background(), workflow, "daily.digest", nil)
		require.NoError(t, err)
		require.Len(t, h.collabs.notifier.delivered, 1)
	})

	t.Run("no rows", func(t *testing.T) {
		h := newHarness(t)
		workflow := testWorkflow(t, h, flow, stopPolicy())

		_, err := h.scheduler.Start(context.Background(), workflow, "daily.digest", nil)
		require.NoError(t, err)
		assert.Empty(t, h.collabs.notifier.delivered)
	})
}
