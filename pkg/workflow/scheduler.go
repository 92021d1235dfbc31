package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meridiancrm/meridian/pkg/eventbus"
	"github.com/meridiancrm/meridian/pkg/events"
	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/otelhelper"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/registry"
	"github.com/meridiancrm/meridian/pkg/template"
)

const (
	// DefaultMaxSteps bounds node visits per run, loops included.
	DefaultMaxSteps = 10000
	// DefaultMaxRunTime bounds the wall clock of one walk, suspension excluded.
	DefaultMaxRunTime = 5 * time.Minute

	defaultItemVariable = "item"
)

// ErrRunLimits aborts a run that exceeded the step or wall-clock guard. The
// error mode does not apply: a runaway graph always fails.
var ErrRunLimits = errors.New("run exceeded limits")

// Scheduler walks workflow graphs breadth-first from the trigger node,
// dispatching side-effect nodes through the registry and handling control
// nodes inline.
type Scheduler struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer

	maxSteps   int
	maxRunTime time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewScheduler(
	p persistence.Persistence,
	reg *registry.Registry,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		persistence: p,
		registry:    reg,
		publisher:   publisher,
		logger:      logger.With("module", "scheduler"),
		tracer:      otel.Tracer("meridian/workflow"),
		maxSteps:    DefaultMaxSteps,
		maxRunTime:  DefaultMaxRunTime,
		sleep:       sleepContext,
	}
}

type runState struct {
	workflow  *models.Workflow
	graph     *models.Graph
	execution *models.Execution
	deadline  time.Time
	steps     int
	failures  int
	succeeded int
	parked    []*models.PendingResume
}

// Start creates an execution and walks the graph from the trigger node.
// Active-state checks belong to the caller: manual test runs are allowed on
// inactive workflows.
func (s *Scheduler) Start(ctx context.Context, workflow *models.Workflow, triggerEvent string, seed map[string]any) (*models.Execution, error) {
	graph, err := models.BuildGraph(workflow.Flow)
	if err != nil {
		return nil, fmt.Errorf("building graph for workflow %s: %w", workflow.ID, err)
	}

	runContext := make(map[string]any, len(seed))
	maps.Copy(runContext, seed)

	execution := &models.Execution{
		ID:           uuid.NewString(),
		WorkflowID:   workflow.ID,
		TriggerEvent: triggerEvent,
		Status:       models.ExecutionStatusRunning,
		Context:      runContext,
		StartedAt:    time.Now().UTC(),
	}

	if err := s.persistence.Executions().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("creating execution: %w", err)
	}

	if err := s.persistence.Workflows().IncrementExecutionCount(ctx, workflow.ID); err != nil {
		s.logger.Warn("Failed to bump execution count", "workflow_id", workflow.ID, "error", err)
	}

	s.publish(ctx, workflow.ID, events.ExecutionStarted{
		BaseEvent:    s.baseEvent(events.ExecutionStartedEvent, workflow.ID),
		ExecutionID:  execution.ID,
		TriggerEvent: triggerEvent,
	})

	ctx, span := s.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
	))
	defer span.End()

	err = s.runFrom(ctx, workflow, graph, execution, graph.Successors(graph.Trigger().ID))
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return execution, err
}

// Resume continues a parked run: a deferred trigger start fires as a fresh
// run, a delay-node suspension continues past the delay node. Workflows that
// were deactivated or deleted in the meantime drop deferred starts silently;
// suspended executions keep the definition snapshot they started with.
func (s *Scheduler) Resume(ctx context.Context, resume *models.PendingResume) error {
	if err := s.persistence.Resumes().Delete(ctx, resume.ID); err != nil {
		return fmt.Errorf("claiming resume %s: %w", resume.ID, err)
	}

	switch resume.Kind {
	case models.ResumeKindDeferredStart:
		return s.resumeDeferredStart(ctx, resume)
	case models.ResumeKindDelayNode:
		return s.resumeDelayNode(ctx, resume)
	default:
		return fmt.Errorf("unknown resume kind %q", resume.Kind)
	}
}

func (s *Scheduler) resumeDeferredStart(ctx context.Context, resume *models.PendingResume) error {
	workflow, err := s.persistence.Workflows().GetByID(ctx, resume.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			s.logger.Info("Dropping deferred start, workflow gone", "workflow_id", resume.WorkflowID)

			return nil
		}

		return err
	}

	if !workflow.Runnable() {
		s.logger.Info("Dropping deferred start, workflow not runnable", "workflow_id", workflow.ID)

		return nil
	}

	triggerEvent, _ := resume.Context["event"].(string)

	_, err = s.Start(ctx, workflow, triggerEvent, resume.Context)

	return err
}

func (s *Scheduler) resumeDelayNode(ctx context.Context, resume *models.PendingResume) error {
	execution, err := s.persistence.Executions().GetByID(ctx, resume.ExecutionID)
	if err != nil {
		return fmt.Errorf("loading suspended execution %s: %w", resume.ExecutionID, err)
	}

	if execution.Status.Terminal() {
		return nil
	}

	workflow, err := s.persistence.Workflows().GetByID(ctx, resume.WorkflowID)
	if err != nil {
		return fmt.Errorf("loading workflow %s: %w", resume.WorkflowID, err)
	}

	graph, err := models.BuildGraph(workflow.Flow)
	if err != nil {
		return fmt.Errorf("building graph for workflow %s: %w", workflow.ID, err)
	}

	execution.Context = resume.Context

	s.publish(ctx, workflow.ID, events.ExecutionResumed{
		BaseEvent:   s.baseEvent(events.ExecutionResumedEvent, workflow.ID),
		ExecutionID: execution.ID,
		NodeID:      resume.NodeID,
	})

	return s.runFrom(ctx, workflow, graph, execution, graph.Successors(resume.NodeID))
}

// runFrom walks the frontier to the end of the graph and settles the
// execution record: completed, failed, or left running on suspension.
func (s *Scheduler) runFrom(ctx context.Context, workflow *models.Workflow, graph *models.Graph, execution *models.Execution, frontier []*models.Node) error {
	st := &runState{
		workflow:  workflow,
		graph:     graph,
		execution: execution,
		deadline:  time.Now().Add(s.maxRunTime),
	}

	walkErr := s.walk(ctx, st, frontier)
	if walkErr == nil && len(st.parked) > 0 {
		walkErr = s.persistParked(ctx, st)
	}

	now := time.Now().UTC()
	execution.DurationMs = now.Sub(execution.StartedAt).Milliseconds()

	if walkErr != nil {
		execution.Status = models.ExecutionStatusFailed
		execution.ErrorMessage = walkErr.Error()

		if err := s.persistence.Executions().Update(ctx, execution); err != nil {
			s.logger.Error("Failed to persist failed execution", "execution_id", execution.ID, "error", err)
		}

		s.markExecuted(ctx, workflow.ID, false, now)
		s.publish(ctx, workflow.ID, events.ExecutionFailed{
			BaseEvent:   s.baseEvent(events.ExecutionFailedEvent, workflow.ID),
			ExecutionID: execution.ID,
			DurationMs:  execution.DurationMs,
			Error:       walkErr.Error(),
		})

		return walkErr
	}

	if len(st.parked) > 0 {
		// Status stays running; the resume poller picks the run back up.
		return s.persistence.Executions().Update(ctx, execution)
	}

	// A resumed branch completes the run only once no sibling branch is
	// still waiting on its own delay.
	outstanding, err := s.persistence.Resumes().ListByExecution(ctx, execution.ID)
	if err != nil {
		return fmt.Errorf("checking outstanding resumes for execution %s: %w", execution.ID, err)
	}

	if len(outstanding) > 0 {
		return s.persistence.Executions().Update(ctx, execution)
	}

	execution.Status = models.ExecutionStatusCompleted
	if st.failures > 0 && st.succeeded == 0 {
		execution.ErrorMessage = "all branches failed"
	}

	if err := s.persistence.Executions().Update(ctx, execution); err != nil {
		s.logger.Error("Failed to persist completed execution", "execution_id", execution.ID, "error", err)
	}

	s.markExecuted(ctx, workflow.ID, true, now)
	s.publish(ctx, workflow.ID, events.ExecutionCompleted{
		BaseEvent:   s.baseEvent(events.ExecutionCompletedEvent, workflow.ID),
		ExecutionID: execution.ID,
		DurationMs:  execution.DurationMs,
		StepsTaken:  st.steps,
	})

	return nil
}

// walk processes nodes in FIFO order. Delay nodes park a resume record and
// drop out of the queue; every other frontier node keeps walking.
func (s *Scheduler) walk(ctx context.Context, st *runState, frontier []*models.Node) error {
	queue := make([]*models.Node, len(frontier))
	copy(queue, frontier)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled: %w", err)
		}

		if st.steps >= s.maxSteps || time.Now().After(st.deadline) {
			return ErrRunLimits
		}

		node := queue[0]
		queue = queue[1:]
		st.steps++

		switch node.Type {
		case models.NodeTypeTrigger:
			queue = append(queue, st.graph.Successors(node.ID)...)

		case models.NodeTypeCondition:
			handle := models.HandleFalse
			if models.EvaluateAll(conditionsFromNode(node.Data), st.execution.Context) {
				handle = models.HandleTrue
			}

			// A missing branch ends this path without error.
			queue = append(queue, st.graph.SuccessorsByHandle(node.ID, handle)...)

		case models.NodeTypeDelay:
			s.park(st, node)

		case models.NodeTypeLoop:
			if err := s.runLoop(ctx, st, node); err != nil {
				return err
			}

		default:
			ok, err := s.executeNode(ctx, st, node)
			if err != nil {
				return err
			}

			if ok {
				queue = append(queue, st.graph.Successors(node.ID)...)
			}
		}
	}

	return nil
}

// park records a delay-node resume against a snapshot of the run context.
// The snapshot pins loop item bindings to the iteration that hit the delay.
func (s *Scheduler) park(st *runState, node *models.Node) {
	now := time.Now().UTC()

	st.parked = append(st.parked, &models.PendingResume{
		ID:          uuid.NewString(),
		Kind:        models.ResumeKindDelayNode,
		WorkflowID:  st.workflow.ID,
		ExecutionID: st.execution.ID,
		NodeID:      node.ID,
		ResumeAt:    now.Add(delayFromNode(node.Data)),
		Context:     maps.Clone(st.execution.Context),
		CreatedAt:   now,
	})
}

// persistParked saves the resume records collected during the walk and
// announces each suspension. Runs only after the walk drained cleanly.
func (s *Scheduler) persistParked(ctx context.Context, st *runState) error {
	for _, resume := range st.parked {
		if err := s.persistence.Resumes().Save(ctx, resume); err != nil {
			return fmt.Errorf("persisting suspension at node %s: %w", resume.NodeID, err)
		}

		s.logger.Info("Execution suspended",
			"execution_id", st.execution.ID, "node_id", resume.NodeID, "resume_at", resume.ResumeAt)

		s.publish(ctx, st.workflow.ID, events.ExecutionSuspended{
			BaseEvent:   s.baseEvent(events.ExecutionSuspendedEvent, st.workflow.ID),
			ExecutionID: st.execution.ID,
			NodeID:      resume.NodeID,
			ResumeAt:    resume.ResumeAt,
		})
	}

	return nil
}

// runLoop walks the loop's successor subgraph once per element of the bound
// array, sequentially, sharing the run's step budget.
func (s *Scheduler) runLoop(ctx context.Context, st *runState, node *models.Node) error {
	arraySource, _ := node.Data["array_source"].(string)

	itemVariable, _ := node.Data["item_variable"].(string)
	if itemVariable == "" {
		itemVariable = defaultItemVariable
	}

	items := resolveItems(st.execution.Context, arraySource)
	if len(items) == 0 {
		s.logger.Debug("Loop over empty source", "node_id", node.ID, "source", arraySource)

		return nil
	}

	body := st.graph.Successors(node.ID)

	for _, item := range items {
		st.execution.Context[itemVariable] = item

		if err := s.walk(ctx, st, body); err != nil {
			return err
		}
	}

	return nil
}

// executeNode runs one side-effect node under the workflow's error policy.
// Returns ok=false with a nil error when continue mode swallowed a failure;
// the caller then skips the node's successors.
func (s *Scheduler) executeNode(ctx context.Context, st *runState, node *models.Node) (bool, error) {
	policy := st.workflow.ErrorHandling

	attempts := 1
	if policy.Mode == models.ErrorModeRetry && policy.MaxRetries > 0 {
		attempts += policy.MaxRetries
	}

	ctx, span := s.tracer.Start(ctx, "node.execute", trace.WithAttributes(
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
		attribute.String(otelhelper.ExecutionIDKey, st.execution.ID),
	))
	defer span.End()

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		output, err := s.invoke(ctx, st, node)
		if err == nil {
			maps.Copy(st.execution.Context, output)
			st.succeeded++

			return true, nil
		}

		lastErr = err
		s.logger.Warn("Node failed",
			"execution_id", st.execution.ID, "node_id", node.ID,
			"attempt", attempt, "error", err)

		if attempt < attempts {
			if sleepErr := s.sleep(ctx, policy.RetryDelay()); sleepErr != nil {
				break
			}
		}
	}

	otelhelper.SetError(span, lastErr)

	st.failures++
	st.execution.RecordFailure(node.ID, lastErr, attempts, time.Now().UTC())

	s.publish(ctx, st.workflow.ID, events.NodeFailed{
		BaseEvent:   s.baseEvent(events.NodeFailedEvent, st.workflow.ID),
		ExecutionID: st.execution.ID,
		NodeID:      node.ID,
		Error:       lastErr.Error(),
		Attempts:    attempts,
	})

	if policy.Mode == models.ErrorModeContinue {
		return false, nil
	}

	return false, fmt.Errorf("node %s failed: %w", node.ID, lastErr)
}

// invoke interpolates the node's data bag against the run context and
// dispatches through the registry. A panicking action surfaces as a node
// failure subject to the workflow's error policy.
func (s *Scheduler) invoke(ctx context.Context, st *runState, node *models.Node) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = fmt.Errorf("node %s panicked: %v", node.ID, r)
		}
	}()

	config := template.Fields(node.Data, st.execution.Context)
	config["id"] = node.ID

	action, err := s.registry.Create(string(node.Type), config)
	if err != nil {
		return nil, err
	}

	return action.Execute(ctx, st.execution, s.logger)
}

func (s *Scheduler) markExecuted(ctx context.Context, workflowID string, success bool, at time.Time) {
	if err := s.persistence.Workflows().MarkExecuted(ctx, workflowID, success, at); err != nil {
		s.logger.Warn("Failed to record execution outcome", "workflow_id", workflowID, "error", err)
	}
}

func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.Warn("Failed to publish engine event", "type", event.GetType(), "error", err)
	}
}

func (s *Scheduler) baseEvent(eventType events.EventType, workflowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// conditionsFromNode reads either a "conditions" list or a single
// field/operator/value triple from a condition node's data bag.
func conditionsFromNode(data map[string]any) []*models.Condition {
	if raw, ok := data["conditions"]; ok {
		switch list := raw.(type) {
		case []*models.Condition:
			return list
		case []any:
			conditions := make([]*models.Condition, 0, len(list))

			for _, entry := range list {
				item, ok := entry.(map[string]any)
				if !ok {
					continue
				}

				field, _ := item["field"].(string)
				operator, _ := item["operator"].(string)

				conditions = append(conditions, &models.Condition{
					Field:    field,
					Operator: models.Operator(operator),
					Value:    models.Stringify(item["value"]),
				})
			}

			return conditions
		}
	}

	field, _ := data["field"].(string)
	if field == "" {
		return nil
	}

	operator, _ := data["operator"].(string)

	return []*models.Condition{{
		Field:    field,
		Operator: models.Operator(operator),
		Value:    models.Stringify(data["value"]),
	}}
}

func delayFromNode(data map[string]any) time.Duration {
	value := 0

	switch v := data["delay_value"].(type) {
	case float64:
		value = int(v)
	case int:
		value = v
	}

	unit, _ := data["delay_unit"].(string)

	return models.DurationIn(value, models.DelayUnit(unit))
}

// resolveItems looks the loop source up in the run context and normalizes
// it to a slice. Non-array values loop zero times.
func resolveItems(context map[string]any, path string) []any {
	value, ok := models.ResolvePath(context, path)
	if !ok {
		return nil
	}

	switch items := value.(type) {
	case []any:
		return items
	case []map[string]any:
		normalized := make([]any, len(items))
		for i, item := range items {
			normalized[i] = item
		}

		return normalized
	default:
		return nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
