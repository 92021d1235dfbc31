package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridiancrm/meridian/pkg/actions/email"
	"github.com/meridiancrm/meridian/pkg/actions/fetchdata"
	"github.com/meridiancrm/meridian/pkg/actions/notification"
	"github.com/meridiancrm/meridian/pkg/actions/task"
	"github.com/meridiancrm/meridian/pkg/actions/updatestatus"
	"github.com/meridiancrm/meridian/pkg/eventbus"
	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/persistence/file"
	"github.com/meridiancrm/meridian/pkg/protocol"
	"github.com/meridiancrm/meridian/pkg/registry"
	"github.com/meridiancrm/meridian/pkg/services"
	"github.com/meridiancrm/meridian/pkg/web"
	"github.com/meridiancrm/meridian/pkg/workflow"
)

type noopMailer struct{}

func (noopMailer) Send(context.Context, protocol.Email) error { return nil }

type noopTasks struct{}

func (noopTasks) Create(context.Context, protocol.Task) error { return nil }

type noopStore struct{}

func (noopStore) UpdateRow(context.Context, string, string, map[string]any) error {
	return nil
}

func (noopStore) FetchRows(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []protocol.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note protocol.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)

	return nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, eventbus.Event) error { return nil }

type testEnv struct {
	app      *fiber.App
	store    persistence.Persistence
	notifier *recordingNotifier
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	notifier := &recordingNotifier{}

	reg := registry.NewRegistry(logger)
	reg.Register(email.NewFactory(noopMailer{}))
	reg.Register(task.NewFactory(noopTasks{}))
	reg.Register(notification.NewFactory(notifier))
	reg.Register(updatestatus.NewFactory(noopStore{}))
	reg.Register(fetchdata.NewFactory(noopStore{}))

	scheduler := workflow.NewScheduler(store, reg, noopPublisher{}, logger)
	workflowService := services.NewWorkflow(store, reg, logger)
	rulesService := services.NewRules(store, reg)

	handlers := web.NewAPIHandlers(
		workflowService,
		rulesService,
		scheduler,
		validator.New(),
		reg,
	)

	app := fiber.New()
	app.Get("/health", handlers.HealthCheck)
	app.Get("/action-types", handlers.GetActionTypes)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Post("/from-template/:templateId", handlers.CreateWorkflowFromTemplate)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/deactivate", handlers.DeactivateWorkflow)
	w.Post("/:id/test-run", handlers.TestRunWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	app.Get("/templates", handlers.GetTemplates)

	r := app.Group("/rules")
	r.Get("/", handlers.GetRules)
	r.Post("/", handlers.CreateRule)
	r.Get("/:id", handlers.GetRule)
	r.Put("/:id", handlers.UpdateRule)
	r.Delete("/:id", handlers.DeleteRule)

	app.Post("/hooks/:workflowId", handlers.HandleWebhook)

	return &testEnv{app: app, store: store, notifier: notifier}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}

	return req
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func notifyWorkflowRequest() web.WorkflowRequest {
	return web.WorkflowRequest{
		Name:        "Deal won notification",
		TriggerType: models.TriggerTypeEvent,
		TriggerConfig: &models.TriggerConfig{
			Event: "deal.status_changed",
		},
		Flow: models.FlowDefinition{
			Nodes: []*models.Node{
				{ID: "start", Type: models.NodeTypeTrigger},
				{ID: "notify", Type: models.NodeTypeNotification, Data: map[string]any{
					"title":   "Deal update",
					"message": "Deal {{deal_name}} changed",
				}},
			},
			Edges: []*models.Edge{
				{ID: "e1", Source: "start", Target: "notify"},
			},
		},
		ErrorHandling: models.ErrorPolicy{Mode: models.ErrorModeStop},
		IsActive:      true,
	}
}

func createWorkflow(t *testing.T, env *testEnv, req web.WorkflowRequest) models.Workflow {
	t.Helper()

	resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/workflows/", req))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow

	decodeBody(t, resp, &created)

	return created
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		mutate         func(r *web.WorkflowRequest)
		expectedStatus int
	}{
		{
			name:           "successful creation",
			mutate:         func(*web.WorkflowRequest) {},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "name too short",
			mutate:         func(r *web.WorkflowRequest) { r.Name = "ab" },
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "graph without trigger node",
			mutate: func(r *web.WorkflowRequest) {
				r.Flow.Nodes = r.Flow.Nodes[1:]
				r.Flow.Edges = nil
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "node config fails schema",
			mutate: func(r *web.WorkflowRequest) {
				r.Flow.Nodes[1].Type = models.NodeTypeEmail
				r.Flow.Nodes[1].Data = map[string]any{"subject": "missing recipient"}
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)
			req := notifyWorkflowRequest()
			tt.mutate(&req)

			resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/workflows/", req))
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusBadRequest {
				var problem map[string]any

				decodeBody(t, resp, &problem)
				assert.Equal(t, "validation_error", problem["type"])
			}
		})
	}
}

func TestAPIHandlers_WorkflowCRUD(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	created := createWorkflow(t, env, notifyWorkflowRequest())

	resp, err := env.app.Test(jsonRequest(t, http.MethodGet, "/workflows/"+created.ID, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Workflow

	decodeBody(t, resp, &fetched)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "Deal won notification", fetched.Name)

	update := notifyWorkflowRequest()
	update.Name = "Deal won notification v2"

	resp, err = env.app.Test(jsonRequest(t, http.MethodPut, "/workflows/"+created.ID, update))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Workflow

	decodeBody(t, resp, &updated)
	assert.Equal(t, "Deal won notification v2", updated.Name)
	assert.Equal(t, 2, updated.Version)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/workflows/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Count int `json:"count"`
	}

	decodeBody(t, resp, &listing)
	assert.Equal(t, 1, listing.Count)

	resp, err = env.app.Test(jsonRequest(t, http.MethodDelete, "/workflows/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/workflows/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ActivateDeactivate(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	req := notifyWorkflowRequest()
	req.IsActive = false
	created := createWorkflow(t, env, req)

	resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+created.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var activated models.Workflow

	decodeBody(t, resp, &activated)
	assert.True(t, activated.IsActive)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+created.ID+"/deactivate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var deactivated models.Workflow

	decodeBody(t, resp, &deactivated)
	assert.False(t, deactivated.IsActive)
}

func TestAPIHandlers_TestRunInactiveWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	req := notifyWorkflowRequest()
	req.IsActive = false
	created := createWorkflow(t, env, req)

	body := web.TestRunRequest{Context: map[string]any{"deal_name": "Acme renewal"}}

	resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/workflows/"+created.ID+"/test-run", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result web.TestRunResponse

	decodeBody(t, resp, &result)
	require.NotNil(t, result.Execution)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Execution.Status)

	require.Len(t, env.notifier.notes, 1)
	assert.Equal(t, "Deal Acme renewal changed", env.notifier.notes[0].Message)

	// The run shows up in the execution history.
	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/workflows/"+created.ID+"/executions", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history struct {
		Count int `json:"count"`
	}

	decodeBody(t, resp, &history)
	assert.Equal(t, 1, history.Count)
}

func TestAPIHandlers_CreateWorkflowFromTemplate(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	template := &models.WorkflowTemplate{
		ID:          "welcome-sequence",
		Name:        "Welcome sequence",
		TriggerType: models.TriggerTypeEvent,
		TriggerConfig: &models.TriggerConfig{
			Event: "contact.created",
		},
		Flow:          notifyWorkflowRequest().Flow,
		ErrorHandling: models.ErrorPolicy{Mode: models.ErrorModeStop},
	}
	require.NoError(t, env.store.Templates().Save(context.Background(), template))

	resp, err := env.app.Test(jsonRequest(t, http.MethodGet, "/templates", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := web.FromTemplateRequest{Name: "My welcome flow"}

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, "/workflows/from-template/welcome-sequence", body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Workflow

	decodeBody(t, resp, &created)
	assert.Equal(t, "My welcome flow", created.Name)
	assert.False(t, created.IsActive)

	resp, err = env.app.Test(jsonRequest(t, http.MethodPost, "/workflows/from-template/no-such-template", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_RuleCRUD(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	ruleReq := web.RuleRequest{
		Name:         "Notify on hot lead",
		TriggerEvent: "lead.score_changed",
		TriggerConditions: []*models.Condition{
			{Field: "score", Operator: models.OperatorGreaterThan, Value: "80"},
		},
		Action: models.RuleAction{
			Type:  models.NodeTypeNotification,
			Value: "Lead is hot",
		},
		IsActive: true,
	}

	resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/rules/", ruleReq))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.AutomationRule

	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	ruleReq.Name = "Notify on very hot lead"

	resp, err = env.app.Test(jsonRequest(t, http.MethodPut, "/rules/"+created.ID, ruleReq))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/rules/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Count int `json:"count"`
	}

	decodeBody(t, resp, &listing)
	assert.Equal(t, 1, listing.Count)

	resp, err = env.app.Test(jsonRequest(t, http.MethodDelete, "/rules/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(t, http.MethodGet, "/rules/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_RuleValidation(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	ruleReq := web.RuleRequest{
		Name:         "Broken rule",
		TriggerEvent: "lead.created",
		Action: models.RuleAction{
			Type:  "send_sms",
			Value: "+15550100",
		},
	}

	resp, err := env.app.Test(jsonRequest(t, http.MethodPost, "/rules/", ruleReq))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_GetActionTypes(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, err := env.app.Test(jsonRequest(t, http.MethodGet, "/action-types", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ActionTypes []web.ActionTypeResponse `json:"action_types"`
		Count       int                      `json:"count"`
	}

	decodeBody(t, resp, &body)
	assert.Equal(t, 5, body.Count)

	types := make([]string, 0, len(body.ActionTypes))
	for _, at := range body.ActionTypes {
		types = append(types, at.Type)
		assert.NotNil(t, at.Schema, "type %s has no schema", at.Type)
	}

	assert.Equal(t, []string{"email", "fetch_data", "notification", "task", "update_status"}, types)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, err := env.app.Test(jsonRequest(t, http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
