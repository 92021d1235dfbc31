package web

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/meridiancrm/meridian/pkg/models"
)

// WebhookSecretHeader carries the shared secret configured on webhook
// workflows. Deliveries without a matching value are rejected.
const WebhookSecretHeader = "X-Webhook-Secret"

// HandleWebhook is the ingress for webhook-triggered workflows. The target
// workflow must be an active webhook workflow; the delivery must present
// the configured shared secret and content type before the posted body
// seeds a run.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	id := c.Params("workflowId")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if workflow.TriggerType != models.TriggerTypeWebhook || !workflow.Runnable() {
		return notFound(c, "no active webhook workflow with this id")
	}

	config := workflow.TriggerConfig
	if config != nil && config.WebhookSecret != "" {
		if c.Get(WebhookSecretHeader) != config.WebhookSecret {
			return unauthorized(c, "invalid webhook secret")
		}
	}

	if config != nil && config.WebhookContentType != "" {
		contentType := strings.TrimSpace(strings.Split(c.Get(fiber.HeaderContentType), ";")[0])
		if !strings.EqualFold(contentType, config.WebhookContentType) {
			return unsupportedMediaType(c, "expected content type "+config.WebhookContentType)
		}
	}

	seed := map[string]any{"event": "webhook.received"}

	if len(c.Body()) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(c.Body(), &payload); err != nil {
			return badRequest(c, "Invalid JSON body")
		}

		for key, value := range payload {
			seed[key] = value
		}

		seed["event"] = "webhook.received"
	}

	execution, err := h.runner.Start(c.Context(), workflow, "webhook.received", seed)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(WebhookResponse{
		ExecutionID: execution.ID,
		Status:      string(execution.Status),
	})
}
