package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
	"github.com/meridiancrm/meridian/pkg/registry"
)

// ErrRuleNotFound is returned when an automation rule is not found.
var ErrRuleNotFound = persistence.ErrRuleNotFound

// Rules is the save-path service for automation rules. Rules are the
// one-action siblings of workflows, so validation is a struct-tag pass plus
// an action type check against the registry.
type Rules struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

// NewRules creates a new automation rule service.
func NewRules(p persistence.Persistence, reg *registry.Registry) *Rules {
	return &Rules{
		persistence: p,
		registry:    reg,
		validator:   validator.New(),
	}
}

// List retrieves all automation rules, active or not.
func (r *Rules) List(ctx context.Context) ([]*models.AutomationRule, error) {
	rules, err := r.persistence.Rules().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	return rules, nil
}

// FetchByID retrieves an automation rule by its ID.
func (r *Rules) FetchByID(ctx context.Context, id string) (*models.AutomationRule, error) {
	return r.persistence.Rules().GetByID(ctx, id)
}

// Create validates and stores a new automation rule.
func (r *Rules) Create(ctx context.Context, rule *models.AutomationRule) (*models.AutomationRule, error) {
	if err := r.Validate(rule); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rule.ID = uuid.New().String()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := r.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	return rule, nil
}

// Update validates and stores a new revision of an existing rule. Creation
// time and run counters carry over from the stored revision.
func (r *Rules) Update(ctx context.Context, ruleID string, rule *models.AutomationRule) (*models.AutomationRule, error) {
	existing, err := r.persistence.Rules().GetByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	if err := r.Validate(rule); err != nil {
		return nil, err
	}

	rule.ID = ruleID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	rule.ExecutionCount = existing.ExecutionCount
	rule.LastExecutedAt = existing.LastExecutedAt

	if err := r.persistence.Rules().Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	return rule, nil
}

// Delete removes an automation rule by its ID.
func (r *Rules) Delete(ctx context.Context, ruleID string) error {
	if _, err := r.persistence.Rules().GetByID(ctx, ruleID); err != nil {
		return err
	}

	return r.persistence.Rules().Delete(ctx, ruleID)
}

// Validate checks an automation rule before it is stored.
func (r *Rules) Validate(rule *models.AutomationRule) error {
	if rule == nil {
		return ErrRuleNil
	}

	if err := r.validator.Struct(rule); err != nil {
		return NewValidationError("Validate", "INVALID_RULE", err.Error(), ErrInvalidRule)
	}

	actionType := string(rule.Action.Type)
	if !slices.Contains(r.registry.Available(), actionType) {
		return NewValidationError(
			"Validate",
			"INVALID_RULE",
			fmt.Sprintf("action type %q is not registered", actionType),
			ErrUnknownNodeType,
		)
	}

	return nil
}
