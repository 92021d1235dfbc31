package file

import (
	"context"
	"sort"
	"time"

	"github.com/meridiancrm/meridian/pkg/models"
	"github.com/meridiancrm/meridian/pkg/persistence"
)

const (
	rulesDir     = "rules"
	templatesDir = "templates"
)

// RuleRepository stores automation rules as JSON files.
type RuleRepository struct {
	p *Persistence
}

func (r *RuleRepository) List(ctx context.Context) ([]*models.AutomationRule, error) {
	ids, err := r.p.listIDs(rulesDir)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.AutomationRule, 0)

	for _, id := range ids {
		rule, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		rules = append(rules, rule)
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})

	return rules, nil
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]*models.AutomationRule, error) {
	rules, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*models.AutomationRule, 0, len(rules))

	for _, rule := range rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}

	return active, nil
}

func (r *RuleRepository) GetByID(_ context.Context, id string) (*models.AutomationRule, error) {
	var rule models.AutomationRule

	found, err := r.p.readRecord(rulesDir, id, &rule)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrRuleNotFound
	}

	return &rule, nil
}

func (r *RuleRepository) Save(_ context.Context, rule *models.AutomationRule) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	rule.UpdatedAt = time.Now().UTC()

	return r.p.writeRecord(rulesDir, rule.ID, rule)
}

func (r *RuleRepository) Delete(_ context.Context, id string) error {
	return r.p.deleteRecord(rulesDir, id)
}

func (r *RuleRepository) IncrementExecutionCount(ctx context.Context, id string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	rule, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	rule.ExecutionCount++
	rule.LastExecutedAt = &at

	return r.p.writeRecord(rulesDir, id, rule)
}

// TemplateRepository stores workflow templates as JSON files.
type TemplateRepository struct {
	p *Persistence
}

func (r *TemplateRepository) List(_ context.Context) ([]*models.WorkflowTemplate, error) {
	ids, err := r.p.listIDs(templatesDir)
	if err != nil {
		return nil, err
	}

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		var template models.WorkflowTemplate

		found, err := r.p.readRecord(templatesDir, id, &template)
		if err != nil {
			return nil, err
		}

		if found {
			templates = append(templates, &template)
		}
	}

	return templates, nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	found, err := r.p.readRecord(templatesDir, id, &template)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrTemplateNotFound
	}

	return &template, nil
}

func (r *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	return r.p.writeRecord(templatesDir, template.ID, template)
}
