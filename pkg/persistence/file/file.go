// Package file provides JSON-file persistence, used for development and
// tests. One file per record, one directory per entity.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/meridiancrm/meridian/pkg/persistence"
)

const dirPerm = 0o755

// Persistence implements persistence.Persistence on the local file system.
// A single mutex serializes writes so counter updates stay atomic.
type Persistence struct {
	root string
	mu   sync.Mutex

	workflows  *WorkflowRepository
	executions *ExecutionRepository
	resumes    *ResumeRepository
	batches    *BatchRepository
	schedules  *ScheduleRepository
	rules      *RuleRepository
	templates  *TemplateRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflows = &WorkflowRepository{p: p}
	p.executions = &ExecutionRepository{p: p}
	p.resumes = &ResumeRepository{p: p}
	p.batches = &BatchRepository{p: p}
	p.schedules = &ScheduleRepository{p: p}
	p.rules = &RuleRepository{p: p}
	p.templates = &TemplateRepository{p: p}

	return p
}

func (p *Persistence) Workflows() persistence.WorkflowRepository   { return p.workflows }
func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) Resumes() persistence.ResumeRepository       { return p.resumes }
func (p *Persistence) Batches() persistence.BatchRepository        { return p.batches }
func (p *Persistence) Schedules() persistence.ScheduleRepository   { return p.schedules }
func (p *Persistence) Rules() persistence.RuleRepository           { return p.rules }
func (p *Persistence) Templates() persistence.TemplateRepository   { return p.templates }

// HealthCheck verifies the root directory exists, creating it on first use.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(p.root, dirPerm)
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) entityDir(entity string) string {
	return filepath.Join(p.root, entity)
}

// validateID keeps record ids inside the entity directory. An id with a path
// separator would silently write outside it or fail on a missing parent.
func validateID(entity, id string) error {
	if id == "" || id != filepath.Base(id) || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid %s id %q: must not contain path separators", entity, id)
	}

	return nil
}

func (p *Persistence) writeRecord(entity, id string, record any) error {
	if err := validateID(entity, id); err != nil {
		return err
	}

	dir := p.entityDir(entity)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", entity, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", entity, id, err)
	}

	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// readRecord loads one record; the bool reports existence.
func (p *Persistence) readRecord(entity, id string, record any) (bool, error) {
	if err := validateID(entity, id); err != nil {
		return false, err
	}

	path := filepath.Join(p.entityDir(entity), id+".json")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, record); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return true, nil
}

func (p *Persistence) deleteRecord(entity, id string) error {
	if err := validateID(entity, id); err != nil {
		return err
	}

	path := filepath.Join(p.entityDir(entity), id+".json")

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	return nil
}

// listIDs returns the record ids (file names minus extension) of an entity.
func (p *Persistence) listIDs(entity string) ([]string, error) {
	dir := p.entityDir(entity)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", entity, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
