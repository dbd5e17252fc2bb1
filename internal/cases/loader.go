// Package cases supplies case content (parameters, treatments, goals, challenges) to the simulator.
package cases

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// Provider is the case content collaborator. Get fails with CaseNotFound for unknown ids.
type Provider interface {
	Get(ctx context.Context, id string) (*models.Case, error)
	List(ctx context.Context, tag string) ([]*models.Case, error)
}

// BadgesFileName is skipped when scanning a cases directory
const BadgesFileName = "badges.yaml"

// Loader manages loading and caching of YAML case files
type Loader struct {
	mu    sync.RWMutex
	cases map[string]*models.Case
}

// NewLoader creates a new case loader
func NewLoader() *Loader {
	return &Loader{
		cases: make(map[string]*models.Case),
	}
}

// LoadFromDir loads every case file in dir and its immediate subdirectories.
// Invalid files are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading cases from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to read cases directory: %w", err)
	}

	patterns := []string{"*.yaml", "*.yml"}
	var files []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)

		subMatches, err := filepath.Glob(filepath.Join(dir, "*", pattern))
		if err != nil {
			continue
		}
		files = append(files, subMatches...)
	}

	loaded := 0
	for _, file := range files {
		if filepath.Base(file) == BadgesFileName {
			continue
		}

		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load case", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("cases loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads and validates a single case file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var c models.Case
	if err := yaml.Unmarshal(data, &c); err != nil {
		return simerr.New(simerr.KindInvalidCaseData, "failed to parse YAML: %v", err)
	}

	if err := c.Validate(); err != nil {
		return err
	}

	l.Add(&c)

	slog.Info("case loaded", "id", c.ID, "parameters", len(c.Parameters), "treatments", len(c.Treatments))
	return nil
}

// Get retrieves a case by id
func (l *Loader) Get(ctx context.Context, id string) (*models.Case, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.cases[id]
	if !ok {
		return nil, simerr.New(simerr.KindCaseNotFound, "case %s", id)
	}
	return c, nil
}

// List returns loaded cases ordered by id, optionally filtered by tag
func (l *Loader) List(ctx context.Context, tag string) ([]*models.Case, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Case, 0, len(l.cases))
	for _, c := range l.cases {
		if tag != "" && !hasTag(c, tag) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Add programmatically adds a case
func (l *Loader) Add(c *models.Case) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cases[c.ID] = c
}

// Remove removes a case by id
func (l *Loader) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cases, id)
}

func hasTag(c *models.Case, tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type badgesFile struct {
	Badges []models.Badge `yaml:"badges"`
}

// LoadBadges reads the badge catalog from a YAML file
func LoadBadges(path string) ([]models.Badge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read badges file: %w", err)
	}

	var f badgesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, simerr.New(simerr.KindInvalidCaseData, "failed to parse badges YAML: %v", err)
	}

	slog.Info("badges loaded", "file", path, "count", len(f.Badges))
	return f.Badges, nil
}
