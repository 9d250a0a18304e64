package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"geoclim/internal/models"
	"geoclim/pkg/logging"
)

// manifestDocument is the on-disk layout of a file manifest
type manifestDocument struct {
	Version int            `json:"version"`
	Units   []*models.Unit `json:"units"`
	Runs    []*models.Run  `json:"runs"`
}

// fileManifest keeps the manifest in a JSON document beside the downloaded data.
// Every mutation rewrites the document atomically.
type fileManifest struct {
	mu     sync.Mutex
	path   string
	units  map[string]*models.Unit
	runs   []*models.Run
	logger *logging.StructuredLogger
}

// NewFileManifest opens (or creates) the JSON manifest at path
func NewFileManifest(path string, logger *logging.StructuredLogger) (ManifestRepository, error) {
	m := &fileManifest{
		path:   path,
		units:  make(map[string]*models.Unit),
		logger: logger,
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var doc manifestDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, &models.ParseError{Source: path, Reason: err.Error()}
	}
	for _, u := range doc.Units {
		m.units[u.UnitKey.String()] = u
	}
	m.runs = doc.Runs

	logger.Debug(context.Background(), "[MANIFEST_LOAD] File manifest loaded", logging.Fields{
		"path":  path,
		"units": len(m.units),
		"runs":  len(m.runs),
	})
	return m, nil
}

func (m *fileManifest) UpsertUnit(ctx context.Context, unit *models.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := unit.UnitKey.String()
	if existing, ok := m.units[key]; ok && unit.CreatedAt.IsZero() {
		unit.CreatedAt = existing.CreatedAt
	}
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now

	cp := *unit
	cp.StationIDs = append([]string(nil), unit.StationIDs...)
	cp.Files = append([]string(nil), unit.Files...)
	m.units[key] = &cp

	return m.persist()
}

func (m *fileManifest) GetUnit(ctx context.Context, key models.UnitKey) (*models.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.units[key.String()]
	if !ok {
		return nil, &models.NotFoundError{Resource: "batch_unit", ID: key.String()}
	}
	cp := *u
	return &cp, nil
}

func (m *fileManifest) ListUnits(ctx context.Context, filter UnitFilter) ([]*models.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Unit
	for _, u := range m.units {
		if filter.matches(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		if a.Measurements != b.Measurements {
			return a.Measurements < b.Measurements
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.ChunkKey < b.ChunkKey
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*models.Unit{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *fileManifest) CreateRun(ctx context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.runs {
		if r.ID == run.ID {
			return fmt.Errorf("run %s already exists", run.ID)
		}
	}
	cp := *run
	m.runs = append(m.runs, &cp)
	return m.persist()
}

func (m *fileManifest) FinishRun(ctx context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.runs {
		if r.ID == run.ID {
			cp := *run
			m.runs[i] = &cp
			return m.persist()
		}
	}
	return &models.NotFoundError{Resource: "batch_run", ID: run.ID}
}

func (m *fileManifest) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Run, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		cp := *m.runs[i]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HealthCheck verifies the manifest directory is writable
func (m *fileManifest) HealthCheck(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	f, err := os.CreateTemp(dir, ".manifest-health-*")
	if err != nil {
		return fmt.Errorf("manifest directory %s not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// persist must be called with mu held.
func (m *fileManifest) persist() error {
	doc := manifestDocument{Version: 1, Runs: m.runs}
	doc.Units = make([]*models.Unit, 0, len(m.units))
	for _, u := range m.units {
		doc.Units = append(doc.Units, u)
	}
	sort.Slice(doc.Units, func(i, j int) bool {
		return doc.Units[i].UnitKey.String() < doc.Units[j].UnitKey.String()
	})

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp := m.path + ".part"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
