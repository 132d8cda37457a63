package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ModelVersion represents a saved regressor artifact
type ModelVersion struct {
	Version   string       `json:"version"`
	Path      string       `json:"path"`
	CreatedAt time.Time    `json:"created_at"`
	Metrics   ModelMetrics `json:"metrics"`
	IsActive  bool         `json:"is_active"`
}

// ModelMetrics records how a version was trained and how well it fit
type ModelMetrics struct {
	TrainingPairs         int     `json:"training_pairs"`
	FittedPoints          int     `json:"fitted_points"`
	LengthScale           float64 `json:"length_scale"`
	LogMarginalLikelihood float64 `json:"log_marginal_likelihood"`
	WindowSize            int     `json:"window_size"`
	BatchSize             int     `json:"batch_size"`
	Epochs                int     `json:"epochs"`
}

// ModelManager handles model versioning and rollback
type ModelManager struct {
	mu           sync.RWMutex
	modelsDir    string
	versionsFile string
	versions     []ModelVersion
	current      string
}

// NewModelManager creates a new model manager rooted at modelsDir
func NewModelManager(modelsDir string) (*ModelManager, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create models directory: %v", ErrModelPersistence, err)
	}

	mm := &ModelManager{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, "model_versions.json"),
		versions:     make([]ModelVersion, 0),
	}

	if err := mm.loadVersions(); err != nil {
		log.Warn().Err(err).Msg("Failed to load model versions, starting fresh")
	}

	return mm, nil
}

// NewVersionPath returns a fresh artifact path inside the models directory
// together with the version name it will be registered under.
func (mm *ModelManager) NewVersionPath(now time.Time) (string, string) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	base := now.UTC().Format("20060102-150405")
	version := base
	for n := 2; mm.indexOf(version) >= 0; n++ {
		version = fmt.Sprintf("%s-%d", base, n)
	}
	return version, filepath.Join(mm.modelsDir, "gp_model_"+version+".json")
}

// AddVersion registers an artifact. The new version is not activated.
func (mm *ModelManager) AddVersion(version, modelPath string, metrics ModelMetrics) (ModelVersion, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.indexOf(version) >= 0 {
		return ModelVersion{}, fmt.Errorf("version %s already exists", version)
	}

	mv := ModelVersion{
		Version:   version,
		Path:      modelPath,
		CreatedAt: time.Now().UTC(),
		Metrics:   metrics,
	}
	mm.versions = append(mm.versions, mv)

	// Newest first
	sort.SliceStable(mm.versions, func(i, j int) bool {
		return mm.versions[i].CreatedAt.After(mm.versions[j].CreatedAt)
	})

	return mv, mm.saveVersions()
}

// ActivateVersion activates a specific model version
func (mm *ModelManager) ActivateVersion(version string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.activate(version)
}

// Rollback activates the version created before the active one
func (mm *ModelManager) Rollback() error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if len(mm.versions) < 2 {
		return fmt.Errorf("no previous version available for rollback")
	}

	currentIdx := mm.indexOf(mm.current)
	if currentIdx == -1 {
		return fmt.Errorf("no active version found")
	}
	if currentIdx+1 >= len(mm.versions) {
		return fmt.Errorf("no previous version available")
	}

	prev := mm.versions[currentIdx+1].Version
	log.Info().Str("from", mm.current).Str("to", prev).Msg("Rolling back model version")
	return mm.activate(prev)
}

// GetCurrentVersion returns a copy of the active version, or nil
func (mm *ModelManager) GetCurrentVersion() *ModelVersion {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	idx := mm.indexOf(mm.current)
	if idx < 0 {
		return nil
	}
	v := mm.versions[idx]
	return &v
}

// ListVersions returns all model versions, newest first
func (mm *ModelManager) ListVersions() []ModelVersion {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	out := make([]ModelVersion, len(mm.versions))
	copy(out, mm.versions)
	return out
}

// ActivePath returns the artifact path of the active version, or fallback
// when nothing has been activated.
func (mm *ModelManager) ActivePath(fallback string) string {
	if v := mm.GetCurrentVersion(); v != nil {
		return v.Path
	}
	return fallback
}

func (mm *ModelManager) activate(version string) error {
	idx := mm.indexOf(version)
	if idx < 0 {
		return fmt.Errorf("version %s not found", version)
	}
	for i := range mm.versions {
		mm.versions[i].IsActive = i == idx
	}
	mm.current = version
	return mm.saveVersions()
}

func (mm *ModelManager) indexOf(version string) int {
	if version == "" {
		return -1
	}
	for i := range mm.versions {
		if mm.versions[i].Version == version {
			return i
		}
	}
	return -1
}

func (mm *ModelManager) loadVersions() error {
	data, err := os.ReadFile(mm.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := json.Unmarshal(data, &mm.versions); err != nil {
		return err
	}

	for _, v := range mm.versions {
		if v.IsActive {
			mm.current = v.Version
			break
		}
	}

	return nil
}

func (mm *ModelManager) saveVersions() error {
	data, err := json.MarshalIndent(mm.versions, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal versions: %v", ErrModelPersistence, err)
	}
	if err := os.WriteFile(mm.versionsFile, data, 0o600); err != nil {
		return fmt.Errorf("%w: write versions: %v", ErrModelPersistence, err)
	}
	return nil
}

// LoadActive restores the active version registered in modelsDir, or the
// artifact at fallback when no version is active. It returns the loaded
// regressor and the active version name, empty for the fallback.
func LoadActive(modelsDir, fallback string, cfg RegressorConfig, metrics MetricsInterface) (*Regressor, string, error) {
	r, err := NewRegressor(cfg, metrics)
	if err != nil {
		return nil, "", err
	}
	version, err := ReloadActive(r, modelsDir, fallback)
	if err != nil {
		return nil, "", err
	}
	return r, version, nil
}

// ReloadActive loads the currently active version into r. The versions file
// is re-read, so versions activated by another process are picked up. On
// error r keeps the model it had.
func ReloadActive(r *Regressor, modelsDir, fallback string) (string, error) {
	mm, err := NewModelManager(modelsDir)
	if err != nil {
		return "", err
	}

	path := fallback
	version := ""
	if v := mm.GetCurrentVersion(); v != nil {
		path, version = v.Path, v.Version
	}

	ok, err := r.Load(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: no model at %s, run training first", ErrModelNotTrained, path)
	}
	return version, nil
}
