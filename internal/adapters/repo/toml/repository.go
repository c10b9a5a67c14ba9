package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/neoxalle/nx/internal/config"
	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	presetsFileMode = 0o600
	presetsDirMode  = 0o700
	tempFilePattern = ".presets-*.toml.tmp"
)

// Repository keeps custom mode presets in a single TOML file. Writes go
// through a temp file and rename so readers never see a partial file.
type Repository struct {
	presetsPath string
	mu          *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.PresetRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	cfg, err := config.Load(cfg)
	if err != nil {
		return nil, err
	}

	presetsPath, err := config.Path(cfg, config.PresetsPathKey)
	if err != nil {
		return nil, err
	}

	return &Repository{presetsPath: presetsPath, mu: lockForPath(presetsPath)}, nil
}

func (r *Repository) Path() string {
	return r.presetsPath
}

// Save inserts the preset or replaces the one with the same name, compared
// case-insensitively.
func (r *Repository) Save(ctx context.Context, preset domain.Preset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	preset.ApplyDefaults()
	if err := preset.Validate(); err != nil {
		return fmt.Errorf("save preset: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}

	encoded := toSchema(preset)
	updated := false
	for i := range file.Presets {
		if strings.EqualFold(file.Presets[i].Name, encoded.Name) {
			file.Presets[i] = encoded
			updated = true
			break
		}
	}

	if !updated {
		file.Presets = append(file.Presets, encoded)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) GetByName(ctx context.Context, name string) (domain.Preset, error) {
	if err := ctx.Err(); err != nil {
		return domain.Preset{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.Preset{}, err
	}

	name = strings.TrimSpace(name)
	for _, entry := range file.Presets {
		if strings.EqualFold(entry.Name, name) {
			return fromSchema(entry), nil
		}
	}

	return domain.Preset{}, fmt.Errorf("%w: %q", domain.ErrPresetNotFound, name)
}

func (r *Repository) List(ctx context.Context) ([]domain.Preset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	presets := make([]domain.Preset, 0, len(file.Presets))
	for _, entry := range file.Presets {
		presets = append(presets, fromSchema(entry))
	}

	return presets, nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.presetsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file := fileSchema{}
			file.applyDefaults()
			return file, nil
		}
		return fileSchema{}, fmt.Errorf("read presets file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode presets file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.presetsPath), presetsDirMode); err != nil {
		return fmt.Errorf("create presets directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode presets file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.presetsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp presets file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp presets file: %w", err)
	}

	if err := tempFile.Chmod(presetsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp presets file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp presets file: %w", err)
	}

	if err := os.Rename(tempName, r.presetsPath); err != nil {
		return fmt.Errorf("replace presets file: %w", err)
	}

	cleanup = false
	return nil
}

func toSchema(preset domain.Preset) presetSchema {
	return presetSchema{
		Name:        preset.Name,
		DurationSec: preset.DurationSec,
		Pods:        preset.Pods,
		TimesPlayed: preset.TimesPlayed,
	}
}

// fromSchema fills defaults for hand-edited entries missing fields.
func fromSchema(entry presetSchema) domain.Preset {
	preset := domain.Preset{
		Name:        entry.Name,
		DurationSec: entry.DurationSec,
		Pods:        entry.Pods,
		TimesPlayed: entry.TimesPlayed,
	}
	preset.ApplyDefaults()
	return preset
}
