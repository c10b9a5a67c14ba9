package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/ports"
)

type PresetService struct {
	repo ports.PresetRepository
}

func NewPresetService(repo ports.PresetRepository) *PresetService {
	return &PresetService{repo: repo}
}

func (s *PresetService) Save(ctx context.Context, preset domain.Preset) (domain.Preset, error) {
	preset.ApplyDefaults()
	if err := preset.Validate(); err != nil {
		return domain.Preset{}, fmt.Errorf("invalid preset: %w", err)
	}

	existing, err := s.repo.GetByName(ctx, preset.Name)
	switch {
	case err == nil:
		preset.TimesPlayed = max(preset.TimesPlayed, existing.TimesPlayed)
	case !errors.Is(err, domain.ErrPresetNotFound):
		return domain.Preset{}, fmt.Errorf("get preset: %w", err)
	}

	if err := s.repo.Save(ctx, preset); err != nil {
		return domain.Preset{}, fmt.Errorf("save preset: %w", err)
	}
	return preset, nil
}

func (s *PresetService) List(ctx context.Context) ([]domain.Preset, error) {
	presets, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return presets, nil
}

// Use counts a play of the named preset and returns the free play selection
// that starts it.
func (s *PresetService) Use(ctx context.Context, name string) (SelectMode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return SelectMode{}, fmt.Errorf("preset name is required")
	}

	preset, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return SelectMode{}, fmt.Errorf("get preset: %w", err)
	}

	preset.TimesPlayed++
	if err := s.repo.Save(ctx, preset); err != nil {
		return SelectMode{}, fmt.Errorf("save preset: %w", err)
	}

	return SelectMode{
		Mode:        domain.ModeFreePlay,
		DurationSec: preset.DurationSec,
		PodLimit:    preset.Pods,
		PresetName:  preset.Name,
	}, nil
}
