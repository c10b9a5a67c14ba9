package domain

import (
	"fmt"
	"strings"
)

const DefaultPresetPods = 2

// Preset is a named custom mode: a free play session with a fixed duration
// and number of pods.
type Preset struct {
	Name        string
	DurationSec int
	Pods        int
	TimesPlayed int
}

func (p *Preset) ApplyDefaults() {
	if p == nil {
		return
	}

	p.Name = strings.TrimSpace(p.Name)
	if p.DurationSec <= 0 {
		p.DurationSec = DefaultDurationSec
	}
	if p.Pods <= 0 {
		p.Pods = DefaultPresetPods
	}
	if p.TimesPlayed < 0 {
		p.TimesPlayed = 0
	}
}

func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.DurationSec <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if p.Pods <= 0 {
		return fmt.Errorf("pods must be positive")
	}

	return nil
}
