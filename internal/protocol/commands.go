package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/neoxalle/nx/internal/domain"
)

var ErrUnknownCommand = errors.New("unknown command")

type bareCommand struct {
	Command string `json:"command"`
}

type startGameCommand struct {
	Command  string `json:"command"`
	Mode     string `json:"mode"`
	Duration int    `json:"duration"`
	Slaves   int    `json:"slaves"`
}

type lightOnCommand struct {
	Command string `json:"command"`
	Slave   int    `json:"slave"`
	Color   string `json:"color"`
}

type lightOffCommand struct {
	Command string `json:"command"`
	Slave   int    `json:"slave"`
}

// EncodeCommand renders a command as plain JSON text with no envelope.
func EncodeCommand(cmd domain.Command) (string, error) {
	name := string(cmd.Name)

	var payload any
	switch cmd.Name {
	case domain.CommandScanSlaves, domain.CommandStopGame:
		payload = bareCommand{Command: name}
	case domain.CommandStartGame:
		payload = startGameCommand{Command: name, Mode: string(cmd.Mode), Duration: cmd.DurationSec, Slaves: cmd.Slaves}
	case domain.CommandLightOn:
		color := cmd.Color
		if color == "" {
			color = domain.ColorRandom
		}
		payload = lightOnCommand{Command: name, Slave: int(cmd.Slave), Color: color}
	case domain.CommandLightOff:
		payload = lightOffCommand{Command: name, Slave: int(cmd.Slave)}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode command %s: %w", name, err)
	}
	return string(data), nil
}

// ParseCommand is the inverse of EncodeCommand, used by the simulated hub.
func ParseCommand(text string) (domain.Command, error) {
	var wire struct {
		Command  string `json:"command"`
		Mode     string `json:"mode"`
		Duration int    `json:"duration"`
		Slaves   int    `json:"slaves"`
		Slave    int    `json:"slave"`
		Color    string `json:"color"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return domain.Command{}, fmt.Errorf("decode command: %w", err)
	}

	cmd := domain.Command{
		Name:        domain.CommandName(wire.Command),
		Mode:        domain.GameMode(wire.Mode),
		DurationSec: wire.Duration,
		Slaves:      wire.Slaves,
		Slave:       domain.SlaveID(wire.Slave),
		Color:       wire.Color,
	}
	switch cmd.Name {
	case domain.CommandScanSlaves, domain.CommandStartGame, domain.CommandLightOn, domain.CommandLightOff, domain.CommandStopGame:
		return cmd, nil
	default:
		return domain.Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, wire.Command)
	}
}
