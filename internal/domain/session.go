package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type GameMode string

const (
	ModeReaction  GameMode = "reaction"
	ModeOneVOne   GameMode = "1v1"
	ModeFreePlay  GameMode = "free_play"
	ModeEndurance GameMode = "endurance"
)

const (
	DefaultDurationSec   = 30
	EnduranceDurationSec = 60
)

func ParseGameMode(raw string) (GameMode, error) {
	switch mode := GameMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case ModeReaction, ModeOneVOne, ModeFreePlay, ModeEndurance:
		return mode, nil
	case "onevone", "battle":
		return ModeOneVOne, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
	}
}

// Timed reports whether the mode runs on the 1 Hz countdown instead of the
// reaction test phases.
func (m GameMode) Timed() bool {
	return m != ModeReaction
}

func (m GameMode) DefaultDuration() int {
	if m == ModeEndurance {
		return EnduranceDurationSec
	}
	return DefaultDurationSec
}

func (m GameMode) Label() string {
	switch m {
	case ModeReaction:
		return "Reaction"
	case ModeOneVOne:
		return "1 vs 1"
	case ModeFreePlay:
		return "Free Play"
	case ModeEndurance:
		return "Endurance"
	default:
		return string(m)
	}
}

type SessionConfig struct {
	Mode           GameMode
	DurationSec    int
	NumPlayers     int
	ParticipantIDs []SlaveID
	PresetName     string
}

func (c SessionConfig) Validate() error {
	if _, err := ParseGameMode(string(c.Mode)); err != nil {
		return err
	}
	if c.NumPlayers != 1 && c.NumPlayers != 2 {
		return fmt.Errorf("%w: %d", ErrInvalidPlayers, c.NumPlayers)
	}
	if c.Mode == ModeOneVOne && c.NumPlayers != 2 {
		return fmt.Errorf("%w: 1v1 needs 2 players", ErrInvalidPlayers)
	}
	if c.Mode.Timed() && c.DurationSec <= 0 {
		return fmt.Errorf("duration must be positive, got %d", c.DurationSec)
	}
	if len(c.ParticipantIDs) == 0 {
		return ErrNoParticipants
	}
	if c.NumPlayers == 2 && len(c.ParticipantIDs) != 2 {
		return fmt.Errorf("%w: 2 players need 2 pods, got %d", ErrNoParticipants, len(c.ParticipantIDs))
	}

	return nil
}

func (c SessionConfig) IsParticipant(id SlaveID) bool {
	return slices.Contains(c.ParticipantIDs, id)
}

type SessionRecord struct {
	ID          string
	Timestamp   time.Time
	GameType    GameMode
	DurationSec int
	Players     int
	Scores      map[SlaveID]int
	Winner      SlaveID
	HasWinner   bool
	ReactionMs  map[SlaveID]int64
}

// TotalPresses sums every point scored in the session.
func (r SessionRecord) TotalPresses() int {
	total := 0
	for _, score := range r.Scores {
		total += score
	}
	return total
}

// FastestReaction returns the lowest recorded reaction time, if any.
func (r SessionRecord) FastestReaction() (int64, bool) {
	var fastest int64
	found := false
	for _, ms := range r.ReactionMs {
		if !found || ms < fastest {
			fastest = ms
			found = true
		}
	}
	return fastest, found
}

// Winner picks the participant with the strictly highest score. Equal scores
// fall back to the lowest id.
func Winner(scores map[SlaveID]int, participants []SlaveID) (SlaveID, bool) {
	ids := slices.Clone(participants)
	slices.Sort(ids)

	var (
		best  SlaveID
		top   int
		found bool
	)
	for _, id := range ids {
		score := scores[id]
		if !found || score > top {
			best, top, found = id, score, true
		}
	}

	return best, found
}
