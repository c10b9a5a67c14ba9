package application

import (
	"github.com/neoxalle/nx/internal/domain"
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseSelectPlayers     Phase = "select_players"
	PhasePlaying           Phase = "playing"
	PhaseReactionReady     Phase = "reaction_ready"
	PhaseReactionCountdown Phase = "reaction_countdown"
	PhaseReactionWait      Phase = "reaction_wait"
	PhaseReacting          Phase = "reacting"
	PhaseFinished          Phase = "finished"
)

// Active reports whether a session is running and can be stopped.
func (p Phase) Active() bool {
	switch p {
	case PhasePlaying, PhaseReactionCountdown, PhaseReactionWait, PhaseReacting:
		return true
	default:
		return false
	}
}

type RoundResult struct {
	Round  int
	Winner domain.SlaveID
	Times  map[domain.SlaveID]int64
}

// View is a copy of everything a screen needs to draw the session.
type View struct {
	Phase        Phase
	Mode         domain.GameMode
	DurationSec  int
	NumPlayers   int
	Participants []domain.SlaveID
	RemainingSec int
	Countdown    int
	Round        int
	Lit          []domain.SlaveID
	Scores       map[domain.SlaveID]int
	ReactionMs   map[domain.SlaveID]int64
	LastResult   *RoundResult
	Record       *domain.SessionRecord

	// Filled in by the Controller.
	Slaves     []domain.SlaveInfo
	LinkStatus string
}
