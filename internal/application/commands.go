package application

import (
	"time"

	"github.com/neoxalle/nx/internal/domain"
)

// Input is anything the orchestrator reacts to: user choices, timer fires
// and hub events.
type Input interface {
	isInput()
}

type SelectMode struct {
	Mode        domain.GameMode
	DurationSec int
	// PodLimit caps the number of pods a single player uses in timed modes.
	// Zero means every connected pod.
	PodLimit   int
	PresetName string
}

type SelectPlayers struct {
	NumPlayers int
}

type SelectPod struct {
	Slave domain.SlaveID
}

type StartTest struct{}

type TimerFired struct {
	Kind TimerKind
	Gen  int
}

type EventReceived struct {
	Event domain.Event
	At    time.Time
}

type Stop struct{}

type PlayAgain struct{}

func (SelectMode) isInput()    {}
func (SelectPlayers) isInput() {}
func (SelectPod) isInput()     {}
func (StartTest) isInput()     {}
func (TimerFired) isInput()    {}
func (EventReceived) isInput() {}
func (Stop) isInput()          {}
func (PlayAgain) isInput()     {}

type TimerKind string

const (
	TimerCountdown     TimerKind = "countdown"
	TimerReactionDelay TimerKind = "reaction_delay"
	TimerResultClear   TimerKind = "result_clear"
)

// Effect is work the orchestrator asks its host to perform.
type Effect interface {
	isEffect()
}

type SendCommand struct {
	Command domain.Command
	Delay   time.Duration
}

type StartTimer struct {
	Kind   TimerKind
	Gen    int
	After  time.Duration
	Repeat bool
}

type CancelTimer struct {
	Kind TimerKind
}

// CancelSends drops every delayed SendCommand that has not gone out yet.
type CancelSends struct{}

type SaveRecord struct {
	Record domain.SessionRecord
}

func (SendCommand) isEffect() {}
func (StartTimer) isEffect()  {}
func (CancelTimer) isEffect() {}
func (CancelSends) isEffect() {}
func (SaveRecord) isEffect()  {}
