package application

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type machine struct {
	t      *testing.T
	o      *Orchestrator
	roster *domain.Roster
	now    time.Time
	gens   map[TimerKind]int
	timers map[TimerKind]StartTimer
	all    []Effect
}

func newMachine(t *testing.T, ids ...domain.SlaveID) *machine {
	t.Helper()

	roster := domain.NewRoster()
	statuses := make([]domain.SlaveStatus, 0, len(ids))
	for _, id := range ids {
		statuses = append(statuses, domain.SlaveStatus{ID: id, Connected: true})
	}
	roster.Apply(domain.StatusEvent{Slaves: statuses})

	return &machine{
		t:      t,
		o:      NewOrchestrator(rand.NewPCG(1, 2)),
		roster: roster,
		now:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		gens:   make(map[TimerKind]int),
		timers: make(map[TimerKind]StartTimer),
	}
}

func (m *machine) handle(in Input) []Effect {
	m.t.Helper()

	effects, err := m.o.Handle(in, m.roster, m.now)
	require.NoError(m.t, err)
	for _, effect := range effects {
		if start, ok := effect.(StartTimer); ok {
			m.gens[start.Kind] = start.Gen
			m.timers[start.Kind] = start
		}
	}
	m.all = append(m.all, effects...)
	return effects
}

func (m *machine) advance(d time.Duration) {
	m.now = m.now.Add(d)
}

func (m *machine) tick() []Effect {
	m.advance(TickInterval)
	return m.handle(TimerFired{Kind: TimerCountdown, Gen: m.gens[TimerCountdown]})
}

func (m *machine) press(id domain.SlaveID, timeMs int64) []Effect {
	return m.handle(EventReceived{Event: domain.PressedEvent{Slave: id, TimeMs: timeMs}, At: m.now})
}

func (m *machine) start(in SelectMode, players int) []Effect {
	m.handle(in)
	return m.handle(SelectPlayers{NumPlayers: players})
}

func sentCommands(effects []Effect) []domain.Command {
	var out []domain.Command
	for _, effect := range effects {
		if send, ok := effect.(SendCommand); ok {
			out = append(out, send.Command)
		}
	}
	return out
}

func savedRecords(effects []Effect) []domain.SessionRecord {
	var out []domain.SessionRecord
	for _, effect := range effects {
		if save, ok := effect.(SaveRecord); ok {
			out = append(out, save.Record)
		}
	}
	return out
}

func TestOrchestratorSelectModeNeedsConnectedSlave(t *testing.T) {
	m := newMachine(t)

	_, err := m.o.Handle(SelectMode{Mode: domain.ModeFreePlay}, m.roster, m.now)

	require.ErrorIs(t, err, ErrNotEnoughSlaves)
	assert.Equal(t, PhaseIdle, m.o.Phase())
}

func TestOrchestratorPlayerSelectionRules(t *testing.T) {
	t.Run("1v1 rejects a single player", func(t *testing.T) {
		m := newMachine(t, 1, 2)
		m.handle(SelectMode{Mode: domain.ModeOneVOne})

		_, err := m.o.Handle(SelectPlayers{NumPlayers: 1}, m.roster, m.now)
		require.ErrorIs(t, err, domain.ErrInvalidPlayers)
		assert.Equal(t, PhaseSelectPlayers, m.o.Phase())
	})

	t.Run("two players need two connected pods", func(t *testing.T) {
		m := newMachine(t, 1)
		m.handle(SelectMode{Mode: domain.ModeOneVOne})

		_, err := m.o.Handle(SelectPlayers{NumPlayers: 2}, m.roster, m.now)
		require.ErrorIs(t, err, ErrNotEnoughSlaves)
	})

	t.Run("two players take the lowest ids", func(t *testing.T) {
		m := newMachine(t, 7, 2, 4)
		m.start(SelectMode{Mode: domain.ModeOneVOne}, 2)

		assert.Equal(t, []domain.SlaveID{2, 4}, m.o.View().Participants)
	})

	t.Run("pod limit caps a single player", func(t *testing.T) {
		m := newMachine(t, 1, 2, 3)
		m.start(SelectMode{Mode: domain.ModeFreePlay, PodLimit: 2}, 1)

		assert.Equal(t, []domain.SlaveID{1, 2}, m.o.View().Participants)
	})
}

func TestOrchestratorPlayingEntry(t *testing.T) {
	m := newMachine(t, 3, 5)

	effects := m.start(SelectMode{Mode: domain.ModeOneVOne, DurationSec: 20}, 2)

	require.Equal(t, PhasePlaying, m.o.Phase())
	assert.Equal(t, []Effect{
		SendCommand{Command: domain.StartGame(domain.ModeOneVOne, 20, 2)},
		StartTimer{Kind: TimerCountdown, Gen: 1, After: TickInterval, Repeat: true},
		SendCommand{Command: domain.LightOn(3)},
		SendCommand{Command: domain.LightOn(5), Delay: StaggerDelay},
	}, effects)
	assert.Equal(t, 20, m.o.View().RemainingSec)
}

func TestOrchestratorSinglePlayerScoresEveryRound(t *testing.T) {
	m := newMachine(t, 1)
	m.start(SelectMode{Mode: domain.ModeFreePlay}, 1)

	const rounds = 5
	for i := 0; i < rounds; i++ {
		if i > 0 {
			assert.Equal(t, []domain.Command{domain.LightOn(1)}, sentCommands(m.tick()))
		}
		m.advance(300 * time.Millisecond)
		m.press(1, 300)
	}

	assert.Equal(t, map[domain.SlaveID]int{1: rounds}, m.o.View().Scores)
}

func TestOrchestratorDebouncesDuplicatePresses(t *testing.T) {
	m := newMachine(t, 3, 5)
	m.start(SelectMode{Mode: domain.ModeOneVOne}, 2)

	m.press(3, 200)
	m.advance(100 * time.Millisecond)
	m.press(3, 150)
	m.advance(100 * time.Millisecond)
	m.press(5, 300)

	result := m.o.View().LastResult
	require.NotNil(t, result)
	assert.Equal(t, map[domain.SlaveID]int64{3: 200, 5: 300}, result.Times)
	assert.Equal(t, domain.SlaveID(3), result.Winner)
}

func TestOrchestratorTwoPlayerTieGoesToLowerID(t *testing.T) {
	m := newMachine(t, 3, 5)
	m.start(SelectMode{Mode: domain.ModeOneVOne}, 2)

	m.press(5, 250)
	m.press(3, 250)

	view := m.o.View()
	require.NotNil(t, view.LastResult)
	assert.Equal(t, domain.SlaveID(3), view.LastResult.Winner)
	assert.Equal(t, map[domain.SlaveID]int{3: 1, 5: 0}, view.Scores)
}

func TestOrchestratorSkipsTickWhileRoundPending(t *testing.T) {
	m := newMachine(t, 1)
	m.start(SelectMode{Mode: domain.ModeFreePlay, DurationSec: 10}, 1)

	effects := m.tick()

	assert.Empty(t, sentCommands(effects))
	assert.Equal(t, 9, m.o.View().RemainingSec)
	assert.Equal(t, 0, m.o.View().Round)
}

func TestOrchestratorSessionLifecycle(t *testing.T) {
	m := newMachine(t, 1)
	m.start(SelectMode{Mode: domain.ModeFreePlay, DurationSec: 15}, 1)

	var last []Effect
	for i := 0; i < 15; i++ {
		m.press(1, 400)
		last = m.tick()
	}

	require.Equal(t, PhaseFinished, m.o.Phase())
	records := savedRecords(m.all)
	require.Len(t, records, 1)
	assert.Equal(t, 15, records[0].DurationSec)
	assert.Equal(t, domain.ModeFreePlay, records[0].GameType)
	assert.Equal(t, 1, records[0].Players)
	assert.Equal(t, map[domain.SlaveID]int{1: 15}, records[0].Scores)
	assert.True(t, records[0].HasWinner)
	assert.Equal(t, domain.SlaveID(1), records[0].Winner)
	assert.Equal(t, []domain.Command{domain.StopGame()}, sentCommands(last))
	assert.Contains(t, last, CancelTimer{Kind: TimerCountdown})

	assert.Empty(t, m.tick(), "a stale tick after finishing does nothing")
}

func TestOrchestratorStopFinishesWithAccumulatedScores(t *testing.T) {
	m := newMachine(t, 3, 5)
	m.start(SelectMode{Mode: domain.ModeOneVOne}, 2)
	m.press(3, 500)
	m.press(5, 200)
	m.tick()

	effects := m.handle(Stop{})

	assert.Equal(t, []domain.Command{domain.LightOff(3), domain.LightOff(5), domain.StopGame()}, sentCommands(effects))
	records := savedRecords(effects)
	require.Len(t, records, 1)
	assert.Equal(t, map[domain.SlaveID]int{3: 0, 5: 1}, records[0].Scores)
	assert.Equal(t, domain.SlaveID(5), records[0].Winner)
	assert.Equal(t, 1, records[0].DurationSec)
}

func TestOrchestratorIgnoresStrayPresses(t *testing.T) {
	m := newMachine(t, 1, 2)
	m.start(SelectMode{Mode: domain.ModeOneVOne}, 2)

	assert.Empty(t, m.press(9, 100), "unknown pod")

	m.press(1, 100)
	m.press(2, 200)
	assert.Empty(t, m.press(1, 50), "no round pending")
	assert.Equal(t, map[domain.SlaveID]int{1: 1, 2: 0}, m.o.View().Scores)
}

func TestOrchestratorDropsDisconnectedPodFromRound(t *testing.T) {
	m := newMachine(t, 3, 5)
	m.start(SelectMode{Mode: domain.ModeOneVOne}, 2)
	m.press(3, 300)

	event := domain.SlaveDisconnectedEvent{Slave: 5}
	m.roster.Apply(event)
	m.handle(EventReceived{Event: event, At: m.now})

	view := m.o.View()
	require.NotNil(t, view.LastResult)
	assert.Equal(t, domain.SlaveID(3), view.LastResult.Winner)
	assert.Empty(t, view.Lit)
}

func reachReactionWait(t *testing.T, m *machine) {
	t.Helper()

	m.handle(SelectMode{Mode: domain.ModeReaction})
	m.handle(SelectPlayers{NumPlayers: 1})
	require.Equal(t, PhaseReactionReady, m.o.Phase())
	m.handle(SelectPod{Slave: 2})
	m.handle(StartTest{})
	require.Equal(t, PhaseReactionCountdown, m.o.Phase())

	for i := ReactionCountdownFrom; i > 0; i-- {
		assert.Equal(t, i, m.o.View().Countdown)
		m.tick()
	}
	require.Equal(t, PhaseReactionWait, m.o.Phase())
}

func TestOrchestratorReactionTiming(t *testing.T) {
	m := newMachine(t, 2, 4)
	reachReactionWait(t, m)

	delay := m.timers[TimerReactionDelay]
	assert.GreaterOrEqual(t, delay.After, ReactionDelayMin)
	assert.LessOrEqual(t, delay.After, ReactionDelayMax)
	assert.Empty(t, sentCommands(m.all), "nothing is lit before the delay elapses")

	m.advance(delay.After)
	effects := m.handle(TimerFired{Kind: TimerReactionDelay, Gen: delay.Gen})
	require.Equal(t, PhaseReacting, m.o.Phase())
	assert.Equal(t, []domain.Command{domain.LightOn(2)}, sentCommands(effects))

	m.advance(350 * time.Millisecond)
	effects = m.press(2, 9999)

	require.Equal(t, PhaseFinished, m.o.Phase())
	records := savedRecords(effects)
	require.Len(t, records, 1)
	assert.Equal(t, map[domain.SlaveID]int64{2: 350}, records[0].ReactionMs)
	assert.Equal(t, map[domain.SlaveID]int{2: 1}, records[0].Scores)
	assert.Equal(t, domain.ModeReaction, records[0].GameType)

	elapsed := ReactionCountdownFrom*TickInterval + delay.After + 350*time.Millisecond
	assert.Equal(t, int(elapsed.Round(time.Second)/time.Second), records[0].DurationSec, "duration runs from the start of the test")
}

func TestOrchestratorReactionClockFollowsHubLightOn(t *testing.T) {
	m := newMachine(t, 2)
	reachReactionWait(t, m)
	delay := m.timers[TimerReactionDelay]
	m.advance(delay.After)
	m.handle(TimerFired{Kind: TimerReactionDelay, Gen: delay.Gen})

	m.advance(40 * time.Millisecond)
	m.handle(EventReceived{Event: domain.LightOnEvent{Slave: 2}, At: m.now})
	m.advance(350 * time.Millisecond)
	m.press(2, 0)

	assert.Equal(t, int64(350), m.o.View().ReactionMs[2])
}

func TestOrchestratorResetDuringReactionWaitCancelsLight(t *testing.T) {
	m := newMachine(t, 2)
	reachReactionWait(t, m)
	delay := m.timers[TimerReactionDelay]

	effects := m.handle(PlayAgain{})

	assert.Contains(t, effects, CancelTimer{Kind: TimerReactionDelay})
	assert.Contains(t, effects, CancelSends{})
	assert.Equal(t, PhaseIdle, m.o.Phase())

	m.advance(delay.After)
	late := m.handle(TimerFired{Kind: TimerReactionDelay, Gen: delay.Gen})

	assert.Empty(t, late)
	for _, cmd := range sentCommands(m.all) {
		assert.NotEqual(t, domain.CommandLightOn, cmd.Name)
	}
	assert.Equal(t, 1, m.roster.ConnectedCount(), "reset leaves the roster alone")
}

func TestOrchestratorTwoPlayerReaction(t *testing.T) {
	m := newMachine(t, 1, 6)
	m.handle(SelectMode{Mode: domain.ModeReaction})
	m.handle(SelectPlayers{NumPlayers: 2})
	m.handle(StartTest{})
	for i := 0; i < ReactionCountdownFrom; i++ {
		m.tick()
	}
	delay := m.timers[TimerReactionDelay]
	m.advance(delay.After)
	effects := m.handle(TimerFired{Kind: TimerReactionDelay, Gen: delay.Gen})
	assert.Equal(t, []Effect{
		SendCommand{Command: domain.LightOn(1)},
		SendCommand{Command: domain.LightOn(6), Delay: StaggerDelay},
	}, effects)

	m.advance(300 * time.Millisecond)
	m.press(6, 0)
	assert.Empty(t, m.press(6, 0), "second press from the same pod is ignored")
	m.advance(200 * time.Millisecond)
	effects = m.press(1, 0)

	records := savedRecords(effects)
	require.Len(t, records, 1)
	assert.Equal(t, map[domain.SlaveID]int64{1: 500, 6: 200}, records[0].ReactionMs)
	assert.Equal(t, domain.SlaveID(6), records[0].Winner)
}

func TestOrchestratorStopOutsideSession(t *testing.T) {
	m := newMachine(t, 1)

	_, err := m.o.Handle(Stop{}, m.roster, m.now)

	require.ErrorIs(t, err, ErrInvalidInput)
}
