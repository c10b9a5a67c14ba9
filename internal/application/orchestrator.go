package application

import (
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/neoxalle/nx/internal/domain"
)

const (
	TickInterval     = time.Second
	StaggerDelay     = 100 * time.Millisecond
	DebounceWindow   = 500 * time.Millisecond
	ResultClearAfter = 2 * time.Second

	ReactionCountdownFrom = 3
	ReactionDelayMin      = 3000 * time.Millisecond
	ReactionDelayMax      = 5000 * time.Millisecond
)

type press struct {
	timeMs int64
	at     time.Time
}

type round struct {
	number  int
	pending bool
	lit     []domain.SlaveID
	litAt   map[domain.SlaveID]time.Time
	presses map[domain.SlaveID]press
}

func (r round) isLit(id domain.SlaveID) bool {
	return r.pending && slices.Contains(r.lit, id)
}

// Orchestrator is the game state machine. Handle is its only transition and
// returns the effects the host must carry out; it never performs I/O and
// owns every timer through generation numbers. It is not safe for
// concurrent use.
type Orchestrator struct {
	rng *rand.Rand

	phase        Phase
	mode         domain.GameMode
	durationSec  int
	podLimit     int
	presetName   string
	numPlayers   int
	participants []domain.SlaveID

	remaining int
	countdown int
	startedAt time.Time
	nextRound int
	round     round

	scores     map[domain.SlaveID]int
	reactionMs map[domain.SlaveID]int64
	lastResult *RoundResult
	record     *domain.SessionRecord

	gens map[TimerKind]int
}

// NewOrchestrator builds an idle machine. src drives pod picks and the
// reaction delay; nil seeds from the runtime.
func NewOrchestrator(src rand.Source) *Orchestrator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Orchestrator{
		rng:   rand.New(src),
		phase: PhaseIdle,
		gens:  make(map[TimerKind]int),
	}
}

func (o *Orchestrator) Phase() Phase {
	return o.phase
}

func (o *Orchestrator) Handle(input Input, roster *domain.Roster, now time.Time) ([]Effect, error) {
	switch in := input.(type) {
	case SelectMode:
		return nil, o.selectMode(in, roster)
	case SelectPlayers:
		return o.selectPlayers(in, roster, now)
	case SelectPod:
		return nil, o.selectPod(in, roster)
	case StartTest:
		return o.startTest(now)
	case TimerFired:
		return o.timerFired(in, roster, now), nil
	case EventReceived:
		return o.eventReceived(in, roster, now), nil
	case Stop:
		if !o.phase.Active() {
			return nil, fmt.Errorf("%w: stop in %s", ErrInvalidInput, o.phase)
		}
		return o.finish(now), nil
	case PlayAgain:
		return o.reset(), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidInput, input)
	}
}

func (o *Orchestrator) selectMode(in SelectMode, roster *domain.Roster) error {
	if o.phase != PhaseIdle && o.phase != PhaseSelectPlayers {
		return fmt.Errorf("%w: select mode in %s", ErrInvalidInput, o.phase)
	}
	mode, err := domain.ParseGameMode(string(in.Mode))
	if err != nil {
		return err
	}
	if roster.ConnectedCount() < 1 {
		return ErrNotEnoughSlaves
	}

	o.mode = mode
	o.durationSec = in.DurationSec
	if o.durationSec <= 0 {
		o.durationSec = mode.DefaultDuration()
	}
	o.podLimit = in.PodLimit
	o.presetName = in.PresetName
	o.numPlayers = 0
	o.participants = nil
	o.phase = PhaseSelectPlayers
	return nil
}

func (o *Orchestrator) selectPlayers(in SelectPlayers, roster *domain.Roster, now time.Time) ([]Effect, error) {
	if o.phase != PhaseSelectPlayers {
		return nil, fmt.Errorf("%w: select players in %s", ErrInvalidInput, o.phase)
	}
	if in.NumPlayers != 1 && in.NumPlayers != 2 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidPlayers, in.NumPlayers)
	}
	if o.mode == domain.ModeOneVOne && in.NumPlayers != 2 {
		return nil, fmt.Errorf("%w: 1v1 needs 2 players", domain.ErrInvalidPlayers)
	}

	connected := roster.Connected()
	if len(connected) < in.NumPlayers {
		return nil, fmt.Errorf("%w: %d players, %d connected", ErrNotEnoughSlaves, in.NumPlayers, len(connected))
	}

	o.numPlayers = in.NumPlayers
	switch {
	case in.NumPlayers == 2:
		o.participants = slices.Clone(connected[:2])
	case o.mode == domain.ModeReaction:
		// The player picks a pod with SelectPod.
		o.participants = nil
	default:
		o.participants = slices.Clone(connected)
		if o.podLimit > 0 && len(o.participants) > o.podLimit {
			o.participants = o.participants[:o.podLimit]
		}
	}

	if o.mode == domain.ModeReaction {
		o.phase = PhaseReactionReady
		return nil, nil
	}
	if err := o.config().Validate(); err != nil {
		return nil, err
	}
	return o.startPlaying(roster, now), nil
}

func (o *Orchestrator) selectPod(in SelectPod, roster *domain.Roster) error {
	if o.phase != PhaseReactionReady || o.numPlayers != 1 {
		return fmt.Errorf("%w: select pod in %s", ErrInvalidInput, o.phase)
	}
	if !roster.IsConnected(in.Slave) {
		return fmt.Errorf("%w: pod %s is not connected", ErrNotEnoughSlaves, in.Slave)
	}
	o.participants = []domain.SlaveID{in.Slave}
	return nil
}

func (o *Orchestrator) startTest(now time.Time) ([]Effect, error) {
	if o.phase != PhaseReactionReady {
		return nil, fmt.Errorf("%w: start test in %s", ErrInvalidInput, o.phase)
	}
	if err := o.config().Validate(); err != nil {
		return nil, err
	}

	o.beginSession()
	o.startedAt = now
	o.phase = PhaseReactionCountdown
	o.countdown = ReactionCountdownFrom
	return []Effect{o.startTimer(TimerCountdown, TickInterval, true)}, nil
}

func (o *Orchestrator) startPlaying(roster *domain.Roster, now time.Time) []Effect {
	o.beginSession()
	o.startedAt = now
	o.phase = PhasePlaying
	o.remaining = o.durationSec

	effects := []Effect{
		SendCommand{Command: domain.StartGame(o.mode, o.durationSec, len(o.participants))},
		o.startTimer(TimerCountdown, TickInterval, true),
	}
	return append(effects, o.startRound(roster, now)...)
}

func (o *Orchestrator) beginSession() {
	o.scores = make(map[domain.SlaveID]int, len(o.participants))
	for _, id := range o.participants {
		o.scores[id] = 0
	}
	o.reactionMs = make(map[domain.SlaveID]int64)
	o.lastResult = nil
	o.record = nil
	o.startedAt = time.Time{}
	o.nextRound = 0
	o.round = round{}
}

// startRound lights pods for the next round. One player gets a random
// connected pod; two players get every connected participant.
func (o *Orchestrator) startRound(roster *domain.Roster, now time.Time) []Effect {
	var candidates []domain.SlaveID
	for _, id := range o.participants {
		if roster.IsConnected(id) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	lit := candidates
	if o.numPlayers == 1 && o.mode != domain.ModeReaction {
		lit = []domain.SlaveID{candidates[o.rng.IntN(len(candidates))]}
	}
	return o.light(lit, now)
}

func (o *Orchestrator) light(lit []domain.SlaveID, now time.Time) []Effect {
	o.round = round{
		number:  o.nextRound,
		pending: true,
		lit:     lit,
		litAt:   make(map[domain.SlaveID]time.Time, len(lit)),
		presses: make(map[domain.SlaveID]press, len(lit)),
	}
	o.nextRound++

	effects := make([]Effect, 0, len(lit))
	for i, id := range lit {
		delay := time.Duration(i) * StaggerDelay
		o.round.litAt[id] = now.Add(delay)
		effects = append(effects, SendCommand{Command: domain.LightOn(id), Delay: delay})
	}
	return effects
}

func (o *Orchestrator) timerFired(in TimerFired, roster *domain.Roster, now time.Time) []Effect {
	if in.Gen != o.gens[in.Kind] {
		return nil
	}

	switch in.Kind {
	case TimerResultClear:
		o.lastResult = nil
		return nil
	case TimerReactionDelay:
		if o.phase != PhaseReactionWait {
			return nil
		}

		o.phase = PhaseReacting
		return o.light(slices.Clone(o.participants), now)
	case TimerCountdown:
		switch o.phase {
		case PhasePlaying:
			o.remaining--
			if o.remaining <= 0 {
				return o.finish(now)
			}
			if o.round.pending {
				return nil
			}
			return o.startRound(roster, now)
		case PhaseReactionCountdown:
			o.countdown--
			if o.countdown > 0 {
				return nil
			}
			o.phase = PhaseReactionWait
			return []Effect{
				o.cancelTimer(TimerCountdown),
				o.startTimer(TimerReactionDelay, o.reactionDelay(), false),
			}
		}
	}
	return nil
}

func (o *Orchestrator) reactionDelay() time.Duration {
	span := (ReactionDelayMax - ReactionDelayMin).Milliseconds()
	return ReactionDelayMin + time.Duration(o.rng.Int64N(span+1))*time.Millisecond
}

func (o *Orchestrator) eventReceived(in EventReceived, roster *domain.Roster, now time.Time) []Effect {
	switch e := in.Event.(type) {
	case domain.PressedEvent:
		return o.pressed(e, in.At, now)
	case domain.LightOnEvent:
		// The hub confirms the light; the reaction clock starts there.
		if o.phase == PhaseReacting && o.round.isLit(e.Slave) {
			if _, done := o.round.presses[e.Slave]; !done {
				o.round.litAt[e.Slave] = in.At
			}
		}
	case domain.SlaveDisconnectedEvent:
		return o.dropLit(e.Slave, now)
	case domain.StatusEvent:
		var effects []Effect
		for _, id := range slices.Clone(o.round.lit) {
			if !roster.IsConnected(id) {
				effects = append(effects, o.dropLit(id, now)...)
			}
		}
		return effects
	}
	return nil
}

func (o *Orchestrator) pressed(e domain.PressedEvent, at, now time.Time) []Effect {
	if !o.round.isLit(e.Slave) {
		return nil
	}

	switch o.phase {
	case PhasePlaying:
		if prev, ok := o.round.presses[e.Slave]; ok && at.Sub(prev.at) < DebounceWindow {
			return nil
		}
		o.round.presses[e.Slave] = press{timeMs: e.TimeMs, at: at}
		if len(o.round.presses) < len(o.round.lit) {
			return nil
		}
		return o.resolveRound()
	case PhaseReacting:
		if _, ok := o.round.presses[e.Slave]; ok {
			return nil
		}
		ms := max(at.Sub(o.round.litAt[e.Slave]).Milliseconds(), 0)
		o.round.presses[e.Slave] = press{timeMs: ms, at: at}
		o.reactionMs[e.Slave] = ms
		if len(o.round.presses) < len(o.round.lit) {
			return nil
		}
		effects := o.resolveRound()
		return append(effects, o.finish(now)...)
	}
	return nil
}

// dropLit stops waiting for a pod that went away mid-round.
func (o *Orchestrator) dropLit(id domain.SlaveID, now time.Time) []Effect {
	if !o.round.isLit(id) || (o.phase != PhasePlaying && o.phase != PhaseReacting) {
		return nil
	}
	if _, done := o.round.presses[id]; done {
		return nil
	}

	o.round.lit = slices.DeleteFunc(slices.Clone(o.round.lit), func(lit domain.SlaveID) bool { return lit == id })
	if len(o.round.lit) == 0 {
		o.round.pending = false
		if o.phase == PhaseReacting {
			return o.finish(now)
		}
		return nil
	}
	if len(o.round.presses) < len(o.round.lit) {
		return nil
	}

	effects := o.resolveRound()
	if o.phase == PhaseReacting {
		effects = append(effects, o.finish(now)...)
	}
	return effects
}

// resolveRound awards the round. The lowest recorded time wins and equal
// times go to the lowest id; with a single lit pod that pod takes the point.
func (o *Orchestrator) resolveRound() []Effect {
	ids := slices.Sorted(maps.Keys(o.round.presses))

	winner := ids[0]
	for _, id := range ids[1:] {
		if o.round.presses[id].timeMs < o.round.presses[winner].timeMs {
			winner = id
		}
	}
	o.scores[winner]++

	times := make(map[domain.SlaveID]int64, len(ids))
	for _, id := range ids {
		times[id] = o.round.presses[id].timeMs
	}
	o.lastResult = &RoundResult{Round: o.round.number, Winner: winner, Times: times}
	o.round.pending = false

	return []Effect{o.startTimer(TimerResultClear, ResultClearAfter, false)}
}

func (o *Orchestrator) finish(now time.Time) []Effect {
	effects := o.stopAll()
	effects = append(effects, SendCommand{Command: domain.StopGame()})

	record := domain.SessionRecord{
		Timestamp:   now,
		GameType:    o.mode,
		DurationSec: o.playedSeconds(now),
		Players:     o.numPlayers,
		Scores:      maps.Clone(o.scores),
	}
	if winner, ok := domain.Winner(o.scores, o.participants); ok && o.scores[winner] > 0 {
		record.Winner = winner
		record.HasWinner = true
	}
	if len(o.reactionMs) > 0 {
		record.ReactionMs = maps.Clone(o.reactionMs)
	}

	o.record = &record
	o.phase = PhaseFinished
	return append(effects, SaveRecord{Record: record})
}

func (o *Orchestrator) playedSeconds(now time.Time) int {
	if o.phase == PhasePlaying {
		return o.durationSec - max(o.remaining, 0)
	}
	if o.startedAt.IsZero() {
		return 0
	}
	return int(now.Sub(o.startedAt).Round(time.Second) / time.Second)
}

// stopAll cancels every timer and pending send and turns off pods that are
// still lit.
func (o *Orchestrator) stopAll() []Effect {
	effects := []Effect{
		o.cancelTimer(TimerCountdown),
		o.cancelTimer(TimerReactionDelay),
		o.cancelTimer(TimerResultClear),
		CancelSends{},
	}
	if o.round.pending {
		for _, id := range o.round.lit {
			if _, pressed := o.round.presses[id]; !pressed {
				effects = append(effects, SendCommand{Command: domain.LightOff(id)})
			}
		}
	}
	o.round.pending = false
	return effects
}

func (o *Orchestrator) reset() []Effect {
	var effects []Effect
	if o.phase.Active() {
		effects = o.stopAll()
		effects = append(effects, SendCommand{Command: domain.StopGame()})
	} else {
		effects = []Effect{
			o.cancelTimer(TimerCountdown),
			o.cancelTimer(TimerReactionDelay),
			o.cancelTimer(TimerResultClear),
			CancelSends{},
		}
	}

	gens := o.gens
	*o = Orchestrator{rng: o.rng, phase: PhaseIdle, gens: gens}
	return effects
}

func (o *Orchestrator) startTimer(kind TimerKind, after time.Duration, repeat bool) Effect {
	o.gens[kind]++
	return StartTimer{Kind: kind, Gen: o.gens[kind], After: after, Repeat: repeat}
}

func (o *Orchestrator) cancelTimer(kind TimerKind) Effect {
	o.gens[kind]++
	return CancelTimer{Kind: kind}
}

func (o *Orchestrator) config() domain.SessionConfig {
	return domain.SessionConfig{
		Mode:           o.mode,
		DurationSec:    o.durationSec,
		NumPlayers:     o.numPlayers,
		ParticipantIDs: o.participants,
		PresetName:     o.presetName,
	}
}

// View copies the machine state for display.
func (o *Orchestrator) View() View {
	view := View{
		Phase:        o.phase,
		Mode:         o.mode,
		DurationSec:  o.durationSec,
		NumPlayers:   o.numPlayers,
		Participants: slices.Clone(o.participants),
		RemainingSec: o.remaining,
		Countdown:    o.countdown,
		Round:        o.round.number,
		Scores:       maps.Clone(o.scores),
		ReactionMs:   maps.Clone(o.reactionMs),
	}
	if o.round.pending {
		view.Lit = slices.Clone(o.round.lit)
	}
	if o.lastResult != nil {
		result := *o.lastResult
		result.Times = maps.Clone(o.lastResult.Times)
		view.LastResult = &result
	}
	if o.record != nil {
		record := *o.record
		view.Record = &record
	}
	return view
}
