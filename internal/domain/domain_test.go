package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterStatusResyncIsIdempotent(t *testing.T) {
	roster := NewRoster()
	snapshot := StatusEvent{Slaves: []SlaveStatus{
		{ID: 1, Connected: true, Address: "aa:01"},
		{ID: 2, Connected: false},
		{ID: 3, Connected: true, Address: "aa:03"},
	}}

	require.True(t, roster.Apply(snapshot))
	first := roster.Slaves()

	assert.False(t, roster.Apply(snapshot))
	assert.Equal(t, first, roster.Slaves())
	assert.Equal(t, []SlaveID{1, 3}, roster.Connected())
}

func TestRosterStatusKeepsMissingEntriesAsDisconnected(t *testing.T) {
	roster := NewRoster()
	roster.Apply(SlaveConnectedEvent{Slave: 7, Address: "aa:07"})
	roster.Apply(StatusEvent{Slaves: []SlaveStatus{{ID: 1, Connected: true}}})

	info, ok := roster.Get(7)
	require.True(t, ok)
	assert.False(t, info.Connected)
	assert.Equal(t, "aa:07", info.Address)
	assert.Equal(t, 2, roster.Len())
	assert.Equal(t, 1, roster.ConnectedCount())
}

func TestRosterConnectDisconnectCreatesEntry(t *testing.T) {
	roster := NewRoster()

	require.True(t, roster.Apply(SlaveDisconnectedEvent{Slave: 4}))
	info, ok := roster.Get(4)
	require.True(t, ok)
	assert.False(t, info.Connected)

	require.True(t, roster.Apply(SlaveConnectedEvent{Slave: 4, Address: "aa:04"}))
	assert.True(t, roster.IsConnected(4))
}

func TestRosterPressedUpdatesKnownSlaveOnly(t *testing.T) {
	roster := NewRoster()
	roster.Apply(SlaveConnectedEvent{Slave: 2, Address: "aa:02"})

	assert.False(t, roster.Apply(PressedEvent{Slave: 9, TimeMs: 120}))
	_, ok := roster.Get(9)
	assert.False(t, ok)

	require.True(t, roster.Apply(PressedEvent{Slave: 2, TimeMs: 321}))
	info, _ := roster.Get(2)
	assert.True(t, info.Connected)
	assert.Equal(t, "pressed", info.LastEvent)
	assert.Equal(t, int64(321), info.LastResponseMs)
}

func TestRosterLightOnIsNotARosterChange(t *testing.T) {
	roster := NewRoster()
	roster.Apply(SlaveConnectedEvent{Slave: 2, Address: "aa:02"})
	before := roster.Slaves()

	assert.False(t, roster.Apply(LightOnEvent{Slave: 2}))
	assert.Equal(t, before, roster.Slaves())
}

func TestWinner(t *testing.T) {
	tests := []struct {
		name         string
		scores       map[SlaveID]int
		participants []SlaveID
		want         SlaveID
		wantFound    bool
	}{
		{name: "strictly highest", scores: map[SlaveID]int{3: 2, 5: 4}, participants: []SlaveID{3, 5}, want: 5, wantFound: true},
		{name: "tie goes to lowest id", scores: map[SlaveID]int{3: 4, 5: 4}, participants: []SlaveID{5, 3}, want: 3, wantFound: true},
		{name: "no points", scores: map[SlaveID]int{}, participants: []SlaveID{8, 2}, want: 2, wantFound: true},
		{name: "no participants", scores: map[SlaveID]int{1: 1}, participants: nil, wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Winner(tt.scores, tt.participants)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseGameMode(t *testing.T) {
	mode, err := ParseGameMode(" Reaction ")
	require.NoError(t, err)
	assert.Equal(t, ModeReaction, mode)

	mode, err = ParseGameMode("battle")
	require.NoError(t, err)
	assert.Equal(t, ModeOneVOne, mode)

	_, err = ParseGameMode("tennis")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestSessionConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  SessionConfig
		wantErr error
	}{
		{name: "valid free play", config: SessionConfig{Mode: ModeFreePlay, DurationSec: 30, NumPlayers: 1, ParticipantIDs: []SlaveID{1, 2}}},
		{name: "valid reaction without duration", config: SessionConfig{Mode: ModeReaction, NumPlayers: 1, ParticipantIDs: []SlaveID{1}}},
		{name: "1v1 with one player", config: SessionConfig{Mode: ModeOneVOne, DurationSec: 30, NumPlayers: 1, ParticipantIDs: []SlaveID{1}}, wantErr: ErrInvalidPlayers},
		{name: "three players", config: SessionConfig{Mode: ModeFreePlay, DurationSec: 30, NumPlayers: 3, ParticipantIDs: []SlaveID{1, 2, 3}}, wantErr: ErrInvalidPlayers},
		{name: "two players one pod", config: SessionConfig{Mode: ModeOneVOne, DurationSec: 30, NumPlayers: 2, ParticipantIDs: []SlaveID{1}}, wantErr: ErrNoParticipants},
		{name: "no pods", config: SessionConfig{Mode: ModeFreePlay, DurationSec: 30, NumPlayers: 1}, wantErr: ErrNoParticipants},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSessionRecordStats(t *testing.T) {
	record := SessionRecord{
		Scores:     map[SlaveID]int{1: 3, 2: 5},
		ReactionMs: map[SlaveID]int64{1: 412, 2: 298},
	}

	assert.Equal(t, 8, record.TotalPresses())
	fastest, ok := record.FastestReaction()
	require.True(t, ok)
	assert.Equal(t, int64(298), fastest)

	_, ok = SessionRecord{}.FastestReaction()
	assert.False(t, ok)
}

func TestPresetDefaultsAndValidate(t *testing.T) {
	preset := Preset{Name: "  Warmup  "}
	preset.ApplyDefaults()

	assert.Equal(t, Preset{Name: "Warmup", DurationSec: 30, Pods: 2}, preset)
	assert.NoError(t, preset.Validate())
	assert.ErrorContains(t, Preset{DurationSec: 10, Pods: 1}.Validate(), "name is required")
}
