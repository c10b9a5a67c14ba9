package protocol

import (
	"testing"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    domain.Event
		wantErr error
	}{
		{
			name:  "status",
			frame: `{"event":"status","slaves":[{"id":1,"connected":true,"address":"aa:01"},{"id":2,"connected":false}]}`,
			want: domain.StatusEvent{Slaves: []domain.SlaveStatus{
				{ID: 1, Connected: true, Address: "aa:01"},
				{ID: 2, Connected: false},
			}},
		},
		{name: "empty status", frame: `{"event":"status","slaves":[]}`, want: domain.StatusEvent{Slaves: []domain.SlaveStatus{}}},
		{name: "slave connected", frame: `{"event":"slave_connected","slave":3,"address":"aa:03"}`, want: domain.SlaveConnectedEvent{Slave: 3, Address: "aa:03"}},
		{name: "slave disconnected", frame: `{"event":"slave_disconnected","slave":3}`, want: domain.SlaveDisconnectedEvent{Slave: 3}},
		{name: "pressed", frame: `{"event":"pressed","slave":1,"time":350}`, want: domain.PressedEvent{Slave: 1, TimeMs: 350}},
		{name: "light on", frame: `{"event":"light_on","slave":0}`, want: domain.LightOnEvent{Slave: 0}},
		{name: "unknown tag", frame: `{"event":"battery","slave":1}`, wantErr: ErrUnknownEvent},
		{name: "missing tag", frame: `{"slave":1}`, wantErr: ErrUnknownEvent},
		{name: "pressed without time", frame: `{"event":"pressed","slave":1}`, wantErr: ErrInvalidEvent},
		{name: "pressed without slave", frame: `{"event":"pressed","time":10}`, wantErr: ErrInvalidEvent},
		{name: "negative slave", frame: `{"event":"light_on","slave":-1}`, wantErr: ErrInvalidEvent},
		{name: "connected without address", frame: `{"event":"slave_connected","slave":3}`, wantErr: ErrInvalidEvent},
		{name: "status without slaves", frame: `{"event":"status"}`, wantErr: ErrInvalidEvent},
		{name: "status entry without id", frame: `{"event":"status","slaves":[{"connected":true}]}`, wantErr: ErrInvalidEvent},
		{name: "wrong field type", frame: `{"event":"pressed","slave":"one","time":5}`, wantErr: ErrInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.frame))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  domain.Command
		want string
	}{
		{name: "scan", cmd: domain.ScanSlaves(), want: `{"command":"scan_slaves"}`},
		{name: "start", cmd: domain.StartGame(domain.ModeOneVOne, 30, 2), want: `{"command":"start_game","mode":"1v1","duration":30,"slaves":2}`},
		{name: "light on", cmd: domain.LightOn(3), want: `{"command":"light_on","slave":3,"color":"random"}`},
		{name: "light on default color", cmd: domain.Command{Name: domain.CommandLightOn, Slave: 4}, want: `{"command":"light_on","slave":4,"color":"random"}`},
		{name: "light off", cmd: domain.LightOff(3), want: `{"command":"light_off","slave":3}`},
		{name: "stop", cmd: domain.StopGame(), want: `{"command":"stop_game"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			parsed, err := ParseCommand(got)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd.Name, parsed.Name)
		})
	}

	_, err := EncodeCommand(domain.Command{Name: "reboot"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestEncodeEventParsesBack(t *testing.T) {
	events := []domain.Event{
		domain.StatusEvent{Slaves: []domain.SlaveStatus{{ID: 1, Connected: true, Address: "aa:01"}}},
		domain.SlaveConnectedEvent{Slave: 2, Address: "aa:02"},
		domain.SlaveDisconnectedEvent{Slave: 2},
		domain.PressedEvent{Slave: 1, TimeMs: 250},
		domain.LightOnEvent{Slave: 1},
	}

	for _, event := range events {
		text, err := EncodeEvent(event)
		require.NoError(t, err)

		parsed, err := ParseEvent([]byte(text))
		require.NoError(t, err)
		assert.Equal(t, event, parsed)
	}
}
