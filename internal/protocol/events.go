package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/neoxalle/nx/internal/domain"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrInvalidEvent = errors.New("invalid event")
)

type wireEvent struct {
	Event   string        `json:"event"`
	Slave   *int          `json:"slave"`
	Address *string       `json:"address"`
	Time    *int64        `json:"time"`
	Slaves  *[]wireStatus `json:"slaves"`
}

type wireStatus struct {
	ID        *int   `json:"id"`
	Connected bool   `json:"connected"`
	Address   string `json:"address"`
}

// ParseEvent validates one frame and builds the matching domain event.
func ParseEvent(frame []byte) (domain.Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(frame, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch domain.EventKind(wire.Event) {
	case domain.EventStatus:
		return newStatusEvent(wire)
	case domain.EventSlaveConnected:
		id, err := slaveID(wire)
		if err != nil {
			return nil, err
		}
		if wire.Address == nil {
			return nil, fmt.Errorf("%w: slave_connected without address", ErrInvalidEvent)
		}
		return domain.SlaveConnectedEvent{Slave: id, Address: *wire.Address}, nil
	case domain.EventSlaveDisconnected:
		id, err := slaveID(wire)
		if err != nil {
			return nil, err
		}
		return domain.SlaveDisconnectedEvent{Slave: id}, nil
	case domain.EventPressed:
		id, err := slaveID(wire)
		if err != nil {
			return nil, err
		}
		if wire.Time == nil || *wire.Time < 0 {
			return nil, fmt.Errorf("%w: pressed without a valid time", ErrInvalidEvent)
		}
		return domain.PressedEvent{Slave: id, TimeMs: *wire.Time}, nil
	case domain.EventLightOn:
		id, err := slaveID(wire)
		if err != nil {
			return nil, err
		}
		return domain.LightOnEvent{Slave: id}, nil
	case "":
		return nil, fmt.Errorf("%w: missing event tag", ErrUnknownEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, wire.Event)
	}
}

func newStatusEvent(wire wireEvent) (domain.Event, error) {
	if wire.Slaves == nil {
		return nil, fmt.Errorf("%w: status without slaves", ErrInvalidEvent)
	}

	slaves := make([]domain.SlaveStatus, 0, len(*wire.Slaves))
	for i, entry := range *wire.Slaves {
		if entry.ID == nil || *entry.ID < 0 {
			return nil, fmt.Errorf("%w: status entry %d has no valid id", ErrInvalidEvent, i)
		}
		slaves = append(slaves, domain.SlaveStatus{
			ID:        domain.SlaveID(*entry.ID),
			Connected: entry.Connected,
			Address:   entry.Address,
		})
	}

	return domain.StatusEvent{Slaves: slaves}, nil
}

func slaveID(wire wireEvent) (domain.SlaveID, error) {
	if wire.Slave == nil {
		return 0, fmt.Errorf("%w: %s without slave", ErrInvalidEvent, wire.Event)
	}
	if *wire.Slave < 0 {
		return 0, fmt.Errorf("%w: negative slave id %d", ErrInvalidEvent, *wire.Slave)
	}
	return domain.SlaveID(*wire.Slave), nil
}

// EncodeEvent renders an event in its wire form. The simulated hub uses it
// to produce notifications.
func EncodeEvent(event domain.Event) (string, error) {
	var payload any
	switch e := event.(type) {
	case domain.StatusEvent:
		slaves := make([]wireStatusOut, 0, len(e.Slaves))
		for _, s := range e.Slaves {
			slaves = append(slaves, wireStatusOut{ID: int(s.ID), Connected: s.Connected, Address: s.Address})
		}
		payload = struct {
			Event  string          `json:"event"`
			Slaves []wireStatusOut `json:"slaves"`
		}{string(domain.EventStatus), slaves}
	case domain.SlaveConnectedEvent:
		payload = struct {
			Event   string `json:"event"`
			Slave   int    `json:"slave"`
			Address string `json:"address"`
		}{string(domain.EventSlaveConnected), int(e.Slave), e.Address}
	case domain.SlaveDisconnectedEvent:
		payload = slaveOnly{string(domain.EventSlaveDisconnected), int(e.Slave)}
	case domain.PressedEvent:
		payload = struct {
			Event string `json:"event"`
			Slave int    `json:"slave"`
			Time  int64  `json:"time"`
		}{string(domain.EventPressed), int(e.Slave), e.TimeMs}
	case domain.LightOnEvent:
		payload = slaveOnly{string(domain.EventLightOn), int(e.Slave)}
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return string(data), nil
}

type wireStatusOut struct {
	ID        int    `json:"id"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

type slaveOnly struct {
	Event string `json:"event"`
	Slave int    `json:"slave"`
}
