package domain

type EventKind string

const (
	EventStatus            EventKind = "status"
	EventSlaveConnected    EventKind = "slave_connected"
	EventSlaveDisconnected EventKind = "slave_disconnected"
	EventPressed           EventKind = "pressed"
	EventLightOn           EventKind = "light_on"
)

// Event is a hub notification. The set of implementations is closed to this
// package.
type Event interface {
	Kind() EventKind
	isEvent()
}

type StatusEvent struct {
	Slaves []SlaveStatus
}

type SlaveConnectedEvent struct {
	Slave   SlaveID
	Address string
}

type SlaveDisconnectedEvent struct {
	Slave SlaveID
}

// PressedEvent carries the response time measured by the pod, in ms.
type PressedEvent struct {
	Slave  SlaveID
	TimeMs int64
}

type LightOnEvent struct {
	Slave SlaveID
}

func (StatusEvent) Kind() EventKind            { return EventStatus }
func (SlaveConnectedEvent) Kind() EventKind    { return EventSlaveConnected }
func (SlaveDisconnectedEvent) Kind() EventKind { return EventSlaveDisconnected }
func (PressedEvent) Kind() EventKind           { return EventPressed }
func (LightOnEvent) Kind() EventKind           { return EventLightOn }

func (StatusEvent) isEvent()            {}
func (SlaveConnectedEvent) isEvent()    {}
func (SlaveDisconnectedEvent) isEvent() {}
func (PressedEvent) isEvent()           {}
func (LightOnEvent) isEvent()           {}
