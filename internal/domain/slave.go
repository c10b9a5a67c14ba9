package domain

import (
	"slices"
	"strconv"
)

// SlaveID is the integer address of a pod behind the master hub.
type SlaveID int

func (id SlaveID) String() string {
	return strconv.Itoa(int(id))
}

type SlaveInfo struct {
	ID             SlaveID
	Connected      bool
	Address        string
	LastEvent      string
	LastResponseMs int64
	HasResponse    bool
}

// SlaveStatus is one entry of a status snapshot sent by the hub.
type SlaveStatus struct {
	ID        SlaveID
	Connected bool
	Address   string
}

// Roster tracks every pod the hub has mentioned during a transport session.
// Entries are only ever created or updated from hub events.
type Roster struct {
	slaves map[SlaveID]SlaveInfo
}

func NewRoster() *Roster {
	return &Roster{slaves: make(map[SlaveID]SlaveInfo)}
}

// Apply folds one event into the roster and reports whether anything changed.
func (r *Roster) Apply(event Event) bool {
	switch e := event.(type) {
	case StatusEvent:
		return r.resync(e.Slaves)
	case SlaveConnectedEvent:
		return r.setConnected(e.Slave, true, e.Address)
	case SlaveDisconnectedEvent:
		return r.setConnected(e.Slave, false, "")
	case PressedEvent:
		info, ok := r.slaves[e.Slave]
		if !ok {
			return false
		}
		before := info
		info.LastEvent = string(EventPressed)
		info.LastResponseMs = e.TimeMs
		info.HasResponse = true
		r.slaves[e.Slave] = info
		return before != info
	default:
		return false
	}
}

// resync treats a snapshot as authoritative for connectivity. Ids missing from
// the snapshot stay in the roster as disconnected.
func (r *Roster) resync(snapshot []SlaveStatus) bool {
	changed := false
	seen := make(map[SlaveID]struct{}, len(snapshot))

	for _, status := range snapshot {
		seen[status.ID] = struct{}{}
		info, ok := r.slaves[status.ID]
		before := info
		info.ID = status.ID
		info.Connected = status.Connected
		if status.Address != "" {
			info.Address = status.Address
		}
		if !ok || before != info {
			changed = true
		}
		r.slaves[status.ID] = info
	}

	for id, info := range r.slaves {
		if _, ok := seen[id]; ok || !info.Connected {
			continue
		}
		info.Connected = false
		r.slaves[id] = info
		changed = true
	}

	return changed
}

func (r *Roster) setConnected(id SlaveID, connected bool, address string) bool {
	info, ok := r.slaves[id]
	before := info
	info.ID = id
	info.Connected = connected
	if address != "" {
		info.Address = address
	}
	info.LastEvent = connectivityEvent(connected)
	r.slaves[id] = info

	return !ok || before != info
}

func connectivityEvent(connected bool) string {
	if connected {
		return string(EventSlaveConnected)
	}
	return string(EventSlaveDisconnected)
}

func (r *Roster) Get(id SlaveID) (SlaveInfo, bool) {
	info, ok := r.slaves[id]
	return info, ok
}

func (r *Roster) IsConnected(id SlaveID) bool {
	info, ok := r.slaves[id]
	return ok && info.Connected
}

// Slaves returns a copy of every entry ordered by id.
func (r *Roster) Slaves() []SlaveInfo {
	out := make([]SlaveInfo, 0, len(r.slaves))
	for _, info := range r.slaves {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b SlaveInfo) int { return int(a.ID) - int(b.ID) })
	return out
}

// Connected returns the ids of connected pods in ascending order.
func (r *Roster) Connected() []SlaveID {
	ids := make([]SlaveID, 0, len(r.slaves))
	for id, info := range r.slaves {
		if info.Connected {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Roster) ConnectedCount() int {
	count := 0
	for _, info := range r.slaves {
		if info.Connected {
			count++
		}
	}
	return count
}

func (r *Roster) Len() int {
	return len(r.slaves)
}
