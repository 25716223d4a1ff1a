package rooms

import (
	"errors"
	"sync"

	"github.com/remoteassist/relay/backend/model"
)

var (
	ErrRoomAlreadyHosted = errors.New("room already has a host")
	ErrRoomNotFound      = errors.New("room is not found")
)

// ConnectionRegistry is the slice of the registry the manager drives. The
// manager binds and unbinds connections inside its own critical section:
// join and leave settle membership and the registry as one step, so a join
// racing the sender's own disconnect can never strand a room whose host is
// already gone, and leave never misses membership the registry has not
// heard about yet.
type ConnectionRegistry interface {
	SetRoom(id, roomID string, role model.Role) error
	Unregister(id string) (model.Connection, bool)
}

type room struct {
	hostID  string
	viewers map[string]struct{}
}

// LeaveKind tells the caller what a Leave call did to the room.
type LeaveKind int

const (
	LeaveNoOp LeaveKind = iota
	LeaveViewerLeft
	LeaveTeardown
)

// LeaveResult carries the connections that must be notified: the host for
// LeaveViewerLeft, the remaining viewers for LeaveTeardown.
type LeaveResult struct {
	Kind    LeaveKind
	RoomID  string
	HostID  string
	Viewers []string
}

// Occupancy is a read-only snapshot of one room.
type Occupancy struct {
	RoomID      string `json:"room_id"`
	HostPresent bool   `json:"host_present"`
	ViewerCount int    `json:"viewer_count"`
}

// Manager owns the room map. Every compound check-and-mutate runs inside
// one critical section, so two concurrent host joins on the same id cannot
// both win.
type Manager struct {
	mx    *sync.Mutex
	conns ConnectionRegistry
	rooms map[string]*room
}

func NewManager(conns ConnectionRegistry) *Manager {
	return &Manager{
		mx:    &sync.Mutex{},
		conns: conns,
		rooms: make(map[string]*room),
	}
}

// JoinAsHost creates the room if absent and installs connID as its host.
// First writer wins; a repeat join from the same connection is a no-op
// success. The registry binding fails when the connection disconnected
// already, in which case no room is created.
func (m *Manager) JoinAsHost(roomID, connID string) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	rm, ok := m.rooms[roomID]
	if ok {
		if rm.hostID == connID {
			return nil
		}
		return ErrRoomAlreadyHosted
	}
	if err := m.conns.SetRoom(connID, roomID, model.RoleHost); err != nil {
		return err
	}
	m.rooms[roomID] = &room{
		hostID:  connID,
		viewers: make(map[string]struct{}),
	}
	return nil
}

// JoinAsViewer adds connID to an existing hosted room and returns the id of
// the room's host, so the caller can notify it. A viewer may only join a
// room whose host is present.
func (m *Manager) JoinAsViewer(roomID, connID string) (string, error) {
	m.mx.Lock()
	defer m.mx.Unlock()

	rm, ok := m.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}
	if rm.hostID == connID {
		// the host never doubles as its own viewer
		return rm.hostID, nil
	}
	if err := m.conns.SetRoom(connID, roomID, model.RoleViewer); err != nil {
		return "", err
	}
	rm.viewers[connID] = struct{}{}
	return rm.hostID, nil
}

// Leave unregisters the connection and removes it from whichever room it
// occupies, in one atomic step. Host departure deletes the whole room and
// names the orphaned viewers; viewer departure keeps the room alive and
// names the host. The second return is false when the connection was
// already gone, so a duplicate disconnect stays a quiet no-op.
func (m *Manager) Leave(connID string) (LeaveResult, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()

	conn, ok := m.conns.Unregister(connID)
	if !ok {
		return LeaveResult{Kind: LeaveNoOp}, false
	}
	if conn.RoomID == "" {
		return LeaveResult{Kind: LeaveNoOp}, true
	}

	rm, ok := m.rooms[conn.RoomID]
	if !ok {
		return LeaveResult{Kind: LeaveNoOp}, true
	}

	if rm.hostID == connID {
		viewers := make([]string, 0, len(rm.viewers))
		for id := range rm.viewers {
			viewers = append(viewers, id)
		}
		delete(m.rooms, conn.RoomID)
		return LeaveResult{
			Kind:    LeaveTeardown,
			RoomID:  conn.RoomID,
			Viewers: viewers,
		}, true
	}

	if _, ok = rm.viewers[connID]; !ok {
		return LeaveResult{Kind: LeaveNoOp}, true
	}
	delete(rm.viewers, connID)
	return LeaveResult{
		Kind:   LeaveViewerLeft,
		RoomID: conn.RoomID,
		HostID: rm.hostID,
	}, true
}

// MembersOf returns every current occupant of the room except excluding.
// An absent room yields nil.
func (m *Manager) MembersOf(roomID, excluding string) []string {
	m.mx.Lock()
	defer m.mx.Unlock()

	rm, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(rm.viewers)+1)
	if rm.hostID != excluding {
		members = append(members, rm.hostID)
	}
	for id := range rm.viewers {
		if id != excluding {
			members = append(members, id)
		}
	}
	return members
}

// Occupancy reports the room's current shape for the status API.
func (m *Manager) Occupancy(roomID string) (Occupancy, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()

	rm, ok := m.rooms[roomID]
	if !ok {
		return Occupancy{}, false
	}
	return Occupancy{
		RoomID:      roomID,
		HostPresent: rm.hostID != "",
		ViewerCount: len(rm.viewers),
	}, true
}
