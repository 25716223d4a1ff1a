package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/remoteassist/relay/backend/model"
)

var (
	ErrNotFound = errors.New("connection is not registered")
)

// Registry tracks every live connection and the room/role it occupies.
// It is the only owner of Connection records.
type Registry struct {
	mx    *sync.Mutex
	conns map[string]*model.Connection
}

func New() *Registry {
	return &Registry{
		mx:    &sync.Mutex{},
		conns: make(map[string]*model.Connection),
	}
}

// Register creates a record for a new connection and returns its id.
func (r *Registry) Register() string {
	id := uuid.NewString()
	r.mx.Lock()
	defer r.mx.Unlock()
	r.conns[id] = &model.Connection{ID: id}
	return id
}

// Lookup returns a copy of the connection's current state.
func (r *Registry) Lookup(id string) (model.Connection, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return model.Connection{}, false
	}
	return *conn, true
}

// SetRoom records a successful join. A connection belongs to at most one
// room at a time.
func (r *Registry) SetRoom(id, roomID string, role model.Role) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return ErrNotFound
	}
	conn.RoomID = roomID
	conn.Role = role
	return nil
}

// Unregister removes the connection and returns its prior state. Removing
// an id that is already gone reports ok=false instead of failing, so a
// duplicate disconnect is a harmless no-op.
func (r *Registry) Unregister(id string) (model.Connection, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return model.Connection{}, false
	}
	delete(r.conns, id)
	return *conn, true
}
