package router

import (
	"errors"
	"time"

	"github.com/remoteassist/relay/backend/model"
	"github.com/remoteassist/relay/backend/rooms"
	"github.com/rs/zerolog"
)

type (
	RoomManager interface {
		JoinAsHost(roomID, connID string) error
		JoinAsViewer(roomID, connID string) (string, error)
		MembersOf(roomID, excluding string) []string
	}

	ConnectionRegistry interface {
		Lookup(id string) (model.Connection, bool)
	}

	// Outbound is one envelope addressed to one connection.
	Outbound struct {
		Target string
		Env    model.Envelope
	}

	// Router turns an inbound envelope into the set of outbound envelopes
	// it produces. It holds no state of its own; everything is resolved
	// against the registry and the room manager at call time.
	Router struct {
		rooms  RoomManager
		reg    ConnectionRegistry
		logger zerolog.Logger
	}

	Config struct {
		Rooms    RoomManager
		Registry ConnectionRegistry
		Logger   *zerolog.Logger
	}
)

func NewRouter(cfg Config) *Router {
	return &Router{
		rooms:  cfg.Rooms,
		reg:    cfg.Registry,
		logger: cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Route processes one envelope from sender. Malformed envelopes and
// envelopes from connections that are not in the target room are dropped
// silently: those are races with a concurrent disconnect, not errors.
func (rt *Router) Route(env model.Envelope, sender string) []Outbound {
	if !env.Valid() {
		rt.logger.Debug().
			Str("type", env.Type).
			Str("sender", sender).
			Msg("dropping malformed envelope")
		return nil
	}

	if env.Type == model.KindJoinRoom {
		return rt.join(env, sender)
	}
	return rt.relay(env, sender)
}

func (rt *Router) join(env model.Envelope, sender string) []Outbound {
	logger := rt.logger.With().
		Str("roomID", env.RoomID).
		Str("sender", sender).
		Str("role", env.Role).Logger()

	conn, ok := rt.reg.Lookup(sender)
	if !ok {
		// join racing the sender's own disconnect
		return nil
	}
	if conn.RoomID != "" {
		// a connection holds at most one room; repeat joins are no-ops
		if conn.RoomID != env.RoomID {
			logger.Debug().Str("current", conn.RoomID).Msg("connection already in a room, dropping join")
		}
		return nil
	}

	switch model.Role(env.Role) {
	case model.RoleHost:
		if err := rt.rooms.JoinAsHost(env.RoomID, sender); err != nil {
			if errors.Is(err, rooms.ErrRoomAlreadyHosted) {
				logger.Debug().Msg("room already hosted")
				return []Outbound{{
					Target: sender,
					Env:    model.Envelope{Type: model.KindRoomAlreadyHosted, RoomID: env.RoomID},
				}}
			}
			logger.Debug().Err(err).Msg("host gone before join settled")
			return nil
		}
		logger.Debug().Msg("host joined")
		return nil

	case model.RoleViewer:
		hostID, err := rt.rooms.JoinAsViewer(env.RoomID, sender)
		if err != nil {
			if errors.Is(err, rooms.ErrRoomNotFound) {
				logger.Debug().Msg("room not found")
				return []Outbound{{
					Target: sender,
					Env:    model.Envelope{Type: model.KindRoomNotFound, RoomID: env.RoomID},
				}}
			}
			logger.Debug().Err(err).Msg("viewer gone before join settled")
			return nil
		}
		logger.Debug().Str("hostID", hostID).Msg("viewer joined")
		if hostID == sender {
			return nil
		}
		return []Outbound{{
			Target: hostID,
			Env:    model.Envelope{Type: model.KindUserJoined, RoomID: env.RoomID},
		}}
	}
	return nil
}

func (rt *Router) relay(env model.Envelope, sender string) []Outbound {
	conn, ok := rt.reg.Lookup(sender)
	if !ok || conn.RoomID != env.RoomID {
		// sender disconnected or never joined this room
		rt.logger.Debug().
			Str("type", env.Type).
			Str("roomID", env.RoomID).
			Str("sender", sender).
			Msg("dropping envelope from non-member")
		return nil
	}

	if env.Type == model.KindChat && env.Ts == 0 {
		env.Ts = time.Now().UnixMilli()
	}
	env.From = sender

	targets := rt.rooms.MembersOf(env.RoomID, sender)
	if len(targets) == 0 {
		return nil
	}
	out := make([]Outbound, 0, len(targets))
	for _, target := range targets {
		out = append(out, Outbound{Target: target, Env: env})
	}
	return out
}
