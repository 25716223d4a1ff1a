package service

import (
	"context"
	"sync"

	"github.com/remoteassist/relay/backend/model"
	"github.com/remoteassist/relay/backend/rooms"
	"github.com/rs/zerolog"
)

type (
	Registry interface {
		Register() string
	}

	RoomManager interface {
		Leave(connID string) (rooms.LeaveResult, bool)
	}

	Switch interface {
		Attach(ctx context.Context, connID string, wire model.Wire)
		Detach(connID string)
		Deliver(ctx context.Context, target string, env model.Envelope) bool
	}

	// Service bridges transport-level connect/disconnect events to the room
	// manager and turns the resulting membership changes into notifications
	// for the connections they affect.
	Service struct {
		reg    Registry
		rooms  RoomManager
		sw     Switch
		logger zerolog.Logger
	}

	Config struct {
		Registry    Registry
		RoomManager RoomManager
		Switch      Switch
		Logger      *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	return &Service{
		reg:    cfg.Registry,
		rooms:  cfg.RoomManager,
		sw:     cfg.Switch,
		logger: cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// Connect registers a fresh connection, attaches its wire to the switch and
// returns the assigned connection id. The connection holds no room until a
// join-room envelope arrives on the wire.
func (svc *Service) Connect(ctx context.Context, wire model.Wire) string {
	connID := svc.reg.Register()
	svc.sw.Attach(ctx, connID, wire)
	svc.logger.Debug().
		Str("connID", connID).
		Msg("session connected")
	return connID
}

// Disconnect removes the connection from its room and the registry. A host
// departure tears the room down and sends session-ended to every orphaned
// viewer; a viewer departure sends peer-left to the host. Disconnecting a
// connection that is already gone is a no-op.
func (svc *Service) Disconnect(ctx context.Context, connID string) {
	// Leave unregisters the connection and settles its membership in one
	// step, so concurrent disconnects of the same id resolve to exactly one
	// winner.
	result, ok := svc.rooms.Leave(connID)
	if !ok {
		svc.logger.Debug().
			Str("connID", connID).
			Msg("connection already gone")
		return
	}
	svc.sw.Detach(connID)

	switch result.Kind {
	case rooms.LeaveTeardown:
		// Each viewer gets its own delivery budget. One dead wire must not
		// eat the whole teardown deadline.
		wg := &sync.WaitGroup{}
		for _, viewerID := range result.Viewers {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				svc.sw.Deliver(ctx, id, model.Envelope{
					Type:   model.KindSessionEnded,
					RoomID: result.RoomID,
				})
			}(viewerID)
		}
		wg.Wait()
		svc.logger.Debug().
			Str("connID", connID).
			Str("roomID", result.RoomID).
			Int("viewers", len(result.Viewers)).
			Msg("host left, room torn down")
	case rooms.LeaveViewerLeft:
		svc.sw.Deliver(ctx, result.HostID, model.Envelope{
			Type:   model.KindPeerLeft,
			RoomID: result.RoomID,
		})
		svc.logger.Debug().
			Str("connID", connID).
			Str("roomID", result.RoomID).
			Msg("viewer left")
	}

	svc.logger.Debug().
		Str("connID", connID).
		Msg("session disconnected")
}
