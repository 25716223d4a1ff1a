package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/remoteassist/relay/backend/model"
	"github.com/remoteassist/relay/backend/router"
	"github.com/rs/zerolog"
)

const (
	defaultFwdTimeout = time.Second
)

type Router interface {
	Route(env model.Envelope, sender string) []router.Outbound
}

// Switch owns the wire table: one RX/TX channel pair per live connection.
// Inbound envelopes are handed to the router and the resulting outbound set
// is pushed onto the targets' TX channels. A target that does not drain its
// wire within the forward timeout is treated as dead and skipped, so one
// stuck endpoint can never stall the relay.
type Switch struct {
	logger zerolog.Logger
	router Router
	mx     *sync.RWMutex
	wires  map[string]model.Wire
}

func NewSwitch(rt Router, logger *zerolog.Logger) *Switch {
	return &Switch{
		logger: logger.With().Str("component", "switch").Logger(),
		router: rt,
		mx:     &sync.RWMutex{},
		wires:  make(map[string]model.Wire),
	}
}

// Attach registers the connection's wire and starts forwarding its inbound
// envelopes until ctx is canceled.
func (sw *Switch) Attach(ctx context.Context, connID string, wire model.Wire) {
	sw.mx.Lock()
	sw.wires[connID] = wire
	sw.mx.Unlock()

	sw.logger.Debug().Str("connID", connID).Msg("wire attached")
	go sw.forwardEnvelopes(ctx, connID, wire.RX)
}

// Detach drops the connection's wire. Detaching an unknown id is a no-op.
func (sw *Switch) Detach(connID string) {
	sw.mx.Lock()
	delete(sw.wires, connID)
	sw.mx.Unlock()

	sw.logger.Debug().Str("connID", connID).Msg("wire detached")
}

func (sw *Switch) forwardEnvelopes(ctx context.Context, connID string, rx <-chan model.Envelope) {
fwdLoop:
	for {
		select {
		case <-ctx.Done():
			break fwdLoop
		case env := <-rx:
			for _, out := range sw.router.Route(env, connID) {
				if canceled := sw.Deliver(ctx, out.Target, out.Env); canceled {
					break fwdLoop
				}
			}
		}
	}
}

// Deliver pushes one envelope onto the target's wire. The envelope is
// dropped when the target is gone already (torn down by a concurrent
// disconnect) or does not accept it in time. Returns true when ctx was
// canceled mid-send.
func (sw *Switch) Deliver(ctx context.Context, target string, env model.Envelope) bool {
	logger := sw.logger.With().
		Str("type", env.Type).
		Str("dst", target).Logger()

	sw.mx.RLock()
	wire, ok := sw.wires[target]
	sw.mx.RUnlock()
	if !ok {
		logger.Debug().Msg("cannot forward, dst not found")
		return false
	}

	var canceled bool
	tCh := time.NewTimer(defaultFwdTimeout)
	select {
	case <-ctx.Done():
		canceled = true
	case <-tCh.C:
		logger.Error().Msg("dead endpoint")
	case wire.TX <- env:
		logger.Debug().Msg("envelope is forwarded")
	}
	tCh.Stop()
	return canceled
}
