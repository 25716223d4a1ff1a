package router

import (
	"encoding/json"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/remoteassist/relay/backend/model"
	"github.com/remoteassist/relay/backend/registry"
	"github.com/remoteassist/relay/backend/rooms"
	"github.com/rs/zerolog"
)

func setup() (*Router, *registry.Registry, *rooms.Manager) {
	logger := zerolog.Nop()
	reg := registry.New()
	rm := rooms.NewManager(reg)
	rt := NewRouter(Config{
		Rooms:    rm,
		Registry: reg,
		Logger:   &logger,
	})
	return rt, reg, rm
}

func fptr(v float64) *float64 { return &v }

func join(t *testing.T, rt *Router, connID, roomID string, role model.Role) []Outbound {
	t.Helper()
	return rt.Route(model.Envelope{
		Type:   model.KindJoinRoom,
		RoomID: roomID,
		Role:   string(role),
	}, connID)
}

func TestHostJoinEmitsNothing(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()

	if outs := join(t, rt, host, "482913", model.RoleHost); len(outs) != 0 {
		t.Fatalf("host join should emit nothing, got %s", spew.Sdump(outs))
	}

	conn, ok := reg.Lookup(host)
	if !ok || conn.RoomID != "482913" || conn.Role != model.RoleHost {
		t.Errorf("registry not updated after host join: %+v", conn)
	}
}

func TestViewerJoinNotifiesHost(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()
	viewer := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)

	outs := join(t, rt, viewer, "482913", model.RoleViewer)
	if len(outs) != 1 {
		t.Fatalf("viewer join should emit one envelope, got %s", spew.Sdump(outs))
	}
	if outs[0].Target != host || outs[0].Env.Type != model.KindUserJoined {
		t.Errorf("expected user-joined to host, got %s", spew.Sdump(outs[0]))
	}
}

func TestViewerJoinWithoutHost(t *testing.T) {
	rt, reg, rm := setup()
	viewer := reg.Register()

	outs := join(t, rt, viewer, "482913", model.RoleViewer)
	if len(outs) != 1 || outs[0].Target != viewer || outs[0].Env.Type != model.KindRoomNotFound {
		t.Fatalf("expected room-not-found back to sender, got %s", spew.Sdump(outs))
	}
	if _, ok := rm.Occupancy("482913"); ok {
		t.Error("failed viewer join must not create a room")
	}
	if conn, _ := reg.Lookup(viewer); conn.RoomID != "" {
		t.Errorf("failed join must not bind the connection to a room: %+v", conn)
	}
}

func TestSecondHostGetsRoomAlreadyHosted(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()
	late := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)

	outs := join(t, rt, late, "482913", model.RoleHost)
	if len(outs) != 1 || outs[0].Target != late || outs[0].Env.Type != model.KindRoomAlreadyHosted {
		t.Fatalf("expected room-already-hosted back to sender, got %s", spew.Sdump(outs))
	}
}

func TestSignalRelayedToOtherMembersOnly(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()
	v1 := reg.Register()
	v2 := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)
	join(t, rt, v1, "482913", model.RoleViewer)
	join(t, rt, v2, "482913", model.RoleViewer)

	payload := json.RawMessage(`{"type":"offer","payload":"X"}`)
	outs := rt.Route(model.Envelope{
		Type:   model.KindSignal,
		RoomID: "482913",
		Data:   payload,
	}, host)

	if len(outs) != 2 {
		t.Fatalf("signal from host should reach both viewers, got %s", spew.Sdump(outs))
	}
	seen := map[string]bool{}
	for _, out := range outs {
		if out.Target == host {
			t.Error("signal must never be relayed back to the sender")
		}
		seen[out.Target] = true
		if out.Env.From != host {
			t.Errorf("relayed envelope must carry sender id, got %q", out.Env.From)
		}
		if string(out.Env.Data) != string(payload) {
			t.Errorf("negotiation payload modified in flight: %s", out.Env.Data)
		}
	}
	if !seen[v1] || !seen[v2] {
		t.Errorf("signal targets = %v, want both viewers", seen)
	}

	// from a viewer it reaches host plus the other viewer
	outs = rt.Route(model.Envelope{
		Type:   model.KindSignal,
		RoomID: "482913",
		Data:   payload,
	}, v1)
	if len(outs) != 2 {
		t.Fatalf("signal from viewer should reach host and other viewer, got %s", spew.Sdump(outs))
	}
	for _, out := range outs {
		if out.Target == v1 {
			t.Error("signal must never be relayed back to the sender")
		}
	}
}

func TestPointerRelayAndValidation(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()
	viewer := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)
	join(t, rt, viewer, "482913", model.RoleViewer)

	outs := rt.Route(model.Envelope{
		Type:   model.KindPointer,
		RoomID: "482913",
		X:      fptr(0.25),
		Y:      fptr(0.75),
	}, viewer)
	if len(outs) != 1 || outs[0].Target != host {
		t.Fatalf("pointer should reach the host, got %s", spew.Sdump(outs))
	}
	if *outs[0].Env.X != 0.25 || *outs[0].Env.Y != 0.75 {
		t.Errorf("pointer coordinates modified in flight: %s", spew.Sdump(outs[0].Env))
	}

	// missing and out-of-range coordinates are dropped
	if outs = rt.Route(model.Envelope{Type: model.KindPointer, RoomID: "482913", X: fptr(0.5)}, viewer); outs != nil {
		t.Errorf("pointer without y should be dropped, got %s", spew.Sdump(outs))
	}
	if outs = rt.Route(model.Envelope{Type: model.KindPointer, RoomID: "482913", X: fptr(2), Y: fptr(0.5)}, viewer); outs != nil {
		t.Errorf("pointer out of range should be dropped, got %s", spew.Sdump(outs))
	}
}

func TestChatRelayStampsTimestamp(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()
	viewer := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)
	join(t, rt, viewer, "482913", model.RoleViewer)

	outs := rt.Route(model.Envelope{
		Type:   model.KindChat,
		RoomID: "482913",
		Text:   "can you see my screen?",
		Role:   "host",
	}, host)
	if len(outs) != 1 || outs[0].Target != viewer {
		t.Fatalf("chat should reach the viewer, got %s", spew.Sdump(outs))
	}
	got := outs[0].Env
	if got.Text != "can you see my screen?" || got.Role != "host" {
		t.Errorf("chat payload modified in flight: %s", spew.Sdump(got))
	}
	if got.Ts == 0 {
		t.Error("chat without timestamp should be stamped server-side")
	}

	// caller-supplied timestamps survive
	outs = rt.Route(model.Envelope{
		Type:   model.KindChat,
		RoomID: "482913",
		Text:   "yes",
		Role:   "viewer",
		Ts:     1700000000000,
	}, viewer)
	if len(outs) != 1 || outs[0].Env.Ts != 1700000000000 {
		t.Errorf("caller timestamp should be preserved, got %s", spew.Sdump(outs))
	}
}

func TestRelayFromNonMemberIsDropped(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()
	stranger := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)

	env := model.Envelope{
		Type:   model.KindSignal,
		RoomID: "482913",
		Data:   json.RawMessage(`{"type":"offer","payload":"X"}`),
	}

	// never joined
	if outs := rt.Route(env, stranger); outs != nil {
		t.Errorf("signal from non-member should be dropped, got %s", spew.Sdump(outs))
	}
	// already unregistered (message racing a disconnect)
	reg.Unregister(host)
	if outs := rt.Route(env, host); outs != nil {
		t.Errorf("signal from unregistered sender should be dropped, got %s", spew.Sdump(outs))
	}
}

func TestJoinWhileInRoomIsDropped(t *testing.T) {
	rt, reg, rm := setup()
	host := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)

	// rejoining the same room is a quiet no-op success
	if outs := join(t, rt, host, "482913", model.RoleHost); outs != nil {
		t.Errorf("host rejoin should emit nothing, got %s", spew.Sdump(outs))
	}

	// hopping to another room is dropped, no second membership appears
	if outs := join(t, rt, host, "999999", model.RoleHost); outs != nil {
		t.Errorf("join while in a room should emit nothing, got %s", spew.Sdump(outs))
	}
	if _, ok := rm.Occupancy("999999"); ok {
		t.Error("join while in a room must not create another room")
	}
	if conn, _ := reg.Lookup(host); conn.RoomID != "482913" {
		t.Errorf("connection moved rooms: %+v", conn)
	}
}

func TestMalformedEnvelopeIsDropped(t *testing.T) {
	rt, reg, _ := setup()
	host := reg.Register()
	join(t, rt, host, "482913", model.RoleHost)

	cases := []model.Envelope{
		{Type: "bogus", RoomID: "482913"},
		{Type: model.KindSignal}, // no room
		{Type: model.KindJoinRoom, RoomID: "482913", Role: "superuser"},
		{Type: model.KindChat, RoomID: "482913"}, // empty text
	}
	for _, env := range cases {
		if outs := rt.Route(env, host); outs != nil {
			t.Errorf("envelope %+v should be dropped, got %s", env, spew.Sdump(outs))
		}
	}
}
