package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/heroarena/game-server/internal/v1/auth"
	"github.com/heroarena/game-server/internal/v1/config"
	"github.com/heroarena/game-server/internal/v1/wire"
)

// fakeClient records every event a room sends it.
type fakeClient struct {
	id   ConnID
	name string

	mu     sync.Mutex
	events []wire.Envelope
}

func newFakeClient(id, name string) *fakeClient {
	return &fakeClient{id: ConnID(id), name: name}
}

func (f *fakeClient) ConnID() ConnID { return f.id }

func (f *fakeClient) Identity() auth.Identity {
	return auth.Identity{UserID: string(f.id), DisplayName: f.name}
}

func (f *fakeClient) SendEvent(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.events = append(f.events, wire.Envelope{Type: eventType, Payload: raw})
	f.mu.Unlock()
}

func (f *fakeClient) SendRaw(data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.events = append(f.events, env)
	f.mu.Unlock()
}

func (f *fakeClient) Disconnect() {}

// eventsOfType returns all received envelopes with the given full type.
func (f *fakeClient) eventsOfType(eventType string) []wire.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Envelope
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeClient) countOf(eventType string) int {
	return len(f.eventsOfType(eventType))
}

// countUserChat counts chat messages of the given type, skipping the
// synthesized system notices (joins, leaves).
func (f *fakeClient) countUserChat(eventType string) int {
	n := 0
	for _, e := range f.eventsOfType(eventType) {
		var msg wire.ChatMessage
		if json.Unmarshal(e.Payload, &msg) == nil && !msg.System {
			n++
		}
	}
	return n
}

func (f *fakeClient) lastOfType(t *testing.T, eventType string) map[string]any {
	t.Helper()
	events := f.eventsOfType(eventType)
	if len(events) == 0 {
		t.Fatalf("no %q event received", eventType)
	}
	var payload map[string]any
	if err := json.Unmarshal(events[len(events)-1].Payload, &payload); err != nil {
		t.Fatalf("bad payload for %q: %v", eventType, err)
	}
	return payload
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

func testIdentity(name string) auth.Identity {
	return auth.Identity{UserID: name, DisplayName: name}
}

func testRoomDeps() (roomDeps, *[]ConnID) {
	var left []ConnID
	var mu sync.Mutex
	deps := roomDeps{
		onLeft: func(connID ConnID) {
			mu.Lock()
			left = append(left, connID)
			mu.Unlock()
		},
	}
	return deps, &left
}

func testGameConfig() *config.Config {
	return &config.Config{
		Port:       "8080",
		TickHz:     30,
		SnapshotHz: 15,
	}
}

// stepRoom advances a room's simulation n ticks of dt starting at base.
func stepRoom(r Room, base time.Time, n int, dt float64) time.Time {
	now := base
	for i := 0; i < n; i++ {
		now = now.Add(time.Duration(dt * float64(time.Second)))
		r.Tick(now, dt)
	}
	return now
}
