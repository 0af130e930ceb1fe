package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/posturepilot/internal/app"
	"github.com/ayusman/posturepilot/internal/posture"
)

// An event broadcast while the connect snapshot is being built must still
// reach the new client, after the snapshot.
func TestEventsHandler_EventDuringSnapshot(t *testing.T) {
	var h *EventsHandler
	h = NewEventsHandler(func() app.Snapshot {
		h.Broadcast(app.Event{Type: app.EventStateChanged, State: posture.StateCalibrating})
		return app.Snapshot{State: posture.StateSetup}
	})
	ts := httptest.NewServer(h)
	defer ts.Close()
	defer h.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first snapshotMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != "snapshot" || first.Snapshot.State != posture.StateSetup {
		t.Fatalf("first message = %+v, want setup snapshot", first)
	}

	var e app.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if e.Type != app.EventStateChanged || e.State != posture.StateCalibrating {
		t.Errorf("event = %+v, want calibrating state change", e)
	}
}

func TestEventsHandler_ClosedRejectsClients(t *testing.T) {
	h := NewEventsHandler(nil)
	h.Close()
	ts := httptest.NewServer(h)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("closed handler should drop the connection")
	}
	if h.Clients() != 0 {
		t.Errorf("Clients() = %d, want 0", h.Clients())
	}
}
