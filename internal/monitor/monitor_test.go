package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHubBroadcastsToConnectedClient(t *testing.T) {
	hub := NewHub(testLogger())
	srv := httptest.NewServer(hub.Handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + srv.URL[len("http"):] + "/"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// give the server a moment to register the client before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(Event{Sessions: 3, Event: "replenished"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Sessions != 3 || got.Event != "replenished" {
		t.Fatalf("got %+v, want Sessions=3 Event=replenished", got)
	}
}

func TestHubDropsFrameForSlowClientWithoutBlocking(t *testing.T) {
	hub := NewHub(testLogger())
	c := &client{send: make(chan []byte)} // unbuffered, never drained
	hub.register(c)
	defer hub.unregister(c)

	done := make(chan struct{})
	go func() {
		hub.Broadcast(Event{Sessions: 1, Event: "x"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Broadcast blocked on a slow client")
	}
}
