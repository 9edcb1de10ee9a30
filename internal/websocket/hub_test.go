package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, familyID int64) *Client {
	return &Client{
		hub:      hub,
		conn:     nil,
		familyID: familyID,
		send:     make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(1); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(1); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(1); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(1); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastScopedToFamily(t *testing.T) {
	hub := NewHub(slog.Default())

	fam1 := mockClient(hub, 1)
	fam2 := mockClient(hub, 2)
	hub.Register(fam1)
	hub.Register(fam2)

	hub.BroadcastFamily(1, NewMessage("shift", "checked_in", 42, nil))

	select {
	case data := <-fam1.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if msg.Type != "shift_checked_in" {
			t.Errorf("type = %q, want %q", msg.Type, "shift_checked_in")
		}
		if msg.ID != 42 {
			t.Errorf("id = %d, want 42", msg.ID)
		}
	default:
		t.Fatal("family 1 client received nothing")
	}

	select {
	case <-fam2.send:
		t.Fatal("family 2 client should not receive family 1 messages")
	default:
	}
}

func TestBroadcastFullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)

	// Fill the buffer past capacity; Broadcast must drop, not block.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.BroadcastFamily(1, NewMessage("shift", "updated", int64(i), nil))
	}

	if got := len(c.send); got != sendBufferSize {
		t.Fatalf("expected %d buffered messages, got %d", sendBufferSize, got)
	}
}
