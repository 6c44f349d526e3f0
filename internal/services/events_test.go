package services

import (
	"testing"
	"time"
)

func TestEventHub_NewEventHub(t *testing.T) {
	hub := NewEventHub()
	if hub == nil {
		t.Fatal("NewEventHub should not return nil")
	}
	if hub.clients == nil {
		t.Error("clients map should be initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("new hub should have 0 clients, got %d", hub.ClientCount())
	}
}

func TestEventHub_Subscribe(t *testing.T) {
	hub := NewEventHub()

	ch := hub.Subscribe("client1", "*")
	if ch == nil {
		t.Error("Subscribe should return a channel")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}

	ch2 := hub.Subscribe("client2", "NL:2025-05-31")
	if ch2 == nil {
		t.Error("Subscribe should return a channel")
	}
	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.ClientCount())
	}
}

func TestEventHub_Unsubscribe(t *testing.T) {
	hub := NewEventHub()

	hub.Subscribe("client1", "*")
	hub.Subscribe("client2", "*")

	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client1")
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unsubscribe, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("nonexistent")
	if hub.ClientCount() != 1 {
		t.Errorf("unsubscribing nonexistent should not affect count, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("client2")
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestEventHub_Broadcast(t *testing.T) {
	hub := NewEventHub()

	ch := hub.Subscribe("client1", "NL:2025-05-31")

	hub.Broadcast("NL:2025-05-31", EventGenerationCompleted, map[string]any{"questionnaire_id": 7})

	select {
	case received := <-ch:
		if received.Channel != "NL:2025-05-31" {
			t.Errorf("Channel = %q, expected %q", received.Channel, "NL:2025-05-31")
		}
		if received.Name != EventGenerationCompleted {
			t.Errorf("Name = %q, expected %q", received.Name, EventGenerationCompleted)
		}
		payload, ok := received.Payload.(map[string]any)
		if !ok {
			t.Fatalf("Payload has type %T, expected map", received.Payload)
		}
		if payload["questionnaire_id"] != 7 {
			t.Errorf("payload questionnaire_id = %v, expected 7", payload["questionnaire_id"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for event")
	}
}

func TestEventHub_ChannelFiltering(t *testing.T) {
	hub := NewEventHub()

	nlCh := hub.Subscribe("nl_client", "NL:2025-05-31")
	deCh := hub.Subscribe("de_client", "DE:2025-05-31")

	hub.Broadcast("NL:2025-05-31", EventResponseSaved, nil)

	select {
	case received := <-nlCh:
		if received.Name != EventResponseSaved {
			t.Errorf("Name = %q, expected %q", received.Name, EventResponseSaved)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("subscriber on the event channel should receive it")
	}

	select {
	case received := <-deCh:
		t.Errorf("subscriber on another channel received %q", received.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventHub_WildcardSubscriber(t *testing.T) {
	hub := NewEventHub()

	ch := hub.Subscribe("watcher", "*")

	hub.Broadcast("NL:2025-05-31", EventGenerationStarted, nil)
	hub.Broadcast("DE:2025-04-30", EventStatusChanged, nil)

	for _, want := range []string{EventGenerationStarted, EventStatusChanged} {
		select {
		case received := <-ch:
			if received.Name != want {
				t.Errorf("Name = %q, expected %q", received.Name, want)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("wildcard subscriber did not receive %q", want)
		}
	}
}

func TestEventHub_NonBlockingBroadcast(t *testing.T) {
	hub := NewEventHub()

	hub.Subscribe("slow_client", "*")

	for i := 0; i < 200; i++ {
		hub.Broadcast("NL:2025-05-31", EventResponseSaved, map[string]any{"seq": i})
	}
}

func TestGetEventHub_Singleton(t *testing.T) {
	hub1 := GetEventHub()
	hub2 := GetEventHub()

	if hub1 != hub2 {
		t.Error("GetEventHub should return the same instance")
	}
}
