package core

import "testing"

func TestEventBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewEventBus()
	var got []string
	bus.Subscribe(func(e Event) { got = append(got, "a:"+e.Payload.(MessagePayload).Text) }, EventMessage)
	bus.Subscribe(func(e Event) { got = append(got, "b:"+e.Payload.(MessagePayload).Text) }, EventMessage)

	bus.PublishMessage("Enabled")
	bus.PublishMessage("Disabled")

	want := []string{"a:Enabled", "b:Enabled", "a:Disabled", "b:Disabled"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := NewEventBus()
	var states, terminated int
	bus.Subscribe(func(Event) { states++ }, EventStateChanged)
	bus.Subscribe(func(Event) { terminated++ }, EventTerminated, EventStateChanged)

	bus.Publish(Event{Type: EventStateChanged, Payload: StatePayload{NewState: StateSecure}})
	bus.Publish(Event{Type: EventTerminated})
	bus.PublishMessage("ignored")

	if states != 1 {
		t.Errorf("state handler calls = %d, want 1", states)
	}
	if terminated != 2 {
		t.Errorf("multi-type handler calls = %d, want 2", terminated)
	}
}
