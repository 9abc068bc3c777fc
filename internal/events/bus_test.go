package events

import (
	"reflect"
	"testing"
)

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe("topic", func(any) { got = append(got, "first") })
	bus.Subscribe("topic", func(any) { got = append(got, "second") })

	bus.Publish("topic", nil)
	if !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Fatalf("delivery order = %v, want [first second]", got)
	}
}

func TestBus_TopicsAreIndependent(t *testing.T) {
	bus := NewBus()
	var got []any
	bus.Subscribe("a", func(p any) { got = append(got, p) })

	bus.Publish("b", 1)
	bus.Publish("a", 2)
	if !reflect.DeepEqual(got, []any{2}) {
		t.Fatalf("payloads = %v, want [2]", got)
	}
}

func TestBus_CancelRemovesSubscription(t *testing.T) {
	bus := NewBus()
	calls := 0
	cancel := bus.Subscribe("topic", func(any) { calls++ })
	kept := 0
	bus.Subscribe("topic", func(any) { kept++ })

	bus.Publish("topic", nil)
	cancel()
	cancel() // second call is a no-op
	bus.Publish("topic", nil)

	if calls != 1 {
		t.Fatalf("cancelled subscriber calls = %d, want 1", calls)
	}
	if kept != 2 {
		t.Fatalf("remaining subscriber calls = %d, want 2", kept)
	}
}

func TestBus_PublishWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewBus()
	bus.Publish("nobody-home", struct{}{})
}
