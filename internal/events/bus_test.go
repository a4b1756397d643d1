package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	received := []Event{}

	unsub := bus.Subscribe(EventCycleCompleted, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(EventCycleCompleted, map[string]interface{}{
		"cycle_id": "cycle_123",
	})

	// Wait for async delivery
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type != EventCycleCompleted {
		t.Errorf("expected type %s, got %s", EventCycleCompleted, received[0].Type)
	}
	if cycleID, ok := received[0].Data["cycle_id"].(string); !ok || cycleID != "cycle_123" {
		t.Errorf("expected cycle_id cycle_123, got %v", received[0].Data["cycle_id"])
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	unsub1 := bus.Subscribe(EventCycleSkipped, func(e Event) { wg.Done() })
	defer unsub1()
	unsub2 := bus.Subscribe(EventCycleSkipped, func(e Event) { wg.Done() })
	defer unsub2()

	bus.Publish(EventCycleSkipped, map[string]interface{}{"reason": "capture_failed"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers received the event")
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	got := make(chan Event, 1)
	unsub := bus.Subscribe(EventCaptureFailover, func(e Event) { got <- e })
	defer unsub()

	bus.Publish(EventCycleCompleted, map[string]interface{}{"cycle_id": "c1"})

	select {
	case e := <-got:
		t.Fatalf("failover subscriber received unrelated event: %v", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	count := 0

	unsub := bus.Subscribe(EventCycleCompleted, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(EventCycleCompleted, nil)
	time.Sleep(50 * time.Millisecond)
	unsub()
	bus.Publish(EventCycleCompleted, nil)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
}

func TestBus_PanickingSubscriberRecovered(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	received := make(chan struct{}, 2)
	unsub1 := bus.Subscribe(EventCycleCompleted, func(e Event) {
		panic("subscriber bug")
	})
	defer unsub1()
	unsub2 := bus.Subscribe(EventCycleCompleted, func(e Event) {
		received <- struct{}{}
	})
	defer unsub2()

	bus.Publish(EventCycleCompleted, nil)
	bus.Publish(EventCycleCompleted, nil)

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("healthy subscriber starved by panicking one")
		}
	}
}
