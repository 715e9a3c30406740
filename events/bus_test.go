package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitForWG(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestEventBusPublishesToSpecificAndGlobalListeners(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []EventType
	var wg sync.WaitGroup
	wg.Add(2)

	bus.Subscribe(EventSessionCreated, func(e *Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
		wg.Done()
	})

	bus.SubscribeAll(func(e *Event) {
		mu.Lock()
		received = append(received, e.Type)
		mu.Unlock()
		wg.Done()
	})

	bus.Publish(&Event{Type: EventSessionCreated, Data: SessionCreatedData{NodeCount: 2}})

	if !waitForWG(&wg, time.Second) {
		t.Fatal("timed out waiting for listeners")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(received))
	}
}

func TestEventBusDoesNotDeliverOtherTypes(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var count atomic.Int32
	bus.Subscribe(EventSessionCreated, func(*Event) { count.Add(1) })

	var wg sync.WaitGroup
	wg.Add(1)
	bus.SubscribeAll(func(*Event) { wg.Done() })
	bus.Publish(&Event{Type: EventNodeCacheHit})

	if !waitForWG(&wg, time.Second) {
		t.Fatal("global listener never fired")
	}
	if count.Load() != 0 {
		t.Fatalf("expected specific listener not to fire, got %d", count.Load())
	}
}

func TestEventBusListenerPanicIsContained(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(EventWorkerCrash, func(*Event) {
		panic("boom")
	})
	bus.SubscribeAll(func(*Event) { wg.Done() })

	bus.Publish(&Event{Type: EventWorkerCrash})

	if !waitForWG(&wg, time.Second) {
		t.Fatal("panic in one listener prevented delivery to others")
	}
}

func TestEventBusCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	bus.Close()
	bus.Close()
}

func TestEventBusCloseDrainsInFlightPublishes(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()

	var count atomic.Int32
	release := make(chan struct{})
	bus.Subscribe(EventSessionClosed, func(*Event) {
		<-release
		count.Add(1)
	})

	bus.Publish(&Event{Type: EventSessionClosed})

	closed := make(chan struct{})
	go func() {
		bus.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before in-flight dispatch completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed

	if count.Load() != 1 {
		t.Fatalf("expected listener to have run, got count=%d", count.Load())
	}
}

func TestEventBusPublishAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	var count atomic.Int32
	bus.Subscribe(EventSessionCreated, func(*Event) { count.Add(1) })

	bus.Close()
	bus.Publish(&Event{Type: EventSessionCreated})

	time.Sleep(20 * time.Millisecond)
	if count.Load() != 0 {
		t.Fatalf("expected no delivery after close, got %d", count.Load())
	}
}

func TestEventBusClear(t *testing.T) {
	t.Parallel()

	bus := NewEventBus()
	defer bus.Close()

	var count atomic.Int32
	bus.Subscribe(EventSessionCreated, func(*Event) { count.Add(1) })
	bus.Clear()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.SubscribeAll(func(*Event) { wg.Done() })
	bus.Publish(&Event{Type: EventSessionCreated})

	if !waitForWG(&wg, time.Second) {
		t.Fatal("global listener registered after Clear never fired")
	}
	if count.Load() != 0 {
		t.Fatalf("expected cleared listener not to fire, got %d", count.Load())
	}
}
