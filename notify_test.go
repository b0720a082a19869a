package mcp

import (
	"sync"
	"testing"
	"time"
)

func TestDispatcherRoutesByGlobPattern(t *testing.T) {
	d := NewDispatcher(nil)

	var mu sync.Mutex
	var got []string
	unsubscribe, err := d.Subscribe("notifications/resources/*", func(msg Message) {
		mu.Lock()
		got = append(got, msg.Method)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()

	d.Dispatch(Message{Method: "notifications/resources/updated"})
	d.Dispatch(Message{Method: "notifications/prompts/list_changed"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "notifications/resources/updated" {
		t.Fatalf("got %v", got)
	}
}

func TestDispatcherDropsUnmatchedNotification(t *testing.T) {
	d := NewDispatcher(nil)
	// No subscriber at all: Dispatch must not block or panic.
	d.Dispatch(Message{Method: "notifications/nobody/listens"})
}

func TestDispatcherUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(nil)

	var mu sync.Mutex
	count := 0
	unsubscribe, err := d.Subscribe("*", func(msg Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	d.Dispatch(Message{Method: "a"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	unsubscribe()
	unsubscribe() // must be safe to call twice

	d.Dispatch(Message{Method: "b"})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("got %d deliveries after unsubscribe, want 1", count)
	}
}

func TestDispatcherPreservesOrderPerSubscriber(t *testing.T) {
	d := NewDispatcher(nil)

	var mu sync.Mutex
	var order []int
	_, err := d.Subscribe("seq", func(msg Message) {
		mu.Lock()
		order = append(order, len(msg.Params))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 1; i <= 5; i++ {
		d.Dispatch(Message{Method: "seq", Params: make([]byte, i)})
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("out-of-order delivery: %v", order)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
