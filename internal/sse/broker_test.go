package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/cadence/internal/events"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Broadcast(Event{Type: "ledger.changed", Data: map[string]string{"path": "a.fit"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: ledger.changed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.fit"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) (contextCount, changeCount int) {
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), ContextUpdated) {
				contextCount++
			} else {
				changeCount++
			}
		default:
			return contextCount, changeCount
		}
	}
}

func TestPublish_ContextThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := context.Background()
	// First activity event should trigger context.updated.
	if err := b.Publish(ctx, events.New(events.ActivityImported, "act_1", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Second one immediately should NOT trigger another context.updated.
	_ = b.Publish(ctx, events.New(events.ActivityImported, "act_2", nil))

	contextCount, changeCount := drain(ch)
	if changeCount != 2 {
		t.Errorf("change events = %d, want 2", changeCount)
	}
	if contextCount != 1 {
		t.Errorf("context events = %d, want 1 (throttled)", contextCount)
	}
}

func TestPublish_BeliefEventsDoNotTouchContext(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	_ = b.Publish(context.Background(), events.New(events.BeliefUpdated, "b1", map[string]float64{"confidence": 0.76}))

	contextCount, changeCount := drain(ch)
	if changeCount != 1 || contextCount != 0 {
		t.Errorf("got %d change / %d context events, want 1 / 0", changeCount, contextCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	_ = b.Publish(ctx, events.New(events.ActivityImported, "act_x", nil))
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: activity.imported") || !strings.Contains(body, `"key":"act_x"`) {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Broadcast(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Broadcast(Event{Type: "test", Data: map[string]string{"i": "x"}})
	if err := b.Publish(context.Background(), events.New(events.ActivityImported, "act_x", nil)); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}
}
