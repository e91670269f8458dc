package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

func receive(t *testing.T, sub Subscription) analysis.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return analysis.Event{}
}

func TestHub_FanOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := NewHub()

	a, err := h.Subscribe(ctx, "a1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b, _ := h.Subscribe(ctx, "a1")
	other, _ := h.Subscribe(ctx, "a2")

	if err := h.Publish(ctx, "a1", analysis.StatusEvent(analysis.StatusTranscribing)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, sub := range []Subscription{a, b} {
		if s, _ := receive(t, sub).Status(); s != analysis.StatusTranscribing {
			t.Errorf("status = %s, want TRANSCRIBING", s)
		}
	}
	select {
	case ev := <-other.Events():
		t.Errorf("a2 subscriber got %+v", ev)
	default:
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	t.Parallel()
	h := NewHub()
	if err := h.Publish(context.Background(), "nobody", analysis.StatusEvent(analysis.StatusPending)); err != nil {
		t.Errorf("Publish = %v, want nil", err)
	}
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := NewHub(WithBuffer(1))
	sub, _ := h.Subscribe(ctx, "a1")

	_ = h.Publish(ctx, "a1", analysis.StatusEvent(analysis.StatusTranscribing))
	_ = h.Publish(ctx, "a1", analysis.StatusEvent(analysis.StatusAnalyzingSpeech))

	if s, _ := receive(t, sub).Status(); s != analysis.StatusTranscribing {
		t.Errorf("status = %s, want the first event", s)
	}
	select {
	case ev := <-sub.Events():
		t.Errorf("second event delivered despite full buffer: %+v", ev)
	default:
	}
}

func TestHub_CloseSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := NewHub()
	sub, _ := h.Subscribe(ctx, "a1")

	if n := h.Subscribers("a1"); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}
	_ = sub.Close()
	_ = sub.Close()
	if n := h.Subscribers("a1"); n != 0 {
		t.Errorf("Subscribers after Close = %d, want 0", n)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still open")
	}
}

func TestHub_Close(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := NewHub()
	sub, _ := h.Subscribe(ctx, "a1")

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel open after hub Close")
	}
	_ = sub.Close()

	if err := h.Publish(ctx, "a1", analysis.StatusEvent(analysis.StatusFailed)); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if _, err := h.Subscribe(ctx, "a1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
	if err := h.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after Close = %v, want ErrClosed", err)
	}
}

func TestChannel(t *testing.T) {
	t.Parallel()
	if got := Channel("abc"); got != "analysis:abc" {
		t.Errorf("Channel = %q", got)
	}
}
