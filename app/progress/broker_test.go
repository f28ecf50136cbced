package progress

import (
	"testing"

	"github.com/draiimon/PanicSense-Final-sub000/app/models"
)

func TestSubscriberGetsLastThenLive(t *testing.T) {
	b := NewBroker()
	b.Publish("s1", models.Progress{Processed: 1, Stage: "Loading"})

	ch, cancel := b.Subscribe("s1")
	defer cancel()

	if p := <-ch; p.Processed != 1 {
		t.Fatalf("expected replay of last update, got %+v", p)
	}
	b.Publish("s1", models.Progress{Processed: 2, Stage: "Analyzing"})
	if p := <-ch; p.Processed != 2 {
		t.Fatalf("expected live update, got %+v", p)
	}
}

func TestDoneClosesSubscribers(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1")

	b.Publish("s1", models.Progress{Processed: 5, Completed: true})
	if p, ok := <-ch; !ok || !p.Completed {
		t.Fatalf("expected final update before close, got %+v %v", p, ok)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after a finished update")
	}
	if b.Subscribers("s1") != 0 {
		t.Fatalf("subscribers not cleared")
	}
	cancel()
}

func TestSlowSubscriberKeepsNewest(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("s1")
	defer cancel()

	for i := 1; i <= subscriberBuffer+5; i++ {
		b.Publish("s1", models.Progress{Processed: i})
	}
	var last models.Progress
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Processed != subscriberBuffer+5 {
		t.Fatalf("newest update lost, last = %d", last.Processed)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := NewBroker()
	_, cancel := b.Subscribe("s1")
	cancel()
	cancel()
	if b.Subscribers("s1") != 0 {
		t.Fatalf("expected no subscribers")
	}
}
