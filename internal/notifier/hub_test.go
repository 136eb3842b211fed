package notifier

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHubDeliversPerItem(t *testing.T) {
	t.Parallel()

	hub := NewHub(4, nil)
	itemA := uuid.New()
	itemB := uuid.New()

	chA, cancelA := hub.Subscribe(itemA)
	defer cancelA()
	chB, cancelB := hub.Subscribe(itemB)
	defer cancelB()

	hub.Publish(ChangeEvent{ItemID: itemA, VisitDate: "2027-07-04", BookedUnits: 3})

	select {
	case event := <-chA:
		if event.BookedUnits != 3 || event.VisitDate != "2027-07-04" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber A never received the event")
	}

	select {
	case event := <-chB:
		t.Fatalf("subscriber B received foreign event: %+v", event)
	default:
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	hub := NewHub(1, nil)
	itemID := uuid.New()
	ch, cancel := hub.Subscribe(itemID)
	defer cancel()

	hub.Publish(ChangeEvent{ItemID: itemID, BookedUnits: 1})
	hub.Publish(ChangeEvent{ItemID: itemID, BookedUnits: 2})
	hub.Publish(ChangeEvent{ItemID: itemID, BookedUnits: 3})

	// only the first delta fit; the laggard reconverges from the next read
	first := <-ch
	if first.BookedUnits != 1 {
		t.Fatalf("expected first delta, got %+v", first)
	}
	select {
	case extra := <-ch:
		t.Fatalf("dropped delta was delivered: %+v", extra)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub(4, nil)
	itemID := uuid.New()
	ch, cancel := hub.Subscribe(itemID)

	if count := hub.SubscriberCount(); count != 1 {
		t.Fatalf("expected 1 subscriber, got %d", count)
	}
	cancel()
	cancel()
	if count := hub.SubscriberCount(); count != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", count)
	}

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}

	// publishing to a detached item is a no-op
	hub.Publish(ChangeEvent{ItemID: itemID, BookedUnits: 9})
}

func TestHubNotifyAdapterPublishes(t *testing.T) {
	t.Parallel()

	hub := NewHub(4, nil)
	itemID := uuid.New()
	ch, cancel := hub.Subscribe(itemID)
	defer cancel()

	hub.Notify(itemID, "2027-07-04", 5)

	select {
	case event := <-ch:
		if event.ItemID != itemID || event.BookedUnits != 5 {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("notify never reached the subscriber")
	}
}
