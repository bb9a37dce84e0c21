package events

import "testing"

func TestBrokerPublishFiltersByDialogID(t *testing.T) {
	b := NewBroker()
	all, cancelAll := b.Subscribe("")
	defer cancelAll()
	scoped, cancelScoped := b.Subscribe("dlg-1")
	defer cancelScoped()

	b.Publish(Chat("dlg-1", "hello"))
	b.Publish(Chat("dlg-2", "ignored by scoped"))

	got := <-all
	if got.DialogID != "dlg-1" {
		t.Fatalf("expected first event for dlg-1, got %+v", got)
	}
	got = <-all
	if got.DialogID != "dlg-2" {
		t.Fatalf("expected unfiltered subscriber to see dlg-2 too, got %+v", got)
	}

	got = <-scoped
	if got.DialogID != "dlg-1" {
		t.Fatalf("expected scoped subscriber's only event to be dlg-1, got %+v", got)
	}
	select {
	case extra := <-scoped:
		t.Fatalf("scoped subscriber should not see dlg-2, got %+v", extra)
	default:
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("")
	cancel()
	_, ok := <-ch
	if ok {
		t.Fatalf("expected channel to be closed after cancel")
	}
}

func TestBrokerPublishDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("")
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Publish(Chat("dlg-1", "x"))
	}

	select {
	case <-ch:
	default:
		t.Fatalf("expected at least one buffered event to be delivered")
	}
}
