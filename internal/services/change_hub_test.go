package services

import (
	"testing"
	"time"

	"github.com/rebolloluis/family-tree/internal/models"
)

func TestChangeHub_NewChangeHub(t *testing.T) {
	hub := NewChangeHub()
	if hub == nil {
		t.Fatal("NewChangeHub should not return nil")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("new hub should have 0 clients, got %d", hub.ClientCount())
	}
}

func TestChangeHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewChangeHub()

	hub.Subscribe("stark", "client1")
	hub.Subscribe("stark", "client2")
	hub.Subscribe("lannister", "client3")

	if hub.ClientCount() != 3 {
		t.Fatalf("expected 3 clients, got %d", hub.ClientCount())
	}
	if hub.FamilyClientCount("stark") != 2 {
		t.Errorf("expected 2 stark clients, got %d", hub.FamilyClientCount("stark"))
	}

	hub.Unsubscribe("stark", "client1")
	hub.Unsubscribe("stark", "nonexistent")
	hub.Unsubscribe("tully", "client1")
	if hub.ClientCount() != 2 {
		t.Errorf("expected 2 clients after unsubscribe, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("stark", "client2")
	hub.Unsubscribe("lannister", "client3")
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestChangeHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewChangeHub()
	ch := hub.Subscribe("stark", "client1")
	hub.Unsubscribe("stark", "client1")

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestChangeHub_PublishScopedToFamily(t *testing.T) {
	hub := NewChangeHub()

	stark := hub.Subscribe("stark", "client1")
	other := hub.Subscribe("lannister", "client2")

	hub.Publish(MemberChange{
		Op:       ChangeInsert,
		FamilyID: "stark",
		Member:   &models.Member{ID: "arya", FamilyID: "stark", Name: "Arya"},
	})

	select {
	case received := <-stark:
		if received.Op != ChangeInsert {
			t.Errorf("Op = %q, expected %q", received.Op, ChangeInsert)
		}
		if received.Member == nil || received.Member.ID != "arya" {
			t.Errorf("unexpected member %+v", received.Member)
		}
		if received.At.IsZero() {
			t.Error("At should be stamped on publish")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for event")
	}

	select {
	case received := <-other:
		t.Errorf("other family received %+v", received)
	default:
	}
}

func TestChangeHub_PublishMultipleClients(t *testing.T) {
	hub := NewChangeHub()

	ch1 := hub.Subscribe("stark", "client1")
	ch2 := hub.Subscribe("stark", "client2")

	hub.Publish(MemberChange{Op: ChangeDelete, FamilyID: "stark", IDs: []string{"eddard", "robb"}})

	for i, ch := range []<-chan MemberChange{ch1, ch2} {
		select {
		case received := <-ch:
			if len(received.IDs) != 2 {
				t.Errorf("client%d: expected 2 ids, got %v", i+1, received.IDs)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("client%d: timed out waiting for event", i+1)
		}
	}
}

func TestChangeHub_NonBlockingPublish(t *testing.T) {
	hub := NewChangeHub()
	ch := hub.Subscribe("stark", "slow_client")

	for i := 0; i < 2*subscriberBuffer; i++ {
		hub.Publish(MemberChange{Op: ChangeUpdate, FamilyID: "stark"})
	}

	if len(ch) != subscriberBuffer {
		t.Errorf("expected buffer to hold %d events, got %d", subscriberBuffer, len(ch))
	}
}

func TestChangeHub_ResubscribeReplacesChannel(t *testing.T) {
	hub := NewChangeHub()
	first := hub.Subscribe("stark", "client1")
	hub.Subscribe("stark", "client1")

	if _, ok := <-first; ok {
		t.Error("previous channel should be closed")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}
}

func TestGetChangeHub_Singleton(t *testing.T) {
	if GetChangeHub() != GetChangeHub() {
		t.Error("GetChangeHub should return the same instance")
	}
}
