package view

import (
	"testing"
	"time"
)

func TestHub_SubscribeDeliversCurrentRevisionImmediately(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("table-1", StreamTable, "", Revision{Number: 1, View: "snapshot"})
	defer sub.Unsubscribe()

	select {
	case rev := <-sub.Revisions():
		if rev.Number != 1 || rev.View != "snapshot" {
			t.Fatalf("unexpected initial revision: %+v", rev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial revision")
	}
}

func TestHub_PublishTableFansOutToTableSubscribersOnly(t *testing.T) {
	hub := NewHub()
	tableSub := hub.Subscribe("table-1", StreamTable, "", Revision{Number: 0, View: "init"})
	defer tableSub.Unsubscribe()
	playerSub := hub.Subscribe("table-1", StreamPlayer, "alice", Revision{Number: 0, View: "init"})
	defer playerSub.Unsubscribe()

	drain(t, tableSub.Revisions())
	drain(t, playerSub.Revisions())

	hub.PublishTable("table-1", 1, TableView{Revision: 1})

	select {
	case rev := <-tableSub.Revisions():
		if rev.Number != 1 {
			t.Fatalf("expected revision 1, got %d", rev.Number)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for table revision")
	}

	select {
	case rev := <-playerSub.Revisions():
		t.Fatalf("player subscriber should not receive a table-only publish, got %+v", rev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishPlayerOnlyReachesMatchingViewer(t *testing.T) {
	hub := NewHub()
	aliceSub := hub.Subscribe("table-1", StreamPlayer, "alice", Revision{Number: 0, View: "init"})
	defer aliceSub.Unsubscribe()
	bobSub := hub.Subscribe("table-1", StreamPlayer, "bob", Revision{Number: 0, View: "init"})
	defer bobSub.Unsubscribe()

	drain(t, aliceSub.Revisions())
	drain(t, bobSub.Revisions())

	hub.PublishPlayer("table-1", "alice", 1, PlayerView{ViewerSeatID: "alice"})

	select {
	case rev := <-aliceSub.Revisions():
		if rev.Number != 1 {
			t.Fatalf("expected revision 1 for alice, got %d", rev.Number)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for alice's revision")
	}

	select {
	case rev := <-bobSub.Revisions():
		t.Fatalf("bob should not receive alice's player view, got %+v", rev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowSubscriberDropsOldestUnderBackpressure(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("table-1", StreamTable, "", Revision{Number: 0, View: "init"})
	defer sub.Unsubscribe()
	drain(t, sub.Revisions())

	for i := 1; i <= subscriberBuffer+2; i++ {
		hub.PublishTable("table-1", i, TableView{Revision: i})
	}

	last := -1
	for {
		select {
		case rev := <-sub.Revisions():
			last = rev.Number
		default:
			if last != subscriberBuffer+2 {
				t.Fatalf("expected to eventually observe the latest revision %d, last seen %d", subscriberBuffer+2, last)
			}
			return
		}
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("table-1", StreamTable, "", Revision{Number: 0, View: "init"})
	drain(t, sub.Revisions())
	sub.Unsubscribe()

	hub.PublishTable("table-1", 1, TableView{Revision: 1})

	select {
	case rev, ok := <-sub.Revisions():
		if ok {
			t.Fatalf("expected closed channel after unsubscribe, got %+v", rev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func drain(t *testing.T, ch <-chan Revision) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out draining initial revision")
	}
}
