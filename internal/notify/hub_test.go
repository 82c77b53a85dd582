package notify_test

import (
	"sync"
	"testing"
	"time"

	"sloppy/internal/notify"
)

func newHub(size int, policy notify.OverflowPolicy) *notify.Hub {
	return notify.NewHub(notify.HubOptions{BufferSize: size, Policy: policy})
}

func recv(t *testing.T, sub *notify.Subscriber) notify.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if !ok {
			t.Fatal("subscriber queue closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return notify.Message{}
}

func expectEmpty(t *testing.T, sub *notify.Subscriber) {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		if ok {
			t.Fatalf("unexpected message %+v", msg)
		}
	default:
	}
}

func TestConnectSendsAck(t *testing.T) {
	hub := newHub(4, notify.DisconnectSlow)
	sub := hub.Connect()
	msg := recv(t, sub)
	if msg.Type != notify.TypeConnectionAck || msg.ConnectionID != sub.ID() {
		t.Fatalf("unexpected first message %+v", msg)
	}
}

func TestJoinLeaveIdempotent(t *testing.T) {
	hub := newHub(16, notify.DisconnectSlow)
	sub := hub.Connect()
	recv(t, sub)

	hub.Join(sub, "j1")
	hub.Join(sub, "j1")
	if got := hub.Members("j1"); got != 1 {
		t.Fatalf("expected 1 member after double join, got %d", got)
	}
	for i := 0; i < 2; i++ {
		if msg := recv(t, sub); msg.Type != notify.TypeJoined || msg.ChannelID != "j1" {
			t.Fatalf("expected joined ack, got %+v", msg)
		}
	}

	hub.Leave(sub, "j1")
	hub.Leave(sub, "j1")
	if got := hub.Members("j1"); got != 0 {
		t.Fatalf("expected no members after leave, got %d", got)
	}
	if got := hub.Stats().Channels; got != 0 {
		t.Fatalf("expected empty channel to be pruned, got %d channels", got)
	}
	if msg := recv(t, sub); msg.Type != notify.TypeLeft {
		t.Fatalf("expected left ack, got %+v", msg)
	}
	expectEmpty(t, sub)
}

func TestLeaveWithoutJoinSendsNothing(t *testing.T) {
	hub := newHub(4, notify.DisconnectSlow)
	sub := hub.Connect()
	recv(t, sub)

	hub.Leave(sub, "never-joined")
	expectEmpty(t, sub)
	if got := hub.Stats().Channels; got != 0 {
		t.Fatalf("expected no channels, got %d", got)
	}
}

func TestPublishToEmptyChannelIsNoop(t *testing.T) {
	hub := newHub(4, notify.DisconnectSlow)
	if n := hub.Publish("nobody", notify.JobOutcome("nobody", "item", true, "")); n != 0 {
		t.Fatalf("expected zero deliveries, got %d", n)
	}
	if stats := hub.Stats(); stats.Channels != 0 || stats.Dropped != 0 {
		t.Fatalf("publish to empty channel changed state: %+v", stats)
	}
}

func TestPublishDeliversToEverySubscriberInOrder(t *testing.T) {
	hub := newHub(16, notify.DisconnectSlow)
	subs := []*notify.Subscriber{hub.Connect(), hub.Connect()}
	for _, sub := range subs {
		recv(t, sub)
		hub.Join(sub, "j1")
		recv(t, sub)
	}

	for i, status := range []bool{false, true} {
		if n := hub.Publish("j1", notify.JobOutcome("j1", "item", status, "boom")); n != 2 {
			t.Fatalf("publish %d reached %d subscribers, want 2", i, n)
		}
	}
	for _, sub := range subs {
		first := recv(t, sub)
		second := recv(t, sub)
		if first.Status != notify.StatusFailed || first.Error != "boom" {
			t.Fatalf("unexpected first outcome %+v", first)
		}
		if second.Status != notify.StatusCompleted || second.Error != "" {
			t.Fatalf("unexpected second outcome %+v", second)
		}
	}
}

func TestSlowSubscriberDisconnectDoesNotAffectOthers(t *testing.T) {
	hub := newHub(2, notify.DisconnectSlow)
	var (
		mu      sync.Mutex
		dropped []string
	)
	hub.OnDisconnect(func(sub *notify.Subscriber, reason string) {
		mu.Lock()
		defer mu.Unlock()
		dropped = append(dropped, sub.ID()+":"+reason)
	})

	slow := hub.Connect()
	fast := hub.Connect()
	recv(t, fast)
	hub.Join(slow, "j1") // slow queue: ack, joined
	hub.Join(fast, "j1")
	recv(t, fast)

	for i := 0; i < 3; i++ {
		hub.Publish("j1", notify.JobOutcome("j1", "item", true, ""))
		recv(t, fast)
	}

	if got := hub.Members("j1"); got != 1 {
		t.Fatalf("expected slow subscriber removed, members=%d", got)
	}
	mu.Lock()
	if len(dropped) != 1 || dropped[0] != slow.ID()+":buffer overflow" {
		t.Fatalf("unexpected disconnect callbacks: %v", dropped)
	}
	mu.Unlock()

	// Slow subscriber still gets what was queued, then sees the close.
	count := 0
	for range slow.Messages() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 buffered messages for slow subscriber, got %d", count)
	}
	if stats := hub.Stats(); stats.Subscribers != 1 || stats.Dropped == 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDropOldestKeepsNewestMessages(t *testing.T) {
	hub := newHub(2, notify.DropOldest)
	sub := hub.Connect()
	hub.Join(sub, "j1") // queue: ack, joined

	hub.Publish("j1", notify.JobOutcome("j1", "a", true, ""))
	hub.Publish("j1", notify.JobOutcome("j1", "b", true, ""))

	first := recv(t, sub)
	second := recv(t, sub)
	if first.ItemID != "a" || second.ItemID != "b" {
		t.Fatalf("expected newest two messages, got %+v then %+v", first, second)
	}
	if hub.Members("j1") != 1 {
		t.Fatal("drop_oldest must keep the subscriber joined")
	}
}

func TestEvictSendsLeft(t *testing.T) {
	hub := newHub(8, notify.DisconnectSlow)
	a, b := hub.Connect(), hub.Connect()
	for _, sub := range []*notify.Subscriber{a, b} {
		recv(t, sub)
		hub.Join(sub, "j3")
		hub.Join(sub, notify.AggregateChannel)
		recv(t, sub)
		recv(t, sub)
	}

	if n := hub.Evict("j3"); n != 2 {
		t.Fatalf("expected 2 evictions, got %d", n)
	}
	for _, sub := range []*notify.Subscriber{a, b} {
		if msg := recv(t, sub); msg.Type != notify.TypeLeft || msg.ChannelID != "j3" {
			t.Fatalf("expected left for j3, got %+v", msg)
		}
		channels := hub.ChannelsOf(sub)
		if len(channels) != 1 || channels[0] != notify.AggregateChannel {
			t.Fatalf("expected only aggregate membership, got %v", channels)
		}
	}
	if n := hub.Publish("j3", notify.JobOutcome("j3", "x", true, "")); n != 0 {
		t.Fatalf("publish after evict reached %d subscribers", n)
	}
}

func TestDisconnectRemovesEverywhere(t *testing.T) {
	hub := newHub(8, notify.DisconnectSlow)
	sub := hub.Connect()
	hub.Join(sub, "j1")
	hub.Join(sub, "j2")
	hub.Disconnect(sub, "client closed")
	hub.Disconnect(sub, "client closed")

	if hub.Members("j1") != 0 || hub.Members("j2") != 0 {
		t.Fatal("expected subscriber removed from all channels")
	}
	for range sub.Messages() {
	}
	hub.Join(sub, "j1")
	if hub.Members("j1") != 0 {
		t.Fatal("join after disconnect must be ignored")
	}
	expectEmpty(t, sub)
}
