package gateway

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/chatterbox-im/chatterbox-server/internal/proto"
	"github.com/chatterbox-im/chatterbox-server/internal/store"
)

func testDispatcher(t *testing.T, st *fakeStore) (*Dispatcher, *Registry) {
	t.Helper()
	logger := zerolog.Nop()
	registry := NewRegistry()
	return NewDispatcher(registry, st, NewEventLog(), &logger), registry
}

func TestNotifyUnboundUserIsNoop(t *testing.T) {
	d, _ := testDispatcher(t, newFakeStore())

	if d.Notify(1, proto.Outbound{Type: proto.OutboundTypePong}) {
		t.Fatal("notify of an unbound user must report false")
	}
}

func TestNotifyDropsOnFullBuffer(t *testing.T) {
	d, registry := testDispatcher(t, newFakeStore())

	p := NewPeer(nil)
	registry.Bind(p, 1)
	for i := 0; i < cap(p.Events); i++ {
		p.TrySend(proto.Outbound{Type: proto.OutboundTypePong})
	}

	if d.Notify(1, proto.Outbound{Type: proto.OutboundTypePong}) {
		t.Fatal("notify must report false when the peer buffer is full")
	}
}

func TestBroadcastReachesEveryBoundPeer(t *testing.T) {
	d, registry := testDispatcher(t, newFakeStore())

	a, b := NewPeer(nil), NewPeer(nil)
	registry.Bind(a, 1)
	registry.Bind(b, 2)

	d.Broadcast(proto.Outbound{Type: proto.OutboundTypeStatusChange, ID: 9, Status: string(store.StatusOnline)})

	mustReceive(t, a, proto.OutboundTypeStatusChange)
	mustReceive(t, b, proto.OutboundTypeStatusChange)
}

func TestNotifyFriendsOfSkipsUnboundFriends(t *testing.T) {
	st := newFakeStore()
	st.befriend(1, 2)
	st.befriend(1, 3)
	d, registry := testDispatcher(t, st)

	bound := NewPeer(nil)
	registry.Bind(bound, 2)

	err := d.NotifyFriendsOf(context.Background(), 1, proto.Outbound{Type: proto.OutboundTypeStatusChange, ID: 1})
	if err != nil {
		t.Fatalf("notify friends failed: %v", err)
	}

	mustReceive(t, bound, proto.OutboundTypeStatusChange)
	// User 3 has no peer; nothing to assert beyond no panic and no error.
}
