package server

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/quicchat/pkg/model"
	"github.com/NicolasHaas/quicchat/pkg/protocol"
)

func TestRegistryAddListRemove(t *testing.T) {
	reg := NewRegistry(nil)

	if !reg.Add("alice", "c1", &fakePeer{}) {
		t.Fatal("Add(alice) = false, want true")
	}
	if diff := cmp.Diff([]string{"alice"}, reg.Usernames()); diff != "" {
		t.Errorf("Usernames mismatch (-want +got):\n%s", diff)
	}

	sess, ok := reg.Get("alice")
	if !ok {
		t.Fatal("Get(alice): missing")
	}
	if sess.State != model.StateAuthenticated || sess.ConnID != "c1" {
		t.Errorf("unexpected session %+v", sess)
	}

	reg.Remove("alice")
	if _, ok := reg.Get("alice"); ok {
		t.Fatal("Get(alice) after Remove: still present")
	}
	reg.Remove("alice") // idempotent
	if reg.Count() != 0 {
		t.Fatalf("Count = %d, want 0", reg.Count())
	}
}

func TestRegistryDuplicateAdd(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add("alice", "c1", &fakePeer{})
	if reg.Add("alice", "c2", &fakePeer{}) {
		t.Fatal("second Add(alice) = true, want false")
	}
	sess, _ := reg.Get("alice")
	if sess.ConnID != "c1" {
		t.Fatalf("existing session replaced: ConnID = %q", sess.ConnID)
	}
}

func TestRegistryRemoveConn(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add("alice", "c1", &fakePeer{})

	if reg.RemoveConn("alice", "c2") {
		t.Fatal("RemoveConn with foreign conn = true")
	}
	if _, ok := reg.Get("alice"); !ok {
		t.Fatal("foreign RemoveConn removed the session")
	}
	if !reg.RemoveConn("alice", "c1") {
		t.Fatal("RemoveConn with owning conn = false")
	}
	if reg.RemoveConn("alice", "c1") {
		t.Fatal("RemoveConn on absent user = true")
	}
}

func TestRegistrySetToken(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Add("alice", "c1", &fakePeer{})
	reg.SetToken("alice", "c2", "ignored")
	reg.SetToken("alice", "c1", "tok")
	sess, _ := reg.Get("alice")
	if sess.Token != "tok" {
		t.Fatalf("Token = %q, want tok", sess.Token)
	}
}

func TestRegistryUsernamesSorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, name := range []string{"carol", "alice", "bob"} {
		reg.Add(name, "c-"+name, &fakePeer{})
	}
	if diff := cmp.Diff([]string{"alice", "bob", "carol"}, reg.Usernames()); diff != "" {
		t.Errorf("Usernames mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryBroadcast(t *testing.T) {
	reg := NewRegistry(nil)
	alice, bob, carol := &fakePeer{}, &fakePeer{}, &fakePeer{}
	reg.Add("alice", "c1", alice)
	reg.Add("bob", "c2", bob)
	reg.Add("carol", "c3", carol)
	ctx := context.Background()

	if n := reg.Broadcast(ctx, "alice", "hi"); n != 2 {
		t.Fatalf("Broadcast delivered %d, want 2", n)
	}
	if got := alice.take(); len(got) != 0 {
		t.Errorf("sender received its own broadcast: %+v", got)
	}
	want := []protocol.Message{protocol.NewChat("alice: hi")}
	for name, p := range map[string]*fakePeer{"bob": bob, "carol": carol} {
		if diff := cmp.Diff(want, p.take()); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}

	if n := reg.BroadcastSystem(ctx, "notice"); n != 3 {
		t.Fatalf("BroadcastSystem delivered %d, want 3", n)
	}
	for _, p := range []*fakePeer{alice, bob, carol} {
		if diff := cmp.Diff([]protocol.Message{protocol.NewSystem("notice")}, p.take()); diff != "" {
			t.Errorf("system broadcast mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestRegistryBroadcastSkipsFailedPeer(t *testing.T) {
	metrics := NewMetrics()
	reg := NewRegistry(metrics)
	broken, ok := &fakePeer{fail: true}, &fakePeer{}
	reg.Add("broken", "c1", broken)
	reg.Add("ok", "c2", ok)

	if n := reg.BroadcastSystem(context.Background(), "x"); n != 1 {
		t.Fatalf("delivered %d, want 1", n)
	}
	if len(ok.take()) != 1 {
		t.Fatal("healthy peer missed the broadcast")
	}
	if got := metrics.SendFailures.Load(); got != 1 {
		t.Fatalf("SendFailures = %d, want 1", got)
	}
}

func TestRegistrySendTo(t *testing.T) {
	reg := NewRegistry(nil)
	bob := &fakePeer{}
	reg.Add("bob", "c2", bob)
	ctx := context.Background()

	if !reg.SendTo(ctx, "bob", protocol.NewChat("x")) {
		t.Fatal("SendTo(bob) = false")
	}
	if reg.SendTo(ctx, "ghost", protocol.NewChat("x")) {
		t.Fatal("SendTo(ghost) = true")
	}
	if len(bob.take()) != 1 {
		t.Fatal("bob did not receive the message")
	}
}

func TestRegistryConcurrentMutation(t *testing.T) {
	reg := NewRegistry(nil)
	const users = 50
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user%d", i)
			reg.Add(name, "c", &fakePeer{})
			reg.BroadcastSystem(context.Background(), "tick")
			_ = reg.Usernames()
			if i%2 == 0 {
				reg.Remove(name)
			}
		}(i)
	}
	wg.Wait()
	if got := reg.Count(); got != users/2 {
		t.Fatalf("Count = %d, want %d", got, users/2)
	}
}
