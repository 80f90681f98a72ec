package main

import (
	"context"
	"testing"
	"time"

	"github.com/opd-ai/privmesh/attachment"
	"github.com/opd-ai/privmesh/crypto"
	"github.com/opd-ai/privmesh/discovery"
	"github.com/opd-ai/privmesh/netstate"
	"github.com/opd-ai/privmesh/routingtable"
	"github.com/opd-ai/privmesh/typekey"
	"github.com/opd-ai/privmesh/vmconfig"
)

func testNode(t *testing.T) *Node {
	t.Helper()
	n, err := NewNode(vmconfig.New())
	if err != nil {
		t.Fatalf("NewNode() failed: %v", err)
	}
	if err := n.Core.Startup(context.Background()); err != nil {
		t.Fatalf("Startup() failed: %v", err)
	}
	t.Cleanup(func() { _ = n.Core.Shutdown(context.Background()) })
	return n
}

func TestNewNodeHasOneLocalIdentity(t *testing.T) {
	n := testNode(t)
	if n.LocalIds.Len() != 1 {
		t.Fatalf("LocalIds.Len() = %d, want 1", n.LocalIds.Len())
	}
}

func TestAttachDetachCycleDrivesMachine(t *testing.T) {
	n := testNode(t)

	if s, err := n.Attachment.Feed(attachment.AttachRequested); err != nil || s != attachment.Attaching {
		t.Fatalf("Feed(AttachRequested) = %v, %v; want Attaching, nil", s, err)
	}
	if s, err := n.Attachment.Feed(attachment.DetachRequested); err != nil {
		t.Fatalf("Feed(DetachRequested) failed: %v", err)
	} else if s != attachment.Detaching {
		t.Errorf("Feed(DetachRequested) = %v, want Detaching", s)
	}

	deadline := time.Now().Add(2 * time.Second)
	for n.Attachment.State() != attachment.Detached && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := n.Attachment.State(); got != attachment.Detached {
		t.Fatalf("final state = %v, want Detached", got)
	}
}

func TestRecordAndReadLastDiscovery(t *testing.T) {
	n := testNode(t)
	n.RecordDiscovery(discoveryResultFixture())
	if got := n.LastDiscovery(); got.HasDialInfo != true {
		t.Errorf("LastDiscovery().HasDialInfo = false, want true")
	}
}

func TestRememberAndLookupPeerInfo(t *testing.T) {
	n := testNode(t)
	id := nodeId(t, 1)
	n.RememberPeerInfo(routingtable.PeerInfo{NodeIds: []typekey.NodeId{id}})

	got, ok := n.PeerInfoFor(id)
	if !ok {
		t.Fatal("PeerInfoFor() found nothing after RememberPeerInfo()")
	}
	if len(got.NodeIds) != 1 || got.NodeIds[0] != id {
		t.Errorf("PeerInfoFor() NodeIds = %v, want [%v]", got.NodeIds, id)
	}
}

func nodeId(t *testing.T, b byte) typekey.NodeId {
	t.Helper()
	var key crypto.PublicKey
	key[0] = b
	return typekey.NodeId{Kind: crypto.VLD0, Key: key}
}

func discoveryResultFixture() discovery.Result {
	return discovery.Result{
		NetworkClass:  netstate.NetworkClassInboundCapable,
		DialInfoClass: discovery.DialInfoClassDirect,
		HasDialInfo:   true,
	}
}
