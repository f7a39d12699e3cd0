package pipeline

import (
	"testing"

	"github.com/tsforge/astragate/internal/ts"
)

func makePacket(pid uint16) ts.Packet {
	pkt := make(ts.Packet, ts.PacketLen)
	pkt[0] = ts.SyncByte
	pkt.SetPID(pid)
	return pkt
}

// TestDemandPropagation mirrors S6: source S -> demux D -> {sink A wants
// {100}, sink B wants {100, 200}}. Detaching A leaves D with demand
// {100:1, 200:1}; detaching B leaves D with demand {}; S sees leave(100)
// and leave(200) in that order.
func TestDemandPropagation(t *testing.T) {
	var sourceLeaves []uint16
	source := New("source", nil)
	source.OnLeave = func(pid uint16) { sourceLeaves = append(sourceLeaves, pid) }

	demux := New("demux", nil)
	if err := source.Attach(demux); err != nil {
		t.Fatalf("attach demux: %v", err)
	}

	sinkA := New("sinkA", nil)
	sinkB := New("sinkB", nil)
	if err := demux.Attach(sinkA); err != nil {
		t.Fatal(err)
	}
	if err := demux.Attach(sinkB); err != nil {
		t.Fatal(err)
	}

	sinkA.JoinPID(100)
	sinkB.JoinPID(100)
	sinkB.JoinPID(200)

	if got := demux.Demand(100); got != 2 {
		t.Fatalf("demux demand(100) = %d, want 2", got)
	}
	if got := demux.Demand(200); got != 1 {
		t.Fatalf("demux demand(200) = %d, want 1", got)
	}
	if got := source.Demand(100); got != 1 {
		t.Fatalf("source demand(100) = %d, want 1", got)
	}

	demux.Detach(sinkA)
	if got := demux.Demand(100); got != 1 {
		t.Fatalf("after detach A: demux demand(100) = %d, want 1", got)
	}
	if got := demux.Demand(200); got != 1 {
		t.Fatalf("after detach A: demux demand(200) = %d, want 1", got)
	}

	demux.Detach(sinkB)
	if got := demux.Demand(100); got != 0 {
		t.Fatalf("after detach B: demux demand(100) = %d, want 0", got)
	}
	if got := demux.Demand(200); got != 0 {
		t.Fatalf("after detach B: demux demand(200) = %d, want 0", got)
	}

	if len(sourceLeaves) != 2 || sourceLeaves[0] != 100 || sourceLeaves[1] != 200 {
		t.Fatalf("source leave order = %v, want [100 200]", sourceLeaves)
	}
}

// TestAttachRejectsCycle covers attach-of-a-cycle rejection per §4.2.
func TestAttachRejectsCycle(t *testing.T) {
	a := New("a", nil)
	b := New("b", nil)
	if err := a.Attach(b); err != nil {
		t.Fatalf("attach a->b: %v", err)
	}
	if err := b.Attach(a); err == nil {
		t.Fatal("expected cycle rejection for b -> a")
	}
}

// TestSendFanOut verifies only children whose demand matches the packet's
// PID receive it, and that the node's own Sink always fires.
func TestSendFanOut(t *testing.T) {
	var rootSeen, aSeen, bSeen int
	root := New("root", func(n *Node, pkt ts.Packet) { rootSeen++ })
	a := New("a", func(n *Node, pkt ts.Packet) { aSeen++ })
	b := New("b", func(n *Node, pkt ts.Packet) { bSeen++ })

	if err := root.Attach(a); err != nil {
		t.Fatal(err)
	}
	if err := root.Attach(b); err != nil {
		t.Fatal(err)
	}
	a.JoinPID(100)
	b.JoinPID(200)

	Send(root, makePacket(100))
	if rootSeen != 1 || aSeen != 1 || bSeen != 0 {
		t.Fatalf("after PID 100: root=%d a=%d b=%d, want 1 1 0", rootSeen, aSeen, bSeen)
	}

	Send(root, makePacket(200))
	if rootSeen != 2 || aSeen != 1 || bSeen != 1 {
		t.Fatalf("after PID 200: root=%d a=%d b=%d, want 2 1 1", rootSeen, aSeen, bSeen)
	}
}

// TestSendReentrantMutationDeferred exercises a child that detaches
// itself mid-delivery; the mutation must not disturb the in-flight
// iteration and must apply once Send returns.
func TestSendReentrantMutationDeferred(t *testing.T) {
	root := New("root", nil)
	var self *Node
	detached := false
	self = New("self", func(n *Node, pkt ts.Packet) {
		root.Detach(self)
		detached = true
	})
	if err := root.Attach(self); err != nil {
		t.Fatal(err)
	}
	self.JoinPID(50)

	Send(root, makePacket(50))
	if !detached {
		t.Fatal("sink never ran")
	}
	if len(root.Children()) != 0 {
		t.Fatalf("children after deferred detach = %d, want 0", len(root.Children()))
	}
}

func TestLeaveUnsubscribedIsIdempotent(t *testing.T) {
	n := New("n", nil)
	n.LeavePID(42) // must not panic or go negative
	if got := n.Demand(42); got != 0 {
		t.Fatalf("demand(42) = %d, want 0", got)
	}
}
