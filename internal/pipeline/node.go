// Package pipeline implements the TS packet routing graph: nodes with
// per-PID demand counters that propagate join/leave upward as children
// attach, detach, or change their subscriptions, grounded on
// module_stream_t and the module_stream_demux_* macros in
// _examples/original_source/modules/astra/module_stream.h and the
// attach/send/join_pid/leave_pid wiring in
// _examples/original_source/core/stream.c.
package pipeline

import (
	"fmt"

	"github.com/tsforge/astragate/internal/ts"
)

// Sink is a node's packet callback. It receives every packet the node is
// handed, before any fan-out to children.
type Sink func(n *Node, pkt ts.Packet)

// OnJoin/OnLeave notify a node's owner that its aggregate demand for a PID
// transitioned to/from zero, mirroring join_pid/leave_pid in
// module_stream_t — the source or demux driving this node uses this to
// open/close a hardware filter or forward the subscription to its own
// parent.
type OnJoin func(pid uint16)
type OnLeave func(pid uint16)

type editOp struct {
	kind  editKind
	child *Node
	pid   uint16
}

type editKind int

const (
	editAttach editKind = iota
	editDetach
	editJoin
	editLeave
)

// Node is one point in the pipeline graph: a named packet sink with a set
// of attached children and a per-PID demand bitmap, per §3.5.
type Node struct {
	Name string
	Sink Sink

	OnJoin  OnJoin
	OnLeave OnLeave

	parent   *Node
	children []*Node

	demand [ts.MaxPID]uint16
	warned [ts.MaxPID]bool

	iterating bool
	editLog   []editOp
}

// New creates a detached node with the given sink callback. sink may be
// nil for a pure routing node (e.g. a demux with no local consumer).
func New(name string, sink Sink) *Node {
	return &Node{Name: name, Sink: sink}
}

// Demand reports the current reference count for pid.
func (n *Node) Demand(pid uint16) uint16 {
	return n.demand[pid]
}

// Children returns the node's attached children in attach order. The
// returned slice must not be mutated by the caller.
func (n *Node) Children() []*Node { return n.children }

// Attach adds child to n's child set and, for every PID already in
// child's demand, performs a join upward so n's own demand counters (and
// anything above n) reflect child's existing subscriptions. Rejects a
// cycle (child already an ancestor of n, or n already a descendant of
// child) with an error, per §4.2's "attach of a cycle is rejected by O(V)
// DFS".
func (n *Node) Attach(child *Node) error {
	if n.iterating {
		n.editLog = append(n.editLog, editOp{kind: editAttach, child: child})
		return nil
	}
	if wouldCycle(n, child) {
		return fmt.Errorf("pipeline: attach %s -> %s would create a cycle", n.Name, child.Name)
	}
	return n.attachNow(child)
}

func (n *Node) attachNow(child *Node) error {
	n.children = append(n.children, child)
	child.parent = n
	for pid := 0; pid < ts.MaxPID; pid++ {
		for i := uint16(0); i < child.demand[pid]; i++ {
			n.joinPID(uint16(pid))
		}
	}
	return nil
}

// wouldCycle reports whether attaching child under n would create a
// cycle: true if n is already reachable from child (child is an ancestor
// of n), which is the only way attach(n, child) can close a loop since
// child currently has no parent pointer back into n's ancestry otherwise.
func wouldCycle(n, child *Node) bool {
	if n == child {
		return true
	}
	for p := n.parent; p != nil; p = p.parent {
		if p == child {
			return true
		}
	}
	return false
}

// Detach removes child from n's child set and, for every PID child
// currently demands, performs a leave upward — the reverse of Attach.
func (n *Node) Detach(child *Node) {
	if n.iterating {
		n.editLog = append(n.editLog, editOp{kind: editDetach, child: child})
		return
	}
	n.detachNow(child)
}

func (n *Node) detachNow(child *Node) {
	idx := -1
	for i, c := range n.children {
		if c == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	n.children = append(n.children[:idx], n.children[idx+1:]...)
	child.parent = nil
	for pid := 0; pid < ts.MaxPID; pid++ {
		for i := uint16(0); i < child.demand[pid]; i++ {
			n.leavePID(uint16(pid))
		}
	}
}

// JoinPID increments n's own demand counter for pid — call this when n
// itself (not a child) begins wanting pid, e.g. a leaf sink subscribing.
// A 0->1 transition propagates a join to n's parent and fires OnJoin.
func (n *Node) JoinPID(pid uint16) {
	if n.iterating {
		n.editLog = append(n.editLog, editOp{kind: editJoin, pid: pid})
		return
	}
	n.joinPID(pid)
}

// LeavePID decrements n's demand counter for pid. A 1->0 transition
// propagates a leave to n's parent and fires OnLeave. Leaving a PID with
// zero demand is tolerated (idempotent), per §4.2.
func (n *Node) LeavePID(pid uint16) {
	if n.iterating {
		n.editLog = append(n.editLog, editOp{kind: editLeave, pid: pid})
		return
	}
	n.leavePID(pid)
}

func (n *Node) joinPID(pid uint16) {
	if n.demand[pid] == 0xFFFF {
		if !n.warned[pid] {
			n.warned[pid] = true
		}
		return
	}
	n.demand[pid]++
	if n.demand[pid] == 1 {
		if n.OnJoin != nil {
			n.OnJoin(pid)
		}
		if n.parent != nil {
			n.parent.joinPID(pid)
		}
	}
}

func (n *Node) leavePID(pid uint16) {
	if n.demand[pid] == 0 {
		return
	}
	n.demand[pid]--
	if n.demand[pid] == 0 {
		n.warned[pid] = false
		if n.OnLeave != nil {
			n.OnLeave(pid)
		}
		if n.parent != nil {
			n.parent.leavePID(pid)
		}
	}
}

// Send delivers pkt to n's own Sink (if set) and then, in insertion
// order, to every attached child whose demand counter for the packet's
// PID is non-zero. Structural mutations a child performs on n during this
// call (Attach/Detach/JoinPID/LeavePID) are queued and applied once
// iteration completes, per §4.2's "defers structural changes to the end
// of the current send using a small edit log".
func Send(n *Node, pkt ts.Packet) {
	if n.Sink != nil {
		n.Sink(n, pkt)
	}

	pid := pkt.PID()
	n.iterating = true
	children := n.children
	for _, child := range children {
		if child.demand[pid] > 0 {
			Send(child, pkt)
		}
	}
	n.iterating = false

	if len(n.editLog) > 0 {
		log := n.editLog
		n.editLog = nil
		for _, op := range log {
			switch op.kind {
			case editAttach:
				_ = n.Attach(op.child)
			case editDetach:
				n.Detach(op.child)
			case editJoin:
				n.JoinPID(op.pid)
			case editLeave:
				n.LeavePID(op.pid)
			}
		}
	}
}
