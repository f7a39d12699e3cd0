// Package diagfs exposes live pipeline/adapter/CA diagnostics as a
// read-only FUSE tree, so an operator can `cat` a status line instead
// of speaking a separate diagnostics protocol — adapted from
// internal/vodfs's mount/root/dirstream/inode-hashing pattern, with
// the Movies/TV catalog tree replaced by the three diagnostic trees
// named in SPEC_FULL.md's DOMAIN STACK: /pipeline/<node>/demand,
// /adapters/<n>/status, /ca/<slot>/sessions.
package diagfs

// Source supplies the live text this filesystem renders. Implementations
// live in cmd/astragate, bridging the pipeline graph, DVB adapters, and
// CI device without diagfs importing any of them directly.
type Source interface {
	// PipelineNodes lists node names currently in the graph.
	PipelineNodes() []string
	// PipelineDemand renders the PID demand bitmap for one node, or ""
	// if the node no longer exists.
	PipelineDemand(node string) string

	// Adapters lists adapter indices currently attached.
	Adapters() []int
	// AdapterStatus renders FE lock/signal/SNR/BER/UNC for one
	// adapter, or "" if it doesn't exist.
	AdapterStatus(adapter int) string

	// CASlots lists CI slot numbers currently tracked.
	CASlots() []int
	// CASessions renders the open EN 50221 sessions for one slot, or
	// "" if the slot doesn't exist.
	CASessions(slot int) string
}
