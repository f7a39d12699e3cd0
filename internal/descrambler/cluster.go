package descrambler

import "github.com/tsforge/astragate/internal/ts"

// DefaultClusterSize is used when no adapter-specific suggestion is
// available, matching the typical get_suggested_cluster_size() value
// for software CSA batching.
const DefaultClusterSize = 64

// Cluster batches scrambled packets for one program before handing
// them to a Descrambler, mirroring decrypt.c's r_buffer/cluster
// fill loop: packets accumulate until Size is reached, then Flush
// descrambles the whole batch in one call.
type Cluster struct {
	Size int

	packets [][]byte
	keys    KeyState
}

// NewCluster creates a cluster batching up to size packets; size <= 0
// uses DefaultClusterSize.
func NewCluster(size int) *Cluster {
	if size <= 0 {
		size = DefaultClusterSize
	}
	return &Cluster{Size: size}
}

// Add appends pkt to the batch, returning true once the cluster has
// reached Size and should be flushed.
func (c *Cluster) Add(pkt ts.Packet) bool {
	buf := make([]byte, len(pkt))
	copy(buf, pkt)
	c.packets = append(c.packets, buf)
	return len(c.packets) >= c.Size
}

// SetKey routes a freshly decoded control word into the cluster's key
// state (see KeyState.SetKey for the immediate-vs-latched decision).
func (c *Cluster) SetKey(d Descrambler, key [16]byte) {
	c.keys.SetKey(d, key)
}

// Flush applies any latched key change (mirroring the is_new_key check
// that runs right before decrypt_packets), descrambles the accumulated
// packets, and resets the batch.
func (c *Cluster) Flush(d Descrambler) [][]byte {
	c.keys.Apply(d)
	out := c.packets
	d.Decrypt(out)
	c.packets = nil
	return out
}

// Len reports how many packets are currently batched.
func (c *Cluster) Len() int {
	return len(c.packets)
}
