package descrambler

import (
	"testing"

	"github.com/tsforge/astragate/internal/ts"
)

func makeTestPacket(pid uint16) ts.Packet {
	pkt := make(ts.Packet, ts.PacketLen)
	pkt[0] = ts.SyncByte
	pkt.SetPID(pid)
	return pkt
}

func TestClusterFlushesAtSize(t *testing.T) {
	c := NewCluster(4)
	for i := 0; i < 3; i++ {
		if full := c.Add(makeTestPacket(100)); full {
			t.Fatalf("cluster reported full at %d packets", i+1)
		}
	}
	if full := c.Add(makeTestPacket(100)); !full {
		t.Fatalf("cluster did not report full at size 4")
	}
	if c.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", c.Len())
	}

	d := &fakeDescrambler{}
	out := c.Flush(d)
	if len(out) != 4 {
		t.Fatalf("flushed %d packets, want 4", len(out))
	}
	if d.decryptCalls != 1 {
		t.Fatalf("Decrypt calls = %d, want 1", d.decryptCalls)
	}
	if c.Len() != 0 {
		t.Fatalf("cluster not reset after flush")
	}
}

// TestClusterDefersKeyToFlush mirrors decrypt.c's guarantee that a
// mid-cluster key change doesn't apply until the cluster is flushed.
func TestClusterDefersKeyToFlush(t *testing.T) {
	c := NewCluster(2)
	d := &fakeDescrambler{}
	c.SetKey(d, key16(1, 2))
	c.Add(makeTestPacket(100))

	c.SetKey(d, key16(1, 9)) // odd half only, latched
	if d.oddInstalls != 0 {
		t.Fatalf("odd half installed before flush")
	}

	c.Add(makeTestPacket(100))
	c.Flush(d)
	if d.oddInstalls != 1 {
		t.Fatalf("odd half not installed on flush")
	}
}

func TestDefaultClusterSize(t *testing.T) {
	c := NewCluster(0)
	if c.Size != DefaultClusterSize {
		t.Fatalf("Size = %d, want DefaultClusterSize", c.Size)
	}
}
