package runtime

import "testing"

func TestBufferWriteReadAdvance(t *testing.T) {
	b := NewBuffer(16)
	b.Write([]byte("hello"))
	if b.Len() != 5 {
		t.Fatalf("Len = %d, want 5", b.Len())
	}
	if string(b.Bytes()) != "hello" {
		t.Fatalf("Bytes = %q, want hello", b.Bytes())
	}
	b.Advance(2)
	if string(b.Bytes()) != "llo" {
		t.Fatalf("Bytes after advance = %q, want llo", b.Bytes())
	}
	b.Write([]byte("!!"))
	if string(b.Bytes()) != "llo!!" {
		t.Fatalf("Bytes after append = %q, want llo!!", b.Bytes())
	}
}

func TestBufferAdvanceToEmptyResetsOffset(t *testing.T) {
	b := NewBuffer(16)
	b.Write([]byte("abc"))
	b.Advance(3)
	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
	if b.off != 0 {
		t.Fatalf("off = %d, want 0 after fully draining", b.off)
	}
}

func TestBufferGrowsPastThreshold(t *testing.T) {
	b := NewBuffer(4)
	chunk := make([]byte, 1024)
	for i := 0; i < 17*1024; i++ {
		b.Write(chunk)
	}
	if b.Len() != 17*1024*1024 {
		t.Fatalf("Len = %d, want %d", b.Len(), 17*1024*1024)
	}
}

func TestBufferAdvanceOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic advancing past Len")
		}
	}()
	b := NewBuffer(16)
	b.Write([]byte("ab"))
	b.Advance(5)
}

func TestBufferCompactsWithoutReallocating(t *testing.T) {
	b := NewBuffer(16)
	b.Write([]byte("0123456789")) // len=10, cap=16
	b.Advance(8)                  // unread=2, 14 bytes free once compacted
	before := cap(b.buf)
	// This write only fits once the already-read prefix is reclaimed,
	// so it should compact in place rather than growing capacity.
	b.Write(make([]byte, 10))
	if cap(b.buf) != before {
		t.Fatalf("capacity changed from %d to %d; expected in-place compaction", before, cap(b.buf))
	}
	if b.Len() != 12 {
		t.Fatalf("Len = %d, want 12", b.Len())
	}
}
