package runtime

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Ring is a fixed-size, fixed-record ring buffer of records (normally
// 188-byte TS packets). It is written by exactly one worker goroutine
// and drained by exactly one reactor callback, so the only
// synchronization needed is the atomic head/tail pair — no locks on
// the hot path.
type Ring struct {
	recordSize int
	storage    []byte
	capacity   int // number of records

	head uint64 // next slot to write (producer-owned)
	tail uint64 // next slot to read (consumer-owned)

	overflowed atomic.Bool
}

// NewRing creates a ring holding capacity records of recordSize bytes
// each.
func NewRing(recordSize, capacity int) *Ring {
	return &Ring{
		recordSize: recordSize,
		storage:    make([]byte, recordSize*capacity),
		capacity:   capacity,
	}
}

// Push writes one record non-blocking. It returns false if the ring
// is full, mirroring the producer's non-blocking write with
// once-per-interval overflow reporting left to the caller.
func (r *Ring) Push(record []byte) bool {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	if head-tail >= uint64(r.capacity) {
		r.overflowed.Store(true)
		return false
	}
	slot := int(head % uint64(r.capacity))
	copy(r.storage[slot*r.recordSize:(slot+1)*r.recordSize], record)
	atomic.AddUint64(&r.head, 1)
	return true
}

// Pop reads one record into dst, which must be at least recordSize
// bytes. It returns false if the ring is empty.
func (r *Ring) Pop(dst []byte) bool {
	tail := atomic.LoadUint64(&r.tail)
	head := atomic.LoadUint64(&r.head)
	if tail == head {
		return false
	}
	slot := int(tail % uint64(r.capacity))
	copy(dst, r.storage[slot*r.recordSize:(slot+1)*r.recordSize])
	atomic.AddUint64(&r.tail, 1)
	return true
}

// Overflowed reports and clears whether a Push has been dropped since
// the last call, for once-per-interval overflow logging.
func (r *Ring) Overflowed() bool {
	return r.overflowed.Swap(false)
}

// Worker owns a blocking read loop (DVB DVR device, file replay,
// socket) running on its own goroutine, copying fixed-size records
// into a Ring and signalling the reactor through a socketpair-backed
// self-pipe so the reactor's epoll can wake on plain readability
// rather than polling.
type Worker struct {
	Ring *Ring

	wakeR int
	wakeW int

	read func([]byte) (int, error)

	shutdown atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a worker that calls read to fill one record at a
// time (read must fill the full record or return an error — callers
// typically wrap a DVR/file handle with io.ReadFull).
func NewWorker(recordSize, ringCapacity int, read func([]byte) (int, error)) (*Worker, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("runtime: socketpair: %w", err)
	}
	return &Worker{
		Ring:  NewRing(recordSize, ringCapacity),
		wakeR: fds[0],
		wakeW: fds[1],
		read:  read,
		done:  make(chan struct{}),
	}, nil
}

// WakeFD is the reactor-side end of the self-pipe: register it with
// Reactor.AddFD(EventReadable, ...) and drain the Ring from the
// callback.
func (w *Worker) WakeFD() int { return w.wakeR }

// Start spawns the worker's read loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the read loop to exit and joins it. The blocking read
// itself is not interrupted — callers should close the underlying
// file descriptor first so the in-flight read returns an error.
func (w *Worker) Stop() {
	w.shutdown.Store(true)
	w.wg.Wait()
	unix.Close(w.wakeR)
	unix.Close(w.wakeW)
}

func (w *Worker) loop() {
	defer w.wg.Done()
	record := make([]byte, w.Ring.recordSize)
	for !w.shutdown.Load() {
		if _, err := w.read(record); err != nil {
			return
		}
		if !w.Ring.Push(record) {
			log.Printf("runtime: worker ring full, dropping record")
		}
		w.wake()
	}
}

// wake writes a single byte to the self-pipe, non-blocking: the
// reactor only needs to know "there is new data", so a saturated pipe
// (reactor already has a wake pending) is not an error.
func (w *Worker) wake() {
	_, err := unix.Write(w.wakeW, []byte{0})
	if err != nil && err != unix.EAGAIN {
		log.Printf("runtime: worker wake write: %v", err)
	}
}

// Drain reads and discards pending wake bytes from the reactor side,
// to be called once per reactor callback invocation after draining
// the Ring.
func (w *Worker) Drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(w.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
