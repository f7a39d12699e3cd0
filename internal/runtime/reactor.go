// Package runtime provides the shared single-threaded event reactor,
// timer wheel, worker-thread wake primitive, and growable record
// buffer that the pipeline, DVB I/O, and CI layers are all built on,
// grounded on the edge-triggered-epoll/min-heap-timer model used
// throughout _examples/original_source (see modules/stream/core.c's
// asc_job/asc_timer pair for the original reactor this one replaces).
package runtime

import (
	"container/heap"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// EventKind identifies which edge fired on a registered FD.
type EventKind int

const (
	EventReadable EventKind = 1 << iota
	EventWritable
	EventError
)

// Callback is invoked by Reactor.Run when a registered FD becomes
// ready, or when a timer's deadline elapses.
type Callback func(kind EventKind)

type fdHandler struct {
	fd       int
	callback Callback
	events   uint32
}

// Reactor is a single-threaded epoll-based event loop: one goroutine
// owns it and calls Run, which blocks until ctx-like shutdown via
// Stop. All registration/timer calls must happen from that same
// goroutine, or from within a callback — the reactor is not
// thread-safe by design, mirroring the single-reactor-thread
// scheduling model it backs.
type Reactor struct {
	epfd    int
	handlers map[int]*fdHandler
	timers  timerHeap
	stop    chan struct{}
	stopped bool
}

// NewReactor creates a reactor with its own epoll instance.
func NewReactor() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("runtime: epoll_create1: %w", err)
	}
	return &Reactor{
		epfd:     epfd,
		handlers: make(map[int]*fdHandler),
		stop:     make(chan struct{}),
	}, nil
}

// Close releases the epoll instance. The reactor must not be running.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}

// AddFD registers fd for edge-triggered readiness on the given event
// mask, invoking cb on every edge until RemoveFD is called.
func (r *Reactor) AddFD(fd int, kind EventKind, cb Callback) error {
	ev := epollMask(kind)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: ev, Fd: int32(fd)}); err != nil {
		return fmt.Errorf("runtime: epoll_ctl add fd=%d: %w", fd, err)
	}
	r.handlers[fd] = &fdHandler{fd: fd, callback: cb, events: ev}
	return nil
}

// RemoveFD unregisters fd. It does not close fd.
func (r *Reactor) RemoveFD(fd int) error {
	if _, ok := r.handlers[fd]; !ok {
		return nil
	}
	delete(r.handlers, fd)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("runtime: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

func epollMask(kind EventKind) uint32 {
	var ev uint32 = unix.EPOLLET
	if kind&EventReadable != 0 {
		ev |= unix.EPOLLIN
	}
	if kind&EventWritable != 0 {
		ev |= unix.EPOLLOUT
	}
	if kind&EventError != 0 {
		ev |= unix.EPOLLERR | unix.EPOLLHUP
	}
	return ev
}

// Timer is a handle returned by AddTimer/AddPeriodic, passed to
// CancelTimer.
type Timer struct {
	entry *timerEntry
}

// AddTimer schedules cb to run once, after d elapses.
func (r *Reactor) AddTimer(d time.Duration, cb func()) *Timer {
	e := &timerEntry{deadline: time.Now().Add(d), callback: cb}
	heap.Push(&r.timers, e)
	return &Timer{entry: e}
}

// AddPeriodic schedules cb to run every d, starting after the first d
// elapses; each run re-arms the next deadline from its own firing
// time rather than wall-clock drift accumulation.
func (r *Reactor) AddPeriodic(d time.Duration, cb func()) *Timer {
	e := &timerEntry{deadline: time.Now().Add(d), period: d, callback: cb}
	heap.Push(&r.timers, e)
	return &Timer{entry: e}
}

// CancelTimer prevents a pending timer from firing. Safe to call more
// than once.
func (r *Reactor) CancelTimer(t *Timer) {
	if t == nil || t.entry == nil {
		return
	}
	t.entry.canceled = true
}

// Stop breaks Run out of its loop after the current iteration.
func (r *Reactor) Stop() {
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stop)
}

const maxEpollEvents = 64

// Run drives the event loop: it waits on epoll with a timeout set to
// the next timer deadline (or indefinitely with no registered
// timers), dispatches ready FDs, then pops and runs any timers whose
// deadline has passed. It returns when Stop is called.
func (r *Reactor) Run() error {
	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		select {
		case <-r.stop:
			return nil
		default:
		}

		timeout := r.epollTimeout()
		n, err := unix.EpollWait(r.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("runtime: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			h, ok := r.handlers[int(events[i].Fd)]
			if !ok {
				continue
			}
			h.callback(eventKind(events[i].Events))
		}
		r.runDueTimers()
	}
}

func eventKind(ev uint32) EventKind {
	var kind EventKind
	if ev&unix.EPOLLIN != 0 {
		kind |= EventReadable
	}
	if ev&unix.EPOLLOUT != 0 {
		kind |= EventWritable
	}
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		kind |= EventError
	}
	return kind
}

// epollTimeout returns the millisecond timeout for EpollWait: -1
// (block indefinitely) with no timers pending, 0 if one is already
// due, else the remaining time until the nearest deadline.
func (r *Reactor) epollTimeout() int {
	deadline, ok := r.timers.nextDeadline()
	if !ok {
		return -1
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0
	}
	ms := remaining.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		ms = int64(^uint32(0) >> 1)
	}
	return int(ms)
}

// runDueTimers pops and fires every timer whose deadline has passed,
// re-arming periodic ones.
func (r *Reactor) runDueTimers() {
	now := time.Now()
	for len(r.timers) > 0 {
		next := r.timers[0]
		if next.canceled {
			heap.Pop(&r.timers)
			continue
		}
		if next.deadline.After(now) {
			return
		}
		heap.Pop(&r.timers)
		next.callback()
		if next.period > 0 && !next.canceled {
			next.deadline = now.Add(next.period)
			heap.Push(&r.timers, next)
		}
	}
}
