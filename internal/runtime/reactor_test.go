package runtime

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestReactorFiresOneShotTimer(t *testing.T) {
	r, err := NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	defer r.Close()

	fired := make(chan struct{}, 1)
	r.AddTimer(10*time.Millisecond, func() {
		fired <- struct{}{}
		r.Stop()
	})

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer never fired")
	}
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestReactorCancelTimerPreventsFiring(t *testing.T) {
	r, err := NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	defer r.Close()

	fired := false
	timer := r.AddTimer(20*time.Millisecond, func() { fired = true })
	r.CancelTimer(timer)
	r.AddTimer(40*time.Millisecond, func() { r.Stop() })

	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fired {
		t.Fatalf("canceled timer fired anyway")
	}
}

func TestReactorWakesOnFDReadability(t *testing.T) {
	r, err := NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	defer r.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	got := make(chan EventKind, 1)
	if err := r.AddFD(fds[0], EventReadable, func(kind EventKind) {
		buf := make([]byte, 1)
		unix.Read(fds[0], buf)
		got <- kind
		r.Stop()
	}); err != nil {
		t.Fatalf("AddFD: %v", err)
	}

	go func() { done := r.Run(); _ = done }()

	if _, err := unix.Write(fds[1], []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case kind := <-got:
		if kind&EventReadable == 0 {
			t.Fatalf("callback kind = %v, want EventReadable set", kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("reactor never woke on FD readability")
	}
}

func TestAddPeriodicRearms(t *testing.T) {
	r, err := NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	defer r.Close()

	count := 0
	var periodic *Timer
	periodic = r.AddPeriodic(5*time.Millisecond, func() {
		count++
		if count >= 3 {
			r.CancelTimer(periodic)
			r.Stop()
		}
	})

	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count < 3 {
		t.Fatalf("periodic timer fired %d times, want at least 3", count)
	}
}
