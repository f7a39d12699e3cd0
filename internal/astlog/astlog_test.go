package astlog

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(orig)
		log.SetFlags(origFlags)
	}()
	fn()
	return buf.String()
}

func TestNewWithID(t *testing.T) {
	l := New("ci", "slot0")
	out := captureLog(t, func() { l.Printf("handshake complete") })
	if !strings.Contains(out, "[ci slot0] handshake complete") {
		t.Errorf("got %q", out)
	}
}

func TestNewWithoutID(t *testing.T) {
	l := New("reactor", "")
	out := captureLog(t, func() { l.Printf("started") })
	if !strings.Contains(out, "[reactor] started") {
		t.Errorf("got %q", out)
	}
}

func TestMalformed(t *testing.T) {
	l := New("ts", "pid100")
	out := captureLog(t, func() { l.Malformed("section", errors.New("crc mismatch")) })
	if !strings.Contains(out, "malformed section") || !strings.Contains(out, "crc mismatch") {
		t.Errorf("got %q", out)
	}
}

func TestTransient(t *testing.T) {
	l := New("dvbio", "adapter0")
	out := captureLog(t, func() { l.Transient("dvr read", errors.New("EAGAIN")) })
	if !strings.Contains(out, "transient io error during dvr read") {
		t.Errorf("got %q", out)
	}
}

func TestRecoverable(t *testing.T) {
	l := New("camclient", "")
	out := captureLog(t, func() { l.Recoverable("cam_reset", errors.New("login rejected")) })
	if !strings.Contains(out, "recoverable error (cam_reset)") {
		t.Errorf("got %q", out)
	}
}
