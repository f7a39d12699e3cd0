package dvbio

import (
	"time"

	"github.com/tsforge/astragate/internal/pipeline"
	"github.com/tsforge/astragate/internal/ts"
)

// Adapter owns one DVB device's FrontEnd, Demux, and DVR, and drives a
// pipeline.Node representing this source's place in the routing graph —
// the per-PID demand the node's children accumulate drives which PIDs
// the Demux opens, per §3.6's runtime-state fields and §4.3's demux
// policy.
type Adapter struct {
	Index int // adapter index (the "N" in /dev/dvb/adapterN)

	FE  *FrontEnd
	DMX *Demux
	DVR *DVR

	// Node is the pipeline source node packets are delivered through.
	// OnJoin/OnLeave are wired to DMX.SetPID by NewAdapter.
	Node *pipeline.Node

	started bool
}

// NewAdapter wires a FrontEnd/Demux/DVR triple into a pipeline source
// node: DVR packets are fed into Node via pipeline.Send, and join/leave
// of a PID on Node toggles the corresponding demux filter.
func NewAdapter(index, device int, params TuneParams, budget bool) *Adapter {
	a := &Adapter{
		Index: index,
		FE:    NewFrontEnd(index, device, params),
		DMX:   NewDemux(index, device, budget),
		DVR:   NewDVR(index, device),
	}
	a.Node = pipeline.New("adapter", nil)
	a.Node.OnJoin = func(pid uint16) { _ = a.DMX.SetPID(pid, true) }
	a.Node.OnLeave = func(pid uint16) { _ = a.DMX.SetPID(pid, false) }
	a.DVR.OnPacket = func(pkt ts.Packet) { pipeline.Send(a.Node, pkt) }
	return a
}

// Start opens the frontend, tunes it, and opens the demux and DVR device
// nodes, leaving the caller to drive DVR.Pump and FE.Tick in its reactor
// loop.
func (a *Adapter) Start() error {
	if err := a.FE.Open(); err != nil {
		return err
	}
	if err := a.FE.Tune(); err != nil {
		return err
	}
	if err := a.DMX.Open(); err != nil {
		return err
	}
	if err := a.DVR.Open(); err != nil {
		return err
	}
	a.started = true
	return nil
}

// Stop closes DVR, demux, and frontend handles in reverse order.
func (a *Adapter) Stop() error {
	a.started = false
	a.DVR.Close()
	a.DMX.Close()
	return a.FE.Close()
}

// Retune issues DMX_STOP/DMX_START on every open demux handle to flush
// stale data, the "downward change signal" response described in §4.3.
func (a *Adapter) Retune() {
	a.DMX.Bounce()
}

// RunOnce performs one DVR read/feed cycle and one frontend status poll,
// intended to be called repeatedly from the reactor's ~1Hz tick plus a
// tight DVR-read loop; exposed as a single call so tests can drive both
// halves deterministically.
func (a *Adapter) RunOnce(deviceLostTimeout time.Duration) error {
	if !a.started {
		return nil
	}
	if _, ok := a.FE.PollStatus(); ok {
		// status changed or was merely drained; either way fall through
	}
	return a.DVR.Pump(deviceLostTimeout)
}

// Status exposes the front end's latched quality counters for
// internal/diagfs's `/adapters/<n>/status` diagnostics file.
func (a *Adapter) Status() (state FEState, fe FEStatus, signal, snr, ber, unc int) {
	status, sig, sn, be, un := a.FE.Status()
	return a.FE.State, status, sig, sn, be, un
}
