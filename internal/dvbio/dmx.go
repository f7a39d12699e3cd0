package dvbio

import (
	"fmt"
	"os"

	"github.com/tsforge/astragate/internal/ts"
)

// dmxPESFilterParams mirrors struct dmx_pes_filter_params.
type dmxPESFilterParams struct {
	PID     uint16
	Input   uint32
	Output  uint32
	PESType uint32
	Flags   uint32
}

const (
	dmxInFrontend    = 0
	dmxOutTSTap      = 3
	dmxPESOther      = 20
	dmxImmediateStrt = 0x04
)

// Demux programs one adapter's demux device node: in per-PID mode a
// separate handle is opened per joined PID; in budget mode a single
// handle is opened once with PID 0x2000 (full TS), grounded on
// dmx_set_pid/dmx_open/dmx_bounce/dmx_close (dmx.c).
type Demux struct {
	Adapter, Device int
	Budget          bool

	devName string
	fds     [ts.MaxPID]*os.File
	budgetFD *os.File
}

// NewDemux constructs a Demux bound to one adapter/device pair.
func NewDemux(adapter, device int, budget bool) *Demux {
	return &Demux{
		Adapter: adapter, Device: device, Budget: budget,
		devName: fmt.Sprintf("/dev/dvb/adapter%d/demux%d", adapter, device),
	}
}

func (d *Demux) openOne() (*os.File, error) {
	return os.OpenFile(d.devName, os.O_WRONLY, 0)
}

func (d *Demux) joinFilter(fh *os.File, pid uint16) error {
	params := dmxPESFilterParams{
		PID: pid, Input: dmxInFrontend, Output: dmxOutTSTap,
		PESType: dmxPESOther, Flags: dmxImmediateStrt,
	}
	return ioctlPtr(int(fh.Fd()), dmxSetPESFilter, ptrOf(&params))
}

// Open opens the demux in budget mode (one handle, PID 0x2000) or leaves
// per-PID mode ready for SetPID calls, mirroring dmx_open.
func (d *Demux) Open() error {
	fh, err := d.openOne()
	if err != nil {
		return fmt.Errorf("dvbio: open demux: %w", err)
	}
	if d.Budget {
		if err := d.joinFilter(fh, 0x2000); err != nil {
			fh.Close()
			return fmt.Errorf("dvbio: DMX_SET_PES_FILTER budget: %w", err)
		}
		d.budgetFD = fh
		return nil
	}
	fh.Close()
	return nil
}

// SetPID opens (joined=true) or closes (joined=false) the demux handle
// for pid. A no-op in budget mode, mirroring dmx_set_pid.
func (d *Demux) SetPID(pid uint16, joined bool) error {
	if d.Budget {
		return nil
	}
	if int(pid) >= ts.MaxPID {
		return fmt.Errorf("dvbio: demux pid %d out of range", pid)
	}
	if joined {
		if d.fds[pid] != nil {
			return nil
		}
		fh, err := d.openOne()
		if err != nil {
			return fmt.Errorf("dvbio: open demux for pid %d: %w", pid, err)
		}
		if err := d.joinFilter(fh, pid); err != nil {
			fh.Close()
			return fmt.Errorf("dvbio: DMX_SET_PES_FILTER pid %d: %w", pid, err)
		}
		d.fds[pid] = fh
	} else if d.fds[pid] != nil {
		d.fds[pid].Close()
		d.fds[pid] = nil
	}
	return nil
}

// Bounce issues DMX_STOP then DMX_START on every open handle, flushing
// stale data on a section-changed/retune signal, grounded on dmx_bounce.
func (d *Demux) Bounce() {
	bounce := func(fh *os.File) {
		if fh == nil {
			return
		}
		fd := int(fh.Fd())
		_ = ioctlInt(fd, dmxStop, 0)
		_ = ioctlInt(fd, dmxStart, 0)
	}
	if d.Budget {
		bounce(d.budgetFD)
		return
	}
	for _, fh := range d.fds {
		bounce(fh)
	}
}

// Close releases every open demux handle, mirroring dmx_close.
func (d *Demux) Close() {
	if d.budgetFD != nil {
		d.budgetFD.Close()
		d.budgetFD = nil
	}
	for i, fh := range d.fds {
		if fh != nil {
			fh.Close()
			d.fds[i] = nil
		}
	}
}

// OpenCount reports how many demux handles are currently open, for the
// testable property (P5) "DMX handles open = subscribed_pids count
// (budget=false) or 1 (budget=true)".
func (d *Demux) OpenCount() int {
	if d.Budget {
		if d.budgetFD != nil {
			return 1
		}
		return 0
	}
	n := 0
	for _, fh := range d.fds {
		if fh != nil {
			n++
		}
	}
	return n
}
