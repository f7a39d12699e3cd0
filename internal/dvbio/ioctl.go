// Package dvbio drives the Linux DVB API (frontend, demux, DVR device
// nodes) via golang.org/x/sys/unix ioctl calls, grounded on
// _examples/original_source/modules/dvb/{dvb.h,fe.c,src/dmx.c}. It tunes
// the front end, programs per-PID (or full-TS budget) demux filters,
// drains the DVR character device, and hands a clean TS byte stream to
// the pipeline.
package dvbio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// DVB API ioctl request codes, from linux/dvb/frontend.h and
// linux/dvb/dmx.h. Go has no linux/dvb headers in its sys package, so
// these are the same magic numbers the kernel UAPI defines (_IO/_IOW
// family on the 'o' ioctl type for frontend, 'o' for demux).
const (
	feGetInfo            = 0x80246f6d
	feReadStatus         = 0x80046f69
	feReadBER            = 0x80046f6a
	feReadSignalStrength = 0x80046f6b
	feReadSNR            = 0x80046f6c
	feReadUncorrected    = 0x80046f6d
	feSetFrontend        = 0x40246f68
	feGetFrontend        = 0x80246f6f
	feGetEvent           = 0x80386f78
	feDiseqcSendMaster   = 0x40046f41
	feDiseqcRecvSlave    = 0x80046f42
	feDiseqcSendBurst    = 0x40046f43
	feSetTone            = 0x40046f44
	feSetVoltage         = 0x40046f45
	feSetProperty        = 0x40106f52
	feGetProperty        = 0x80106f53

	dmxStart         = 0x00006f29
	dmxStop          = 0x00006f2a
	dmxSetPESFilter  = 0x40246f2c
	dmxSetBufferSize = 0x40006f2d
)

// FEStatus mirrors fe_status_t: a bitmask of frontend lock-progress bits.
type FEStatus uint32

const (
	FEHasSignal  FEStatus = 0x01
	FEHasCarrier FEStatus = 0x02
	FEHasViterbi FEStatus = 0x04
	FEHasSync    FEStatus = 0x08
	FEHasLock    FEStatus = 0x10
	FETimedout   FEStatus = 0x20
	FEReinit     FEStatus = 0x40
)

func (s FEStatus) String() string {
	b := [5]byte{'_', '_', '_', '_', '_'}
	if s&FEHasSignal != 0 {
		b[0] = 'S'
	}
	if s&FEHasCarrier != 0 {
		b[1] = 'C'
	}
	if s&FEHasViterbi != 0 {
		b[2] = 'V'
	}
	if s&FEHasSync != 0 {
		b[3] = 'Y'
	}
	if s&FEHasLock != 0 {
		b[4] = 'L'
	}
	return string(b[:])
}

// DeliverySystem identifies the tuner modulation family, per §3.6.
type DeliverySystem int

const (
	SystemDVBS DeliverySystem = iota
	SystemDVBS2
	SystemDVBT
	SystemDVBT2
	SystemDVBC
	SystemATSC
)

// SEC voltage/tone values, from linux/dvb/frontend.h, used both directly
// by ioctl calls and to compute DiSEqC command bytes.
const (
	secVoltageOff = 0
	secVoltage13  = 1
	secVoltage18  = 2

	secToneOff = 0
	secToneOn  = 1

	secMiniA = 0
	secMiniB = 1
)

// ioctlInt issues an ioctl whose argument is an immediate value rather
// than a pointer to a struct (FE_SET_VOLTAGE, FE_SET_TONE,
// FE_DISEQC_SEND_BURST, DMX_START/DMX_STOP take no structure).
func ioctlInt(fd int, req uint32, value int) error {
	return unix.IoctlSetInt(fd, req, value)
}

// ioctlPtr issues an ioctl that reads or writes through a pointer
// (FE_GET_EVENT, FE_SET_FRONTEND, FE_DISEQC_SEND_MASTER_CMD,
// DMX_SET_PES_FILTER).
func ioctlPtr(fd int, req uint32, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

// ptrOf returns v's address as an unsafe.Pointer, for passing a typed
// struct into ioctlPtr.
func ptrOf[T any](v *T) unsafe.Pointer {
	return unsafe.Pointer(v)
}
