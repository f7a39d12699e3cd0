package dvbio

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// CA device ioctls, from linux/dvb/ca.h.
const (
	caGetCap      = 0x80044f00
	caGetSlotInfo = 0xc0104f01
	caReset       = 0x40044f02
)

// Slot type and slot-info flags, linux/dvb/ca.h.
const (
	caCI         = 0x01
	caCILink     = 0x02
	caCIPhys     = 0x04
	caModuleReady = 0x01 // CA_CI_MODULE_READY
)

// caCaps mirrors struct ca_caps.
type caCaps struct {
	SlotNum  uint32
	SlotType uint32
	DescrNum uint32
	DescrType uint32
}

// caSlotInfo mirrors struct ca_slot_info.
type caSlotInfo struct {
	Num   int32
	Type  int32
	Flags uint32
}

// CADevice opens `/dev/dvb/adapterN/caM` and exposes the EN 50221
// transport bytestream (§6's "bytestream over /dev/dvb/adapterN/caM
// carrying TPDUs") plus CA_GET_SLOT_INFO polling for module-ready
// detection, mirroring ca_open/ca_close/ca_slot_loop's ioctl half.
type CADevice struct {
	Adapter, Device int

	fd       int
	SlotsNum int
}

// NewCADevice constructs an unopened CA device handle.
func NewCADevice(adapter, device int) *CADevice {
	return &CADevice{Adapter: adapter, Device: device}
}

// Open opens the CA device node and queries CA_GET_CAP, mirroring
// ca_open. Returns an error if the device has no CI-link-layer slots
// (caCILink unsupported is unrecoverable per §4.4/§7's Fatal class for
// ioctl misuse — the caller decides whether to abort or degrade).
func (c *CADevice) Open() error {
	path := fmt.Sprintf("/dev/dvb/adapter%d/ca%d", c.Adapter, c.Device)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("dvbio: ca: open %s: %w", path, err)
	}
	c.fd = fd

	var caps caCaps
	if err := ioctlPtr(c.fd, caGetCap, unsafe.Pointer(&caps)); err != nil {
		unix.Close(c.fd)
		return fmt.Errorf("dvbio: ca: CA_GET_CAP: %w", err)
	}
	if caps.SlotNum == 0 {
		unix.Close(c.fd)
		return fmt.Errorf("dvbio: ca: no slots")
	}
	if caps.SlotType&caCILink == 0 {
		unix.Close(c.fd)
		return fmt.Errorf("dvbio: ca: CI link layer level interface not supported")
	}
	c.SlotsNum = int(caps.SlotNum)
	return nil
}

// Close closes the device node.
func (c *CADevice) Close() error {
	if c.fd == 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = 0
	return err
}

// Write implements ci.Transport, writing a raw TPDU to the device.
func (c *CADevice) Write(p []byte) (int, error) {
	return unix.Write(c.fd, p)
}

// Read drains one pending TPDU, non-blocking; returns (nil, nil) on
// EAGAIN.
func (c *CADevice) Read(buf []byte) (int, error) {
	n, err := unix.Read(c.fd, buf)
	if err == unix.EAGAIN {
		return 0, nil
	}
	return n, err
}

// ModuleReady polls CA_GET_SLOT_INFO for slotID and reports whether the
// CA_CI_MODULE_READY flag is set, mirroring ca_slot_loop's per-slot
// check.
func (c *CADevice) ModuleReady(slotID int) (bool, error) {
	info := caSlotInfo{Num: int32(slotID)}
	if err := ioctlPtr(c.fd, caGetSlotInfo, unsafe.Pointer(&info)); err != nil {
		return false, fmt.Errorf("dvbio: ca: CA_GET_SLOT_INFO(%d): %w", slotID, err)
	}
	return info.Flags&caModuleReady != 0, nil
}

// Reset issues CA_RESET for slotID, mirroring ca_slot_reset's ioctl.
func (c *CADevice) Reset(slotID int) error {
	mask := 1 << uint(slotID)
	if err := ioctlInt(c.fd, caReset, mask); err != nil {
		return fmt.Errorf("dvbio: ca: CA_RESET(%d): %w", slotID, err)
	}
	return nil
}
