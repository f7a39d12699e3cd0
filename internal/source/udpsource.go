// Package source implements the input side of the pipeline graph named
// in §2's data-flow ("a source component... emits 188-byte TS
// packets"): a UDP/RTP multicast source for DVB-over-IP deployments
// and a PCR-paced file replay source for offline testing. The UDP source
// mirrors internal/dvbio.DVR's pump/feed/resync shape — read a chunk,
// split it into sync-validated 188-byte packets, hand each to OnPacket.
// The replay source reads whole 188-byte packets and stops with an error
// on a lost sync byte instead of resynchronising.
package source

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/tsforge/astragate/internal/ts"
)

// udpReopenDelay mirrors dvbio's DVR reopen backoff for a lost socket.
const udpReopenDelay = 5 * time.Second

// rtpHeaderLen is the fixed 12-byte RTP header prepended to TS payloads
// by most DVB-over-IP multicast senders. stripRTP sniffs for it.
const rtpHeaderLen = 12

// UDPSource joins a multicast group and feeds validated TS packets to
// OnPacket, transparently stripping a leading RTP header when present.
type UDPSource struct {
	// Addr is the multicast group address, e.g. "239.1.1.1:1234".
	Addr string
	// IfaceName optionally pins the join to one network interface
	// (required on multi-homed hosts where the default route isn't
	// the multicast-capable NIC).
	IfaceName string

	// OnPacket is called once per validated 188-byte packet.
	OnPacket func(ts.Packet)
	// OnDeviceLost is called when the socket cannot be reopened past
	// deviceLostTimeout, mirroring dvbio.DVR.OnDeviceLost.
	OnDeviceLost func(error)

	conn         *net.UDPConn
	pconn        *ipv4.PacketConn
	group        *net.UDPAddr
	iface        *net.Interface
	readFailures int
	syncDropped  uint64
}

// NewUDPSource creates a source bound to a multicast group address.
func NewUDPSource(addr, ifaceName string) *UDPSource {
	return &UDPSource{Addr: addr, IfaceName: ifaceName}
}

// Open resolves the group address, binds a UDP socket, and joins the
// multicast group via golang.org/x/net/ipv4.PacketConn.
func (u *UDPSource) Open() error {
	group, err := net.ResolveUDPAddr("udp4", u.Addr)
	if err != nil {
		return fmt.Errorf("source: resolve %s: %w", u.Addr, err)
	}
	u.group = group

	var iface *net.Interface
	if u.IfaceName != "" {
		iface, err = net.InterfaceByName(u.IfaceName)
		if err != nil {
			return fmt.Errorf("source: interface %s: %w", u.IfaceName, err)
		}
	}
	u.iface = iface

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", group.Port))
	if err != nil {
		return fmt.Errorf("source: listen %s: %w", u.Addr, err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("source: unexpected packet conn type %T", conn)
	}
	u.conn = udpConn

	pconn := ipv4.NewPacketConn(udpConn)
	if err := pconn.JoinGroup(iface, &net.UDPAddr{IP: group.IP}); err != nil {
		udpConn.Close()
		return fmt.Errorf("source: join group %s: %w", group.IP, err)
	}
	u.pconn = pconn
	u.readFailures = 0
	return nil
}

// Close leaves the multicast group and releases the socket.
func (u *UDPSource) Close() error {
	if u.pconn != nil && u.group != nil {
		_ = u.pconn.LeaveGroup(u.iface, &net.UDPAddr{IP: u.group.IP})
	}
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	u.pconn = nil
	return err
}

// Pump performs one blocking read of a single UDP datagram and splits
// it into sync-validated TS packets delivered via OnPacket. Meant to
// be driven in a loop by the caller's worker goroutine, mirroring
// dvbio.DVR.Pump.
func (u *UDPSource) Pump(deviceLostTimeout time.Duration) error {
	buf := make([]byte, 1500)
	n, _, _, err := u.pconn.ReadFrom(buf)
	if err != nil {
		return u.handleReadError(err, deviceLostTimeout)
	}
	u.readFailures = 0
	u.feed(stripRTP(buf[:n]))
	return nil
}

func stripRTP(datagram []byte) []byte {
	if len(datagram) > rtpHeaderLen && (datagram[0]>>6) == 2 && (len(datagram)-rtpHeaderLen)%ts.PacketLen == 0 {
		return datagram[rtpHeaderLen:]
	}
	return datagram
}

func (u *UDPSource) handleReadError(err error, deviceLostTimeout time.Duration) error {
	if errors.Is(err, net.ErrClosed) {
		return err
	}
	u.readFailures++
	time.Sleep(udpReopenDelay)
	if reerr := u.reopen(); reerr != nil {
		if time.Duration(u.readFailures)*udpReopenDelay > deviceLostTimeout && u.OnDeviceLost != nil {
			u.OnDeviceLost(err)
		}
		return reerr
	}
	return nil
}

func (u *UDPSource) reopen() error {
	u.Close()
	return u.Open()
}

// feed splits a datagram payload into 188-byte packets, resyncing on
// sync-byte loss exactly as dvbio.DVR.feed does.
func (u *UDPSource) feed(chunk []byte) {
	for len(chunk) > 0 {
		if chunk[0] != ts.SyncByte {
			chunk = chunk[1:]
			u.syncDropped++
			continue
		}
		if len(chunk) < ts.PacketLen {
			return
		}
		if u.OnPacket != nil {
			u.OnPacket(ts.Packet(chunk[:ts.PacketLen]))
		}
		chunk = chunk[ts.PacketLen:]
	}
}

// SyncDropped reports how many non-sync bytes have been skipped while
// resynchronizing the datagram stream.
func (u *UDPSource) SyncDropped() uint64 { return u.syncDropped }
