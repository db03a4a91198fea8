// Package discovery implements the UDP broadcast announce/listen pair that
// keeps a peertable.Table populated with peers on the local broadcast domain.
package discovery

import (
	"context"
	"encoding/json"
	"net"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"aircopy/peertable"
	"aircopy/protocol"
)

// Port is the well-known discovery port both the broadcaster and the
// listener bind to.
const Port = 53317

// BroadcastAddr is the destination every announce datagram is sent to.
const BroadcastAddr = "255.255.255.255"

const (
	announceInterval = 5 * time.Second
	recvBufferSize   = 1024
)

// Broadcaster periodically announces this device's presence on the LAN.
type Broadcaster struct {
	DeviceID   string
	Alias      string
	ListenPort uint16
}

// Run sends one announce immediately and then one every announceInterval
// until ctx is canceled. Send failures are swallowed: discovery is
// best-effort and a transient send error must not stop future attempts.
func (b *Broadcaster) Run(ctx context.Context) error {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()

	if pc, ok := conn.(*net.UDPConn); ok {
		if rc, err := pc.SyscallConn(); err == nil {
			rc.Control(func(fd uintptr) {
				unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
		}
	}

	dest := &net.UDPAddr{IP: net.ParseIP(BroadcastAddr), Port: Port}

	send := func() {
		payload, err := json.Marshal(protocol.AnnouncePayload{
			Alias:    b.Alias,
			DeviceID: b.DeviceID,
			Version:  1,
			Port:     b.ListenPort,
		})
		if err != nil {
			logrus.WithError(err).Warn("discovery: failed to marshal announce")
			return
		}
		if _, err := conn.WriteTo(payload, dest); err != nil {
			logrus.WithError(err).Debug("discovery: failed to send announce")
			return
		}
		logrus.WithFields(logrus.Fields{"device_id": b.DeviceID, "port": b.ListenPort}).Debug("discovery: sent announce")
	}

	send()

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			send()
		}
	}
}

// Listener receives announces from other devices and feeds them into a
// peertable.Table, filtering out this device's own broadcasts.
type Listener struct {
	DeviceID   string
	ListenPort uint16
	Table      *peertable.Table
}

// Run binds 0.0.0.0:Port with SO_REUSEADDR/SO_REUSEPORT and processes
// datagrams until ctx is canceled.
func (l *Listener) Run(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					ctrlErr = err
					return
				}
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	conn, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:53317")
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, recvBufferSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logrus.WithError(err).Debug("discovery: read failed")
				continue
			}
		}
		l.handleDatagram(buf[:n], addr)
	}
}

func (l *Listener) handleDatagram(data []byte, addr net.Addr) {
	var announce protocol.AnnouncePayload
	if err := json.Unmarshal(data, &announce); err != nil {
		logrus.WithError(err).Debug("discovery: dropping unparseable announce")
		return
	}
	if announce.DeviceID == l.DeviceID {
		return
	}

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return
	}

	peer := peertable.Peer{
		DeviceID:   announce.DeviceID,
		Alias:      announce.Alias,
		Address:    udpAddr.IP.String(),
		Port:       l.ListenPort,
		LastActive: peertable.Now(),
	}
	l.Table.AddOrUpdate(peer)

	logrus.WithFields(logrus.Fields{
		"device_id": peer.DeviceID,
		"alias":     peer.Alias,
		"address":   peer.Address,
	}).Info("discovery: peer seen")
}
