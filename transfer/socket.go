package transfer

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrControl sets SO_REUSEADDR on a listening socket before bind.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// tuneConn applies TCP_NODELAY and large send/receive buffers to an
// accepted or dialed connection. Failures are non-fatal: they degrade
// throughput, not correctness.
func tuneConn(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tcpConn.SetNoDelay(true)
	tcpConn.SetWriteBuffer(socketBufferSize)
	tcpConn.SetReadBuffer(socketBufferSize)
}
