//go:build linux

package http

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// listenBacklog is the accept queue depth of the listening socket.
const listenBacklog = 6

const busyMessage = "Server busy!"

// listenTCP creates a non-blocking IPv4 listening socket bound to all
// interfaces on port.
//
// With linger the socket closes gracefully, waiting up to one second for
// unsent data; without it SO_LINGER is explicitly off.
func listenTCP(port int, linger bool) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	l := &unix.Linger{}
	if linger {
		l.Onoff, l.Linger = 1, 1
	}
	if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, l); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_LINGER: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind port %d: %w", port, err)
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen port %d: %w", port, err)
	}
	return fd, nil
}

// boundPort returns the local port of a bound socket.
func boundPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("getsockname: %w", err)
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	default:
		return 0, fmt.Errorf("getsockname: unexpected address type %T", sa)
	}
}

// peerString formats an accepted peer address as ip:port.
func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	default:
		return "unknown"
	}
}

// rejectConn tells the peer the server cannot take it and closes fd.
func rejectConn(fd int) error {
	_, werr := unix.Write(fd, []byte(busyMessage))
	if err := unix.Close(fd); err != nil {
		return err
	}
	return werr
}
