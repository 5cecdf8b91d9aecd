package rawsock

import (
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by operations on a socket whose descriptor has already been closed
var ErrClosed = errors.New("socket already closed")

// Socket is an IPv4 stream socket held as a bare file descriptor. Unlike net.Conn, writes go
// straight to write(2), so short writes, EPIPE, and SIGPIPE reach the caller unchanged.
type Socket struct {
	fd int
}

// NewTCP creates an AF_INET stream socket for the protocol registered under the name "tcp"
func NewTCP() (*Socket, error) {
	proto, err := LookupProtocol("tcp")
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// Fd returns the underlying descriptor, or -1 once the socket is closed
func (s *Socket) Fd() int {
	return s.fd
}

// Bind assigns a local IPv4 address and port to the socket
func (s *Socket) Bind(addr netip.AddrPort) error {
	if s.fd < 0 {
		return ErrClosed
	}
	sa, err := sockaddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Bind(s.fd, sa); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	return nil
}

// Listen marks the socket as passive with the given backlog
func (s *Socket) Listen(backlog int) error {
	if s.fd < 0 {
		return ErrClosed
	}
	if err := unix.Listen(s.fd, backlog); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Accept blocks until a connection arrives and returns it along with the peer address
func (s *Socket) Accept() (*Socket, netip.AddrPort, error) {
	if s.fd < 0 {
		return nil, netip.AddrPort{}, ErrClosed
	}
	for {
		nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, netip.AddrPort{}, fmt.Errorf("accept: %w", err)
		}
		return &Socket{fd: nfd}, addrport(sa), nil
	}
}

// Connect blocks until the TCP handshake with addr completes or fails
func (s *Socket) Connect(addr netip.AddrPort) error {
	if s.fd < 0 {
		return ErrClosed
	}
	sa, err := sockaddr(addr)
	if err != nil {
		return err
	}

	err = unix.Connect(s.fd, sa)

	// the go runtime delivers its own signals to every thread; if one lands while the
	// handshake is in flight the kernel keeps connecting in the background
	for err == unix.EINTR || err == unix.EALREADY {
		err = s.awaitConnect()
	}
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (s *Socket) awaitConnect() error {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLOUT}}
	if _, err := unix.Poll(fds, -1); err != nil {
		return err
	}
	soerr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

// Write performs a single write(2) and returns exactly what the kernel returned. A negative
// count comes back together with the errno.
func (s *Socket) Write(p []byte) (int, error) {
	if s.fd < 0 {
		return -1, ErrClosed
	}
	for {
		n, err := unix.Write(s.fd, p)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// LocalAddr returns the address the kernel assigned to this end of the socket
func (s *Socket) LocalAddr() (netip.AddrPort, error) {
	if s.fd < 0 {
		return netip.AddrPort{}, ErrClosed
	}
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return addrport(sa), nil
}

// Close releases the descriptor. Only the first call reaches close(2); later calls return ErrClosed.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return ErrClosed
	}
	fd := s.fd
	s.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Errno extracts the system error number from an error returned by this package
func Errno(err error) (unix.Errno, bool) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

func sockaddr(addr netip.AddrPort) (*unix.SockaddrInet4, error) {
	if !addr.Addr().Is4() {
		return nil, fmt.Errorf("not an IPv4 address: %v", addr.Addr())
	}
	return &unix.SockaddrInet4{Port: int(addr.Port()), Addr: addr.Addr().As4()}, nil
}

func addrport(sa unix.Sockaddr) netip.AddrPort {
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return netip.AddrPortFrom(netip.AddrFrom4(sa4.Addr), uint16(sa4.Port))
	}
	return netip.AddrPort{}
}
