package main

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/monasticacademy/tcpclosetest/pkg/rawsock"
	"github.com/monasticacademy/tcpclosetest/pkg/sigpipe"
)

// parseIPv4 accepts only a dotted-quad IPv4 literal, as inet_pton(AF_INET) does
func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return addr, nil
}

// describeWrite reports a write that did not transfer the whole buffer: an error carries its
// errno and description, a short write only its byte count
func describeWrite(n int, err error) string {
	if errno, ok := rawsock.Errno(err); ok {
		return fmt.Sprintf("write returned %d (error %d: %v)", n, int(errno), errno)
	}
	if err != nil {
		return fmt.Sprintf("write returned %d (error: %v)", n, err)
	}
	return fmt.Sprintf("write returned %d", n)
}

// runClient connects to the server and writes a zero-filled buffer repeatedly until the write
// cap is reached or a write fails to transfer the whole buffer.
func runClient(cfg config, log *stampLogger, target string) int {
	addr, err := parseIPv4(target)
	if err != nil {
		log.errorf("failed to parse IP address: %s", target)
		return -1
	}
	remote := netip.AddrPortFrom(addr, uint16(cfg.port))

	notifier, err := sigpipe.Notify(cfg.notify)
	if err != nil {
		log.errorf("error installing SIGPIPE handler: %v", err)
		return -1
	}
	defer notifier.Stop()

	stopCapture := startCapture(cfg, log)
	defer stopCapture()

	log.Printf("connecting to %s port %d", target, cfg.port)

	sock, err := rawsock.NewTCP()
	if err != nil {
		log.errorf("%v", err)
		return -1
	}
	defer sock.Close()

	if err := sock.Connect(remote); err != nil {
		log.errorf("%v", err)
		return -1
	}
	log.Printf("connected")

	local, err := sock.LocalAddr()
	if err != nil {
		log.errorf("%v", err)
		return -1
	}
	log.verbosef("local address is %v", local)
	traceSocket(cfg, log, local, remote)

	buf := make([]byte, cfg.size)
	var total int
	for i := 0; i < cfg.writes; i++ {
		log.Printf("write (%d)", i)
		n, err := sock.Write(buf)
		if n != len(buf) {
			log.Printf("%s", describeWrite(n, err))
			if n > 0 {
				total += n
			}
			// after a reset the kernel has usually forgotten the socket, which traceSocket
			// reports only in verbose mode
			traceSocket(cfg, log, local, remote)
			break
		}
		total += n
		traceSocket(cfg, log, local, remote)
		time.Sleep(cfg.interval)
	}

	log.verbosef("wrote %d bytes in total, %d SIGPIPE so far", total, notifier.Count())
	log.Printf("teardown")
	if err := sock.Close(); err != nil {
		log.errorf("%v", err)
	}
	return 0
}
