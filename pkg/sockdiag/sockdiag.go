package sockdiag

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// kernel TCP states as numbered in include/net/tcp_states.h
var stateNames = map[uint8]string{
	1:  "ESTABLISHED",
	2:  "SYN_SENT",
	3:  "SYN_RECV",
	4:  "FIN_WAIT1",
	5:  "FIN_WAIT2",
	6:  "TIME_WAIT",
	7:  "CLOSE",
	8:  "CLOSE_WAIT",
	9:  "LAST_ACK",
	10: "LISTEN",
	11: "CLOSING",
	12: "NEW_SYN_RECV",
}

// StateName returns the conventional name of a kernel TCP state
func StateName(state uint8) string {
	if name, ok := stateNames[state]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", state)
}

// Info is the part of a sock_diag reply that matters when watching a connection wind down
type Info struct {
	State uint8
	SendQ uint32 // bytes written by us but not yet acknowledged by the peer
	RecvQ uint32 // bytes received but not yet read
}

func (i Info) String() string {
	return fmt.Sprintf("%s (send-q %d, recv-q %d)", StateName(i.State), i.SendQ, i.RecvQ)
}

// Query asks the kernel over netlink for the state of the TCP socket identified by its two
// endpoints. Once a connection has been reset the kernel forgets it and Query returns an error.
func Query(local, remote netip.AddrPort) (Info, error) {
	s, err := netlink.SocketGet(net.TCPAddrFromAddrPort(local), net.TCPAddrFromAddrPort(remote))
	if err != nil {
		return Info{}, fmt.Errorf("error querying socket %v => %v: %w", local, remote, err)
	}
	return Info{
		State: s.State,
		SendQ: s.WQueue,
		RecvQ: s.RQueue,
	}, nil
}
