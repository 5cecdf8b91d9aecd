package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/djherbis/buffer"
	"github.com/djherbis/nio/v3"
	"github.com/google/gopacket"
	"github.com/mdlayher/packet"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// how often the read loop wakes up to check whether it has been stopped
const pollInterval = 200 * time.Millisecond

// Capture records the traffic on one TCP port of one network device into a pcap file
type Capture struct {
	conn     *packet.Conn
	recorder *Recorder
	file     *os.File
	pipe     *nio.PipeWriter
	logf     Logf

	stop     chan struct{}
	finished chan struct{} // closed when the read loop exits
	copied   chan error    // receives the result of copying the pipe into the file
}

// Start opens a raw packet socket on the named device and begins writing frames to or from
// the given TCP port into a pcap file at path. Opening a raw socket needs CAP_NET_RAW.
func Start(device, path string, port uint16, logf Logf, verbose bool) (*Capture, error) {
	iface, err := net.InterfaceByName(device)
	if err != nil {
		return nil, fmt.Errorf("error finding network device %q: %w", device, err)
	}

	// on loopback every frame shows up twice, once outgoing and once incoming
	var cfg packet.Config
	if iface.Flags&net.FlagLoopback != 0 {
		cfg.Filter, err = bpf.Assemble([]bpf.Instruction{
			bpf.LoadExtension{Num: bpf.ExtType},
			bpf.JumpIf{Cond: bpf.JumpEqual, Val: unix.PACKET_OUTGOING, SkipTrue: 1},
			bpf.RetConstant{Val: snaplen},
			bpf.RetConstant{Val: 0},
		})
		if err != nil {
			return nil, fmt.Errorf("error assembling loopback filter: %w", err)
		}
	}

	// packet.Raw means listen for whole ethernet frames, unix.ETH_P_ALL means every protocol
	conn, err := packet.Listen(iface, packet.Raw, unix.ETH_P_ALL, &cfg)
	if err != nil {
		if errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("you need CAP_NET_RAW to capture packets (%w)", err)
		}
		return nil, fmt.Errorf("error listening for raw packets on %v: %w", device, err)
	}

	f, err := os.Create(path)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error creating capture file: %w", err)
	}

	// the read loop writes into an in-memory pipe so that a slow disk never holds up the socket
	r, w := nio.Pipe(buffer.New(1 << 20))

	c := Capture{
		conn:     conn,
		file:     f,
		pipe:     w,
		logf:     logf,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
		copied:   make(chan error, 1),
	}

	c.recorder, err = NewRecorder(w, port, logf, verbose)
	if err != nil {
		conn.Close()
		w.Close()
		r.Close()
		f.Close()
		return nil, err
	}

	go func() {
		_, err := io.Copy(f, r)
		c.copied <- err
	}()
	go c.loop(iface.MTU + 64)

	return &c, nil
}

func (c *Capture) loop(bufsize int) {
	defer close(c.finished)

	buf := make([]byte, bufsize)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, _, err := c.conn.ReadFrom(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if c.logf != nil {
				c.logf("error reading raw packet: %v, stopping capture", err)
			}
			return
		}

		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: n,
			Length:        n,
		}
		if _, err := c.recorder.Record(ci, buf[:n]); err != nil && c.logf != nil {
			c.logf("%v", err)
		}
	}
}

// Stop ends the capture, flushes everything recorded so far to the pcap file, and closes it.
// It returns the number of frames recorded.
func (c *Capture) Stop() (int, error) {
	close(c.stop)
	<-c.finished

	errs := []error{c.conn.Close(), c.pipe.Close()}
	errs = append(errs, <-c.copied, c.file.Close())
	return c.recorder.Kept(), errors.Join(errs...)
}
