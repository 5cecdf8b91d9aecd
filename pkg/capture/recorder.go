package capture

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snaplen = 65536

// Logf receives one line per interesting packet
type Logf func(format string, parts ...interface{})

// Recorder keeps the ethernet frames that belong to connections on one TCP port, writes them
// in pcap format, and logs a summary of each one.
type Recorder struct {
	port    layers.TCPPort
	pcap    *pcapgo.Writer
	logf    Logf
	verbose bool
	kept    int
}

// NewRecorder writes a pcap file header to w and returns a recorder for the given port. When
// verbose is false only frames carrying FIN or RST are logged.
func NewRecorder(w io.Writer, port uint16, logf Logf, verbose bool) (*Recorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("error writing pcap header: %w", err)
	}
	return &Recorder{
		port:    layers.TCPPort(port),
		pcap:    pw,
		logf:    logf,
		verbose: verbose,
	}, nil
}

// Record decodes a raw ethernet frame and, if it is TCP to or from the recorder's port, logs it
// and appends it to the pcap stream. It reports whether the frame was kept.
func (r *Recorder) Record(ci gopacket.CaptureInfo, data []byte) (bool, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ipv4, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return false, nil
	}
	tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok {
		return false, nil
	}
	if tcp.SrcPort != r.port && tcp.DstPort != r.port {
		return false, nil
	}

	r.kept++
	if r.logf != nil && (r.verbose || tcp.FIN || tcp.RST) {
		r.logf("packet: %s", summarizeTCP(ipv4, tcp))
	}

	if ci.CaptureLength > snaplen {
		ci.CaptureLength = snaplen
		data = data[:snaplen]
	}
	if err := r.pcap.WritePacket(ci, data); err != nil {
		return true, fmt.Errorf("error writing packet to pcap: %w", err)
	}
	return true, nil
}

// Kept is the number of frames recorded so far
func (r *Recorder) Kept() int {
	return r.kept
}

// tcpFlags lists the control bits set on a segment, lowest header bit first
func tcpFlags(tcp *layers.TCP) string {
	var flags []string
	if tcp.FIN {
		flags = append(flags, "FIN")
	}
	if tcp.SYN {
		flags = append(flags, "SYN")
	}
	if tcp.RST {
		flags = append(flags, "RST")
	}
	if tcp.PSH {
		flags = append(flags, "PSH")
	}
	if tcp.ACK {
		flags = append(flags, "ACK")
	}
	return strings.Join(flags, "+")
}

// summarizeTCP summarizes a TCP segment into a single line for logging
func summarizeTCP(ipv4 *layers.IPv4, tcp *layers.TCP) string {
	return fmt.Sprintf("TCP %v:%d => %v:%d %s - Seq %d - Ack %d - Len %d",
		ipv4.SrcIP, tcp.SrcPort, ipv4.DstIP, tcp.DstPort, tcpFlags(tcp), tcp.Seq, tcp.Ack, len(tcp.Payload))
}
