package capture

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// frame builds an ethernet frame carrying a TCP segment between two loopback ports
func frame(t *testing.T, srcPort, dstPort uint16, set func(*layers.TCP)) []byte {
	t.Helper()
	eth := layers.Ethernet{
		EthernetType: layers.EthernetTypeIPv4,
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 0},
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		SrcIP:    net.IP{127, 0, 0, 1},
		DstIP:    net.IP{127, 0, 0, 1},
		Protocol: layers.IPProtocolTCP,
	}
	tcp := layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1000,
		Ack:     2000,
		Window:  64240,
	}
	set(&tcp)
	if err := tcp.SetNetworkLayerForChecksum(&ip); err != nil {
		t.Fatal(err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &tcp); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRecorderKeepsOnlyTestPort(t *testing.T) {
	var out bytes.Buffer
	var lines []string
	logf := func(format string, parts ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, parts...))
	}

	r, err := NewRecorder(&out, 20316, logf, false)
	if err != nil {
		t.Fatal(err)
	}

	frames := []struct {
		data []byte
		keep bool
	}{
		{frame(t, 40000, 20316, func(tcp *layers.TCP) { tcp.SYN = true }), true},
		{frame(t, 20316, 40000, func(tcp *layers.TCP) { tcp.FIN = true; tcp.ACK = true }), true},
		{frame(t, 40000, 8080, func(tcp *layers.TCP) { tcp.RST = true }), false},
		{frame(t, 40000, 20316, func(tcp *layers.TCP) { tcp.RST = true }), true},
		{[]byte{1, 2, 3}, false},
	}

	now := time.Now()
	for i, f := range frames {
		ci := gopacket.CaptureInfo{Timestamp: now, CaptureLength: len(f.data), Length: len(f.data)}
		kept, err := r.Record(ci, f.data)
		if err != nil {
			t.Fatal(err)
		}
		if kept != f.keep {
			t.Errorf("frame %d: kept=%v, want %v", i, kept, f.keep)
		}
	}

	if r.Kept() != 3 {
		t.Errorf("kept %d frames, want 3", r.Kept())
	}

	// without verbose only FIN and RST are logged
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "FIN+ACK") {
		t.Errorf("first line should describe the FIN: %q", lines[0])
	}
	if !strings.Contains(lines[1], "RST") || !strings.Contains(lines[1], ":40000 => 127.0.0.1:20316") {
		t.Errorf("second line should describe the RST: %q", lines[1])
	}

	pr, err := pcapgo.NewReader(&out)
	if err != nil {
		t.Fatal(err)
	}
	if pr.LinkType() != layers.LinkTypeEthernet {
		t.Errorf("link type %v, want ethernet", pr.LinkType())
	}
	var n int
	for {
		_, _, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 3 {
		t.Errorf("pcap holds %d packets, want 3", n)
	}
}

func TestTCPFlags(t *testing.T) {
	tests := []struct {
		tcp  layers.TCP
		want string
	}{
		{layers.TCP{SYN: true}, "SYN"},
		{layers.TCP{SYN: true, ACK: true}, "SYN+ACK"},
		{layers.TCP{PSH: true, ACK: true}, "PSH+ACK"},
		{layers.TCP{RST: true}, "RST"},
		{layers.TCP{FIN: true, SYN: true, RST: true, PSH: true, ACK: true}, "FIN+SYN+RST+PSH+ACK"},
		{layers.TCP{}, ""},
	}
	for _, test := range tests {
		if got := tcpFlags(&test.tcp); got != test.want {
			t.Errorf("got %q, want %q", got, test.want)
		}
	}
}
