package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alexflint/go-arg"
)

// config holds everything a run needs to know. The command line only ever produces
// defaultConfig with the optional diagnostics switched on; tests shrink the timings.
type config struct {
	program  string
	port     int           // TCP port the server listens on and the client connects to
	backlog  int           // listen backlog
	dwell    time.Duration // how long the server waits before and after closing the client
	interval time.Duration // pause between client writes
	size     int           // bytes per client write
	writes   int           // maximum number of client writes

	sockstate bool      // log the kernel's view of the client socket after each write
	capture   string    // pcap file to record the test traffic into, if any
	device    string    // network device to capture on
	notify    io.Writer // where SIGPIPE notifications are written

	// called with the bound port once the server is listening
	onListen func(port int)
}

func defaultConfig(program string) config {
	return config{
		program:  program,
		port:     20316,
		backlog:  128,
		dwell:    5 * time.Second,
		interval: 500 * time.Millisecond,
		size:     512,
		writes:   20,
		device:   "lo",
		notify:   os.Stdout,
	}
}

type mode int

const (
	clientMode mode = iota
	serverMode
)

// selectMode decides the mode from the one positional argument. Anything other than the
// literal "server" is an address for the client to parse later.
func selectMode(target string) mode {
	if target == "server" {
		return serverMode
	}
	return clientMode
}

type args struct {
	Verbose   bool   `arg:"-v,--verbose" help:"print extra diagnostics"`
	SockState bool   `arg:"--sockstate" help:"after each write, print the kernel's state for the client socket"`
	Capture   string `help:"record packets on the test port to this pcap file (needs CAP_NET_RAW)"`
	Device    string `default:"lo" help:"network device to capture packets on"`
	Target    string `arg:"positional,required" placeholder:"server|IP_ADDRESS" help:"\"server\" to accept one connection, or the IPv4 address of a server to write to"`
}

func (args) Description() string {
	return "Observe what a TCP writer sees after its peer closes the connection.\n" +
		"Run \"server\" on one host and the client against its address on another (or the same) host.\n"
}

// Main runs one server or client sequence and returns the process exit code
func Main(program string, argv []string, stdout, stderr io.Writer) (code int) {
	var a args
	p, err := arg.NewParser(arg.Config{Program: program, IgnoreEnv: true}, &a)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return -1
	}

	err = p.Parse(argv)
	switch {
	case errors.Is(err, arg.ErrHelp):
		p.WriteHelp(stdout)
		return 0
	case err != nil:
		p.WriteUsage(stdout)
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 2
	}

	log := newStampLogger(stdout, stderr, program, a.Verbose)
	defer log.handlePanic(&code)

	cfg := defaultConfig(program)
	cfg.sockstate = a.SockState
	cfg.capture = a.Capture
	cfg.device = a.Device
	cfg.notify = stdout

	if selectMode(a.Target) == serverMode {
		return runServer(cfg, log)
	}
	return runClient(cfg, log, a.Target)
}

func main() {
	program := "tcpclosetest"
	if len(os.Args) > 0 {
		program = filepath.Base(os.Args[0])
	}
	os.Exit(Main(program, os.Args[1:], os.Stdout, os.Stderr))
}
