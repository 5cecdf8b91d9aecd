package main

import (
	"net/netip"

	"github.com/monasticacademy/tcpclosetest/pkg/capture"
	"github.com/monasticacademy/tcpclosetest/pkg/sockdiag"
)

// startCapture begins recording the test port if a capture file was requested. A capture that
// cannot be opened is reported and the run goes on without it. The returned function stops
// the capture and flushes the file.
func startCapture(cfg config, log *stampLogger) func() {
	if cfg.capture == "" {
		return func() {}
	}

	c, err := capture.Start(cfg.device, cfg.capture, uint16(cfg.port), log.Printf, log.isVerbose)
	if err != nil {
		log.errorf("%v, continuing without packet capture", err)
		return func() {}
	}
	log.verbosef("capturing packets on %v to %v", cfg.device, cfg.capture)

	return func() {
		n, err := c.Stop()
		if err != nil {
			log.errorf("error finishing packet capture: %v", err)
		}
		log.verbosef("captured %d packets to %v", n, cfg.capture)
	}
}

// traceSocket prints the kernel's state for a connected socket when requested
func traceSocket(cfg config, log *stampLogger, local, remote netip.AddrPort) {
	if !cfg.sockstate {
		return
	}
	info, err := sockdiag.Query(local, remote)
	if err != nil {
		log.verbosef("%v", err)
		return
	}
	log.Printf("socket state %v", info)
}
