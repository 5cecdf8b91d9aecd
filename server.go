package main

import (
	"net/netip"
	"time"

	"github.com/monasticacademy/tcpclosetest/pkg/rawsock"
)

// runServer accepts a single connection, holds it open for one dwell period, closes it, waits
// another dwell period so the client can observe the close, and then tears down.
func runServer(cfg config, log *stampLogger) int {
	log.Printf("starting as server on port %d", cfg.port)

	stopCapture := startCapture(cfg, log)
	defer stopCapture()

	sock, err := rawsock.NewTCP()
	if err != nil {
		log.errorf("%v", err)
		return -1
	}
	defer sock.Close()

	if err := sock.Bind(netip.AddrPortFrom(netip.IPv4Unspecified(), uint16(cfg.port))); err != nil {
		log.errorf("%v", err)
		return -1
	}

	if err := sock.Listen(cfg.backlog); err != nil {
		log.errorf("%v", err)
		return -1
	}

	if cfg.onListen != nil || log.isVerbose {
		local, err := sock.LocalAddr()
		if err != nil {
			log.errorf("%v", err)
			return -1
		}
		log.verbosef("listening on %v with backlog %d", local, cfg.backlog)
		if cfg.onListen != nil {
			cfg.onListen(int(local.Port()))
		}
	}

	conn, peer, err := sock.Accept()
	if err != nil {
		log.errorf("%v", err)
		return -1
	}
	defer conn.Close()

	log.Printf("accepted connection")
	log.verbosef("peer is %v", peer)
	time.Sleep(cfg.dwell)

	log.Printf("closing client connection")
	if err := conn.Close(); err != nil {
		log.errorf("%v", err)
	}
	time.Sleep(cfg.dwell)

	log.Printf("teardown")
	if err := sock.Close(); err != nil {
		log.errorf("%v", err)
	}
	return 0
}
