package sigpipe

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// the notification is a fixed literal so that delivering it never formats or allocates
var message = []byte("got SIGPIPE\n")

// Notifier reports each SIGPIPE delivered to the process by writing a fixed line to an output.
// It runs independently of whatever code triggered the signal and shares no state with it.
type Notifier struct {
	signals chan os.Signal
	done    chan struct{}
	count   atomic.Int64
}

// Notify starts reporting SIGPIPE to w. Pass an unbuffered writer such as os.Stdout so each
// notification is a single direct write(2).
//
// Once Notify has been called, a write to a socket or pipe whose reader has gone away no
// longer kills the process even on stdout or stderr; the write fails with EPIPE instead.
func Notify(w io.Writer) (*Notifier, error) {
	if w == nil {
		return nil, errors.New("no output for SIGPIPE notifications")
	}

	n := Notifier{
		signals: make(chan os.Signal, 16),
		done:    make(chan struct{}),
	}
	signal.Notify(n.signals, unix.SIGPIPE)
	go n.loop(w)
	return &n, nil
}

func (n *Notifier) loop(w io.Writer) {
	defer close(n.done)
	for range n.signals {
		n.count.Add(1)
		w.Write(message)
	}
}

// Count returns the number of notifications written so far
func (n *Notifier) Count() int64 {
	return n.count.Load()
}

// Stop unregisters from SIGPIPE and waits for pending notifications to be written
func (n *Notifier) Stop() {
	signal.Stop(n.signals)
	close(n.signals)
	<-n.done
}
