package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
)

func fixedLogger(verbose bool) (*stampLogger, *bytes.Buffer, *bytes.Buffer) {
	var out, errout bytes.Buffer
	l := newStampLogger(&out, &errout, "tcpclosetest", verbose)
	l.now = func() time.Time {
		return time.Date(2016, 7, 1, 12, 0, 5, 999, time.FixedZone("CEST", 2*60*60))
	}
	return l, &out, &errout
}

func TestStampedLines(t *testing.T) {
	l, out, _ := fixedLogger(false)
	l.Printf("accepted connection")
	l.Printf("write (%d)", 3)
	l.verbosef("only with --verbose")

	want := "2016-07-01T10:00:05Z: accepted connection\n" +
		"2016-07-01T10:00:05Z: write (3)\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestVerbose(t *testing.T) {
	l, out, _ := fixedLogger(true)
	l.verbosef("peer is %v", "127.0.0.1:40000")

	if want := "2016-07-01T10:00:05Z: peer is 127.0.0.1:40000\n"; out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

func TestErrorfGoesToErrorStream(t *testing.T) {
	defer func(orig bool) { color.NoColor = orig }(color.NoColor)
	color.NoColor = true

	l, out, errout := fixedLogger(false)
	l.errorf("bind: %v", "address already in use")

	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
	if want := "tcpclosetest: bind: address already in use\n"; errout.String() != want {
		t.Errorf("got %q, want %q", errout.String(), want)
	}
}

func TestHandlePanic(t *testing.T) {
	defer func(orig bool) { color.NoColor = orig }(color.NoColor)
	color.NoColor = true

	l, _, errout := fixedLogger(false)
	code := func() (code int) {
		defer l.handlePanic(&code)
		panic("boom")
	}()
	if code != -1 {
		t.Errorf("exit code %d, want -1", code)
	}
	if !bytes.HasPrefix(errout.Bytes(), []byte("tcpclosetest: boom\n")) {
		t.Errorf("got %q", errout.String())
	}
}
