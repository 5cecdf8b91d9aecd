package main

import (
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/fatih/color"
)

// matches strftime "%FT%TZ"
const stampFormat = "2006-01-02T15:04:05Z"

var errorColor = color.New(color.FgRed, color.Bold)

// stampLogger prints each step of a run prefixed with the current UTC time
type stampLogger struct {
	std       *log.Logger
	errout    io.Writer
	program   string
	isVerbose bool
	now       func() time.Time
}

func newStampLogger(out, errout io.Writer, program string, verbose bool) *stampLogger {
	return &stampLogger{
		std:       log.New(out, "", 0),
		errout:    errout,
		program:   program,
		isVerbose: verbose,
		now:       time.Now,
	}
}

func (l *stampLogger) stamp() string {
	return l.now().UTC().Format(stampFormat)
}

// Printf prints a timestamped line
func (l *stampLogger) Printf(format string, parts ...interface{}) {
	l.std.Print(l.stamp() + ": " + fmt.Sprintf(format, parts...))
}

func (l *stampLogger) verbosef(format string, parts ...interface{}) {
	if l.isVerbose {
		l.Printf(format, parts...)
	}
}

// errorf prints a warning to the error stream, prefixed with the program name
func (l *stampLogger) errorf(format string, parts ...interface{}) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	errorColor.Fprintf(l.errout, l.program+": "+format, parts...)
}
