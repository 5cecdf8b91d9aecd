package main

import (
	"runtime/debug"
)

// handlePanic reports a panic in a mode function and turns it into a failure exit code
func (l *stampLogger) handlePanic(code *int) {
	if r := recover(); r != nil {
		l.errorf("%v", r)
		l.errorf("%s", debug.Stack())
		*code = -1
	}
}
