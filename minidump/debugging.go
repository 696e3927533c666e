package minidump

import "log"

// sanityChecks turns on checks that cost extra work, such as looking for
// overlapping segments whenever an AddressSpace is built. Tests enable it.
var sanityChecks = false

// DebugLogf receives diagnostic messages when non-nil. Level 1 covers loading
// (directory, memory lists, segments); level 2 adds per-call detail such as
// search progress. Use SetDebugLevel for the common case.
var DebugLogf func(verbosityLevel int, format string, args ...interface{})

// SetDebugLevel sends messages of verbosity up to level to logFn. A level of
// zero or less turns diagnostics off.
func SetDebugLevel(level int, logFn func(format string, args ...interface{})) {
	if level <= 0 || logFn == nil {
		DebugLogf = nil
		return
	}
	DebugLogf = func(verbosityLevel int, format string, args ...interface{}) {
		if verbosityLevel <= level {
			logFn(format, args...)
		}
	}
}

// warnf reports a problem with the dump itself. Warnings go to the standard
// logger when diagnostics are off.
func warnf(format string, args ...interface{}) {
	if DebugLogf != nil {
		DebugLogf(1, "warning: "+format, args...)
	} else {
		log.Printf("minidump: warning: "+format, args...)
	}
}

func logf(format string, args ...interface{}) {
	if DebugLogf != nil {
		DebugLogf(1, format, args...)
	}
}

func verbosef(format string, args ...interface{}) {
	if DebugLogf != nil {
		DebugLogf(2, format, args...)
	}
}
