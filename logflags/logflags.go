package logflags

import (
	"errors"
	"io/ioutil"
	"log"
	"strings"

	"github.com/sirupsen/logrus"
)

var platform = false
var procFlag = false
var breakpoint = false
var debugger = false
var terminal = false

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Platform returns true if the platform shim should log.
func Platform() bool {
	return platform
}

// PlatformLogger returns a logger for the platform package.
func PlatformLogger() *logrus.Entry {
	return makeLogger(platform, logrus.Fields{"layer": "platform"})
}

// Proc returns true if the proc package should log.
func Proc() bool {
	return procFlag
}

// ProcLogger returns a logger for the proc package.
func ProcLogger() *logrus.Entry {
	return makeLogger(procFlag, logrus.Fields{"layer": "proc"})
}

// Breakpoint returns true if breakpoint install/uninstall should log.
func Breakpoint() bool {
	return breakpoint
}

// BreakpointLogger returns a logger for breakpoint bookkeeping.
func BreakpointLogger() *logrus.Entry {
	return makeLogger(breakpoint, logrus.Fields{"layer": "proc", "kind": "breakpoint"})
}

// Debugger returns true if the debugger package should log.
func Debugger() bool {
	return debugger
}

// DebuggerLogger returns a logger for the debugger package.
func DebuggerLogger() *logrus.Entry {
	return makeLogger(debugger, logrus.Fields{"layer": "debugger"})
}

// Terminal returns true if the terminal package should log.
func Terminal() bool {
	return terminal
}

// TerminalLogger returns a logger for the terminal package.
func TerminalLogger() *logrus.Entry {
	return makeLogger(terminal, logrus.Fields{"layer": "terminal"})
}

var errLogstrWithoutLog = errors.New("--log-dest specified without --log")

// Setup sets per-subsystem logging flags based on the contents of
// logstr, a comma-separated list of: platform, proc, breakpoint,
// debugger, terminal.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "debugger"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "platform":
			platform = true
		case "proc":
			procFlag = true
		case "breakpoint":
			breakpoint = true
		case "debugger":
			debugger = true
		case "terminal":
			terminal = true
		}
	}
	return nil
}
