package logflags

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	platform = false
	procFlag = false
	breakpoint = false
	debugger = false
	terminal = false
}

func TestSetupDefaultsToDebugger(t *testing.T) {
	resetFlags()
	if err := Setup(true, ""); err != nil {
		t.Fatalf("Setup(): %v", err)
	}
	if !Debugger() {
		t.Fatal("Setup(true, \"\") should enable the debugger subsystem by default")
	}
	if Proc() || Platform() || Breakpoint() || Terminal() {
		t.Fatal("Setup(true, \"\") should only enable the debugger subsystem")
	}
}

func TestSetupParsesSubsystemList(t *testing.T) {
	resetFlags()
	if err := Setup(true, "proc,breakpoint"); err != nil {
		t.Fatalf("Setup(): %v", err)
	}
	if !Proc() || !Breakpoint() {
		t.Fatal("Setup() did not enable the requested subsystems")
	}
	if Debugger() || Platform() || Terminal() {
		t.Fatal("Setup() enabled subsystems that were not requested")
	}
}

func TestSetupWithoutLogFlagDisablesOutput(t *testing.T) {
	resetFlags()
	if err := Setup(false, ""); err != nil {
		t.Fatalf("Setup(): %v", err)
	}
	if Debugger() || Proc() || Platform() || Breakpoint() || Terminal() {
		t.Fatal("Setup(false, \"\") should leave every subsystem disabled")
	}
}

func TestSetupLogstrWithoutLogFlagErrors(t *testing.T) {
	resetFlags()
	if err := Setup(false, "proc"); err != errLogstrWithoutLog {
		t.Fatalf("Setup(false, \"proc\") = %v, want errLogstrWithoutLog", err)
	}
}

func TestMakeLoggerLevel(t *testing.T) {
	enabled := makeLogger(true, logrus.Fields{"layer": "proc"})
	if enabled.Logger.Level != logrus.DebugLevel {
		t.Fatalf("makeLogger(true, ...) level = %v, want DebugLevel", enabled.Logger.Level)
	}
	disabled := makeLogger(false, logrus.Fields{"layer": "proc"})
	if disabled.Logger.Level != logrus.PanicLevel {
		t.Fatalf("makeLogger(false, ...) level = %v, want PanicLevel", disabled.Logger.Level)
	}
}
