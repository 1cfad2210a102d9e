package proc

import "golang.org/x/sys/unix"

// posixSignalInfo mirrors the handful of siginfo_t fields the engine
// needs to classify a stop.
type posixSignalInfo struct {
	Signo int32
	Code  int32
}

func (p posixSignalInfo) isBreakpoint() bool {
	if p.Signo != int32(unix.SIGTRAP) {
		return false
	}
	return p.Code == traceBreakpointCode || p.Code == traceTraceCode
}

// SIGTRAP si_code values: TRAP_BRKPT (breakpoint) and TRAP_TRACE
// (single-step). golang.org/x/sys/unix does not export these as
// named constants, so they are named here per <bits/siginfo.h>.
const (
	traceBreakpointCode int32 = 1
	traceTraceCode      int32 = 2
)
