package proc

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// convertThreadExitErr maps ESRCH, which ptrace returns once the
// target task has been reaped, to ErrNotRunning so callers never have
// to know about errno directly.
func convertThreadExitErr(err error) error {
	if err == unix.ESRCH || err == syscall.ESRCH {
		return ErrNotRunning
	}
	return err
}

// ptraceAttach issues PTRACE_ATTACH against tid.
func ptraceAttach(tid int) error {
	return convertThreadExitErr(unix.PtraceAttach(tid))
}

// ptraceDetach issues PTRACE_DETACH against tid, delivering sig (0 for
// none) on resume.
func ptraceDetach(tid, sig int) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_DETACH, uintptr(tid), 1, uintptr(sig), 0, 0)
	if errno != 0 {
		return convertThreadExitErr(errno)
	}
	return nil
}

// ptraceCont issues PTRACE_CONT against tid, delivering sig (0 for
// none) on resume.
func ptraceCont(tid, sig int) error {
	return convertThreadExitErr(unix.PtraceCont(tid, sig))
}

// ptraceSingleStep issues PTRACE_SINGLESTEP against tid.
func ptraceSingleStep(tid int) error {
	return convertThreadExitErr(unix.PtraceSingleStep(tid))
}

// ptraceSetOptions issues PTRACE_SETOPTIONS, used to request
// PTRACE_O_TRACECLONE so new threads spawned by the tracee show up as
// SIGTRAP/PTRACE_EVENT_CLONE stops.
func ptraceSetOptions(tid, options int) error {
	return convertThreadExitErr(unix.PtraceSetOptions(tid, options))
}

// ptraceGetEventMsg issues PTRACE_GETEVENTMSG, used after a
// PTRACE_EVENT_CLONE stop to retrieve the new thread's tid.
func ptraceGetEventMsg(tid int) (uint, error) {
	msg, err := unix.PtraceGetEventMsg(tid)
	return msg, convertThreadExitErr(err)
}

// ptraceGetSigInfo issues PTRACE_GETSIGINFO, used to classify a
// SIGTRAP stop as a breakpoint trap vs. a single-step trap vs.
// anything else.
func ptraceGetSigInfo(tid int) (posixSignalInfo, error) {
	var info unix.Siginfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_GETSIGINFO, uintptr(tid), 0, uintptr(unsafe.Pointer(&info)), 0, 0)
	if errno != 0 {
		return posixSignalInfo{}, convertThreadExitErr(errno)
	}
	return posixSignalInfo{Signo: info.Signo, Code: info.Code}, nil
}
