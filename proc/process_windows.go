package proc

import (
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/windows"
)

// osProcessDetails holds the tracee's process handle and, between a
// stop and the next ContinueExecution call, the identity of the debug
// event this engine owes a ContinueDebugEvent call.
type osProcessDetails struct {
	hProcess syscall.Handle

	hasPending bool
	pendingPID uint32
	pendingTID uint32

	// pendingExit holds the exit Signal synthesized by the step-over
	// dance when the tracee exits mid-step, so the next waitForSignalOS
	// call returns it instead of touching an already-dead debug session.
	pendingExit *Signal
}

// eventOutcome is what decodeEvent extracts from one DEBUG_EVENT.
type eventOutcome struct {
	exited   bool
	exitCode int
	sig      *Signal
}

func buildCommandLine(path string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteWindowsArg(path))
	for _, a := range args {
		parts = append(parts, quoteWindowsArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteWindowsArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"") {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// launchOS starts path under a debug-only-this-process CreateProcess
// call and pumps events until the loader's initial breakpoint stop,
// leaving the tracee parked there exactly like the post-exec SIGTRAP
// stop on Linux.
func launchOS(pc *ProcessContext, path string, args []string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	cmdLine, err := sys.UTF16PtrFromString(buildCommandLine(abs, args))
	if err != nil {
		return err
	}

	var si sys.StartupInfo
	si.Cb = uint32(unsafe.Sizeof(si))
	var pi sys.ProcessInformation

	var createErr error
	pc.execPtraceFunc(func() {
		createErr = sys.CreateProcess(nil, cmdLine, nil, nil, false, _DEBUG_ONLY_THIS_PROCESS, nil, nil, &si, &pi)
	})
	if createErr != nil {
		return OSError{Op: "launch " + abs, Err: createErr}
	}
	// The handles CreateProcess returns are redundant with the ones
	// the CREATE_PROCESS_DEBUG_EVENT delivers below; close them now
	// rather than carry two live handles to the same objects.
	syscall.CloseHandle(syscall.Handle(pi.Thread))
	syscall.CloseHandle(syscall.Handle(pi.Process))

	pc.ProcessID = int(pi.ProcessId)
	return pc.pumpUntilInitialStop()
}

// attachOS attaches to an existing process id. DebugActiveProcess
// itself causes Windows to synthesize a CREATE_PROCESS_DEBUG_EVENT, a
// CREATE_THREAD_DEBUG_EVENT per existing thread, and a trailing
// breakpoint exception, all consumed by pumpUntilInitialStop.
func attachOS(pc *ProcessContext, pid int) error {
	var err error
	pc.execPtraceFunc(func() { err = debugActiveProcess(uint32(pid)) })
	if err != nil {
		return fmt.Errorf("attach %d: %w", pid, err)
	}
	pc.ProcessID = pid
	return pc.pumpUntilInitialStop()
}

func (pc *ProcessContext) pumpUntilInitialStop() error {
	for {
		ev, got, err := pc.pumpOneEvent(5000)
		if err != nil {
			return err
		}
		if !got {
			continue
		}
		outcome, autoContinue, status := pc.decodeEvent(ev)
		if outcome.exited {
			return fmt.Errorf("target exited during launch: status %d", outcome.exitCode)
		}
		if autoContinue {
			if err := pc.continueEvent(ev.ProcessID, ev.ThreadID, status); err != nil {
				return err
			}
			continue
		}
		pc.stashPending(ev)
		return nil
	}
}

func (pc *ProcessContext) stashPending(ev *debugEvent) {
	pc.os.hasPending = true
	pc.os.pendingPID = ev.ProcessID
	pc.os.pendingTID = ev.ThreadID
}

// pumpOneEvent blocks up to millis milliseconds for the next debug
// event on this tracer thread. got is false on a plain timeout.
func (pc *ProcessContext) pumpOneEvent(millis uint32) (ev *debugEvent, got bool, err error) {
	ev = &debugEvent{}
	pc.execPtraceFunc(func() { err = waitForDebugEvent(ev, millis) })
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok && errno == _ERROR_SEM_TIMEOUT {
			return nil, false, nil
		}
		return nil, false, err
	}
	return ev, true, nil
}

func (pc *ProcessContext) continueEvent(pid, tid, status uint32) error {
	var err error
	pc.execPtraceFunc(func() { err = continueDebugEvent(pid, tid, status) })
	return err
}

func (pc *ProcessContext) continuePending(status uint32) error {
	if !pc.os.hasPending {
		return nil
	}
	err := pc.continueEvent(pc.os.pendingPID, pc.os.pendingTID, status)
	pc.os.hasPending = false
	return err
}

// decodeEvent interprets one DEBUG_EVENT, updating thread/process
// bookkeeping as a side effect, and reports whether the engine should
// continue it automatically (and with what status) or surface it as a
// stop.
func (pc *ProcessContext) decodeEvent(ev *debugEvent) (outcome eventOutcome, autoContinue bool, status uint32) {
	switch ev.DebugEventCode {
	case _CREATE_PROCESS_DEBUG_EVENT:
		info := (*createProcessDebugInfo)(unsafe.Pointer(&ev.union[0]))
		pc.os.hProcess = info.Process
		th := newThreadHandle(int(ev.ProcessID), int(ev.ThreadID), pc.platform, pc.execPtraceFunc)
		th.os.hThread = info.Thread
		th.os.hProcess = info.Process
		pc.Threads[int(ev.ThreadID)] = th
		if info.File != 0 {
			syscall.CloseHandle(info.File)
		}
		return eventOutcome{}, true, _DBG_CONTINUE

	case _CREATE_THREAD_DEBUG_EVENT:
		info := (*createThreadDebugInfo)(unsafe.Pointer(&ev.union[0]))
		th := newThreadHandle(int(ev.ProcessID), int(ev.ThreadID), pc.platform, pc.execPtraceFunc)
		th.os.hThread = info.Thread
		th.os.hProcess = pc.os.hProcess
		pc.Threads[int(ev.ThreadID)] = th
		return eventOutcome{}, true, _DBG_CONTINUE

	case _EXIT_THREAD_DEBUG_EVENT:
		if th, ok := pc.Threads[int(ev.ThreadID)]; ok && th.os.hThread != 0 {
			syscall.CloseHandle(th.os.hThread)
		}
		delete(pc.Threads, int(ev.ThreadID))
		return eventOutcome{}, true, _DBG_CONTINUE

	case _LOAD_DLL_DEBUG_EVENT:
		info := (*loadDLLDebugInfo)(unsafe.Pointer(&ev.union[0]))
		if info.File != 0 {
			syscall.CloseHandle(info.File)
		}
		return eventOutcome{}, true, _DBG_CONTINUE

	case _UNLOAD_DLL_DEBUG_EVENT, _OUTPUT_DEBUG_STRING_EVENT, _RIP_EVENT:
		return eventOutcome{}, true, _DBG_CONTINUE

	case _EXIT_PROCESS_DEBUG_EVENT:
		info := (*exitProcessDebugInfo)(unsafe.Pointer(&ev.union[0]))
		return eventOutcome{exited: true, exitCode: int(info.ExitCode)}, false, 0

	case _EXCEPTION_DEBUG_EVENT:
		info := (*exceptionDebugInfo)(unsafe.Pointer(&ev.union[0]))
		th := pc.Threads[int(ev.ThreadID)]
		payload := win32SignalInfo{
			EventCode:     _EXCEPTION_DEBUG_EVENT,
			ExceptionCode: info.ExceptionRecord.ExceptionCode,
			ExceptionAddr: info.ExceptionRecord.ExceptionAddress,
		}
		sig := newSignal(th, payload)
		return eventOutcome{sig: &sig}, false, 0

	default:
		return eventOutcome{}, true, _DBG_EXCEPTION_NOT_HANDLED
	}
}

// resumeOS continues the event this tracer is still holding pending.
// If the thread that raised it is parked on an enabled breakpoint, it
// is first single-stepped past the breakpoint's restored instruction
// before the underlying exception is marked handled.
func (pc *ProcessContext) resumeOS() error {
	if !pc.os.hasPending {
		return nil
	}
	tid := int(pc.os.pendingTID)
	if th, ok := pc.Threads[tid]; ok {
		if bp, addr, atBp := pc.breakpointAtTrap(th); atBp {
			if err := th.SetPC(addr); err != nil {
				return err
			}
			return pc.stepOverBreakpointWindows(bp, th)
		}
	}
	return pc.continuePending(_DBG_CONTINUE)
}

func (pc *ProcessContext) breakpointAtTrap(th *ThreadHandle) (*Breakpoint, uintptr, bool) {
	raw, err := th.GetPC()
	if err != nil {
		return nil, 0, false
	}
	addr := raw - 1 // CPU leaves RIP one past INT3 on trap
	bp, ok := pc.Breakpoints[addr]
	if !ok || bp.State != BreakpointEnabled {
		return nil, 0, false
	}
	return bp, addr, true
}

// stepOverBreakpointWindows uninstalls bp, arms the trap flag, and
// continues the pending exception so the CPU retires the original
// instruction and immediately traps again with EXCEPTION_SINGLE_STEP.
// Any other debug event that arrives before that single-step trap is
// auto-handled in place; a genuinely unrelated exception on another
// thread is parked as the next pending event rather than discarded.
func (pc *ProcessContext) stepOverBreakpointWindows(bp *Breakpoint, th *ThreadHandle) error {
	if err := bp.Uninstall(th); err != nil {
		return err
	}
	if err := th.setTrapFlag(true); err != nil {
		return err
	}
	if err := pc.continuePending(_DBG_CONTINUE); err != nil {
		return err
	}

	for {
		ev, got, err := pc.pumpOneEvent(5000)
		if err != nil {
			return err
		}
		if !got {
			continue
		}
		outcome, autoContinue, status := pc.decodeEvent(ev)
		if outcome.exited {
			pc.exited = true
			sig := newSignal(th, exitSignalInfo{ExitStatus: outcome.exitCode})
			pc.os.pendingExit = &sig
			return nil
		}
		if autoContinue {
			if err := pc.continueEvent(ev.ProcessID, ev.ThreadID, status); err != nil {
				return err
			}
			continue
		}
		if outcome.sig != nil && outcome.sig.Thread() == th && outcome.sig.payloadIsSingleStep() {
			if err := th.setTrapFlag(false); err != nil {
				return err
			}
			if err := bp.Install(th); err != nil {
				return err
			}
			return pc.continueEvent(ev.ProcessID, ev.ThreadID, _DBG_CONTINUE)
		}
		pc.stashPending(ev)
		return nil
	}
}

// waitForSignalOS pumps the shared debug-event stream, auto-handling
// every bookkeeping event, until an exception arrives. The exception
// is left un-continued: resumeOS consumes it on the next
// ContinueExecution call. Ordinary tracee exit surfaces as a Signal
// carrying exitSignalInfo, not an error — is_process_running() is
// where that exit becomes visible as a state change.
func (pc *ProcessContext) waitForSignalOS() (Signal, error) {
	if pc.os.pendingExit != nil {
		sig := *pc.os.pendingExit
		pc.os.pendingExit = nil
		return sig, nil
	}
	for {
		ev, got, err := pc.pumpOneEvent(500)
		if err != nil {
			return Signal{}, err
		}
		if !got {
			continue
		}
		outcome, autoContinue, status := pc.decodeEvent(ev)
		if outcome.exited {
			pc.exited = true
			th := pc.Threads[int(ev.ThreadID)]
			return newSignal(th, exitSignalInfo{ExitStatus: outcome.exitCode}), nil
		}
		if autoContinue {
			if err := pc.continueEvent(ev.ProcessID, ev.ThreadID, status); err != nil {
				return Signal{}, err
			}
			continue
		}
		pc.stashPending(ev)
		if outcome.sig != nil {
			return *outcome.sig, nil
		}
	}
}

// detachOS uninstalls every breakpoint (unless kill is requested),
// releases any pending exception, and either terminates the tracee or
// stops debugging it outright.
func (pc *ProcessContext) detachOS(kill bool) error {
	if !kill {
		for addr, bp := range pc.Breakpoints {
			for i, th := range pc.orderedThreads() {
				if i == 0 {
					bp.Uninstall(th)
				} else {
					bp.mirrorUninstall(th)
				}
			}
			delete(pc.Breakpoints, addr)
		}
	}

	if pc.os.hasPending {
		pc.continuePending(_DBG_CONTINUE)
	}

	var err error
	if kill {
		if pc.os.hProcess != 0 {
			err = sys.TerminateProcess(sys.Handle(pc.os.hProcess), 1)
		}
	} else {
		pc.execPtraceFunc(func() { err = debugActiveProcessStop(uint32(pc.ProcessID)) })
	}

	for tid, th := range pc.Threads {
		if th.os.hThread != 0 {
			syscall.CloseHandle(th.os.hThread)
		}
		delete(pc.Threads, tid)
	}
	if pc.os.hProcess != 0 {
		syscall.CloseHandle(pc.os.hProcess)
	}

	pc.exited = true
	close(pc.ptraceChan)
	return err
}
