package proc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// osProcessDetails caches the tracee's comm name, read from
// /proc/<pid>/comm at launch and attach. The zombie check in
// waitOnTask reads /proc/<tid>/stat directly and does not use it.
type osProcessDetails struct {
	comm string
}

// launchMachine maps a Go GOARCH name to the machine name setarch(8)
// expects.
func launchMachine() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	default:
		return runtime.GOARCH
	}
}

// launchOS forks and executes path under trace. ASLR is disabled by
// running the target through setarch -R rather than calling
// personality(2) directly: os/exec gives no hook to run code in the
// child between fork and exec, so the equivalent of the original
// source's in-child personality() call is pushed into a wrapper
// process that execve's the real target once, which ptrace reports
// exactly like a direct exec.
func launchOS(pc *ProcessContext, path string, args []string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	argv := append([]string{launchMachine(), "-R", abs}, args...)

	var cmd *exec.Cmd
	var startErr error
	pc.execPtraceFunc(func() {
		cmd = exec.Command("setarch", argv...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true, Setpgid: true}
		startErr = cmd.Start()
	})
	if startErr != nil {
		return OSError{Op: "launch " + abs, Err: startErr}
	}

	pc.ProcessID = cmd.Process.Pid
	if err := pc.loadComm(); err != nil {
		return err
	}

	// First stop: setarch's own exec. Let it run so it can re-exec the
	// real target, which raises the second, real, initial stop.
	var waitErr error
	pc.execPtraceFunc(func() { _, waitErr = waitOnTask(pc.ProcessID, 0) })
	if waitErr != nil {
		return fmt.Errorf("waiting for setarch exec: %w", waitErr)
	}
	var contErr error
	pc.execPtraceFunc(func() { contErr = ptraceCont(pc.ProcessID, 0) })
	if contErr != nil {
		return contErr
	}
	pc.execPtraceFunc(func() { _, waitErr = waitOnTask(pc.ProcessID, 0) })
	if waitErr != nil {
		return fmt.Errorf("waiting for target exec: %w", waitErr)
	}

	pc.Threads[pc.ProcessID] = newThreadHandle(pc.ProcessID, pc.ProcessID, pc.platform, pc.execPtraceFunc)

	var optErr error
	pc.execPtraceFunc(func() { optErr = ptraceSetOptions(pc.ProcessID, unix.PTRACE_O_TRACECLONE) })
	return optErr
}

// attachOS attaches to pid and to every sibling task in its task
// group. If any attach fails, every task already attached in this
// call is detached and the error is returned.
func attachOS(pc *ProcessContext, pid int) error {
	taskDir := fmt.Sprintf("/proc/%d/task", pid)
	if _, err := os.Stat(taskDir); err != nil {
		return fmt.Errorf("attach %d: %w", pid, ErrNotFound)
	}
	if err := pc.loadComm(); err != nil {
		return err
	}

	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return fmt.Errorf("enumerating tasks of %d: %w", pid, err)
	}

	var attached []int
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}

		var attachErr error
		pc.execPtraceFunc(func() { attachErr = ptraceAttach(tid) })
		if attachErr != nil {
			rollbackAttach(pc, attached)
			return fmt.Errorf("attaching to task %d: %w", tid, attachErr)
		}
		var waitErr error
		pc.execPtraceFunc(func() { _, waitErr = waitOnTask(tid, 0) })
		if waitErr != nil {
			rollbackAttach(pc, attached)
			return fmt.Errorf("waiting for task %d to stop: %w", tid, waitErr)
		}
		var optErr error
		pc.execPtraceFunc(func() { optErr = ptraceSetOptions(tid, unix.PTRACE_O_TRACECLONE) })
		if optErr != nil {
			rollbackAttach(pc, attached)
			return optErr
		}

		pc.Threads[tid] = newThreadHandle(pid, tid, pc.platform, pc.execPtraceFunc)
		attached = append(attached, tid)
	}
	return nil
}

func rollbackAttach(pc *ProcessContext, tids []int) {
	for _, tid := range tids {
		tid := tid
		pc.execPtraceFunc(func() { ptraceDetach(tid, 0) })
		delete(pc.Threads, tid)
	}
}

func (pc *ProcessContext) loadComm() error {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pc.ProcessID))
	if err != nil {
		return fmt.Errorf("reading comm of %d: %w", pc.ProcessID, err)
	}
	pc.os.comm = string(bytes.TrimSuffix(data, []byte("\n")))
	return nil
}

// waitOnTask blocks until tid stops or exits, working around the
// kernel's habit of hanging waitpid forever when a thread group
// leader has already exited leaving zombie threads of its own
// (https://sourceware.org/bugzilla/show_bug.cgi?id=12702) by polling
// with WNOHANG and checking /proc/<tid>/stat for zombie state between
// attempts.
func waitOnTask(tid, options int) (WaitResult, error) {
	for {
		var s unix.WaitStatus
		wpid, err := unix.Wait4(tid, &s, unix.WNOHANG|unix.WALL|options, nil)
		if err != nil {
			return WaitResult{}, err
		}
		if wpid != 0 {
			return buildWaitResult(wpid, s)
		}
		if isZombie(tid) {
			return WaitResult{Exited: true}, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// waitOnTaskNonblocking returns immediately; ok is false when no event
// is available yet.
func waitOnTaskNonblocking(tid int) (res WaitResult, ok bool, err error) {
	var s unix.WaitStatus
	wpid, werr := unix.Wait4(tid, &s, unix.WNOHANG|unix.WALL, nil)
	if werr != nil {
		return WaitResult{}, false, werr
	}
	if wpid == 0 {
		return WaitResult{}, false, nil
	}
	res, err = buildWaitResult(wpid, s)
	return res, true, err
}

func buildWaitResult(wpid int, s unix.WaitStatus) (WaitResult, error) {
	if s.Exited() {
		return WaitResult{Exited: true, ExitStatus: s.ExitStatus()}, nil
	}
	if s.StopSignal() == unix.SIGTRAP && s.TrapCause() == unix.PTRACE_EVENT_CLONE {
		cloned, err := ptraceGetEventMsg(wpid)
		if err != nil {
			return WaitResult{}, err
		}
		return WaitResult{CloneEventTid: int(cloned)}, nil
	}
	info, err := ptraceGetSigInfo(wpid)
	if err != nil {
		return WaitResult{}, err
	}
	return WaitResult{Signal: newSignal(nil, info)}, nil
}

func isZombie(tid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", tid))
	if err != nil {
		return true
	}
	idx := bytes.LastIndexByte(data, ')')
	if idx < 0 || idx+2 >= len(data) {
		return false
	}
	return data[idx+2] == 'Z'
}

// resumeOS steps every thread currently sitting on an enabled
// breakpoint past it, then resumes every thread.
func (pc *ProcessContext) resumeOS() error {
	for _, th := range pc.orderedThreads() {
		raw, err := th.GetPC()
		if err != nil {
			if errors.Is(err, ErrNotRunning) {
				continue
			}
			return err
		}
		addr := raw - 1 // CPU leaves RIP one past INT3 on trap
		if bp, ok := pc.Breakpoints[addr]; ok && bp.State == BreakpointEnabled {
			if err := th.SetPC(addr); err != nil {
				return err
			}
			if err := pc.stepOverBreakpoint(bp, th); err != nil {
				return err
			}
		}
	}
	for _, th := range pc.orderedThreads() {
		th := th
		var err error
		th.exec(func() { err = ptraceCont(th.TaskID, 0) })
		if err != nil && !errors.Is(err, ErrNotRunning) {
			return err
		}
	}
	return nil
}

// stepOverBreakpoint uninstalls bp, single-steps th past the
// instruction it occupies, then reinstalls it, so continue_execution
// never re-traps a thread that is already stopped on a breakpoint.
func (pc *ProcessContext) stepOverBreakpoint(bp *Breakpoint, th *ThreadHandle) error {
	if err := bp.Uninstall(th); err != nil {
		return err
	}
	if err := th.SingleStep(); err != nil {
		return err
	}
	return bp.Install(th)
}

// waitForSignalOS round-robins over every registered thread, polling
// each non-blockingly with a 500ms budget before moving to the next.
// Thread-clone notifications are handled transparently (the new thread
// is registered and both threads are resumed); process exit on the
// main task ends the wait with a Signal carrying exitSignalInfo, not
// an error — is_process_running() is where that exit becomes visible
// as a state change, not the return value of continue_execution.
func (pc *ProcessContext) waitForSignalOS() (Signal, error) {
	for {
		for _, th := range pc.orderedThreads() {
			res, err := pollThreadWithBudget(th, 500*time.Millisecond)
			if err != nil {
				return Signal{}, err
			}
			if res == nil {
				continue
			}
			if res.Exited {
				if th.TaskID == pc.ProcessID {
					pc.exited = true
					return newSignal(th, exitSignalInfo{ExitStatus: res.ExitStatus}), nil
				}
				delete(pc.Threads, th.TaskID)
				continue
			}
			if res.CloneEventTid != 0 {
				if err := pc.addClonedThread(res.CloneEventTid); err != nil {
					return Signal{}, err
				}
				th := th
				var contErr error
				th.exec(func() { contErr = ptraceCont(th.TaskID, 0) })
				if contErr != nil && !errors.Is(contErr, ErrNotRunning) {
					return Signal{}, contErr
				}
				continue
			}
			res.Signal.thread = th
			return res.Signal, nil
		}
	}
}

func pollThreadWithBudget(th *ThreadHandle, budget time.Duration) (*WaitResult, error) {
	deadline := time.Now().Add(budget)
	for {
		res, err := th.WaitNonblocking()
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (pc *ProcessContext) addClonedThread(tid int) error {
	if _, ok := pc.Threads[tid]; ok {
		return nil
	}
	var err error
	pc.execPtraceFunc(func() {
		// A cloned thread starts in a stop of its own; reap that stop
		// before issuing requests against it, then let it run.
		if _, err = waitOnTask(tid, 0); err != nil {
			return
		}
		if err = ptraceSetOptions(tid, unix.PTRACE_O_TRACECLONE); err != nil {
			return
		}
		err = ptraceCont(tid, 0)
	})
	if err != nil {
		return err
	}
	pc.Threads[tid] = newThreadHandle(pc.ProcessID, tid, pc.platform, pc.execPtraceFunc)
	return nil
}

// detachOS detaches every thread and, if kill is true, sends SIGKILL
// to the whole process group; otherwise every installed breakpoint is
// uninstalled first so the tracee resumes with its original bytes.
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

	var firstErr error
	for tid := range pc.Threads {
		tid := tid
		var err error
		pc.execPtraceFunc(func() { err = ptraceDetach(tid, 0) })
		if err != nil && firstErr == nil && !errors.Is(err, ErrNotRunning) {
			firstErr = err
		}
	}

	if kill {
		unix.Kill(-pc.ProcessID, unix.SIGKILL)
	}

	pc.exited = true
	close(pc.ptraceChan)
	return firstErr
}
