package proc

import (
	"errors"
	"runtime"
	"sort"
)

// ProcessContext owns a tracee: its task id, the set of threads the
// tracer has discovered, and the set of installed breakpoints. All
// OS calls it issues against the tracee originate from a single
// pinned goroutine, because Linux ptrace requires every request
// against a tracee to come from the same tracer thread that attached
// to it.
type ProcessContext struct {
	ProcessID int

	Breakpoints map[uintptr]*Breakpoint
	Threads     map[int]*ThreadHandle

	platform Platform
	arch     Arch
	exited   bool

	ptraceChan     chan func()
	ptraceDoneChan chan struct{}

	os osProcessDetails
}

func newProcessContext(pid int) *ProcessContext {
	pc := &ProcessContext{
		ProcessID:      pid,
		Breakpoints:    make(map[uintptr]*Breakpoint),
		Threads:        make(map[int]*ThreadHandle),
		platform:       hostPlatform,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan struct{}),
	}
	go pc.handlePtraceFuncs()
	return pc
}

// execPtraceFunc runs fn on the goroutine pinned to this tracee's
// tracer OS thread and waits for it to complete.
func (pc *ProcessContext) execPtraceFunc(fn func()) {
	pc.ptraceChan <- fn
	<-pc.ptraceDoneChan
}

// handlePtraceFuncs locks its goroutine to one OS thread for the
// lifetime of the ProcessContext and serially executes every closure
// sent to ptraceChan on it.
func (pc *ProcessContext) handlePtraceFuncs() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for fn := range pc.ptraceChan {
		fn()
		pc.ptraceDoneChan <- struct{}{}
	}
}

// Launch forks (Linux) or CreateProcess's (Windows) path with args
// under trace from the outset.
func Launch(path string, args []string) (*ProcessContext, error) {
	arch, err := hostArch()
	if err != nil {
		return nil, err
	}
	pc := newProcessContext(0)
	pc.arch = arch
	if err := launchOS(pc, path, args); err != nil {
		return nil, err
	}
	return pc, nil
}

// Attach establishes a trace relationship with the existing task id
// and every sibling task sharing its address space.
func Attach(pid int) (*ProcessContext, error) {
	arch, err := hostArch()
	if err != nil {
		return nil, err
	}
	pc := newProcessContext(pid)
	pc.arch = arch
	if err := attachOS(pc, pid); err != nil {
		return nil, err
	}
	return pc, nil
}

// orderedThreads returns the registered threads sorted by task id, so
// that breakpoint install/uninstall has a deterministic, repeatable
// iteration order as required by spec.md §5.
func (pc *ProcessContext) orderedThreads() []*ThreadHandle {
	ids := make([]int, 0, len(pc.Threads))
	for id := range pc.Threads {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*ThreadHandle, 0, len(ids))
	for _, id := range ids {
		out = append(out, pc.Threads[id])
	}
	return out
}

// IsProcessRunning reports whether this context's tracee is still
// alive.
func (pc *ProcessContext) IsProcessRunning() (bool, error) {
	if pc.exited {
		return false, nil
	}
	return pc.platform.IsProcessRunning(pc.ProcessID)
}

// AddBreakpoint installs a software breakpoint at addr against every
// registered thread, in ascending task-id order. If install fails
// on thread k, every thread that succeeded (0..k-1) is rolled back:
// an uninstall failure caused by the thread having already exited is
// swallowed, any other uninstall failure is joined to the original
// error with errors.Join.
func (pc *ProcessContext) AddBreakpoint(addr uintptr) error {
	running, err := pc.IsProcessRunning()
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	if _, ok := pc.Breakpoints[addr]; ok {
		return ErrDuplicate
	}

	threads := pc.orderedThreads()
	bp := NewBreakpoint(addr)

	installed := make([]*ThreadHandle, 0, len(threads))
	for i, th := range threads {
		var installErr error
		if i == 0 {
			installErr = bp.Install(th)
		} else {
			installErr = bp.mirrorInstall(th)
		}
		if installErr != nil {
			return pc.rollbackInstall(bp, installed, installErr)
		}
		installed = append(installed, th)
	}

	pc.Breakpoints[addr] = bp
	return nil
}

func (pc *ProcessContext) rollbackInstall(bp *Breakpoint, installed []*ThreadHandle, cause error) error {
	var rollbackErr error
	for i, th := range installed {
		var uninstallErr error
		if i == 0 {
			uninstallErr = bp.Uninstall(th)
		} else {
			uninstallErr = bp.mirrorUninstall(th)
		}
		if uninstallErr != nil && !errors.Is(uninstallErr, ErrNotRunning) {
			rollbackErr = errors.Join(rollbackErr, uninstallErr)
		}
	}
	if rollbackErr != nil {
		return errors.Join(cause, rollbackErr)
	}
	return cause
}

// RemoveBreakpoint uninstalls the breakpoint at addr from every
// registered thread and removes it from the breakpoint map.
func (pc *ProcessContext) RemoveBreakpoint(addr uintptr) error {
	running, err := pc.IsProcessRunning()
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	bp, ok := pc.Breakpoints[addr]
	if !ok {
		return ErrNotFound
	}

	threads := pc.orderedThreads()
	var firstErr error
	for i, th := range threads {
		var uninstallErr error
		if i == 0 {
			uninstallErr = bp.Uninstall(th)
		} else {
			uninstallErr = bp.mirrorUninstall(th)
		}
		if uninstallErr != nil && firstErr == nil {
			firstErr = uninstallErr
		}
	}
	if firstErr != nil {
		return firstErr
	}
	delete(pc.Breakpoints, addr)
	return nil
}

// ContinueExecution resumes the tracee. If await is true, it blocks on
// WaitForSignal and returns the resulting Signal; otherwise it returns
// immediately with a nil Signal.
func (pc *ProcessContext) ContinueExecution(await bool) (*Signal, error) {
	running, err := pc.IsProcessRunning()
	if err != nil {
		return nil, err
	}
	if !running {
		return nil, ErrNotRunning
	}
	if err := pc.resumeOS(); err != nil {
		return nil, err
	}
	if !await {
		return nil, nil
	}
	sig, err := pc.WaitForSignal()
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

// WaitForSignal blocks until some registered thread reports an event
// and returns it as a Signal.
func (pc *ProcessContext) WaitForSignal() (Signal, error) {
	return pc.waitForSignalOS()
}

// Detach releases every thread handle and, if kill is true, terminates
// the tracee; otherwise it leaves the tracee running free of the
// tracer.
func (pc *ProcessContext) Detach(kill bool) error {
	if pc.exited {
		return nil
	}
	return pc.detachOS(kill)
}
