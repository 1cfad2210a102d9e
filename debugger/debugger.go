// Package debugger provides a higher level of abstraction over
// proc.ProcessContext. It holds at most one bound tracee at a time and
// forwards commands to it, translating the absence of a tracee into
// proc.ErrNotRunning rather than requiring every caller to nil-check.
package debugger

import (
	"sort"
	"sync"

	"github.com/chronos-dbg/chronos/logflags"
	"github.com/chronos-dbg/chronos/proc"
	"github.com/sirupsen/logrus"
)

// Debugger is a single-session holder. It is safe for concurrent use;
// every method that touches the bound process context takes
// processMutex for its duration.
type Debugger struct {
	processMutex sync.Mutex
	target       *proc.ProcessContext

	log *logrus.Entry
}

// New creates an unbound Debugger. No process is launched or attached
// until Run or Attach is called.
func New() *Debugger {
	return &Debugger{log: logflags.DebuggerLogger()}
}

// Run launches path with args under trace and binds it as this
// Debugger's target. It fails with proc.ErrBusy if a target is already
// bound.
func (d *Debugger) Run(path string, args []string) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target != nil {
		return proc.ErrBusy
	}
	d.log.Infof("launching %s %v", path, args)
	t, err := proc.Launch(path, args)
	if err != nil {
		return err
	}
	d.target = t
	return nil
}

// Attach binds an existing process and every sibling task sharing its
// address space as this Debugger's target. It fails with proc.ErrBusy
// if a target is already bound.
func (d *Debugger) Attach(pid int) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target != nil {
		return proc.ErrBusy
	}
	d.log.Infof("attaching to pid %d", pid)
	t, err := proc.Attach(pid)
	if err != nil {
		return err
	}
	d.target = t
	return nil
}

// ContinueExecution resumes the bound target and blocks until it next
// reports a signal. Ordinary tracee exit is reported as a Signal whose
// IsExit is true, not as an error; the target is unbound once
// IsProcessRunning confirms the tracee is actually gone.
func (d *Debugger) ContinueExecution() (proc.Signal, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target == nil {
		return proc.Signal{}, proc.ErrNotRunning
	}
	sig, err := d.target.ContinueExecution(true)
	if err != nil {
		if err == proc.ErrNotRunning {
			d.target = nil
		}
		return proc.Signal{}, err
	}
	if running, rerr := d.target.IsProcessRunning(); rerr == nil && !running {
		d.target = nil
	}
	return *sig, nil
}

// AddBreakpoint installs a breakpoint at addr on the bound target.
func (d *Debugger) AddBreakpoint(addr uintptr) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target == nil {
		return proc.ErrNotRunning
	}
	return d.target.AddBreakpoint(addr)
}

// RemoveBreakpoint uninstalls the breakpoint at addr from the bound
// target.
func (d *Debugger) RemoveBreakpoint(addr uintptr) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target == nil {
		return proc.ErrNotRunning
	}
	return d.target.RemoveBreakpoint(addr)
}

// Breakpoints returns the addresses of every breakpoint installed on
// the bound target, in ascending order.
func (d *Debugger) Breakpoints() ([]uintptr, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target == nil {
		return nil, proc.ErrNotRunning
	}
	addrs := make([]uintptr, 0, len(d.target.Breakpoints))
	for addr := range d.target.Breakpoints {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs, nil
}

// Threads returns the task ids of every thread the bound target has
// discovered, in ascending order.
func (d *Debugger) Threads() ([]int, error) {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target == nil {
		return nil, proc.ErrNotRunning
	}
	ids := make([]int, 0, len(d.target.Threads))
	for id := range d.target.Threads {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// IsRunning reports whether a target is bound and its tracee is
// still alive.
func (d *Debugger) IsRunning() bool {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target == nil {
		return false
	}
	running, err := d.target.IsProcessRunning()
	return err == nil && running
}

// Detach releases the bound target, optionally killing the tracee,
// and unbinds it. Detaching when no target is bound is a no-op.
func (d *Debugger) Detach(kill bool) error {
	d.processMutex.Lock()
	defer d.processMutex.Unlock()

	if d.target == nil {
		return nil
	}
	err := d.target.Detach(kill)
	d.target = nil
	return err
}
