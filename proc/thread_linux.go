package proc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// osThreadDetails is empty on Linux: ptrace requests are addressed by
// tid alone, so there is nothing per-thread to cache beyond identity.
type osThreadDetails struct{}

// IsAlive reports whether this thread's task still exists, by
// sending it the null signal.
func (t *ThreadHandle) IsAlive() (bool, error) {
	return t.platform.IsProcessRunning(t.TaskID)
}

// PeekWord reads one machine word at addr from the tracee's address
// space.
func (t *ThreadHandle) PeekWord(addr uintptr) (uintptr, error) {
	buf := make([]byte, wordSize)
	var n int
	var err error
	t.exec(func() { n, err = unix.PtracePeekData(t.TaskID, addr, buf) })
	if err != nil {
		return 0, convertThreadExitErr(err)
	}
	if n != wordSize {
		return 0, fmt.Errorf("short peek at %#x: read %d of %d bytes", addr, n, wordSize)
	}
	return wordFromBytes(buf), nil
}

// PokeWord writes one machine word at addr in the tracee's address
// space.
func (t *ThreadHandle) PokeWord(addr uintptr, value uintptr) error {
	buf := bytesFromWord(value)
	var n int
	var err error
	t.exec(func() { n, err = unix.PtracePokeData(t.TaskID, addr, buf) })
	if err != nil {
		return convertThreadExitErr(err)
	}
	if n != wordSize {
		return fmt.Errorf("short poke at %#x: wrote %d of %d bytes", addr, n, wordSize)
	}
	return nil
}

// WaitBlocking blocks until this thread's task stops or exits, then
// retrieves detailed signal information.
func (t *ThreadHandle) WaitBlocking() (WaitResult, error) {
	var res WaitResult
	var err error
	t.exec(func() { res, err = waitOnTask(t.TaskID, 0) })
	if err == nil && !res.Exited && res.CloneEventTid == 0 {
		res.Signal.thread = t
	}
	return res, err
}

// WaitNonblocking returns immediately; a nil result means no event is
// available yet.
func (t *ThreadHandle) WaitNonblocking() (*WaitResult, error) {
	var res WaitResult
	var got bool
	var err error
	t.exec(func() { res, got, err = waitOnTaskNonblocking(t.TaskID) })
	if err != nil || !got {
		return nil, err
	}
	if !res.Exited && res.CloneEventTid == 0 {
		res.Signal.thread = t
	}
	return &res, nil
}

// SingleStep executes exactly one instruction on this thread and
// blocks until it traps.
func (t *ThreadHandle) SingleStep() error {
	var err error
	t.exec(func() { err = ptraceSingleStep(t.TaskID) })
	if err != nil {
		return err
	}
	t.exec(func() { _, err = waitOnTask(t.TaskID, 0) })
	return err
}
