package proc

import (
	"fmt"
	"syscall"

	sys "golang.org/x/sys/windows"
)

// osThreadDetails caches the Win32 handles this thread needs for
// memory and register access.
type osThreadDetails struct {
	hThread  syscall.Handle
	hProcess syscall.Handle
}

// IsAlive reports whether this thread is still live, by asking Windows
// for its exit code directly rather than going through Platform (a
// thread id is not a process id OpenProcess will accept).
func (t *ThreadHandle) IsAlive() (bool, error) {
	var code uint32
	var err error
	t.exec(func() { err = getExitCodeThread(t.os.hThread, &code) })
	if err != nil {
		return false, err
	}
	return code == _STILL_ACTIVE, nil
}

// PeekWord reads one machine word at addr from the tracee's address
// space.
func (t *ThreadHandle) PeekWord(addr uintptr) (uintptr, error) {
	buf := make([]byte, wordSize)
	var count uintptr
	var err error
	t.exec(func() {
		err = sys.ReadProcessMemory(sys.Handle(t.os.hProcess), addr, &buf[0], uintptr(len(buf)), &count)
	})
	if err != nil {
		return 0, err
	}
	if int(count) != wordSize {
		return 0, fmt.Errorf("short read at %#x: read %d of %d bytes", addr, count, wordSize)
	}
	return wordFromBytes(buf), nil
}

// PokeWord writes one machine word at addr in the tracee's address
// space.
func (t *ThreadHandle) PokeWord(addr uintptr, value uintptr) error {
	buf := bytesFromWord(value)
	var count uintptr
	var err error
	t.exec(func() {
		err = sys.WriteProcessMemory(sys.Handle(t.os.hProcess), addr, &buf[0], uintptr(len(buf)), &count)
	})
	if err != nil {
		return err
	}
	if int(count) != wordSize {
		return fmt.Errorf("short write at %#x: wrote %d of %d bytes", addr, count, wordSize)
	}
	return nil
}

// GetPC returns the thread's current instruction pointer.
func (t *ThreadHandle) GetPC() (uintptr, error) {
	var ctx context64
	ctx.ContextFlags = _CONTEXT_FULL
	var err error
	t.exec(func() { err = getThreadContext(t.os.hThread, &ctx) })
	if err != nil {
		return 0, err
	}
	return uintptr(ctx.Rip), nil
}

// SetPC sets the thread's instruction pointer.
func (t *ThreadHandle) SetPC(pc uintptr) error {
	var ctx context64
	ctx.ContextFlags = _CONTEXT_FULL
	var err error
	t.exec(func() { err = getThreadContext(t.os.hThread, &ctx) })
	if err != nil {
		return err
	}
	ctx.Rip = uint64(pc)
	t.exec(func() { err = setThreadContext(t.os.hThread, &ctx) })
	return err
}

// setTrapFlag sets or clears the EFlags trap flag, used to force a
// single-step trap on the next instruction.
func (t *ThreadHandle) setTrapFlag(on bool) error {
	var ctx context64
	ctx.ContextFlags = _CONTEXT_FULL
	var err error
	t.exec(func() { err = getThreadContext(t.os.hThread, &ctx) })
	if err != nil {
		return err
	}
	if on {
		ctx.EFlags |= _EFLAGS_TRAP
	} else {
		ctx.EFlags &^= _EFLAGS_TRAP
	}
	t.exec(func() { err = setThreadContext(t.os.hThread, &ctx) })
	return err
}
