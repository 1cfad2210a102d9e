package proc

import "fmt"

// BreakpointState is the lifecycle state of a Breakpoint.
type BreakpointState int

const (
	// BreakpointNew is the state of a Breakpoint that has never been
	// installed. Uninstalling it is a no-op.
	BreakpointNew BreakpointState = iota
	// BreakpointEnabled means the trap byte is patched into every
	// thread this breakpoint was installed against.
	BreakpointEnabled
	// BreakpointDisabled means the trap byte has been removed and the
	// original byte restored.
	BreakpointDisabled
)

// Breakpoint is a pure value: address, enabled flag, and the byte it
// overwrote. It holds no reference to the process or thread it is
// installed against; callers pass a ThreadHandle to Install/Uninstall.
type Breakpoint struct {
	Address uintptr
	State   BreakpointState

	savedByte byte
}

// NewBreakpoint returns a Breakpoint in its New state.
func NewBreakpoint(addr uintptr) *Breakpoint {
	return &Breakpoint{Address: addr}
}

func (b *Breakpoint) String() string {
	return fmt.Sprintf("breakpoint at %#x (state=%d)", b.Address, b.State)
}

// Install patches the trap byte into thread's view of memory at
// b.Address, saving the byte it replaces. Installing an already
// BreakpointEnabled breakpoint is an error.
func (b *Breakpoint) Install(thread *ThreadHandle) error {
	if b.State == BreakpointEnabled {
		return fmt.Errorf("install %s: %w", b, ErrDuplicate)
	}
	running, err := thread.IsAlive()
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}

	word, err := thread.PeekWord(b.Address)
	if err != nil {
		return OSError{Op: "peek breakpoint word", Err: err}
	}
	b.savedByte = byte(word)

	patched := (word &^ 0xFF) | uintptr(TrapByte)
	if err := thread.PokeWord(b.Address, patched); err != nil {
		return OSError{Op: "poke breakpoint trap byte", Err: err}
	}
	b.State = BreakpointEnabled
	return nil
}

// Uninstall restores the byte Install saved. Uninstalling a
// BreakpointNew breakpoint is a no-op.
func (b *Breakpoint) Uninstall(thread *ThreadHandle) error {
	if b.State != BreakpointEnabled {
		return nil
	}
	running, err := thread.IsAlive()
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}

	word, err := thread.PeekWord(b.Address)
	if err != nil {
		return OSError{Op: "peek breakpoint word", Err: err}
	}
	restored := (word &^ 0xFF) | uintptr(b.savedByte)
	if err := thread.PokeWord(b.Address, restored); err != nil {
		return OSError{Op: "poke breakpoint restore", Err: err}
	}
	b.State = BreakpointDisabled
	return nil
}

// mirrorInstall re-applies an already-captured trap byte to another
// thread's view of the same address. Every tracee thread shares one
// address space, so this and the original Install both end up writing
// the identical word; mirrorInstall exists so ProcessContext.AddBreakpoint
// can walk every registered thread (per spec.md §4.4) without tripping
// Install's already-enabled guard.
func (b *Breakpoint) mirrorInstall(thread *ThreadHandle) error {
	running, err := thread.IsAlive()
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	word, err := thread.PeekWord(b.Address)
	if err != nil {
		return OSError{Op: "peek breakpoint word", Err: err}
	}
	patched := (word &^ 0xFF) | uintptr(TrapByte)
	if err := thread.PokeWord(b.Address, patched); err != nil {
		return OSError{Op: "poke breakpoint trap byte", Err: err}
	}
	return nil
}

// mirrorUninstall is mirrorInstall's counterpart, restoring the byte
// the primary Uninstall call already captured.
func (b *Breakpoint) mirrorUninstall(thread *ThreadHandle) error {
	running, err := thread.IsAlive()
	if err != nil {
		return err
	}
	if !running {
		return ErrNotRunning
	}
	word, err := thread.PeekWord(b.Address)
	if err != nil {
		return OSError{Op: "peek breakpoint word", Err: err}
	}
	restored := (word &^ 0xFF) | uintptr(b.savedByte)
	if err := thread.PokeWord(b.Address, restored); err != nil {
		return OSError{Op: "poke breakpoint restore", Err: err}
	}
	return nil
}
