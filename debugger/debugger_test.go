package debugger

import (
	"testing"

	"github.com/chronos-dbg/chronos/proc"
)

func TestMutatingOpsRequireBoundTarget(t *testing.T) {
	d := New()

	if _, err := d.ContinueExecution(); err != proc.ErrNotRunning {
		t.Fatalf("ContinueExecution() on unbound debugger: got %v, want ErrNotRunning", err)
	}
	if err := d.AddBreakpoint(0x1000); err != proc.ErrNotRunning {
		t.Fatalf("AddBreakpoint() on unbound debugger: got %v, want ErrNotRunning", err)
	}
	if err := d.RemoveBreakpoint(0x1000); err != proc.ErrNotRunning {
		t.Fatalf("RemoveBreakpoint() on unbound debugger: got %v, want ErrNotRunning", err)
	}
	if _, err := d.Breakpoints(); err != proc.ErrNotRunning {
		t.Fatalf("Breakpoints() on unbound debugger: got %v, want ErrNotRunning", err)
	}
	if _, err := d.Threads(); err != proc.ErrNotRunning {
		t.Fatalf("Threads() on unbound debugger: got %v, want ErrNotRunning", err)
	}
	if d.IsRunning() {
		t.Fatal("IsRunning() on unbound debugger should be false")
	}
}

func TestDetachWithoutTargetIsNoop(t *testing.T) {
	d := New()
	if err := d.Detach(true); err != nil {
		t.Fatalf("Detach() on unbound debugger: %v", err)
	}
}

func TestRunTwiceFailsBusy(t *testing.T) {
	d := &Debugger{target: &proc.ProcessContext{}}
	if err := d.Run("/bin/true", nil); err != proc.ErrBusy {
		t.Fatalf("Run() with an already-bound target: got %v, want ErrBusy", err)
	}
	if err := d.Attach(1); err != proc.ErrBusy {
		t.Fatalf("Attach() with an already-bound target: got %v, want ErrBusy", err)
	}
}
