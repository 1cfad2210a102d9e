//go:build linux

package proc

import (
	"debug/elf"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func buildFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "looper")
	cmd := exec.Command("go", "build", "-o", out, "./testdata/looper.go")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building fixture: %v\n%s", err, output)
	}
	return out
}

// threadsFixtureWorkers must match testdata/threads.go's worker count.
const threadsFixtureWorkers = 4

func buildThreadsFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "threads")
	cmd := exec.Command("go", "build", "-o", out, "./testdata/threads.go")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building fixture: %v\n%s", err, output)
	}
	return out
}

func buildExiterFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "exiter")
	cmd := exec.Command("go", "build", "-o", out, "./testdata/exiter.go")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building fixture: %v\n%s", err, output)
	}
	return out
}

func buildSegvFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "segv")
	cmd := exec.Command("go", "build", "-o", out, "./testdata/segv.go")
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building fixture: %v\n%s", err, output)
	}
	return out
}

func entryAddr(t *testing.T, path string) uintptr {
	t.Helper()
	f, err := elf.Open(path)
	if err != nil {
		t.Fatalf("opening fixture: %v", err)
	}
	defer f.Close()
	return uintptr(f.Entry)
}

func withLauncher(t *testing.T, fn func(pc *ProcessContext, entry uintptr)) {
	t.Helper()
	path := buildFixture(t)
	entry := entryAddr(t, path)
	pc, err := Launch(path, nil)
	if err != nil {
		t.Fatalf("Launch(): %v", err)
	}
	defer pc.Detach(true)
	fn(pc, entry)
}

func TestLaunchReportsRunning(t *testing.T) {
	withLauncher(t, func(pc *ProcessContext, entry uintptr) {
		running, err := pc.IsProcessRunning()
		if err != nil {
			t.Fatalf("IsProcessRunning(): %v", err)
		}
		if !running {
			t.Fatal("expected freshly launched process to be running")
		}
	})
}

func TestAddBreakpointThenDuplicateFails(t *testing.T) {
	withLauncher(t, func(pc *ProcessContext, entry uintptr) {
		if err := pc.AddBreakpoint(entry); err != nil {
			t.Fatalf("AddBreakpoint(): %v", err)
		}
		if err := pc.AddBreakpoint(entry); err != ErrDuplicate {
			t.Fatalf("AddBreakpoint() on installed address: got %v, want ErrDuplicate", err)
		}
		if len(pc.Breakpoints) != 1 {
			t.Fatalf("len(Breakpoints) = %d, want exactly 1", len(pc.Breakpoints))
		}
		if _, ok := pc.Breakpoints[entry]; !ok {
			t.Fatalf("Breakpoints missing entry at %#x", entry)
		}
	})
}

func TestRemoveUnknownBreakpointFails(t *testing.T) {
	withLauncher(t, func(pc *ProcessContext, entry uintptr) {
		if err := pc.RemoveBreakpoint(entry + 1); err != ErrNotFound {
			t.Fatalf("RemoveBreakpoint() on unknown address: got %v, want ErrNotFound", err)
		}
	})
}

func TestBreakpointSurvivesPeek(t *testing.T) {
	withLauncher(t, func(pc *ProcessContext, entry uintptr) {
		recorded := make(map[int]uintptr)
		for _, th := range pc.orderedThreads() {
			word, err := th.PeekWord(entry)
			if err != nil {
				t.Fatalf("PeekWord() before install: %v", err)
			}
			recorded[th.TaskID] = word
		}

		if err := pc.AddBreakpoint(entry); err != nil {
			t.Fatalf("AddBreakpoint(): %v", err)
		}
		for _, th := range pc.orderedThreads() {
			word, err := th.PeekWord(entry)
			if err != nil {
				t.Fatalf("PeekWord(): %v", err)
			}
			if byte(word) != TrapByte {
				t.Fatalf("thread %d: trap byte not visible at %#x", th.TaskID, entry)
			}
		}
		if err := pc.RemoveBreakpoint(entry); err != nil {
			t.Fatalf("RemoveBreakpoint(): %v", err)
		}
		for _, th := range pc.orderedThreads() {
			word, err := th.PeekWord(entry)
			if err != nil {
				t.Fatalf("PeekWord() after remove: %v", err)
			}
			if word != recorded[th.TaskID] {
				t.Fatalf("thread %d: word at %#x = %#x after remove, want original %#x", th.TaskID, entry, word, recorded[th.TaskID])
			}
		}
	})
}

func TestAttachUnattachablePidFails(t *testing.T) {
	if _, err := Attach(1); err == nil {
		t.Fatal("Attach(1) on an unattachable pid should fail")
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	withLauncher(t, func(pc *ProcessContext, entry uintptr) {
		if err := pc.Detach(true); err != nil {
			t.Fatalf("Detach(): %v", err)
		}
		if err := pc.Detach(true); err != nil {
			t.Fatalf("second Detach() should be a no-op, got: %v", err)
		}
	})
}

func TestContinueAfterBreakpointHit(t *testing.T) {
	withLauncher(t, func(pc *ProcessContext, entry uintptr) {
		if err := pc.AddBreakpoint(entry); err != nil {
			t.Fatalf("AddBreakpoint(): %v", err)
		}

		sig, err := pc.ContinueExecution(true)
		if err != nil {
			t.Fatalf("ContinueExecution(): %v", err)
		}
		if sig == nil || !sig.IsBreakpoint() {
			t.Fatal("expected first continue to report a breakpoint trap")
		}

		th := sig.Thread()
		if th == nil {
			t.Fatal("Signal carries no thread back-reference")
		}
		rip, err := th.GetPC()
		if err != nil {
			t.Fatalf("GetPC(): %v", err)
		}
		if rip != entry+1 {
			t.Fatalf("PC after trap = %#x, want %#x (entry+1)", rip, entry+1)
		}

		// A second continue must rewind the thread onto the breakpoint
		// address and step it over the restored instruction before
		// resuming it, not re-trap on the same address.
		if _, err := pc.ContinueExecution(false); err != nil {
			t.Fatalf("second ContinueExecution() (stepping over breakpoint) failed: %v", err)
		}
	})
}

func TestAttachDiscoversAllThreads(t *testing.T) {
	path := buildThreadsFixture(t)
	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting threads fixture: %v", err)
	}
	defer cmd.Process.Kill()

	// Give the fixture time to spawn its worker threads before
	// attaching; attachOS enumerates /proc/<pid>/task exactly once.
	time.Sleep(200 * time.Millisecond)

	pc, err := Attach(cmd.Process.Pid)
	if err != nil {
		t.Fatalf("Attach(): %v", err)
	}
	defer pc.Detach(true)

	const wantThreads = threadsFixtureWorkers + 1 // workers + main
	if got := len(pc.Threads); got < wantThreads {
		t.Fatalf("discovered %d threads, want at least %d", got, wantThreads)
	}
}

func TestContinueThroughExit(t *testing.T) {
	path := buildExiterFixture(t)
	pc, err := Launch(path, nil)
	if err != nil {
		t.Fatalf("Launch(): %v", err)
	}
	defer pc.Detach(true)

	sig, err := pc.ContinueExecution(true)
	if err != nil {
		t.Fatalf("ContinueExecution(): %v", err)
	}
	if sig == nil || !sig.IsExit() {
		t.Fatal("expected continue on an exiting tracee to report an exit signal")
	}
	if th := sig.Thread(); th == nil || th.TaskID != pc.ProcessID {
		t.Fatal("exit signal's originating thread should be the main thread")
	}

	running, err := pc.IsProcessRunning()
	if err != nil {
		t.Fatalf("IsProcessRunning(): %v", err)
	}
	if running {
		t.Fatal("IsProcessRunning() should be false once the exit signal has been observed")
	}
}

func TestSegfaultSignalPayload(t *testing.T) {
	path := buildSegvFixture(t)
	pc, err := Launch(path, nil)
	if err != nil {
		t.Fatalf("Launch(): %v", err)
	}
	defer pc.Detach(true)

	sig, err := pc.ContinueExecution(true)
	if err != nil {
		t.Fatalf("ContinueExecution(): %v", err)
	}
	if sig == nil {
		t.Fatal("expected a signal for the induced segfault")
	}
	if sig.IsBreakpoint() {
		t.Fatal("segfault signal misclassified as a breakpoint")
	}
	info, ok := sig.Payload().(posixSignalInfo)
	if !ok {
		t.Fatalf("Payload() = %T, want posixSignalInfo", sig.Payload())
	}
	if info.Signo != int32(unix.SIGSEGV) {
		t.Fatalf("Payload().Signo = %d, want SIGSEGV (%d)", info.Signo, unix.SIGSEGV)
	}
}
