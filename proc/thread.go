package proc

// ThreadHandle names a single schedulable entity inside a tracee — a
// thread, on both Linux and Windows. ProcessID == TaskID for the main
// thread on Linux. A ThreadHandle owns identity only; every operation
// on it is expressed through the host platform's tracing primitive,
// and its lifetime is strictly contained by the ProcessContext that
// created it.
type ThreadHandle struct {
	ProcessID int
	TaskID    int

	platform Platform
	// exec runs fn on the OS thread pinned to this tracee's ptrace
	// calls. On Linux every request against a tracee must originate
	// from the same tracer thread that attached to it; exec is how a
	// ThreadHandle reaches that thread without holding a reference
	// back to its owning ProcessContext.
	exec func(func())

	os osThreadDetails
}

func newThreadHandle(processID, taskID int, platform Platform, exec func(func())) *ThreadHandle {
	return &ThreadHandle{ProcessID: processID, TaskID: taskID, platform: platform, exec: exec}
}

// IsMainThread reports whether this handle names the tracee's main
// thread.
func (t *ThreadHandle) IsMainThread() bool { return t.ProcessID == t.TaskID }
