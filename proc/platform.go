package proc

// Platform is the uniform surface over the host OS's tracing facility
// that everything else in this package is built on. It carries no
// per-tracee state; the same value backs every ProcessContext on a
// given OS.
type Platform interface {
	// LastError returns a human-readable snapshot of the most recent
	// OS-level error observed by this platform shim.
	LastError() string

	// IsProcessRunning reports whether taskID names a task that exists
	// and has not been reaped. A definitively-gone task reports
	// (false, nil); only an unrecoverable query failure is an error.
	IsProcessRunning(taskID int) (bool, error)

	// HasFPU reports whether the host CPU has a floating point unit.
	// Always true on non-x86 builds.
	HasFPU() bool
}

// hostPlatform is the Platform value wired to every ProcessContext
// constructed on this OS. The concrete type is selected at compile
// time by the _linux.go/_windows.go file suffix.
var hostPlatform Platform = newPlatform()
