package proc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// linuxPlatform backs Platform on Linux. Liveness is probed with the
// null signal; last-error is a snapshot of the most recent errno seen
// by this value, protected by a mutex since the shim is shared across
// every ProcessContext on the process.
type linuxPlatform struct {
	mu  sync.Mutex
	err error
}

func newPlatform() Platform {
	return &linuxPlatform{}
}

func (p *linuxPlatform) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *linuxPlatform) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return ""
	}
	return p.err.Error()
}

// IsProcessRunning sends the null signal to taskID and distinguishes
// ESRCH (gone) from success (alive) or any other error (unrecoverable).
func (p *linuxPlatform) IsProcessRunning(taskID int) (bool, error) {
	err := unix.Kill(taskID, 0)
	if err == nil {
		return true, nil
	}
	if err == unix.ESRCH {
		return false, nil
	}
	p.setErr(err)
	return false, fmt.Errorf("checking task %d liveness: %w", taskID, err)
}

func (p *linuxPlatform) HasFPU() bool {
	return hasFPU()
}
