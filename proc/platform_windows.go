package proc

import (
	"fmt"
	"sync"
	"syscall"

	sys "golang.org/x/sys/windows"
)

// windowsPlatform backs Platform on Windows. Liveness is probed by
// opening the process object and inspecting its exit code; last-error
// snapshots the most recent Win32 error this value observed.
type windowsPlatform struct {
	mu  sync.Mutex
	err error
}

func newPlatform() Platform {
	return &windowsPlatform{}
}

func (p *windowsPlatform) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *windowsPlatform) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return ""
	}
	return p.err.Error()
}

func (p *windowsPlatform) IsProcessRunning(taskID int) (bool, error) {
	h, err := sys.OpenProcess(sys.PROCESS_QUERY_INFORMATION, false, uint32(taskID))
	if err != nil {
		if err == syscall.ERROR_INVALID_PARAMETER {
			return false, nil
		}
		p.setErr(err)
		return false, fmt.Errorf("opening task %d: %w", taskID, err)
	}
	defer sys.CloseHandle(h)

	var exitCode uint32
	if err := sys.GetExitCodeProcess(h, &exitCode); err != nil {
		p.setErr(err)
		return false, fmt.Errorf("querying task %d exit code: %w", taskID, err)
	}
	return exitCode == _STILL_ACTIVE, nil
}

func (p *windowsPlatform) HasFPU() bool {
	return hasFPU()
}

const _STILL_ACTIVE = 259
