package proc

import "golang.org/x/sys/unix"

// GetPC returns the thread's current instruction pointer.
func (t *ThreadHandle) GetPC() (uintptr, error) {
	var regs unix.PtraceRegs
	var err error
	t.exec(func() { err = unix.PtraceGetRegs(t.TaskID, &regs) })
	if err != nil {
		return 0, convertThreadExitErr(err)
	}
	return uintptr(regs.Rip), nil
}

// SetPC sets the thread's instruction pointer.
func (t *ThreadHandle) SetPC(pc uintptr) error {
	var regs unix.PtraceRegs
	var err error
	t.exec(func() { err = unix.PtraceGetRegs(t.TaskID, &regs) })
	if err != nil {
		return convertThreadExitErr(err)
	}
	regs.Rip = uint64(pc)
	t.exec(func() { err = unix.PtraceSetRegs(t.TaskID, &regs) })
	return convertThreadExitErr(err)
}
