package proc

import (
	"fmt"
	"runtime"
)

// TrapByte is the x86/x86-64 INT3 instruction used to install software
// breakpoints. It is named once here and nowhere else, so that no call
// site hard-codes the patch byte.
const TrapByte byte = 0xCC

// Arch describes the architecture-specific facts the engine needs in
// order to patch in a software breakpoint. It carries nothing about
// registers, disassembly or calling convention.
type Arch struct {
	name string
}

// BreakpointSize returns the width, in bytes, of the trap instruction.
func (a Arch) BreakpointSize() int { return 1 }

// BreakpointInstruction returns the byte sequence written into tracee
// memory to install a breakpoint.
func (a Arch) BreakpointInstruction() []byte { return []byte{TrapByte} }

func (a Arch) String() string { return a.name }

// AMD64Arch returns the Arch value for x86-64 targets.
func AMD64Arch() Arch { return Arch{name: "amd64"} }

// I386Arch returns the Arch value for x86 targets.
func I386Arch() Arch { return Arch{name: "386"} }

// hostArch resolves the Arch for the architecture this binary was built
// for. Anything other than amd64/386 is rejected rather than silently
// treated as x86.
func hostArch() (Arch, error) {
	switch runtime.GOARCH {
	case "amd64":
		return AMD64Arch(), nil
	case "386":
		return I386Arch(), nil
	default:
		return Arch{}, fmt.Errorf("%w: %s", ErrUnsupportedArch, runtime.GOARCH)
	}
}

