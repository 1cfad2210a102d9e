//go:build !amd64 && !386

package proc

// hasFPU always reports true off x86; CPUID has no equivalent there
// and this package only ever constructs x86/amd64 Arch values anyway.
func hasFPU() bool { return true }
