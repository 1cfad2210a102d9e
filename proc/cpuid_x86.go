//go:build amd64 || 386

package proc

// cpuid executes the CPUID instruction and returns the four result
// registers. Implemented in cpuid_x86.s.
func cpuid(axIn, cxIn uint32) (axOut, bxOut, cxOut, dxOut uint32)

// hasFPU probes the FPU-present bit of CPUID leaf 0x01 (Intel 64 and
// IA-32 Architectures Software Developer's Manual, Vol. 2A, Table 3-10:
// EDX bit 0).
func hasFPU() bool {
	_, _, _, dx := cpuid(0x01, 0x00)
	return dx&1 != 0
}
