//go:build linux && amd64

package trace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	sysChdir  int64 = unix.SYS_CHDIR
	sysOpen   int64 = unix.SYS_OPEN
	sysOpenat int64 = unix.SYS_OPENAT
)

// getSyscall reads the x86-64 syscall ABI out of the stopped child: number
// in orig_rax, arguments in rdi/rsi/rdx, return value in rax.
func getSyscall(pid int) (syscallInfo, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return syscallInfo{}, fmt.Errorf("ptrace getregs pid %d: %w", pid, err)
	}
	return syscallInfo{
		nr:   regs.Orig_rax,
		args: [3]uint64{regs.Rdi, regs.Rsi, regs.Rdx},
		ret:  int64(regs.Rax),
	}, nil
}
