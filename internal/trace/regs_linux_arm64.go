//go:build linux && arm64

package trace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	sysChdir int64 = unix.SYS_CHDIR
	// open(2) does not exist on arm64; everything goes through openat.
	sysOpen   int64 = -1
	sysOpenat int64 = unix.SYS_OPENAT
)

// getSyscall reads the aarch64 syscall ABI out of the stopped child: number
// in x8, arguments in x0..x2, return value in x0.
func getSyscall(pid int) (syscallInfo, error) {
	var regs unix.PtraceRegsArm64
	if err := unix.PtraceGetRegSetArm64(pid, unix.NT_PRSTATUS, &regs); err != nil {
		return syscallInfo{}, fmt.Errorf("ptrace getregset pid %d: %w", pid, err)
	}
	return syscallInfo{
		nr:   regs.Regs[8],
		args: [3]uint64{regs.Regs[0], regs.Regs[1], regs.Regs[2]},
		ret:  int64(regs.Regs[0]),
	}, nil
}
