//go:build linux

package trace

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// pathMax bounds remote string reads; matches the kernel's PATH_MAX.
const pathMax = 4096

// readString copies a NUL-terminated string out of the child's address
// space. Reads never cross a page boundary: the terminating NUL may sit in
// the last mapped page, and a single straddling read would fault on the
// unmapped page after it and miss the NUL entirely.
func readString(pid int, addr uintptr) (string, error) {
	pageSize := uintptr(unix.Getpagesize())
	buf := make([]byte, pathMax)
	total := 0

	for total < pathMax {
		chunk := uintptr(pathMax - total)
		if boundary := (addr &^ (pageSize - 1)) + pageSize; addr+chunk > boundary {
			chunk = boundary - addr
		}

		local := []unix.Iovec{{Base: &buf[total], Len: uint64(chunk)}}
		remote := []unix.RemoteIovec{{Base: addr, Len: int(chunk)}}
		n, err := unix.ProcessVMReadv(pid, local, remote, 0)
		if err == unix.ENOSYS {
			return "", fmt.Errorf("process_vm_readv not supported: %w", err)
		}
		if err != nil {
			return "", fmt.Errorf("process_vm_readv pid %d: %w", pid, err)
		}
		if n == 0 {
			break
		}

		if i := bytes.IndexByte(buf[total:total+n], 0); i >= 0 {
			return string(buf[:total+i]), nil
		}
		total += n
		addr += uintptr(n)
	}

	return "", fmt.Errorf("unterminated path at remote address %#x", addr)
}
