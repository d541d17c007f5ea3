//go:build linux

// Package trace runs a child process under ptrace and records the files it
// opens for reading. The child's stdout and stderr are captured to unlinked
// temp files; the dependency paths are resolved against a virtual cwd that
// tracks the child's chdir calls and handed to a caller-supplied callback.
package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// Result is the outcome of tracing one child process.
type Result struct {
	Stdout     []byte
	Stderr     []byte
	ExitStatus int
}

// Run executes argv under the syscall tracer. argv[0] must already be a
// resolved executable path. onOpen is invoked once per opened file: an
// absolute path comes through as the child passed it, a relative one is
// canonicalized against the child's working directory at the time of the
// open; relative paths that fail to resolve come through as "".
//
// Only single-threaded children are followed: clone and fork are not traced,
// so files opened by subprocesses go unrecorded.
func Run(argv []string, onOpen func(path string)) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("trace: empty command")
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}

	stdout, err := captureFile()
	if err != nil {
		return nil, err
	}
	defer stdout.Close()
	stderr, err := captureFile()
	if err != nil {
		return nil, err
	}
	defer stderr.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	// All ptrace requests must come from the thread that started the child.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", argv[0], err)
	}
	pid := cmd.Process.Pid

	records, status, err := traceLoop(pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	_ = cmd.Process.Release()

	for _, path := range resolveRecords(records, cwd) {
		onOpen(path)
	}

	res := &Result{ExitStatus: status}
	if res.Stdout, err = readBack(stdout); err != nil {
		return nil, err
	}
	if res.Stderr, err = readBack(stderr); err != nil {
		return nil, err
	}
	return res, nil
}

// captureFile returns a temp file that is already unlinked, so the capture
// disappears with the descriptor no matter how the tracer exits.
func captureFile() (*os.File, error) {
	f, err := os.CreateTemp("", "cache-dash-h-*")
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, fmt.Errorf("unlink capture file: %w", err)
	}
	return f, nil
}

func readBack(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind capture file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read capture file: %w", err)
	}
	return data, nil
}

// traceLoop drives the stopped child syscall-to-syscall until it exits,
// accumulating chdir/open records. Syscall stops are distinguished from
// signal stops via PTRACE_O_TRACESYSGOOD (stop signal SIGTRAP|0x80), so the
// entry/exit toggle only advances on genuine syscall stops. The argument
// registers are captured at the entry stop and the return value at the exit
// stop: on aarch64 the return register is the first argument register, so
// neither stop alone carries both.
func traceLoop(pid int) ([]record, int, error) {
	var (
		records   []record
		ws        unix.WaitStatus
		insyscall bool
		pending   syscallInfo
	)

	// First stop: the SIGTRAP delivered when the child reaches execve.
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return nil, 0, fmt.Errorf("wait4: %w", err)
	}
	if ws.Exited() {
		return records, ws.ExitStatus(), nil
	}
	if err := unix.PtraceSetOptions(pid, unix.PTRACE_O_TRACESYSGOOD); err != nil {
		return nil, 0, fmt.Errorf("ptrace setoptions: %w", err)
	}

	sig := 0
	for {
		if err := unix.PtraceSyscall(pid, sig); err != nil {
			return nil, 0, fmt.Errorf("ptrace syscall: %w", err)
		}
		sig = 0

		if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
			return nil, 0, fmt.Errorf("wait4: %w", err)
		}

		switch {
		case ws.Exited():
			return records, ws.ExitStatus(), nil
		case ws.Signaled():
			return records, 128 + int(ws.Signal()), nil
		case ws.Stopped() && ws.StopSignal() == unix.SIGTRAP|0x80:
			sc, err := getSyscall(pid)
			if err != nil {
				return nil, 0, err
			}
			if !insyscall {
				insyscall = true
				pending = sc
				continue
			}
			insyscall = false
			pending.ret = sc.ret
			rec, ok, err := inspect(pid, pending)
			if err != nil {
				return nil, 0, err
			}
			if ok {
				records = append(records, rec)
			}
		case ws.Stopped():
			// Ordinary signal-delivery stop: forward the signal.
			sig = int(ws.StopSignal())
		}
	}
}

// inspect decides at a syscall-exit stop whether the call contributes a
// record, reading the path argument out of the child when it does.
func inspect(pid int, sc syscallInfo) (record, bool, error) {
	switch int64(sc.nr) {
	case sysChdir:
		path, err := readString(pid, uintptr(sc.args[0]))
		if err != nil {
			return record{}, false, err
		}
		return record{kind: kindChdir, path: path}, true, nil
	case sysOpen:
		return openRecord(pid, sc.args[0], sc.args[1], sc.ret)
	case sysOpenat:
		if sc.args[2]&unix.O_DIRECTORY != 0 {
			return record{}, false, nil
		}
		// The dirfd argument is ignored: relative paths are resolved
		// against the tracked virtual cwd. Wrong for non-AT_FDCWD opens,
		// which at worst turns a hit into a miss.
		return openRecord(pid, sc.args[1], sc.args[2], sc.ret)
	}
	return record{}, false, nil
}

func openRecord(pid int, pathArg, flags uint64, ret int64) (record, bool, error) {
	// Only the low two bits are the access mode; O_RDONLY and O_RDWR both
	// read the file, O_WRONLY cannot.
	if flags&unix.O_ACCMODE == unix.O_WRONLY {
		return record{}, false, nil
	}
	if ret == -int64(unix.ENOENT) {
		return record{}, false, nil
	}
	path, err := readString(pid, uintptr(pathArg))
	if err != nil {
		return record{}, false, err
	}
	return record{kind: kindOpen, path: path}, true, nil
}
