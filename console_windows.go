package main

import (
	"fmt"
	"os"
	"syscall"
)

const attachParentProcess = ^uint32(0) // (DWORD)-1

var (
	modkernel32       = syscall.NewLazyDLL("kernel32.dll")
	procAttachConsole = modkernel32.NewProc("AttachConsole")
)

// attachConsole connects stdout and stderr of a GUI subsystem binary to the
// console it was started from, so log output is visible there. It must run
// before the logger is built.
func attachConsole() error {
	r1, _, lasterr := syscall.SyscallN(procAttachConsole.Addr(), uintptr(attachParentProcess))
	if r1 == 0 {
		// Started from explorer, there is no console to attach to.
		return fmt.Errorf("attach console: %w", lasterr)
	}
	hout, err := syscall.GetStdHandle(syscall.STD_OUTPUT_HANDLE)
	if err != nil {
		return fmt.Errorf("stdout handle: %w", err)
	}
	herr, err := syscall.GetStdHandle(syscall.STD_ERROR_HANDLE)
	if err != nil {
		return fmt.Errorf("stderr handle: %w", err)
	}
	os.Stdout = os.NewFile(uintptr(hout), "/dev/stdout")
	os.Stderr = os.NewFile(uintptr(herr), "/dev/stderr")
	return nil
}
