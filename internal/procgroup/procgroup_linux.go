//go:build linux

package procgroup

import "syscall"

// setParentDeathSignal asks the kernel to SIGTERM the child when the thread
// that forked it exits. The Go runtime only retires threads whose goroutine
// exits while locked, which nothing here does.
func setParentDeathSignal(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGTERM
}
