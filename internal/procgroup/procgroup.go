//go:build unix

// Package procgroup spawns children as process group leaders and tears the
// whole group down, so helpers forked by a child (gst-launch plugins,
// python workers) never outlive it.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// Set configures the command to start in a new process group.
// Mandatory for Kill and Terminate to reach grandchildren. Where the platform
// supports it the child is also signalled when its parent dies, so a killed
// supervisor never leaves a running group behind.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	setParentDeathSignal(cmd.SysProcAttr)
}

// Kill sends sig to the process group of cmd. A process that already exited
// is not an error.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return Signal(cmd.Process.Pid, sig)
}

// Signal sends sig to the process group led by pid, falling back to the
// single process when the group cannot be resolved.
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	if pgid != pid {
		// Not a group leader; never signal a foreign group (possibly ours).
		err = syscall.Kill(pid, sig)
	} else {
		err = syscall.Kill(-pgid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Alive reports whether pid still exists. Zombies count as alive until
// reaped by Wait.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Terminate sends SIGTERM to the group, waits for waitCh up to grace, then
// escalates to SIGKILL. It always drains waitCh and returns its error.
// Safe to call on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	_ = Kill(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		return err
	case <-time.After(grace):
	}

	_ = Kill(cmd, syscall.SIGKILL)
	return <-waitCh
}
