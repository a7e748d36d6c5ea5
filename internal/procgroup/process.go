//go:build unix

package procgroup

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a started group leader whose exit can be observed without
// consuming the Wait result.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

// Start starts cmd as a new process group leader and reaps it in the
// background.
func Start(cmd *exec.Cmd) (*Process, error) {
	Set(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{cmd: cmd, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.done)
}

// Pid returns the process id, which is also the group id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Alive reports whether the process has not exited yet.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Err returns the Wait result once the process has exited.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// ExitCode returns the exit code, or -1 while running or when killed by a
// signal.
func (p *Process) ExitCode() int {
	if p.Alive() {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// groupPoll is how often Stop checks for surviving group members once the
// leader has been reaped.
const groupPoll = 20 * time.Millisecond

// Stop sends SIGTERM to the group, waits up to grace for the leader and every
// other member to exit, then sends SIGKILL to what is left. Members that
// outlived an already exited leader are stopped the same way. Stopping a
// fully exited group returns nil.
func (p *Process) Stop(grace time.Duration) error {
	pgid := p.Pid()
	if err := signalGroup(pgid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal group %d: %w", pgid, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(groupPoll)
	defer ticker.Stop()

	done := p.done
	for p.Alive() || groupExists(pgid) {
		select {
		case <-done:
			done = nil
		case <-ticker.C:
		case <-timer.C:
			if err := signalGroup(pgid, syscall.SIGKILL); err != nil {
				return fmt.Errorf("kill group %d: %w", pgid, err)
			}
			<-p.done
			return nil
		}
	}
	return nil
}

// signalGroup signals every member of group pgid. A group that no longer
// exists is not an error.
func signalGroup(pgid int, sig syscall.Signal) error {
	err := syscall.Kill(-pgid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func groupExists(pgid int) bool {
	err := syscall.Kill(-pgid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
