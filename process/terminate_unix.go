//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// processGroupTerminator puts each child in its own process group and
// signals the whole group (negative PID).
type processGroupTerminator struct{}

func newTerminator() terminator { return processGroupTerminator{} }

func (processGroupTerminator) prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func (processGroupTerminator) terminate(p *os.Process, phase Phase) error {
	if p == nil {
		return os.ErrProcessDone
	}
	sig := unix.SIGTERM
	if phase == PhaseForce {
		sig = unix.SIGKILL
	}
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
