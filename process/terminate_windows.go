//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// processTreeTerminator starts children in a new process group and
// terminates the whole tree with taskkill.
type processTreeTerminator struct{}

func newTerminator() terminator { return processTreeTerminator{} }

func (processTreeTerminator) prepare(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP
}

func (processTreeTerminator) terminate(p *os.Process, phase Phase) error {
	if p == nil {
		return os.ErrProcessDone
	}
	args := []string{"/T", "/PID", strconv.Itoa(p.Pid)}
	if phase == PhaseForce {
		args = append([]string{"/F"}, args...)
	}
	if err := exec.Command("taskkill", args...).Run(); err != nil {
		if phase == PhaseForce {
			// taskkill exits non-zero once the tree is gone.
			if killErr := p.Kill(); killErr != nil {
				return os.ErrProcessDone
			}
		}
		return err
	}
	return nil
}
