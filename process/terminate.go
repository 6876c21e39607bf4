package process

import (
	"os"
	"os/exec"
)

// Phase is a termination step.
type Phase int

const (
	// PhaseGraceful asks the process tree to exit (SIGTERM, taskkill /T).
	PhaseGraceful Phase = iota + 1
	// PhaseForce kills the process tree (SIGKILL, taskkill /T /F).
	PhaseForce
)

func (p Phase) String() string {
	switch p {
	case PhaseGraceful:
		return "graceful"
	case PhaseForce:
		return "force"
	default:
		return "unknown"
	}
}

// terminator isolates platform process-tree handling from the executor.
type terminator interface {
	// prepare configures cmd so its descendants can be signalled as a group.
	prepare(cmd *exec.Cmd)
	// terminate signals the tree rooted at p. A tree that has already
	// exited is not an error.
	terminate(p *os.Process, phase Phase) error
}
