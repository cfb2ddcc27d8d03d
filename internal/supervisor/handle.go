package supervisor

import "os/exec"

// handle is the concrete catalog.ChildHandle attached to a Running
// record: an owned reference to the *exec.Cmd wrapping the live OS
// child, dropped by the reaper once the process is reaped.
type handle struct {
	cmd *exec.Cmd
	pid int
}

func (h *handle) PID() int { return h.pid }
