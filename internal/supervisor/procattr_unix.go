//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureProcAttr places the child in its own process group: the
// child becomes the leader of a new group whose PGID equals its PID, so
// that a later -PGID signal reaches the whole group (including
// descendants such as `docker run` launched by the child) without ever
// touching the supervisor's own group.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
