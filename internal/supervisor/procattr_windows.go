//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// configureProcAttr starts the child in a new console process group so
// it can later be targeted with a console-termination event instead of
// the POSIX process-group signal used on non-Windows hosts.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
