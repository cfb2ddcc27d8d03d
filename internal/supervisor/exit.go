package supervisor

import (
	"fmt"
	"os/exec"
	"syscall"
)

// exitCodeFrom extracts the numeric exit code from a cmd.Wait error, or
// -1 if the process was killed by a signal and carries no exit code.
func exitCodeFrom(err error) int {
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// exitedWithStatus reports whether the child terminated by returning a
// numeric exit status, as opposed to being killed by a signal. A normal
// exit is true here regardless of whether the code is zero.
func exitedWithStatus(err error) bool {
	var exitErr *exec.ExitError
	if !asExitError(err, &exitErr) {
		return false
	}
	if signaled, ok := exitErr.Sys().(interface{ Signaled() bool }); ok {
		return !signaled.Signaled()
	}
	// Platforms without a Signaled() notion on ProcessState.Sys() (e.g.
	// Windows) only ever report a numeric exit status.
	return true
}

// describeAbnormalExit renders a human-readable summary of an
// unrequested termination: "terminated by signal <N>" when the
// platform reports a signal, "exited with code <N>" for a non-zero
// abnormal code, otherwise the raw error text.
func describeAbnormalExit(err error) string {
	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return fmt.Sprintf("terminated by signal %d", int(ws.Signal()))
		}
		return fmt.Sprintf("exited with code %d", exitErr.ExitCode())
	}
	return err.Error()
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
