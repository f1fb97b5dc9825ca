//go:build windows

package osutil

import (
	"os"
	"os/exec"
)

// SetProcessGroup configures the command to run in its own process group.
// On Windows, this is a no-op as process groups work differently.
func SetProcessGroup(_ *exec.Cmd) {
	// No equivalent to Setpgid on Windows for foreground processes
}

// KillProcessGroup terminates the process. On Windows we can only terminate
// the main process directly; child processes may continue running as Windows
// doesn't have Unix-style process groups.
func KillProcessGroup(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(os.Kill)
}
