//go:build windows

package agentproc

import (
	"os"

	"golang.org/x/sys/windows"
)

// terminate has no SIGTERM equivalent on Windows; Kill() calls
// TerminateProcess directly, so the graceful step and the forced step
// collapse into the same operation.
func terminate(proc *os.Process) error {
	return proc.Kill()
}

// kill forcibly terminates the process on Windows.
func kill(proc *os.Process) error {
	return proc.Kill()
}

// isAlive checks if a process is still running on Windows by opening a
// handle and checking the exit code.
func isAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == 259
}
