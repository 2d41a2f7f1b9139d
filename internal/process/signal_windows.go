//go:build windows

package process

import (
	"os"
	"os/exec"
	"strconv"
)

// terminate ends the engine and its children. Console-less processes cannot
// receive a graceful signal, so this matches kill.
func terminate(pid int) error {
	return kill(pid)
}

// kill ends the engine's process tree, falling back to the engine alone when
// taskkill is unavailable.
func kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run(); err == nil {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil // already gone
	}
	return p.Kill()
}
