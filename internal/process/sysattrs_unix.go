//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the engine in its own process group so that
// stop and kill reach any helpers it spawns.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
