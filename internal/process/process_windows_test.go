//go:build windows

package process

import gopsproc "github.com/shirou/gopsutil/v4/process"

func processExists(pid int) bool {
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}
