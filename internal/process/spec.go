package process

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loykin/vpnr/internal/logger"
)

// DefaultName is used for engines launched without a name.
const DefaultName = "engine"

// LaunchSpec describes one engine invocation. It is treated as immutable once
// handed to New.
type LaunchSpec struct {
	Name         string            `json:"name"`
	Argv         []string          `json:"argv"`           // Argv[0] is the engine executable
	NativeLibDir string            `json:"native_lib_dir"` // installed native library directory
	TmpDir       string            `json:"tmp_dir"`        // exported as TMPDIR
	WorkDir      string            `json:"work_dir"`
	Env          []string          `json:"env"`          // extra K=V pairs over the OS environment
	WaitTimeout  time.Duration     `json:"wait_timeout"` // 0 waits for exit forever
	StdinConfig  string            `json:"stdin_config"` // config file fed to the engine over stdin
	OutputLog    logger.FileConfig `json:"output_log"`   // raw engine output file
}

// Validate reports problems that make the spec impossible to launch.
func (s LaunchSpec) Validate() error {
	if len(s.Argv) == 0 || s.Argv[0] == "" {
		return ErrEmptyArgv
	}
	if s.WaitTimeout < 0 {
		return fmt.Errorf("wait timeout %s: %w", s.WaitTimeout, errNegative)
	}
	return nil
}

var errNegative = errors.New("must not be negative")

// Exe returns the engine executable path.
func (s LaunchSpec) Exe() string {
	if len(s.Argv) == 0 {
		return ""
	}
	return s.Argv[0]
}

// DisplayName returns Name, falling back to the executable base name.
func (s LaunchSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if exe := s.Exe(); exe != "" {
		return filepath.Base(exe)
	}
	return DefaultName
}

// BuildCommand constructs the *exec.Cmd for Argv. No shell is involved.
func (s LaunchSpec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- argv comes from operator configuration
	cmd := exec.Command(s.Argv[0], s.Argv[1:]...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	return cmd
}
