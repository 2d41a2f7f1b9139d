package env

import (
	"runtime"
	"strings"
)

// TmpDirVar is the temp-directory variable set on the engine process.
const TmpDirVar = "TMPDIR"

const cacheSegment = "/cache/"

// LibraryPathVar names the dynamic-library search path variable for the
// running platform.
func LibraryPathVar() string {
	if runtime.GOOS == "darwin" {
		return "DYLD_LIBRARY_PATH"
	}
	return "LD_LIBRARY_PATH"
}

// InferLibDir guesses the application library directory from the engine
// executable path: everything from the last "/cache/" segment on is replaced
// by "/lib". This is a heuristic for installs that unpack the engine into a
// cache directory next to the libraries; it is not guaranteed to exist.
// A path without a "/cache/" segment yields exe+"/lib".
func InferLibDir(exe string) string {
	if i := strings.LastIndex(exe, cacheSegment); i >= 0 {
		return exe[:i] + "/lib"
	}
	return exe + "/lib"
}

// LibraryPath composes the library search path for the engine. The inferred
// directory is prepended to existing (when non-empty), and nativeDir is
// prepended ahead of that when it differs from the inferred directory.
func LibraryPath(exe, nativeDir, existing string) string {
	inferred := InferLibDir(exe)
	path := inferred
	if existing != "" {
		path = inferred + ":" + existing
	}
	if nativeDir != "" && nativeDir != inferred {
		path = nativeDir + ":" + path
	}
	return path
}

// ApplyLaunch sets the library search path and temp directory for an engine
// started from exe. The pre-existing library path is taken from e (overrides
// first, then the OS base). An empty tmpDir leaves TMPDIR untouched.
func (e *Env) ApplyLaunch(exe, nativeDir, tmpDir string) {
	key := LibraryPathVar()
	existing, _ := e.Lookup(key)
	e.Set(key, LibraryPath(exe, nativeDir, existing))
	if tmpDir != "" {
		e.Set(TmpDirVar, tmpDir)
	}
}
