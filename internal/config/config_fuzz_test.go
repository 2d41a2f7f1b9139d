package config

import (
	"os"
	"strconv"
	"strings"
	"testing"
)

// FuzzEngineConfigTOML writes a tiny engine section with random values and
// checks that loading and validating never panic.
func FuzzEngineConfigTOML(f *testing.F) {
	f.Add("openvpn", "/opt/vpn/engine", "5s", 1000)
	f.Add("", "", "-1s", -3)
	f.Add("x", "/bin/sh", "nonsense", 0)

	f.Fuzz(func(t *testing.T, name, exe, wait string, buffer int) {
		clean := func(s string) string {
			s = strings.ReplaceAll(s, "\"", "")
			s = strings.ReplaceAll(s, "\\", "")
			return strings.ReplaceAll(s, "\n", "")
		}
		var b strings.Builder
		b.WriteString("[engine]\n")
		b.WriteString("name = \"" + clean(name) + "\"\n")
		b.WriteString("argv = [\"" + clean(exe) + "\"]\n")
		b.WriteString("wait_timeout = \"" + clean(wait) + "\"\n")
		b.WriteString("[status]\n")
		b.WriteString("buffer_size = ")
		b.WriteString(strconv.Itoa(buffer))
		b.WriteString("\n")

		tmp := t.TempDir() + "/fuzz.toml"
		if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
			t.Skip()
		}
		cfg, err := Load(tmp)
		if err != nil {
			return
		}
		if cfg.Validate() == nil {
			if _, err := cfg.LaunchSpec(); err != nil {
				t.Fatalf("valid config produced no launch spec: %v", err)
			}
		}
	})
}
