package env

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func TestMergePrecedence(t *testing.T) {
	t.Setenv("VPNR_ENV_BASE", "os")
	t.Setenv("VPNR_ENV_OVER", "os")

	e := New()
	e.FromOS()
	e.Set("VPNR_ENV_OVER", "global")
	e.Set("VPNR_ENV_REF", "${VPNR_ENV_BASE}-x")

	m := toMap(e.Merge([]string{"VPNR_ENV_LAUNCH=launch", "=skipped", "malformed"}))
	assert.Equal(t, "os", m["VPNR_ENV_BASE"])
	assert.Equal(t, "global", m["VPNR_ENV_OVER"])
	assert.Equal(t, "launch", m["VPNR_ENV_LAUNCH"])
	assert.Equal(t, "os-x", m["VPNR_ENV_REF"])
	_, ok := m[""]
	assert.False(t, ok)
}

func TestMergeSorted(t *testing.T) {
	e := New()
	e.env = Var{"B": "2", "A": "1"}
	e.Set("C", "3")
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, e.Merge(nil))
}

func TestLookupAndUnset(t *testing.T) {
	e := New()
	e.env = Var{"K": "base"}
	v, ok := e.Lookup("K")
	require.True(t, ok)
	assert.Equal(t, "base", v)

	e.WithSet("K", "over")
	v, _ = e.Lookup("K")
	assert.Equal(t, "over", v)

	e.Unset("K")
	v, _ = e.Lookup("K")
	assert.Equal(t, "base", v)

	_, ok = e.Lookup("MISSING")
	assert.False(t, ok)
}

func TestInferLibDir(t *testing.T) {
	cases := []struct {
		exe  string
		want string
	}{
		{"/data/x/cache/bin", "/data/x/lib"},
		{"/data/x/cache/a/cache/bin", "/data/x/cache/a/lib"},
		{"/opt/engine/bin/engine", "/opt/engine/bin/engine/lib"},
		{"", "/lib"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, InferLibDir(c.exe), c.exe)
	}
}

func TestLibraryPath(t *testing.T) {
	cases := []struct {
		name      string
		exe       string
		nativeDir string
		existing  string
		want      string
	}{
		{"native equals inferred", "/data/x/cache/bin", "/data/x/lib", "", "/data/x/lib"},
		{"native differs", "/data/x/cache/bin", "/data/x/otherlib", "", "/data/x/otherlib:/data/x/lib"},
		{"existing kept last", "/data/x/cache/bin", "/data/x/lib", "/usr/lib", "/data/x/lib:/usr/lib"},
		{"all three", "/data/x/cache/bin", "/n", "/usr/lib", "/n:/data/x/lib:/usr/lib"},
		{"empty native", "/data/x/cache/bin", "", "", "/data/x/lib"},
		{"no cache segment", "/opt/engine", "/opt/lib", "", "/opt/lib:/opt/engine/lib"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, LibraryPath(c.exe, c.nativeDir, c.existing))
		})
	}
}

func TestApplyLaunch(t *testing.T) {
	e := New()
	e.env = Var{LibraryPathVar(): "/usr/lib"}
	e.ApplyLaunch("/data/x/cache/bin", "/data/x/otherlib", "/data/x/tmp")

	m := toMap(e.Merge(nil))
	assert.Equal(t, "/data/x/otherlib:/data/x/lib:/usr/lib", m[LibraryPathVar()])
	assert.Equal(t, "/data/x/tmp", m[TmpDirVar])
}

func TestApplyLaunchNoTmpDir(t *testing.T) {
	e := New()
	e.env = Var{TmpDirVar: "/keep"}
	e.ApplyLaunch("/a/cache/b", "/a/lib", "")
	m := toMap(e.Merge(nil))
	assert.Equal(t, "/keep", m[TmpDirVar])
	assert.Equal(t, "/a/lib", m[LibraryPathVar()])
}

func TestApplyLaunchExtendsConfiguredPath(t *testing.T) {
	e := New()
	e.env = Var{LibraryPathVar(): "/usr/lib"}
	e.SetPairs([]string{LibraryPathVar() + "=/opt/user", "FOO=bar", "broken", "=x"})
	e.ApplyLaunch("/data/x/cache/bin", "/opt/native", "")

	m := toMap(e.Merge(nil))
	assert.Equal(t, "/opt/native:/data/x/lib:/opt/user", m[LibraryPathVar()])
	assert.Equal(t, "bar", m["FOO"])
	assert.NotContains(t, e.Var, "")
}
