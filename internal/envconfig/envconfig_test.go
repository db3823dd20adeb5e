package envconfig

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "on", "TRUE", "On", " 1 "} {
		assert.Assert(t, truthy(v), "truthy(%q)", v)
	}
	for _, v := range []string{"", "0", "false", "off", "yes", "enabled"} {
		assert.Assert(t, !truthy(v), "!truthy(%q)", v)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TALC_DEBUG", "1")
	t.Setenv("TALC_EAGER", "on")
	t.Setenv("TALC_CACHE_DIR", "/tmp/talc-cache")
	t.Setenv("TALC_RELOAD", "off")
	t.Setenv("TALC_VALIDATE_STRUCTURE", "true")

	env := Load()
	assert.Assert(t, env.Debug)
	assert.Assert(t, env.Eager)
	assert.Equal(t, env.CacheDir, "/tmp/talc-cache")
	assert.Assert(t, !env.AutoReload)
	assert.Assert(t, env.ValidateStructure)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TALC_DEBUG", "")
	t.Setenv("TALC_EAGER", "")
	t.Setenv("TALC_CACHE_DIR", "")
	t.Setenv("TALC_RELOAD", "")
	t.Setenv("TALC_VALIDATE_STRUCTURE", "")

	env := Load()
	assert.Assert(t, !env.Debug && !env.Eager && !env.AutoReload && !env.ValidateStructure)
	assert.Equal(t, env.CacheDir, "")
}
