package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/caplock-dev/caplock/internal/capability"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, uint64(16*1024*1024), cfg.MaxMemory)
	assert.Equal(t, time.Second, cfg.MaxExecutionTime)
	assert.Equal(t, uint64(1_000_000), cfg.MaxFuel)
	assert.Equal(t, capability.Untrusted, cfg.TrustLevel)
	assert.False(t, cfg.AllowThreads)
	assert.False(t, cfg.AllowSIMD)
	assert.Empty(t, cfg.AllowedImports, "nothing importable by default")
}

func TestConfig_ImportAllowed(t *testing.T) {
	cfg := Config{AllowedImports: []string{"env.log", "host.*"}}

	tests := []struct {
		name     string
		module   string
		fn       string
		expected bool
	}{
		{"exact name", "env", "log", true},
		{"same module other name", "env", "exec", false},
		{"module wildcard", "host", "anything", true},
		{"unlisted module", "wasi", "fd_read", false},
		{"wildcard is per module", "env", "*", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cfg.importAllowed(tt.module, tt.fn))
		})
	}
}

func TestConfig_ExportAllowed(t *testing.T) {
	cfg := Config{AllowedExports: []string{"run", "cabi_*"}}

	assert.True(t, cfg.exportAllowed("run"))
	assert.True(t, cfg.exportAllowed("cabi_realloc"))
	assert.False(t, cfg.exportAllowed("main"))

	universal := Config{AllowedExports: []string{"*"}}
	assert.True(t, universal.exportAllowed("anything"))

	empty := Config{}
	assert.False(t, empty.exportAllowed("run"), "empty allow-list exports nothing")
}
