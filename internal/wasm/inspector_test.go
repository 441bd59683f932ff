package wasm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caplock-dev/caplock/internal/capability"
	"github.com/caplock-dev/caplock/internal/sandbox"
)

// emptyModule is the smallest valid module: magic and version only.
var emptyModule = []byte("\x00asm\x01\x00\x00\x00")

func TestInspect_EmptyModule(t *testing.T) {
	ctx := context.Background()
	in := NewInspector(ctx)
	defer in.Close(ctx)

	info, err := in.Inspect(ctx, emptyModule)
	require.NoError(t, err)
	assert.Empty(t, info.Imports)
	assert.Empty(t, info.Exports)
	assert.False(t, info.HasMemory)
}

func TestInspect_MalformedModule(t *testing.T) {
	ctx := context.Background()
	in := NewInspector(ctx)
	defer in.Close(ctx)

	_, err := in.Inspect(ctx, []byte("definitely not wasm"))
	assert.Error(t, err)

	// A valid header with truncated sections still fails the compile pass,
	// which is exactly what the header heuristic cannot catch.
	_, err = in.Inspect(ctx, append(emptyModule, 0x01))
	assert.Error(t, err)
}

func TestRequiredCapabilities(t *testing.T) {
	tests := []struct {
		name     string
		imp      Import
		expected []capability.Capability
	}{
		{
			name:     "wasi clock",
			imp:      Import{Module: "wasi_snapshot_preview1", Name: "clock_time_get"},
			expected: []capability.Capability{capability.ClockAccess},
		},
		{
			name:     "wasi file read",
			imp:      Import{Module: "wasi_snapshot_preview1", Name: "fd_read"},
			expected: []capability.Capability{capability.FileRead},
		},
		{
			name:     "wasi unlink",
			imp:      Import{Module: "wasi_snapshot_preview1", Name: "path_unlink_file"},
			expected: []capability.Capability{capability.FileDelete},
		},
		{
			name: "wasi argv is free",
			imp:  Import{Module: "wasi_snapshot_preview1", Name: "args_get"},
		},
		{
			name:     "unknown wasi falls back to syscall",
			imp:      Import{Module: "wasi_snapshot_preview1", Name: "frobnicate"},
			expected: []capability.Capability{capability.SystemCall},
		},
		{
			name:     "host module needs module import",
			imp:      Import{Module: "host", Name: "log"},
			expected: []capability.Capability{capability.ModuleImport},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RequiredCapabilities(tt.imp))
		})
	}
}

func TestRegisterModuleImports(t *testing.T) {
	cfg := sandbox.DefaultConfig()
	cfg.MaxExecutionTime = time.Second
	cfg.TrustLevel = capability.Sandboxed
	cfg.AllowedImports = []string{"wasi_snapshot_preview1.clock_time_get"}
	cfg.AllowedExports = []string{"run"}
	sb := sandbox.NewSandbox(cfg)

	info := &ModuleInfo{
		Imports: []Import{{Module: "wasi_snapshot_preview1", Name: "clock_time_get"}},
		Exports: []string{"run"},
	}
	require.NoError(t, RegisterModuleImports(sb, info))

	_, ok := sb.Import("wasi_snapshot_preview1.clock_time_get")
	assert.True(t, ok)
}

func TestRegisterModuleImports_DeniedImportAborts(t *testing.T) {
	cfg := sandbox.DefaultConfig()
	cfg.TrustLevel = capability.Sandboxed
	cfg.AllowedImports = []string{"wasi_snapshot_preview1.clock_time_get"}
	sb := sandbox.NewSandbox(cfg)

	info := &ModuleInfo{
		Imports: []Import{
			{Module: "wasi_snapshot_preview1", Name: "fd_read"},
			{Module: "wasi_snapshot_preview1", Name: "clock_time_get"},
		},
	}

	err := RegisterModuleImports(sb, info)
	require.Error(t, err)

	// The refusal aborted before the second import.
	_, ok := sb.Import("wasi_snapshot_preview1.clock_time_get")
	assert.False(t, ok)
}

func TestRegisterModuleImports_TrustGate(t *testing.T) {
	// The import is allow-listed but needs FileRead, which Sandboxed lacks.
	cfg := sandbox.DefaultConfig()
	cfg.TrustLevel = capability.Sandboxed
	cfg.AllowedImports = []string{"wasi_snapshot_preview1.fd_read"}
	sb := sandbox.NewSandbox(cfg)

	info := &ModuleInfo{
		Imports: []Import{{Module: "wasi_snapshot_preview1", Name: "fd_read"}},
	}
	assert.Error(t, RegisterModuleImports(sb, info))

	// At Basic trust the same module passes.
	cfg.TrustLevel = capability.Basic
	sb = sandbox.NewSandbox(cfg)
	assert.NoError(t, RegisterModuleImports(sb, info))
}

func TestRegisterModuleImports_ExportGate(t *testing.T) {
	cfg := sandbox.DefaultConfig()
	cfg.AllowedExports = []string{"run"}
	sb := sandbox.NewSandbox(cfg)

	info := &ModuleInfo{Exports: []string{"steal_secrets"}}
	assert.Error(t, RegisterModuleImports(sb, info))
}
