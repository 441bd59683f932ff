// Package wasm inspects WebAssembly modules with a real compiler pass. It
// complements the sandbox's conservative header check: where the sandbox
// only looks at magic, version and gross size, the inspector compiles the
// module and enumerates its declared imports, exports and memory limits.
package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"

	"github.com/caplock-dev/caplock/internal/capability"
	"github.com/caplock-dev/caplock/internal/sandbox"
)

// globalCache speeds up compilation across inspectors.
var globalCache = wazero.NewCompilationCache()

// Import is one host function the module declares it needs.
type Import struct {
	Module string
	Name   string
}

// QualifiedName returns "module.name".
func (i Import) QualifiedName() string {
	return i.Module + "." + i.Name
}

// ModuleInfo is what a compile pass learns about a module.
type ModuleInfo struct {
	Imports []Import
	Exports []string

	// Declared linear memory limits, in pages. HasMemory is false for
	// modules that declare no memory at all.
	HasMemory  bool
	MemoryMin  uint32
	MemoryMax  uint32
	HasMaxPage bool
}

// Inspector compiles modules without ever instantiating them.
type Inspector struct {
	runtime wazero.Runtime
}

// NewInspector creates an inspector backed by a shared compilation cache.
func NewInspector(ctx context.Context) *Inspector {
	config := wazero.NewRuntimeConfig().WithCompilationCache(globalCache)
	return &Inspector{runtime: wazero.NewRuntimeWithConfig(ctx, config)}
}

// Inspect compiles the module and reports its declared surface. A module
// that fails to compile is malformed beyond what the header heuristic can
// see.
func (in *Inspector) Inspect(ctx context.Context, module []byte) (*ModuleInfo, error) {
	compiled, err := in.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("module failed to compile: %w", err)
	}
	defer compiled.Close(ctx)

	info := &ModuleInfo{}

	for _, fn := range compiled.ImportedFunctions() {
		module, name, isImport := fn.Import()
		if !isImport {
			continue
		}
		info.Imports = append(info.Imports, Import{Module: module, Name: name})
	}

	for name := range compiled.ExportedFunctions() {
		info.Exports = append(info.Exports, name)
	}

	for _, mem := range compiled.ImportedMemories() {
		info.HasMemory = true
		info.MemoryMin = mem.Min()
		info.MemoryMax, info.HasMaxPage = mem.Max()
	}
	for _, mem := range compiled.ExportedMemories() {
		info.HasMemory = true
		info.MemoryMin = mem.Min()
		info.MemoryMax, info.HasMaxPage = mem.Max()
	}

	return info, nil
}

// Close releases the underlying runtime.
func (in *Inspector) Close(ctx context.Context) error {
	return in.runtime.Close(ctx)
}

// wasiModule is the system-interface namespace modules import for OS-like
// services.
const wasiModule = "wasi_snapshot_preview1"

// wasiCapabilities maps WASI functions to the capabilities they exercise.
// Unlisted WASI functions fall back to SystemCall, the most restrictive
// gate.
var wasiCapabilities = map[string][]capability.Capability{
	"args_get":              nil,
	"args_sizes_get":        nil,
	"proc_exit":             nil,
	"clock_time_get":        {capability.ClockAccess},
	"clock_res_get":         {capability.ClockAccess},
	"random_get":            {capability.RandomAccess},
	"environ_get":           {capability.EnvAccess},
	"environ_sizes_get":     {capability.EnvAccess},
	"fd_read":               {capability.FileRead},
	"fd_seek":               {capability.FileRead},
	"fd_close":              {capability.FileRead},
	"fd_fdstat_get":         {capability.FileRead},
	"fd_prestat_get":        {capability.FileRead},
	"fd_prestat_dir_name":   {capability.FileRead},
	"path_open":             {capability.FileRead},
	"fd_write":              {capability.FileWrite},
	"path_create_directory": {capability.FileWrite},
	"path_unlink_file":      {capability.FileDelete},
	"path_remove_directory": {capability.FileDelete},
	"sock_accept":           {capability.NetworkListen},
	"sock_recv":             {capability.NetworkConnect},
	"sock_send":             {capability.NetworkConnect},
	"sock_shutdown":         {capability.NetworkConnect},
}

// RequiredCapabilities maps a declared import to the capabilities its host
// implementation exercises. Unknown imports require SystemCall so they can
// only be registered at full trust.
func RequiredCapabilities(imp Import) []capability.Capability {
	if imp.Module == wasiModule {
		if caps, ok := wasiCapabilities[imp.Name]; ok {
			return caps
		}
		return []capability.Capability{capability.SystemCall}
	}
	return []capability.Capability{capability.ModuleImport}
}

// RegisterModuleImports runs RegisterImport for every import the module
// declares, with the capability mapping above, and checks every export
// against the allow-list. The first refusal aborts: a module with any
// denied import or export must not run.
func RegisterModuleImports(sb *sandbox.Sandbox, info *ModuleInfo) error {
	for _, imp := range info.Imports {
		if err := sb.RegisterImport(imp.Module, imp.Name, RequiredCapabilities(imp)); err != nil {
			return err
		}
	}
	for _, name := range info.Exports {
		if err := sb.CheckExport(name); err != nil {
			return err
		}
	}
	return nil
}
