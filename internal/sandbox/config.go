package sandbox

import (
	"strings"
	"time"

	"github.com/caplock-dev/caplock/internal/capability"
)

// wasmPageSize is the WebAssembly linear-memory page size.
const wasmPageSize = 65536

// Config is the immutable resource ceiling and allow-list set for one
// execution unit. Build it once, hand it to NewSandbox, never mutate it.
type Config struct {
	// MaxMemory caps linear memory, in bytes.
	MaxMemory uint64
	// MaxTableElements caps indirect-call table size.
	MaxTableElements uint32
	// MaxExecutionTime caps wall-clock time between Start and Stop.
	MaxExecutionTime time.Duration
	// MaxFuel caps abstract execution units (proxy for instruction count).
	MaxFuel uint64

	AllowThreads bool
	AllowSIMD    bool

	// TrustLevel gates which host functions the module may import: every
	// capability a host function requires must be implicit at this tier.
	TrustLevel capability.TrustLevel

	// AllowedImports lists permitted host functions as "module.name"
	// qualified names; "module.*" permits the whole host module.
	AllowedImports []string
	// AllowedExports lists permitted module exports; "*" permits any.
	AllowedExports []string
}

// DefaultConfig returns conservative ceilings suitable for untrusted code:
// 16 MiB of memory, one second of wall clock, a million fuel units, no
// threads, no SIMD, nothing importable.
func DefaultConfig() Config {
	return Config{
		MaxMemory:        16 * 1024 * 1024,
		MaxTableElements: 1024,
		MaxExecutionTime: time.Second,
		MaxFuel:          1_000_000,
		TrustLevel:       capability.Untrusted,
	}
}

// importAllowed checks the qualified name against the allow-list.
func (c Config) importAllowed(module, name string) bool {
	qualified := module + "." + name
	wildcard := module + ".*"
	for _, allowed := range c.AllowedImports {
		if allowed == qualified || allowed == wildcard {
			return true
		}
	}
	return false
}

// exportAllowed checks an export name against the allow-list.
func (c Config) exportAllowed(name string) bool {
	for _, allowed := range c.AllowedExports {
		if allowed == "*" || allowed == name {
			return true
		}
		// "prefix*" covers generated export families (e.g. "cabi_*").
		if prefix, ok := strings.CutSuffix(allowed, "*"); ok && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
