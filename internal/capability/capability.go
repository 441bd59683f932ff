// Package capability defines the closed vocabulary of gateable actions and
// the ordered trust tiers that imply default capability sets.
package capability

import "sort"

// Capability represents one kind of privileged action that must pass the
// authorization layer before executing. The set is closed: extending it is a
// deliberate, versioned change, never dynamic.
type Capability string

const (
	FileRead       Capability = "file_read"
	FileWrite      Capability = "file_write"
	FileDelete     Capability = "file_delete"
	NetworkConnect Capability = "network_connect"
	NetworkListen  Capability = "network_listen"
	ProcessSpawn   Capability = "process_spawn"
	EnvAccess      Capability = "env_access"
	SystemCall     Capability = "system_call"
	ModuleImport   Capability = "module_import"
	ClockAccess    Capability = "clock_access"
	RandomAccess   Capability = "random_access"
)

// All lists every known capability in a stable order.
var All = []Capability{
	FileRead,
	FileWrite,
	FileDelete,
	NetworkConnect,
	NetworkListen,
	ProcessSpawn,
	EnvAccess,
	SystemCall,
	ModuleImport,
	ClockAccess,
	RandomAccess,
}

// String returns the wire/log name of the capability.
func (c Capability) String() string {
	return string(c)
}

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	for _, known := range All {
		if c == known {
			return true
		}
	}
	return false
}

// Parse converts a string (as found in policy files) into a Capability.
func Parse(s string) (Capability, bool) {
	c := Capability(s)
	return c, c.Valid()
}

// Set is an unordered collection of capabilities.
type Set map[Capability]struct{}

// NewSet builds a set from the given capabilities.
func NewSet(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the set contains c.
func (s Set) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c into the set.
func (s Set) Add(c Capability) {
	s[c] = struct{}{}
}

// List returns the set's members sorted by name, for deterministic output.
func (s Set) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
