package capability

// TrustLevel is an ordered tier assigned to a context (agent, session or
// module). Higher tiers imply every capability of the tiers below them.
type TrustLevel int

const (
	// Untrusted contexts get nothing implicitly; every action needs an
	// explicit grant. This is the default for unknown contexts.
	Untrusted TrustLevel = iota
	// Sandboxed contexts may read the clock and entropy sources only.
	Sandboxed
	// Basic contexts may additionally read files and the environment.
	Basic
	// Standard contexts may additionally write files, open outbound
	// connections and import modules.
	Standard
	// Elevated contexts may additionally delete files, spawn processes and
	// listen on the network.
	Elevated
	// Full contexts hold every known capability.
	Full
)

// String returns a human-readable name for the trust level.
func (t TrustLevel) String() string {
	switch t {
	case Untrusted:
		return "untrusted"
	case Sandboxed:
		return "sandboxed"
	case Basic:
		return "basic"
	case Standard:
		return "standard"
	case Elevated:
		return "elevated"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// ParseTrustLevel converts a policy-file string into a TrustLevel.
func ParseTrustLevel(s string) (TrustLevel, bool) {
	switch s {
	case "untrusted":
		return Untrusted, true
	case "sandboxed":
		return Sandboxed, true
	case "basic":
		return Basic, true
	case "standard":
		return Standard, true
	case "elevated":
		return Elevated, true
	case "full":
		return Full, true
	default:
		return Untrusted, false
	}
}

// tierGrants holds the capabilities each tier adds on top of the previous one.
var tierGrants = map[TrustLevel][]Capability{
	Untrusted: nil,
	Sandboxed: {ClockAccess, RandomAccess},
	Basic:     {FileRead, EnvAccess},
	Standard:  {FileWrite, NetworkConnect, ModuleImport},
	Elevated:  {FileDelete, ProcessSpawn, NetworkListen},
	Full:      {SystemCall},
}

// Capabilities returns the implicit capability set of the tier. The set is
// cumulative: each tier contains everything granted by lower tiers.
func (t TrustLevel) Capabilities() Set {
	s := NewSet()
	for tier := Untrusted; tier <= t && tier <= Full; tier++ {
		for _, c := range tierGrants[tier] {
			s.Add(c)
		}
	}
	return s
}

// Allows reports whether the tier implicitly grants c.
func (t TrustLevel) Allows(c Capability) bool {
	return t.Capabilities().Has(c)
}
