package permission

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/caplock-dev/caplock/internal/capability"
)

// ConditionEnv defines the variables available to a policy's optional
// auto-grant condition expression.
type ConditionEnv struct {
	Context  string `expr:"context"`
	Resource string `expr:"resource"`
	Trust    string `expr:"trust"`
}

// Policy is a declarative rule layered on top of trust levels. It is
// immutable once registered with a Manager: AlwaysDeny vetoes a capability
// outright, AutoGrant allows it for contexts at or above MinTrust, and
// RequireApproval marks it as needing the human approval workflow.
type Policy struct {
	Name            string
	MinTrust        capability.TrustLevel
	AutoGrant       capability.Set
	AlwaysDeny      capability.Set
	RequireApproval capability.Set

	// Optional compiled condition that further gates the auto-grant set.
	condition *vm.Program
}

// NewPolicy creates a policy with empty capability sets.
func NewPolicy(name string, minTrust capability.TrustLevel) *Policy {
	return &Policy{
		Name:            name,
		MinTrust:        minTrust,
		AutoGrant:       capability.NewSet(),
		AlwaysDeny:      capability.NewSet(),
		RequireApproval: capability.NewSet(),
	}
}

// WithAutoGrant adds capabilities auto-granted at or above MinTrust.
func (p *Policy) WithAutoGrant(caps ...capability.Capability) *Policy {
	for _, c := range caps {
		p.AutoGrant.Add(c)
	}
	return p
}

// WithAlwaysDeny adds capabilities this policy vetoes unconditionally.
func (p *Policy) WithAlwaysDeny(caps ...capability.Capability) *Policy {
	for _, c := range caps {
		p.AlwaysDeny.Add(c)
	}
	return p
}

// WithRequireApproval adds capabilities that need the approval workflow.
func (p *Policy) WithRequireApproval(caps ...capability.Capability) *Policy {
	for _, c := range caps {
		p.RequireApproval.Add(c)
	}
	return p
}

// WithCondition compiles an expression that gates the auto-grant set. The
// expression sees the requesting context, the resource and the context's
// trust level name, and must evaluate to a boolean. The veto set is never
// conditional.
func (p *Policy) WithCondition(source string) (*Policy, error) {
	program, err := expr.Compile(source, expr.Env(ConditionEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid condition for policy %q: %w", p.Name, err)
	}
	p.condition = program
	return p, nil
}

// autoGrants reports whether the policy auto-grants cap for a context at the
// given trust level.
func (p *Policy) autoGrants(cap capability.Capability, env ConditionEnv, trust capability.TrustLevel) bool {
	if trust < p.MinTrust || !p.AutoGrant.Has(cap) {
		return false
	}
	if p.condition == nil {
		return true
	}
	out, err := expr.Run(p.condition, env)
	if err != nil {
		// A failing condition must never widen access.
		return false
	}
	allowed, ok := out.(bool)
	return ok && allowed
}
