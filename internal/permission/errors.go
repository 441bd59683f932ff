package permission

import "fmt"

// DeniedError is the typed "no" answer of the permission layer. It is an
// expected, recoverable outcome; callers react to it by surfacing the reason
// or by queueing an approval request. It is never used as control flow for
// anything else.
type DeniedError struct {
	Context    string
	Capability string
	Resource   string
	Policy     string // set when the denial came from a policy veto
}

func (e *DeniedError) Error() string {
	if e.Policy != "" {
		return fmt.Sprintf("permission denied: capability %s vetoed by policy %q", e.Capability, e.Policy)
	}
	return fmt.Sprintf("permission denied: context %q lacks capability %s for resource %q", e.Context, e.Capability, e.Resource)
}

// NewDeniedError creates a denial for a missing grant.
func NewDeniedError(context, capability, resource string) *DeniedError {
	return &DeniedError{
		Context:    context,
		Capability: capability,
		Resource:   resource,
	}
}

// NewPolicyDeniedError creates a denial caused by a policy veto.
func NewPolicyDeniedError(context, capability, policy string) *DeniedError {
	return &DeniedError{
		Context:    context,
		Capability: capability,
		Policy:     policy,
	}
}
