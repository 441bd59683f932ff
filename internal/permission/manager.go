package permission

import (
	"log/slog"
	"time"

	"github.com/caplock-dev/caplock/internal/capability"
)

// pendingWindow is how long a request may sit unanswered before Cleanup
// expires it.
const pendingWindow = 24 * time.Hour

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock injects the wall-clock source. Tests use this to control expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager orchestrates trust assignment, explicit grants, policy evaluation
// and the request/approval workflow. One shared instance serves many
// contexts; it is not safe for concurrent use without external locking (the
// internal registries are mutated by Grant/Revoke/ApproveRequest/Cleanup).
type Manager struct {
	store    *Store
	policies []*Policy
	now      func() time.Time
}

// NewManager creates a manager over the given store.
func NewManager(store *Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTrustLevel classifies a context. Later assignments overwrite earlier
// ones.
func (m *Manager) SetTrustLevel(context string, level capability.TrustLevel) {
	m.store.setTrust(context, level)
}

// TrustLevel returns the context's tier, Untrusted if it was never set.
func (m *Manager) TrustLevel(context string) capability.TrustLevel {
	return m.store.trustOf(context)
}

// AddPolicy registers a policy. Registration order matters: every policy's
// veto set is consulted before any allow path, and auto-grant sets are tried
// in registration order.
func (m *Manager) AddPolicy(p *Policy) {
	m.policies = append(m.policies, p)
}

// Grant stores an explicit permission for the context, stamps GrantedAt
// from the manager's clock, and returns the permission's ID.
func (m *Manager) Grant(context string, p *Permission) string {
	p.GrantedAt = m.now()
	m.store.addGrant(context, p)
	slog.Debug("permission granted",
		"context", context,
		"capability", p.Capability.String(),
		"resource", p.Resource)
	return p.ID
}

// Revoke removes one grant by ID. It reports whether anything was removed.
func (m *Manager) Revoke(context, id string) bool {
	return m.store.removeGrant(context, id)
}

// RevokeAll drops every grant held by the context.
func (m *Manager) RevokeAll(context string) {
	m.store.removeAllGrants(context)
}

// Check answers whether the context may perform cap on resource. The
// decision order is fixed:
//
//  1. any policy listing cap in its veto set denies immediately,
//  2. any policy auto-grants it at sufficient trust,
//  3. the trust tier's implicit set allows it,
//  4. a valid explicit grant matches,
//  5. otherwise denied.
//
// A nil return means allowed; a denial is always a *DeniedError.
func (m *Manager) Check(context string, cap capability.Capability, resource string) error {
	trust := m.store.trustOf(context)

	// The veto pass runs over every policy before any allow path, so a
	// later-registered veto cannot be shadowed by an earlier allow.
	for _, p := range m.policies {
		if p.AlwaysDeny.Has(cap) {
			slog.Warn("capability vetoed by policy",
				"context", context,
				"capability", cap.String(),
				"policy", p.Name)
			return NewPolicyDeniedError(context, cap.String(), p.Name)
		}
	}

	env := ConditionEnv{Context: context, Resource: resource, Trust: trust.String()}
	for _, p := range m.policies {
		if p.autoGrants(cap, env, trust) {
			return nil
		}
	}

	if trust.Allows(cap) {
		return nil
	}

	now := m.now()
	for _, p := range m.store.grantsOf(context) {
		if p.Matches(cap, resource, now) {
			return nil
		}
	}

	return NewDeniedError(context, cap.String(), resource)
}

// UsePermission is Check plus use accounting: when the allow came from an
// explicit grant, that grant's use counter is incremented. Policy and
// trust-level allowances are not use-limited.
func (m *Manager) UsePermission(context string, cap capability.Capability, resource string) error {
	if err := m.Check(context, cap, resource); err != nil {
		return err
	}

	// Re-resolve which path allowed: only explicit grants consume uses.
	trust := m.store.trustOf(context)
	env := ConditionEnv{Context: context, Resource: resource, Trust: trust.String()}
	for _, p := range m.policies {
		if p.autoGrants(cap, env, trust) {
			return nil
		}
	}
	if trust.Allows(cap) {
		return nil
	}

	now := m.now()
	for _, p := range m.store.grantsOf(context) {
		if p.Matches(cap, resource, now) {
			p.Use(now)
			return nil
		}
	}
	return nil
}

// Request enqueues a pending approval request and returns its ID. It never
// grants anything by itself.
func (m *Manager) Request(context string, cap capability.Capability, resource, reason string) string {
	r := newRequest(context, cap, resource, reason, m.now())
	m.store.addRequest(r)
	slog.Info("permission requested",
		"request_id", r.ID,
		"context", context,
		"capability", cap.String(),
		"resource", resource)
	return r.ID
}

// ApproveRequest resolves a pending request and issues the corresponding
// grant, expiring after the given duration when one is supplied (duration
// <= 0 means no expiry). It reports false, changing nothing, if the request
// is unknown or no longer pending; a request older than the pending window
// is expired here rather than approved, whether or not Cleanup ran. This is
// the only path that creates a Permission from a request.
func (m *Manager) ApproveRequest(id string, duration time.Duration) bool {
	r, ok := m.store.request(id)
	if !ok || r.Status != StatusPending {
		return false
	}
	if m.now().Sub(r.RequestedAt) > pendingWindow {
		r.Status = StatusExpired
		slog.Info("request expired", "request_id", id, "context", r.Context)
		return false
	}
	r.Status = StatusApproved

	p := New(r.Capability, r.Resource).
		WithGrantedBy("approval").
		WithReason(r.Reason)
	if duration > 0 {
		p.WithExpiry(m.now().Add(duration))
	}
	m.Grant(r.Context, p)

	slog.Info("request approved",
		"request_id", id,
		"context", r.Context,
		"capability", r.Capability.String())
	return true
}

// DenyRequest resolves a pending request without granting anything. It
// reports false if the request is unknown or no longer pending.
func (m *Manager) DenyRequest(id string) bool {
	r, ok := m.store.request(id)
	if !ok || r.Status != StatusPending {
		return false
	}
	r.Status = StatusDenied
	slog.Info("request denied", "request_id", id, "context", r.Context)
	return true
}

// PendingRequests returns the still-pending requests in enqueue order. The
// slice is fresh; the pointed-to requests are live and read-only to callers.
func (m *Manager) PendingRequests() []*Request {
	var pending []*Request
	m.store.eachRequest(func(r *Request) {
		if r.Status == StatusPending {
			pending = append(pending, r)
		}
	})
	return pending
}

// RequiresApproval reports whether some policy routes cap through the
// approval workflow for contexts at the given context's trust level. The
// dispatch layer uses this to decide between surfacing a denial and queueing
// a request.
func (m *Manager) RequiresApproval(context string, cap capability.Capability) bool {
	trust := m.store.trustOf(context)
	for _, p := range m.policies {
		if trust >= p.MinTrust && p.RequireApproval.Has(cap) {
			return true
		}
	}
	return false
}

// Cleanup prunes grants that are no longer valid and expires requests that
// sat pending for longer than the approval window.
func (m *Manager) Cleanup() {
	now := m.now()

	for context, list := range m.store.grants {
		kept := list[:0]
		for _, p := range list {
			if p.IsValid(now) {
				kept = append(kept, p)
			}
		}
		m.store.grants[context] = kept
	}

	m.store.eachRequest(func(r *Request) {
		if r.Status == StatusPending && now.Sub(r.RequestedAt) > pendingWindow {
			r.Status = StatusExpired
			slog.Info("request expired", "request_id", r.ID, "context", r.Context)
		}
	})
}

// ListPermissions returns the context's currently valid grants.
func (m *Manager) ListPermissions(context string) []*Permission {
	now := m.now()
	var valid []*Permission
	for _, p := range m.store.grantsOf(context) {
		if p.IsValid(now) {
			valid = append(valid, p)
		}
	}
	return valid
}
