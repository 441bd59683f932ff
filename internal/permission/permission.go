// Package permission implements explicit grants, declarative policies and the
// request/approval workflow that together answer "may this context perform
// this capability on this resource".
package permission

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caplock-dev/caplock/internal/capability"
)

// Permission is one explicit grant of a capability over a resource pattern,
// optionally time-limited and use-limited. The owning Manager is the only
// writer of UseCount.
type Permission struct {
	ID         string
	Capability capability.Capability
	Resource   string // glob pattern, see MatchResource
	ExpiresAt  *time.Time
	MaxUses    *int
	UseCount   int
	GrantedBy  string
	Reason     string
	GrantedAt  time.Time
}

// New creates a grant with a fresh ID and no expiry or use limit. GrantedAt
// is stamped by the Manager when the grant is installed, so it follows the
// manager's clock.
func New(cap capability.Capability, resource string) *Permission {
	return &Permission{
		ID:         uuid.NewString(),
		Capability: cap,
		Resource:   resource,
	}
}

// WithExpiry limits the grant to the given deadline.
func (p *Permission) WithExpiry(at time.Time) *Permission {
	p.ExpiresAt = &at
	return p
}

// WithMaxUses limits the grant to n successful uses.
func (p *Permission) WithMaxUses(n int) *Permission {
	p.MaxUses = &n
	return p
}

// WithGrantedBy records who issued the grant.
func (p *Permission) WithGrantedBy(who string) *Permission {
	p.GrantedBy = who
	return p
}

// WithReason records why the grant was issued.
func (p *Permission) WithReason(reason string) *Permission {
	p.Reason = reason
	return p
}

// IsValid reports whether the grant is usable at the given instant: not
// expired and not exhausted.
func (p *Permission) IsValid(now time.Time) bool {
	if p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return false
	}
	if p.MaxUses != nil && p.UseCount >= *p.MaxUses {
		return false
	}
	return true
}

// Matches reports whether the grant covers the capability/resource pair and
// is still valid.
func (p *Permission) Matches(cap capability.Capability, resource string, now time.Time) bool {
	return p.Capability == cap && MatchResource(p.Resource, resource) && p.IsValid(now)
}

// Use consumes one use of the grant. It returns false, without mutating
// anything, if the grant is no longer valid.
func (p *Permission) Use(now time.Time) bool {
	if !p.IsValid(now) {
		return false
	}
	p.UseCount++
	return true
}

// MatchResource evaluates the resource glob rule:
//
//	"*"          matches everything
//	"<p>/**"     matches <p>/<anything>, any depth
//	"<p>/*"      matches <p>/<segment>, exactly one level deep
//	anything else matches only itself
func MatchResource(pattern, resource string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return strings.HasPrefix(resource, prefix+"/")
	}
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		rest, has := strings.CutPrefix(resource, prefix+"/")
		return has && rest != "" && !strings.Contains(rest, "/")
	}
	return pattern == resource
}
