package permission

import (
	"github.com/caplock-dev/caplock/internal/capability"
)

// Store owns the mutable registries behind a Manager: trust assignments,
// explicit grants and queued requests. It is a plain value holder with no
// policy logic, injectable so tests construct isolated instances. Concurrent
// use requires external locking; the Manager documents the single-writer
// rule.
type Store struct {
	trust    map[string]capability.TrustLevel
	grants   map[string][]*Permission
	requests map[string]*Request

	// requestOrder preserves enqueue order for PendingRequests.
	requestOrder []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		trust:    make(map[string]capability.TrustLevel),
		grants:   make(map[string][]*Permission),
		requests: make(map[string]*Request),
	}
}

func (s *Store) setTrust(context string, level capability.TrustLevel) {
	s.trust[context] = level
}

// trustOf defaults to Untrusted for unknown contexts. Fail-safe: a context
// that was never classified gets nothing implicitly.
func (s *Store) trustOf(context string) capability.TrustLevel {
	return s.trust[context]
}

func (s *Store) addGrant(context string, p *Permission) {
	s.grants[context] = append(s.grants[context], p)
}

func (s *Store) grantsOf(context string) []*Permission {
	return s.grants[context]
}

func (s *Store) removeGrant(context, id string) bool {
	list := s.grants[context]
	for i, p := range list {
		if p.ID == id {
			s.grants[context] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) removeAllGrants(context string) {
	delete(s.grants, context)
}

func (s *Store) addRequest(r *Request) {
	s.requests[r.ID] = r
	s.requestOrder = append(s.requestOrder, r.ID)
}

func (s *Store) request(id string) (*Request, bool) {
	r, ok := s.requests[id]
	return r, ok
}

// eachRequest visits requests in enqueue order.
func (s *Store) eachRequest(fn func(*Request)) {
	for _, id := range s.requestOrder {
		if r, ok := s.requests[id]; ok {
			fn(r)
		}
	}
}
