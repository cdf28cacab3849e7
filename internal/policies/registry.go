package policies

import (
	"sort"
	"strings"
	"sync"

	"github.com/nodewire/nodewire/internal/models"
)

// Registry maps roles to the named policies they hold. It is populated during
// application bootstrap, injected into the authentication layer, and read-only
// during request handling.
type Registry struct {
	mu     sync.RWMutex
	byRole map[models.Role]map[string]struct{}
}

// NewRegistry constructs an empty policy registry.
func NewRegistry() *Registry {
	return &Registry{
		byRole: make(map[models.Role]map[string]struct{}),
	}
}

// Register idempotently associates the policy with each given role. Blank
// policy names and duplicate registrations are ignored.
func (r *Registry) Register(roles []models.Role, policyName string) {
	policyName = strings.TrimSpace(policyName)
	if policyName == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, role := range roles {
		set, ok := r.byRole[role]
		if !ok {
			set = make(map[string]struct{})
			r.byRole[role] = set
		}
		set[policyName] = struct{}{}
	}
}

// Registered reports whether the policy is associated with the role.
func (r *Registry) Registered(role models.Role, policyName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.byRole[role]
	if !ok {
		return false
	}
	_, ok = set[strings.TrimSpace(policyName)]
	return ok
}

// PoliciesFor returns a copy of the policy set reachable from the role. The
// result is what an AccessContext carries for a caller holding that role.
func (r *Registry) PoliciesFor(role models.Role) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byRole[role]
	out := make(map[string]struct{}, len(set))
	for name := range set {
		out[name] = struct{}{}
	}
	return out
}

// PolicyNamesFor returns the sorted policy names held by the role.
func (r *Registry) PolicyNamesFor(role models.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byRole[role]
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
