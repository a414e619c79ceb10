package route

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"
)

// ErrRouteNotFound is returned when a lookup names a route that was never registered.
var ErrRouteNotFound = errors.New("route not found")

// ErrRegistryFrozen is returned when Register is called after Freeze.
var ErrRegistryFrozen = errors.New("registry frozen")

// ErrRegistryNotFrozen is returned when the registry is used before Freeze.
var ErrRegistryNotFrozen = errors.New("registry not frozen")

// maxSuggestDistance bounds how far a near-miss lookup may be from a
// registered name before Suggest gives up.
const maxSuggestDistance = 3

// Call describes one backend fetch inside a route's load plan. The
// response body is stored in the route model under Slot, or under As
// when an alias is set.
type Call struct {
	// Slot is the model key the fetched document lands under. Unique
	// within a single plan.
	Slot string `yaml:"slot"`

	// Get is the request path template. Segments of the form ":name"
	// are filled from Params and the built-in bindings; segments of
	// the form "{slot.field}" read a field out of an already-fetched
	// document and require that slot to appear in DependsOn.
	Get string `yaml:"get"`

	// DependsOn lists slots of the same plan that must finish before
	// this call is issued. Referenced slots must be declared earlier
	// in the plan.
	DependsOn []string `yaml:"depends_on"`

	// As renames the slot in the composed model. An aliased slot may
	// shadow a key contributed by a parent route.
	As string `yaml:"as"`

	// Params supplies extra ":name" bindings for the path template.
	Params map[string]string `yaml:"params"`
}

// Route is a registered navigation target together with its access
// gates and load plan.
type Route struct {
	// Name identifies the route. Lookups, parents and fallbacks all
	// refer to routes by name.
	Name string `yaml:"name"`

	// Path is the client-visible URL pattern, kept for manifests and
	// diagnostics. The registry does not interpret it.
	Path string `yaml:"path"`

	// Parent names the route whose model this route composes over.
	// Empty for top-level routes.
	Parent string `yaml:"parent"`

	// Module gates the route on a municipality module. Empty means no
	// module gate.
	Module string `yaml:"module"`

	// Capability gates the route on a user capability within Module.
	// Empty means no capability gate.
	Capability string `yaml:"capability"`

	// StaffOnly restricts the route to municipal staff accounts.
	StaffOnly bool `yaml:"staff_only"`

	// Fallback names the route to redirect to when this route's plan
	// fails. Empty falls back to the engine-wide default.
	Fallback string `yaml:"fallback"`

	// Plan lists the backend fetches that build this route's model.
	Plan []Call `yaml:"plan"`
}

// Registry holds the immutable route table consulted on every
// navigation. Routes are registered during startup, then the registry
// is frozen; lookups before Freeze fail.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]Route
	frozen bool
}

// NewRegistry creates an empty route [Registry]. Call Register for
// each route, then Freeze before handing it to the engine.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]Route)}
}

// Register adds a route definition. Must be called before [Registry.Freeze].
func (r *Registry) Register(rt Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	if rt.Name == "" {
		return errors.New("route name cannot be empty")
	}

	if _, exists := r.routes[rt.Name]; exists {
		return fmt.Errorf("route %q already registered", rt.Name)
	}

	if err := validatePlan(rt); err != nil {
		return fmt.Errorf("route %q: %w", rt.Name, err)
	}

	r.routes[rt.Name] = rt
	return nil
}

// Freeze checks cross-route references and locks the registry. After
// Freeze no further registrations are accepted and lookups become
// valid. Returns the first reference problem found.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}

	for name, rt := range r.routes {
		if rt.Parent != "" {
			if _, ok := r.routes[rt.Parent]; !ok {
				return fmt.Errorf("route %q: unknown parent %q", name, rt.Parent)
			}
		}
		if rt.Fallback != "" {
			if _, ok := r.routes[rt.Fallback]; !ok {
				return fmt.Errorf("route %q: unknown fallback %q", name, rt.Fallback)
			}
		}
	}

	for name := range r.routes {
		if err := r.checkChainLocked(name); err != nil {
			return err
		}
	}

	for name := range r.routes {
		if err := r.checkCapabilityScopeLocked(name); err != nil {
			return err
		}
	}

	for name := range r.routes {
		if err := r.checkParamsLocked(name); err != nil {
			return err
		}
	}

	r.frozen = true
	return nil
}

// checkCapabilityScopeLocked rejects routes that declare a capability
// with no module on the route or any ancestor to scope it to. Caller
// holds r.mu and has already rejected cycles.
func (r *Registry) checkCapabilityScopeLocked(name string) error {
	rt := r.routes[name]
	if rt.Capability == "" {
		return nil
	}
	for cur := name; cur != ""; cur = r.routes[cur].Parent {
		if r.routes[cur].Module != "" {
			return nil
		}
	}
	return fmt.Errorf("route %q: capability %q has no module in scope", name, rt.Capability)
}

// checkParamsLocked verifies that every ":name" placeholder in a
// route's plan is bindable at navigation time: supplied per call,
// built in, or declared by a URL pattern on the route or one of its
// ancestors. Caller holds r.mu and has already rejected cycles.
func (r *Registry) checkParamsLocked(name string) error {
	avail := map[string]bool{
		ParamMunicipalityID: true,
		ParamActorID:        true,
	}
	for cur := name; cur != ""; cur = r.routes[cur].Parent {
		for _, p := range pathParams(r.routes[cur].Path) {
			avail[p] = true
		}
	}

	rt := r.routes[name]
	for _, call := range rt.Plan {
		params, _, err := scanTemplate(call.Get)
		if err != nil {
			return fmt.Errorf("route %q: %w", name, err)
		}
		for _, p := range params {
			if _, ok := call.Params[p]; ok {
				continue
			}
			if !avail[p] {
				return fmt.Errorf("route %q: plan slot %q has no binding for :%s", name, call.Slot, p)
			}
		}
	}
	return nil
}

// checkChainLocked walks the parent links of one route and rejects
// cycles. Caller holds r.mu.
func (r *Registry) checkChainLocked(name string) error {
	seen := map[string]bool{}
	for cur := name; cur != ""; {
		if seen[cur] {
			return fmt.Errorf("route %q: parent cycle through %q", name, cur)
		}
		seen[cur] = true
		cur = r.routes[cur].Parent
	}
	return nil
}

// Lookup returns the named route. Fails with [ErrRegistryNotFrozen]
// before Freeze and [ErrRouteNotFound] for unregistered names.
func (r *Registry) Lookup(name string) (Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.frozen {
		return Route{}, ErrRegistryNotFrozen
	}

	rt, ok := r.routes[name]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}
	return rt, nil
}

// Chain returns the named route preceded by all of its ancestors,
// outermost first. The engine composes models in this order so child
// slots land on top of parent slots.
func (r *Registry) Chain(name string) ([]Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.frozen {
		return nil, ErrRegistryNotFrozen
	}

	var rev []Route
	for cur := name; cur != ""; {
		rt, ok := r.routes[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, cur)
		}
		rev = append(rev, rt)
		cur = rt.Parent
	}

	chain := make([]Route, len(rev))
	for i, rt := range rev {
		chain[len(rev)-1-i] = rt
	}
	return chain, nil
}

// PathParams returns the ":name" path parameters the named route needs,
// collected across the route and its ancestors, outermost first without
// duplicates. HTTP adapters use this to know which request values to
// bind before resolving.
func (r *Registry) PathParams(name string) ([]string, error) {
	chain, err := r.Chain(name)
	if err != nil {
		return nil, err
	}

	var params []string
	seen := make(map[string]bool)
	for _, rt := range chain {
		for _, p := range pathParams(rt.Path) {
			if seen[p] {
				continue
			}
			seen[p] = true
			params = append(params, p)
		}
	}
	return params, nil
}

// Suggest returns the registered name closest to the given one, for
// diagnostics on unknown-route lookups. Returns "" when nothing is
// within editing distance.
func (r *Registry) Suggest(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	bestDist := maxSuggestDistance + 1
	for candidate := range r.routes {
		d := levenshtein.ComputeDistance(name, candidate)
		if d < bestDist || (d == bestDist && candidate < best) {
			best = candidate
			bestDist = d
		}
	}
	if bestDist > maxSuggestDistance {
		return ""
	}
	return best
}

// Names returns all registered route names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered routes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
