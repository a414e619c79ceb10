package route

import (
	"errors"
	"strings"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	reg := NewRegistry()
	routes := []Route{
		{Name: "dashboard", Path: "/dashboard"},
		{Name: "queue", Path: "/queue"},
		{
			Name:       "permits",
			Path:       "/permits",
			Module:     "permits",
			Capability: "view",
			Fallback:   "queue",
			Plan: []Call{
				{Slot: "permits", Get: "/municipalities/:municipality_id/permits"},
			},
		},
		{
			Name:       "permits.detail",
			Path:       "/permits/:permit_id",
			Parent:     "permits",
			Module:     "permits",
			Capability: "view",
			Plan: []Call{
				{Slot: "permit", Get: "/permits/:permit_id"},
				{Slot: "inspections", Get: "/permits/{permit.id}/inspections", DependsOn: []string{"permit"}},
			},
		},
	}
	for _, rt := range routes {
		if err := reg.Register(rt); err != nil {
			t.Fatalf("register %s: %v", rt.Name, err)
		}
	}
	if err := reg.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	return reg
}

func TestRegistryLookup(t *testing.T) {
	reg := testRegistry(t)

	rt, err := reg.Lookup("permits.detail")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rt.Parent != "permits" || rt.Capability != "view" {
		t.Fatalf("unexpected route: %+v", rt)
	}

	if _, err := reg.Lookup("nope"); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
}

func TestRegistryLookupBeforeFreeze(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Route{Name: "dashboard", Path: "/dashboard"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := reg.Lookup("dashboard"); !errors.Is(err, ErrRegistryNotFrozen) {
		t.Fatalf("expected ErrRegistryNotFrozen, got %v", err)
	}
	if _, err := reg.Chain("dashboard"); !errors.Is(err, ErrRegistryNotFrozen) {
		t.Fatalf("expected ErrRegistryNotFrozen, got %v", err)
	}
}

func TestRegistryRegisterAfterFreeze(t *testing.T) {
	reg := testRegistry(t)

	err := reg.Register(Route{Name: "late", Path: "/late"})
	if !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("expected ErrRegistryFrozen, got %v", err)
	}
	if !reg.Frozen() {
		t.Fatal("registry should report frozen")
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Route{Name: "dashboard", Path: "/dashboard"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Route{Name: "dashboard", Path: "/other"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestFreezeValidation(t *testing.T) {
	tests := []struct {
		name    string
		routes  []Route
		wantSub string
	}{
		{
			name: "unknown parent",
			routes: []Route{
				{Name: "child", Path: "/c", Parent: "missing"},
			},
			wantSub: "unknown parent",
		},
		{
			name: "unknown fallback",
			routes: []Route{
				{Name: "r", Path: "/r", Fallback: "missing"},
			},
			wantSub: "unknown fallback",
		},
		{
			name: "parent cycle",
			routes: []Route{
				{Name: "a", Path: "/a", Parent: "b"},
				{Name: "b", Path: "/b", Parent: "a"},
			},
			wantSub: "parent cycle",
		},
		{
			name: "unbindable param",
			routes: []Route{
				{Name: "r", Path: "/r", Plan: []Call{
					{Slot: "doc", Get: "/docs/:doc_id"},
				}},
			},
			wantSub: "no binding for :doc_id",
		},
		{
			name: "capability without module scope",
			routes: []Route{
				{Name: "outer", Path: "/outer"},
				{Name: "inner", Path: "/inner", Parent: "outer", Capability: "view"},
			},
			wantSub: "has no module in scope",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			for _, rt := range tc.routes {
				if err := reg.Register(rt); err != nil {
					t.Fatalf("register %s: %v", rt.Name, err)
				}
			}
			err := reg.Freeze()
			if err == nil {
				t.Fatal("expected freeze to fail")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestFreezeAcceptsAncestorParams(t *testing.T) {
	reg := NewRegistry()
	routes := []Route{
		{Name: "cases", Path: "/cases/:case_id"},
		{
			Name:   "cases.notes",
			Path:   "/notes",
			Parent: "cases",
			Plan: []Call{
				{Slot: "notes", Get: "/cases/:case_id/notes"},
			},
		},
	}
	for _, rt := range routes {
		if err := reg.Register(rt); err != nil {
			t.Fatalf("register %s: %v", rt.Name, err)
		}
	}
	if err := reg.Freeze(); err != nil {
		t.Fatalf("freeze: %v", err)
	}
}

func TestChainOrder(t *testing.T) {
	reg := testRegistry(t)

	chain, err := reg.Chain("permits.detail")
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 routes in chain, got %d", len(chain))
	}
	if chain[0].Name != "permits" || chain[1].Name != "permits.detail" {
		t.Fatalf("chain out of order: %s, %s", chain[0].Name, chain[1].Name)
	}
}

func TestSuggest(t *testing.T) {
	reg := testRegistry(t)

	if got := reg.Suggest("permits.detial"); got != "permits.detail" {
		t.Fatalf("expected permits.detail, got %q", got)
	}
	if got := reg.Suggest("completely-unrelated"); got != "" {
		t.Fatalf("expected no suggestion, got %q", got)
	}
}

func TestNamesAndCount(t *testing.T) {
	reg := testRegistry(t)

	if reg.Count() != 4 {
		t.Fatalf("expected 4 routes, got %d", reg.Count())
	}
	names := reg.Names()
	if len(names) != 4 || names[0] != "dashboard" {
		t.Fatalf("unexpected names: %v", names)
	}
}
