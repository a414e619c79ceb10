package route

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidatePlanRejections(t *testing.T) {
	tests := []struct {
		name    string
		route   Route
		wantSub string
	}{
		{
			name: "empty slot",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "", Get: "/x"},
			}},
			wantSub: "empty slot",
		},
		{
			name: "duplicate slot",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "doc", Get: "/a"},
				{Slot: "doc", Get: "/b"},
			}},
			wantSub: "duplicate plan slot",
		},
		{
			name: "missing path",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "doc"},
			}},
			wantSub: "no path",
		},
		{
			name: "forward dependency",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "a", Get: "/a", DependsOn: []string{"b"}},
				{Slot: "b", Get: "/b"},
			}},
			wantSub: "not declared earlier",
		},
		{
			name: "self dependency",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "a", Get: "/a", DependsOn: []string{"a"}},
			}},
			wantSub: "not declared earlier",
		},
		{
			name: "reference without dependency",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "a", Get: "/a"},
				{Slot: "b", Get: "/x/{a.id}"},
			}},
			wantSub: "without depending on",
		},
		{
			name: "malformed placeholder",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "a", Get: "/x/{a}"},
			}},
			wantSub: "must be {slot.field}",
		},
		{
			name: "relative path",
			route: Route{Name: "r", Path: "/r", Plan: []Call{
				{Slot: "a", Get: "docs"},
			}},
			wantSub: "must start with /",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			err := reg.Register(tc.route)
			if err == nil {
				t.Fatal("expected registration to fail")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestExpandPathParams(t *testing.T) {
	call := Call{Slot: "permit", Get: "/municipalities/:municipality_id/permits/:permit_id"}
	bind := Bindings{Params: map[string]string{
		"municipality_id": "oakdale",
		"permit_id":       "P-2031",
	}}

	got, err := ExpandPath(call, bind)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != "/municipalities/oakdale/permits/P-2031" {
		t.Fatalf("unexpected path: %s", got)
	}
}

func TestExpandPathCallParamsWin(t *testing.T) {
	call := Call{
		Slot:   "stats",
		Get:    "/reports/:kind",
		Params: map[string]string{"kind": "monthly"},
	}
	bind := Bindings{Params: map[string]string{"kind": "daily"}}

	got, err := ExpandPath(call, bind)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != "/reports/monthly" {
		t.Fatalf("call params should take precedence, got %s", got)
	}
}

func TestExpandPathDocumentRef(t *testing.T) {
	call := Call{
		Slot:      "inspections",
		Get:       "/permits/{permit.id}/inspections",
		DependsOn: []string{"permit"},
	}
	bind := Bindings{Results: map[string]json.RawMessage{
		"permit": json.RawMessage(`{"id": 4182, "status": "open"}`),
	}}

	got, err := ExpandPath(call, bind)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != "/permits/4182/inspections" {
		t.Fatalf("unexpected path: %s", got)
	}
}

func TestExpandPathStringRef(t *testing.T) {
	call := Call{
		Slot:      "owner",
		Get:       "/users/{permit.owner}",
		DependsOn: []string{"permit"},
	}
	bind := Bindings{Results: map[string]json.RawMessage{
		"permit": json.RawMessage(`{"owner": "u 77"}`),
	}}

	got, err := ExpandPath(call, bind)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != "/users/u%2077" {
		t.Fatalf("expected escaped segment, got %s", got)
	}
}

func TestExpandPathFailures(t *testing.T) {
	tests := []struct {
		name string
		call Call
		bind Bindings
	}{
		{
			name: "missing param",
			call: Call{Slot: "a", Get: "/x/:missing"},
			bind: Bindings{},
		},
		{
			name: "missing document",
			call: Call{Slot: "a", Get: "/x/{dep.id}", DependsOn: []string{"dep"}},
			bind: Bindings{},
		},
		{
			name: "missing field",
			call: Call{Slot: "a", Get: "/x/{dep.id}", DependsOn: []string{"dep"}},
			bind: Bindings{Results: map[string]json.RawMessage{
				"dep": json.RawMessage(`{"other": 1}`),
			}},
		},
		{
			name: "non-scalar field",
			call: Call{Slot: "a", Get: "/x/{dep.id}", DependsOn: []string{"dep"}},
			bind: Bindings{Results: map[string]json.RawMessage{
				"dep": json.RawMessage(`{"id": {"nested": true}}`),
			}},
		},
		{
			name: "non-object document",
			call: Call{Slot: "a", Get: "/x/{dep.id}", DependsOn: []string{"dep"}},
			bind: Bindings{Results: map[string]json.RawMessage{
				"dep": json.RawMessage(`[1,2,3]`),
			}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ExpandPath(tc.call, tc.bind); err == nil {
				t.Fatal("expected expansion to fail")
			}
		})
	}
}

func TestModelKey(t *testing.T) {
	if got := (Call{Slot: "permit"}).ModelKey(); got != "permit" {
		t.Fatalf("expected permit, got %q", got)
	}
	if got := (Call{Slot: "permit", As: "current"}).ModelKey(); got != "current" {
		t.Fatalf("expected current, got %q", got)
	}
}
