package route

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Built-in ":name" bindings the engine supplies on every navigation.
// Plans may reference these without declaring them in Call.Params.
const (
	ParamMunicipalityID = "municipality_id"
	ParamActorID        = "actor_id"
)

// slotRef is a "{slot.field}" placeholder parsed out of a path template.
type slotRef struct {
	Slot  string
	Field string
}

// scanTemplate splits a path template into its ":name" parameters and
// "{slot.field}" document references. Malformed placeholders fail.
func scanTemplate(tpl string) (params []string, refs []slotRef, err error) {
	if tpl == "" || !strings.HasPrefix(tpl, "/") {
		return nil, nil, fmt.Errorf("path template %q must start with /", tpl)
	}
	for _, seg := range strings.Split(tpl[1:], "/") {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if name == "" {
				return nil, nil, fmt.Errorf("path template %q has an empty :param", tpl)
			}
			params = append(params, name)
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			inner := seg[1 : len(seg)-1]
			slot, field, ok := strings.Cut(inner, ".")
			if !ok || slot == "" || field == "" {
				return nil, nil, fmt.Errorf("path template %q: placeholder %q must be {slot.field}", tpl, seg)
			}
			refs = append(refs, slotRef{Slot: slot, Field: field})
		case strings.Contains(seg, "{") || strings.Contains(seg, "}"):
			return nil, nil, fmt.Errorf("path template %q: malformed segment %q", tpl, seg)
		}
	}
	return params, refs, nil
}

// validatePlan checks one route's load plan in isolation: slot names
// unique, dependencies declared earlier in the plan, placeholders well
// formed and document references covered by dependencies. Whether
// ":name" parameters are actually bindable depends on the parent
// chain and is checked at Freeze.
func validatePlan(rt Route) error {
	declared := map[string]bool{}
	for i, call := range rt.Plan {
		if call.Slot == "" {
			return fmt.Errorf("plan call %d has an empty slot", i)
		}
		if declared[call.Slot] {
			return fmt.Errorf("duplicate plan slot %q", call.Slot)
		}
		if call.Get == "" {
			return fmt.Errorf("plan slot %q has no path", call.Slot)
		}

		deps := map[string]bool{}
		for _, dep := range call.DependsOn {
			if !declared[dep] {
				return fmt.Errorf("plan slot %q depends on %q which is not declared earlier", call.Slot, dep)
			}
			if deps[dep] {
				return fmt.Errorf("plan slot %q lists dependency %q twice", call.Slot, dep)
			}
			deps[dep] = true
		}

		_, refs, err := scanTemplate(call.Get)
		if err != nil {
			return fmt.Errorf("plan slot %q: %w", call.Slot, err)
		}
		for _, ref := range refs {
			if !deps[ref.Slot] {
				return fmt.Errorf("plan slot %q references {%s.%s} without depending on %q", call.Slot, ref.Slot, ref.Field, ref.Slot)
			}
		}

		declared[call.Slot] = true
	}
	return nil
}

// pathParams collects the ":name" segments of a URL pattern. Unlike
// request templates, URL patterns carry no document references.
func pathParams(path string) []string {
	var params []string
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			params = append(params, seg[1:])
		}
	}
	return params
}

// Bindings carries the values available when a path template is
// expanded: the per-navigation ":name" parameters and the documents
// already fetched by dependency slots.
type Bindings struct {
	Params  map[string]string
	Results map[string]json.RawMessage
}

// ExpandPath fills a call's path template. ":name" segments resolve
// from bindings (call params take precedence), "{slot.field}" segments
// read a scalar field out of a fetched document. Substituted values
// are path-escaped.
func ExpandPath(call Call, bind Bindings) (string, error) {
	segs := strings.Split(call.Get[1:], "/")
	out := make([]string, len(segs))
	for i, seg := range segs {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			val, ok := call.Params[name]
			if !ok {
				val, ok = bind.Params[name]
			}
			if !ok || val == "" {
				return "", fmt.Errorf("no value for :%s", name)
			}
			out[i] = url.PathEscape(val)
		case strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"):
			slot, field, _ := strings.Cut(seg[1:len(seg)-1], ".")
			doc, ok := bind.Results[slot]
			if !ok {
				return "", fmt.Errorf("no document for slot %q", slot)
			}
			val, err := fieldString(doc, field)
			if err != nil {
				return "", fmt.Errorf("slot %q: %w", slot, err)
			}
			out[i] = url.PathEscape(val)
		default:
			out[i] = seg
		}
	}
	return "/" + strings.Join(out, "/"), nil
}

// fieldString extracts a top-level scalar field from a JSON document
// and renders it as a path segment. Numbers keep their source form.
func fieldString(doc json.RawMessage, field string) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return "", fmt.Errorf("document is not an object: %v", err)
	}
	v, ok := m[field]
	if !ok {
		return "", fmt.Errorf("field %q missing", field)
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", fmt.Errorf("field %q is empty", field)
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("field %q is not a scalar", field)
	}
}

// ModelKey returns the key a call's document occupies in the composed
// route model.
func (c Call) ModelKey() string {
	if c.As != "" {
		return c.As
	}
	return c.Slot
}
