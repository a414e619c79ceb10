package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/munihall/hallpass/client"
	"github.com/munihall/hallpass/session"
)

// Record is the hydrated admin user as the backend reports it. A
// record is fetched once per session lifetime on first navigation and
// cached by the engine.
type Record struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	MunicipalityID string   `json:"municipality_id"`
	Staff          bool     `json:"staff"`
	Capabilities   []string `json:"capabilities"`
}

// HasCapability reports whether the record grants a capability within
// a module. Capabilities are "module:capability" strings; "module:*"
// grants every capability in the module and "*" grants everything.
func (r *Record) HasCapability(module, capability string) bool {
	if r == nil || module == "" || capability == "" {
		return false
	}
	want := module + ":" + capability
	moduleWide := module + ":*"
	for _, c := range r.Capabilities {
		switch c {
		case want, moduleWide, "*":
			return true
		}
	}
	return false
}

// API is the slice of the backend client the provider needs.
type API interface {
	Get(ctx context.Context, path string, params map[string]string) (json.RawMessage, error)
}

// Provider loads the current user's [Record] from the backend,
// authenticating as the session's actor.
type Provider struct {
	api  API
	path string
}

// NewProvider creates a [Provider]. path defaults to "/users/me".
func NewProvider(api API, path string) (*Provider, error) {
	if api == nil {
		return nil, errors.New("identity provider requires an API client")
	}
	if path == "" {
		path = "/users/me"
	}
	return &Provider{api: api, path: path}, nil
}

// Load fetches the record of the actor the session belongs to. The
// session's credential rides along as the request bearer.
func (p *Provider) Load(ctx context.Context, sess *session.Session) (*Record, error) {
	if sess == nil {
		return nil, errors.New("load current user: nil session")
	}
	if sess.Credential != "" {
		ctx = client.WithBearer(ctx, sess.Credential)
	}

	doc, err := p.api.Get(ctx, p.path, nil)
	if err != nil {
		return nil, fmt.Errorf("load current user: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode current user: %w", err)
	}
	if rec.ID == "" {
		return nil, errors.New("current user record has no id")
	}
	return &rec, nil
}
