package route

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk form of a route table. Deployments that do
// not register routes in code ship one YAML manifest per environment.
type Manifest struct {
	Routes []Route `yaml:"routes"`
}

// LoadManifest decodes a YAML route manifest and returns a frozen
// registry built from it. Unknown YAML fields are rejected so typos in
// manifests fail at startup instead of silently dropping gates.
func LoadManifest(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode route manifest: %w", err)
	}
	if len(m.Routes) == 0 {
		return nil, fmt.Errorf("route manifest declares no routes")
	}

	reg := NewRegistry()
	for _, rt := range m.Routes {
		if err := reg.Register(rt); err != nil {
			return nil, err
		}
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadManifestFile opens path and loads it with [LoadManifest].
func LoadManifestFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open route manifest: %w", err)
	}
	defer f.Close()

	reg, err := LoadManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
