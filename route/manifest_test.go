package route

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManifest = `
routes:
  - name: dashboard
    path: /dashboard
  - name: queue
    path: /queue
  - name: inspections
    path: /inspections
    module: inspections
    capability: view
    fallback: queue
    plan:
      - slot: inspections
        get: /municipalities/:municipality_id/inspections
  - name: inspections.detail
    path: /inspections/:inspection_id
    parent: inspections
    module: inspections
    capability: view
    staff_only: true
    plan:
      - slot: inspection
        get: /inspections/:inspection_id
      - slot: findings
        get: /inspections/{inspection.id}/findings
        depends_on: [inspection]
        as: report
`

func TestLoadManifest(t *testing.T) {
	reg, err := LoadManifest(strings.NewReader(sampleManifest))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reg.Frozen() {
		t.Fatal("loaded registry should be frozen")
	}
	if reg.Count() != 4 {
		t.Fatalf("expected 4 routes, got %d", reg.Count())
	}

	rt, err := reg.Lookup("inspections.detail")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !rt.StaffOnly {
		t.Fatal("staff_only not decoded")
	}
	if len(rt.Plan) != 2 || rt.Plan[1].As != "report" {
		t.Fatalf("plan not decoded: %+v", rt.Plan)
	}
	if rt.Plan[1].DependsOn[0] != "inspection" {
		t.Fatalf("depends_on not decoded: %+v", rt.Plan[1])
	}
}

func TestLoadManifestUnknownField(t *testing.T) {
	src := `
routes:
  - name: dashboard
    path: /dashboard
    modle: typo
`
	if _, err := LoadManifest(strings.NewReader(src)); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestLoadManifestEmpty(t *testing.T) {
	if _, err := LoadManifest(strings.NewReader("routes: []\n")); err == nil {
		t.Fatal("expected empty manifest to be rejected")
	}
}

func TestLoadManifestBadReference(t *testing.T) {
	src := `
routes:
  - name: child
    path: /c
    parent: missing
`
	_, err := LoadManifest(strings.NewReader(src))
	if err == nil {
		t.Fatal("expected bad parent to be rejected")
	}
	if !strings.Contains(err.Error(), "unknown parent") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := LoadManifestFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if reg.Count() != 4 {
		t.Fatalf("expected 4 routes, got %d", reg.Count())
	}

	if _, err := LoadManifestFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}
