package routing

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseAllowlistYAML_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseAllowlistYAML([]byte{0xff})
	if err == nil {
		t.Fatal("expected yaml error")
	}

	_, err = ParseAllowlistYAML([]byte("version: 2\nentrypoints: {}"))
	if err == nil {
		t.Fatal("expected version error")
	}

	_, err = ParseAllowlistYAML([]byte("version: 1"))
	if err == nil {
		t.Fatal("expected entrypoints error")
	}

	_, err = ParseAllowlistYAML([]byte(`version: 1
entrypoints:
  configstub:
    routes:
      - path: "/v1/projects/{ref/config/auth"
        methods: [GET]
        route_class: public_api
`))
	if err == nil || !strings.Contains(err.Error(), "configstub") || !strings.Contains(err.Error(), "malformed") {
		t.Fatalf("expected template error, err=%v", err)
	}

	_, err = ParseAllowlistYAML([]byte(`version: 1
entrypoints:
  server:
    routes:
      - path: /ws
        methods: [GET]
        route_class: websocket
`))
	if err == nil || !strings.Contains(err.Error(), "unknown route class") {
		t.Fatalf("expected class error, err=%v", err)
	}
}

func TestAllowlist_Allows(t *testing.T) {
	t.Parallel()

	a, err := ParseAllowlistYAML([]byte(`version: 1
entrypoints:
  configstub:
    routes:
      - path: /v1/projects/{ref}/config/auth
        methods: [GET, PATCH]
        route_class: public_api
      - path: /health
        methods: [get]
        route_class: ops
`))
	if err != nil {
		t.Fatal(err)
	}

	if !a.Allows("configstub", "PATCH", "/v1/projects/p1/config/auth") {
		t.Fatal("expected pattern allow")
	}
	if !a.Allows("configstub", "GET", "/health") {
		t.Fatal("expected case-insensitive method allow")
	}
	if a.Allows("configstub", "DELETE", "/v1/projects/p1/config/auth") {
		t.Fatal("expected method deny")
	}
	if a.Allows("configstub", "GET", "/v1/projects/p1/config") {
		t.Fatal("expected path deny")
	}
	if a.Allows("server", "GET", "/health") {
		t.Fatal("expected unknown entrypoint deny")
	}

	err = a.Check("configstub", []RegisteredRoute{{Method: "GET", Path: "/health"}, {Method: "POST", Path: "/health"}})
	if err == nil || !strings.Contains(err.Error(), "POST /health") {
		t.Fatalf("err=%v", err)
	}
	if err := a.Check("configstub", []RegisteredRoute{{Method: "GET", Path: "/v1/projects/{ref}/config/auth"}}); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAllowlist(t *testing.T) {
	t.Parallel()

	if _, err := LoadAllowlist(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}

	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nentrypoints:\n  server:\n    routes:\n      - {path: /health, methods: [GET], route_class: ops}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	a, err := LoadAllowlist(path)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Allows("server", "GET", "/health") {
		t.Fatal("expected allow")
	}
}

func TestAllowlist_RepoFileCoversEntrypoints(t *testing.T) {
	a, err := LoadAllowlist(filepath.Join(repoRoot(t), "config/routing/allowlist.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	for _, ep := range []string{"server", "configstub"} {
		if _, err := NewClassifier(a, ep); err != nil {
			t.Fatalf("%s: %v", ep, err)
		}
	}
}
