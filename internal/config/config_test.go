package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeNamespace(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		warning bool
	}{
		{"/robot", "/robot", false},
		{"/robot/arm", "/robot/arm", false},
		{"robot", "/robot", true},
		{"/robot/", "/robot", true},
		{"//robot///arm", "/robot/arm", true},
		{"/my robot!", "/myrobot", true},
		{"  /robot  ", "/robot", false},
		{"/", "", true},
		{"!!!", "", true},
		{"", "", false},
	}
	for _, tc := range cases {
		got, warning := SanitizeNamespace(tc.in)
		if got != tc.want {
			t.Errorf("SanitizeNamespace(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if (warning != "") != tc.warning {
			t.Errorf("SanitizeNamespace(%q) warning = %q, want warning=%v", tc.in, warning, tc.warning)
		}
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file must not be an error: %v", err)
	}
	if cfg.Namespace != "/robot" {
		t.Errorf("default namespace = %q, want /robot", cfg.Namespace)
	}
	if cfg.Bridge.Port != DefaultBridgePort {
		t.Errorf("default bridge port = %d, want %d", cfg.Bridge.Port, DefaultBridgePort)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default server port = %d", cfg.Server.Port)
	}
	if cfg.BridgeURL() != "" {
		t.Errorf("no bridge host must mean no URL, got %q", cfg.BridgeURL())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosdash.yaml")
	data := []byte(`
bridge:
  host: robot.local
  port: 9090
namespace: /rover
panel:
  history_size: 60
  stale_seconds: 10
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BridgeURL() != "ws://robot.local:9090" {
		t.Errorf("BridgeURL = %q", cfg.BridgeURL())
	}
	if cfg.Namespace != "/rover" {
		t.Errorf("namespace = %q", cfg.Namespace)
	}
	if cfg.NamespaceWarning != "" {
		t.Errorf("valid namespace must not warn: %q", cfg.NamespaceWarning)
	}
	if cfg.Panel.HistorySize != 60 || cfg.Panel.StaleSeconds != 10 {
		t.Errorf("panel tuning not applied: %+v", cfg.Panel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ROSDASH_BRIDGE_HOST", "10.0.0.5")
	t.Setenv("ROSDASH_BRIDGE_PORT", "8800")
	t.Setenv("ROSDASH_NAMESPACE", "rover/")
	t.Setenv("ROSDASH_PORT", "9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BridgeURL() != "ws://10.0.0.5:8800" {
		t.Errorf("BridgeURL = %q", cfg.BridgeURL())
	}
	if cfg.Namespace != "/rover" {
		t.Errorf("env namespace not sanitized: %q", cfg.Namespace)
	}
	if cfg.NamespaceWarning == "" {
		t.Errorf("corrected namespace must carry a warning")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d", cfg.Server.Port)
	}
}

func TestLoadRejectsUnsalvageableNamespace(t *testing.T) {
	t.Setenv("ROSDASH_NAMESPACE", "!!!")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected validation error for empty sanitized namespace")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rosdash.yaml")
	if err := os.WriteFile(path, []byte("bridge: [not a map"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
