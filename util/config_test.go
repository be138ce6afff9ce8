package util

import (
	"os"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(ConfigFileName, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}
	t.Cleanup(func() { os.Remove(ConfigFileName) })
}

func TestConfigConstants(t *testing.T) {
	if Name != "plaza" {
		t.Errorf("Expected Name 'plaza', got '%s'", Name)
	}

	if ConfigFileName != "config.yaml" {
		t.Errorf("Expected ConfigFileName 'config.yaml', got '%s'", ConfigFileName)
	}
}

func TestReadConfWithYaml(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: 9999
  publicUrl: https://node-a.example
delivery:
  workers: 3
  timeout: 2s
reconcile:
  interval: 30s
peers:
  - name: node-b
    host: https://node-b.example
    apiBase: https://node-b.example/api
    username: node-a
    password: secret
    active: true
    adapter: slash
`)

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if config.Conf.Host != "127.0.0.1" {
		t.Errorf("Expected Host '127.0.0.1', got '%s'", config.Conf.Host)
	}
	if config.Conf.HttpPort != 9999 {
		t.Errorf("Expected HttpPort 9999, got %d", config.Conf.HttpPort)
	}
	if config.Conf.PublicURL != "https://node-a.example" {
		t.Errorf("Expected PublicURL from file, got '%s'", config.Conf.PublicURL)
	}
	if config.Delivery.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", config.Delivery.Workers)
	}
	if config.Delivery.Timeout != 2*time.Second {
		t.Errorf("Expected 2s timeout, got %s", config.Delivery.Timeout)
	}
	if config.Reconcile.Interval != 30*time.Second {
		t.Errorf("Expected 30s interval, got %s", config.Reconcile.Interval)
	}
	if len(config.Peers) != 1 || config.Peers[0].Adapter != "slash" || !config.Peers[0].Active {
		t.Errorf("Unexpected peers: %+v", config.Peers)
	}
}

func TestReadConfKeepsDefaultsForMissingKeys(t *testing.T) {
	writeTestConfig(t, `
conf:
  httpPort: 9999
`)

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if config.Conf.DatabasePath != "database.db" {
		t.Errorf("Expected default database path, got '%s'", config.Conf.DatabasePath)
	}
	if config.Delivery.BreakerThreshold != 5 {
		t.Errorf("Expected default breaker threshold 5, got %d", config.Delivery.BreakerThreshold)
	}
	if !config.Reconcile.Enabled {
		t.Error("Expected reconciliation to be enabled by default")
	}
}

func TestReadConfWithEnvOverrides(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: 9999
`)

	t.Setenv("PLAZA_HOST", "192.168.1.1")
	t.Setenv("PLAZA_HTTPPORT", "8080")
	t.Setenv("PLAZA_PUBLIC_URL", "https://env.example")
	t.Setenv("PLAZA_DELIVERY_WORKERS", "2")
	t.Setenv("PLAZA_RECONCILE", "false")
	t.Setenv("PLAZA_RECONCILE_INTERVAL", "15s")

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if config.Conf.Host != "192.168.1.1" {
		t.Errorf("Expected Host '192.168.1.1' from env, got '%s'", config.Conf.Host)
	}
	if config.Conf.HttpPort != 8080 {
		t.Errorf("Expected HttpPort 8080 from env, got %d", config.Conf.HttpPort)
	}
	if config.Conf.PublicURL != "https://env.example" {
		t.Errorf("Expected PublicURL from env, got '%s'", config.Conf.PublicURL)
	}
	if config.Delivery.Workers != 2 {
		t.Errorf("Expected 2 workers from env, got %d", config.Delivery.Workers)
	}
	if config.Reconcile.Enabled {
		t.Error("Expected reconciliation disabled from env")
	}
	if config.Reconcile.Interval != 15*time.Second {
		t.Errorf("Expected 15s interval from env, got %s", config.Reconcile.Interval)
	}
}

func TestReadConfInvalidPortEnv(t *testing.T) {
	writeTestConfig(t, `
conf:
  httpPort: 9999
`)
	t.Setenv("PLAZA_HTTPPORT", "not_a_number")

	config, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	// invalid env values are ignored
	if config.Conf.HttpPort != 9999 {
		t.Errorf("Expected HttpPort 9999 from file, got %d", config.Conf.HttpPort)
	}
}

func TestReadConfInvalidYaml(t *testing.T) {
	writeTestConfig(t, `
conf:
  host: 127.0.0.1
  httpPort: not_a_number
  invalid yaml structure
`)

	if _, err := ReadConf(); err == nil {
		t.Error("Expected error when parsing invalid YAML")
	}
}

func TestReadConfRejectsInvalidValues(t *testing.T) {
	writeTestConfig(t, `
conf:
  httpPort: 70000
  publicUrl: not a url
`)

	if _, err := ReadConf(); err == nil {
		t.Error("Expected validation error")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARN":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := ParseLogLevel(in).String(); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestVersionAndUserAgent(t *testing.T) {
	if GetVersion() == "" {
		t.Fatal("Expected embedded version")
	}
	if UserAgent() != "plaza/"+GetVersion() {
		t.Errorf("Unexpected user agent %q", UserAgent())
	}
	if GetNameAndVersion() != "plaza / "+GetVersion() {
		t.Errorf("Unexpected name and version %q", GetNameAndVersion())
	}
}

func TestResolveFilePathLocalFirst(t *testing.T) {
	writeTestConfig(t, "conf: {}\n")

	if got := ResolveFilePath(ConfigFileName); got != ConfigFileName {
		t.Errorf("Expected local file to win, got %s", got)
	}
	if got := ResolveFilePath(":memory:"); got != ":memory:" {
		t.Errorf("Expected :memory: unchanged, got %s", got)
	}
	if got := ResolveFilePath("/tmp/plaza.db"); got != "/tmp/plaza.db" {
		t.Errorf("Expected absolute path unchanged, got %s", got)
	}
}
