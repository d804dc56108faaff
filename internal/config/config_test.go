package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeNATSAddrsBareHostGetsSchemeAndPort(t *testing.T) {
	got := NormalizeNATSAddrs([]string{"localhost"})
	want := "nats://localhost:4222"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %v, want [%s]", got, want)
	}
}

func TestNormalizeNATSAddrsHostPortKeepsPort(t *testing.T) {
	got := NormalizeNATSAddrs([]string{"nats1.example.com:4223"})
	want := "nats://nats1.example.com:4223"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %v, want [%s]", got, want)
	}
}

func TestNormalizeNATSAddrsAlreadySchemedIsUnchanged(t *testing.T) {
	got := NormalizeNATSAddrs([]string{"tls://secure.example.com:4222"})
	want := "tls://secure.example.com:4222"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("got %v, want [%s]", got, want)
	}
}

func TestNormalizeNATSAddrsDropsEmptyEntries(t *testing.T) {
	got := NormalizeNATSAddrs([]string{"", "localhost", "  "})
	if len(got) != 1 {
		t.Fatalf("expected blank entries dropped, got %v", got)
	}
}

func TestLoadReadsAWSCredentialsFromEnvironment(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA_TEST")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_ENDPOINT_URL", "http://minio.local:9000")
	t.Setenv("OPENARK_CONFIG_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AWSAccessKeyID != "AKIA_TEST" {
		t.Fatalf("expected AWS_ACCESS_KEY_ID applied, got %q", cfg.AWSAccessKeyID)
	}
	if cfg.AWSEndpointURL != "http://minio.local:9000" {
		t.Fatalf("unexpected endpoint: %q", cfg.AWSEndpointURL)
	}
}

func TestLoadEnvironmentOverridesOverlayFile(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "openark.yaml")
	if err := os.WriteFile(overlayPath, []byte("aws_region: overlay-region\n"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("OPENARK_CONFIG_PATH", overlayPath)
	t.Setenv("AWS_REGION", "env-region")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AWSRegion != "env-region" {
		t.Fatalf("expected environment to win over overlay, got %q", cfg.AWSRegion)
	}
}

func TestLoadFallsBackToOverlayWhenEnvUnset(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "openark.yaml")
	if err := os.WriteFile(overlayPath, []byte("aws_region: overlay-region\n"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("OPENARK_CONFIG_PATH", overlayPath)
	t.Setenv("AWS_REGION", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AWSRegion != "overlay-region" {
		t.Fatalf("expected overlay value when env unset, got %q", cfg.AWSRegion)
	}
}

func TestLoadParsesNATSAllowDrop(t *testing.T) {
	t.Setenv("NATS_ALLOW_DROP", "true")
	t.Setenv("OPENARK_CONFIG_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.NATSAllowDrop {
		t.Fatalf("expected NATSAllowDrop true")
	}
}
