package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matbeedotcom/remotemedia-sdk-sub006/registry"
)

func TestDefaultCarriesDocumentedDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.NodeCache.TTL.Minutes() != 10 {
		t.Fatalf("expected 10 minute TTL, got %v", cfg.NodeCache.TTL)
	}
	if cfg.Router.InputChannelBound != 64 {
		t.Fatalf("expected channel bound 64, got %d", cfg.Router.InputChannelBound)
	}
}

func TestLoadOverlaysFileOntoDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	contents := `
node_cache:
  ttl: 30s
executors:
  explicit:
    python_transcribe: multiprocess
  default: native
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NodeCache.TTL.Seconds() != 30 {
		t.Fatalf("expected overridden TTL of 30s, got %v", cfg.NodeCache.TTL)
	}
	if cfg.Router.InputChannelBound != 64 {
		t.Fatalf("expected default channel bound to survive overlay, got %d", cfg.Router.InputChannelBound)
	}
}

func TestBuildRegistryHonorsExplicitAndDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Executors.Explicit = map[string]string{"python_transcribe": "multiprocess"}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if reg.Select("python_transcribe") != registry.ExecutorMultiprocess {
		t.Fatal("expected explicit mapping to resolve to multiprocess")
	}
	if reg.Select("resample") != registry.ExecutorNative {
		t.Fatal("expected default fallback to resolve to native")
	}
}
