package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("TARGET_REPO", "")
	t.Setenv("RELAY_CONTROL_REPO", "")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv err=%v", err)
	}
	if cfg.Addr != ":8080" || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected http config: %+v", cfg)
	}
	if cfg.SpecLinkTTL != time.Hour || cfg.IngestLinkTTL != 24*time.Hour || cfg.ArtifactLinkTTL != 24*time.Hour {
		t.Fatalf("unexpected ttls: %v %v %v", cfg.SpecLinkTTL, cfg.IngestLinkTTL, cfg.ArtifactLinkTTL)
	}
	if cfg.TargetRepo != "ljniox/ai-continuous-delivery" || cfg.TargetRepo != cfg.Dispatch.ControlRepo {
		t.Fatalf("TargetRepo=%q", cfg.TargetRepo)
	}
	if cfg.ObjectStore.BucketSpecs != "specifications" || cfg.ObjectStore.BucketAutomation != "automation" {
		t.Fatalf("unexpected buckets: %+v", cfg.ObjectStore)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TARGET_REPO", "acme/app")
	t.Setenv("RELAY_SPEC_LINK_TTL", "30m")
	t.Setenv("GITHUB_TOKEN", "gh")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv err=%v", err)
	}
	if cfg.TargetRepo != "acme/app" || cfg.SpecLinkTTL != 30*time.Minute || !cfg.Dispatch.Configured() {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("RELAY_ARTIFACT_LINK_TTL", "200h")
	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "168h") {
		t.Fatalf("err=%v, want ttl bound error", err)
	}
	t.Setenv("RELAY_ARTIFACT_LINK_TTL", "24h")
	t.Setenv("TARGET_REPO", "not-a-repo")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for malformed TARGET_REPO")
	}
	t.Setenv("TARGET_REPO", "acme/app")
	t.Setenv("RELAY_MINIO_ENDPOINT", "http://minio:9000")
	if _, err := FromEnv(); err == nil || !strings.HasPrefix(err.Error(), "objectstore:") {
		t.Fatalf("err=%v, want objectstore error", err)
	}
}
