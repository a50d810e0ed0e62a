package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"intraops/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Boost.ImpactWeight != 3 || cfg.Boost.ManualScore != 1000 {
		t.Fatalf("unexpected defaults: %+v", cfg.Boost)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("boost:\n  overdue_score: 9\nnotify:\n  link_base: https://ops.example.com\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Boost.OverdueScore != 9 {
		t.Fatalf("override lost: %d", cfg.Boost.OverdueScore)
	}
	// untouched keys keep their defaults
	if cfg.Boost.ImpactWeight != 3 || cfg.Notify.TimeoutSeconds != 5 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if cfg.Notify.LinkBase != "https://ops.example.com" {
		t.Fatalf("link base: %q", cfg.Notify.LinkBase)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		yaml string
		want string
	}{
		{"boost:\n  manual_score: 10\n", "manual_score"},
		{"boost:\n  due_near_days: 1\n", "due_near_days"},
		{"notify:\n  channels: [fax]\n", "unknown notify channel"},
		{"notify:\n  timeout_seconds: 0\n", "timeout_seconds"},
	}
	for _, tc := range cases {
		_, err := config.FromYAML([]byte(tc.yaml))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("yaml %q: expected error containing %q, got %v", tc.yaml, tc.want, err)
		}
	}
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Boost.ManualScore != 1000 {
		t.Fatalf("expected defaults, got %+v", cfg.Boost)
	}

	if err := os.WriteFile(filepath.Join(dir, "intraops.yml"), []byte("boost:\n  urgency_weight: 4\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = config.Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Boost.UrgencyWeight != 4 {
		t.Fatalf("file override lost: %+v", cfg.Boost)
	}
}
