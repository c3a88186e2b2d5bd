package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BotToken != "test-token" {
		t.Errorf("expected token from env, got %q", cfg.BotToken)
	}
	if cfg.DBPath == "" || cfg.AdminPort == "" {
		t.Errorf("expected non-empty defaults, got %+v", cfg)
	}
	if cfg.DemoSeed {
		t.Error("demo seed must default to off")
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing BOT_TOKEN")
	}
}

func TestLoadDemoSeedFlag(t *testing.T) {
	t.Setenv("BOT_TOKEN", "test-token")
	t.Setenv("DEMO_SEED", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.DemoSeed {
		t.Error("expected demo seed enabled")
	}

	t.Setenv("DEMO_SEED", "definitely")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DemoSeed {
		t.Error("unparseable boolean must fall back to default")
	}
}
