package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreSane(t *testing.T) {
	cfg := defaults()
	if cfg.SpamCutoff != 0.9 || cfg.HamCutoff != 0.1 {
		t.Errorf("cutoffs = %v/%v, want 0.9/0.1", cfg.SpamCutoff, cfg.HamCutoff)
	}
	if cfg.Algorithm != "fisher" {
		t.Errorf("Algorithm = %q, want fisher", cfg.Algorithm)
	}
	if cfg.SpamHeaderName != "X-Bogosity" {
		t.Errorf("SpamHeaderName = %q, want X-Bogosity", cfg.SpamHeaderName)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogofilter-config.json")
	if err := os.WriteFile(path, []byte(`{"spamCutoff": 0.99, "algorithm": "robinson"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := defaults()
	loadFile(cfg, path)
	if cfg.SpamCutoff != 0.99 {
		t.Errorf("SpamCutoff = %v, want 0.99", cfg.SpamCutoff)
	}
	if cfg.Algorithm != "robinson" {
		t.Errorf("Algorithm = %q, want robinson", cfg.Algorithm)
	}
	if cfg.HamCutoff != 0.1 {
		t.Errorf("HamCutoff = %v, want unchanged default 0.1", cfg.HamCutoff)
	}
}

func TestLoadFileMissingIsIgnored(t *testing.T) {
	cfg := defaults()
	before := *cfg
	loadFile(cfg, filepath.Join(t.TempDir(), "does-not-exist.json"))
	if *cfg != before {
		t.Errorf("config changed after loading a missing file: %+v vs %+v", *cfg, before)
	}
}

func TestLoadFileInvalidJSONPreservesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not json}"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := defaults()
	before := *cfg
	loadFile(cfg, path)
	if *cfg != before {
		t.Errorf("config changed on invalid JSON: %+v vs %+v", *cfg, before)
	}
}

func TestLoadEnvOverridesFileAndDefaults(t *testing.T) {
	cfg := defaults()
	cfg.SpamCutoff = 0.99 // simulate a prior file-load override

	t.Setenv("BOGOFILTER_SPAM_CUTOFF", "0.5")
	t.Setenv("BOGOFILTER_ALGORITHM", "graham")
	t.Setenv("BOGOFILTER_MAX_REPEATS", "7")
	t.Setenv("BOGOFILTER_KILL_HTML_COMMENTS", "false")

	loadEnv(cfg)

	if cfg.SpamCutoff != 0.5 {
		t.Errorf("SpamCutoff = %v, want env override 0.5", cfg.SpamCutoff)
	}
	if cfg.Algorithm != "graham" {
		t.Errorf("Algorithm = %q, want graham", cfg.Algorithm)
	}
	if cfg.MaxRepeats != 7 {
		t.Errorf("MaxRepeats = %v, want 7", cfg.MaxRepeats)
	}
	if cfg.KillHTMLComments {
		t.Errorf("KillHTMLComments = true, want false from env")
	}
}

func TestLoadEnvBogofilterDirOverridesWordlistDir(t *testing.T) {
	cfg := defaults()
	t.Setenv("BOGOFILTER_WORDLIST_DIR", "/from/wordlist-dir")
	t.Setenv("BOGOFILTER_DIR", "/from/bogofilter-dir")
	loadEnv(cfg)
	if cfg.WordlistDir != "/from/bogofilter-dir" {
		t.Errorf("WordlistDir = %q, want BOGOFILTER_DIR to take precedence", cfg.WordlistDir)
	}
}

func TestLoadEnvInvalidNumberIsIgnored(t *testing.T) {
	cfg := defaults()
	t.Setenv("BOGOFILTER_SPAM_CUTOFF", "not-a-number")
	loadEnv(cfg)
	if cfg.SpamCutoff != 0.9 {
		t.Errorf("SpamCutoff = %v, want unchanged default 0.9", cfg.SpamCutoff)
	}
}

func TestAlgorithmNameFallsBackToFisherForUnknownValue(t *testing.T) {
	cfg := defaults()
	cfg.Algorithm = "bogus"
	if got := cfg.AlgorithmName(); got != "fisher" {
		t.Errorf("AlgorithmName() = %q, want fisher fallback", got)
	}
}

func TestLoadReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
	if cfg.SpamCutoff <= 0 {
		t.Errorf("SpamCutoff should be positive, got %v", cfg.SpamCutoff)
	}
}
