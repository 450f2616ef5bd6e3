// Package config loads and holds all classifier configuration.
// Settings are layered: defaults → bogofilter-config.json → environment
// variables (env vars win), the same layering the teacher's proxy config
// used.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Config holds the full classifier configuration (spec §6 "Configuration
// file" options).
type Config struct {
	SpamCutoff float64 `json:"spamCutoff"`
	HamCutoff  float64 `json:"hamCutoff"`
	MinDev     float64 `json:"minDev"`
	ROBS       float64 `json:"robs"`
	ROBX       float64 `json:"robx"`

	ThreshStats  float64 `json:"threshStats"`
	ThreshUpdate float64 `json:"threshUpdate"`

	Algorithm string `json:"algorithm"` // "graham" | "robinson" | "fisher"

	BlockOnSubnets bool   `json:"blockOnSubnets"`
	CharsetDefault string `json:"charsetDefault"`

	KillHTMLComments  bool `json:"killHtmlComments"`
	CountHTMLComments int  `json:"countHtmlComments"`
	ScoreHTMLComments bool `json:"scoreHtmlComments"`
	TagHeaderLines    bool `json:"tagHeaderLines"`

	DBCacheSizeMiB int `json:"dbCachesizeMiB"`
	MaxRepeats     int `json:"maxRepeats"`

	ReplaceNonASCIICharacters bool `json:"replaceNonasciiCharacters"`

	// SpamHeaderName selects which verdict header bogoheader writes (spec
	// §9 Open Question 2): "X-Bogosity" or "X-Spam-Status".
	SpamHeaderName string `json:"spamHeaderName"`

	// WordlistDir is the directory containing the bbolt environment
	// (wordlist.db, lockfile-d, needs-recovery).
	WordlistDir string `json:"wordlistDir"`

	LogLevel string `json:"logLevel"`
}

// Load returns config with defaults overridden by bogofilter-config.json and
// env vars.
func Load() *Config {
	cfg := defaults()
	loadFile(cfg, "bogofilter-config.json")
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		SpamCutoff:                0.9,
		HamCutoff:                 0.1,
		MinDev:                    0.0,
		ROBS:                      0.001,
		ROBX:                      0.415,
		ThreshStats:               0.0,
		ThreshUpdate:              0.95,
		Algorithm:                 "fisher",
		BlockOnSubnets:            true,
		CharsetDefault:            "us-ascii",
		KillHTMLComments:          true,
		CountHTMLComments:         0,
		ScoreHTMLComments:         false,
		TagHeaderLines:            true,
		DBCacheSizeMiB:            4,
		MaxRepeats:                0, // 0 = algorithm default (4 Graham, 1 Robinson/Fisher)
		ReplaceNonASCIICharacters: false,
		SpamHeaderName:            "X-Bogosity",
		WordlistDir:               ".bogofilter",
		LogLevel:                  "info",
	}
}

// algorithmName returns the configured algorithm name ("fisher" for an
// unknown value) without importing the scorer package, so config stays a leaf
// dependency (teacher's own config package never imports proxy/anonymizer).
func (c *Config) algorithmName() string {
	switch c.Algorithm {
	case "graham", "robinson", "fisher":
		return c.Algorithm
	default:
		return "fisher"
	}
}

// AlgorithmName returns the resolved algorithm name, defaulting to "fisher"
// for any unrecognized configured value.
func (c *Config) AlgorithmName() string { return c.algorithmName() }

func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // G703: path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Printf("[CONFIG] Warning: could not parse %s: %v", path, err)
	} else {
		log.Printf("[CONFIG] Loaded %s", path)
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("BOGOFILTER_SPAM_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SpamCutoff = f
		}
	}
	if v := os.Getenv("BOGOFILTER_HAM_CUTOFF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.HamCutoff = f
		}
	}
	if v := os.Getenv("BOGOFILTER_MIN_DEV"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinDev = f
		}
	}
	if v := os.Getenv("BOGOFILTER_ROBS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ROBS = f
		}
	}
	if v := os.Getenv("BOGOFILTER_ROBX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ROBX = f
		}
	}
	if v := os.Getenv("BOGOFILTER_THRESH_STATS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ThreshStats = f
		}
	}
	if v := os.Getenv("BOGOFILTER_THRESH_UPDATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ThreshUpdate = f
		}
	}
	if v := os.Getenv("BOGOFILTER_ALGORITHM"); v != "" {
		cfg.Algorithm = v
	}
	if v := os.Getenv("BOGOFILTER_BLOCK_ON_SUBNETS"); v == "false" {
		cfg.BlockOnSubnets = false
	}
	if v := os.Getenv("BOGOFILTER_CHARSET_DEFAULT"); v != "" {
		cfg.CharsetDefault = v
	}
	if v := os.Getenv("BOGOFILTER_KILL_HTML_COMMENTS"); v == "false" {
		cfg.KillHTMLComments = false
	}
	if v := os.Getenv("BOGOFILTER_COUNT_HTML_COMMENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CountHTMLComments = n
		}
	}
	if v := os.Getenv("BOGOFILTER_SCORE_HTML_COMMENTS"); v == "true" {
		cfg.ScoreHTMLComments = true
	}
	if v := os.Getenv("BOGOFILTER_TAG_HEADER_LINES"); v == "false" {
		cfg.TagHeaderLines = false
	}
	if v := os.Getenv("BOGOFILTER_DB_CACHESIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBCacheSizeMiB = n
		}
	}
	if v := os.Getenv("BOGOFILTER_MAX_REPEATS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRepeats = n
		}
	}
	if v := os.Getenv("BOGOFILTER_REPLACE_NONASCII"); v == "true" {
		cfg.ReplaceNonASCIICharacters = true
	}
	if v := os.Getenv("BOGOFILTER_SPAM_HEADER_NAME"); v != "" {
		cfg.SpamHeaderName = v
	}
	if v := os.Getenv("BOGOFILTER_WORDLIST_DIR"); v != "" {
		cfg.WordlistDir = v
	}
	// BOGOFILTER_DIR is the store's own override variable (spec §6
	// "Environment variables"); it takes precedence over the more specific
	// BOGOFILTER_WORDLIST_DIR set above.
	if v := os.Getenv("BOGOFILTER_DIR"); v != "" {
		cfg.WordlistDir = v
	}
	if v := os.Getenv("BOGOFILTER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
