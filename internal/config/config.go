package config

import (
	"os"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	EntryPoints  []string `toml:"entry_points"`
	ProjectPaths []string `toml:"project_paths"`
	SitePackages string   `toml:"site_packages"`
	OutputRoot   string   `toml:"output_root"`
	SymbolDB     string   `toml:"symbol_db"`
	Workers      int      `toml:"workers"`
	Exclude      Exclude  `toml:"exclude"`
	Minify       Minify   `toml:"minify"`
	Watch        Watch    `toml:"watch"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Minify struct {
	// Rename disables local-identifier renaming when false; pruning still runs.
	Rename bool `toml:"rename"`
	// ReservedNames are extra identifiers never renamed, on top of the
	// language-mandated set (self, cls, keywords, dunders).
	ReservedNames []string `toml:"reserved_names"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	cfg.Minify.Rename = true
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration usable without a config file; the CLI
// overlays its flags on top of it.
func Default() *Config {
	cfg := &Config{}
	cfg.Minify.Rename = true
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if len(cfg.ProjectPaths) == 0 {
		cfg.ProjectPaths = []string{"."}
	}
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = "./slim-out"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() * 2
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if len(cfg.Exclude.Dirs) == 0 {
		cfg.Exclude.Dirs = []string{".git", "__pycache__", "*.egg-info", ".venv"}
	}
	if !hasPattern(cfg.Exclude.Files, "*.pyc") {
		cfg.Exclude.Files = append(cfg.Exclude.Files, "*.pyc")
	}
}

func hasPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}
