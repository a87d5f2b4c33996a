// Package config loads party/tree/network configuration from YAML (ambient
// stack, grounded on Mindburn-Labs-helm's use of gopkg.in/yaml.v3), with CLI
// flags overriding individual fields in cmd/upsi's main, matching the
// external-collaborator boundary of spec.md §6.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/summitto/upsi/internal/errs"
)

// Functionality mirrors protocol.Functionality as a config-file string, kept
// separate so config has no dependency on the protocol package.
type Functionality string

const (
	FuncPSI Functionality = "PSI"
	FuncCA  Functionality = "CA"
	FuncSUM Functionality = "SUM"
	FuncSS  Functionality = "SS"
)

// Config is the full set of party-level settings (spec.md §6 "CLI surface").
type Config struct {
	Party int `yaml:"party"` // 0 or 1

	ListenAddr string `yaml:"listen_addr"`
	DialAddr   string `yaml:"dial_addr"`

	DataDir string `yaml:"data_dir"`
	OutDir  string `yaml:"out_dir"`

	Func Functionality `yaml:"func"`
	Days int           `yaml:"days"`

	NodeSize  int `yaml:"node_size"`
	StashSize int `yaml:"stash_size"`

	ImportTrees bool `yaml:"import_trees"`

	PaillierModulusBits int   `yaml:"paillier_modulus_bits"`
	MaxSum              int64 `yaml:"max_sum"`

	Deletion bool `yaml:"deletion"`
}

// Default returns a Config with spec.md §4.2's documented defaults applied.
func Default() Config {
	return Config{
		NodeSize:            4,
		StashSize:           4,
		PaillierModulusBits: 1536,
		MaxSum:              1 << 20,
	}
}

// Load reads and parses a YAML config file, starting from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.InvalidArgument, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errs.Wrap(errs.InvalidArgument, err)
	}
	if cfg.Party != 0 && cfg.Party != 1 {
		return Config{}, errs.Newf(errs.InvalidArgument, "config: party must be 0 or 1, got %d", cfg.Party)
	}
	switch cfg.Func {
	case FuncPSI, FuncCA, FuncSUM, FuncSS:
	default:
		return Config{}, errs.Newf(errs.InvalidArgument, "config: unknown func %q", cfg.Func)
	}
	return cfg, nil
}
