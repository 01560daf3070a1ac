// Package config loads Glint's optional INI configuration file (spec §6.4).
// It uses github.com/Unknwon/goconfig, the same INI library rclone itself
// depends on for rclone.conf — an exact format match for spec's
// "Section.Key" configuration vocabulary, not a library chosen out of
// convenience.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Unknwon/goconfig"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/padiauj/glint/internal/glinterr"
)

// Config holds the parsed, validated values from spec §6.4. Unknown keys
// are ignored with a warning (recorded in Warnings) rather than rejected.
type Config struct {
	AutoStartUSN     bool
	MaxResults       int
	LogLevel         string
	ExcludePaths     []string
	ExcludePatterns  []string
	CompressIndex    bool
	ParallelSearch   bool
	VolumesInclude   []string
	VolumesExclude   []string

	Warnings []string
}

var recognizedKeys = map[string]map[string]bool{
	"general": {
		"auto_start_usn": true,
		"max_results":    true,
		"log_level":      true,
	},
	"exclude": {
		"paths":    true,
		"patterns": true,
	},
	"performance": {
		"compress_index":  true,
		"parallel_search": true,
	},
	"volumes": {
		"include": true,
		"exclude": true,
	},
}

// Default returns the configuration in effect when no file is present.
func Default() *Config {
	return &Config{
		AutoStartUSN:   true,
		MaxResults:     10000,
		LogLevel:       "info",
		CompressIndex:  true,
		ParallelSearch: true,
	}
}

// DefaultPath resolves the platform-conventional app-data path for Glint's
// configuration file, honoring GLINT_CONFIG_PATH (spec §6.5) first.
func DefaultPath() (string, error) {
	if p := os.Getenv("GLINT_CONFIG_PATH"); p != "" {
		return p, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", glinterr.Wrap(glinterr.Io, err, "resolve home directory")
	}
	return filepath.Join(home, ".config", "glint", "glint.conf"), nil
}

// Load reads and parses the config file at path. A missing file is not an
// error: the file is optional per spec §6.4, and Default() is returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	raw, err := goconfig.LoadConfigFile(path)
	if err != nil {
		return nil, glinterr.Wrapf(glinterr.Io, err, "load config %s", path)
	}

	for _, section := range raw.GetSectionList() {
		values, err := raw.GetSection(section)
		if err != nil {
			continue
		}
		allowed := recognizedKeys[section]
		for key := range values {
			if allowed == nil || !allowed[key] {
				cfg.Warnings = append(cfg.Warnings,
					"unknown config key ignored: "+section+"."+key)
			}
		}
	}

	cfg.AutoStartUSN = raw.MustBool("general", "auto_start_usn", cfg.AutoStartUSN)
	cfg.MaxResults = raw.MustInt("general", "max_results", cfg.MaxResults)
	cfg.LogLevel = raw.MustValue("general", "log_level", cfg.LogLevel)

	cfg.ExcludePaths = splitList(raw.MustValue("exclude", "paths", ""))
	cfg.ExcludePatterns = splitList(raw.MustValue("exclude", "patterns", ""))

	cfg.CompressIndex = raw.MustBool("performance", "compress_index", cfg.CompressIndex)
	cfg.ParallelSearch = raw.MustBool("performance", "parallel_search", cfg.ParallelSearch)

	cfg.VolumesInclude = splitList(raw.MustValue("volumes", "include", ""))
	cfg.VolumesExclude = splitList(raw.MustValue("volumes", "exclude", ""))

	return cfg, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IndexPath resolves the default snapshot path, honoring GLINT_INDEX_PATH.
func IndexPath() (string, error) {
	if p := os.Getenv("GLINT_INDEX_PATH"); p != "" {
		return p, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", glinterr.Wrap(glinterr.Io, err, "resolve home directory")
	}
	return filepath.Join(home, ".config", "glint", "glint.idx"), nil
}
