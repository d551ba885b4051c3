// Package config reads the configuration file of jsrt.
//
// The file is YAML:
//
//	searchPaths: [./lib, /usr/share/jsrt/lib]
//	cacheFile: ~/.cache/jsrt/compile.db
//	log: /tmp/jsrt.log
//	nativeExtensions: true
//
// Relative paths are relative to the directory of the file, and a leading ~/
// stands for the home directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a run. The zero value is usable.
type Config struct {
	// SearchPaths are consulted for bare specifiers after node_modules
	// directories.
	SearchPaths []string `yaml:"searchPaths"`
	// CacheFile is the bbolt database of lowered declarative modules. Empty
	// disables the compile cache.
	CacheFile string `yaml:"cacheFile"`
	// Log is the file that internal logs are written to. Empty discards them.
	Log string `yaml:"log"`
	// NativeExtensions enables loading .node extensions.
	NativeExtensions bool `yaml:"nativeExtensions"`
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data), filepath.Dir(path))
}

// Parse reads a configuration from r. Relative paths are resolved against
// dir.
func Parse(r io.Reader, dir string) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	home, _ := os.UserHomeDir()
	for i, p := range cfg.SearchPaths {
		cfg.SearchPaths[i] = expand(p, dir, home)
	}
	if cfg.CacheFile != "" {
		cfg.CacheFile = expand(cfg.CacheFile, dir, home)
	}
	if cfg.Log != "" {
		cfg.Log = expand(cfg.Log, dir, home)
	}
	return cfg, nil
}

// Validate reports all problems with c.
func (c *Config) Validate() error {
	var result error
	for i, p := range c.SearchPaths {
		if strings.TrimSpace(p) == "" {
			result = multierror.Append(result, fmt.Errorf("searchPaths[%d] is empty", i))
		}
	}
	if c.CacheFile != "" && c.CacheFile == c.Log {
		result = multierror.Append(result, errors.New("cacheFile and log are the same file"))
	}
	return result
}

// Merge returns c overridden by the non-zero fields of o. Search paths of o
// come before those of c.
func (c *Config) Merge(o *Config) *Config {
	merged := *c
	merged.SearchPaths = append(append([]string(nil), o.SearchPaths...), c.SearchPaths...)
	if o.CacheFile != "" {
		merged.CacheFile = o.CacheFile
	}
	if o.Log != "" {
		merged.Log = o.Log
	}
	merged.NativeExtensions = c.NativeExtensions || o.NativeExtensions
	return &merged
}

func expand(p, dir, home string) string {
	if home != "" && (p == "~" || strings.HasPrefix(p, "~/")) {
		return filepath.Join(home, p[1:])
	}
	if filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
