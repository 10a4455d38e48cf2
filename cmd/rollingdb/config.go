package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/rollingdb/bundle"
	"github.com/unkn0wn-root/rollingdb/engine/boltdb"
)

const defaultLogLevel = "info"

type config struct {
	Root     string        `yaml:"root"`
	LogLevel string        `yaml:"log_level"`
	Bolt     boltdb.Config `yaml:"bolt"`
	Bundle   bundleConfig  `yaml:"bundle"`
}

type bundleConfig struct {
	bundle.Config `yaml:",inline"`
	Bundles       []bundleEntry `yaml:"bundles"`
}

type bundleEntry struct {
	Manifest string `yaml:"manifest"`
	URL      string `yaml:"url"`
	AltURL   string `yaml:"alt_url"`
	Network  string `yaml:"network"`
	Version  string `yaml:"version"`
	SHA256   string `yaml:"sha256"`
}

// loadConfig reads path if it is set. A missing file is an error only when
// the path was given explicitly.
func loadConfig(path string) (*config, error) {
	cfg := &config{LogLevel: defaultLogLevel}
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.Root == "" {
		return errors.New("root is required (--root or root: in the config file)")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// bundleInfos decodes the configured bundle list.
func (c *config) bundleInfos() ([]bundle.Info, error) {
	out := make([]bundle.Info, 0, len(c.Bundle.Bundles))
	for i, b := range c.Bundle.Bundles {
		m, err := cid.Decode(b.Manifest)
		if err != nil {
			return nil, fmt.Errorf("bundle %d: manifest %q: %w", i, b.Manifest, err)
		}
		if b.Network == "" {
			return nil, fmt.Errorf("bundle %d: network is required", i)
		}
		out = append(out, bundle.Info{
			Manifest: m,
			URL:      b.URL,
			AltURL:   b.AltURL,
			Network:  b.Network,
			Version:  b.Version,
			SHA256:   b.SHA256,
		})
	}
	return out, nil
}

func newZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	return zc.Build()
}
