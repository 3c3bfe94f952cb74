// Package config loads a node's YAML configuration: its announced
// address, the local block stores it should open, and the peers it
// should dial on startup. Grounded on the source project's flat
// YAML-plus-CLI-override config shape (gopkg.in/yaml.v2), generalized
// from a single server/port pair to the block-store node's topology.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// StoreConfig describes one local block store to open at startup.
type StoreConfig struct {
	BSID      uint64 `yaml:"bsid"`
	Path      string `yaml:"path"`
	BlockSize uint64 `yaml:"blockSize"`
}

// Config is a node's full startup configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// BootstrapPeers are "host:port" addresses dialed once at startup
	// via addPeer; gossip takes over from there.
	BootstrapPeers []string `yaml:"bootstrapPeers"`

	Stores []StoreConfig `yaml:"stores"`
}

func defaults() Config {
	return Config{
		Host: "localhost",
		Port: 4242,
		Stores: []StoreConfig{
			{BSID: 0, Path: "./data", BlockSize: 4096},
		},
	}
}

// Load reads and parses the YAML config at path, filling in defaults
// for zero-valued fields. A missing config file is not an error: the
// defaults alone are a valid single-node configuration.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return applyArgs(cfg), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fromFile.Host != "" {
		cfg.Host = fromFile.Host
	}
	if fromFile.Port != 0 {
		cfg.Port = fromFile.Port
	}
	if len(fromFile.BootstrapPeers) > 0 {
		cfg.BootstrapPeers = fromFile.BootstrapPeers
	}
	if len(fromFile.Stores) > 0 {
		cfg.Stores = fromFile.Stores
	}

	return applyArgs(cfg), nil
}

// applyArgs overrides host/port from positional CLI arguments, mirroring
// the source's demo invocation convention: `<bin> <host> <port>`.
func applyArgs(cfg Config) Config {
	args := flag.Args()
	if len(args) > 0 {
		cfg.Host = args[0]
	}
	if len(args) > 1 {
		var port int
		if _, err := fmt.Sscanf(args[1], "%d", &port); err == nil {
			cfg.Port = port
		}
	}
	return cfg
}
