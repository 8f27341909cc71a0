// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration for the hash updater.
//
// The built-in defaults describe the AgentFS repository layout and
// package set, so the common case needs no config file at all. A YAML
// file can override any field — useful when the package version bumps,
// a new vendored Cargo dependency appears, or the tool is pointed at a
// different flake.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes one updater run: which files to maintain and which
// packages to discover hashes for. Paths are relative to the repository
// root unless absolute.
type Config struct {
	// HashesFile is the path of the persisted hash manifest.
	HashesFile string `yaml:"hashes_file"`

	// CargoLockFile is the local copy of the Cargo.lock shipped inside
	// the Python SDK sdist, kept in sync by the updater.
	CargoLockFile string `yaml:"cargo_lock_file"`

	// Python configures the Python SDK package (pyturso).
	Python PythonConfig `yaml:"python"`

	// TypeScript configures the TypeScript SDK package.
	TypeScript TypeScriptConfig `yaml:"typescript"`
}

// PythonConfig describes the Python SDK: the PyPI package whose sdist
// is fetched, and the flake installable that builds it.
type PythonConfig struct {
	// Name is the PyPI package name.
	Name string `yaml:"name"`

	// SeedVersion is the version written into a freshly created
	// manifest. Once a manifest exists, its own version field wins;
	// bumping the version is a manifest edit, not a config edit.
	SeedVersion string `yaml:"seed_version"`

	// SeedCargoDependencies lists the vendored Cargo dependencies
	// ("name-version") seeded into a freshly created manifest. Each one
	// gets its own output hash slot.
	SeedCargoDependencies []string `yaml:"seed_cargo_dependencies"`

	// BuildTarget is the flake installable built during hash discovery.
	BuildTarget string `yaml:"build_target"`
}

// TypeScriptConfig describes the TypeScript SDK, which has a single
// npmDepsHash slot.
type TypeScriptConfig struct {
	// BuildTarget is the flake installable built during hash discovery.
	BuildTarget string `yaml:"build_target"`
}

// Default returns the configuration for the AgentFS repository.
func Default() *Config {
	return &Config{
		HashesFile:    "nix/hashes.json",
		CargoLockFile: "nix/pyturso-Cargo.lock",
		Python: PythonConfig{
			Name:                  "pyturso",
			SeedVersion:           "0.4.0rc17",
			SeedCargoDependencies: []string{"syntect-5.2.0"},
			BuildTarget:           ".#agentfs-sdk-python",
		},
		TypeScript: TypeScriptConfig{
			BuildTarget: ".#agentfs-sdk-typescript",
		},
	}
}

// LoadFile reads a YAML config file layered over the defaults:
// omitted fields keep their default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is internally complete.
// All problems are reported at once via errors.Join.
func (c *Config) Validate() error {
	var errs []error

	if c.HashesFile == "" {
		errs = append(errs, errors.New("hashes_file must not be empty"))
	}
	if c.CargoLockFile == "" {
		errs = append(errs, errors.New("cargo_lock_file must not be empty"))
	}
	if c.Python.Name == "" {
		errs = append(errs, errors.New("python.name must not be empty"))
	}
	if c.Python.SeedVersion == "" {
		errs = append(errs, errors.New("python.seed_version must not be empty"))
	}
	if c.Python.BuildTarget == "" {
		errs = append(errs, errors.New("python.build_target must not be empty"))
	}
	if c.TypeScript.BuildTarget == "" {
		errs = append(errs, errors.New("typescript.build_target must not be empty"))
	}
	for _, dependency := range c.Python.SeedCargoDependencies {
		if strings.TrimSpace(dependency) == "" {
			errs = append(errs, errors.New("python.seed_cargo_dependencies must not contain empty entries"))
			break
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
