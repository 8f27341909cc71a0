// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.HashesFile != "nix/hashes.json" {
		t.Errorf("HashesFile = %q", cfg.HashesFile)
	}
	if cfg.Python.Name != "pyturso" {
		t.Errorf("Python.Name = %q", cfg.Python.Name)
	}
	if cfg.Python.BuildTarget != ".#agentfs-sdk-python" {
		t.Errorf("Python.BuildTarget = %q", cfg.Python.BuildTarget)
	}
	if cfg.TypeScript.BuildTarget != ".#agentfs-sdk-typescript" {
		t.Errorf("TypeScript.BuildTarget = %q", cfg.TypeScript.BuildTarget)
	}
}

func TestLoadFileLayersOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "updater.yaml")
	content := `python:
  seed_version: "0.5.0"
  seed_cargo_dependencies:
    - syntect-5.2.0
    - onig_sys-69.8.1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Python.SeedVersion != "0.5.0" {
		t.Errorf("SeedVersion = %q, want override applied", cfg.Python.SeedVersion)
	}
	if len(cfg.Python.SeedCargoDependencies) != 2 {
		t.Errorf("SeedCargoDependencies = %v", cfg.Python.SeedCargoDependencies)
	}
	// Fields absent from the file keep their defaults.
	if cfg.HashesFile != "nix/hashes.json" {
		t.Errorf("HashesFile = %q, want default preserved", cfg.HashesFile)
	}
	if cfg.Python.BuildTarget != ".#agentfs-sdk-python" {
		t.Errorf("Python.BuildTarget = %q, want default preserved", cfg.Python.BuildTarget)
	}
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "updater.yaml")
	if err := os.WriteFile(path, []byte(":\n  - not valid yaml structure ["), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("empty config should not validate")
	}
	for _, want := range []string{
		"hashes_file",
		"cargo_lock_file",
		"python.name",
		"python.seed_version",
		"python.build_target",
		"typescript.build_target",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error missing %q: %v", want, err)
		}
	}
}

func TestValidateRejectsBlankDependency(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Python.SeedCargoDependencies = append(cfg.Python.SeedCargoDependencies, "  ")
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "seed_cargo_dependencies") {
		t.Errorf("Validate = %v, want blank dependency rejected", err)
	}
}
