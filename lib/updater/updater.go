// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package updater orchestrates the refresh of the AgentFS Nix hash
// manifest. Nix pins every fetched artifact's hash ahead of time, but
// the correct values are only known once the upstream artifact or
// dependency lock changes — so the updater discovers them by
// deliberately building with a wrong hash and reading the correct one
// out of the failure diagnostic.
//
// A run is a fixed sequence; each step persists the manifest before the
// next starts, so an interrupted run leaves the file consistent with
// "steps before the interruption completed":
//
//  1. Load nix/hashes.json, or create it from seed data (every hash
//     slot holding the sentinel) and stage it with git.
//  2. Prefetch the Python SDK sdist from PyPI and record its hash.
//  3. Extract Cargo.lock from the sdist and update the local copy when
//     its content changed.
//  4. Stage the generated files (flake evaluation only sees git-tracked
//     files).
//  5. Discover each cargoOutputHashes entry via dummy-hash-and-build.
//  6. Discover the TypeScript SDK npmDepsHash the same way.
//
// The external collaborators — nix build, nix store prefetch-file, the
// sdist download, and git staging — are held as function fields so
// tests can substitute them without a Nix installation.
package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentfs/nix-updater/lib/config"
	"github.com/agentfs/nix-updater/lib/git"
	"github.com/agentfs/nix-updater/lib/manifest"
	"github.com/agentfs/nix-updater/lib/nix"
	"github.com/agentfs/nix-updater/lib/sdist"
	"github.com/agentfs/nix-updater/lib/sri"
)

// Manifest key paths. The schema is fixed and versionless; there is no
// migration logic.
var (
	pythonVersionPath     = []string{"pyturso", "version"}
	pythonSourceHashPath  = []string{"pyturso", "hash"}
	cargoOutputHashesPath = []string{"pyturso", "cargoOutputHashes"}
	npmDepsHashPath       = []string{"typescriptSdk", "npmDepsHash"}
)

// cargoSlot returns the manifest path of one vendored Cargo
// dependency's output hash slot.
func cargoSlot(dependency string) []string {
	return []string{"pyturso", "cargoOutputHashes", dependency}
}

// UnexpectedSuccessError reports a build that succeeded while the
// sentinel hash was in place. That must not happen — the sentinel
// exists to force a mismatch — so the run aborts and the sentinel is
// deliberately left in the manifest, keeping the anomaly visible.
type UnexpectedSuccessError struct {
	// Installable is the flake installable that was built.
	Installable string
	// Slot is the manifest path holding the sentinel.
	Slot []string
}

func (e *UnexpectedSuccessError) Error() string {
	return fmt.Sprintf("nix build %s succeeded with the sentinel hash at %s in place",
		e.Installable, strings.Join(e.Slot, "."))
}

// ExtractionError reports a build failure whose diagnostic text carried
// no usable hash. The slot has already been rolled back to its
// pre-discovery value when this error is returned; the raw output is
// included for operator diagnosis.
type ExtractionError struct {
	// Installable is the flake installable that was built.
	Installable string
	// Slot is the manifest path that was rolled back.
	Slot []string
	// Output is the combined build output that could not be parsed.
	Output string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no hash found in build output for %s (slot %s rolled back):\n%s",
		e.Installable, strings.Join(e.Slot, "."), strings.TrimSpace(e.Output))
}

// Updater runs the hash refresh sequence against one repository. The
// function fields default to the real collaborators; tests replace them.
type Updater struct {
	Config   *config.Config
	RepoRoot string
	Logger   *slog.Logger

	// BuildFunc builds a flake installable, returning nil on success
	// and a *nix.BuildError (carrying combined output) on failure.
	BuildFunc func(ctx context.Context, installable string) error

	// PrefetchFunc fetches a URL into the Nix store and returns its
	// SRI content hash.
	PrefetchFunc func(ctx context.Context, url string) (string, error)

	// DownloadFunc fetches a URL to a local file.
	DownloadFunc func(ctx context.Context, url, destination string) error

	// StageFunc registers paths with version control so flake
	// evaluation can see them.
	StageFunc func(ctx context.Context, paths ...string) error

	// Extract scans build diagnostic text for the expected hash.
	// Pluggable so other build tools' diagnostic formats can be
	// supported without touching the orchestration.
	Extract func(output string) (string, bool)
}

// New returns an Updater wired to the real collaborators: nix build,
// nix store prefetch-file, an HTTP download, and git -C repoRoot.
func New(cfg *config.Config, repoRoot string, logger *slog.Logger) *Updater {
	repository := git.NewRepository(repoRoot)
	return &Updater{
		Config:   cfg,
		RepoRoot: repoRoot,
		Logger:   logger,
		BuildFunc: func(ctx context.Context, installable string) error {
			return nix.Build(ctx, repoRoot, installable)
		},
		PrefetchFunc: nix.PrefetchFile,
		DownloadFunc: sdist.Download,
		StageFunc:    repository.StageIntentToAdd,
		Extract:      sri.ExtractBuildHash,
	}
}

// Run executes the full refresh sequence. The first failing step aborts
// the run; the manifest on disk reflects whatever the last completed
// sub-step persisted.
func (u *Updater) Run(ctx context.Context) error {
	m, err := u.loadOrSeed(ctx)
	if err != nil {
		return err
	}

	if err := u.updateSourceHash(ctx, m); err != nil {
		return err
	}
	if err := u.updateCargoLock(ctx, m); err != nil {
		return err
	}
	if err := u.StageFunc(ctx, u.Config.HashesFile, u.Config.CargoLockFile); err != nil {
		return fmt.Errorf("staging generated files: %w", err)
	}
	if err := u.updateCargoOutputHashes(ctx, m); err != nil {
		return err
	}
	if err := u.updateNPMDepsHash(ctx, m); err != nil {
		return err
	}

	u.Logger.Info("hash update complete", "manifest", u.hashesPath())
	return nil
}

// loadOrSeed loads the persisted manifest, or creates one from seed
// data when none exists yet. A freshly created manifest holds the
// sentinel in every hash slot, is persisted before any build runs, and
// is staged so the flake can see it.
func (u *Updater) loadOrSeed(ctx context.Context) (manifest.Manifest, error) {
	path := u.hashesPath()

	m, err := manifest.Load(path)
	if err == nil {
		u.Logger.Info("manifest loaded", "path", path)
		return m, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	u.Logger.Info("manifest missing, creating from seed data", "path", path)
	m = u.seedManifest()
	if err := manifest.Save(path, m); err != nil {
		return nil, err
	}
	if err := u.StageFunc(ctx, u.Config.HashesFile); err != nil {
		return nil, fmt.Errorf("staging new manifest: %w", err)
	}
	return m, nil
}

// seedManifest builds the default manifest: configured version, every
// hash slot holding the sentinel.
func (u *Updater) seedManifest() manifest.Manifest {
	cargoHashes := map[string]any{}
	for _, dependency := range u.Config.Python.SeedCargoDependencies {
		cargoHashes[dependency] = sri.Sentinel
	}
	return manifest.Manifest{
		"pyturso": map[string]any{
			"version":           u.Config.Python.SeedVersion,
			"hash":              sri.Sentinel,
			"cargoOutputHashes": cargoHashes,
		},
		"typescriptSdk": map[string]any{
			"npmDepsHash": sri.Sentinel,
		},
	}
}

// updateSourceHash refreshes the Python SDK source hash by prefetching
// the sdist from PyPI. No build is involved: the artifact is
// content-addressed and fetchable directly.
func (u *Updater) updateSourceHash(ctx context.Context, m manifest.Manifest) error {
	version, err := m.Get(pythonVersionPath...)
	if err != nil {
		return err
	}
	url := sdist.URL(u.Config.Python.Name, version)

	u.Logger.Info("prefetching source artifact",
		"package", u.Config.Python.Name, "version", version, "url", url)
	newHash, err := u.PrefetchFunc(ctx, url)
	if err != nil {
		return err
	}

	oldHash, err := m.Get(pythonSourceHashPath...)
	if err != nil {
		return err
	}
	if newHash != oldHash {
		u.Logger.Info("source hash changed", "old", oldHash, "new", newHash)
	} else {
		u.Logger.Info("source hash unchanged", "hash", newHash)
	}

	if err := m.Set(newHash, pythonSourceHashPath...); err != nil {
		return err
	}
	return manifest.Save(u.hashesPath(), m)
}

// updateCargoLock downloads the sdist, pulls the Cargo.lock member out
// of it, and overwrites the local copy when the content changed. A
// sdist without a Cargo.lock is logged as a warning and leaves the
// local file untouched.
func (u *Updater) updateCargoLock(ctx context.Context, m manifest.Manifest) error {
	version, err := m.Get(pythonVersionPath...)
	if err != nil {
		return err
	}
	url := sdist.URL(u.Config.Python.Name, version)

	temporaryDir, err := os.MkdirTemp("", "agentfs-sdist-")
	if err != nil {
		return fmt.Errorf("creating temporary directory: %w", err)
	}
	defer os.RemoveAll(temporaryDir)

	archivePath := filepath.Join(temporaryDir, u.Config.Python.Name+".tar.gz")
	u.Logger.Info("downloading sdist for Cargo.lock extraction", "url", url)
	if err := u.DownloadFunc(ctx, url, archivePath); err != nil {
		return err
	}

	content, found, err := sdist.ExtractMember(archivePath, "/Cargo.lock")
	if err != nil {
		return err
	}
	if !found {
		u.Logger.Warn("sdist contains no Cargo.lock member", "url", url)
		return nil
	}

	lockPath := u.cargoLockPath()
	oldContent, err := os.ReadFile(lockPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", lockPath, err)
	}
	if bytes.Equal(oldContent, content) {
		u.Logger.Info("Cargo.lock unchanged", "path", lockPath)
		return nil
	}
	if err := os.WriteFile(lockPath, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lockPath, err)
	}
	u.Logger.Info("Cargo.lock updated", "path", lockPath)
	return nil
}

// updateCargoOutputHashes discovers each vendored Cargo dependency's
// output hash, one dummy-hash-and-build cycle per slot, in sorted key
// order.
func (u *Updater) updateCargoOutputHashes(ctx context.Context, m manifest.Manifest) error {
	dependencies, err := m.Keys(cargoOutputHashesPath...)
	if err != nil {
		return err
	}

	u.Logger.Info("discovering cargo output hashes", "count", len(dependencies))
	for _, dependency := range dependencies {
		slot := cargoSlot(dependency)
		original, err := m.Get(slot...)
		if err != nil {
			return err
		}
		committed, err := u.discoverSlot(ctx, m, u.Config.Python.BuildTarget, slot)
		if err != nil {
			return err
		}
		if committed != original {
			u.Logger.Info("cargo output hash changed",
				"dependency", dependency, "old", original, "new", committed)
		} else {
			u.Logger.Info("cargo output hash unchanged", "dependency", dependency)
		}
	}
	return nil
}

// updateNPMDepsHash discovers the TypeScript SDK's npmDepsHash.
func (u *Updater) updateNPMDepsHash(ctx context.Context, m manifest.Manifest) error {
	original, err := m.Get(npmDepsHashPath...)
	if err != nil {
		return err
	}

	u.Logger.Info("discovering npmDepsHash")
	committed, err := u.discoverSlot(ctx, m, u.Config.TypeScript.BuildTarget, npmDepsHashPath)
	if err != nil {
		return err
	}
	if committed != original {
		u.Logger.Info("npmDepsHash changed", "old", original, "new", committed)
	} else {
		u.Logger.Info("npmDepsHash unchanged")
	}
	return nil
}

// discoverSlot runs one dummy-hash-and-build cycle for the manifest
// slot at the given path: write the sentinel, persist, build the
// installable expecting a hash-mismatch failure, extract the correct
// hash from the diagnostic, and commit it. When the diagnostic carries
// no hash the slot is rolled back to its previous value before the
// *ExtractionError is returned, so the manifest never parks on the
// sentinel through this failure path.
func (u *Updater) discoverSlot(ctx context.Context, m manifest.Manifest, installable string, slot []string) (string, error) {
	original, err := m.Get(slot...)
	if err != nil {
		return "", err
	}

	if err := m.Set(sri.Sentinel, slot...); err != nil {
		return "", err
	}
	if err := manifest.Save(u.hashesPath(), m); err != nil {
		return "", err
	}

	buildErr := u.BuildFunc(ctx, installable)
	if buildErr == nil {
		// No rollback: the sentinel stays in the manifest so the
		// anomaly is visible to the operator.
		return "", &UnexpectedSuccessError{Installable: installable, Slot: slot}
	}
	var failure *nix.BuildError
	if !errors.As(buildErr, &failure) {
		return "", buildErr
	}

	candidate, ok := u.Extract(failure.Output)
	if !ok {
		if err := m.Set(original, slot...); err != nil {
			return "", err
		}
		if err := manifest.Save(u.hashesPath(), m); err != nil {
			return "", err
		}
		return "", &ExtractionError{Installable: installable, Slot: slot, Output: failure.Output}
	}

	if err := m.Set(candidate, slot...); err != nil {
		return "", err
	}
	if err := manifest.Save(u.hashesPath(), m); err != nil {
		return "", err
	}
	return candidate, nil
}

// hashesPath returns the absolute manifest path.
func (u *Updater) hashesPath() string {
	return u.resolve(u.Config.HashesFile)
}

// cargoLockPath returns the absolute Cargo.lock copy path.
func (u *Updater) cargoLockPath() string {
	return u.resolve(u.Config.CargoLockFile)
}

func (u *Updater) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(u.RepoRoot, path)
}
