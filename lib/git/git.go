// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the one
// repository operation the hash updater needs: staging generated files.
// Nix flakes only see git-tracked files, so a freshly written
// hashes.json or Cargo.lock must be registered with git before any
// flake build can read it. All commands target a specific repository
// directory via the -C flag, which is automatically injected.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git repository at a specific directory. All
// operations target this directory via "git -C <dir>". There is no
// default directory — callers must always specify which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// StageIntentToAdd registers paths with git without staging their
// content ("git add --intent-to-add"). This is the minimum needed for
// a flake evaluation to see the files; what to actually commit stays
// the operator's decision.
func (r *Repository) StageIntentToAdd(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--intent-to-add", "--"}, paths...)
	_, err := r.Run(ctx, args...)
	return err
}
