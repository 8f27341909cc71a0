// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package nix provides typed access to the nix CLI for the two
// operations the hash updater needs: building a flake installable and
// prefetching a remote file into the store.
//
// The binary is resolved identically in both cases: check PATH (works
// inside nix develop and on NixOS), then fall back to the Determinate
// Nix profile directory, which is outside PATH by default.
//
// Build failures are reported as [*BuildError] carrying the combined
// stdout and stderr of the nix invocation. The updater deliberately
// builds with a wrong hash in place and reads the correct one out of
// that text; this package does not interpret it.
package nix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// determinateProfileBin is where Determinate Nix installs its binaries.
const determinateProfileBin = "/nix/var/nix/profiles/default/bin"

// FindBinary resolves a Nix binary by name (e.g., "nix"), checking PATH
// first and then the standard Determinate Nix installation directory.
// Returns the absolute path to the binary.
func FindBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	determinatePath := filepath.Join(determinateProfileBin, name)
	if _, err := os.Stat(determinatePath); err == nil {
		return determinatePath, nil
	}

	return "", fmt.Errorf("%s not found on PATH or at %s — install Nix first",
		name, determinatePath)
}

// BuildError reports a nix build invocation that exited non-zero. It
// carries the combined stdout and stderr text verbatim; diagnostic
// interpretation (hash extraction) is the caller's concern.
type BuildError struct {
	// Installable is the flake installable that was built.
	Installable string
	// Output is the combined stdout and stderr of the invocation.
	Output string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("nix build %s failed:\n%s", e.Installable, strings.TrimSpace(e.Output))
}

// Build runs "nix build <installable> --no-link" in directory dir.
// Returns nil when the build succeeds. A non-zero exit is reported as a
// *BuildError with the captured output; failure to launch nix at all is
// reported as an ordinary error.
func Build(ctx context.Context, dir, installable string) error {
	binaryPath, err := FindBinary("nix")
	if err != nil {
		return err
	}

	// Stdout and stderr share one buffer: nix interleaves progress and
	// error text across both, and the hash-mismatch diagnostic must be
	// searchable regardless of which stream carried it.
	var output bytes.Buffer
	command := exec.CommandContext(ctx, binaryPath, "build", installable, "--no-link")
	command.Dir = dir
	command.Stdout = &output
	command.Stderr = &output

	if err := command.Run(); err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return &BuildError{Installable: installable, Output: output.String()}
		}
		return fmt.Errorf("nix build %s: %w", installable, err)
	}
	return nil
}

// PrefetchError reports a failed store prefetch: network failure,
// missing artifact, or unusable nix output. A prefetch is attempted
// exactly once; retry policy, if any, belongs to the caller.
type PrefetchError struct {
	// URL is the artifact that was being fetched.
	URL string
	// Err is the underlying failure.
	Err error
}

func (e *PrefetchError) Error() string {
	return fmt.Sprintf("prefetching %s: %v", e.URL, e.Err)
}

func (e *PrefetchError) Unwrap() error { return e.Err }

// PrefetchFile downloads url into the Nix store via "nix store
// prefetch-file --json" and returns its SRI content hash. This is
// independent of any build: the artifact is content-addressed and
// fetchable directly.
func PrefetchFile(ctx context.Context, url string) (string, error) {
	binaryPath, err := FindBinary("nix")
	if err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binaryPath, "store", "prefetch-file", "--json", url)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		stderrText := strings.TrimSpace(stderr.String())
		if stderrText != "" {
			return "", &PrefetchError{URL: url, Err: fmt.Errorf("%s", stderrText)}
		}
		return "", &PrefetchError{URL: url, Err: err}
	}

	hash, err := parsePrefetchOutput(stdout.Bytes())
	if err != nil {
		return "", &PrefetchError{URL: url, Err: err}
	}
	return hash, nil
}

// parsePrefetchOutput extracts the hash field from the JSON document
// "nix store prefetch-file --json" writes to stdout.
func parsePrefetchOutput(data []byte) (string, error) {
	var result struct {
		Hash      string `json:"hash"`
		StorePath string `json:"storePath"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parsing prefetch output: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("prefetch output has no hash field")
	}
	return result.Hash, nil
}
