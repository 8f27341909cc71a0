// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest provides load, save, and path addressing for the
// persisted hash manifest (nix/hashes.json). The manifest is a nested
// JSON object mapping package identifiers to hash values in SRI format,
// plus package metadata such as version strings.
//
// The on-disk file is hand-editable, so Load accepts JSONC (JSON
// extended with // comments and trailing commas); Save always writes
// plain JSON. Save is atomic: a reader never observes a partially
// written manifest.
//
// This package is a pure read/write layer. It holds no seed data —
// constructing a default manifest when none is persisted is the
// caller's responsibility.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
)

// Manifest is the in-memory form of the hash manifest: a tree of string
// keys where interior nodes are nested maps and leaves are strings
// (hash values or metadata like version strings). Leaves are addressed
// by an ordered key path from the root.
type Manifest map[string]any

// CorruptError reports a manifest file whose content is not well-formed
// JSON (after JSONC comment stripping).
type CorruptError struct {
	// Path is the manifest file path.
	Path string
	// Err is the underlying JSON parse error.
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// PathError reports a key path that does not resolve within a manifest:
// an intermediate segment is missing, an intermediate segment names a
// leaf instead of a nested map, or the leaf is not a string.
type PathError struct {
	// Path is the full key path being resolved.
	Path []string
	// Segment is the path segment where resolution failed.
	Segment string
	// Reason describes what went wrong at Segment.
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("manifest path %s: segment %q %s",
		strings.Join(e.Path, "."), e.Segment, e.Reason)
}

// Load reads and parses the manifest file at path. File read errors are
// returned as-is so callers can distinguish a missing manifest
// (errors.Is(err, os.ErrNotExist)) from an unreadable one. Malformed
// content is reported as a *CorruptError.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return m, nil
}

// Save atomically writes the manifest to path as indented JSON with a
// trailing newline. The content is written to a temporary file in the
// same directory, fsynced, and renamed into place, then the parent
// directory is fsynced so the rename survives power loss. A concurrent
// reader sees either the old content or the new, never a partial write.
func Save(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temporary manifest file: %w", err)
	}

	// Write, sync, close — in that order. If any step fails, remove the
	// temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary manifest file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary manifest file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary manifest file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming manifest into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}

	return nil
}

// Get resolves a key path to its leaf string value. Returns a
// *PathError when any segment is missing, an intermediate segment is
// not a nested map, or the leaf is not a string.
func (m Manifest) Get(path ...string) (string, error) {
	if len(path) == 0 {
		return "", &PathError{Path: path, Segment: "", Reason: "is empty"}
	}

	node, err := m.descend(path)
	if err != nil {
		return "", err
	}

	leafKey := path[len(path)-1]
	value, ok := node[leafKey]
	if !ok {
		return "", &PathError{Path: path, Segment: leafKey, Reason: "is missing"}
	}
	text, ok := value.(string)
	if !ok {
		return "", &PathError{Path: path, Segment: leafKey, Reason: "is not a string leaf"}
	}
	return text, nil
}

// Set writes a leaf string value at a key path. All intermediate
// segments must already exist as nested maps; Set never creates
// structure, so a typo in a key path fails loudly instead of growing a
// new branch.
func (m Manifest) Set(value string, path ...string) error {
	if len(path) == 0 {
		return &PathError{Path: path, Segment: "", Reason: "is empty"}
	}

	node, err := m.descend(path)
	if err != nil {
		return err
	}

	node[path[len(path)-1]] = value
	return nil
}

// Keys returns the sorted keys of the nested map at a key path. Used to
// iterate hash sub-collections in a stable order (JSON objects and Go
// maps carry no order of their own).
func (m Manifest) Keys(path ...string) ([]string, error) {
	node := map[string]any(m)
	for _, segment := range path {
		child, ok := node[segment]
		if !ok {
			return nil, &PathError{Path: path, Segment: segment, Reason: "is missing"}
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return nil, &PathError{Path: path, Segment: segment, Reason: "is not a nested map"}
		}
		node = childMap
	}

	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

// descend walks all intermediate segments of path and returns the map
// containing the leaf.
func (m Manifest) descend(path []string) (map[string]any, error) {
	node := map[string]any(m)
	for _, segment := range path[:len(path)-1] {
		child, ok := node[segment]
		if !ok {
			return nil, &PathError{Path: path, Segment: segment, Reason: "is missing"}
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return nil, &PathError{Path: path, Segment: segment, Reason: "is not a nested map"}
		}
		node = childMap
	}
	return node, nil
}
