// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package sri handles the SRI-style sha256 hash strings used throughout
// the hash manifest ("sha256-" followed by 44 characters of standard
// base64), including the well-known sentinel value and extraction of
// the correct hash from nix build diagnostics.
//
// Nix reports fixed-output hash mismatches like this:
//
//	error: hash mismatch in fixed-output derivation '/nix/store/...-source.drv':
//	         specified: sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=
//	            got:    sha256-CSl1VpYDGBHMyDFKOBQBkSpHYITQz0dMgCKoXBXAxcI=
//
// The "got:" line carries the authoritative value; the "specified:"
// line echoes back whatever the manifest contained (usually the
// sentinel). [ExtractBuildHash] encodes that reading order.
package sri

import (
	"encoding/base64"
	"regexp"
	"strings"
)

// Sentinel is Nix's canonical fake sha256 hash (lib.fakeHash): a
// structurally valid SRI string whose digest is all zero bytes. It is
// written into a manifest slot to force a hash-mismatch build failure.
// A real content hash never collides with it — producing an all-zero
// sha256 digest is beyond any known attack, so recognition by exact
// equality is sound.
const Sentinel = "sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

// tokenPattern matches an SRI sha256 token: 43 base64 characters plus
// the single padding byte a 32-byte digest always ends with.
var tokenPattern = regexp.MustCompile(`sha256-[A-Za-z0-9+/]{43}=`)

// Valid reports whether s is a well-formed SRI sha256 string: the
// "sha256-" prefix followed by standard base64 decoding to exactly 32
// bytes.
func Valid(s string) bool {
	digest, ok := strings.CutPrefix(s, "sha256-")
	if !ok {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// ExtractBuildHash scans build diagnostic text for the expected hash
// reported by a hash-mismatch failure. It prefers the token on the last
// "got:" line; when no such line exists it falls back to the last
// non-sentinel SRI token anywhere in the text. The sentinel itself is
// never returned.
//
// Returns ("", false) when the text carries no non-sentinel candidate.
// That is a normal outcome (the build failed for some other reason),
// not a parse error.
func ExtractBuildHash(output string) (string, bool) {
	// Pass 1: "got:" lines, last one wins.
	var fromGotLine string
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "got:") {
			continue
		}
		for _, token := range tokenPattern.FindAllString(line, -1) {
			if token != Sentinel {
				fromGotLine = token
			}
		}
	}
	if fromGotLine != "" {
		return fromGotLine, true
	}

	// Pass 2: any SRI token, last non-sentinel occurrence wins.
	var last string
	for _, token := range tokenPattern.FindAllString(output, -1) {
		if token != Sentinel {
			last = token
		}
	}
	if last == "" {
		return "", false
	}
	return last, true
}
