// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

package sri

import "testing"

const (
	realHash  = "sha256-ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0="
	otherHash = "sha256-CSl1VpYDGBHMyDFKOBQBkSpHYITQz0dMgCKoXBXAxcI="
)

func TestValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"real hash", realHash, true},
		{"sentinel is structurally valid", Sentinel, true},
		{"empty", "", false},
		{"missing prefix", "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", false},
		{"wrong algorithm", "sha512-ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=", false},
		{"truncated digest", "sha256-ungWv48Bz+pBQUDeXa4iI7AD=", false},
		{"bad base64", "sha256-!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!=", false},
		{"hex digest", "sha256-ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			if got := Valid(test.value); got != test.want {
				t.Errorf("Valid(%q) = %v, want %v", test.value, got, test.want)
			}
		})
	}
}

func TestExtractBuildHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   string
		wantOK bool
	}{
		{
			name: "nix hash mismatch diagnostic",
			output: "error: hash mismatch in fixed-output derivation '/nix/store/abc-source.drv':\n" +
				"         specified: " + Sentinel + "\n" +
				"            got:    " + realHash + "\n",
			want:   realHash,
			wantOK: true,
		},
		{
			name:   "hash without got line",
			output: "error: something failed, expected " + realHash + " somewhere",
			want:   realHash,
			wantOK: true,
		},
		{
			name: "multiple got lines, last wins",
			output: "got: " + otherHash + "\n" +
				"unrelated noise\n" +
				"got: " + realHash + "\n",
			want:   realHash,
			wantOK: true,
		},
		{
			name: "got line preferred over later free token",
			output: "got: " + realHash + "\n" +
				"while evaluating " + otherHash + " in some trace\n",
			want:   realHash,
			wantOK: true,
		},
		{
			name:   "only sentinel present",
			output: "specified: " + Sentinel + "\ngot: " + Sentinel + "\n",
			wantOK: false,
		},
		{
			name:   "no hash at all",
			output: "error: builder for '/nix/store/abc.drv' failed with exit code 1",
			wantOK: false,
		},
		{
			name:   "empty output",
			output: "",
			wantOK: false,
		},
		{
			name: "fallback picks last non-sentinel token",
			output: "first " + otherHash + " then sentinel " + Sentinel +
				" then " + realHash + " end",
			want:   realHash,
			wantOK: true,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ExtractBuildHash(test.output)
			if ok != test.wantOK {
				t.Fatalf("ExtractBuildHash ok = %v, want %v (got %q)", ok, test.wantOK, got)
			}
			if ok && got != test.want {
				t.Errorf("ExtractBuildHash = %q, want %q", got, test.want)
			}
		})
	}
}

func TestExtractNeverReturnsSentinel(t *testing.T) {
	t.Parallel()

	// Even a diagnostic that mentions the sentinel on a got: line must
	// not surface it as a discovered hash.
	output := "got: " + Sentinel + "\n"
	if got, ok := ExtractBuildHash(output); ok {
		t.Errorf("ExtractBuildHash returned %q from sentinel-only output", got)
	}
}

func TestSentinelIsValidSRI(t *testing.T) {
	t.Parallel()

	// The sentinel must pass structural validation: nix only reaches
	// the hash comparison (and reports the mismatch we parse) when the
	// specified hash is well-formed.
	if !Valid(Sentinel) {
		t.Error("sentinel is not a structurally valid SRI hash")
	}
}

func TestExtractedHashesAreValid(t *testing.T) {
	t.Parallel()

	output := "got: " + realHash + "\n"
	got, ok := ExtractBuildHash(output)
	if !ok {
		t.Fatal("ExtractBuildHash found nothing")
	}
	if !Valid(got) {
		t.Errorf("extracted hash %q is not valid SRI", got)
	}
}
