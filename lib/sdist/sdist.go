// Copyright 2026 The AgentFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package sdist handles PyPI source distributions: constructing the
// canonical download URL for a package release, downloading the
// tarball, and pulling a single named member out of it. The updater
// uses this to keep a local copy of the Cargo.lock shipped inside the
// pyturso sdist, which the Nix build needs as a plain file.
package sdist

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// URL returns the canonical PyPI download URL for a package's source
// distribution, e.g.
// https://files.pythonhosted.org/packages/source/p/pyturso/pyturso-0.4.0rc17.tar.gz
func URL(pname, version string) string {
	return fmt.Sprintf("https://files.pythonhosted.org/packages/source/%s/%s/%s-%s.tar.gz",
		pname[:1], pname, pname, version)
}

// Download fetches url and streams the response body to destination.
// Any non-200 status is an error; a partially written destination file
// is removed on failure.
func Download(ctx context.Context, url, destination string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}

	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status %s", url, response.Status)
	}

	file, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destination, err)
	}

	if _, err := io.Copy(file, response.Body); err != nil {
		file.Close()
		os.Remove(destination)
		return fmt.Errorf("writing %s: %w", destination, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(destination)
		return fmt.Errorf("closing %s: %w", destination, err)
	}
	return nil
}

// ExtractMember scans the gzipped tarball at archivePath for the first
// regular file whose name ends with nameSuffix (e.g. "/Cargo.lock",
// matched against the archive-internal path) and returns its content.
// The boolean reports whether a matching member was found; a missing
// member is a normal outcome, not an error.
func ExtractMember(archivePath, nameSuffix string) ([]byte, bool, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, false, fmt.Errorf("reading gzip stream of %s: %w", archivePath, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("reading tar stream of %s: %w", archivePath, err)
		}
		if header.Typeflag != tar.TypeReg || !strings.HasSuffix(header.Name, nameSuffix) {
			continue
		}

		content, err := io.ReadAll(tarReader)
		if err != nil {
			return nil, false, fmt.Errorf("extracting %s from %s: %w", header.Name, archivePath, err)
		}
		return content, true, nil
	}
}
