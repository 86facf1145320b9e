package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// elmVersion is the compiler release whose package cache layout is read.
const elmVersion = "0.19.1"

// ElmHome reads package files directly from the local Elm package cache
// ($ELM_HOME/0.19.1/packages), avoiding network requests for packages the
// compiler has already downloaded.
type ElmHome struct {
	dir string
}

// NewElmHome creates an ElmHome rooted at the given directory.
// If dir is empty, all lookups will report the package as absent.
func NewElmHome(dir string) *ElmHome {
	return &ElmHome{dir: dir}
}

// PackageDir returns the on-disk path for a package version in the cache.
func (h *ElmHome) PackageDir(author, pkg, version string) string {
	return filepath.Join(h.dir, elmVersion, "packages", author, pkg, version)
}

// HasDocs reports whether docs.json exists for the package version.
func (h *ElmHome) HasDocs(author, pkg, version string) bool {
	if h.dir == "" {
		return false
	}

	info, err := os.Stat(filepath.Join(h.PackageDir(author, pkg, version), "docs.json"))

	return err == nil && info.Mode().IsRegular()
}

// ReadDocs reads docs.json for a package version from the cache.
func (h *ElmHome) ReadDocs(author, pkg, version string) (json.RawMessage, error) {
	path := filepath.Join(h.PackageDir(author, pkg, version), "docs.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read docs from elm home: %w", err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("docs file is not valid JSON: %s", path)
	}

	return json.RawMessage(data), nil
}

// Versions lists the versions of a package present in the cache.
// A package that was never downloaded yields no versions and no error.
func (h *ElmHome) Versions(author, pkg string) ([]string, error) {
	if h.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(filepath.Join(h.dir, elmVersion, "packages", author, pkg))
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("list elm home versions: %w", err)
	}

	var versions []string

	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}

	sort.Strings(versions)

	return versions, nil
}
