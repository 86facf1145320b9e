package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// populateElmHome writes a fake docs.json into an Elm home directory.
func populateElmHome(t *testing.T, dir, author, pkg, version, docs string) {
	t.Helper()

	pkgDir := filepath.Join(dir, elmVersion, "packages", author, pkg, version)

	mustf(t, os.MkdirAll(pkgDir, 0o755), "create package dir for %s/%s", author, pkg)
	mustf(t, os.WriteFile(filepath.Join(pkgDir, "docs.json"), []byte(docs), 0o600), "write docs.json")
}

func TestPackageDir(t *testing.T) {
	h := NewElmHome("/home/u/.elm")
	got := h.PackageDir("elm", "json", "1.1.3")
	want := filepath.Join("/home/u/.elm", "0.19.1", "packages", "elm", "json", "1.1.3")

	if got != want {
		t.Errorf("PackageDir = %q, want %q", got, want)
	}
}

func TestHasDocs_Exists(t *testing.T) {
	dir := t.TempDir()
	populateElmHome(t, dir, "elm", "json", "1.1.3", `[]`)

	if !NewElmHome(dir).HasDocs("elm", "json", "1.1.3") {
		t.Error("expected HasDocs to return true")
	}
}

func TestHasDocs_NotExists(t *testing.T) {
	if NewElmHome(t.TempDir()).HasDocs("elm", "json", "1.1.3") {
		t.Error("expected HasDocs to return false")
	}
}

func TestHasDocs_EmptyDir(t *testing.T) {
	if NewElmHome("").HasDocs("elm", "json", "1.1.3") {
		t.Error("expected HasDocs to return false with empty dir")
	}
}

func TestHasDocs_PackageWithoutDocs(t *testing.T) {
	dir := t.TempDir()
	h := NewElmHome(dir)

	mustf(t, os.MkdirAll(h.PackageDir("elm", "json", "1.1.3"), 0o755), "create package dir")

	if h.HasDocs("elm", "json", "1.1.3") {
		t.Error("expected HasDocs to return false when docs.json is missing")
	}
}

func TestReadDocs(t *testing.T) {
	dir := t.TempDir()
	populateElmHome(t, dir, "elm", "json", "1.1.3", `[{"name":"Json.Encode"}]`)

	docs, err := NewElmHome(dir).ReadDocs("elm", "json", "1.1.3")

	mustf(t, err, "read docs")

	if string(docs) != `[{"name":"Json.Encode"}]` {
		t.Errorf("unexpected docs: %s", docs)
	}
}

func TestReadDocs_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	populateElmHome(t, dir, "elm", "json", "1.1.3", `not json`)

	_, err := NewElmHome(dir).ReadDocs("elm", "json", "1.1.3")
	if err == nil {
		t.Fatal("expected error for invalid docs")
	}

	if !strings.Contains(err.Error(), "not valid JSON") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVersions(t *testing.T) {
	dir := t.TempDir()
	populateElmHome(t, dir, "elm", "json", "1.1.3", `[]`)
	populateElmHome(t, dir, "elm", "json", "1.1.2", `[]`)

	versions, err := NewElmHome(dir).Versions("elm", "json")

	mustf(t, err, "list versions")

	if len(versions) != 2 || versions[0] != "1.1.2" || versions[1] != "1.1.3" {
		t.Errorf("unexpected versions: %v", versions)
	}
}

func TestVersions_NotDownloaded(t *testing.T) {
	versions, err := NewElmHome(t.TempDir()).Versions("elm", "json")

	mustf(t, err, "list versions")

	if len(versions) != 0 {
		t.Errorf("expected no versions, got %v", versions)
	}
}
