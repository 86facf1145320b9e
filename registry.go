package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

const (
	defaultRegistryURL = "https://package.elm-lang.org"
	maxResponseSize    = 32 << 20 // 32 MB
)

var (
	// ErrPackageNotFound is returned when the registry responds with 404 or 410.
	ErrPackageNotFound = platformerrors.New(platformerrors.CodeNotFound, "package not found")

	// ErrNoReleases is returned when a package exists but lists no releases.
	ErrNoReleases = platformerrors.New(platformerrors.CodeNotFound, "package has no releases")
)

// Package is one entry of the registry search index.
type Package struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	License string `json:"license"`
	Version string `json:"version"`
}

// Release is a published package version.
type Release struct {
	Version string
	Time    time.Time
}

// RegistryClient fetches package data from package.elm-lang.org.
type RegistryClient struct {
	baseURL string
	client  *http.Client
}

func NewRegistryClient(baseURL string) *RegistryClient {
	if baseURL == "" {
		baseURL = defaultRegistryURL
	}

	return &RegistryClient{
		baseURL: baseURL,
		client:  http.DefaultClient,
	}
}

// Releases returns every published version of a package, oldest first.
func (r *RegistryClient) Releases(ctx context.Context, author, pkg string) ([]Release, error) {
	url := fmt.Sprintf("%s/packages/%s/%s/releases.json", r.baseURL, author, pkg)

	body, err := r.get(ctx, url)
	if err != nil {
		return nil, err
	}

	// The response maps version to release time in unix seconds.
	var raw map[string]int64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, decodeError(err, url)
	}

	releases := make([]Release, 0, len(raw))
	for version, ts := range raw {
		releases = append(releases, Release{Version: version, Time: time.Unix(ts, 0).UTC()})
	}

	sort.Slice(releases, func(i, j int) bool {
		if releases[i].Time.Equal(releases[j].Time) {
			return releases[i].Version < releases[j].Version
		}

		return releases[i].Time.Before(releases[j].Time)
	})

	return releases, nil
}

// LatestVersion returns the most recently released version of a package.
func (r *RegistryClient) LatestVersion(ctx context.Context, author, pkg string) (string, error) {
	releases, err := r.Releases(ctx, author, pkg)
	if err != nil {
		return "", err
	}

	if len(releases) == 0 {
		return "", ErrNoReleases
	}

	return releases[len(releases)-1].Version, nil
}

// Docs returns the raw docs.json for a package version.
func (r *RegistryClient) Docs(ctx context.Context, author, pkg, version string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/packages/%s/%s/%s/docs.json", r.baseURL, author, pkg, version)

	body, err := r.get(ctx, url)
	if err != nil {
		return nil, err
	}

	if !json.Valid(body) {
		return nil, platformerrors.Newf(platformerrors.CodeSchemaFailed, "docs for %s/%s %s are not valid JSON", author, pkg, version)
	}

	return json.RawMessage(body), nil
}

// SearchIndex returns the full package search index.
func (r *RegistryClient) SearchIndex(ctx context.Context) ([]Package, error) {
	url := r.baseURL + "/search.json"

	body, err := r.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var packages []Package
	if err := json.Unmarshal(body, &packages); err != nil {
		return nil, decodeError(err, url)
	}

	return packages, nil
}

func (r *RegistryClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeInternal, "create request")
	}

	slog.DebugContext(ctx, "registry request", "url", url)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, platformerrors.Wrapf(err, platformerrors.CodeNetwork, "fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, ErrPackageNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return nil, platformerrors.Newf(platformerrors.CodeNetwork, "unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeNetwork, "read response")
	}

	if len(body) > maxResponseSize {
		return nil, platformerrors.Newf(platformerrors.CodeNetwork, "response too large (>%d bytes)", maxResponseSize)
	}

	return body, nil
}

func decodeError(err error, url string) error {
	return platformerrors.Wrapf(err, platformerrors.CodeSchemaFailed, "decode %s", url)
}
