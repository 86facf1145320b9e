package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const maxSuggestions = 5

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
	versionPattern = regexp.MustCompile(`^(latest|\d+\.\d+\.\d+)$`)
)

type packageInput struct {
	Author  string `json:"author" jsonschema:"Package author, e.g. elm"`
	Package string `json:"package" jsonschema:"Package name, e.g. json"`
}

func (in packageInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Author, validation.Required, validation.Match(namePattern)),
		validation.Field(&in.Package, validation.Required, validation.Match(namePattern)),
	)
}

type docsInput struct {
	Author  string `json:"author" jsonschema:"Package author, e.g. elm"`
	Package string `json:"package" jsonschema:"Package name, e.g. json"`
	Version string `json:"version" jsonschema:"Package version, e.g. 1.1.3, or 'latest'"`
}

func (in docsInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Author, validation.Required, validation.Match(namePattern)),
		validation.Field(&in.Package, validation.Required, validation.Match(namePattern)),
		validation.Field(&in.Version, validation.Required, validation.Match(versionPattern)),
	)
}

type searchInput struct {
	Query string `json:"query" jsonschema:"Substring of the package name. Lowercase letters, digits and hyphens only."`
}

type checkInput struct {
	Entry string `json:"entry,omitempty" jsonschema:"Optional entry file relative to the project folder"`
}

func (in checkInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Entry, validation.By(projectLocalElmFile)),
	)
}

// projectLocalElmFile accepts a relative .elm path that stays inside the
// project folder and cannot be read as a compiler flag.
func projectLocalElmFile(value any) error {
	entry, _ := value.(string)
	if entry == "" {
		return nil
	}

	cleaned := filepath.Clean(entry)

	switch {
	case strings.HasPrefix(entry, "-") || strings.HasPrefix(cleaned, "-"):
		return errors.New("must not start with '-'")
	case !filepath.IsLocal(entry):
		return errors.New("must be a path inside the project folder")
	case filepath.Ext(cleaned) != ".elm":
		return errors.New("must be an .elm file")
	}

	return nil
}

type installInput struct {
	Author  string `json:"author" jsonschema:"Package author, e.g. elm"`
	Package string `json:"package" jsonschema:"Package name, e.g. http"`
	Version string `json:"version,omitempty" jsonschema:"Optional exact version to install"`
}

func (in installInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Author, validation.Required, validation.Match(namePattern)),
		validation.Field(&in.Package, validation.Required, validation.Match(namePattern)),
		validation.Field(&in.Version, validation.Match(versionPattern), validation.NotIn("latest")),
	)
}

func registerTools(
	server *mcp.Server, registry *RegistryClient, index *PackageIndex,
	docs *DocsCache, home *ElmHome, project *Project,
) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "elm_latest_version",
		Description: "Get the latest published version of an Elm package <author>/<package>.",
	}, func(
		ctx context.Context, _ *mcp.CallToolRequest,
		input packageInput,
	) (*mcp.CallToolResult, any, error) {
		return handleLatestVersion(ctx, registry, index, input)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "elm_list_versions",
		Description: "List all published versions of an Elm package, oldest first, " +
			"and the versions already downloaded locally.",
	}, func(
		ctx context.Context, _ *mcp.CallToolRequest,
		input packageInput,
	) (*mcp.CallToolResult, any, error) {
		return handleListVersions(ctx, registry, index, home, input)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "elm_docs",
		Description: "Get the docs.json of an Elm package at a specific version. " +
			"Use version 'latest' to auto-resolve.",
	}, func(
		ctx context.Context, _ *mcp.CallToolRequest,
		input docsInput,
	) (*mcp.CallToolResult, any, error) {
		return handleDocs(ctx, registry, index, docs, home, input)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "elm_search_packages",
		Description: "Search Elm packages whose name contains the query. " +
			"Returns a JSON array of {name, summary, license, version}.",
	}, func(
		ctx context.Context, _ *mcp.CallToolRequest,
		input searchInput,
	) (*mcp.CallToolResult, any, error) {
		return handleSearch(ctx, index, input)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name: "elm_check_project",
		Description: "Compile the Elm project without producing output and report " +
			"compiler errors as JSON.",
	}, func(
		ctx context.Context, _ *mcp.CallToolRequest,
		input checkInput,
	) (*mcp.CallToolResult, any, error) {
		return handleCheck(ctx, project, input)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "elm_install_package",
		Description: "Add a package to the Elm project's dependencies.",
	}, func(
		ctx context.Context, _ *mcp.CallToolRequest,
		input installInput,
	) (*mcp.CallToolResult, any, error) {
		return handleInstall(ctx, project, input)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "elm_uninstall_package",
		Description: "Remove a package from the Elm project's dependencies.",
	}, func(
		ctx context.Context, _ *mcp.CallToolRequest,
		input packageInput,
	) (*mcp.CallToolResult, any, error) {
		return handleUninstall(ctx, project, input)
	})
}

func handleLatestVersion(
	ctx context.Context, registry *RegistryClient,
	index *PackageIndex, input packageInput,
) (*mcp.CallToolResult, any, error) {
	if err := input.Validate(); err != nil {
		return invalidInputResult(err), nil, nil
	}

	version, err := registry.LatestVersion(ctx, input.Author, input.Package)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return notFoundResult(ctx, index, input.Author, input.Package), nil, nil
		}

		return failureResult(err), nil, nil
	}

	return textResult(version), nil, nil
}

func handleListVersions(
	ctx context.Context, registry *RegistryClient, index *PackageIndex,
	home *ElmHome, input packageInput,
) (*mcp.CallToolResult, any, error) {
	if err := input.Validate(); err != nil {
		return invalidInputResult(err), nil, nil
	}

	releases, err := registry.Releases(ctx, input.Author, input.Package)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return notFoundResult(ctx, index, input.Author, input.Package), nil, nil
		}

		return failureResult(err), nil, nil
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "Versions of %s/%s:\n", input.Author, input.Package)

	for _, r := range releases {
		fmt.Fprintf(&sb, "%s (%s)\n", r.Version, r.Time.Format("2006-01-02"))
	}

	if len(releases) > 0 {
		fmt.Fprintf(&sb, "\nLatest: %s\n", releases[len(releases)-1].Version)
	}

	local, err := home.Versions(input.Author, input.Package)
	if err != nil {
		slog.WarnContext(ctx, "could not list local versions", "error", err)
	}

	if len(local) > 0 {
		fmt.Fprintf(&sb, "\nDownloaded locally: %s\n", strings.Join(local, ", "))
	}

	return textResult(sb.String()), nil, nil
}

func handleDocs(
	ctx context.Context, registry *RegistryClient, index *PackageIndex,
	docs *DocsCache, home *ElmHome, input docsInput,
) (*mcp.CallToolResult, any, error) {
	if err := input.Validate(); err != nil {
		return invalidInputResult(err), nil, nil
	}

	version, err := resolveVersion(ctx, registry, input.Author, input.Package, input.Version)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return notFoundResult(ctx, index, input.Author, input.Package), nil, nil
		}

		return failureResult(err), nil, nil
	}

	if home.HasDocs(input.Author, input.Package, version) {
		content, err := home.ReadDocs(input.Author, input.Package, version)
		if err == nil {
			return textResult(string(content)), nil, nil
		}

		slog.WarnContext(ctx, "falling back to registry docs", "error", err)
	}

	content, err := docs.GetOrFetch(ctx, input.Author, input.Package, version,
		func(ctx context.Context) (json.RawMessage, error) {
			return registry.Docs(ctx, input.Author, input.Package, version)
		})
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return failureResult(platformerrors.Newf(platformerrors.CodeNotFound,
				"No docs for %s/%s version %s.", input.Author, input.Package, version,
			)), nil, nil
		}

		return failureResult(err), nil, nil
	}

	return textResult(string(content)), nil, nil
}

func handleSearch(
	ctx context.Context, index *PackageIndex, input searchInput,
) (*mcp.CallToolResult, any, error) {
	if err := validateQuery(input.Query); err != nil {
		return failureResult(err), nil, nil
	}

	packages, err := index.Get(ctx)
	if err != nil {
		return failureResult(err), nil, nil
	}

	out, err := json.Marshal(FilterPackages(packages, input.Query))
	if err != nil {
		return nil, nil, fmt.Errorf("encode search results: %w", err)
	}

	return textResult(string(out)), nil, nil
}

func handleCheck(
	ctx context.Context, project *Project, input checkInput,
) (*mcp.CallToolResult, any, error) {
	if err := input.Validate(); err != nil {
		return invalidInputResult(err), nil, nil
	}

	msg, err := project.Check(ctx, input.Entry)
	if err != nil {
		return failureResult(err), nil, nil
	}

	return textResult(msg), nil, nil
}

func handleInstall(
	ctx context.Context, project *Project, input installInput,
) (*mcp.CallToolResult, any, error) {
	if err := input.Validate(); err != nil {
		return invalidInputResult(err), nil, nil
	}

	msg, err := project.Install(ctx, input.Author, input.Package, input.Version)
	if err != nil {
		return failureResult(err), nil, nil
	}

	return textResult(msg), nil, nil
}

func handleUninstall(
	ctx context.Context, project *Project, input packageInput,
) (*mcp.CallToolResult, any, error) {
	if err := input.Validate(); err != nil {
		return invalidInputResult(err), nil, nil
	}

	msg, err := project.Uninstall(ctx, input.Author, input.Package)
	if err != nil {
		return failureResult(err), nil, nil
	}

	return textResult(msg), nil, nil
}

func resolveVersion(
	ctx context.Context, registry *RegistryClient, author, pkg, version string,
) (string, error) {
	if strings.EqualFold(version, "latest") {
		return registry.LatestVersion(ctx, author, pkg)
	}

	return version, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: true,
	}
}

// failureResult renders err as a JSON error payload with its code and
// attached context.
func failureResult(err error) *mcp.CallToolResult {
	out, mErr := json.Marshal(platformerrors.ToJSON(err))
	if mErr != nil {
		return errorResult(err.Error())
	}

	return errorResult(string(out))
}

func invalidInputResult(err error) *mcp.CallToolResult {
	return failureResult(platformerrors.New(platformerrors.CodeInvalidInput, err.Error()))
}

func notFoundResult(
	ctx context.Context, index *PackageIndex, author, pkg string,
) *mcp.CallToolResult {
	err := platformerrors.Newf(platformerrors.CodeNotFound,
		"Package %s/%s not found in the Elm package registry.", author, pkg)

	packages, indexErr := index.Get(ctx)
	if indexErr != nil {
		slog.WarnContext(ctx, "could not load package index for suggestions", "error", indexErr)

		return failureResult(err)
	}

	if similar := SimilarPackages(packages, pkg, maxSuggestions); len(similar) > 0 {
		return failureResult(platformerrors.WithContext(err, "similar", similar))
	}

	return failureResult(err)
}
