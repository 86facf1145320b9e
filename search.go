package main

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	platformerrors "github.com/jmgilman/go/errors"
)

const invalidQueryMessage = "query may only contain lowercase letters a-z, digits 0-9 and hyphens"

var queryPattern = regexp.MustCompile(`^[a-z0-9-]*$`)

// ValidQuery reports whether every character of q is an ASCII lowercase
// letter, an ASCII digit or a hyphen.
func ValidQuery(q string) bool {
	return validateQuery(q) == nil
}

func validateQuery(q string) error {
	err := validation.Validate(q, validation.Match(queryPattern))
	if err != nil {
		return platformerrors.New(platformerrors.CodeInvalidInput, invalidQueryMessage)
	}

	return nil
}

// FilterPackages returns the packages whose name contains query, in index
// order. The result is never nil.
func FilterPackages(packages []Package, query string) []Package {
	query = strings.ToLower(query)
	matches := make([]Package, 0)

	for _, p := range packages {
		if strings.Contains(p.Name, query) {
			matches = append(matches, p)
		}
	}

	return matches
}

// SimilarPackages returns up to limit package names that contain pkg,
// ignoring case. Used to point at alternatives when a lookup misses.
func SimilarPackages(packages []Package, pkg string, limit int) []string {
	needle := strings.ToLower(pkg)

	var names []string

	for _, p := range packages {
		if len(names) >= limit {
			break
		}

		if strings.Contains(strings.ToLower(lastPathSegment(p.Name)), needle) {
			names = append(names, p.Name)
		}
	}

	return names
}

// lastPathSegment returns the package part of a full package name.
// E.g. "elm/json" -> "json".
func lastPathSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}

	return name
}
