package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTechnology is returned when a technology tag cannot be parsed.
var ErrUnknownTechnology = errors.New("unknown technology")

// Technology is the declared workload type of a scan request.
// It selects which ordered stage list the pipeline runs.
type Technology string

const (
	// TechnologyJava is the managed-runtime track: packaged archives pulled
	// from the artifact repository and scanned with the migration analyzer.
	TechnologyJava Technology = "JAVA"

	// TechnologyDotNet is the compiled-binary track: source fetched and
	// scanned with the code analysis tool.
	TechnologyDotNet Technology = "DOTNET"
)

// KnownTechnologies lists every technology the built-in registry understands.
func KnownTechnologies() []Technology {
	return []Technology{TechnologyJava, TechnologyDotNet}
}

// ParseTechnology converts user input into a Technology.
// Matching ignores case and surrounding whitespace.
// Unknown values are still returned (upper-cased) together with
// ErrUnknownTechnology so callers can report the offending tag.
func ParseTechnology(s string) (Technology, error) {
	t := Technology(strings.ToUpper(strings.TrimSpace(s)))
	if t == "" {
		return "", fmt.Errorf("%w: empty value", ErrUnknownTechnology)
	}
	for _, known := range KnownTechnologies() {
		if t == known {
			return t, nil
		}
	}
	return t, fmt.Errorf("%w: %q", ErrUnknownTechnology, s)
}

// String returns the technology tag.
func (t Technology) String() string {
	return string(t)
}
