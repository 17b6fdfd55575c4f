// Package semver parses versioned service references and checks service versions.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// ParsedServiceRef holds the parsed components of a service reference string.
type ParsedServiceRef struct {
	// Service name (e.g., "stracatore")
	Name string
	// Version range if specified (e.g., "^1.2.0", "1", ""); empty string means any version
	Range string
	// Raw input string
	Raw string
}

var (
	nameRegex         = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseServiceRef parses a service reference.
//
// Supported formats:
//   - caw                  (any version)
//   - caw@1                (major only)
//   - caw@1.2.0            (exact version)
//   - caw@^1.2.0           (caret range)
//   - caw@>=1.0.0 <2.0.0   (comparison range)
func ParseServiceRef(input string) (*ParsedServiceRef, error) {
	raw := strings.TrimSpace(input)

	name := raw
	rangeStr := ""
	if at := strings.Index(raw, "@"); at >= 0 {
		name = raw[:at]
		rangeStr = strings.TrimSpace(raw[at+1:])
		if rangeStr == "" {
			return nil, fmt.Errorf("%s - empty version range: %s", logPrefix, raw)
		}
	}

	if !ValidateName(name) {
		return nil, fmt.Errorf("%s - invalid service name: %s", logPrefix, raw)
	}

	return &ParsedServiceRef{Name: name, Range: rangeStr, Raw: raw}, nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// ValidateName validates a service or operation name (letters, digits, dots, hyphens, underscores).
func ValidateName(name string) bool {
	return nameRegex.MatchString(name)
}
