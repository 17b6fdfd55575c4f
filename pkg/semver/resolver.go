package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// ValidateVersion checks that version is a valid semantic version and returns its canonical form.
func ValidateVersion(version string) (string, error) {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return "", fmt.Errorf("%s - invalid version %q: %w", resolverLogPrefix, version, err)
	}
	return sv.String(), nil
}

// SatisfiesRange checks if a version string satisfies a range.
// Major-only ranges match any version with that major; exact versions match by equality.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	if IsExactVersion(rangeStr) {
		want, err := masterminds.NewVersion(rangeStr)
		if err != nil {
			return false
		}
		return sv.Equal(want)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}
