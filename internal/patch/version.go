package patch

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// InvalidVersionError reports an unparseable workspace version.
type InvalidVersionError struct {
	Value string
	Err   error
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version '%s': %v", e.Value, e.Err)
}

func (e *InvalidVersionError) Unwrap() error { return e.Err }

// InvalidRequirementError reports an unparseable version requirement.
type InvalidRequirementError struct {
	Value string
	Err   error
}

func (e *InvalidRequirementError) Error() string {
	return fmt.Sprintf("invalid version requirement '%s': %v", e.Value, e.Err)
}

func (e *InvalidRequirementError) Unwrap() error { return e.Err }

// MatchesVersion reports whether version satisfies requirement.
// Requirements use the conventional semver grammar: =, >=, <, caret,
// tilde, and comma-separated compound constraints such as
// ">=0.88.0, <0.90.0". An empty or whitespace-only requirement matches
// every version. Pre-release versions order per semver rules and only
// match comparators that themselves carry a pre-release component.
func MatchesVersion(version, requirement string) (bool, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return true, nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return false, &InvalidVersionError{Value: version, Err: err}
	}
	req, err := semver.NewConstraint(requirement)
	if err != nil {
		return false, &InvalidRequirementError{Value: requirement, Err: err}
	}
	return req.Check(v), nil
}
