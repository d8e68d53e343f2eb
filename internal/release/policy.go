// Package release decides which charts represent unreleased work: it
// resolves the last released state (the release marker) and computes the
// change set of charts that need packaging.
package release

import (
	"fmt"
)

// Policy selects how the change set is derived.
type Policy string

const (
	// PolicyTag includes a chart when its {name}-{version} release tag does
	// not exist yet. Idempotent with respect to "has this exact version been
	// released": a version bump with no tag is always detected, and touched
	// files without a bump never cause a re-release. This is the default.
	PolicyTag Policy = "tag"

	// PolicyDiff includes a chart when its subtree differs between the
	// release marker and the working tree. Kept for parity with older
	// pipelines; it conflates "files changed" with "release needed".
	PolicyDiff Policy = "diff"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyTag, PolicyDiff:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("invalid policy %q: must be %q or %q", s, PolicyTag, PolicyDiff)
	}
}
