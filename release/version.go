package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var semverPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)$`)

// computeVersion resolves the version release_creation tags and branches
// with: if fixVersion already has the v?N.N.N shape, it's used as-is
// (normalized to carry a "v" prefix); otherwise the next major version
// after the highest existing tag is used.
func computeVersion(fixVersion string, existingTags []string) string {
	if m := semverPattern.FindStringSubmatch(fixVersion); m != nil {
		return "v" + m[1] + "." + m[2] + "." + m[3]
	}

	major := 0
	for _, tag := range existingTags {
		m := semverPattern.FindStringSubmatch(tag)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > major {
			major = n
		}
	}
	return fmt.Sprintf("v%d.0.0", major+1)
}

// rollbackBranchName builds rollback_preparation's branch name from a
// computed version: "v2.0.0" becomes "rollback/v-2.0.0".
func rollbackBranchName(version string) string {
	return fmt.Sprintf("rollback/v-%s", strings.TrimPrefix(version, "v"))
}

// releaseBranchName builds release_creation's branch name from a
// computed version: "v2.0.0" becomes "release/v2.0.0".
func releaseBranchName(version string) string {
	return fmt.Sprintf("release/%s", version)
}
