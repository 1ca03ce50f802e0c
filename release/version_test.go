package release

import "testing"

func TestComputeVersion(t *testing.T) {
	cases := []struct {
		name         string
		fixVersion   string
		existingTags []string
		want         string
	}{
		{"explicit semver", "2.0.0", nil, "v2.0.0"},
		{"explicit semver with v prefix", "v3.1.4", nil, "v3.1.4"},
		{"non-semver fix version falls back to tags", "Sprint 14", []string{"v1.0.0", "v2.0.0"}, "v3.0.0"},
		{"no tags at all", "Sprint 14", nil, "v1.0.0"},
		{"ignores malformed tags", "Sprint 14", []string{"v1.0.0", "not-a-tag"}, "v2.0.0"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := computeVersion(c.fixVersion, c.existingTags); got != c.want {
				t.Errorf("computeVersion(%q, %v) = %q, want %q", c.fixVersion, c.existingTags, got, c.want)
			}
		})
	}
}

func TestRollbackBranchName(t *testing.T) {
	if got := rollbackBranchName("v2.0.0"); got != "rollback/v-2.0.0" {
		t.Errorf("rollbackBranchName(v2.0.0) = %q, want rollback/v-2.0.0", got)
	}
}

func TestReleaseBranchName(t *testing.T) {
	if got := releaseBranchName("v2.0.0"); got != "release/v2.0.0" {
		t.Errorf("releaseBranchName(v2.0.0) = %q, want release/v2.0.0", got)
	}
}
