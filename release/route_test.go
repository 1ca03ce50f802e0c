package release

import "testing"

func TestSuccessor(t *testing.T) {
	cases := map[string]string{
		"start":                "jira_collection",
		"jira_collection":      "branch_discovery",
		"branch_discovery":     "merge_validation",
		"merge_validation":     "sprint_merging",
		"sprint_merging":       "release_creation",
		"release_creation":     "pr_generation",
		"pr_generation":        "release_tagging",
		"release_tagging":      "rollback_preparation",
		"rollback_preparation": "documentation",
		"documentation":        "complete",
		"complete":             "complete",
		"error_handler":        "complete",
		"":                     "complete",
	}
	for step, want := range cases {
		if got := successor(step); got != want {
			t.Errorf("successor(%q) = %q, want %q", step, got, want)
		}
	}
}
