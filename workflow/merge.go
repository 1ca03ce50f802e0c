package workflow

import "reflect"

// appendMessages appends each message in delta to prev that isn't already
// present (by value equality), preserving order. A node's delta normally
// carries only the message(s) it just produced, so in practice this is a
// plain append; the dedup guard exists so a replayed or duplicated delta
// (e.g. a resumed node re-emitting the same "resumed, skipping" notice)
// never grows the log twice.
func appendMessages(prev, delta []Message) []Message {
	next := prev
	for _, m := range delta {
		dup := false
		for _, existing := range prev {
			if reflect.DeepEqual(existing, m) {
				dup = true
				break
			}
		}
		if !dup {
			next = append(next, m)
		}
	}
	return next
}

// appendStepIDs appends each id in delta to prev that isn't already
// present, so a step identifier appears at most once in steps_completed
// even if a resumed node re-records its own id.
func appendStepIDs(prev, delta []string) []string {
	next := prev
	for _, id := range delta {
		found := false
		for _, existing := range prev {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			next = append(next, id)
		}
	}
	return next
}

// ReduceReleaseState merges a node's partial update into the accumulated
// release state. Scalar fields overlay onto prev when delta carries a
// non-zero value; Messages and StepsCompleted accumulate via append with
// de-duplication; StepsFailed accumulates without de-duplication (a step
// that fails twice across retries legitimately appears twice);
// WorkflowComplete is monotonic (OR) since it is terminal and never unset
// once true. WorkflowPaused is cleared directly by the manager when
// preparing a resumed run's initial state. Error and CanContinue are the
// two fields error_handler clears mid-run; see the discriminator below.
func ReduceReleaseState(prev, delta ReleaseState) ReleaseState {
	next := prev

	next.Messages = appendMessages(prev.Messages, delta.Messages)
	next.StepsCompleted = appendStepIDs(prev.StepsCompleted, delta.StepsCompleted)
	next.StepsFailed = append(next.StepsFailed, delta.StepsFailed...)

	if delta.WorkflowID != "" {
		next.WorkflowID = delta.WorkflowID
	}
	if len(delta.Repositories) > 0 {
		next.Repositories = delta.Repositories
	}
	if delta.FixVersion != "" {
		next.FixVersion = delta.FixVersion
	}
	if delta.SprintName != "" {
		next.SprintName = delta.SprintName
	}
	if delta.ReleaseType != "" {
		next.ReleaseType = delta.ReleaseType
	}
	if delta.CurrentStep != "" {
		next.CurrentStep = delta.CurrentStep
	}
	if delta.WorkflowComplete {
		next.WorkflowComplete = true
	}
	if delta.WorkflowPaused {
		next.WorkflowPaused = true
	}

	if delta.ComputedVersion != "" {
		next.ComputedVersion = delta.ComputedVersion
	}
	if len(delta.JiraTickets) > 0 {
		next.JiraTickets = delta.JiraTickets
	}
	if len(delta.FeatureBranches) > 0 {
		next.FeatureBranches = delta.FeatureBranches
	}
	if len(delta.MergeStatus) > 0 {
		next.MergeStatus = delta.MergeStatus
	}
	if len(delta.PullRequests) > 0 {
		next.PullRequests = delta.PullRequests
	}
	if len(delta.ReleaseBranches) > 0 {
		next.ReleaseBranches = delta.ReleaseBranches
	}
	if len(delta.RollbackBranches) > 0 {
		next.RollbackBranches = delta.RollbackBranches
	}
	if delta.ConfluenceURL != "" {
		next.ConfluenceURL = delta.ConfluenceURL
	}

	// Error and CanContinue both need to go from a set value back to
	// their zero value (cleared on a recoverable retry), which a plain
	// zero-value overlay can't express — a zero-value delta field is
	// indistinguishable from "this node didn't touch it". error_handler
	// is the only node that clears either field, and no other node stamps
	// CurrentStep as "error_handler", so CurrentStep == "error_handler"
	// is used as the discriminator: error_handler's delta overlays Error
	// and CanContinue directly (including to their zero values), while
	// every other node's delta only ever sets them (never clears), so
	// the additive branch below is safe for the rest of the pipeline.
	if delta.CurrentStep == "error_handler" {
		next.Error = delta.Error
		next.CanContinue = delta.CanContinue
	} else {
		if delta.Error != "" {
			next.Error = delta.Error
		}
		if delta.CanContinue {
			next.CanContinue = true
		}
	}
	if delta.ErrorStep != "" {
		next.ErrorStep = delta.ErrorStep
	}
	if delta.RetryCount > 0 {
		next.RetryCount = delta.RetryCount
	}

	return next
}

// ReduceQAState merges a node's channel-scoped partial update into the
// accumulated QA state. chatbot and tools each write to their own
// channel with a one-message delta; Done is monotonic for the same
// reason WorkflowComplete is in the release reducer.
func ReduceQAState(prev, delta QAState) QAState {
	next := prev
	next.Messages = appendMessages(prev.Messages, delta.Messages)
	if delta.CurrentStep != "" {
		next.CurrentStep = delta.CurrentStep
	}
	if delta.WorkflowComplete {
		next.WorkflowComplete = true
	}
	if delta.WorkflowPaused {
		next.WorkflowPaused = true
	}
	if delta.Done {
		next.Done = true
	}
	return next
}
