// Package workflow defines the state shapes, reducers, and lifecycle
// management for the release-automation and QA graphs.
package workflow

import "time"

// MessageType tags a Message with its role in the conversation. It is a
// plain string rather than a closed enum: messages deserialized from
// persisted JSON may carry a tag this build doesn't recognize (a future
// role added by a newer version), and that tag is preserved verbatim
// rather than collapsed to an "unknown" catch-all.
type MessageType string

const (
	MessageHuman MessageType = "human"
	MessageAI    MessageType = "ai"
	MessageTool  MessageType = "tool"
)

// ToolCall is a single tool invocation requested by an AI message.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Message is one entry in a workflow's append-only conversation log.
//
// AdditionalKwargs carries role-specific sidecar data: an AI message's
// pending tool calls live under the "tool_calls" key, a tool message's
// originating call id lives under "tool_call_id". Keeping these in a
// generic map (instead of dedicated struct fields) means a message
// round-tripped through JSON persistence never loses data this build
// doesn't know how to interpret.
type Message struct {
	Type             MessageType            `json:"type"`
	Content          string                 `json:"content"`
	AdditionalKwargs map[string]interface{} `json:"additional_kwargs,omitempty"`
}

// HumanMessage constructs a human-authored message.
func HumanMessage(content string) Message {
	return Message{Type: MessageHuman, Content: content}
}

// AIMessage constructs an assistant message, optionally carrying pending
// tool calls.
func AIMessage(content string, calls ...ToolCall) Message {
	m := Message{Type: MessageAI, Content: content}
	if len(calls) > 0 {
		m.AdditionalKwargs = map[string]interface{}{"tool_calls": calls}
	}
	return m
}

// ToolMessage constructs the result of executing a single tool call.
func ToolMessage(callID, content string) Message {
	return Message{
		Type:             MessageTool,
		Content:          content,
		AdditionalKwargs: map[string]interface{}{"tool_call_id": callID},
	}
}

// ToolCalls returns the tool calls carried by an AI message, handling
// both the native []ToolCall shape (messages built in-process) and the
// []interface{} shape produced by a round-trip through encoding/json
// (messages loaded back from the persistence layer).
func (m Message) ToolCalls() []ToolCall {
	raw, ok := m.AdditionalKwargs["tool_calls"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []ToolCall:
		return v
	case []interface{}:
		calls := make([]ToolCall, 0, len(v))
		for _, item := range v {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			call := ToolCall{}
			if id, ok := entry["id"].(string); ok {
				call.ID = id
			}
			if name, ok := entry["name"].(string); ok {
				call.Name = name
			}
			if input, ok := entry["input"].(map[string]interface{}); ok {
				call.Input = input
			}
			calls = append(calls, call)
		}
		return calls
	default:
		return nil
	}
}

// ToolCallID returns the originating call id of a tool message, if set.
func (m Message) ToolCallID() string {
	id, _ := m.AdditionalKwargs["tool_call_id"].(string)
	return id
}

// TicketSummary is the reduced per-ticket record stored by jira_collection:
// the full issue-tracker payload is discarded in favor of the fields the
// rest of the pipeline actually consumes.
type TicketSummary struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

// RepoFeatureBranches records branch_discovery's per-repository outcome:
// which expected ticket branches were found, and which are missing.
type RepoFeatureBranches struct {
	Repository string            `json:"repository"`
	Found      map[string]string `json:"found"`   // ticket key -> branch name
	Missing    []string          `json:"missing"` // ticket keys with no matching branch
}

// MergeCheck records merge_validation's per-branch merge status against
// the sprint branch.
type MergeCheck struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	Merged     bool   `json:"merged"`
}

// PullRequest is reused by both sprint_merging (sprint -> develop) and
// pr_generation (release/* -> master): Status distinguishes the two use
// cases ("open" for a freshly opened release PR, "merged"/"conflict"/
// "error" for a sprint-merge attempt's outcome).
type PullRequest struct {
	Repository string `json:"repository"`
	Number     int    `json:"number"`
	URL        string `json:"url"`
	Head       string `json:"head"`
	Base       string `json:"base"`
	Status     string `json:"status"`
}

// ReleaseState is the accumulated state threaded through the release
// pipeline graph. Field names mirror the snake_case vocabulary of the
// HTTP surface via their json tags.
type ReleaseState struct {
	WorkflowID string    `json:"workflow_id"`
	Messages   []Message `json:"messages"`

	Repositories []string `json:"repositories"`
	FixVersion   string   `json:"fix_version"`
	SprintName   string   `json:"sprint_name"`
	ReleaseType  string   `json:"release_type"`

	CurrentStep      string `json:"current_step"`
	WorkflowComplete bool   `json:"workflow_complete"`
	WorkflowPaused   bool   `json:"workflow_paused"`

	// ComputedVersion is release_creation's resolved semantic version,
	// reused by pr_generation, release_tagging, rollback_preparation, and
	// documentation so only one step ever parses tags/fix_version.
	ComputedVersion string `json:"computed_version"`

	JiraTickets      []TicketSummary       `json:"jira_tickets"`
	FeatureBranches  []RepoFeatureBranches `json:"feature_branches"`
	MergeStatus      []MergeCheck          `json:"merge_status"`
	PullRequests     []PullRequest         `json:"pull_requests"`
	ReleaseBranches  []string              `json:"release_branches"`
	RollbackBranches []string              `json:"rollback_branches"`
	ConfluenceURL    string                `json:"confluence_url"`

	Error      string `json:"error"`
	ErrorStep  string `json:"error_step"`
	RetryCount int    `json:"retry_count"`
	CanContinue bool  `json:"can_continue"`

	StepsCompleted []string `json:"steps_completed"`
	StepsFailed    []string `json:"steps_failed"`
}

// Complete implements graph.Terminable. WorkflowComplete is set both by
// the complete node (success) and by error_handler's fourth, fatal entry
// (failure); Error distinguishes which one actually happened, since a
// recoverable error sets Error and returns straight to error_handler
// without ever setting WorkflowComplete.
func (s ReleaseState) Complete() bool { return s.WorkflowComplete && s.Error == "" }

// Failed implements graph.Terminable: only the fatal error_handler exit
// (WorkflowComplete with a lingering Error) counts as failed. A
// recoverable error mid-pipeline leaves WorkflowComplete false so routing
// can still dispatch error_handler instead of ending the run early.
func (s ReleaseState) Failed() bool { return s.WorkflowComplete && s.Error != "" }

// IdleConversation implements graph.Terminable. The release graph always
// reaches a terminal state via an explicit route to "complete" or via
// WorkflowComplete, so the heuristic never applies.
func (s ReleaseState) IdleConversation() bool { return false }

// HasCompletedStep reports whether stepID already appears in
// StepsCompleted, the idempotence check every pipeline node performs
// before doing any work.
func (s ReleaseState) HasCompletedStep(stepID string) bool {
	for _, id := range s.StepsCompleted {
		if id == stepID {
			return true
		}
	}
	return false
}

// QAState is the accumulated state threaded through the QA chatbot graph.
// Unlike ReleaseState it carries no domain result buckets: the entire
// interaction surface is the message log plus lifecycle bookkeeping.
type QAState struct {
	WorkflowID string    `json:"workflow_id"`
	Messages   []Message `json:"messages"`

	CurrentStep      string `json:"current_step"`
	WorkflowComplete bool   `json:"workflow_complete"`
	WorkflowPaused   bool   `json:"workflow_paused"`

	// Done is set by the chatbot node the moment it produces a
	// non-tool-calling reply, so the engine doesn't need to rediscover
	// that fact via the last-message heuristic on every subsequent step.
	Done bool `json:"done"`
}

// Complete implements graph.Terminable.
func (s QAState) Complete() bool { return s.WorkflowComplete }

// Failed implements graph.Terminable. The QA graph has no error/pause
// bookkeeping of its own; node-level failures surface as tool messages
// rather than terminal errors.
func (s QAState) Failed() bool { return false }

// IdleConversation implements graph.Terminable. Checks the explicit Done
// signal first and falls back to the last-message heuristic (a
// non-tool-calling AI message ends the turn) only when Done was never
// set — e.g. on a freshly loaded state the chatbot hasn't visited yet.
func (s QAState) IdleConversation() bool {
	if s.Done {
		return true
	}
	if len(s.Messages) == 0 {
		return false
	}
	last := s.Messages[len(s.Messages)-1]
	return last.Type == MessageAI && len(last.ToolCalls()) == 0
}

// WorkflowMetadata is the lifecycle record tracked by the manager and
// exposed through the HTTP status/list endpoints.
type WorkflowMetadata struct {
	WorkflowID          string    `json:"workflow_id"`
	Kind                string    `json:"kind"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	Status              string    `json:"status"`
	CurrentStep         string    `json:"current_step"`
	ErrorCount          int       `json:"error_count"`
	LastError           string    `json:"last_error"`
	ExecutionTimeSeconds float64  `json:"execution_time_seconds"`
}

// Workflow lifecycle statuses, per the spec's metadata status domain.
const (
	StatusRunning   = "running"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)
