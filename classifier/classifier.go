// Package classifier maps a user's chat message to the workflow kind
// that should handle it.
package classifier

import (
	"context"
	"strings"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// Result is the classifier's verdict for one message.
type Result struct {
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// FallbackConfidence is reported whenever the deterministic keyword
// scorer decides the kind, since it never computes a real probability.
const FallbackConfidence = 0.7

const systemPrompt = `You classify an incoming chat message into exactly one workflow kind.

Recognized kinds:
- "release": the user wants to run or manage a release-automation pipeline (branches, merges, tags, Jira tickets, release notes).
- "qa": the user is asking a question or wants a conversational lookup (branch status, ticket lookups, documentation).

Call the classify tool with your verdict. If you are unsure, pick "qa".`

var classifyTool = model.ToolSpec{
	Name:        "classify",
	Description: "Report the workflow kind this message belongs to.",
	Schema: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"kind": map[string]interface{}{
				"type": "string",
				"enum": []string{workflow.KindRelease, workflow.KindQA},
			},
			"confidence": map[string]interface{}{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"reasoning": map[string]interface{}{
				"type": "string",
			},
		},
		"required": []string{"kind", "confidence", "reasoning"},
	},
}

// releaseKeywords and qaKeywords are the two keyword sets the fallback
// scorer counts occurrences against; each lower-cased occurrence in the
// message scores one point for its kind.
var releaseKeywords = []string{
	"release", "deploy", "deployment", "sprint", "merge", "branch",
	"tag", "version", "rollback", "jira", "ticket", "hotfix",
}

var qaKeywords = []string{
	"question", "help", "explain", "show", "list", "what", "how",
	"why", "status", "chat", "ask",
}

// Classifier classifies messages, preferring an LLM and falling back to
// a deterministic keyword scorer on any LLM failure.
type Classifier struct {
	chat model.ChatModel
}

// New constructs a Classifier. chat may be nil, in which case every call
// goes straight to the keyword fallback.
func New(chat model.ChatModel) *Classifier {
	return &Classifier{chat: chat}
}

// Classify returns the workflow kind a message belongs to. LLM failures
// (including a nil ChatModel) never surface as an error: they silently
// fall back to the keyword scorer.
func (c *Classifier) Classify(ctx context.Context, message string) Result {
	if c.chat != nil {
		if result, ok := c.classifyWithLLM(ctx, message); ok {
			return result
		}
	}
	return c.classifyByKeyword(message)
}

func (c *Classifier) classifyWithLLM(ctx context.Context, message string) (Result, bool) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: message},
	}
	out, err := c.chat.Chat(ctx, messages, []model.ToolSpec{classifyTool})
	if err != nil || len(out.ToolCalls) == 0 {
		return Result{}, false
	}

	call := out.ToolCalls[0]
	kind, _ := call.Input["kind"].(string)
	confidence, _ := call.Input["confidence"].(float64)
	reasoning, _ := call.Input["reasoning"].(string)

	if kind != workflow.KindRelease && kind != workflow.KindQA {
		kind = workflow.KindQA
	}
	return Result{Kind: kind, Confidence: confidence, Reasoning: reasoning}, true
}

// classifyByKeyword scores message against both keyword sets; the
// higher score wins, ties go to qa (the fallback kind). hasExpect is a
// small validation heuristic: a message that explicitly says what it
// "expects" to see reads as a QA-style lookup even when it also mentions
// a release-ish noun in passing (e.g. "what do you expect the release
// branch to be called?").
func (c *Classifier) classifyByKeyword(message string) Result {
	lower := strings.ToLower(message)

	releaseScore := countOccurrences(lower, releaseKeywords)
	qaScore := countOccurrences(lower, qaKeywords)

	hasExpect := strings.Contains(lower, "expect")
	if hasExpect {
		qaScore++
	}

	kind := workflow.KindQA
	reasoning := "keyword fallback: qa score >= release score"
	if releaseScore > qaScore {
		kind = workflow.KindRelease
		reasoning = "keyword fallback: release score higher"
	}

	return Result{Kind: kind, Confidence: FallbackConfidence, Reasoning: reasoning}
}

func countOccurrences(lower string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		score += strings.Count(lower, kw)
	}
	return score
}
