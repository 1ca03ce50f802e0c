package qa

import (
	"context"
	"errors"
	"testing"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

func TestChatbotDirectAnswerStops(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "All repositories are clean."}}}
	node := Chatbot(chat, nil)

	state := workflow.QAState{Messages: []workflow.Message{workflow.HumanMessage("any branches open?")}}
	result := node.Run(context.Background(), state)

	chatbotDelta, ok := result.Delta.Channels["chatbot"]
	if !ok {
		t.Fatalf("expected a %q channel entry, got %#v", "chatbot", result.Delta)
	}
	if !chatbotDelta.Done {
		t.Error("expected Done to be true for a direct answer")
	}
	if len(chatbotDelta.Messages) != 1 || chatbotDelta.Messages[0].Content != "All repositories are clean." {
		t.Errorf("unexpected reply message: %#v", chatbotDelta.Messages)
	}
	if !result.Route.Terminal {
		t.Errorf("expected Stop(), got %#v", result.Route)
	}
}

func TestChatbotToolCallRoutesToTools(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{ToolCalls: []model.ToolCall{{Name: "list_branches", Input: map[string]interface{}{"repository": "svc-a"}}}},
	}}
	node := Chatbot(chat, nil)

	state := workflow.QAState{Messages: []workflow.Message{workflow.HumanMessage("list branches for svc-a")}}
	result := node.Run(context.Background(), state)

	chatbotDelta, ok := result.Delta.Channels["chatbot"]
	if !ok {
		t.Fatalf("expected a %q channel entry, got %#v", "chatbot", result.Delta)
	}
	if chatbotDelta.Done {
		t.Error("expected Done to be false when the model requested a tool call")
	}
	if len(chatbotDelta.Messages) != 1 {
		t.Fatalf("expected exactly one reply message, got %d", len(chatbotDelta.Messages))
	}
	calls := chatbotDelta.Messages[0].ToolCalls()
	if len(calls) != 1 || calls[0].Name != "list_branches" {
		t.Errorf("unexpected tool calls: %#v", calls)
	}
	if calls[0].ID == "" {
		t.Error("expected a generated tool call ID")
	}
	if result.Route.To != "tools" {
		t.Errorf("Route.To = %q, want %q", result.Route.To, "tools")
	}
}

func TestChatbotModelErrorStopsWithMessage(t *testing.T) {
	chat := &model.MockChatModel{Err: errors.New("connection refused")}
	node := Chatbot(chat, nil)

	state := workflow.QAState{Messages: []workflow.Message{workflow.HumanMessage("hello")}}
	result := node.Run(context.Background(), state)

	chatbotDelta, ok := result.Delta.Channels["chatbot"]
	if !ok {
		t.Fatalf("expected a %q channel entry, got %#v", "chatbot", result.Delta)
	}
	if !chatbotDelta.Done {
		t.Error("expected Done to be true after a model error")
	}
	if len(chatbotDelta.Messages) != 1 || chatbotDelta.Messages[0].Content == "" {
		t.Errorf("expected a non-empty error reply, got %#v", chatbotDelta.Messages)
	}
	if !result.Route.Terminal {
		t.Errorf("expected Stop() after a model error, got %#v", result.Route)
	}
}

func TestToolsNodeExecutesPendingCalls(t *testing.T) {
	_, registry := Tools(testAdapters())
	node := ToolsNode(registry)

	callID := "call-1"
	state := workflow.QAState{Messages: []workflow.Message{
		workflow.AIMessage("", workflow.ToolCall{ID: callID, Name: "list_branches", Input: map[string]interface{}{"repository": "svc-a"}}),
	}}

	result := node.Run(context.Background(), state)

	toolsDelta, ok := result.Delta.Channels["tools"]
	if !ok {
		t.Fatalf("expected a %q channel entry, got %#v", "tools", result.Delta)
	}
	if len(toolsDelta.Messages) != 1 {
		t.Fatalf("expected exactly one tool result message, got %d", len(toolsDelta.Messages))
	}
	msg := toolsDelta.Messages[0]
	if msg.Type != workflow.MessageTool {
		t.Errorf("Type = %v, want %v", msg.Type, workflow.MessageTool)
	}
	if msg.ToolCallID() != callID {
		t.Errorf("ToolCallID() = %q, want %q", msg.ToolCallID(), callID)
	}
	if result.Route.To != "chatbot" {
		t.Errorf("Route.To = %q, want %q", result.Route.To, "chatbot")
	}
}

func TestToolsNodeUnknownToolReportsError(t *testing.T) {
	_, registry := Tools(testAdapters())
	node := ToolsNode(registry)

	state := workflow.QAState{Messages: []workflow.Message{
		workflow.AIMessage("", workflow.ToolCall{ID: "call-1", Name: "does_not_exist", Input: nil}),
	}}

	result := node.Run(context.Background(), state)
	msg := result.Delta.Channels["tools"].Messages[0]
	if msg.Content == "" {
		t.Error("expected a non-empty error message for an unknown tool")
	}
}

func TestToolsNodeNoPendingCallsReturnsEmpty(t *testing.T) {
	_, registry := Tools(testAdapters())
	node := ToolsNode(registry)

	state := workflow.QAState{Messages: []workflow.Message{workflow.AIMessage("nothing to do here")}}
	result := node.Run(context.Background(), state)

	if len(result.Delta.Channels["tools"].Messages) != 0 {
		t.Errorf("expected no tool messages, got %#v", result.Delta.Channels["tools"].Messages)
	}
	if result.Route.To != "chatbot" {
		t.Errorf("Route.To = %q, want %q", result.Route.To, "chatbot")
	}
}
