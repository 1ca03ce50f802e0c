package qa

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/tool"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// systemPrompt is chatbot's fixed preamble. It is never stored in
// state.messages; it is prepended only to the view handed to the model.
const systemPrompt = "You are a release engineering assistant. Use the available " +
	"tools to answer questions about repository branches, merge status, tags, " +
	"issue-tracker tickets, and release documentation. Answer directly once you " +
	"have what you need; do not call a tool you don't need."

// Chatbot builds the chatbot node: it renders state.messages as a model
// conversation, invokes model bound to the tool descriptors in specs,
// and returns the model's reply (possibly carrying tool calls) as the
// "chatbot" channel's contribution.
func Chatbot(chat model.ChatModel, specs []model.ToolSpec) graph.NodeFunc[workflow.QAState] {
	return graph.NodeFunc[workflow.QAState](func(ctx context.Context, state workflow.QAState) graph.NodeResult[workflow.QAState] {
		history := toModelMessages(state.Messages)

		out, err := chat.Chat(ctx, history, specs)
		if err != nil {
			reply := workflow.AIMessage("I couldn't reach the language model just now: " + err.Error())
			return graph.NodeResult[workflow.QAState]{
				Delta: graph.ChannelDelta(map[string]workflow.QAState{
					"chatbot": {CurrentStep: "chatbot", Messages: []workflow.Message{reply}, Done: true},
				}),
				Route: graph.Stop(),
			}
		}

		calls := make([]workflow.ToolCall, 0, len(out.ToolCalls))
		for _, c := range out.ToolCalls {
			calls = append(calls, workflow.ToolCall{ID: uuid.NewString(), Name: c.Name, Input: c.Input})
		}

		reply := workflow.AIMessage(out.Text, calls...)
		delta := workflow.QAState{CurrentStep: "chatbot", Messages: []workflow.Message{reply}, Done: len(calls) == 0}

		route := graph.Stop()
		if len(calls) > 0 {
			route = graph.Goto("tools")
		}
		return graph.NodeResult[workflow.QAState]{
			Delta: graph.ChannelDelta(map[string]workflow.QAState{"chatbot": delta}),
			Route: route,
		}
	})
}

// ToolsNode builds the tools node: it executes every tool call carried by the
// last AI message and returns one tool message per call, in request order.
func ToolsNode(registry map[string]tool.Tool) graph.NodeFunc[workflow.QAState] {
	return graph.NodeFunc[workflow.QAState](func(ctx context.Context, state workflow.QAState) graph.NodeResult[workflow.QAState] {
		var calls []workflow.ToolCall
		if len(state.Messages) > 0 {
			calls = state.Messages[len(state.Messages)-1].ToolCalls()
		}

		messages := make([]workflow.Message, 0, len(calls))
		for _, call := range calls {
			t, ok := registry[call.Name]
			if !ok {
				messages = append(messages, workflow.ToolMessage(call.ID, "unknown tool: "+call.Name))
				continue
			}
			result, err := t.Call(ctx, call.Input)
			if err != nil {
				messages = append(messages, workflow.ToolMessage(call.ID, "error: "+err.Error()))
				continue
			}
			messages = append(messages, workflow.ToolMessage(call.ID, renderToolResult(result)))
		}

		return graph.NodeResult[workflow.QAState]{
			Delta: graph.ChannelDelta(map[string]workflow.QAState{
				"tools": {CurrentStep: "tools", Messages: messages},
			}),
			Route: graph.Goto("chatbot"),
		}
	})
}

// toModelMessages renders a workflow transcript as the model conversation
// chatbot sends, prepending the fixed system prompt. ChatModel has no
// tool-role message shape, so a tool result is folded into a user-role
// message labeled with its content; the model sees it as the next thing
// said to it, which is enough context to continue the loop.
func toModelMessages(messages []workflow.Message) []model.Message {
	out := make([]model.Message, 0, len(messages)+1)
	out = append(out, model.Message{Role: model.RoleSystem, Content: systemPrompt})
	for _, m := range messages {
		switch m.Type {
		case workflow.MessageHuman:
			out = append(out, model.Message{Role: model.RoleUser, Content: m.Content})
		case workflow.MessageAI:
			out = append(out, model.Message{Role: model.RoleAssistant, Content: m.Content})
		case workflow.MessageTool:
			out = append(out, model.Message{Role: model.RoleUser, Content: "Tool result: " + m.Content})
		}
	}
	return out
}

func renderToolResult(result map[string]interface{}) string {
	b, err := json.Marshal(result)
	if err != nil {
		return "tool result unavailable"
	}
	return string(b)
}
