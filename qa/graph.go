package qa

import (
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/workflow"
)

// Build registers the two-node ReAct loop onto engine: chatbot decides
// whether to call a tool or answer, tools executes pending calls and
// always routes back to chatbot. Both nodes self-route via Route, so no
// Connect edges are registered; the loop terminates only when chatbot's
// own Route is Stop().
func Build(engine *graph.Engine[workflow.QAState], chat model.ChatModel, deps Adapters) error {
	specs, registry := Tools(deps)

	if err := engine.Add("chatbot", Chatbot(chat, specs)); err != nil {
		return err
	}
	if err := engine.Add("tools", ToolsNode(registry)); err != nil {
		return err
	}
	return engine.StartAt("chatbot")
}
