// Package qa implements the two-node ReAct loop that answers ad-hoc
// questions about repositories, tickets, and release documentation by
// binding an LLM to the same adapter layer the release pipeline uses.
package qa

import (
	"context"
	"fmt"

	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/issuetracker"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/sourceforge"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/adapters/wiki"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/model"
	"github.com/ProjectEnigmaHackathon/release-workflow-engine/graph/tool"
)

// Adapters bundles the three capability groups the tool loop exposes to
// the model: a source-hosting group (branches, merge status, tags), an
// issue-tracker group, and a wiki group.
type Adapters struct {
	Forge   sourceforge.SourceForge
	Tracker issuetracker.Tracker
	Wiki    wiki.Wiki
}

// Tools builds the fixed descriptor + executor set chatbot binds to and
// tools dispatches against. The descriptor list and the executor map
// share names by construction, so a model-requested tool always resolves.
func Tools(deps Adapters) ([]model.ToolSpec, map[string]tool.Tool) {
	tools := []tool.Tool{
		&listBranchesTool{forge: deps.Forge},
		&checkMergeStatusTool{forge: deps.Forge},
		&listTagsTool{forge: deps.Forge},
		&listTicketsTool{tracker: deps.Tracker},
		&getTicketTool{tracker: deps.Tracker},
		&searchPagesTool{wiki: deps.Wiki},
	}

	specs := make([]model.ToolSpec, 0, len(tools))
	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
		specs = append(specs, specFor(t.Name()))
	}
	return specs, byName
}

func specFor(name string) model.ToolSpec {
	switch name {
	case "list_branches":
		return model.ToolSpec{
			Name:        name,
			Description: "List the branches of a repository.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"repository": map[string]interface{}{"type": "string"}},
				"required":   []string{"repository"},
			},
		}
	case "check_merge_status":
		return model.ToolSpec{
			Name:        name,
			Description: "Check whether a source branch has been merged into a destination branch in a repository.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"repository":  map[string]interface{}{"type": "string"},
					"source":      map[string]interface{}{"type": "string"},
					"destination": map[string]interface{}{"type": "string"},
				},
				"required": []string{"repository", "source", "destination"},
			},
		}
	case "list_tags":
		return model.ToolSpec{
			Name:        name,
			Description: "List the tags of a repository.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"repository": map[string]interface{}{"type": "string"}},
				"required":   []string{"repository"},
			},
		}
	case "list_tickets":
		return model.ToolSpec{
			Name:        name,
			Description: "List issue-tracker tickets matching a fix version.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"fix_version": map[string]interface{}{"type": "string"}},
				"required":   []string{"fix_version"},
			},
		}
	case "get_ticket":
		return model.ToolSpec{
			Name:        name,
			Description: "Fetch a single issue-tracker ticket by key.",
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"key": map[string]interface{}{"type": "string"}},
				"required":   []string{"key"},
			},
		}
	case "search_pages":
		return model.ToolSpec{
			Name:        name,
			Description: "Search wiki pages by space and title.",
			Schema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"space": map[string]interface{}{"type": "string"},
					"title": map[string]interface{}{"type": "string"},
				},
				"required": []string{"space"},
			},
		}
	default:
		return model.ToolSpec{Name: name}
	}
}

func stringArg(input map[string]interface{}, key string) string {
	v, _ := input[key].(string)
	return v
}

type listBranchesTool struct{ forge sourceforge.SourceForge }

func (t *listBranchesTool) Name() string { return "list_branches" }

func (t *listBranchesTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	repo := stringArg(input, "repository")
	if repo == "" {
		return nil, fmt.Errorf("list_branches: repository is required")
	}
	branches, err := t.forge.Branches(ctx, repo)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(branches))
	for _, b := range branches {
		names = append(names, b.Name)
	}
	return map[string]interface{}{"repository": repo, "branches": names}, nil
}

type checkMergeStatusTool struct{ forge sourceforge.SourceForge }

func (t *checkMergeStatusTool) Name() string { return "check_merge_status" }

func (t *checkMergeStatusTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	repo, src, dst := stringArg(input, "repository"), stringArg(input, "source"), stringArg(input, "destination")
	if repo == "" || src == "" || dst == "" {
		return nil, fmt.Errorf("check_merge_status: repository, source, and destination are required")
	}
	status, err := t.forge.CheckMergeStatus(ctx, repo, src, dst)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"repository": repo, "source": src, "destination": dst, "merged": status.Merged}, nil
}

type listTagsTool struct{ forge sourceforge.SourceForge }

func (t *listTagsTool) Name() string { return "list_tags" }

func (t *listTagsTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	repo := stringArg(input, "repository")
	if repo == "" {
		return nil, fmt.Errorf("list_tags: repository is required")
	}
	tags, err := t.forge.Tags(ctx, repo)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags))
	for _, tg := range tags {
		names = append(names, tg.Name)
	}
	return map[string]interface{}{"repository": repo, "tags": names}, nil
}

type listTicketsTool struct{ tracker issuetracker.Tracker }

func (t *listTicketsTool) Name() string { return "list_tickets" }

func (t *listTicketsTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	fixVersion := stringArg(input, "fix_version")
	if fixVersion == "" {
		return nil, fmt.Errorf("list_tickets: fix_version is required")
	}
	tickets, err := t.tracker.TicketsByFixVersion(ctx, fixVersion)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(tickets))
	for _, tk := range tickets {
		out = append(out, map[string]interface{}{"key": tk.Key, "summary": tk.Summary, "status": tk.Status})
	}
	return map[string]interface{}{"fix_version": fixVersion, "tickets": out}, nil
}

type getTicketTool struct{ tracker issuetracker.Tracker }

func (t *getTicketTool) Name() string { return "get_ticket" }

func (t *getTicketTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	key := stringArg(input, "key")
	if key == "" {
		return nil, fmt.Errorf("get_ticket: key is required")
	}
	tk, err := t.tracker.Ticket(ctx, key)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"key": tk.Key, "summary": tk.Summary, "status": tk.Status, "assignee": tk.Assignee}, nil
}

type searchPagesTool struct{ wiki wiki.Wiki }

func (t *searchPagesTool) Name() string { return "search_pages" }

func (t *searchPagesTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	space := stringArg(input, "space")
	if space == "" {
		return nil, fmt.Errorf("search_pages: space is required")
	}
	pages, err := t.wiki.SearchPages(ctx, space, stringArg(input, "title"))
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(pages))
	for _, p := range pages {
		out = append(out, map[string]interface{}{"id": p.ID, "title": p.Title, "url": p.URL})
	}
	return map[string]interface{}{"space": space, "pages": out}, nil
}
