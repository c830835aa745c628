package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

func baseCtx() Context {
	task := &models.Task{ID: "t1", Name: "Build UI", Description: "Build the todo UI"}
	agent := &models.Agent{Name: "builder-1", Role: models.RoleBuilder, Persona: "senior engineer"}
	spec := &models.Spec{Nugget: models.NuggetInfo{Goal: "todo app", Type: "software"}}
	return Context{
		Task:     task,
		Agent:    agent,
		Spec:     spec,
		TaskByID: map[string]*models.Task{"t1": task},
		MaxTurns: 10,
	}
}

func TestSanitizationStripsHeaderButKeepsH1(t *testing.T) {
	ctx := baseCtx()
	ctx.Agent.Persona = "## X"
	result := Assemble(ctx)
	assert.Contains(t, result.SystemPrompt, "X")
	assert.NotContains(t, result.SystemPrompt, "## X")

	ctx.Agent.Persona = "# Y"
	result = Assemble(ctx)
	assert.Contains(t, result.SystemPrompt, "# Y")
}

func TestSanitizationStripsCodeFenceAndHTML(t *testing.T) {
	ctx := baseCtx()
	ctx.Agent.Persona = "before ```rm -rf /``` <script>evil()</script> after"
	result := Assemble(ctx)
	assert.NotContains(t, result.SystemPrompt, "rm -rf")
	assert.NotContains(t, result.SystemPrompt, "<script>")
}

func TestMissingFieldsDefault(t *testing.T) {
	ctx := baseCtx()
	ctx.Spec.Nugget.Goal = ""
	ctx.Spec.Nugget.Type = ""
	ctx.Spec.Nugget.Description = ""
	result := Assemble(ctx)
	assert.Contains(t, result.SystemPrompt, "Not specified")
	assert.Contains(t, result.SystemPrompt, "software")
}

func TestSkillRuleTagsNeverInSystemPrompt(t *testing.T) {
	ctx := baseCtx()
	ctx.Spec.Skills = &models.Skills{Feature: []models.SkillEntry{{Name: "s1", Body: "do X"}}}
	ctx.Spec.Rules = []models.Rule{{Name: "r1", Body: "never Y", Trigger: "on_task_complete"}}
	result := Assemble(ctx)
	assert.NotContains(t, result.SystemPrompt, "<kid_skill")
	assert.NotContains(t, result.SystemPrompt, "<kid_rule")
	assert.Contains(t, result.UserPrompt, "<kid_skill")
	assert.Contains(t, result.UserPrompt, "<kid_rule")
}

func TestEmptyWorkspaceNote(t *testing.T) {
	ctx := baseCtx()
	result := Assemble(ctx)
	assert.Contains(t, result.UserPrompt, "The workspace is empty.")
}

func TestFileManifestListsFiles(t *testing.T) {
	ctx := baseCtx()
	ctx.WorkspaceFiles = []string{"main.go", "go.mod"}
	result := Assemble(ctx)
	assert.Contains(t, result.UserPrompt, "go.mod")
	assert.Contains(t, result.UserPrompt, "main.go")
	assert.NotContains(t, result.UserPrompt, "The workspace is empty.")
}

func TestPredecessorSummaryCapping(t *testing.T) {
	ctx := baseCtx()
	long := strings.Repeat("word ", 600)
	ctx.Task.Dependencies = []string{"p1"}
	ctx.TaskByID["p1"] = &models.Task{ID: "p1"}
	ctx.PredecessorSummaries = map[string]string{"p1": long}

	result := Assemble(ctx)
	assert.Contains(t, result.UserPrompt, "(omitted for brevity)")
}

func TestPredecessorCombinedCapOverflow(t *testing.T) {
	ctx := baseCtx()
	var deps []string
	for i := 0; i < 6; i++ {
		id := "p" + string(rune('0'+i))
		deps = append(deps, id)
		ctx.TaskByID[id] = &models.Task{ID: id}
	}
	ctx.Task.Dependencies = deps
	summaries := make(map[string]string)
	for _, id := range deps {
		summaries[id] = strings.Repeat("word ", 450) // under per-summary cap, but 6*450 > 2000 combined
	}
	ctx.PredecessorSummaries = summaries

	result := Assemble(ctx)
	assert.Contains(t, result.UserPrompt, "remaining predecessors omitted for brevity")
}

func TestRoleSpecificFormatterSelection(t *testing.T) {
	ctx := baseCtx()
	ctx.Agent.Role = models.RoleTester
	result := Assemble(ctx)
	assert.Contains(t, result.UserPrompt, "Tester Focus")

	ctx.Agent.Role = models.RoleReviewer
	result = Assemble(ctx)
	assert.Contains(t, result.UserPrompt, "Reviewer Focus")
}
