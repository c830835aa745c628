package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// artifactFiles names every file WriteArtifacts persists into the
// workspace root at session start.
const (
	nuggetFile    = "nugget.json"
	workspaceFile = "workspace.json"
	skillsFile    = "skills.json"
	rulesFile     = "rules.json"
	portalsFile   = "portals.json"
)

// WorkspaceMeta is the content of workspace.json: a small record of the
// session this workspace belongs to.
type WorkspaceMeta struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

// WriteArtifacts writes the persisted artifacts (nugget.json,
// workspace.json, skills.json, rules.json, portals.json) into root,
// using canonical JSON with 2-space indentation. Called once at session
// start when a user workspace is supplied.
func WriteArtifacts(root, sessionID string, spec *models.Spec) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(root, nuggetFile), spec); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(root, workspaceFile), WorkspaceMeta{SessionID: sessionID, Path: root}); err != nil {
		return err
	}
	skills := spec.Skills
	if skills == nil {
		skills = &models.Skills{}
	}
	if err := writeJSON(filepath.Join(root, skillsFile), skills); err != nil {
		return err
	}
	rules := spec.Rules
	if rules == nil {
		rules = []models.Rule{}
	}
	if err := writeJSON(filepath.Join(root, rulesFile), rules); err != nil {
		return err
	}
	portals := spec.Portals
	if portals == nil {
		portals = []models.Portal{}
	}
	if err := writeJSON(filepath.Join(root, portalsFile), portals); err != nil {
		return err
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
