package api

import (
	"github.com/elisalabs/nugget-orchestrator/internal/models"
	v1 "github.com/elisalabs/nugget-orchestrator/pkg/api/v1"
)

func specFromDTO(d v1.SpecDTO) *models.Spec {
	spec := &models.Spec{
		Nugget: models.NuggetInfo{
			Goal:        d.Nugget.Goal,
			Type:        d.Nugget.Type,
			Description: d.Nugget.Description,
		},
		Workflow: models.Workflow{TestingEnabled: d.Workflow.TestingEnabled},
	}
	for _, r := range d.Requirements {
		spec.Requirements = append(spec.Requirements, models.Requirement{Type: r.Type, Description: r.Description})
	}
	if d.Style != nil {
		spec.Style = &models.Style{
			Visual:      d.Style.Visual,
			Personality: d.Style.Personality,
			Colors:      d.Style.Colors,
			Theme:       d.Style.Theme,
			Tone:        d.Style.Tone,
		}
	}
	if d.Skills != nil {
		spec.Skills = &models.Skills{
			Feature: skillsFromDTO(d.Skills.Feature),
			Style:   skillsFromDTO(d.Skills.Style),
		}
	}
	for _, r := range d.Rules {
		spec.Rules = append(spec.Rules, models.Rule{Name: r.Name, Body: r.Body, Trigger: r.Trigger})
	}
	for _, p := range d.Portals {
		spec.Portals = append(spec.Portals, models.Portal{Name: p.Name, Description: p.Description})
	}
	for _, dev := range d.Devices {
		spec.Devices = append(spec.Devices, models.Device{ID: dev.ID, Kind: dev.Kind})
	}
	for _, g := range d.Workflow.Gates {
		spec.Workflow.Gates = append(spec.Workflow.Gates, models.GateTrigger{Kind: g.Kind})
	}
	if d.Deployment != nil {
		spec.Deployment = &models.Deployment{Target: d.Deployment.Target}
	}
	return spec
}

func skillsFromDTO(in []v1.SkillEntryDTO) []models.SkillEntry {
	var out []models.SkillEntry
	for _, s := range in {
		out = append(out, models.SkillEntry{Name: s.Name, Body: s.Body, Categories: s.Categories})
	}
	return out
}

func sessionToDTO(s *models.Session) v1.SessionResponse {
	resp := v1.SessionResponse{
		ID:            s.ID,
		Phase:         string(s.Phase),
		WorkspacePath: s.WorkspacePath,
		CreatedAt:     s.CreatedAt,
	}
	for _, t := range s.Tasks {
		resp.Tasks = append(resp.Tasks, v1.TaskDTO{
			ID:                 t.ID,
			Name:               t.Name,
			Description:        t.Description,
			Status:             string(t.Status),
			AgentName:          t.AgentName,
			AcceptanceCriteria: t.AcceptanceCriteria,
			Dependencies:       t.Dependencies,
			OutputSummary:      t.OutputSummary,
			RetryCount:         t.RetryCount,
		})
	}
	for _, a := range s.Agents {
		resp.Agents = append(resp.Agents, v1.AgentDTO{Name: a.Name, Role: string(a.Role), Persona: a.Persona})
	}
	return resp
}
