// Package nugget implements SpecValidator: normalizing and capping an
// incoming NuggetSpec, returning either a canonical spec or a list of
// path/message validation errors.
package nugget

import (
	"strconv"
	"strings"

	"github.com/elisalabs/nugget-orchestrator/internal/common/constants"
	"github.com/elisalabs/nugget-orchestrator/internal/models"
)

// DefaultGoal / DefaultType are the literal fallbacks spec.md §4.2
// mandates for missing fields when they are later interpolated into a
// prompt. Validate applies DefaultType to the canonical spec when
// nugget.type is empty; a missing goal is a validation error instead.
// PromptAssembler applies the same fallback literals at render time.
// Length caps are enforced here, at the boundary.
const (
	DefaultGoal = "Not specified"
	DefaultType = "software"
)

// Validate normalizes spec and returns either a canonical copy or a
// non-empty list of validation errors. It never mutates the input.
func Validate(spec *models.Spec) (*models.Spec, []models.ValidationError) {
	if spec == nil {
		return nil, []models.ValidationError{{Path: "nugget", Message: "spec is required"}}
	}

	var errs []models.ValidationError

	goal := strings.TrimSpace(spec.Nugget.Goal)
	if goal == "" {
		errs = append(errs, models.ValidationError{Path: "nugget.goal", Message: "goal is required"})
	} else if len(goal) > constants.MaxGoalLen {
		errs = append(errs, models.ValidationError{
			Path:    "nugget.goal",
			Message: "goal exceeds maximum length of " + strconv.Itoa(constants.MaxGoalLen),
		})
	}

	if len(spec.Nugget.Description) > constants.MaxDescriptionLen {
		errs = append(errs, models.ValidationError{
			Path:    "nugget.description",
			Message: "description exceeds maximum length of " + strconv.Itoa(constants.MaxDescriptionLen),
		})
	}

	for i, r := range spec.Requirements {
		if strings.TrimSpace(r.Description) == "" {
			errs = append(errs, models.ValidationError{
				Path:    "requirements[" + strconv.Itoa(i) + "].description",
				Message: "description is required",
			})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	canonical := *spec
	canonical.Nugget.Goal = goal
	if strings.TrimSpace(canonical.Nugget.Type) == "" {
		canonical.Nugget.Type = DefaultType
	}
	return &canonical, nil
}

