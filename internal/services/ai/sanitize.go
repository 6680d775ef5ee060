package ai

import (
	"regexp"
	"strings"
	"time"

	"github.com/mailtasker/mailtasker/internal/models"
)

var dueDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func parentActionValues() []string {
	out := make([]string, len(models.ParentActions))
	for i, v := range models.ParentActions {
		out[i] = string(v)
	}
	return out
}

func studentActionValues() []string {
	out := make([]string, len(models.StudentActions))
	for i, v := range models.StudentActions {
		out[i] = string(v)
	}
	return out
}

func requirementLevelValues() []string {
	out := make([]string, len(models.RequirementLevels))
	for i, v := range models.RequirementLevels {
		out[i] = string(v)
	}
	return out
}

// SanitizeTasks converts raw decoded model output into task payloads that
// are safe to persist. It never fails: entries without a usable title are
// dropped, and any other field that does not pass validation is nulled out
// rather than rejecting the whole batch.
func SanitizeTasks(raw []any) []models.TaskPayload {
	out := make([]models.TaskPayload, 0, len(raw))
	for _, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		title, ok := obj["title"].(string)
		if !ok || strings.TrimSpace(title) == "" {
			continue
		}

		task := models.TaskPayload{
			Title:               title,
			Description:         cleanString(obj["description"]),
			DueDate:             cleanDueDate(obj["due_date"]),
			ConsequenceIfIgnore: cleanString(obj["consequence_if_ignore"]),
		}
		if v := cleanEnum(obj["parent_action"], parentActionValues()); v != nil {
			pa := models.ParentAction(*v)
			task.ParentAction = &pa
		}
		if v := cleanEnum(obj["parent_requirement_level"], requirementLevelValues()); v != nil {
			rl := models.RequirementLevel(*v)
			task.ParentRequirementLevel = &rl
		}
		if v := cleanEnum(obj["student_action"], studentActionValues()); v != nil {
			sa := models.StudentAction(*v)
			task.StudentAction = &sa
		}
		if v := cleanEnum(obj["student_requirement_level"], requirementLevelValues()); v != nil {
			rl := models.RequirementLevel(*v)
			task.StudentRequirementLevel = &rl
		}
		out = append(out, task)
	}
	return out
}

// cleanString accepts non-blank strings and nulls everything else.
func cleanString(v any) *string {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// cleanDueDate requires the YYYY-MM-DD shape and a calendar date that
// actually exists.
func cleanDueDate(v any) *string {
	s, ok := v.(string)
	if !ok || !dueDatePattern.MatchString(s) {
		return nil
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return nil
	}
	return &s
}

// cleanEnum accepts only exact members of the allowed set.
func cleanEnum(v any, allowed []string) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for _, a := range allowed {
		if s == a {
			return &s
		}
	}
	return nil
}
