package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// TaskListSchema returns the JSON schema the model is required to follow.
// The same document is sent to the provider as the response format and
// compiled locally to cross-check what actually came back.
func TaskListSchema() map[string]any {
	enumVals := func(ss []string) []any {
		out := make([]any, len(ss))
		for i, s := range ss {
			out[i] = s
		}
		return out
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{
							"type":        "string",
							"maxLength":   30,
							"description": "Short imperative summary of the task",
						},
						"description": map[string]any{
							"type":        []any{"string", "null"},
							"description": "Extra detail from the email, if any",
						},
						"due_date": map[string]any{
							"type":        []any{"string", "null"},
							"pattern":     `^\d{4}-\d{2}-\d{2}$`,
							"description": "Due date in YYYY-MM-DD, null when the email gives none",
						},
						"consequence_if_ignore": map[string]any{
							"type":        []any{"string", "null"},
							"description": "What happens if the task is skipped",
						},
						"parent_action": map[string]any{
							"type": []any{"string", "null"},
							"enum": enumVals(parentActionValues()),
						},
						"parent_requirement_level": map[string]any{
							"type": []any{"string", "null"},
							"enum": enumVals(requirementLevelValues()),
						},
						"student_action": map[string]any{
							"type": []any{"string", "null"},
							"enum": enumVals(studentActionValues()),
						},
						"student_requirement_level": map[string]any{
							"type": []any{"string", "null"},
							"enum": enumVals(requirementLevelValues()),
						},
					},
					"required":             []any{"title"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"tasks"},
		"additionalProperties": false,
	}
}

var compileTaskListSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(TaskListSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task list schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse task list schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("task_list.json", doc); err != nil {
		return nil, fmt.Errorf("failed to register task list schema: %w", err)
	}
	return compiler.Compile("task_list.json")
})

// ValidateTaskList checks model output against the task list schema.
// Violations are advisory: the sanitizer is the enforcement layer, this
// exists so schema drift shows up in logs rather than silently.
func ValidateTaskList(content string) error {
	schema, err := compileTaskListSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(content)))
	if err != nil {
		return fmt.Errorf("model output is not valid JSON: %w", err)
	}
	return schema.Validate(inst)
}
