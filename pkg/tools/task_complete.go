package tools

import "context"

const TaskCompleteName = "task_complete"

// TaskComplete lets the model declare the task finished. Its result becomes
// the final response of the execution.
type TaskComplete struct{}

func (TaskComplete) Name() string { return TaskCompleteName }

func (TaskComplete) Description() string {
	return "Call this when the task is finished. Pass the final answer for the user as result."
}

func (TaskComplete) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{
				"description": "The final answer or a summary of what was done.",
			},
		},
		"required": []any{"result"},
	}
}

func (TaskComplete) Execute(_ context.Context, args map[string]any) (Result, error) {
	return Result{Success: true, Completed: true, Result: args["result"]}, nil
}
