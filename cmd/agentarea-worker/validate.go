package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/agentarea/agentarea/pkg/conditions"
	"github.com/agentarea/agentarea/pkg/models"
	cli "github.com/urfave/cli/v3"
)

var errInvalidConditions = errors.New("conditions are invalid")

func NewValidateConditionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate-conditions",
		Usage: "Check the conditions of a trigger or a bare condition JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the trigger or condition JSON file",
				Required: true,
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			data, err := os.ReadFile(command.String("file"))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", command.String("file"), err)
			}

			return validateConditions(command.Root().Writer, data)
		},
	}
}

// validateConditions prints one line per problem, or "ok" when the
// condition is well formed.
func validateConditions(w io.Writer, data []byte) error {
	condition, err := decodeCondition(data)
	if err != nil {
		return err
	}

	problems := conditions.ValidateConditionSyntax(condition)
	if len(problems) == 0 {
		_, err := fmt.Fprintln(w, "ok")

		return err
	}

	for _, problem := range problems {
		if _, err := fmt.Fprintln(w, problem); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %d problem(s)", errInvalidConditions, len(problems))
}

// decodeCondition accepts a trigger definition, whose conditions are
// checked, or a bare condition.
func decodeCondition(data []byte) (*models.Condition, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if _, isTrigger := fields["trigger_type"]; isTrigger {
		var trigger models.TriggerDefinition
		if err := json.Unmarshal(data, &trigger); err != nil {
			return nil, fmt.Errorf("failed to parse trigger: %w", err)
		}

		return trigger.Conditions, nil
	}

	var condition models.Condition
	if err := json.Unmarshal(data, &condition); err != nil {
		return nil, fmt.Errorf("failed to parse condition: %w", err)
	}

	return &condition, nil
}
