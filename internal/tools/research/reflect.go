package research

import (
	"context"
	"fmt"

	rerr "prospect/internal/errors"
	"prospect/internal/logging"
	"prospect/internal/tools"
)

// ReflectTool returns the reflection tool. Workers call it between searches
// to record what they learned and what gap to close next. It makes no
// external call and cannot time out.
func ReflectTool() *tools.Tool {
	return &tools.Tool{
		Name:        NameReflect,
		Description: "Record a strategic reflection on research progress and plan the next step",
		Category:    tools.CategoryReflect,
		Priority:    60,
		Execute:     executeReflect,
		Schema: tools.ToolSchema{
			Required: []string{"reflection"},
			Properties: map[string]tools.Property{
				"reflection": {
					Type:        "string",
					Description: "Analysis of findings so far and the plan for the next step",
				},
			},
		},
	}
}

func executeReflect(ctx context.Context, args map[string]any) (string, error) {
	reflection, _ := args["reflection"].(string)
	if reflection == "" {
		return "", rerr.NewToolError(NameReflect, rerr.ClassToolRejected, fmt.Errorf("reflection is required"))
	}

	logging.ToolsDebug("reflect: %d chars", len(reflection))
	return fmt.Sprintf("Reflection recorded: %s", reflection), nil
}
