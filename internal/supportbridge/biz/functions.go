package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/pkg/llm"
	"github.com/kart-io/support-bridge/pkg/utils/json"
)

// assignFunctionName is the one tool exposed to the model.
const assignFunctionName = "assign_conversation_to_human"

// toolDeclarations returns the closed set of functions declared on every
// completion request.
func toolDeclarations() []llm.Function {
	return []llm.Function{
		{
			Name:        assignFunctionName,
			Description: "Assigns the conversation to a human representative.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"enum":        []string{"unknown_answer", "customer_request"},
						"description": "The reason for the assignment.",
					},
				},
				"required": []string{"reason"},
			},
		},
	}
}

type assignArgs struct {
	Reason string `json:"reason"`
}

// executeFunctionCall runs the requested tool against the conversation and
// returns the textual result fed back to the model. Unknown names produce an
// error string result rather than a Go error, so the model can recover.
func executeFunctionCall(ctx context.Context, client SupportClient, convID string, call *llm.FunctionCall) string {
	if call.Name != assignFunctionName {
		return fmt.Sprintf("Error: function %s does not exist", call.Name)
	}

	var args assignArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		logger.Warnw("malformed function arguments", "conversation_id", convID, "error", err.Error())
	}
	logger.Infow("assigning conversation to human",
		"conversation_id", convID,
		"reason", args.Reason,
	)

	if err := client.AssignToHuman(ctx, convID); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return "Conversation assigned to a human representative."
}
