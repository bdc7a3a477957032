package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/internal/pkg/htmlutil"
	"github.com/kart-io/support-bridge/internal/supportbridge/metrics"
	"github.com/kart-io/support-bridge/pkg/llm"
)

// SupportClient is the support platform surface the pipeline needs.
type SupportClient interface {
	// ListArticles fetches the full help-center article listing.
	ListArticles(ctx context.Context) ([]model.ArticleInput, error)

	// GetConversation fetches a conversation with full part history.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	// Reply posts an admin reply; asNote makes it an internal note.
	Reply(ctx context.Context, convID, body string, asNote bool) error

	// CloseConversation closes the conversation.
	CloseConversation(ctx context.Context, convID string) error

	// Unassign removes the bot assignment.
	Unassign(ctx context.Context, convID string) error

	// AssignToHuman hands the conversation to the inbox assignment rules.
	AssignToHuman(ctx context.Context, convID string) error
}

// maxToolRounds bounds function-call round trips per conversation event.
const maxToolRounds = 3

// OrchestratorConfig configures the reply orchestrator.
type OrchestratorConfig struct {
	// Company is the name used in the reply instructions.
	Company string
	// AdminID is the bot's reply identity.
	AdminID int64
	// AdminName is the bot's display name.
	AdminName string
	// TestMode downgrades replies to internal notes and overrides the
	// assignment gate.
	TestMode bool
}

// Orchestrator drives a conversation event through preparation, retrieval,
// completion, and dispatch.
type Orchestrator struct {
	client     SupportClient
	preparer   *Preparer
	retriever  *Retriever
	completion *CompletionEngine
	config     *OrchestratorConfig
	metrics    *metrics.Metrics
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	client SupportClient,
	preparer *Preparer,
	retriever *Retriever,
	completion *CompletionEngine,
	config *OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		client:     client,
		preparer:   preparer,
		retriever:  retriever,
		completion: completion,
		config:     config,
		metrics:    metrics.Get(),
	}
}

// HandleEvent processes one webhook notification end to end. Suppressions
// are normal outcomes, not errors; an error return means the pipeline could
// not finish and the failure should be logged by the dispatcher.
func (o *Orchestrator) HandleEvent(ctx context.Context, envelope *model.WebhookEnvelope) error {
	if !envelope.IsConversation() {
		logger.Debugw("ignoring non-conversation webhook", "topic", envelope.Topic)
		return nil
	}
	conv := &envelope.Data.Item.Conversation
	o.metrics.RecordConversation()

	// Only unassigned conversations or the bot's own belong to the bot.
	if !conv.Unassigned() && !conv.AssignedTo(o.config.AdminID) {
		if !o.config.TestMode {
			o.metrics.RecordSuppression(metrics.SuppressAssigned)
			logger.Infow("conversation assigned elsewhere, skipping",
				"conversation_id", conv.ID,
				"assignee_id", conv.AdminAssigneeID,
			)
			return nil
		}
		logger.Warnw("conversation assigned elsewhere, proceeding in test mode",
			"conversation_id", conv.ID,
			"assignee_id", conv.AdminAssigneeID,
		)
	}

	messages, used, err := o.preparer.Prepare(ctx, conv)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation %s: %w", conv.ID, err)
	}
	if len(messages) == 0 {
		logger.Infow("nothing to respond to", "conversation_id", conv.ID)
		return nil
	}
	baseline := used.LastExternalPartID()

	transcript := transcriptText(messages)

	// Condense the chat into one question for better search; fall back to
	// the raw transcript when no clear question emerges.
	searchQuery := transcript
	if question, ok := o.completion.Condense(ctx, transcript); ok {
		searchQuery = question
	}

	sections, err := o.retriever.Retrieve(ctx, searchQuery)
	if err != nil {
		return fmt.Errorf("failed to retrieve context for conversation %s: %w", conv.ID, err)
	}
	sections = fitBudget(sections, transcript, contextBudget(o.completion.Model()))

	sequence := make([]llm.Message, 0, len(messages)+2)
	sequence = append(sequence,
		llm.Message{Role: llm.RoleSystem, Content: systemPrompt(o.config.Company)},
		llm.Message{Role: llm.RoleSystem, Content: contextPrompt(sections)},
	)
	sequence = append(sequence, messages...)

	reply, sequence := o.completion.Complete(ctx, sequence, toolDeclarations())

	// Tool round trips: dispatch any accompanying content first, feed the
	// function result back, and complete again without re-retrieval.
	for round := 0; reply.FunctionCall != nil && round < maxToolRounds; round++ {
		if body := htmlutil.Normalize(reply.Content); body != "" {
			if err := o.send(ctx, conv.ID, body, true); err != nil {
				return err
			}
		}
		result := executeFunctionCall(ctx, o.client, conv.ID, reply.FunctionCall)
		o.metrics.RecordEscalation()
		sequence = append(sequence, llm.Message{
			Role:    llm.RoleFunction,
			Name:    reply.FunctionCall.Name,
			Content: result,
		})
		reply, sequence = o.completion.Complete(ctx, sequence, toolDeclarations())
	}

	action := DecideAction(reply.Content)

	// Anything the customer said while we were generating makes the answer
	// stale; dispatching it would talk past them.
	if action.Kind != ActionSkip {
		fresh, err := o.client.GetConversation(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("failed to re-check conversation %s: %w", conv.ID, err)
		}
		if fresh.LastExternalPartID() != baseline {
			o.metrics.RecordSuppression(metrics.SuppressStale)
			logger.Infow("conversation moved on, discarding reply",
				"conversation_id", conv.ID,
				"action", action.Kind.String(),
			)
			return nil
		}
		conv = fresh
	}

	return o.dispatch(ctx, conv, action)
}

// dispatch executes the decided action against the platform.
func (o *Orchestrator) dispatch(ctx context.Context, conv *model.Conversation, action PendingAction) error {
	logger.Infow("dispatching action",
		"conversation_id", conv.ID,
		"action", action.Kind.String(),
	)

	switch action.Kind {
	case ActionSkip:
		o.metrics.RecordSuppression(metrics.SuppressSkip)
		return nil

	case ActionClose:
		if body := htmlutil.Normalize(action.Body); body != "" {
			if err := o.send(ctx, conv.ID, body, true); err != nil {
				return err
			}
		}
		o.metrics.RecordClose()
		if o.config.TestMode {
			return o.client.Reply(ctx, conv.ID, closeNote, true)
		}
		return o.client.CloseConversation(ctx, conv.ID)

	case ActionEscalate:
		body := htmlutil.Normalize(action.Body)
		switch {
		case body != "":
			if err := o.send(ctx, conv.ID, body, true); err != nil {
				return err
			}
		case conv.AssignedTo(o.config.AdminID):
			if err := o.send(ctx, conv.ID, unknownAnswerMessage, false); err != nil {
				return err
			}
		}
		o.metrics.RecordEscalation()
		return o.client.Unassign(ctx, conv.ID)

	default:
		body := htmlutil.Normalize(action.Body)
		if body == "" {
			logger.Infow("empty reply after sanitizing, nothing sent", "conversation_id", conv.ID)
			return nil
		}
		return o.send(ctx, conv.ID, body, true)
	}
}

// send posts a reply, optionally suffixed with the experimental-bot
// disclaimer. Test mode downgrades it to an internal note.
func (o *Orchestrator) send(ctx context.Context, convID, body string, withDisclaimer bool) error {
	if withDisclaimer {
		body += disclaimer(o.config.AdminName)
	}
	if err := o.client.Reply(ctx, convID, body, o.config.TestMode); err != nil {
		return fmt.Errorf("failed to send reply to conversation %s: %w", convID, err)
	}
	o.metrics.RecordReply(o.config.TestMode)
	return nil
}

// fitBudget truncates the retrieved context so transcript plus context stays
// inside the model's character budget. The transcript always wins; context
// gets an ellipsis when cut.
func fitBudget(sections, transcript string, budget int) string {
	if len(transcript)+len(sections) <= budget {
		return sections
	}
	cut := budget - len(transcript)
	if cut < 0 {
		cut = 0
	}
	return sections[:cut] + "..."
}
