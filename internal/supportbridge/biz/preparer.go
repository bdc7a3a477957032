package biz

import (
	"context"
	"strconv"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/internal/pkg/htmlutil"
	"github.com/kart-io/support-bridge/pkg/llm"
)

// PreparerConfig configures transcript preparation.
type PreparerConfig struct {
	// AdminID is the bot's reply identity.
	AdminID int64
	// AdminName is the bot's display name, used to strip its disclaimer from
	// quoted history.
	AdminName string
	// HistoryLimit caps how many conversation parts enter the transcript.
	HistoryLimit int
}

// Preparer turns a conversation snapshot into the chat transcript handed to
// the completion engine.
type Preparer struct {
	client SupportClient
	config *PreparerConfig
}

// NewPreparer creates a Preparer.
func NewPreparer(client SupportClient, config *PreparerConfig) *Preparer {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 10
	}
	return &Preparer{client: client, config: config}
}

// Prepare builds the transcript. The bot's own replies become assistant
// messages; everything else becomes a labeled user message in chronological
// order. When the snapshot reports more parts than it carries, the full
// conversation is re-fetched first; the returned conversation is the one the
// transcript was built from, so callers can take a consistent staleness
// baseline.
func (p *Preparer) Prepare(ctx context.Context, conv *model.Conversation) ([]llm.Message, *model.Conversation, error) {
	var messages []llm.Message

	// The automated opener is boilerplate, not customer intent.
	if conv.Source.DeliveredAs != "automated" && strings.TrimSpace(conv.Source.Body) != "" {
		label := authorLabel(conv.Source.Author.Type)
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: label + ": " + conv.Source.Body,
		})
	}

	if conv.Parts.TotalCount == 0 {
		return messages, conv, nil
	}

	parts := conv.Parts.Parts
	if conv.Parts.TotalCount > len(parts) {
		full, err := p.client.GetConversation(ctx, conv.ID)
		if err != nil {
			return nil, nil, err
		}
		conv = full
		parts = full.Parts.Parts
	}

	withBody := parts[:0:0]
	for _, part := range parts {
		if strings.TrimSpace(part.Body) != "" {
			withBody = append(withBody, part)
		}
	}

	if dropped := len(withBody) - p.config.HistoryLimit; dropped > 0 {
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: truncationMarker(dropped),
		})
		withBody = withBody[dropped:]
	}

	adminID := strconv.FormatInt(p.config.AdminID, 10)
	for _, part := range withBody {
		// Operator bot chatter adds nothing the model should react to.
		if part.Author.Type == "bot" {
			continue
		}
		// The bot's own notes are control artifacts, not conversation.
		if part.PartType == "note" && part.Author.ID == adminID {
			continue
		}

		body := p.stripDisclaimer(part.Body)
		body = htmlutil.Normalize(body)
		if body == "" {
			continue
		}

		if part.Author.Type == "admin" && part.Author.ID == adminID {
			messages = append(messages, llm.Message{
				Role:    llm.RoleAssistant,
				Content: body,
			})
			continue
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleUser,
			Content: authorLabel(part.Author.Type) + ": " + body,
		})
	}

	if len(messages) == 0 {
		logger.Debugw("prepared empty transcript", "conversation_id", conv.ID)
	}
	return messages, conv, nil
}

// stripDisclaimer removes the bot disclaimer in both the exact form it was
// sent and the bare inner text, since the platform sometimes rewrites the
// surrounding HTML.
func (p *Preparer) stripDisclaimer(body string) string {
	body = strings.ReplaceAll(body, disclaimer(p.config.AdminName), "")
	body = strings.ReplaceAll(body, disclaimerInner(p.config.AdminName), "")
	return body
}

func authorLabel(authorType string) string {
	if label, ok := authorLabels[authorType]; ok {
		return label
	}
	return "User"
}

// transcriptText flattens prepared messages into the plain text form used
// for condensing and budget accounting.
func transcriptText(messages []llm.Message) string {
	lines := make([]string, len(messages))
	for i, msg := range messages {
		if msg.Role == llm.RoleAssistant {
			lines[i] = "Rep: " + msg.Content
			continue
		}
		lines[i] = msg.Content
	}
	return strings.Join(lines, "\n")
}
