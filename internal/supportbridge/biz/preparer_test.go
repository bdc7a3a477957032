package biz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/pkg/llm"
)

func newTestPreparer(client SupportClient) *Preparer {
	return NewPreparer(client, &PreparerConfig{
		AdminID:      42,
		AdminName:    "Fin",
		HistoryLimit: 10,
	})
}

func TestPrepareLabelsAndRoles(t *testing.T) {
	conv := &model.Conversation{
		ID: "c1",
		Source: model.ConversationSource{
			Body:        "<p>How do I reset my password?</p>",
			DeliveredAs: "customer_initiated",
			Author:      model.Author{Type: "user"},
		},
		Parts: model.ConversationParts{
			TotalCount: 3,
			Parts: []model.ConversationPart{
				{ID: "p1", PartType: "comment", Body: "<p>Click the reset link.</p>", Author: model.Author{Type: "admin", ID: "42"}},
				{ID: "p2", PartType: "comment", Body: "<p>It did not work.</p>", Author: model.Author{Type: "lead", ID: "7"}},
				{ID: "p3", PartType: "comment", Body: "<p>Let me check.</p>", Author: model.Author{Type: "admin", ID: "9"}},
			},
		},
	}

	messages, used, err := newTestPreparer(newStubClient()).Prepare(context.Background(), conv)
	require.NoError(t, err)
	assert.Same(t, conv, used)

	require.Len(t, messages, 4)
	assert.Equal(t, llm.RoleUser, messages[0].Role)
	assert.Equal(t, "User: <p>How do I reset my password?</p>", messages[0].Content)
	assert.Equal(t, llm.RoleAssistant, messages[1].Role)
	assert.Equal(t, "<p>Click the reset link.</p>", messages[1].Content)
	assert.Equal(t, llm.RoleUser, messages[2].Role)
	assert.Equal(t, "Visitor: <p>It did not work.</p>", messages[2].Content)
	assert.Equal(t, "Rep: <p>Let me check.</p>", messages[3].Content)
}

func TestPrepareSkipsNoise(t *testing.T) {
	conv := &model.Conversation{
		ID: "c2",
		Source: model.ConversationSource{
			Body:        "<p>Welcome! Ask me anything.</p>",
			DeliveredAs: "automated",
			Author:      model.Author{Type: "bot"},
		},
		Parts: model.ConversationParts{
			TotalCount: 4,
			Parts: []model.ConversationPart{
				{ID: "p1", PartType: "comment", Body: "<p>Operator chatter</p>", Author: model.Author{Type: "bot", ID: "1"}},
				{ID: "p2", PartType: "note", Body: "<p>CLOSE CONVERSATION</p>", Author: model.Author{Type: "admin", ID: "42"}},
				{ID: "p3", PartType: "assignment", Body: "", Author: model.Author{Type: "admin", ID: "9"}},
				{ID: "p4", PartType: "comment", Body: "<p>hi there</p>", Author: model.Author{Type: "user", ID: "5"}},
			},
		},
	}

	messages, _, err := newTestPreparer(newStubClient()).Prepare(context.Background(), conv)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, "User: <p>hi there</p>", messages[0].Content)
}

func TestPrepareStripsOwnDisclaimer(t *testing.T) {
	p := newTestPreparer(newStubClient())
	conv := &model.Conversation{
		ID: "c3",
		Parts: model.ConversationParts{
			TotalCount: 1,
			Parts: []model.ConversationPart{
				{
					ID:       "p1",
					PartType: "comment",
					Body:     "<p>Try restarting.</p>" + disclaimer("Fin"),
					Author:   model.Author{Type: "admin", ID: "42"},
				},
			},
		},
	}

	messages, _, err := p.Prepare(context.Background(), conv)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, llm.RoleAssistant, messages[0].Role)
	assert.NotContains(t, messages[0].Content, "experimental AI chatbot")
	assert.Contains(t, messages[0].Content, "Try restarting.")
}

func TestPrepareTruncatesHistory(t *testing.T) {
	parts := make([]model.ConversationPart, 13)
	for i := range parts {
		parts[i] = model.ConversationPart{
			ID:       fmt.Sprintf("p%d", i),
			PartType: "comment",
			Body:     fmt.Sprintf("<p>message %d</p>", i),
			Author:   model.Author{Type: "user", ID: "5"},
		}
	}
	conv := &model.Conversation{
		ID:    "c4",
		Parts: model.ConversationParts{TotalCount: len(parts), Parts: parts},
	}

	messages, _, err := newTestPreparer(newStubClient()).Prepare(context.Background(), conv)
	require.NoError(t, err)

	// Marker plus the ten newest parts.
	require.Len(t, messages, 11)
	assert.Equal(t, truncationMarker(3), messages[0].Content)
	assert.Equal(t, "User: <p>message 3</p>", messages[1].Content)
	assert.Equal(t, "User: <p>message 12</p>", messages[10].Content)
}

func TestPrepareRefetchesPartialSnapshot(t *testing.T) {
	client := newStubClient()
	full := &model.Conversation{
		ID: "c5",
		Parts: model.ConversationParts{
			TotalCount: 2,
			Parts: []model.ConversationPart{
				{ID: "p1", PartType: "comment", Body: "<p>first</p>", Author: model.Author{Type: "user", ID: "5"}},
				{ID: "p2", PartType: "comment", Body: "<p>second</p>", Author: model.Author{Type: "user", ID: "5"}},
			},
		},
	}
	client.conversations["c5"] = full

	snapshot := &model.Conversation{
		ID: "c5",
		Parts: model.ConversationParts{
			TotalCount: 2,
			Parts:      full.Parts.Parts[1:],
		},
	}

	messages, used, err := newTestPreparer(client).Prepare(context.Background(), snapshot)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, "User: <p>first</p>", messages[0].Content)
	assert.Equal(t, "p2", used.LastExternalPartID())
	assert.NotSame(t, snapshot, used)
}

func TestTranscriptText(t *testing.T) {
	got := transcriptText([]llm.Message{
		{Role: llm.RoleUser, Content: "User: hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, "User: hi\nRep: hello", got)
}
