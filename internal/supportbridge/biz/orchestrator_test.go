package biz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/support-bridge/internal/model"
	"github.com/kart-io/support-bridge/pkg/llm"
)

func testConversation(assignee int64) model.Conversation {
	return model.Conversation{
		ID:              "conv-1",
		State:           "open",
		AdminAssigneeID: assignee,
		Source: model.ConversationSource{
			Body:        "<p>How do I reset my password?</p>",
			DeliveredAs: "customer_initiated",
			Author:      model.Author{Type: "user", ID: "5"},
		},
		Parts: model.ConversationParts{
			TotalCount: 1,
			Parts: []model.ConversationPart{
				{ID: "p1", PartType: "comment", Body: "<p>It says invalid token.</p>", Author: model.Author{Type: "user", ID: "5"}},
			},
		},
	}
}

func testEnvelope(conv model.Conversation) *model.WebhookEnvelope {
	return &model.WebhookEnvelope{
		Topic: "conversation.user.replied",
		Data: model.WebhookData{
			Item: model.WebhookEnvelopeItem{Type: "conversation", Conversation: conv},
		},
	}
}

// newTestOrchestrator wires the pipeline over in-memory stores with one
// indexed section.
func newTestOrchestrator(t *testing.T, client *stubClient, chat *stubChat, testMode bool) *Orchestrator {
	t.Helper()
	st := newMemStore()
	idx := newMemIndex()
	seedSection(t, st, idx, "aaa", "<p>Use the reset link in your email.</p>")

	preparer := NewPreparer(client, &PreparerConfig{AdminID: 42, AdminName: "Fin", HistoryLimit: 10})
	retriever := NewRetriever(st, idx, &stubEmbedder{}, nil)
	completion := NewCompletionEngine(chat, &CompletionConfig{MaxAttempts: 2, Backoff: time.Millisecond})
	return NewOrchestrator(client, preparer, retriever, completion, &OrchestratorConfig{
		Company:   "Acme",
		AdminID:   42,
		AdminName: "Fin",
		TestMode:  testMode,
	})
}

func TestHandleEventReplies(t *testing.T) {
	client := newStubClient()
	conv := testConversation(0)
	client.conversations[conv.ID] = &conv

	chat := &stubChat{turns: []chatTurn{
		{reply: assistant("How do I reset my password?")},
		{reply: assistant("<p>Use the reset link in your email.</p>")},
	}}
	o := newTestOrchestrator(t, client, chat, false)

	require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0].Body, "Use the reset link")
	assert.Contains(t, client.sent[0].Body, disclaimer("Fin"))
	assert.False(t, client.sent[0].AsNote)
	assert.Empty(t, client.closed)
	assert.Empty(t, client.unassigned)

	// The completion request carries instructions, context, then the chat.
	final := chat.requests[1]
	require.GreaterOrEqual(t, len(final), 3)
	assert.Equal(t, llm.RoleSystem, final[0].Role)
	assert.Contains(t, final[0].Content, "Acme")
	assert.Contains(t, final[1].Content, "Help article sections:")
	assert.Contains(t, final[1].Content, "reset link")
}

func TestHandleEventIgnoresNonConversation(t *testing.T) {
	client := newStubClient()
	chat := &stubChat{}
	o := newTestOrchestrator(t, client, chat, false)

	envelope := &model.WebhookEnvelope{
		Topic: "ping",
		Data:  model.WebhookData{Item: model.WebhookEnvelopeItem{Type: "ping"}},
	}
	require.NoError(t, o.HandleEvent(context.Background(), envelope))

	assert.Empty(t, chat.requests)
	assert.Empty(t, client.sent)
}

func TestHandleEventSkipsAssignedConversations(t *testing.T) {
	client := newStubClient()
	conv := testConversation(77)
	chat := &stubChat{}
	o := newTestOrchestrator(t, client, chat, false)

	require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

	assert.Empty(t, chat.requests)
	assert.Empty(t, client.sent)
}

func TestHandleEventTestModeOverridesAssignmentGate(t *testing.T) {
	client := newStubClient()
	conv := testConversation(77)
	client.conversations[conv.ID] = &conv

	chat := &stubChat{turns: []chatTurn{
		{reply: assistant("UNCLEAR")},
		{reply: assistant("<p>an answer</p>")},
	}}
	o := newTestOrchestrator(t, client, chat, true)

	require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

	require.Len(t, client.sent, 1)
	assert.True(t, client.sent[0].AsNote)
}

func TestHandleEventEscalatesOnPass(t *testing.T) {
	t.Run("bare pass while assigned to bot", func(t *testing.T) {
		client := newStubClient()
		conv := testConversation(42)
		client.conversations[conv.ID] = &conv

		chat := &stubChat{turns: []chatTurn{
			{reply: assistant("UNCLEAR")},
			{reply: assistant("PASS")},
		}}
		o := newTestOrchestrator(t, client, chat, false)

		require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

		require.Len(t, client.sent, 1)
		assert.Equal(t, unknownAnswerMessage, client.sent[0].Body)
		assert.Equal(t, []string{conv.ID}, client.unassigned)
	})

	t.Run("bare pass while unassigned stays silent", func(t *testing.T) {
		client := newStubClient()
		conv := testConversation(0)
		client.conversations[conv.ID] = &conv

		chat := &stubChat{turns: []chatTurn{
			{reply: assistant("UNCLEAR")},
			{reply: assistant("PASS")},
		}}
		o := newTestOrchestrator(t, client, chat, false)

		require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

		assert.Empty(t, client.sent)
		assert.Equal(t, []string{conv.ID}, client.unassigned)
	})

	t.Run("pass with remainder sends it first", func(t *testing.T) {
		client := newStubClient()
		conv := testConversation(0)
		client.conversations[conv.ID] = &conv

		chat := &stubChat{turns: []chatTurn{
			{reply: assistant("UNCLEAR")},
			{reply: assistant("<p>A colleague will pick this up.</p> PASS")},
		}}
		o := newTestOrchestrator(t, client, chat, false)

		require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

		require.Len(t, client.sent, 1)
		assert.Contains(t, client.sent[0].Body, "colleague will pick this up")
		assert.Contains(t, client.sent[0].Body, disclaimer("Fin"))
		assert.Equal(t, []string{conv.ID}, client.unassigned)
	})
}

func TestHandleEventClose(t *testing.T) {
	t.Run("close with remainder", func(t *testing.T) {
		client := newStubClient()
		conv := testConversation(0)
		client.conversations[conv.ID] = &conv

		chat := &stubChat{turns: []chatTurn{
			{reply: assistant("UNCLEAR")},
			{reply: assistant("<p>Glad I could help!</p> CLOSE")},
		}}
		o := newTestOrchestrator(t, client, chat, false)

		require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

		require.Len(t, client.sent, 1)
		assert.Contains(t, client.sent[0].Body, "Glad I could help")
		assert.Equal(t, []string{conv.ID}, client.closed)
	})

	t.Run("test mode posts a note instead of closing", func(t *testing.T) {
		client := newStubClient()
		conv := testConversation(0)
		client.conversations[conv.ID] = &conv

		chat := &stubChat{turns: []chatTurn{
			{reply: assistant("UNCLEAR")},
			{reply: assistant("CLOSE")},
		}}
		o := newTestOrchestrator(t, client, chat, true)

		require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

		assert.Empty(t, client.closed)
		require.Len(t, client.sent, 1)
		assert.Equal(t, closeNote, client.sent[0].Body)
		assert.True(t, client.sent[0].AsNote)
	})
}

func TestHandleEventSkipStaysSilent(t *testing.T) {
	client := newStubClient()
	conv := testConversation(0)

	chat := &stubChat{turns: []chatTurn{
		{reply: assistant("UNCLEAR")},
		{reply: assistant("SKIP")},
	}}
	o := newTestOrchestrator(t, client, chat, false)

	require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

	assert.Empty(t, client.sent)
	assert.Empty(t, client.closed)
	assert.Empty(t, client.unassigned)
}

func TestHandleEventDiscardsStaleReply(t *testing.T) {
	client := newStubClient()
	conv := testConversation(0)

	// The customer sent another message while the reply was generating.
	fresh := testConversation(0)
	fresh.Parts.Parts = append(fresh.Parts.Parts, model.ConversationPart{
		ID: "p2", PartType: "comment", Body: "<p>never mind!</p>", Author: model.Author{Type: "user", ID: "5"},
	})
	fresh.Parts.TotalCount = 2
	client.conversations[conv.ID] = &fresh

	chat := &stubChat{turns: []chatTurn{
		{reply: assistant("UNCLEAR")},
		{reply: assistant("<p>an answer</p>")},
	}}
	o := newTestOrchestrator(t, client, chat, false)

	require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

	assert.Empty(t, client.sent)
}

func TestHandleEventStaleCheckFailure(t *testing.T) {
	client := newStubClient()
	conv := testConversation(0)
	client.getErr = fmt.Errorf("api down")

	chat := &stubChat{turns: []chatTurn{
		{reply: assistant("UNCLEAR")},
		{reply: assistant("<p>an answer</p>")},
	}}
	o := newTestOrchestrator(t, client, chat, false)

	err := o.HandleEvent(context.Background(), testEnvelope(conv))
	require.Error(t, err)
	assert.Empty(t, client.sent)
}

func TestHandleEventRunsToolCalls(t *testing.T) {
	client := newStubClient()
	conv := testConversation(0)
	client.conversations[conv.ID] = &conv

	chat := &stubChat{turns: []chatTurn{
		{reply: assistant("UNCLEAR")},
		{reply: &llm.Message{
			Role:    llm.RoleAssistant,
			Content: "<p>I will get a human for you.</p>",
			FunctionCall: &llm.FunctionCall{
				Name:      assignFunctionName,
				Arguments: `{"reason":"customer_request"}`,
			},
		}},
		{reply: assistant("SKIP")},
	}}
	o := newTestOrchestrator(t, client, chat, false)

	require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

	assert.Equal(t, []string{conv.ID}, client.assignedHuman)
	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0].Body, "get a human for you")

	// The function result was fed back for the follow-up completion.
	final := chat.requests[2]
	var functionMsg *llm.Message
	for i := range final {
		if final[i].Role == llm.RoleFunction {
			functionMsg = &final[i]
		}
	}
	require.NotNil(t, functionMsg)
	assert.Equal(t, assignFunctionName, functionMsg.Name)
	assert.Contains(t, functionMsg.Content, "assigned to a human")
}

func TestHandleEventFallbackReply(t *testing.T) {
	client := newStubClient()
	conv := testConversation(0)
	client.conversations[conv.ID] = &conv

	chat := &stubChat{turns: []chatTurn{
		{reply: assistant("UNCLEAR")},
		{err: fmt.Errorf("bad request")},
	}}
	o := newTestOrchestrator(t, client, chat, false)

	require.NoError(t, o.HandleEvent(context.Background(), testEnvelope(conv)))

	require.Len(t, client.sent, 1)
	assert.Contains(t, client.sent[0].Body, fallbackMessage)
}

func TestExecuteFunctionCallUnknownName(t *testing.T) {
	client := newStubClient()
	got := executeFunctionCall(context.Background(), client, "c1", &llm.FunctionCall{
		Name:      "delete_everything",
		Arguments: "{}",
	})
	assert.Equal(t, "Error: function delete_everything does not exist", got)
	assert.Empty(t, client.assignedHuman)
}
