package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/support-bridge/internal/supportbridge/metrics"
	"github.com/kart-io/support-bridge/pkg/llm"
)

// CompletionConfig configures completion retry behavior.
type CompletionConfig struct {
	// MaxAttempts bounds calls per completion, including the first.
	MaxAttempts int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
}

// CompletionEngine wraps the chat provider with retry-on-rate-limit and a
// degraded fallback so the pipeline always gets a message back.
type CompletionEngine struct {
	provider llm.ChatProvider
	config   *CompletionConfig
	metrics  *metrics.Metrics
}

// NewCompletionEngine creates a CompletionEngine.
func NewCompletionEngine(provider llm.ChatProvider, config *CompletionConfig) *CompletionEngine {
	if config == nil {
		config = &CompletionConfig{}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.Backoff <= 0 {
		config.Backoff = 5 * time.Second
	}
	return &CompletionEngine{
		provider: provider,
		config:   config,
		metrics:  metrics.Get(),
	}
}

// Model returns the underlying chat model name.
func (e *CompletionEngine) Model() string {
	return e.provider.Model()
}

// Complete runs one completion over the sequence. Rate-limited and transient
// failures are retried on a fixed backoff; once attempts are exhausted (or
// the failure is permanent) a fallback message is synthesized instead of an
// error. The returned slice is the input plus the new message.
func (e *CompletionEngine) Complete(ctx context.Context, messages []llm.Message, functions []llm.Function) (*llm.Message, []llm.Message) {
	var lastErr error

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		reply, err := e.provider.ChatComplete(ctx, messages, functions)
		if err == nil {
			e.metrics.RecordCompletion(attempt-1, false)
			return reply, append(messages, *reply)
		}
		lastErr = err

		if !llm.Retryable(err) {
			logger.Errorw("completion failed", "error", err.Error())
			break
		}
		logger.Warnw("completion rate limited, backing off",
			"attempt", attempt,
			"max_attempts", e.config.MaxAttempts,
			"backoff", e.config.Backoff.String(),
		)
		if attempt < e.config.MaxAttempts {
			select {
			case <-ctx.Done():
				attempt = e.config.MaxAttempts
			case <-time.After(e.config.Backoff):
			}
		}
	}

	logger.Errorw("completion attempts exhausted, degrading",
		"attempts", e.config.MaxAttempts,
		"error", lastErr.Error(),
	)
	e.metrics.RecordCompletion(e.config.MaxAttempts-1, true)
	fallback := &llm.Message{
		Role:    llm.RoleSystem,
		Content: fallbackMessage,
	}
	return fallback, append(messages, *fallback)
}

// Condense distills the transcript into the single question currently being
// asked. ok is false when the model cannot find a clear question (or the
// call fails), in which case the caller should search with the raw
// transcript instead.
func (e *CompletionEngine) Condense(ctx context.Context, transcript string) (question string, ok bool) {
	reply, err := e.provider.ChatComplete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: condensePrompt()},
		{Role: llm.RoleUser, Content: transcript},
	}, nil)
	if err != nil {
		logger.Warnw("failed to condense transcript", "error", err.Error())
		return "", false
	}

	content := strings.TrimSpace(reply.Content)
	if content == "" || strings.Contains(content, unclearSentinel) {
		return "", false
	}
	return content, true
}
