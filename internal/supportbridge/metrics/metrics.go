// Package metrics collects in-process counters for the bridge. Counters are
// atomic so handlers and pool workers can record without coordination.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Metrics holds the bridge counters.
type Metrics struct {
	webhooksReceived  atomic.Int64
	webhooksRejected  atomic.Int64
	conversations     atomic.Int64
	repliesSent       atomic.Int64
	notesSent         atomic.Int64
	escalations       atomic.Int64
	closes            atomic.Int64
	suppressedAssign  atomic.Int64
	suppressedStale   atomic.Int64
	suppressedSkip    atomic.Int64
	completionCalls   atomic.Int64
	completionRetries atomic.Int64
	completionFallbks atomic.Int64
	ingestRuns        atomic.Int64
	sectionsAdded     atomic.Int64
	sectionsRemoved   atomic.Int64
	sectionsHealed    atomic.Int64
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{}
	})
	return instance
}

// RecordWebhook counts an accepted or rejected webhook delivery.
func (m *Metrics) RecordWebhook(accepted bool) {
	if accepted {
		m.webhooksReceived.Add(1)
	} else {
		m.webhooksRejected.Add(1)
	}
}

// RecordConversation counts a conversation entering the pipeline.
func (m *Metrics) RecordConversation() {
	m.conversations.Add(1)
}

// RecordReply counts an outgoing reply or note.
func (m *Metrics) RecordReply(asNote bool) {
	if asNote {
		m.notesSent.Add(1)
	} else {
		m.repliesSent.Add(1)
	}
}

// RecordEscalation counts a hand-off to a human.
func (m *Metrics) RecordEscalation() {
	m.escalations.Add(1)
}

// RecordClose counts a closed conversation.
func (m *Metrics) RecordClose() {
	m.closes.Add(1)
}

// Suppression reasons.
const (
	SuppressAssigned = "assigned"
	SuppressStale    = "stale"
	SuppressSkip     = "skip"
)

// RecordSuppression counts a conversation dropped without a reply.
func (m *Metrics) RecordSuppression(reason string) {
	switch reason {
	case SuppressAssigned:
		m.suppressedAssign.Add(1)
	case SuppressStale:
		m.suppressedStale.Add(1)
	case SuppressSkip:
		m.suppressedSkip.Add(1)
	}
}

// RecordCompletion counts one completion call and its retries; fallback
// marks a degraded response.
func (m *Metrics) RecordCompletion(retries int, fallback bool) {
	m.completionCalls.Add(1)
	m.completionRetries.Add(int64(retries))
	if fallback {
		m.completionFallbks.Add(1)
	}
}

// RecordIngest counts one ingestion pass.
func (m *Metrics) RecordIngest(added, removed, healed int) {
	m.ingestRuns.Add(1)
	m.sectionsAdded.Add(int64(added))
	m.sectionsRemoved.Add(int64(removed))
	m.sectionsHealed.Add(int64(healed))
}

// Stats returns a snapshot of all counters.
func (m *Metrics) Stats() map[string]any {
	return map[string]any{
		"webhooks_received":    m.webhooksReceived.Load(),
		"webhooks_rejected":    m.webhooksRejected.Load(),
		"conversations":        m.conversations.Load(),
		"replies_sent":         m.repliesSent.Load(),
		"notes_sent":           m.notesSent.Load(),
		"escalations":          m.escalations.Load(),
		"closes":               m.closes.Load(),
		"suppressed_assigned":  m.suppressedAssign.Load(),
		"suppressed_stale":     m.suppressedStale.Load(),
		"suppressed_skip":      m.suppressedSkip.Load(),
		"completion_calls":     m.completionCalls.Load(),
		"completion_retries":   m.completionRetries.Load(),
		"completion_fallbacks": m.completionFallbks.Load(),
		"ingest_runs":          m.ingestRuns.Load(),
		"sections_added":       m.sectionsAdded.Load(),
		"sections_removed":     m.sectionsRemoved.Load(),
		"sections_healed":      m.sectionsHealed.Load(),
	}
}

// Reset zeroes every counter. Intended for tests.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.webhooksReceived, &m.webhooksRejected, &m.conversations,
		&m.repliesSent, &m.notesSent, &m.escalations, &m.closes,
		&m.suppressedAssign, &m.suppressedStale, &m.suppressedSkip,
		&m.completionCalls, &m.completionRetries, &m.completionFallbks,
		&m.ingestRuns, &m.sectionsAdded, &m.sectionsRemoved, &m.sectionsHealed,
	} {
		c.Store(0)
	}
}
