// Package model defines the shared domain types for the support bridge.
package model

import (
	"strings"
)

// Article is a published help-center article mirrored into the relational store.
type Article struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:512" json:"title"`
	Description string `gorm:"size:1024" json:"description"`
	Body        string `gorm:"type:text" json:"body"`
	URL         string `gorm:"size:1024" json:"url"`
	UpdatedAt   int64  `gorm:"index" json:"updated_at"`
}

// Section is one indexed slice of an article. Checksum is the hex md5 of the
// cleaned, annotated content and doubles as the vector index primary key.
type Section struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ArticleID int64  `gorm:"index" json:"article_id"`
	Checksum  string `gorm:"size:32;uniqueIndex" json:"checksum"`
	Content   string `gorm:"type:text" json:"content"`
	// Embedding is the JSON-encoded float vector, kept so the vector index
	// can be healed without re-embedding.
	Embedding string `gorm:"type:text" json:"-"`
}

// ArticleInput is an article as delivered by the support platform listing API.
type ArticleInput struct {
	ID          int64  `json:"id,string"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Body        string `json:"body"`
	URL         string `json:"url"`
	State       string `json:"state"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Published reports whether the article should be mirrored at all.
func (a *ArticleInput) Published() bool {
	return a.State == "published" && strings.TrimSpace(a.Body) != ""
}

// Author identifies who wrote a conversation part.
type Author struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConversationPart is a single message or state change inside a conversation.
type ConversationPart struct {
	ID       string `json:"id"`
	PartType string `json:"part_type"`
	Body     string `json:"body"`
	Author   Author `json:"author"`
}

// ConversationSource is the opening message of a conversation.
type ConversationSource struct {
	Body        string `json:"body"`
	DeliveredAs string `json:"delivered_as"`
	Author      Author `json:"author"`
}

// ConversationParts wraps the part list as delivered by the platform.
type ConversationParts struct {
	TotalCount int                `json:"total_count"`
	Parts      []ConversationPart `json:"conversation_parts"`
}

// Conversation is the support platform conversation snapshot.
type Conversation struct {
	ID              string             `json:"id"`
	State           string             `json:"state"`
	AdminAssigneeID int64              `json:"admin_assignee_id"`
	Source          ConversationSource `json:"source"`
	Parts           ConversationParts  `json:"conversation_parts"`
}

// LastExternalPartID returns the id of the most recent part not authored by a
// bot, or the empty string when no such part exists. Used to detect customer
// activity that arrived while a reply was being generated.
func (c *Conversation) LastExternalPartID() string {
	for i := len(c.Parts.Parts) - 1; i >= 0; i-- {
		if c.Parts.Parts[i].Author.Type != "bot" {
			return c.Parts.Parts[i].ID
		}
	}
	return ""
}

// AssignedTo reports whether the conversation is assigned to the given admin.
func (c *Conversation) AssignedTo(adminID int64) bool {
	return c.AdminAssigneeID == adminID
}

// Unassigned reports whether no admin holds the conversation.
func (c *Conversation) Unassigned() bool {
	return c.AdminAssigneeID == 0
}

// WebhookEnvelope is the notification payload posted by the support platform.
type WebhookEnvelope struct {
	Type  string      `json:"type"`
	ID    string      `json:"id"`
	Topic string      `json:"topic"`
	Data  WebhookData `json:"data"`
}

// WebhookData wraps the notification item.
type WebhookData struct {
	Item WebhookEnvelopeItem `json:"item"`
}

// WebhookEnvelopeItem is the typed notification item. Only conversation items
// are processed; Type lets the handler reject everything else up front.
type WebhookEnvelopeItem struct {
	Type string `json:"type"`
	Conversation
}

// IsConversation reports whether the envelope carries a conversation item.
func (e *WebhookEnvelope) IsConversation() bool {
	return e.Data.Item.Type == "conversation"
}

// IngestStats summarizes one ingestion pass.
type IngestStats struct {
	ArticlesSeen    int `json:"articles_seen"`
	ArticlesChanged int `json:"articles_changed"`
	SectionsAdded   int `json:"sections_added"`
	SectionsRemoved int `json:"sections_removed"`
	SectionsHealed  int `json:"sections_healed"`
}
