// Package intercom implements the support platform REST client.
package intercom

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/kart-io/support-bridge/internal/model"
	intercomopts "github.com/kart-io/support-bridge/pkg/options/intercom"
	"github.com/kart-io/support-bridge/pkg/utils/httpclient"
	"github.com/kart-io/support-bridge/pkg/utils/json"
)

const apiVersion = "2.8"

// articlesPerPage is the listing page size accepted by the platform.
const articlesPerPage = 250

// Client talks to the support platform API.
type Client struct {
	opts    *intercomopts.Options
	adminID int64
	client  *httpclient.Client
}

// New creates a new API client. adminID is the admin identity used for
// replies and assignment parts.
func New(opts *intercomopts.Options, adminID int64) *Client {
	return &Client{
		opts:    opts,
		adminID: adminID,
		client:  httpclient.NewClient(opts.Timeout, opts.MaxRetries),
	}
}

// ClientSecret exposes the webhook signing secret for the signature
// middleware.
func (c *Client) ClientSecret() string {
	return c.opts.ClientSecret
}

type articlesPage struct {
	Data  []model.ArticleInput `json:"data"`
	Pages struct {
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	} `json:"pages"`
}

// ListArticles fetches every article from the help center, walking the
// paginated listing.
func (c *Client) ListArticles(ctx context.Context) ([]model.ArticleInput, error) {
	var all []model.ArticleInput

	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/articles?page=%d&per_page=%d", c.opts.BaseURL, page, articlesPerPage)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(req)

		var resp articlesPage
		if err := c.client.DoJSON(req, &resp); err != nil {
			return nil, fmt.Errorf("failed to list articles (page %d): %w", page, err)
		}

		all = append(all, resp.Data...)
		if resp.Pages.TotalPages == 0 || resp.Pages.Page >= resp.Pages.TotalPages {
			break
		}
	}
	return all, nil
}

// GetConversation fetches a conversation with its full part history.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/conversations/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	var conv model.Conversation
	if err := c.client.DoJSON(req, &conv); err != nil {
		return nil, fmt.Errorf("failed to fetch conversation %s: %w", id, err)
	}
	return &conv, nil
}

type replyRequest struct {
	MessageType string `json:"message_type"`
	Type        string `json:"type"`
	AdminID     string `json:"admin_id"`
	Body        string `json:"body"`
}

// Reply posts an admin reply. When asNote is true the message is an internal
// note invisible to the customer.
func (c *Client) Reply(ctx context.Context, convID, body string, asNote bool) error {
	messageType := "comment"
	if asNote {
		messageType = "note"
	}
	return c.postJSON(ctx, "/conversations/"+convID+"/reply", replyRequest{
		MessageType: messageType,
		Type:        "admin",
		AdminID:     strconv.FormatInt(c.adminID, 10),
		Body:        body,
	})
}

type partRequest struct {
	MessageType string `json:"message_type"`
	Type        string `json:"type"`
	AdminID     string `json:"admin_id"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

// CloseConversation closes the conversation as the bot admin.
func (c *Client) CloseConversation(ctx context.Context, convID string) error {
	return c.postJSON(ctx, "/conversations/"+convID+"/parts", partRequest{
		MessageType: "close",
		Type:        "admin",
		AdminID:     strconv.FormatInt(c.adminID, 10),
	})
}

// Unassign removes the bot assignment so a human can pick the conversation
// up.
func (c *Client) Unassign(ctx context.Context, convID string) error {
	return c.postJSON(ctx, "/conversations/"+convID+"/parts", partRequest{
		MessageType: "assignment",
		Type:        "admin",
		AdminID:     strconv.FormatInt(c.adminID, 10),
		AssigneeID:  "0",
	})
}

// AssignToHuman hands the conversation to the inbox assignment rules.
func (c *Client) AssignToHuman(ctx context.Context, convID string) error {
	if err := c.Unassign(ctx, convID); err != nil {
		return err
	}
	return c.postJSON(ctx, "/conversations/"+convID+"/run_assignment_rules", struct{}{})
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	if err := c.client.DoJSON(req, nil); err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.AccessToken)
	req.Header.Set("Intercom-Version", apiVersion)
}
