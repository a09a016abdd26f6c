package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// MessagingConfig holds configuration for the messaging API
type MessagingConfig struct {
	BaseURL string
	// APIKey is sent in the api_access_token header
	APIKey    string
	AccountID string
	Timeout   time.Duration
}

// Errors for messaging configuration
var (
	ErrMessagingConfigMissingBaseURL   = errors.New("messaging: base URL is required")
	ErrMessagingConfigMissingAPIKey    = errors.New("messaging: API key is required")
	ErrMessagingConfigMissingAccountID = errors.New("messaging: account ID is required")
)

// Validate validates the configuration and fills defaults
func (c *MessagingConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrMessagingConfigMissingBaseURL
	}
	if c.APIKey == "" {
		return ErrMessagingConfigMissingAPIKey
	}
	if c.AccountID == "" {
		return ErrMessagingConfigMissingAccountID
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// MessagingContact is a conversation participant
type MessagingContact struct {
	Name string `json:"name"`
}

// MessagingMessage is a message reference
type MessagingMessage struct {
	ID int64 `json:"id"`
}

// MessagingConversation is a conversation as returned by the messaging API
type MessagingConversation struct {
	ID             int64              `json:"id"`
	Status         string             `json:"status"`
	Channel        string             `json:"channel"`
	Subject        string             `json:"subject"`
	Assignee       *MessagingContact  `json:"assignee"`
	Contact        *MessagingContact  `json:"contact"`
	Messages       []MessagingMessage `json:"messages"`
	LastActivityAt int64              `json:"last_activity_at"`
	UpdatedAt      int64              `json:"updated_at"`
}

// MessagingListResponse is a page of conversations
type MessagingListResponse struct {
	Payload []MessagingConversation `json:"payload"`
	Meta    struct {
		CurrentPage int `json:"current_page"`
		TotalPages  int `json:"total_pages"`
	} `json:"meta"`
}

// MessagingWebhook is a messaging webhook delivery. Conversation events carry
// the conversation at the top level; message events carry the message there
// and nest the conversation.
type MessagingWebhook struct {
	Event   string `json:"event"`
	Account struct {
		ID int64 `json:"id"`
	} `json:"account"`
	Conversation *MessagingConversation `json:"conversation"`
	MessagingConversation
}

// ---------------------------------------------------------------------------
// Adapter
// ---------------------------------------------------------------------------

// MessagingAdapter implements integration.RemoteAdapter for conversations.
// Listings are ordered by update time, newest first; the cursor is a page number.
type MessagingAdapter struct {
	config *MessagingConfig
	client *apiClient
}

// NewMessagingAdapter creates an adapter authenticating with an API key
func NewMessagingAdapter(config *MessagingConfig) (*MessagingAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &MessagingAdapter{
		config: config,
		client: newAPIClient(integration.ProviderMessaging, config.BaseURL, config.Timeout,
			headerKeyAuth{header: "api_access_token", key: config.APIKey}),
	}, nil
}

// Provider returns the provider this adapter serves
func (a *MessagingAdapter) Provider() integration.Provider {
	return integration.ProviderMessaging
}

// EntityTypes returns the entity types this adapter serves
func (a *MessagingAdapter) EntityTypes() []integration.EntityType {
	return []integration.EntityType{integration.EntityTypeConversation}
}

// AccountID returns the configured account
func (a *MessagingAdapter) AccountID() string {
	return a.config.AccountID
}

// Authenticate is a no-op for API key authentication
func (a *MessagingAdapter) Authenticate(context.Context) error {
	return nil
}

func (a *MessagingAdapter) conversationsPath() string {
	return "/api/v1/accounts/" + url.PathEscape(a.config.AccountID) + "/conversations"
}

// FetchPage returns one page of conversations
func (a *MessagingAdapter) FetchPage(ctx context.Context, entityType integration.EntityType, cursor string, pageSize int) (*integration.Page, error) {
	if entityType != integration.EntityTypeConversation {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnknownEntityType, entityType)
	}

	pageNo := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: %q", integration.ErrInvalidCursor, cursor)
		}
		pageNo = n
	}

	query := url.Values{}
	query.Set("status", "all")
	query.Set("sort_by", "updated_at_desc")
	query.Set("page", strconv.Itoa(pageNo))
	query.Set("per_page", strconv.Itoa(pageSize))

	var resp MessagingListResponse
	if err := a.client.do(ctx, "list conversations", http.MethodGet, a.conversationsPath(), query, nil, &resp); err != nil {
		return nil, err
	}

	page := &integration.Page{}
	for i := range resp.Payload {
		page.Records = append(page.Records, a.conversationRecord(&resp.Payload[i], a.config.AccountID))
	}
	if resp.Meta.CurrentPage < resp.Meta.TotalPages && len(resp.Payload) > 0 {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(pageNo + 1)
	}
	return page, nil
}

// FetchOne returns one conversation with its message ids
func (a *MessagingAdapter) FetchOne(ctx context.Context, entityType integration.EntityType, externalID string) (*integration.RemoteRecord, error) {
	if entityType != integration.EntityTypeConversation {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnknownEntityType, entityType)
	}
	var conv MessagingConversation
	path := a.conversationsPath() + "/" + url.PathEscape(externalID)
	if err := a.client.do(ctx, "get conversation", http.MethodGet, path, nil, nil, &conv); err != nil {
		return nil, err
	}
	return a.conversationRecord(&conv, a.config.AccountID), nil
}

// Push toggles the conversation status
func (a *MessagingAdapter) Push(ctx context.Context, entityType integration.EntityType, externalID string, req integration.PushRequest) (*integration.PushResult, error) {
	if entityType != integration.EntityTypeConversation {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnknownEntityType, entityType)
	}
	if req.RemoteStatusCode == "" {
		return nil, fmt.Errorf("%w: no remote status for %s", integration.ErrPushNotSupported, req.Status)
	}

	var resp struct {
		Payload struct {
			CurrentStatus string `json:"current_status"`
		} `json:"payload"`
	}
	path := a.conversationsPath() + "/" + url.PathEscape(externalID) + "/toggle_status"
	body := map[string]string{"status": req.RemoteStatusCode}
	if err := a.client.do(ctx, "toggle conversation status", http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	return &integration.PushResult{
		ExternalID: externalID,
		Accepted:   resp.Payload.CurrentStatus == req.RemoteStatusCode,
	}, nil
}

// ParseWebhook converts a messaging delivery into events. The provider sends
// no delivery id, so one is derived from the payload digest.
func (a *MessagingAdapter) ParseWebhook(body []byte, _ string) ([]integration.WebhookEvent, error) {
	var hook MessagingWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrWebhookMalformed, err)
	}

	accountID := a.config.AccountID
	if hook.Account.ID != 0 {
		accountID = strconv.FormatInt(hook.Account.ID, 10)
	}
	sum := sha256.Sum256(body)
	ev := integration.WebhookEvent{
		Provider:   integration.ProviderMessaging,
		EventID:    hex.EncodeToString(sum[:16]),
		EventType:  hook.Event,
		EntityType: integration.EntityTypeConversation,
		AccountID:  accountID,
	}

	switch hook.Event {
	case "conversation_created", "conversation_updated", "conversation_status_changed":
		if hook.MessagingConversation.ID == 0 {
			return nil, fmt.Errorf("%w: conversation id missing", integration.ErrWebhookMalformed)
		}
		ev.Action = integration.WebhookActionUpsert
		ev.ExternalID = strconv.FormatInt(hook.MessagingConversation.ID, 10)
		// Status change payloads omit messages; hydrate those
		if hook.Event != "conversation_status_changed" {
			ev.Record = a.conversationRecord(&hook.MessagingConversation, accountID)
		}
	case "message_created":
		if hook.Conversation == nil || hook.Conversation.ID == 0 || hook.MessagingConversation.ID == 0 {
			return nil, fmt.Errorf("%w: message without conversation", integration.ErrWebhookMalformed)
		}
		ev.Action = integration.WebhookActionMessage
		ev.ExternalID = strconv.FormatInt(hook.Conversation.ID, 10)
		ev.MessageID = strconv.FormatInt(hook.MessagingConversation.ID, 10)
	default:
		return nil, fmt.Errorf("%w: %q", integration.ErrWebhookUnsupportedEvent, hook.Event)
	}
	return []integration.WebhookEvent{ev}, nil
}

func (a *MessagingAdapter) conversationRecord(c *MessagingConversation, accountID string) *integration.RemoteRecord {
	raw, _ := json.Marshal(c)
	rec := &integration.RemoteRecord{
		ExternalID: strconv.FormatInt(c.ID, 10),
		EntityType: integration.EntityTypeConversation,
		AccountID:  accountID,
		StatusCode: c.Status,
		Fields: map[string]any{
			"subject": c.Subject,
			"channel": c.Channel,
		},
		Raw: raw,
	}
	if c.Assignee != nil {
		rec.Fields["assignee"] = c.Assignee.Name
	}
	if c.Contact != nil {
		rec.Fields["contact_name"] = c.Contact.Name
	}
	if c.LastActivityAt > 0 {
		rec.Fields["last_message_at"] = time.Unix(c.LastActivityAt, 0).UTC().Format(time.RFC3339)
	}
	updated := c.UpdatedAt
	if updated == 0 {
		updated = c.LastActivityAt
	}
	if updated > 0 {
		t := time.Unix(updated, 0).UTC()
		rec.RemoteUpdatedAt = &t
	}
	for _, m := range c.Messages {
		rec.ChildIDs = append(rec.ChildIDs, strconv.FormatInt(m.ID, 10))
	}
	return rec
}

var _ integration.RemoteAdapter = (*MessagingAdapter)(nil)
