package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// OrderAPIAdapter implements integration.RemoteAdapter for orders and quotes.
// Listings are id-ordered, newest first; the cursor is opaque to callers.
type OrderAPIAdapter struct {
	config *OrderAPIConfig
	tokens *TokenSource
	client *apiClient
}

// NewOrderAPIAdapter creates an adapter authenticating with OAuth client credentials
func NewOrderAPIAdapter(config *OrderAPIConfig) (*OrderAPIAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	tokenHTTP := &http.Client{Timeout: config.Timeout}
	tokens := NewTokenSource(ClientCredentialsFetcher(tokenHTTP, config.TokenURL, config.ClientID, config.ClientSecret))

	return &OrderAPIAdapter{
		config: config,
		tokens: tokens,
		client: newAPIClient(integration.ProviderOrderAPI, config.BaseURL, config.Timeout, bearerAuth{tokens: tokens}),
	}, nil
}

// Provider returns the provider this adapter serves
func (a *OrderAPIAdapter) Provider() integration.Provider {
	return integration.ProviderOrderAPI
}

// EntityTypes returns the entity types this adapter serves
func (a *OrderAPIAdapter) EntityTypes() []integration.EntityType {
	return []integration.EntityType{integration.EntityTypeOrder, integration.EntityTypeQuote}
}

// AccountID returns the configured remote account
func (a *OrderAPIAdapter) AccountID() string {
	return a.config.AccountID
}

// Authenticate obtains or refreshes the access token
func (a *OrderAPIAdapter) Authenticate(ctx context.Context) error {
	_, err := a.tokens.Token(ctx)
	return err
}

func collectionPath(entityType integration.EntityType) (string, error) {
	switch entityType {
	case integration.EntityTypeOrder:
		return "/v1/orders", nil
	case integration.EntityTypeQuote:
		return "/v1/quotes", nil
	default:
		return "", fmt.Errorf("%w: %s", integration.ErrUnknownEntityType, entityType)
	}
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// FetchPage returns one page of the id-descending feed
func (a *OrderAPIAdapter) FetchPage(ctx context.Context, entityType integration.EntityType, cursor string, pageSize int) (*integration.Page, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("sort", "-id")
	query.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	op := "list " + string(entityType)
	switch entityType {
	case integration.EntityTypeOrder:
		var resp OrderAPIListResponse[OrderAPIOrder]
		if err := a.client.do(ctx, op, http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, err
		}
		page := &integration.Page{HasMore: resp.Meta.HasMore, NextCursor: resp.Meta.NextCursor}
		for i := range resp.Data {
			page.Records = append(page.Records, a.orderRecord(&resp.Data[i]))
		}
		return page, nil
	default:
		var resp OrderAPIListResponse[OrderAPIQuote]
		if err := a.client.do(ctx, op, http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, err
		}
		page := &integration.Page{HasMore: resp.Meta.HasMore, NextCursor: resp.Meta.NextCursor}
		for i := range resp.Data {
			page.Records = append(page.Records, a.quoteRecord(&resp.Data[i]))
		}
		return page, nil
	}
}

// FetchOne returns a single order or quote; ErrRemoteNotFound on 404
func (a *OrderAPIAdapter) FetchOne(ctx context.Context, entityType integration.EntityType, externalID string) (*integration.RemoteRecord, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}
	if _, err := strconv.ParseInt(externalID, 10, 64); err != nil {
		return nil, integration.NewSyncError(integration.ErrorClassPermanent, "get "+string(entityType),
			fmt.Errorf("%w: invalid id %q", integration.ErrRemoteRequestFailed, externalID))
	}
	path += "/" + externalID
	op := "get " + string(entityType)

	if entityType == integration.EntityTypeOrder {
		var resp OrderAPIItemResponse[OrderAPIOrder]
		if err := a.client.do(ctx, op, http.MethodGet, path, nil, nil, &resp); err != nil {
			return nil, err
		}
		return a.orderRecord(&resp.Data), nil
	}

	var resp OrderAPIItemResponse[OrderAPIQuote]
	if err := a.client.do(ctx, op, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return a.quoteRecord(&resp.Data), nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Push sends a status update. Only the status is writable remotely.
func (a *OrderAPIAdapter) Push(ctx context.Context, entityType integration.EntityType, externalID string, req integration.PushRequest) (*integration.PushResult, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}
	if req.RemoteStatusCode == "" {
		return nil, fmt.Errorf("%w: no remote status for %s", integration.ErrPushNotSupported, req.Status)
	}
	statusID, err := strconv.Atoi(req.RemoteStatusCode)
	if err != nil {
		return nil, fmt.Errorf("%w: non-numeric status %q", integration.ErrPushNotSupported, req.RemoteStatusCode)
	}

	op := "update " + string(entityType) + " status"
	path += "/" + externalID + "/status"

	var updated integration.RemoteRecord
	if entityType == integration.EntityTypeOrder {
		var resp OrderAPIItemResponse[OrderAPIOrder]
		if err := a.client.do(ctx, op, http.MethodPatch, path, nil, OrderAPIStatusUpdate{StatusID: statusID}, &resp); err != nil {
			return nil, err
		}
		updated = *a.orderRecord(&resp.Data)
	} else {
		var resp OrderAPIItemResponse[OrderAPIQuote]
		if err := a.client.do(ctx, op, http.MethodPatch, path, nil, OrderAPIStatusUpdate{StatusID: statusID}, &resp); err != nil {
			return nil, err
		}
		updated = *a.quoteRecord(&resp.Data)
	}

	return &integration.PushResult{
		ExternalID:      externalID,
		RemoteUpdatedAt: updated.RemoteUpdatedAt,
		Accepted:        updated.StatusCode == req.RemoteStatusCode,
	}, nil
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

// ParseWebhook converts an order API delivery into events. Deliveries carrying
// a complete object are fat; partial objects are hydrated by the caller.
func (a *OrderAPIAdapter) ParseWebhook(body []byte, _ string) ([]integration.WebhookEvent, error) {
	var hook OrderAPIWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrWebhookMalformed, err)
	}

	resource, action, ok := strings.Cut(hook.EventType, ".")
	if !ok {
		return nil, fmt.Errorf("%w: %q", integration.ErrWebhookUnsupportedEvent, hook.EventType)
	}
	entityType, err := integration.ParseEntityType(resource)
	if err != nil || entityType.Provider() != integration.ProviderOrderAPI {
		return nil, fmt.Errorf("%w: %q", integration.ErrWebhookUnsupportedEvent, hook.EventType)
	}

	var ev integration.WebhookEvent
	switch action {
	case "created", "updated", "status_changed":
		ev.Action = integration.WebhookActionUpsert
	case "deleted":
		ev.Action = integration.WebhookActionDelete
	default:
		return nil, fmt.Errorf("%w: %q", integration.ErrWebhookUnsupportedEvent, hook.EventType)
	}

	var ref orderAPIWebhookRef
	if err := json.Unmarshal(hook.Data, &ref); err != nil || ref.ID == 0 {
		return nil, fmt.Errorf("%w: data.id missing", integration.ErrWebhookMalformed)
	}

	accountID := hook.AccountID
	if accountID == "" {
		accountID = a.config.AccountID
	}

	ev.Provider = integration.ProviderOrderAPI
	ev.EventID = hook.EventID
	ev.EventType = hook.EventType
	ev.EntityType = entityType
	ev.AccountID = accountID
	ev.ExternalID = strconv.FormatInt(ref.ID, 10)
	if t := parseTime(hook.OccurredAt); t != nil {
		ev.ReceivedAt = *t
	}

	if ev.Action == integration.WebhookActionUpsert {
		ev.Record, err = a.webhookRecord(entityType, ref, hook.Data)
		if err != nil {
			return nil, err
		}
		if ev.Record != nil {
			ev.Record.AccountID = accountID
		}
	}
	return []integration.WebhookEvent{ev}, nil
}

func (a *OrderAPIAdapter) webhookRecord(entityType integration.EntityType, ref orderAPIWebhookRef, data json.RawMessage) (*integration.RemoteRecord, error) {
	switch {
	case entityType == integration.EntityTypeOrder && ref.OrderNumber != "":
		var o OrderAPIOrder
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrWebhookMalformed, err)
		}
		return a.orderRecord(&o), nil
	case entityType == integration.EntityTypeQuote && ref.QuoteNumber != "":
		var q OrderAPIQuote
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, fmt.Errorf("%w: %v", integration.ErrWebhookMalformed, err)
		}
		return a.quoteRecord(&q), nil
	default:
		return nil, nil
	}
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

func (a *OrderAPIAdapter) orderRecord(o *OrderAPIOrder) *integration.RemoteRecord {
	raw, _ := json.Marshal(o)
	return &integration.RemoteRecord{
		ExternalID: strconv.FormatInt(o.ID, 10),
		EntityType: integration.EntityTypeOrder,
		AccountID:  a.config.AccountID,
		StatusCode: statusCode(o.StatusID),
		StatusName: o.StatusName,
		Fields: map[string]any{
			"order_number":    o.OrderNumber,
			"customer_name":   o.Customer.Name,
			"customer_email":  o.Customer.Email,
			"total":           moneyString(o.Total),
			"balance_due":     moneyString(o.BalanceDue),
			"currency":        o.Currency,
			"due_date":        o.DueDate,
			"shipping_method": o.ShippingMethod,
		},
		ChildIDs:        lineItemIDs(o.LineItems),
		RemoteUpdatedAt: parseTime(o.UpdatedAt),
		Deleted:         o.Deleted,
		Raw:             raw,
	}
}

func (a *OrderAPIAdapter) quoteRecord(q *OrderAPIQuote) *integration.RemoteRecord {
	raw, _ := json.Marshal(q)
	return &integration.RemoteRecord{
		ExternalID: strconv.FormatInt(q.ID, 10),
		EntityType: integration.EntityTypeQuote,
		AccountID:  a.config.AccountID,
		StatusCode: statusCode(q.StatusID),
		StatusName: q.StatusName,
		Fields: map[string]any{
			"quote_number":   q.QuoteNumber,
			"customer_name":  q.Customer.Name,
			"customer_email": q.Customer.Email,
			"total":          moneyString(q.Total),
			"currency":       q.Currency,
			"expires_at":     q.ExpiresAt,
		},
		ChildIDs:        lineItemIDs(q.LineItems),
		RemoteUpdatedAt: parseTime(q.UpdatedAt),
		Deleted:         q.Deleted,
		Raw:             raw,
	}
}

func statusCode(id int) string {
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}

func lineItemIDs(items []OrderAPILineItem) []string {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, li := range items {
		ids[i] = strconv.FormatInt(li.ID, 10)
	}
	return ids
}

var _ integration.RemoteAdapter = (*OrderAPIAdapter)(nil)
