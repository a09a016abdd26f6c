package remote

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// OrderAPICustomer is the customer block of orders and quotes
type OrderAPICustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OrderAPILineItem is a line item reference
type OrderAPILineItem struct {
	ID int64 `json:"id"`
}

// OrderAPIOrder is an order as returned by the order API
type OrderAPIOrder struct {
	ID             int64               `json:"id"`
	OrderNumber    string              `json:"order_number"`
	StatusID       int                 `json:"status_id"`
	StatusName     string              `json:"status_name"`
	Customer       OrderAPICustomer    `json:"customer"`
	Total          decimal.NullDecimal `json:"total"`
	BalanceDue     decimal.NullDecimal `json:"balance_due"`
	Currency       string              `json:"currency"`
	DueDate        string              `json:"due_date"`
	ShippingMethod string              `json:"shipping_method"`
	LineItems      []OrderAPILineItem  `json:"line_items"`
	UpdatedAt      string              `json:"updated_at"`
	Deleted        bool                `json:"deleted"`
}

// OrderAPIQuote is a quote as returned by the order API
type OrderAPIQuote struct {
	ID          int64               `json:"id"`
	QuoteNumber string              `json:"quote_number"`
	StatusID    int                 `json:"status_id"`
	StatusName  string              `json:"status_name"`
	Customer    OrderAPICustomer    `json:"customer"`
	Total       decimal.NullDecimal `json:"total"`
	Currency    string              `json:"currency"`
	ExpiresAt   string              `json:"expires_at"`
	LineItems   []OrderAPILineItem  `json:"line_items"`
	UpdatedAt   string              `json:"updated_at"`
	Deleted     bool                `json:"deleted"`
}

// OrderAPIListMeta is the pagination block of list responses
type OrderAPIListMeta struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// OrderAPIListResponse is a page of orders or quotes
type OrderAPIListResponse[T any] struct {
	Data []T              `json:"data"`
	Meta OrderAPIListMeta `json:"meta"`
}

// OrderAPIItemResponse wraps a single object
type OrderAPIItemResponse[T any] struct {
	Data T `json:"data"`
}

// OrderAPIStatusUpdate is the body of a status push
type OrderAPIStatusUpdate struct {
	StatusID int `json:"status_id"`
}

// OrderAPIWebhook is the envelope of order API webhook deliveries
type OrderAPIWebhook struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	AccountID  string          `json:"account_id"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// orderAPIWebhookRef is the minimal object carried by every webhook
type orderAPIWebhookRef struct {
	ID          int64  `json:"id"`
	OrderNumber string `json:"order_number"`
	QuoteNumber string `json:"quote_number"`
}

// moneyString renders a money amount canonically, or nil when absent
func moneyString(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}
