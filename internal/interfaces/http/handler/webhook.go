package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/webhook"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
)

// DefaultWebhookMaxBodySize caps webhook bodies when no limit is configured
const DefaultWebhookMaxBodySize int64 = 1 << 20

// WebhookIngester hands verified deliveries to the sync pipeline
type WebhookIngester interface {
	Ingest(ctx context.Context, provider integration.Provider, body []byte, contentType string) (*appintegration.IngestResult, error)
}

// VerifierRegistry resolves the verifier of a provider
type VerifierRegistry interface {
	For(provider integration.Provider) (webhook.Verifier, error)
}

// PayloadValidator checks a raw delivery against the provider's schema
type PayloadValidator interface {
	Validate(provider integration.Provider, contentType string, body []byte) error
}

// WebhookAck is the body returned to webhook senders
type WebhookAck struct {
	Received   bool                        `json:"received"`
	Status     appintegration.IngestStatus `json:"status"`
	Queued     int                         `json:"queued"`
	Duplicates int                         `json:"duplicates"`
}

// WebhookHandler receives provider webhooks
type WebhookHandler struct {
	BaseHandler
	ingester    WebhookIngester
	verifiers   VerifierRegistry
	validator   PayloadValidator
	maxBodySize int64
	logger      *zap.Logger
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(
	ingester WebhookIngester,
	verifiers VerifierRegistry,
	validator PayloadValidator,
	maxBodySize int64,
	logger *zap.Logger,
) *WebhookHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultWebhookMaxBodySize
	}
	return &WebhookHandler{
		ingester:    ingester,
		verifiers:   verifiers,
		validator:   validator,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// Routes returns the webhook route group, mounted outside the versioned API
func (h *WebhookHandler) Routes() *router.Group {
	return router.NewGroup("/webhooks").
		POST("/:provider", h.Receive)
}

// Receive authenticates a delivery, validates it and queues its events.
// Senders retry on any non-2xx, so only failures worth retrying return 5xx.
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider, err := integration.ParseProvider(c.Param("provider"))
	if err != nil {
		h.NotFound(c, "Unknown webhook provider")
		return
	}
	verifier, err := h.verifiers.For(provider)
	if err != nil {
		h.NotFound(c, "Webhook provider not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.ErrorWithCode(c, dto.ErrCodePayloadTooLarge, "Webhook body exceeds maximum allowed size")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}

	contentType := c.ContentType()
	req := &webhook.Request{
		Header: c.Request.Header,
		URL:    requestURL(c),
		Body:   body,
	}
	if contentType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			h.ErrorWithCode(c, dto.ErrCodeMalformedPayload, "Malformed form body")
			return
		}
		req.Form = form
	}

	if err := verifier.Verify(req); err != nil {
		h.logger.Warn("Webhook rejected",
			zap.String("provider", string(provider)),
			zap.String("strategy", string(verifier.Strategy())),
			zap.Error(err),
		)
		if webhook.IsVerificationError(err) {
			h.ErrorWithCode(c, dto.ErrCodeSignatureInvalid, "Webhook signature verification failed")
			return
		}
		h.InternalError(c, "Webhook verification failed")
		return
	}

	if err := h.validator.Validate(provider, contentType, body); err != nil {
		h.logger.Info("Webhook payload failed validation", zap.String("provider", string(provider)), zap.Error(err))
		h.ErrorWithCode(c, dto.ErrCodeMalformedPayload, err.Error())
		return
	}

	result, err := h.ingester.Ingest(c.Request.Context(), provider, body, contentType)
	if err != nil {
		if errors.Is(err, appintegration.ErrEnqueueFailed) {
			h.ErrorWithCode(c, dto.ErrCodeUnavailable, "Webhook could not be queued, retry later")
			return
		}
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, WebhookAck{
		Received:   true,
		Status:     result.Status,
		Queued:     result.Queued,
		Duplicates: result.Duplicates,
	})
}

// requestURL rebuilds the absolute URL the sender signed
func requestURL(c *gin.Context) *url.URL {
	u := *c.Request.URL
	u.Host = c.Request.Host
	u.Scheme = "http"
	if c.Request.TLS != nil {
		u.Scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		u.Scheme = proto
	}
	return &u
}
