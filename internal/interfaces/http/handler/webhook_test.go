package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/webhook"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

const testWebhookSecret = "whsec_test"

type mockIngester struct {
	mock.Mock
}

func (m *mockIngester) Ingest(ctx context.Context, provider integration.Provider, body []byte, contentType string) (*appintegration.IngestResult, error) {
	args := m.Called(ctx, provider, body, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.IngestResult), args.Error(1)
}

func newWebhookTestRouter(t *testing.T, ingester WebhookIngester, maxBody int64) *gin.Engine {
	t.Helper()
	verifiers, err := webhook.NewVerifiers(map[integration.Provider]webhook.Config{
		integration.ProviderOrderAPI: {Strategy: webhook.StrategyHMACSHA256, Secret: testWebhookSecret},
		integration.ProviderProofAPI: {Strategy: webhook.StrategyQueryToken, Secret: "tok"},
	}, zap.NewNop())
	require.NoError(t, err)
	validator, err := webhook.NewSchemaValidator()
	require.NoError(t, err)

	h := NewWebhookHandler(ingester, verifiers, validator, maxBody, zap.NewNop())
	r := gin.New()
	h.Routes().RegisterRoutes(&r.RouterGroup)
	return r
}

func signedOrderRequest(body string) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := webhook.SignHMACSHA256([]byte(testWebhookSecret), ts, []byte(body))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/order_api", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Order-Api-Signature", fmt.Sprintf("t=%s,v1=%s", ts, sig))
	return req
}

const validOrderEvent = `{"event_id":"evt-1","event_type":"order.updated","data":{"id":9001,"status_id":4}}`

func TestWebhookHandler_Receive(t *testing.T) {
	t.Run("queues a verified delivery", func(t *testing.T) {
		ingester := &mockIngester{}
		ingester.On("Ingest", mock.Anything, integration.ProviderOrderAPI, []byte(validOrderEvent), "application/json").
			Return(&appintegration.IngestResult{Status: appintegration.IngestStatusQueued, Queued: 1}, nil)
		r := newWebhookTestRouter(t, ingester, 0)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, signedOrderRequest(validOrderEvent))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true,"status":"queued","queued":1,"duplicates":0}`, w.Body.String())
		ingester.AssertExpectations(t)
	})

	t.Run("duplicate is acknowledged", func(t *testing.T) {
		ingester := &mockIngester{}
		ingester.On("Ingest", mock.Anything, integration.ProviderOrderAPI, mock.Anything, mock.Anything).
			Return(&appintegration.IngestResult{Status: appintegration.IngestStatusDuplicate, Duplicates: 1}, nil)
		r := newWebhookTestRouter(t, ingester, 0)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, signedOrderRequest(validOrderEvent))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"duplicate"`)
	})

	t.Run("bad signature is rejected before ingest", func(t *testing.T) {
		ingester := &mockIngester{}
		r := newWebhookTestRouter(t, ingester, 0)

		req := signedOrderRequest(validOrderEvent)
		req.Header.Set("Order-Api-Signature", "sha256=deadbeef")
		req.Header.Set("Order-Api-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, dto.ErrCodeSignatureInvalid, decodeResponse(t, w).Error.Code)
		ingester.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("query token strategy", func(t *testing.T) {
		ingester := &mockIngester{}
		ingester.On("Ingest", mock.Anything, integration.ProviderProofAPI, mock.Anything, "application/json").
			Return(&appintegration.IngestResult{Status: appintegration.IngestStatusIgnored}, nil)
		r := newWebhookTestRouter(t, ingester, 0)

		body := `{"id":"p-1","type":"proof.approved","proof":{"id":"77","status":"approved"}}`
		ok := httptest.NewRequest(http.MethodPost, "/webhooks/proof_api?token=tok", strings.NewReader(body))
		ok.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, ok)
		assert.Equal(t, http.StatusOK, w.Code)

		bad := httptest.NewRequest(http.MethodPost, "/webhooks/proof_api?token=nope", strings.NewReader(body))
		bad.Header.Set("Content-Type", "application/json")
		w = httptest.NewRecorder()
		r.ServeHTTP(w, bad)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("schema violation is 400", func(t *testing.T) {
		ingester := &mockIngester{}
		r := newWebhookTestRouter(t, ingester, 0)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, signedOrderRequest(`{"event_type":"order.updated","data":{}}`))

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeMalformedPayload, decodeResponse(t, w).Error.Code)
		ingester.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown provider is 404", func(t *testing.T) {
		r := newWebhookTestRouter(t, &mockIngester{}, 0)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/shopify", strings.NewReader("{}")))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("known but unconfigured provider is 404", func(t *testing.T) {
		r := newWebhookTestRouter(t, &mockIngester{}, 0)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/messaging", strings.NewReader("{}")))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("oversized body is 413", func(t *testing.T) {
		r := newWebhookTestRouter(t, &mockIngester{}, 32)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, signedOrderRequest(validOrderEvent))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("enqueue failure asks the sender to retry", func(t *testing.T) {
		ingester := &mockIngester{}
		ingester.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: redis down", appintegration.ErrEnqueueFailed))
		r := newWebhookTestRouter(t, ingester, 0)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, signedOrderRequest(validOrderEvent))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("malformed event from adapter is 400", func(t *testing.T) {
		ingester := &mockIngester{}
		ingester.On("Ingest", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: missing id", integration.ErrWebhookMalformed))
		r := newWebhookTestRouter(t, ingester, 0)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, signedOrderRequest(validOrderEvent))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRequestURL(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "http://hooks.example.com/webhooks/proof_api?a=1", nil)
	c.Request.Header.Set("X-Forwarded-Proto", "https")

	u := requestURL(c)
	assert.Equal(t, "https://hooks.example.com/webhooks/proof_api?a=1", u.String())
}
