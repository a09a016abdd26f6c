package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/syncbridge/backend/internal/domain/integration"
)

// ProofAPIAdapter implements integration.RemoteAdapter for proofs over GraphQL.
// The feed is ordered by update time, newest first, with relay cursors.
type ProofAPIAdapter struct {
	config *ProofAPIConfig
	client *apiClient
}

// NewProofAPIAdapter creates an adapter authenticating with a static bearer token
func NewProofAPIAdapter(config *ProofAPIConfig) (*ProofAPIAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ProofAPIAdapter{
		config: config,
		client: newAPIClient(integration.ProviderProofAPI, config.Endpoint, config.Timeout, staticBearerAuth{token: config.Token}),
	}, nil
}

// Provider returns the provider this adapter serves
func (a *ProofAPIAdapter) Provider() integration.Provider {
	return integration.ProviderProofAPI
}

// EntityTypes returns the entity types this adapter serves
func (a *ProofAPIAdapter) EntityTypes() []integration.EntityType {
	return []integration.EntityType{integration.EntityTypeProof}
}

// AccountID returns the configured workspace
func (a *ProofAPIAdapter) AccountID() string {
	return a.config.AccountID
}

// Authenticate is a no-op; the static token never needs refreshing
func (a *ProofAPIAdapter) Authenticate(context.Context) error {
	return nil
}

// query runs a GraphQL document and decodes data into out. GraphQL errors
// are mapped onto the HTTP error taxonomy by their extension code.
func (a *ProofAPIAdapter) query(ctx context.Context, op, document string, vars map[string]any, out any) error {
	var resp GraphQLResponse
	if err := a.client.do(ctx, op, http.MethodPost, "", nil, GraphQLRequest{Query: document, Variables: vars}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return graphQLError(op, resp.Errors)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return integration.NewSyncError(integration.ErrorClassPermanent, op,
			fmt.Errorf("%w: %v", integration.ErrRemoteInvalidResponse, err))
	}
	return nil
}

func graphQLError(op string, errs []GraphQLError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	msg := strings.Join(msgs, "; ")

	switch errs[0].Extensions.Code {
	case "UNAUTHENTICATED":
		return integration.NewHTTPError(op, http.StatusUnauthorized, msg)
	case "FORBIDDEN":
		return integration.NewHTTPError(op, http.StatusForbidden, msg)
	case "NOT_FOUND":
		return integration.NewHTTPError(op, http.StatusNotFound, msg)
	case "RATE_LIMITED":
		return integration.NewHTTPError(op, http.StatusTooManyRequests, msg)
	case "INTERNAL_SERVER_ERROR":
		return integration.NewHTTPError(op, http.StatusInternalServerError, msg)
	default:
		return integration.NewHTTPError(op, http.StatusUnprocessableEntity, msg)
	}
}

func (a *ProofAPIAdapter) checkType(entityType integration.EntityType) error {
	if entityType != integration.EntityTypeProof {
		return fmt.Errorf("%w: %s", integration.ErrUnknownEntityType, entityType)
	}
	return nil
}

// FetchPage returns one page of proofs
func (a *ProofAPIAdapter) FetchPage(ctx context.Context, entityType integration.EntityType, cursor string, pageSize int) (*integration.Page, error) {
	if err := a.checkType(entityType); err != nil {
		return nil, err
	}

	vars := map[string]any{"first": pageSize}
	if cursor != "" {
		vars["after"] = cursor
	}

	var data proofListData
	if err := a.query(ctx, "list proofs", proofListQuery, vars, &data); err != nil {
		return nil, err
	}

	page := &integration.Page{
		HasMore:    data.Proofs.PageInfo.HasNextPage,
		NextCursor: data.Proofs.PageInfo.EndCursor,
	}
	for i := range data.Proofs.Nodes {
		page.Records = append(page.Records, a.proofRecord(&data.Proofs.Nodes[i], a.config.AccountID))
	}
	return page, nil
}

// FetchOne returns a single proof; a null proof is ErrRemoteNotFound
func (a *ProofAPIAdapter) FetchOne(ctx context.Context, entityType integration.EntityType, externalID string) (*integration.RemoteRecord, error) {
	if err := a.checkType(entityType); err != nil {
		return nil, err
	}

	var data proofGetData
	if err := a.query(ctx, "get proof", proofGetQuery, map[string]any{"id": externalID}, &data); err != nil {
		return nil, err
	}
	if data.Proof == nil {
		return nil, integration.NewHTTPError("get proof", http.StatusNotFound, "proof "+externalID)
	}
	return a.proofRecord(data.Proof, a.config.AccountID), nil
}

// Push updates the proof status
func (a *ProofAPIAdapter) Push(ctx context.Context, entityType integration.EntityType, externalID string, req integration.PushRequest) (*integration.PushResult, error) {
	if err := a.checkType(entityType); err != nil {
		return nil, err
	}
	if req.RemoteStatusCode == "" {
		return nil, fmt.Errorf("%w: no remote status for %s", integration.ErrPushNotSupported, req.Status)
	}

	var data proofMutationData
	vars := map[string]any{"id": externalID, "status": req.RemoteStatusCode}
	if err := a.query(ctx, "update proof status", proofStatusMutation, vars, &data); err != nil {
		return nil, err
	}
	if errs := data.UpdateProofStatus.Errors; len(errs) > 0 {
		return nil, integration.NewHTTPError("update proof status", http.StatusUnprocessableEntity,
			errs[0].Field+": "+errs[0].Message)
	}

	result := &integration.PushResult{ExternalID: externalID, Accepted: true}
	if p := data.UpdateProofStatus.Proof; p != nil {
		result.RemoteUpdatedAt = parseTime(p.UpdatedAt)
		result.Accepted = strings.EqualFold(p.Status, req.RemoteStatusCode)
	}
	return result, nil
}

// ParseWebhook converts a proofing delivery into events
func (a *ProofAPIAdapter) ParseWebhook(body []byte, _ string) ([]integration.WebhookEvent, error) {
	var hook ProofAPIWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrWebhookMalformed, err)
	}

	var action integration.WebhookAction
	switch hook.Type {
	case "proof.created", "proof.updated", "proof.status_changed", "proof.version_added":
		action = integration.WebhookActionUpsert
	case "proof.deleted":
		action = integration.WebhookActionDelete
	default:
		return nil, fmt.Errorf("%w: %q", integration.ErrWebhookUnsupportedEvent, hook.Type)
	}
	if hook.Proof == nil || hook.Proof.ID == "" {
		return nil, fmt.Errorf("%w: proof.id missing", integration.ErrWebhookMalformed)
	}

	accountID := hook.WorkspaceID
	if accountID == "" {
		accountID = a.config.AccountID
	}

	ev := integration.WebhookEvent{
		Provider:   integration.ProviderProofAPI,
		EventID:    hook.ID,
		EventType:  hook.Type,
		Action:     action,
		EntityType: integration.EntityTypeProof,
		AccountID:  accountID,
		ExternalID: hook.Proof.ID,
	}
	if t := parseTime(hook.CreatedAt); t != nil {
		ev.ReceivedAt = *t
	}
	// Deliveries without a status carry only the reference
	if action == integration.WebhookActionUpsert && hook.Proof.Status != "" {
		ev.Record = a.proofRecord(hook.Proof, accountID)
	}
	return []integration.WebhookEvent{ev}, nil
}

func (a *ProofAPIAdapter) proofRecord(p *ProofAPIProof, accountID string) *integration.RemoteRecord {
	raw, _ := json.Marshal(p)
	rec := &integration.RemoteRecord{
		ExternalID: p.ID,
		EntityType: integration.EntityTypeProof,
		AccountID:  accountID,
		StatusCode: p.Status,
		Fields: map[string]any{
			"name":           p.Name,
			"version":        p.Version,
			"due_date":       p.DueDate,
			"approver_email": p.ApproverEmail,
		},
		RemoteUpdatedAt: parseTime(p.UpdatedAt),
		Raw:             raw,
	}
	if p.Order != nil && p.Order.ID != "" {
		rec.ParentType = integration.EntityTypeOrder
		rec.ParentExternalID = p.Order.ID
		rec.Fields["order_external_id"] = p.Order.ID
	}
	for _, v := range p.Versions {
		rec.ChildIDs = append(rec.ChildIDs, v.ID)
	}
	return rec
}

var _ integration.RemoteAdapter = (*ProofAPIAdapter)(nil)
