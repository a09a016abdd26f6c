package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncbridge/backend/internal/domain/integration"
)

func TestSchemaValidator(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name     string
		provider integration.Provider
		ctype    string
		body     string
		wantErr  bool
	}{
		{"order valid", integration.ProviderOrderAPI, "application/json", `{"event_id":"e1","event_type":"order.updated","data":{"id":9001,"status_id":16}}`, false},
		{"order missing data id", integration.ProviderOrderAPI, "application/json", `{"event_id":"e1","event_type":"order.updated","data":{}}`, true},
		{"order bad status type", integration.ProviderOrderAPI, "application/json", `{"event_id":"e1","event_type":"order.updated","data":{"id":1,"status_id":"seven"}}`, true},
		{"proof valid", integration.ProviderProofAPI, "application/json", `{"id":"w1","type":"proof.updated","proof":{"id":"pf_1"}}`, false},
		{"proof missing proof", integration.ProviderProofAPI, "application/json", `{"id":"w1","type":"proof.updated"}`, true},
		{"messaging valid", integration.ProviderMessaging, "application/json; charset=utf-8", `{"event":"message_created","id":5,"conversation":{"id":3}}`, false},
		{"not json", integration.ProviderMessaging, "application/json", `event=x`, true},
		{"form payload skipped", integration.ProviderMessaging, "application/x-www-form-urlencoded", `event=x`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.provider, tt.ctype, []byte(tt.body))
			if tt.wantErr {
				assert.ErrorIs(t, err, integration.ErrWebhookMalformed)
				return
			}
			assert.NoError(t, err)
		})
	}
}
