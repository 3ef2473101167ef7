/*
Copyright 2024 Paymux Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package paymux

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paymux/paymux/model"
)

func TestExtractIdentityCardNetwork(t *testing.T) {
	payload := map[string]interface{}{
		"id":       "evt_123",
		"type":     "payment.succeeded",
		"livemode": true,
	}

	identity := ExtractIdentity(model.ProviderCardNetwork, payload)
	assert.NotNil(t, identity)
	assert.Equal(t, "evt_123", identity.EventID)
	assert.Equal(t, "payment.succeeded", identity.EventType)
	assert.NotNil(t, identity.Livemode)
	assert.True(t, *identity.Livemode)

	// both card network products share extraction rules
	identity = ExtractIdentity(model.ProviderCardNetworkAlt, payload)
	assert.NotNil(t, identity)
	assert.Equal(t, "evt_123", identity.EventID)
}

func TestExtractIdentityAltPayment(t *testing.T) {
	tests := []struct {
		name      string
		payload   map[string]interface{}
		wantID    string
		wantType  string
		wantNil   bool
	}{
		{
			name:     "primary field names",
			payload:  map[string]interface{}{"id": "WH-1", "event_type": "PAYMENT.SALE.COMPLETED"},
			wantID:   "WH-1",
			wantType: "PAYMENT.SALE.COMPLETED",
		},
		{
			name:     "fallback field names",
			payload:  map[string]interface{}{"event_id": "WH-2", "eventType": "PAYMENT.SALE.COMPLETED"},
			wantID:   "WH-2",
			wantType: "PAYMENT.SALE.COMPLETED",
		},
		{
			name:     "primary wins over fallback",
			payload:  map[string]interface{}{"id": "WH-3", "event_id": "WH-ignored", "event_type": "A", "eventType": "B"},
			wantID:   "WH-3",
			wantType: "A",
		},
		{
			name:    "missing event type",
			payload: map[string]interface{}{"id": "WH-4"},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := ExtractIdentity(model.ProviderAltPayment, tt.payload)
			if tt.wantNil {
				assert.Nil(t, identity)
				return
			}
			assert.NotNil(t, identity)
			assert.Equal(t, tt.wantID, identity.EventID)
			assert.Equal(t, tt.wantType, identity.EventType)
			assert.Nil(t, identity.Livemode)
		})
	}
}

func TestExtractIdentityRegionalGateway(t *testing.T) {
	payload := map[string]interface{}{
		"id":   "evt_9",
		"type": "charge.captured",
		"data": map[string]interface{}{
			"object": map[string]interface{}{"livemode": false},
		},
	}

	identity := ExtractIdentity(model.ProviderRegionalGW, payload)
	assert.NotNil(t, identity)
	assert.Equal(t, "evt_9", identity.EventID)
	assert.NotNil(t, identity.Livemode)
	assert.False(t, *identity.Livemode)

	// top-level livemode wins over the nested fallback
	payload["livemode"] = true
	identity = ExtractIdentity(model.ProviderRegionalGW, payload)
	assert.NotNil(t, identity)
	assert.True(t, *identity.Livemode)
}

func TestExtractIdentityMalformed(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		payload  map[string]interface{}
	}{
		{"nil payload", model.ProviderCardNetwork, nil},
		{"unknown provider", "mystery_gateway", map[string]interface{}{"id": "evt_1", "type": "x"}},
		{"missing id", model.ProviderCardNetwork, map[string]interface{}{"type": "payment.succeeded"}},
		{"blank id", model.ProviderCardNetwork, map[string]interface{}{"id": "   ", "type": "payment.succeeded"}},
		{"id is not a string", model.ProviderCardNetwork, map[string]interface{}{"id": 42, "type": "payment.succeeded"}},
		{"missing type", model.ProviderRegionalGW, map[string]interface{}{"id": "evt_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ExtractIdentity(tt.provider, tt.payload))
		})
	}
}

func TestExtractIdentityLivemodeNotBool(t *testing.T) {
	payload := map[string]interface{}{
		"id":       "evt_1",
		"type":     "payment.succeeded",
		"livemode": "true",
	}

	identity := ExtractIdentity(model.ProviderCardNetwork, payload)
	assert.NotNil(t, identity)
	assert.Nil(t, identity.Livemode)
}
