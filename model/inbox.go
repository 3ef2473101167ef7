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

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Providers whose callbacks the inbox accepts. The set is closed: dispatch,
// identity extraction and signature verification are all keyed on these tags.
const (
	ProviderCardNetwork    = "card_network"
	ProviderCardNetworkAlt = "card_network_alt"
	ProviderAltPayment     = "alt_payment"
	ProviderRegionalGW     = "regional_gateway"
)

// Inbox event statuses. RECEIVED and ENQUEUED are pre-processing states,
// PROCESSING is worker-claimed, PROCESSED and IGNORED are terminal.
const (
	StatusReceived   = "RECEIVED"
	StatusEnqueued   = "ENQUEUED"
	StatusProcessing = "PROCESSING"
	StatusProcessed  = "PROCESSED"
	StatusFailed     = "FAILED"
	StatusIgnored    = "IGNORED"
)

// maxLastErrorLen bounds the stored last_error column so a pathological
// handler error cannot bloat the row.
const maxLastErrorLen = 1024

// EventIdentity is the stable identity derived from a provider payload.
// (Provider, EventID) is the deduplication key; EventType and Livemode are
// carried for dispatch filtering and audit.
type EventIdentity struct {
	EventID   string
	EventType string
	Livemode  *bool
}

// InboxEvent is one durably stored provider callback.
type InboxEvent struct {
	ID                  int64                  `json:"id"`
	Provider            string                 `json:"provider"`
	EventID             string                 `json:"event_id"`
	EventType           string                 `json:"event_type"`
	Livemode            *bool                  `json:"livemode"`
	Status              string                 `json:"status"`
	Attempts            int                    `json:"attempts"`
	ReceivedAt          time.Time              `json:"received_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	ProcessingStartedAt *time.Time             `json:"processing_started_at,omitempty"`
	ProcessedAt         *time.Time             `json:"processed_at,omitempty"`
	NextRetryAt         *time.Time             `json:"next_retry_at,omitempty"`
	PayloadHash         string                 `json:"payload_hash"`
	PayloadRaw          string                 `json:"payload_raw,omitempty"`
	Headers             map[string]string      `json:"headers,omitempty"`
	LastError           *string                `json:"last_error,omitempty"`
	MetaData            map[string]interface{} `json:"meta_data,omitempty"`
}

// NewInboxEvent builds a RECEIVED event from a verified callback. PayloadRaw
// keeps the exact bytes received so dispatch replays are bit-identical.
func NewInboxEvent(provider string, identity EventIdentity, rawBody []byte, headers map[string]string) *InboxEvent {
	return &InboxEvent{
		Provider:    provider,
		EventID:     identity.EventID,
		EventType:   identity.EventType,
		Livemode:    identity.Livemode,
		Status:      StatusReceived,
		PayloadHash: HashPayload(rawBody),
		PayloadRaw:  string(rawBody),
		Headers:     headers,
	}
}

// HashPayload returns the hex SHA-256 of the raw payload bytes. Audit only,
// never used for deduplication.
func HashPayload(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Terminal reports whether the event is in a final state that must never be
// claimed or re-enqueued again.
func (e *InboxEvent) Terminal() bool {
	return e.Status == StatusProcessed || e.Status == StatusIgnored
}

// ValidProvider reports whether the tag belongs to the closed provider set.
func ValidProvider(provider string) bool {
	switch provider {
	case ProviderCardNetwork, ProviderCardNetworkAlt, ProviderAltPayment, ProviderRegionalGW:
		return true
	}
	return false
}

// TruncateError trims an error message to the stored bound.
func TruncateError(msg string) string {
	if len(msg) > maxLastErrorLen {
		return msg[:maxLastErrorLen]
	}
	return msg
}
