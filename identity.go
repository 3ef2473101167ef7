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
	"strings"

	"github.com/paymux/paymux/model"
)

// ExtractIdentity derives the stable (eventId, eventType, livemode) triple
// from a parsed provider payload. Pure function: malformed input yields nil,
// never an error, and the caller maps nil to a client error.
//
// Field paths per provider family:
//   - card network (both products): id, type, livemode
//   - alt payment network: id or event_id, event_type or eventType, no livemode
//   - regional gateway: id, type, livemode with a data.object.livemode fallback
func ExtractIdentity(provider string, payload map[string]interface{}) *model.EventIdentity {
	if payload == nil {
		return nil
	}

	switch provider {
	case model.ProviderCardNetwork, model.ProviderCardNetworkAlt:
		eventID := stringField(payload, "id")
		eventType := stringField(payload, "type")
		if eventID == "" || eventType == "" {
			return nil
		}
		return &model.EventIdentity{
			EventID:   eventID,
			EventType: eventType,
			Livemode:  boolField(payload, "livemode"),
		}

	case model.ProviderAltPayment:
		eventID := stringField(payload, "id")
		if eventID == "" {
			eventID = stringField(payload, "event_id")
		}
		eventType := stringField(payload, "event_type")
		if eventType == "" {
			eventType = stringField(payload, "eventType")
		}
		if eventID == "" || eventType == "" {
			return nil
		}
		// provider does not report livemode
		return &model.EventIdentity{EventID: eventID, EventType: eventType}

	case model.ProviderRegionalGW:
		eventID := stringField(payload, "id")
		eventType := stringField(payload, "type")
		if eventID == "" || eventType == "" {
			return nil
		}
		livemode := boolField(payload, "livemode")
		if livemode == nil {
			if data, ok := payload["data"].(map[string]interface{}); ok {
				if object, ok := data["object"].(map[string]interface{}); ok {
					livemode = boolField(object, "livemode")
				}
			}
		}
		return &model.EventIdentity{EventID: eventID, EventType: eventType, Livemode: livemode}
	}

	return nil
}

// stringField returns the trimmed string at key; empty-after-trim counts as
// missing.
func stringField(payload map[string]interface{}, key string) string {
	value, ok := payload[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func boolField(payload map[string]interface{}, key string) *bool {
	value, ok := payload[key].(bool)
	if !ok {
		return nil
	}
	return &value
}
