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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/paymux/paymux/internal/apierror"
	"github.com/paymux/paymux/model"
)

// Request headers worth keeping with the stored event: the signature that was
// verified at the door plus generic delivery metadata, for later audit.
// Everything else is dropped.
var storedHeaderAllowlist = []string{
	"Content-Type",
	"User-Agent",
	"X-Webhook-Signature",
	"Webhook-Id",
	"Webhook-Signature",
	"Webhook-Timestamp",
	"X-Request-Id",
	"X-Signature",
}

// ReceiveInboxEvent accepts one verified provider callback: it derives the
// event identity from the payload, persists the event idempotently, and hands
// it to the queue. Persistence is the acknowledgment boundary; an enqueue
// failure after a successful insert is logged and left for the sweeper, the
// caller still gets a success so the provider does not redeliver.
func (p *Paymux) ReceiveInboxEvent(ctx context.Context, provider string, rawBody []byte, headers http.Header) (*model.InboxEvent, error) {
	ctx, span := tracer.Start(ctx, "Receiving Inbox Event")
	defer span.End()

	if !model.ValidProvider(provider) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest,
			fmt.Sprintf("unknown provider: %s", provider), nil)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid webhook payload", err)
	}

	identity := ExtractIdentity(provider, payload)
	if identity == nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid webhook payload",
			fmt.Sprintf("missing the %s event identity fields", provider))
	}

	event := model.NewInboxEvent(provider, *identity, rawBody, filterStoredHeaders(headers))
	stored, duplicate, err := p.datasource.CreateInboxEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	if duplicate {
		logrus.Infof("duplicate delivery for %s event %s resolved to inbox row %d", provider, identity.EventID, stored.ID)
		// Only a RECEIVED row may be re-enqueued here: terminal rows are
		// done, a FAILED row is waiting out its backoff, and the sweeper
		// owns every other recovery path.
		if stored.Status != model.StatusReceived {
			return stored, nil
		}
	}

	if err := p.enqueueStoredEvent(ctx, stored.ID); err != nil {
		logrus.Warnf("inbox event %d stored but not enqueued, sweeper will recover it: %v", stored.ID, err)
		return stored, nil
	}
	stored.Status = model.StatusEnqueued
	return stored, nil
}

// enqueueStoredEvent publishes the processing job and records the ENQUEUED
// transition. A status conflict on the mark means a worker got there first,
// which is fine.
func (p *Paymux) enqueueStoredEvent(ctx context.Context, id int64) error {
	if err := p.queue.EnqueueInboxEvent(ctx, id); err != nil {
		return err
	}
	if err := p.datasource.MarkInboxEventEnqueued(ctx, id); err != nil {
		if apierror.Code(err) == apierror.ErrConflict {
			return nil
		}
		return err
	}
	return nil
}

func filterStoredHeaders(headers http.Header) map[string]string {
	if headers == nil {
		return nil
	}
	kept := make(map[string]string)
	for _, name := range storedHeaderAllowlist {
		if value := headers.Get(name); value != "" {
			kept[name] = value
		}
	}
	for name := range headers {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "X-Pm-") {
			kept[http.CanonicalHeaderKey(name)] = headers.Get(name)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
