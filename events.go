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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/paymux/paymux/database"
	"github.com/paymux/paymux/model"
)

const eventCacheTTL = 10 * time.Minute

// GetInboxEvent returns one stored event for the admin surface. Only terminal
// rows are cached; anything still moving through the lifecycle is always read
// from the store so the admin never sees a stale status.
func (p *Paymux) GetInboxEvent(ctx context.Context, id int64) (*model.InboxEvent, error) {
	ctx, span := tracer.Start(ctx, "Getting Inbox Event")
	defer span.End()

	key := eventCacheKey(id)
	if p.cache != nil {
		var cached model.InboxEvent
		if err := p.cache.Get(ctx, key, &cached); err == nil && cached.ID == id {
			return &cached, nil
		}
	}

	event, err := p.datasource.GetInboxEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.cache != nil && event.Terminal() {
		if err := p.cache.Set(ctx, key, event, eventCacheTTL); err != nil {
			logrus.Warnf("inbox event %d not cached: %v", id, err)
		}
	}
	return event, nil
}

// GetInboxEvents lists stored events for the admin surface with the given
// filters, newest first.
func (p *Paymux) GetInboxEvents(ctx context.Context, filter database.InboxEventFilter) ([]*model.InboxEvent, error) {
	ctx, span := tracer.Start(ctx, "Listing Inbox Events")
	defer span.End()

	return p.datasource.GetInboxEvents(ctx, filter)
}

// RetryInboxEvent is the manual operator retry: it moves a FAILED or IGNORED
// event back to RECEIVED and hands it to the queue again. The attempt count is
// preserved so the audit trail keeps the full processing history. Retrying an
// event that is already pending is idempotent.
func (p *Paymux) RetryInboxEvent(ctx context.Context, id int64) (*model.InboxEvent, error) {
	ctx, span := tracer.Start(ctx, "Retrying Inbox Event")
	defer span.End()

	event, err := p.datasource.ResetInboxEventForRetry(ctx, id)
	if err != nil {
		return nil, err
	}
	p.invalidateEventCache(ctx, id)

	if err := p.enqueueStoredEvent(ctx, id); err != nil {
		logrus.Warnf("inbox event %d reset but not enqueued, sweeper will recover it: %v", id, err)
		return event, nil
	}
	event.Status = model.StatusEnqueued
	return event, nil
}

func (p *Paymux) invalidateEventCache(ctx context.Context, id int64) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Delete(ctx, eventCacheKey(id)); err != nil {
		logrus.Warnf("inbox event %d cache entry not invalidated: %v", id, err)
	}
}

func eventCacheKey(id int64) string {
	return fmt.Sprintf("inbox:event:%d", id)
}
