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

package database

import (
	"context"
	"time"

	"github.com/paymux/paymux/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	inboxEvent // Interface for inbox event operations
}

// inboxEvent defines methods for handling stored webhook inbox events.
type inboxEvent interface {
	CreateInboxEvent(ctx context.Context, event *model.InboxEvent) (*model.InboxEvent, bool, error)        // Persists a new event; duplicate identities resolve to the existing row
	GetInboxEvent(ctx context.Context, id int64) (*model.InboxEvent, error)                                // Retrieves an event by ID
	GetInboxEventByIdentity(ctx context.Context, provider, eventID string) (*model.InboxEvent, error)      // Retrieves an event by its (provider, event_id) identity
	MarkInboxEventEnqueued(ctx context.Context, id int64) error                                            // Marks an event ENQUEUED after a queue publish
	ClaimInboxEvent(ctx context.Context, id int64) (int, bool, error)                                      // Atomically claims an event, returning its consumed attempts
	MarkInboxEventProcessed(ctx context.Context, id int64) error                                           // Finalizes a successful dispatch
	MarkInboxEventFailed(ctx context.Context, id int64, lastError string, nextRetryAt time.Time) error     // Records a retryable failure with its retry time
	MarkInboxEventIgnored(ctx context.Context, id int64, lastError string) error                           // Records terminal give-up
	ResetInboxEventForRetry(ctx context.Context, id int64) (*model.InboxEvent, error)                      // Manual operator retry back to RECEIVED
	GetDueInboxEvents(ctx context.Context, staleBefore time.Time, limit int) ([]*model.InboxEvent, error)  // Sweeper work set, oldest first
	GetInboxEvents(ctx context.Context, filter InboxEventFilter) ([]*model.InboxEvent, error)              // Admin listing with filters and pagination
}
