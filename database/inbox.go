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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/lib/pq"

	"github.com/paymux/paymux/internal/apierror"
	"github.com/paymux/paymux/model"
)

// pqUniqueViolation is the Postgres error code raised when the
// (provider, event_id) constraint rejects a duplicate insert.
const pqUniqueViolation = "23505"

const inboxColumns = `id, provider, event_id, event_type, livemode, status, attempts, received_at, updated_at, processing_started_at, processed_at, next_retry_at, payload_hash, payload_raw, headers, last_error`

// InboxEventFilter narrows the admin listing query. Zero values mean
// "no constraint".
type InboxEventFilter struct {
	Provider  string
	Status    string
	EventType string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInboxEvent(row rowScanner) (*model.InboxEvent, error) {
	event := &model.InboxEvent{}
	var (
		livemode            sql.NullBool
		processingStartedAt sql.NullTime
		processedAt         sql.NullTime
		nextRetryAt         sql.NullTime
		headersJSON         []byte
		lastError           sql.NullString
	)

	err := row.Scan(
		&event.ID, &event.Provider, &event.EventID, &event.EventType, &livemode,
		&event.Status, &event.Attempts, &event.ReceivedAt, &event.UpdatedAt,
		&processingStartedAt, &processedAt, &nextRetryAt,
		&event.PayloadHash, &event.PayloadRaw, &headersJSON, &lastError,
	)
	if err != nil {
		return nil, err
	}

	if livemode.Valid {
		event.Livemode = &livemode.Bool
	}
	if processingStartedAt.Valid {
		event.ProcessingStartedAt = &processingStartedAt.Time
	}
	if processedAt.Valid {
		event.ProcessedAt = &processedAt.Time
	}
	if nextRetryAt.Valid {
		event.NextRetryAt = &nextRetryAt.Time
	}
	if lastError.Valid {
		event.LastError = &lastError.String
	}
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &event.Headers); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal headers", err)
		}
	}
	return event, nil
}

// CreateInboxEvent persists a freshly received event. When the
// (provider, event_id) identity already exists, the existing row is returned
// with duplicate=true; the caller treats that as a success path.
func (d Datasource) CreateInboxEvent(ctx context.Context, event *model.InboxEvent) (*model.InboxEvent, bool, error) {
	ctx, span := otel.Tracer("inbox.database").Start(ctx, "Saving inbox event to db")
	defer span.End()

	headersJSON, err := json.Marshal(event.Headers)
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal headers", err)
	}

	err = d.Conn.QueryRowContext(ctx,
		`INSERT INTO paymux.inbox_events(provider,event_id,event_type,livemode,status,payload_hash,payload_raw,headers)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING id, received_at, updated_at`,
		event.Provider, event.EventID, event.EventType, event.Livemode, model.StatusReceived, event.PayloadHash, event.PayloadRaw, headersJSON,
	).Scan(&event.ID, &event.ReceivedAt, &event.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			existing, lookupErr := d.GetInboxEventByIdentity(ctx, event.Provider, event.EventID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return existing, true, nil
		}
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record inbox event", err)
	}

	event.Status = model.StatusReceived
	return event, false, nil
}

func (d Datasource) GetInboxEvent(ctx context.Context, id int64) (*model.InboxEvent, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM paymux.inbox_events
		WHERE id = $1
	`, inboxColumns), id)

	event, err := scanInboxEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Inbox event with ID '%d' not found", id), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve inbox event", err)
	}
	return event, nil
}

func (d Datasource) GetInboxEventByIdentity(ctx context.Context, provider, eventID string) (*model.InboxEvent, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM paymux.inbox_events
		WHERE provider = $1 AND event_id = $2
	`, inboxColumns), provider, eventID)

	event, err := scanInboxEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Inbox event '%s/%s' not found", provider, eventID), err)
		}
		if _, ok := err.(apierror.APIError); ok {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve inbox event", err)
	}
	return event, nil
}

// MarkInboxEventEnqueued flips a pre-processing row to ENQUEUED after a
// successful queue publish. Terminal and processing rows never match, so a
// late sweeper publish cannot resurrect a finished event.
func (d Datasource) MarkInboxEventEnqueued(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE paymux.inbox_events
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4, $2)
	`, id, model.StatusEnqueued, model.StatusReceived, model.StatusFailed)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark inbox event enqueued", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inbox event '%d' not in an enqueueable state", id), nil)
	}
	return nil
}

// ClaimInboxEvent grants exclusive processing rights over one row via a
// conditional update and returns the attempt count already consumed, read
// under the claim so a concurrent failure record cannot leave the caller with
// a stale counter. A no-rows result means another worker holds the claim (or
// the row reached a terminal state); the caller drops the job.
func (d Datasource) ClaimInboxEvent(ctx context.Context, id int64) (int, bool, error) {
	ctx, span := otel.Tracer("inbox.database").Start(ctx, "Claiming inbox event")
	defer span.End()

	var attempts int
	err := d.Conn.QueryRowContext(ctx, `
		UPDATE paymux.inbox_events
		SET status = $2, processing_started_at = NOW(), next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4, $5)
		RETURNING attempts
	`, id, model.StatusProcessing, model.StatusReceived, model.StatusFailed, model.StatusEnqueued).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim inbox event", err)
	}
	return attempts, true, nil
}

// MarkInboxEventProcessed finalizes a successful dispatch.
func (d Datasource) MarkInboxEventProcessed(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE paymux.inbox_events
		SET status = $2, processed_at = NOW(), last_error = NULL, next_retry_at = NULL,
		    processing_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, model.StatusProcessed, model.StatusProcessing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark inbox event processed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inbox event '%d' is not processing", id), nil)
	}
	return nil
}

// MarkInboxEventFailed records a retryable failure: one attempt consumed,
// retry due at nextRetryAt.
func (d Datasource) MarkInboxEventFailed(ctx context.Context, id int64, lastError string, nextRetryAt time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE paymux.inbox_events
		SET status = $2, attempts = attempts + 1, last_error = $3, next_retry_at = $4,
		    processing_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, id, model.StatusFailed, model.TruncateError(lastError), nextRetryAt, model.StatusProcessing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark inbox event failed", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inbox event '%d' is not processing", id), nil)
	}
	return nil
}

// MarkInboxEventIgnored records terminal give-up: either a non-retryable
// failure or an exhausted attempt budget. The failed attempt still counts.
func (d Datasource) MarkInboxEventIgnored(ctx context.Context, id int64, lastError string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE paymux.inbox_events
		SET status = $2, attempts = attempts + 1, processed_at = NOW(), last_error = $3,
		    next_retry_at = NULL, processing_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, model.StatusIgnored, model.TruncateError(lastError), model.StatusProcessing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark inbox event ignored", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inbox event '%d' is not processing", id), nil)
	}
	return nil
}

// ResetInboxEventForRetry is the manual operator retry: FAILED or IGNORED
// rows go back to RECEIVED. Rows already back in the pipeline are a no-op
// success; a PROCESSING or PROCESSED row is a conflict.
func (d Datasource) ResetInboxEventForRetry(ctx context.Context, id int64) (*model.InboxEvent, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE paymux.inbox_events
		SET status = $2, next_retry_at = NULL, processed_at = NULL,
		    processing_started_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`, id, model.StatusReceived, model.StatusFailed, model.StatusIgnored)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reset inbox event", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	event, err := d.GetInboxEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		switch event.Status {
		case model.StatusReceived, model.StatusEnqueued:
			// already back in the pipeline, idempotent success
			return event, nil
		case model.StatusProcessing:
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inbox event '%d' is currently processing", id), nil)
		default:
			return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Inbox event '%d' is already processed", id), nil)
		}
	}
	return event, nil
}

// GetDueInboxEvents returns the sweeper's work set: rows that never made it
// onto the queue, rows due for retry, and rows stuck in ENQUEUED past the
// staleness threshold. Oldest first, id as deterministic tie-break.
func (d Datasource) GetDueInboxEvents(ctx context.Context, staleBefore time.Time, limit int) ([]*model.InboxEvent, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM paymux.inbox_events
		WHERE status = $1
		   OR (status = $2 AND next_retry_at <= NOW())
		   OR (status = $3 AND updated_at <= $4)
		ORDER BY received_at ASC, id ASC
		LIMIT $5
	`, inboxColumns), model.StatusReceived, model.StatusFailed, model.StatusEnqueued, staleBefore, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due inbox events", err)
	}
	defer rows.Close()

	var events []*model.InboxEvent
	for rows.Next() {
		event, err := scanInboxEvent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan inbox event", err)
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over inbox events", err)
	}
	return events, nil
}

// GetInboxEvents serves the admin listing surface with optional filters and
// pagination. Raw payloads are included; the admin detail view needs them.
func (d Datasource) GetInboxEvents(ctx context.Context, filter InboxEventFilter) ([]*model.InboxEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM paymux.inbox_events
		WHERE ($1 = '' OR provider = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR event_type = $3)
		  AND ($4::timestamptz IS NULL OR received_at >= $4)
		  AND ($5::timestamptz IS NULL OR received_at <= $5)
		ORDER BY received_at DESC, id DESC
		LIMIT $6 OFFSET $7
	`, inboxColumns)

	var from, to interface{}
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := d.Conn.QueryContext(ctx, query,
		filter.Provider, filter.Status, filter.EventType, from, to, filter.Limit, filter.Offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve inbox events", err)
	}
	defer rows.Close()

	var events []*model.InboxEvent
	for rows.Next() {
		event, err := scanInboxEvent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan inbox event", err)
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over inbox events", err)
	}
	return events, nil
}
