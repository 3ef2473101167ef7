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
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/paymux/paymux/config"
	"github.com/paymux/paymux/internal/apierror"
	"github.com/paymux/paymux/internal/notification"
	"github.com/paymux/paymux/model"
)

// ProcessInboxEvent is the queue handler for one inbox job. It always returns
// nil: retry scheduling lives in the store and the sweeper, so the broker must
// never re-deliver on its own. Every outcome, success, retryable failure or
// terminal give-up, is recorded on the row before the job is acknowledged.
func (p *Paymux) ProcessInboxEvent(ctx context.Context, task *asynq.Task) error {
	var job InboxJobPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		logrus.Errorf("discarding malformed inbox job payload: %v", err)
		return nil
	}

	ctx, span := tracer.Start(ctx, "Processing Inbox Event")
	defer span.End()

	event, err := p.datasource.GetInboxEvent(ctx, job.InboxID)
	if err != nil {
		if apierror.Code(err) == apierror.ErrNotFound {
			logrus.Errorf("inbox job %d references a missing row, dropping", job.InboxID)
			return nil
		}
		// Transient store failure before the claim. The row is untouched and
		// still due, so the sweeper re-enqueues it later.
		logrus.Errorf("inbox event %d could not be loaded: %v", job.InboxID, err)
		return nil
	}

	if event.Terminal() {
		return nil
	}

	attempts, claimed, err := p.datasource.ClaimInboxEvent(ctx, event.ID)
	if err != nil {
		logrus.Errorf("inbox event %d could not be claimed: %v", event.ID, err)
		return nil
	}
	if !claimed {
		// Lost the race to another worker, or the row moved to a terminal
		// state since the job was published.
		return nil
	}
	// The claim carries the live attempt counter; the row loaded above may
	// predate a failure recorded by another worker.
	event.Attempts = attempts

	if dispatchErr := p.dispatchEvent(ctx, event); dispatchErr != nil {
		p.recordDispatchFailure(ctx, event, dispatchErr)
		return nil
	}

	if err := p.datasource.MarkInboxEventProcessed(ctx, event.ID); err != nil {
		logrus.Errorf("inbox event %d processed but not recorded: %v", event.ID, err)
		return nil
	}
	p.invalidateEventCache(ctx, event.ID)
	logrus.Infof("inbox event %d processed (%s %s)", event.ID, event.Provider, event.EventType)
	return nil
}

// dispatchEvent invokes the registered business handler with the stored raw
// payload. A handler panic is converted into an error so one bad payload
// cannot take a worker down.
func (p *Paymux) dispatchEvent(ctx context.Context, event *model.InboxEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.dispatcher.Invoke(ctx, event.Provider, []byte(event.PayloadRaw))
}

// recordDispatchFailure classifies a handler failure and writes the outcome.
// A retryable failure inside the attempt budget gets a capped exponential
// retry time; everything else is terminal give-up.
func (p *Paymux) recordDispatchFailure(ctx context.Context, event *model.InboxEvent, dispatchErr error) {
	cfg, err := config.Fetch()
	if err != nil {
		logrus.Errorf("inbox event %d failure not recorded, config unavailable: %v", event.ID, err)
		return
	}

	lastError := model.TruncateError(dispatchErr.Error())
	attempts := event.Attempts + 1

	if RetryableError(dispatchErr) && attempts < cfg.Inbox.MaxAttempts {
		delay := BackoffDelay(attempts, cfg.Inbox.RetryBaseDelay(), cfg.Inbox.RetryCapDelay())
		nextRetryAt := time.Now().Add(delay)
		if err := p.datasource.MarkInboxEventFailed(ctx, event.ID, lastError, nextRetryAt); err != nil {
			logrus.Errorf("inbox event %d failure not recorded: %v", event.ID, err)
			return
		}
		logrus.Warnf("inbox event %d attempt %d failed, retrying in %s: %v", event.ID, attempts, delay, dispatchErr)
		return
	}

	if err := p.datasource.MarkInboxEventIgnored(ctx, event.ID, lastError); err != nil {
		logrus.Errorf("inbox event %d give-up not recorded: %v", event.ID, err)
		return
	}
	p.invalidateEventCache(ctx, event.ID)
	logrus.Errorf("inbox event %d ignored after %d attempts: %v", event.ID, attempts, dispatchErr)
	notification.NotifyError(fmt.Errorf("inbox event %d (%s %s) ignored after %d attempts: %v",
		event.ID, event.Provider, event.EventType, attempts, dispatchErr))
}
