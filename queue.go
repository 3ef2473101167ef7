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
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/paymux/paymux/config"
	redis_db "github.com/paymux/paymux/internal/redis-db"
)

// Queue represents the durable job queue decoupling HTTP acceptance from
// processing.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// InboxJobPayload references one stored inbox event by row id. The payload
// itself stays in the store; the queue only carries the pointer.
type InboxJobPayload struct {
	InboxID int64 `json:"inbox_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueInboxEvent publishes one processing job for an inbox event.
//
// The task id is derived from the row id so a reception/sweeper race on the
// same event collapses into a single pending task; a task-id conflict is
// therefore a success, not an error. MaxRetry is zero because retry scheduling
// is owned by the store and the sweeper, never by the broker.
func (q *Queue) EnqueueInboxEvent(ctx context.Context, inboxID int64) error {
	ctx, span := tracer.Start(ctx, "Adding Inbox Event To Redis Queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(InboxJobPayload{InboxID: inboxID})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(inboxTaskID(inboxID)),
		asynq.Queue(cfg.Inbox.QueueName),
		asynq.MaxRetry(0),
	}
	task := asynq.NewTask(cfg.Inbox.QueueName, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf(" [*] Inbox event already queued: %d", inboxID)
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued inbox event: %d", inboxID)
	return nil
}

// GetInboxJobFromQueue retrieves a pending job for an inbox event, if any.
func (q *Queue) GetInboxJobFromQueue(inboxID int64) (*InboxJobPayload, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	task, err := q.Inspector.GetTaskInfo(cfg.Inbox.QueueName, inboxTaskID(inboxID))
	if err != nil || task == nil {
		return nil, nil // not found in the queue
	}
	var job InboxJobPayload
	if err := json.Unmarshal(task.Payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func inboxTaskID(inboxID int64) string {
	return fmt.Sprintf("inbox:%d", inboxID)
}
