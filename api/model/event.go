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
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/paymux/paymux/database"
	"github.com/paymux/paymux/model"
)

// ListEvents is the admin listing query, bound from the URL query string.
type ListEvents struct {
	Provider  string `form:"provider"`
	Status    string `form:"status"`
	EventType string `form:"event_type"`
	From      string `form:"from"`
	To        string `form:"to"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

func (l *ListEvents) ValidateListEvents() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Provider, validation.When(l.Provider != "", validation.By(func(value interface{}) error {
			provider, ok := value.(string)
			if !ok || !model.ValidProvider(provider) {
				return errors.New("unknown provider")
			}
			return nil
		}))),
		validation.Field(&l.Status, validation.In("",
			model.StatusReceived, model.StatusEnqueued, model.StatusProcessing,
			model.StatusProcessed, model.StatusFailed, model.StatusIgnored)),
		validation.Field(&l.From, validation.When(l.From != "", validation.By(validateTimestamp))),
		validation.Field(&l.To, validation.When(l.To != "", validation.By(validateTimestamp))),
		validation.Field(&l.Limit, validation.Min(0), validation.Max(500)),
		validation.Field(&l.Offset, validation.Min(0)),
	)
}

func validateTimestamp(value interface{}) error {
	dateStr, ok := value.(string)
	if !ok {
		return errors.New("invalid type for timestamp")
	}
	if _, err := time.Parse(time.RFC3339, dateStr); err != nil {
		return errors.New("please format timestamps as RFC3339 (e.g., 2024-04-22T15:28:03+00:00)")
	}
	return nil
}

// ToFilter converts the query into a store filter. Validation runs first, so
// the date parses cannot fail here.
func (l *ListEvents) ToFilter() database.InboxEventFilter {
	filter := database.InboxEventFilter{
		Provider:  l.Provider,
		Status:    l.Status,
		EventType: l.EventType,
		Limit:     l.Limit,
		Offset:    l.Offset,
	}
	if l.From != "" {
		filter.From, _ = time.Parse(time.RFC3339, l.From)
	}
	if l.To != "" {
		filter.To, _ = time.Parse(time.RFC3339, l.To)
	}
	return filter
}
