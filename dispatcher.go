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
	"sync"

	"github.com/pkg/errors"
)

// ErrUnsupportedProvider is raised at dispatch time when no business handler
// is registered for an event's provider tag. Never retried.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// Handler is the business-logic boundary. It receives the exact raw payload
// bytes that were stored at ingestion and re-parses them itself, so replays
// are bit-identical. Handlers wrap their upstream failures into the model
// error shapes before returning.
type Handler func(ctx context.Context, payload []byte) error

// Dispatcher maps a provider tag to its business handler.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a handler to a provider tag. Registered once at startup,
// before the worker pool consumes jobs.
func (d *Dispatcher) Register(provider string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[provider] = handler
}

// Invoke calls the handler registered for the provider with the stored raw
// payload.
func (d *Dispatcher) Invoke(ctx context.Context, provider string, payload []byte) error {
	d.mu.RLock()
	handler, ok := d.handlers[provider]
	d.mu.RUnlock()

	if !ok {
		return errors.Wrap(ErrUnsupportedProvider, provider)
	}
	return handler(ctx, payload)
}
