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
	"embed"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/paymux/paymux/config"
	"github.com/paymux/paymux/database"
	"github.com/paymux/paymux/internal/cache"
)

var tracer = otel.Tracer("paymux.inbox")

//go:embed sql/*.sql
var SQLFiles embed.FS

// Paymux wires the webhook inbox together: the durable store, the job queue,
// and the provider dispatch table.
type Paymux struct {
	queue      *Queue
	dispatcher *Dispatcher
	datasource database.IDataSource
	cache      cache.Cache
}

// NewPaymux initializes a new instance with the provided database datasource.
// The admin read cache is best effort: if Redis is unreachable at startup the
// inbox still runs, reads just skip the cache.
func NewPaymux(db database.IDataSource) (*Paymux, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	newQueue := NewQueue(configuration)

	readCache, err := cache.NewCache()
	if err != nil {
		logrus.Warnf("admin read cache disabled: %v", err)
		readCache = nil
	}

	return &Paymux{
		datasource: db,
		queue:      newQueue,
		dispatcher: NewDispatcher(),
		cache:      readCache,
	}, nil
}

// Dispatcher exposes the provider dispatch table so callers can register
// business handlers at startup.
func (p *Paymux) Dispatcher() *Dispatcher {
	return p.dispatcher
}
