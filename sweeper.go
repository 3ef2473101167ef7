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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/paymux/paymux/config"
	redlock "github.com/paymux/paymux/internal/lock"
	redis_db "github.com/paymux/paymux/internal/redis-db"
)

const sweepLockKey = "paymux:sweep:lock"

// Sweeper periodically re-enqueues inbox events that are due for another
// processing attempt: freshly received rows whose enqueue was lost, failed
// rows whose retry time has arrived, and enqueued rows stale enough that the
// queue must have dropped them.
type Sweeper struct {
	paymux   *Paymux
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	locker   *redlock.Locker
	interval time.Duration
	// inFlight skips a tick when the previous sweep is still working, so a
	// slow store cannot stack overlapping sweeps.
	inFlight atomic.Bool
}

// NewSweeper creates a sweeper bound to the inbox instance.
func NewSweeper(paymux *Paymux) *Sweeper {
	return &Sweeper{
		paymux: paymux,
		stopCh: make(chan struct{}),
	}
}

// Start launches the periodic sweep loop. Calling Start on a running sweeper
// is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	cfg, err := config.Fetch()
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	interval := cfg.Inbox.SweepInterval()
	s.interval = interval

	// One sweeper across all worker replicas. A replica that cannot take
	// the lock on a tick simply skips it.
	client, err := redis_db.NewRedisClient(fmt.Sprintf("redis://%s", cfg.Redis.Dns))
	if err != nil {
		logrus.Warnf("sweep lock disabled, could not connect to redis: %v", err)
	} else {
		s.locker = redlock.NewLocker(client.Client(), sweepLockKey, uuid.New().String())
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logrus.Infof("inbox sweeper started, interval %s", interval)
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.stopCh:
				logrus.Info("inbox sweeper stopped")
				return
			case <-ctx.Done():
				logrus.Info("inbox sweeper context canceled")
				return
			}
		}
	}()
	return nil
}

// Stop halts the loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

// IsRunning reports whether the sweep loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// tick runs one sweep. A panic inside a sweep is contained here so it cannot
// kill the timer loop.
func (s *Sweeper) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		logrus.Warn("previous sweep still running, skipping tick")
		return
	}
	defer s.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("inbox sweep panicked: %v", r)
		}
	}()

	if s.locker != nil {
		if err := s.locker.Lock(ctx, s.interval); err != nil {
			logrus.Infof("another replica is sweeping, skipping tick: %v", err)
			return
		}
		defer func() {
			if err := s.locker.Unlock(ctx); err != nil {
				logrus.Warnf("sweep lock not released: %v", err)
			}
		}()
	}

	swept, err := s.paymux.SweepInboxEvents(ctx)
	if err != nil {
		logrus.Errorf("inbox sweep failed: %v", err)
		return
	}
	if swept > 0 {
		logrus.Infof("inbox sweep re-enqueued %d events", swept)
	}
}

// SweepInboxEvents re-enqueues every currently due inbox event, oldest first,
// and returns how many were handed back to the queue. Also exposed to
// operators as a manual trigger.
func (p *Paymux) SweepInboxEvents(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Sweeping Inbox Events")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return 0, err
	}

	staleBefore := time.Now().Add(-cfg.Inbox.StaleEnqueuedThreshold())
	due, err := p.datasource.GetDueInboxEvents(ctx, staleBefore, cfg.Inbox.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, event := range due {
		if err := p.enqueueStoredEvent(ctx, event.ID); err != nil {
			// Per-event failure only; the rest of the batch still runs.
			logrus.Warnf("sweep could not re-enqueue inbox event %d: %v", event.ID, err)
			continue
		}
		swept++
	}
	return swept, nil
}
