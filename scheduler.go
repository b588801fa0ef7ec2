/*
Copyright 2025 Magmad Authors.

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

package magmad

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hodlmetight/magmad/config"
	redlock "github.com/hodlmetight/magmad/internal/lock"
)

// Scheduler runs pipeline ticks one at a time: a steady interval plus an
// operator trigger. The trigger channel has depth one, so any number of
// trigger requests arriving during a running tick coalesce into a single
// follow-up tick.
type Scheduler struct {
	magmad   *Magmad
	interval time.Duration
	trigger  chan struct{}
}

func NewScheduler(m *Magmad) (*Scheduler, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		magmad:   m,
		interval: time.Duration(cfg.Pipeline.PollingIntervalMinutes) * time.Minute,
		trigger:  make(chan struct{}, 1),
	}, nil
}

// TriggerNow requests an immediate tick. Never blocks; when a trigger is
// already pending the request folds into it.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run drives the tick loop until the context is cancelled. Ticks never
// overlap: the interval timer and the trigger channel are only consulted
// between ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// one tick right away so a restart picks up where it left off
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		case <-s.trigger:
			s.tick(ctx)
		}
	}
}

// tick runs one pipeline cycle under a distributed lock so two daemons
// sharing a Redis never process the order book at the same time.
func (s *Scheduler) tick(ctx context.Context) {
	// connect retries can hold a tick far past the polling interval, so the
	// lock lives long and is released explicitly
	locker := redlock.NewLocker(s.magmad.redis, "magmad:tick", uuid.New().String())
	if err := locker.Lock(ctx, time.Hour); err != nil {
		logrus.Infof("skipping tick: %v", err)
		return
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("failed to release tick lock: %v", err)
		}
	}()

	if err := s.magmad.RunCycle(ctx); err != nil && err != ErrPipelineHalted {
		logrus.Errorf("pipeline tick failed: %v", err)
	}
}
