// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/service"
)

// schedulerStopTimeout bounds the wait for a running sweep or dispatch on shutdown.
const schedulerStopTimeout = 20 * time.Second

// FailureSweeper replays the webhook failures that are due.
type FailureSweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// JobDispatcher runs the transcript jobs that are due.
type JobDispatcher interface {
	Dispatch(ctx context.Context) (service.DispatchResult, error)
}

// Scheduler drives the webhook retry sweep and the transcript job dispatch. The NATS
// wake-up only covers jobs that are due immediately; backoffs and retries are picked
// up here.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	sweeper    FailureSweeper
	dispatcher JobDispatcher
}

// NewScheduler registers both jobs. Schedules use the six field cron format with seconds.
func NewScheduler(ctx context.Context, sweeper FailureSweeper, dispatcher JobDispatcher, sweepSchedule, dispatchSchedule string) (*Scheduler, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		ctx:        ctx,
		sweeper:    sweeper,
		dispatcher: dispatcher,
	}

	if _, err := s.cron.AddFunc(sweepSchedule, s.runSweep); err != nil {
		return nil, fmt.Errorf("invalid RETRY_SWEEP_SCHEDULE %q: %w", sweepSchedule, err)
	}
	if _, err := s.cron.AddFunc(dispatchSchedule, s.runDispatch); err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_SCHEDULE %q: %w", dispatchSchedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for a running job to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		slog.Info("scheduler stopped gracefully")
	case <-time.After(schedulerStopTimeout):
		slog.Warn("scheduler stop timeout, forcing shutdown")
	}
}

func (s *Scheduler) runSweep() {
	ctx := logging.AppendCtx(s.ctx, slog.String("job", "retry_sweep"))
	result, err := s.sweeper.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "webhook retry sweep failed", logging.ErrKey, err)
		return
	}
	if result.Due > 0 {
		slog.InfoContext(ctx, "webhook retry sweep finished",
			"due", result.Due,
			"succeeded", result.Succeeded,
			"rescheduled", result.Rescheduled,
			"dead_lettered", result.DeadLettered,
		)
	}
}

func (s *Scheduler) runDispatch() {
	ctx := logging.AppendCtx(s.ctx, slog.String("job", "transcript_dispatch"))
	result, err := s.dispatcher.Dispatch(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "transcript job dispatch failed", logging.ErrKey, err)
		return
	}
	if result.Claimed > 0 {
		slog.InfoContext(ctx, "transcript job dispatch finished",
			"claimed", result.Claimed,
			"succeeded", result.Succeeded,
			"rescheduled", result.Rescheduled,
			"failed", result.Failed,
		)
	}
}
