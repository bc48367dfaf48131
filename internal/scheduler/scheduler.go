// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package scheduler fires playback reports at their configured times.
//
// The schedule is a single persisted document (daily/weekly/monthly
// toggles plus wall-clock times). Each tick computes the most recent
// occurrence for each enabled report type and fires it once, guarded
// by a persisted last-fired marker so restarts never double-send and
// a server that was down at the scheduled minute catches up on the
// next tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/notify"
)

// catchUpWindow bounds how far back a missed occurrence may be and
// still fire. Anything older is skipped so a long-stopped server does
// not blast stale reports on boot.
const catchUpWindow = 24 * time.Hour

// ScheduleStore supplies the schedule document and fire markers.
// *store.Store satisfies it.
type ScheduleStore interface {
	GetSchedule(ctx context.Context) (*models.ReportSchedule, error)
	LastFired(ctx context.Context, reportType models.ReportType) (time.Time, error)
	MarkFired(ctx context.Context, reportType models.ReportType, at time.Time) error
}

// ReportSender runs the report pipeline for one type.
// *report.Service satisfies it.
type ReportSender interface {
	Send(ctx context.Context, reportType models.ReportType, kinds []models.ChannelKind) (*notify.DispatchReport, error)
}

// Scheduler is the periodic report trigger.
type Scheduler struct {
	store  ScheduleStore
	sender ReportSender
	logger zerolog.Logger
	config config.SchedulerConfig

	// now is swapped in tests.
	now func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a scheduler.
func New(st ScheduleStore, sender ReportSender, cfg config.SchedulerConfig) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 5 * time.Minute
	}
	return &Scheduler{
		store:  st,
		sender: sender,
		logger: logging.WithComponent("scheduler"),
		config: cfg,
		now:    time.Now,
	}
}

// Start begins the tick loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	if !s.config.Enabled {
		s.logger.Info().Msg("scheduler disabled")
		go func() {
			defer close(s.doneCh)
			<-s.stopCh
		}()
		return nil
	}

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Msg("starting report scheduler")

	go s.run(ctx)
	return nil
}

// Stop halts the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("report scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Tick evaluates all report types once and fires the due ones.
func (s *Scheduler) Tick(ctx context.Context) {
	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load report schedule")
		return
	}
	if sched == nil || !sched.Enabled {
		return
	}

	now := s.now()
	for _, reportType := range models.ValidReportTypes {
		due, occurrence := dueOccurrence(sched, reportType, now)
		if !due {
			continue
		}
		s.fire(ctx, sched, reportType, occurrence)
	}
}

// dueOccurrence returns the most recent scheduled occurrence of the
// report type at or before now, and whether the type is enabled at
// all.
func dueOccurrence(sched *models.ReportSchedule, reportType models.ReportType, now time.Time) (bool, time.Time) {
	var clock string
	switch reportType {
	case models.ReportTypeDaily:
		if !sched.DailyEnabled {
			return false, time.Time{}
		}
		clock = sched.DailyTime
	case models.ReportTypeWeekly:
		if !sched.WeeklyEnabled {
			return false, time.Time{}
		}
		clock = sched.WeeklyTime
	case models.ReportTypeMonthly:
		if !sched.MonthlyEnabled {
			return false, time.Time{}
		}
		clock = sched.MonthlyTime
	default:
		return false, time.Time{}
	}

	hour, minute, err := models.ParseClock(clock)
	if err != nil {
		return false, time.Time{}
	}

	// Walk back day by day to the latest day matching the type's day
	// constraint whose HH:MM is not in the future.
	day := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	for i := 0; i < 32; i++ {
		candidate := day.AddDate(0, 0, -i)
		if candidate.After(now) {
			continue
		}
		switch reportType {
		case models.ReportTypeWeekly:
			if int(candidate.Weekday()) != sched.WeeklyDay {
				continue
			}
		case models.ReportTypeMonthly:
			if candidate.Day() != sched.MonthlyDay {
				continue
			}
		}
		return true, candidate
	}
	return false, time.Time{}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// fire sends one report if its occurrence has not fired yet.
func (s *Scheduler) fire(ctx context.Context, sched *models.ReportSchedule, reportType models.ReportType, occurrence time.Time) {
	now := s.now()
	if now.Sub(occurrence) > catchUpWindow {
		return
	}

	lastFired, err := s.store.LastFired(ctx, reportType)
	if err != nil {
		s.logger.Error().Err(err).Str("type", string(reportType)).Msg("failed to read last-fired marker")
		return
	}
	if !lastFired.Before(occurrence) {
		return
	}
	// With no marker the type was just enabled. Occurrences from
	// before today are pre-enable history, not missed runs, and must
	// not back-fire.
	if lastFired.IsZero() && !sameDay(occurrence, now) {
		return
	}

	log := s.logger.With().
		Str("type", string(reportType)).
		Time("occurrence", occurrence).
		Logger()
	log.Info().Msg("scheduled report due, running pipeline")

	execCtx, cancel := context.WithTimeout(ctx, s.config.ExecutionTimeout)
	defer cancel()

	dispatch, err := s.sender.Send(execCtx, reportType, sched.EnabledChannels())
	if err != nil {
		metrics.SchedulerRunsTotal.WithLabelValues(string(reportType), "error").Inc()
		log.Error().Err(err).Msg("scheduled report failed")
		return
	}

	// Mark fired even when some channels failed: per-channel failures
	// live in the delivery log and should not cause a whole re-send.
	if err := s.store.MarkFired(ctx, reportType, occurrence); err != nil {
		log.Error().Err(err).Msg("failed to persist last-fired marker")
	}

	metrics.SchedulerRunsTotal.WithLabelValues(string(reportType), "success").Inc()
	metrics.SchedulerLastSuccess.SetToCurrentTime()
	log.Info().
		Int("channels", dispatch.Total).
		Int("succeeded", dispatch.Succeeded).
		Int("failed", dispatch.Failed).
		Msg("scheduled report dispatched")
}
