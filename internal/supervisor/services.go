// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/store"
)

// HTTPServer matches *http.Server's lifecycle methods so tests can
// substitute a fake.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts the blocking ListenAndServe pattern to suture's
// context-aware Serve.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed is the normal
// shutdown signal, not a failure.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *HTTPService) String() string { return "http-server" }

// Runner is satisfied by components whose Run blocks until the context
// is canceled (websocket hub, event consumer).
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService names a Runner for supervisor logs.
type RunnerService struct {
	runner Runner
	name   string
}

func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *RunnerService) String() string { return s.name }

// StartStopper is satisfied by the report scheduler.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService bridges Start/Stop lifecycles into a supervised
// Serve call.
type SchedulerService struct {
	scheduler StartStopper
}

func NewSchedulerService(scheduler StartStopper) *SchedulerService {
	return &SchedulerService{scheduler: scheduler}
}

func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := s.scheduler.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *SchedulerService) String() string { return "report-scheduler" }

// MaintenanceService runs periodic store housekeeping: badger value-log
// GC and delivery-log retention pruning.
type MaintenanceService struct {
	store    *store.Store
	interval time.Duration
	retain   time.Duration
}

func NewMaintenanceService(st *store.Store, interval, retain time.Duration) *MaintenanceService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &MaintenanceService{store: st, interval: interval, retain: retain}
}

func (s *MaintenanceService) Serve(ctx context.Context) error {
	log := logging.WithComponent("maintenance")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(); err != nil {
				log.Debug().Err(err).Msg("value log GC skipped")
			}
			if s.retain > 0 {
				cutoff := time.Now().Add(-s.retain)
				pruned, err := s.store.PruneDeliveryLogs(ctx, cutoff)
				if err != nil {
					log.Error().Err(err).Msg("delivery log pruning failed")
				} else if pruned > 0 {
					log.Info().Int("pruned", pruned).Time("cutoff", cutoff).Msg("delivery logs pruned")
				}
			}
		}
	}
}

func (s *MaintenanceService) String() string { return "store-maintenance" }
