// Warden - Authentication and Domain-Scoped Authorization Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tomtom215/warden/internal/logging"
)

// MaintenanceRuns counts maintenance job runs by job and result.
var MaintenanceRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "warden_maintenance_runs_total",
		Help: "Maintenance job runs by job and result",
	},
	[]string{"job", "result"},
)

// MaintenanceJob is one unit of periodic cleanup.
type MaintenanceJob struct {
	Name string
	Run  func(ctx context.Context) error
}

// MaintenanceService runs cleanup jobs on a cron schedule: expired
// activation codes, event log retention, blocklist value-log GC and idle
// login throttle entries. A run that is still going when the next one is
// due is skipped.
type MaintenanceService struct {
	schedule cron.Schedule
	spec     string
	jobs     []MaintenanceJob
	timeout  time.Duration
	name     string
}

// NewMaintenanceService parses spec (standard five-field cron or a
// descriptor such as @hourly) and creates the service.
func NewMaintenanceService(spec string, jobs ...MaintenanceJob) (*MaintenanceService, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	return &MaintenanceService{
		schedule: schedule,
		spec:     spec,
		jobs:     jobs,
		timeout:  5 * time.Minute,
		name:     "maintenance",
	}, nil
}

// Serve implements suture.Service.
func (s *MaintenanceService) Serve(ctx context.Context) error {
	logger := logging.WithComponent(s.name)
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		_ = s.RunOnce(runCtx)
	}))

	c.Start()
	logger.Info().Str("schedule", s.spec).Int("jobs", len(s.jobs)).Msg("Maintenance scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// RunOnce runs every job in order. A failing job does not stop the rest;
// the failures are joined.
func (s *MaintenanceService) RunOnce(ctx context.Context) error {
	logger := logging.WithComponent(s.name)
	var errs []error
	for _, job := range s.jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			MaintenanceRuns.WithLabelValues(job.Name, "error").Inc()
			logger.Error().Err(err).Str("job", job.Name).Msg("Maintenance job failed")
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
			continue
		}
		MaintenanceRuns.WithLabelValues(job.Name, "success").Inc()
		logger.Debug().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Maintenance job completed")
	}
	return errors.Join(errs...)
}

// String implements fmt.Stringer for suture's logs.
func (s *MaintenanceService) String() string {
	return s.name
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
