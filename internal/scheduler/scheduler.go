// Package scheduler runs the download and aggregation pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"geoclim/internal/services"
	"geoclim/pkg/logging"
)

// Downloader runs one batch
type Downloader interface {
	Run(ctx context.Context, req services.BatchRequest) (*services.BatchResult, error)
}

// Aggregator aggregates downloaded station files
type Aggregator interface {
	Run(ctx context.Context, req services.AggregationRequest) (*services.AggregationResult, error)
}

// PipelineJob downloads a batch and then aggregates the same stations and period.
// Aggregator may be nil, in which case only the download runs.
type PipelineJob struct {
	Downloader Downloader
	Aggregator Aggregator
	Request    services.BatchRequest
	Logger     *logging.StructuredLogger
}

// Name identifies the job in logs
func (j *PipelineJob) Name() string {
	return "pipeline:" + j.Request.ResourceID
}

// RunOnce runs the pipeline a single time
func (j *PipelineJob) RunOnce(ctx context.Context) error {
	batch, err := j.Downloader.Run(ctx, j.Request)
	if err != nil {
		return fmt.Errorf("batch download: %w", err)
	}
	if batch.Failed > 0 {
		j.Logger.Warn(ctx, "[SCHEDULE_PARTIAL] Batch finished with failed units", logging.Fields{
			"run_id": batch.RunID,
			"failed": batch.Failed,
		})
	}
	if j.Aggregator == nil {
		return nil
	}

	agg, err := j.Aggregator.Run(ctx, services.AggregationRequest{
		StationIDs: j.Request.StationIDs,
		Years:      j.Request.Years,
		StartMonth: j.Request.StartMonth,
		EndMonth:   j.Request.EndMonth,
	})
	if err != nil {
		return fmt.Errorf("aggregation: %w", err)
	}
	if len(agg.Errors) > 0 {
		j.Logger.Warn(ctx, "[SCHEDULE_AGG_ERRORS] Some stations were not aggregated", logging.Fields{
			"run_id":   batch.RunID,
			"stations": len(agg.Errors),
		})
	}
	return nil
}

// Job is something the scheduler can run
type Job interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler triggers a job on a cron spec without overlapping runs
type Scheduler struct {
	spec   string
	job    Job
	logger *logging.StructuredLogger
	cron   *cron.Cron
}

// New parses spec (standard five-field cron or descriptors like "@daily").
func New(spec string, job Job, logger *logging.StructuredLogger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		spec:   spec,
		job:    job,
		logger: logger,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start schedules the job and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error(ctx, "[SCHEDULE_RUN_ERROR] Scheduled run failed", logging.Fields{
				"job": s.job.Name(),
			}, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.logger.Info(ctx, "[SCHEDULE_START] Scheduler started", logging.Fields{
		"job":      s.job.Name(),
		"schedule": s.spec,
	})
	s.cron.Start()

	<-ctx.Done()
	// Wait for a running job to notice cancellation before returning.
	<-s.cron.Stop().Done()
	s.logger.Info(context.Background(), "[SCHEDULE_STOP] Scheduler stopped", logging.Fields{
		"job": s.job.Name(),
	})
	return ctx.Err()
}

// RunOnce runs the job immediately
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	s.logger.Info(ctx, "[SCHEDULE_RUN] Starting scheduled run", logging.Fields{
		"job": s.job.Name(),
	})
	if err := s.job.RunOnce(ctx); err != nil {
		return fmt.Errorf("%s run failed: %w", s.job.Name(), err)
	}
	s.logger.Info(ctx, "[SCHEDULE_RUN_COMPLETE] Scheduled run finished", logging.Fields{
		"job":              s.job.Name(),
		"duration_seconds": time.Since(start).Seconds(),
	})
	return nil
}

// cronLogger routes cron's own messages into the structured logger
type cronLogger struct {
	logger *logging.StructuredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(context.Background(), "[CRON] "+msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(context.Background(), "[CRON] "+msg, pairs(keysAndValues), err)
}

func pairs(kv []interface{}) logging.Fields {
	fields := make(logging.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
