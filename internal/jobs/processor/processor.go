// Package processor runs the polling worker that drains due report
// generation jobs. Safe for a single active instance; concurrent
// instances are kept from double-processing by the claim query's row
// locking.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	redisclient "github.com/tmarkov/edumetrics-backend/internal/clients/redis"
	"github.com/tmarkov/edumetrics-backend/internal/logger"
	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/services"
	"github.com/tmarkov/edumetrics-backend/internal/types"
	"github.com/tmarkov/edumetrics-backend/internal/utils"
)

const (
	defaultPollIntervalSeconds = 120
	defaultConcurrency         = 2
	recordTimeout              = 10 * time.Second
)

var tracer = otel.Tracer("jobs.processor")

type Processor struct {
	jobRepo      repos.ReportJobRepo
	reports      services.ReportService
	bus          redisclient.EventBus
	log          *logger.Logger
	pollInterval time.Duration
	concurrency  int
}

func New(jobRepo repos.ReportJobRepo, reports services.ReportService, bus redisclient.EventBus, baseLog *logger.Logger) *Processor {
	log := baseLog.With("service", "JobProcessor")
	pollSeconds := utils.GetEnvAsInt("POLL_INTERVAL_SECONDS", defaultPollIntervalSeconds, log)
	if pollSeconds <= 0 {
		pollSeconds = defaultPollIntervalSeconds
	}
	concurrency := utils.GetEnvAsInt("JOB_CONCURRENCY", defaultConcurrency, log)
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Processor{
		jobRepo:      jobRepo,
		reports:      reports,
		bus:          bus,
		log:          log,
		pollInterval: time.Duration(pollSeconds) * time.Second,
		concurrency:  concurrency,
	}
}

// Run polls until the context is cancelled. The first cycle starts
// immediately rather than waiting a full interval.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("job processor started",
		"poll_interval", p.pollInterval,
		"concurrency", p.concurrency)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("job processor stopping")
			return nil
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle claims every due job and executes them under the concurrency
// limit. Claims happen in schedule-time order; execution order across
// dispatched jobs is not guaranteed.
func (p *Processor) runCycle(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	claimed := 0
	for {
		if ctx.Err() != nil {
			break
		}
		job, err := p.jobRepo.ClaimNextDue(ctx, nil, time.Now())
		if err != nil {
			p.log.Error("job claim failed", "error", err)
			break
		}
		if job == nil {
			break
		}
		claimed++
		g.Go(func() error {
			p.execute(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	if claimed > 0 {
		p.log.Info("poll cycle finished", "jobs_processed", claimed)
	}
}

// execute runs one claimed job in isolation and records its transition.
// A panic inside generation is recorded as a job failure instead of
// taking down the poll loop.
func (p *Processor) execute(ctx context.Context, job *types.ReportGenerationJob) {
	ctx, span := tracer.Start(ctx, "processor.execute",
		trace.WithAttributes(
			attribute.String("job_id", job.ID.String()),
			attribute.String("report_type", job.ReportType),
			attribute.String("period_type", job.PeriodType),
		),
	)
	defer span.End()

	var reportID *uuid.UUID
	var execErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				execErr = fmt.Errorf("report generation panicked: %v", r)
				p.log.Error("job execution panicked", "job_id", job.ID, "panic", r)
			}
		}()
		reportID, execErr = p.generate(ctx, job)
	}()

	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "report generation failed")
	}

	transition := NextTransition(job, reportID, execErr, time.Now())
	span.SetAttributes(attribute.String("job_status", transition.Status))
	p.record(job, transition)
}

func (p *Processor) generate(ctx context.Context, job *types.ReportGenerationJob) (*uuid.UUID, error) {
	from, to := periodWindow(job.PeriodType, job.ScheduledFor)

	switch job.ReportType {
	case types.ReportTypeMarket:
		report, err := p.reports.GenerateMarketReport(ctx, job.PeriodType, services.PeriodLabel(job.PeriodType, from))
		if err != nil {
			return nil, err
		}
		return &report.ID, nil
	default:
		if job.InstitutionID == nil {
			return nil, fmt.Errorf("institution job %s has no institution id: %w", job.ID, pkgerrors.ErrInvalidArgument)
		}
		report, err := p.reports.GenerateInstitutionReport(ctx, *job.InstitutionID, from, to, job.PeriodType)
		if err != nil {
			return nil, err
		}
		return &report.ID, nil
	}
}

// record persists the transition. Uses a fresh context so a cancelled
// job still gets its cancelled state written. If recording itself
// fails, the job stays in its last durable state and the loop goes on.
func (p *Processor) record(job *types.ReportGenerationJob, transition Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := p.jobRepo.UpdateFields(ctx, nil, job.ID, transition.Updates()); err != nil {
		p.log.Error("recording job transition failed, job left in last durable state",
			"job_id", job.ID,
			"status", transition.Status,
			"error", err)
		return
	}

	switch transition.Status {
	case types.JobStatusCompleted:
		p.log.Info("job completed", "job_id", job.ID, "report_id", transition.ReportID)
		p.publish(ctx, redisclient.EventReportGenerated, job, transition)
	case types.JobStatusFailed:
		p.log.Error("job failed terminally",
			"job_id", job.ID,
			"retry_count", transition.RetryCount,
			"error", transition.Error)
		p.publish(ctx, redisclient.EventJobFailed, job, transition)
	case types.JobStatusCancelled:
		p.log.Warn("job cancelled", "job_id", job.ID)
	default:
		p.log.Warn("job rescheduled",
			"job_id", job.ID,
			"retry_count", transition.RetryCount,
			"scheduled_for", transition.ScheduledFor,
			"error", transition.Error)
	}
}

func (p *Processor) publish(ctx context.Context, kind string, job *types.ReportGenerationJob, transition Transition) {
	if p.bus == nil {
		return
	}
	evt := redisclient.Event{
		Name:  kind,
		JobID: job.ID,
		Data: map[string]any{
			"report_type": job.ReportType,
			"period_type": job.PeriodType,
		},
		At: time.Now(),
	}
	if transition.ReportID != nil {
		evt.ReportID = transition.ReportID
	}
	if job.InstitutionID != nil {
		evt.InstitutionID = job.InstitutionID
	}
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.log.Warn("event publish failed", "kind", kind, "job_id", job.ID, "error", err)
	}
}

// periodWindow derives the reporting window ending at the job's
// scheduled time.
func periodWindow(periodType string, scheduledFor time.Time) (time.Time, time.Time) {
	to := scheduledFor
	switch periodType {
	case types.PeriodQuarterly:
		return to.AddDate(0, -3, 0), to
	case types.PeriodSemester:
		return to.AddDate(0, -6, 0), to
	case types.PeriodYearly:
		return to.AddDate(-1, 0, 0), to
	default:
		return to.AddDate(0, -1, 0), to
	}
}
