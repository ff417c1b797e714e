package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

// ScheduleEntry is one recurring cadence from the schedule config file.
type ScheduleEntry struct {
	PeriodType string        `yaml:"period_type"`
	ReportType string        `yaml:"report_type"`
	Every      time.Duration `yaml:"every"`
}

func (e *ScheduleEntry) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		PeriodType string `yaml:"period_type"`
		ReportType string `yaml:"report_type"`
		Every      string `yaml:"every"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.PeriodType = raw.PeriodType
	e.ReportType = raw.ReportType
	if raw.Every != "" {
		every, err := time.ParseDuration(raw.Every)
		if err != nil {
			return fmt.Errorf("parse schedule interval %q: %w", raw.Every, err)
		}
		e.Every = every
	}
	return nil
}

type ScheduleConfig struct {
	Entries []ScheduleEntry `yaml:"entries"`
}

// LoadScheduleConfig reads the cadence file. A missing path disables
// recurring scheduling without error.
func LoadScheduleConfig(path string) (ScheduleConfig, error) {
	var cfg ScheduleConfig
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read schedule config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse schedule config: %w", err)
	}
	for i, e := range cfg.Entries {
		if !validPeriodType(e.PeriodType) {
			return cfg, fmt.Errorf("schedule entry %d: unknown period type %q: %w", i, e.PeriodType, pkgerrors.ErrInvalidArgument)
		}
		if !validReportType(e.ReportType) {
			return cfg, fmt.Errorf("schedule entry %d: unknown report type %q: %w", i, e.ReportType, pkgerrors.ErrInvalidArgument)
		}
		if e.Every <= 0 {
			return cfg, fmt.Errorf("schedule entry %d: interval must be positive: %w", i, pkgerrors.ErrInvalidArgument)
		}
	}
	return cfg, nil
}

// SchedulerService enqueues generation jobs, either on demand or on the
// recurring cadences from the schedule config.
type SchedulerService interface {
	EnqueueReportJob(ctx context.Context, institutionID *uuid.UUID, periodType, reportType string, scheduledFor time.Time) (*types.ReportGenerationJob, error)
	Run(ctx context.Context) error
}

type schedulerService struct {
	jobRepo  repos.ReportJobRepo
	academic repos.AcademicRecordRepo
	cfg      ScheduleConfig
	log      *logger.Logger
}

func NewSchedulerService(jobRepo repos.ReportJobRepo, academic repos.AcademicRecordRepo, cfg ScheduleConfig, baseLog *logger.Logger) SchedulerService {
	return &schedulerService{
		jobRepo:  jobRepo,
		academic: academic,
		cfg:      cfg,
		log:      baseLog.With("service", "SchedulerService"),
	}
}

func (s *schedulerService) EnqueueReportJob(ctx context.Context, institutionID *uuid.UUID, periodType, reportType string, scheduledFor time.Time) (*types.ReportGenerationJob, error) {
	if !validPeriodType(periodType) {
		return nil, fmt.Errorf("unknown period type %q: %w", periodType, pkgerrors.ErrInvalidArgument)
	}
	if !validReportType(reportType) {
		return nil, fmt.Errorf("unknown report type %q: %w", reportType, pkgerrors.ErrInvalidArgument)
	}
	if reportType == types.ReportTypeInstitution {
		if institutionID == nil || *institutionID == uuid.Nil {
			return nil, fmt.Errorf("institution report requires an institution id: %w", pkgerrors.ErrInvalidArgument)
		}
		institution, err := s.academic.GetInstitutionByID(ctx, nil, *institutionID)
		if err != nil {
			return nil, fmt.Errorf("validate institution: %w", err)
		}
		if institution == nil {
			return nil, fmt.Errorf("institution %s: %w", *institutionID, pkgerrors.ErrNotFound)
		}
	}
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	job := &types.ReportGenerationJob{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		PeriodType:    periodType,
		ReportType:    reportType,
		ScheduledFor:  scheduledFor,
		Status:        types.JobStatusPending,
		MaxRetries:    types.DefaultMaxRetries,
	}
	created, err := s.jobRepo.Create(ctx, nil, []*types.ReportGenerationJob{job})
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.log.Info("report job enqueued",
		"job_id", created[0].ID,
		"report_type", reportType,
		"period_type", periodType,
		"scheduled_for", scheduledFor)
	return created[0], nil
}

// Run drives the recurring cadences until the context is cancelled.
// Returns nil when cancelled or when no cadences are configured.
func (s *schedulerService) Run(ctx context.Context) error {
	if len(s.cfg.Entries) == 0 {
		s.log.Info("no recurring schedule configured")
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, entry := range s.cfg.Entries {
		entry := entry
		g.Go(func() error {
			ticker := time.NewTicker(entry.Every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					s.enqueueCadence(ctx, entry)
				}
			}
		})
	}
	return g.Wait()
}

func (s *schedulerService) enqueueCadence(ctx context.Context, entry ScheduleEntry) {
	now := time.Now()
	if entry.ReportType == types.ReportTypeMarket {
		if _, err := s.EnqueueReportJob(ctx, nil, entry.PeriodType, entry.ReportType, now); err != nil {
			s.log.Error("cadence enqueue failed", "report_type", entry.ReportType, "error", err)
		}
		return
	}

	ids, err := s.academic.ListInstitutionIDs(ctx, nil)
	if err != nil {
		s.log.Error("cadence institution listing failed", "error", err)
		return
	}
	for _, id := range ids {
		id := id
		if _, err := s.EnqueueReportJob(ctx, &id, entry.PeriodType, entry.ReportType, now); err != nil {
			s.log.Error("cadence enqueue failed", "institution_id", id, "error", err)
		}
	}
}

func validPeriodType(periodType string) bool {
	switch periodType {
	case types.PeriodMonthly, types.PeriodQuarterly, types.PeriodSemester, types.PeriodYearly:
		return true
	}
	return false
}

func validReportType(reportType string) bool {
	switch reportType {
	case types.ReportTypeInstitution, types.ReportTypeMarket:
		return true
	}
	return false
}
