package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/types"
)

func writeScheduleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write schedule file: %v", err)
	}
	return path
}

func TestLoadScheduleConfig(t *testing.T) {
	path := writeScheduleFile(t, `
entries:
  - period_type: monthly
    report_type: institution
    every: 24h
  - period_type: quarterly
    report_type: market
    every: 72h
`)

	cfg, err := LoadScheduleConfig(path)
	if err != nil {
		t.Fatalf("LoadScheduleConfig: %v", err)
	}
	if len(cfg.Entries) != 2 {
		t.Fatalf("entries = %d", len(cfg.Entries))
	}
	if cfg.Entries[0].Every != 24*time.Hour {
		t.Fatalf("first interval = %v", cfg.Entries[0].Every)
	}
	if cfg.Entries[1].ReportType != types.ReportTypeMarket {
		t.Fatalf("second report type = %q", cfg.Entries[1].ReportType)
	}
}

func TestLoadScheduleConfigEmptyPath(t *testing.T) {
	cfg, err := LoadScheduleConfig("")
	if err != nil {
		t.Fatalf("empty path must disable scheduling, got %v", err)
	}
	if len(cfg.Entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(cfg.Entries))
	}
}

func TestLoadScheduleConfigRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"bad period": `
entries:
  - period_type: fortnightly
    report_type: institution
    every: 24h
`,
		"bad report type": `
entries:
  - period_type: monthly
    report_type: pdf
    every: 24h
`,
		"missing interval": `
entries:
  - period_type: monthly
    report_type: institution
`,
	}
	for name, content := range cases {
		if _, err := LoadScheduleConfig(writeScheduleFile(t, content)); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
			t.Fatalf("%s: err = %v, want ErrInvalidArgument", name, err)
		}
	}
}

func TestEnqueueReportJobValidation(t *testing.T) {
	academic := newFakeAcademicRepo()
	institutionID := seedInstitution(academic)
	jobRepo := &fakeJobRepo{}
	svc := NewSchedulerService(jobRepo, academic, ScheduleConfig{}, newTestLogger(t))
	ctx := context.Background()

	if _, err := svc.EnqueueReportJob(ctx, &institutionID, "weekly", types.ReportTypeInstitution, time.Now()); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("bad period type: err = %v", err)
	}
	if _, err := svc.EnqueueReportJob(ctx, &institutionID, types.PeriodMonthly, "csv", time.Now()); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("bad report type: err = %v", err)
	}
	if _, err := svc.EnqueueReportJob(ctx, nil, types.PeriodMonthly, types.ReportTypeInstitution, time.Now()); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("missing institution: err = %v", err)
	}
	unknown := uuid.New()
	if _, err := svc.EnqueueReportJob(ctx, &unknown, types.PeriodMonthly, types.ReportTypeInstitution, time.Now()); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("unknown institution: err = %v", err)
	}
	if len(jobRepo.jobs) != 0 {
		t.Fatalf("no job should have been enqueued, got %d", len(jobRepo.jobs))
	}
}

func TestEnqueueReportJobCreatesPendingJob(t *testing.T) {
	academic := newFakeAcademicRepo()
	institutionID := seedInstitution(academic)
	jobRepo := &fakeJobRepo{}
	svc := NewSchedulerService(jobRepo, academic, ScheduleConfig{}, newTestLogger(t))

	scheduledFor := time.Now().Add(time.Hour)
	job, err := svc.EnqueueReportJob(context.Background(), &institutionID, types.PeriodMonthly, types.ReportTypeInstitution, scheduledFor)
	if err != nil {
		t.Fatalf("EnqueueReportJob: %v", err)
	}

	if job.Status != types.JobStatusPending {
		t.Fatalf("status = %q, want pending", job.Status)
	}
	if job.MaxRetries != types.DefaultMaxRetries {
		t.Fatalf("max retries = %d", job.MaxRetries)
	}
	if !job.ScheduledFor.Equal(scheduledFor) {
		t.Fatalf("scheduled for = %v", job.ScheduledFor)
	}
	if job.InstitutionID == nil || *job.InstitutionID != institutionID {
		t.Fatalf("institution id = %v", job.InstitutionID)
	}
}

func TestEnqueueMarketJobNeedsNoInstitution(t *testing.T) {
	jobRepo := &fakeJobRepo{}
	svc := NewSchedulerService(jobRepo, newFakeAcademicRepo(), ScheduleConfig{}, newTestLogger(t))

	job, err := svc.EnqueueReportJob(context.Background(), nil, types.PeriodQuarterly, types.ReportTypeMarket, time.Time{})
	if err != nil {
		t.Fatalf("EnqueueReportJob: %v", err)
	}
	if job.InstitutionID != nil {
		t.Fatalf("market job must not carry an institution id")
	}
	if job.ScheduledFor.IsZero() {
		t.Fatalf("zero schedule time must default to now")
	}
}
