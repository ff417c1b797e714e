package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmarkov/edumetrics-backend/internal/logger"
	pkgerrors "github.com/tmarkov/edumetrics-backend/internal/pkg/errors"
	"github.com/tmarkov/edumetrics-backend/internal/repos"
	"github.com/tmarkov/edumetrics-backend/internal/vector"
)

// DegradedAnswerMessage is returned verbatim whenever question answering
// fails anywhere in the pipeline.
const DegradedAnswerMessage = "The analytics assistant is temporarily unavailable. Please try again in a few minutes."

const defaultInsightTopK = 5

// ContextAnswerer turns a question plus retrieved context snippets into
// an answer.
type ContextAnswerer interface {
	AnswerWithContext(ctx context.Context, question string, contexts []string) (string, error)
}

// SimilarInstitution is one similarity hit with its source document.
type SimilarInstitution struct {
	InstitutionID   uuid.UUID `json:"institution_id"`
	InstitutionName string    `json:"institution_name"`
	Score           float64   `json:"score"`
	PeriodLabel     string    `json:"period_label"`
	OverallScore    float64   `json:"overall_score"`
	StudentCount    int       `json:"student_count"`
}

type InsightService interface {
	FindSimilarInstitutions(ctx context.Context, institutionID uuid.UUID, topK int) ([]SimilarInstitution, error)
	// AnswerQuestion never returns an error to the caller; failures
	// degrade to DegradedAnswerMessage.
	AnswerQuestion(ctx context.Context, question string, topK int) string
}

type insightService struct {
	academic   repos.AcademicRecordRepo
	reportRepo repos.InstitutionReportRepo
	store      vector.Store
	embedder   Embedder
	answerer   ContextAnswerer
	log        *logger.Logger
}

func NewInsightService(
	academic repos.AcademicRecordRepo,
	reportRepo repos.InstitutionReportRepo,
	store vector.Store,
	embedder Embedder,
	answerer ContextAnswerer,
	baseLog *logger.Logger,
) InsightService {
	return &insightService{
		academic:   academic,
		reportRepo: reportRepo,
		store:      store,
		embedder:   embedder,
		answerer:   answerer,
		log:        baseLog.With("service", "InsightService"),
	}
}

func (s *insightService) FindSimilarInstitutions(ctx context.Context, institutionID uuid.UUID, topK int) ([]SimilarInstitution, error) {
	if topK <= 0 {
		topK = defaultInsightTopK
	}

	institution, err := s.academic.GetInstitutionByID(ctx, nil, institutionID)
	if err != nil {
		return nil, fmt.Errorf("load institution: %w", err)
	}
	if institution == nil {
		return nil, fmt.Errorf("institution %s: %w", institutionID, pkgerrors.ErrNotFound)
	}
	report, err := s.reportRepo.GetLatestByInstitution(ctx, nil, institutionID)
	if err != nil {
		return nil, fmt.Errorf("load latest report: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("no report for institution %s: %w", institutionID, pkgerrors.ErrNotFound)
	}

	doc := BuildAnalyticsDocument(report, institution)
	vectors, err := s.embedder.Embed(ctx, []string{doc.CombinedText()})
	if err != nil {
		return nil, fmt.Errorf("embed source document: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one input", len(vectors))
	}

	filter := map[string]any{
		vector.FieldInstitutionID: map[string]any{"$ne": institutionID.String()},
	}
	matches, err := s.store.Search(ctx, vectors[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]SimilarInstitution, 0, len(matches))
	for _, m := range matches {
		hit, err := vector.DocumentFromPayload(m.Payload)
		if err != nil {
			s.log.Warn("skipping malformed index payload", "point_id", m.ID, "error", err)
			continue
		}
		out = append(out, SimilarInstitution{
			InstitutionID:   hit.InstitutionID,
			InstitutionName: hit.InstitutionName,
			Score:           m.Score,
			PeriodLabel:     hit.PeriodLabel,
			OverallScore:    hit.OverallScore,
			StudentCount:    hit.StudentCount,
		})
	}
	return out, nil
}

func (s *insightService) AnswerQuestion(ctx context.Context, question string, topK int) string {
	if topK <= 0 {
		topK = defaultInsightTopK
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil || len(vectors) != 1 {
		s.log.Warn("question embedding failed", "error", err)
		return DegradedAnswerMessage
	}
	matches, err := s.store.Search(ctx, vectors[0], topK, nil)
	if err != nil {
		s.log.Warn("question search failed", "error", err)
		return DegradedAnswerMessage
	}

	contexts := make([]string, 0, len(matches))
	for _, m := range matches {
		doc, err := vector.DocumentFromPayload(m.Payload)
		if err != nil {
			continue
		}
		contexts = append(contexts, doc.CombinedText())
	}

	answer, err := s.answerer.AnswerWithContext(ctx, question, contexts)
	if err != nil {
		s.log.Warn("answer generation failed", "error", err)
		return DegradedAnswerMessage
	}
	return answer
}
