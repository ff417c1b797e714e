package vector

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Payload field names shared by the sync and insight layers.
const (
	FieldInstitutionID   = "institution_id"
	FieldInstitutionName = "institution_name"
	FieldInstitutionType = "institution_type"
	FieldRegion          = "region"
	FieldPeriodLabel     = "period_label"
	FieldReportType      = "report_type"
	FieldStudentCount    = "student_count"
	FieldOverallScore    = "overall_score"
	FieldNationalRank    = "national_rank"
	FieldDocument        = "document"
)

// AnalyticsDocument is the denormalized projection of a report that gets
// embedded and stored in the index payload. Not authoritative.
type AnalyticsDocument struct {
	ReportID        uuid.UUID          `json:"report_id"`
	InstitutionID   uuid.UUID          `json:"institution_id"`
	InstitutionName string             `json:"institution_name"`
	InstitutionType string             `json:"institution_type"`
	Region          string             `json:"region"`
	PeriodLabel     string             `json:"period_label"`
	ReportType      string             `json:"report_type"`
	StudentCount    int                `json:"student_count"`
	OverallScore    float64            `json:"overall_score"`
	NationalRank    *int               `json:"national_rank,omitempty"`
	Narrative       string             `json:"narrative,omitempty"`
	Achievements    []string           `json:"achievements,omitempty"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// CombinedText builds the text representation handed to the embedding
// collaborator: identity, narrative, achievements, then metrics in a
// deterministic key order so equal documents embed identically.
func (d AnalyticsDocument) CombinedText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s, %s). Period: %s.", d.InstitutionName, d.InstitutionType, d.Region, d.PeriodLabel)
	fmt.Fprintf(&b, " Students: %d. Overall score: %.1f.", d.StudentCount, d.OverallScore)
	if d.NationalRank != nil {
		fmt.Fprintf(&b, " National rank: %d.", *d.NationalRank)
	}
	if n := strings.TrimSpace(d.Narrative); n != "" {
		b.WriteString(" " + n)
	}
	if len(d.Achievements) > 0 {
		b.WriteString(" Achievements: " + strings.Join(d.Achievements, "; ") + ".")
	}
	if len(d.Metrics) > 0 {
		keys := make([]string, 0, len(d.Metrics))
		for k := range d.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%.2f", k, d.Metrics[k]))
		}
		b.WriteString(" Metrics: " + strings.Join(parts, ", ") + ".")
	}
	return b.String()
}

// PointPayload flattens the document into typed scalar payload fields
// plus the full serialized blob.
func (d AnalyticsDocument) PointPayload() (map[string]any, error) {
	blob, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("serialize analytics document: %w", err)
	}
	payload := map[string]any{
		FieldInstitutionID:   d.InstitutionID.String(),
		FieldInstitutionName: d.InstitutionName,
		FieldInstitutionType: d.InstitutionType,
		FieldRegion:          d.Region,
		FieldPeriodLabel:     d.PeriodLabel,
		FieldReportType:      d.ReportType,
		FieldStudentCount:    d.StudentCount,
		FieldOverallScore:    d.OverallScore,
		FieldDocument:        string(blob),
	}
	if d.NationalRank != nil {
		payload[FieldNationalRank] = *d.NationalRank
	}
	return payload, nil
}

// DocumentFromPayload restores a document from a search hit's payload.
func DocumentFromPayload(payload map[string]any) (AnalyticsDocument, error) {
	raw, _ := payload[FieldDocument].(string)
	if strings.TrimSpace(raw) == "" {
		return AnalyticsDocument{}, fmt.Errorf("payload has no %s field", FieldDocument)
	}
	var doc AnalyticsDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return AnalyticsDocument{}, fmt.Errorf("decode analytics document: %w", err)
	}
	return doc, nil
}
