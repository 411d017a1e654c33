package premortem

import (
	"strings"
	"testing"
	"time"
)

func markdownFixtureReport() *Report {
	return &Report{
		ID:           "report-1700000000-000001",
		Version:      2,
		UpdatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		OriginalIdea: "A monthly subscription tool\nfor freelancers",
		Status:       StatusComplete,
		Decomposition: IdeaDecomposition{
			ValueProposition: "Invoicing for freelancers",
			TargetMarket:     "Freelancers",
			BusinessModel:    "Subscription-based SaaS",
			KeyAssumptions:   []string{"Freelancers pay monthly"},
		},
		FailureModes: []FailureMode{{
			ID: "fm-1", Name: "Churn Death Spiral", Description: "d", Probability: 60,
			Timeframe: "12-24 months", Triggers: []string{"Monthly churn > 5%"}, Mitigations: []string{"Customer success program"},
		}},
		MarketRisks: []Risk{{
			ID: "mr-1", Title: "High Market Saturation", Level: RiskElevated,
			Description: "crowded", Evidence: []string{"6 competitors found"},
		}},
		FailedStartups: []Comparable{{
			Name: "Dead|Co", Outcome: OutcomeFailed, FailureReason: "ran out of money",
		}},
		EarlyWarnings: []Warning{{
			Signal: "Runway dropping below 6 months", Threshold: "6 months", MonitoringMethod: "Monthly burn review", Urgency: RiskCritical,
		}},
		RiskScore: RiskScore{
			Overall:    RiskModerate,
			Confidence: 55,
			Breakdown:  RiskBreakdown{Market: RiskModerate, Timing: RiskLow, Regulatory: RiskLow, Competition: RiskElevated, Execution: RiskModerate},
			Disclaimer: "Mixed signals.",
		},
		Citations: []Citation{
			{ID: "citation-1", Source: "example.com", URL: "https://example.com/report", Title: "Market Report"},
			{ID: "citation-2", Source: "inline", Title: "Reference 2"},
		},
	}
}

func TestBuildMarkdownSections(t *testing.T) {
	md := BuildMarkdown(markdownFixtureReport())

	for _, want := range []string{
		"# Premortem Analysis Report",
		"- Report ID: report-1700000000-000001",
		"- Version: 2",
		"## Idea Breakdown",
		"## Risk Assessment",
		"| Competition | ELEVATED |",
		"> Mixed signals.",
		"### Churn Death Spiral (60%, 12-24 months)",
		"## Market Risks",
		"## Failed Comparables",
		"## Early Warning Signals",
		"## Sources",
		"[Market Report](https://example.com/report)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// Newlines in free text are flattened so list items stay intact.
	if !strings.Contains(md, "**Idea**: A monthly subscription tool for freelancers") {
		t.Error("idea text not sanitized")
	}
	// Pipes in table cells are escaped.
	if !strings.Contains(md, `| Dead\|Co |`) {
		t.Error("table cell pipe not escaped")
	}
	if strings.Contains(md, "INCOMPLETE") {
		t.Error("complete report should not carry the incomplete banner")
	}
}

func TestBuildMarkdownErrorBanner(t *testing.T) {
	report := markdownFixtureReport()
	report.Status = StatusError
	report.CurrentStage = StageRetrieval
	report.Error = "pipeline panic: boom"

	md := BuildMarkdown(report)
	if !strings.Contains(md, "> INCOMPLETE: the analysis stopped at stage `retrieval`: pipeline panic: boom.") {
		t.Fatalf("missing incomplete banner in:\n%s", md)
	}
}

func TestBuildMarkdownOmitsEmptySections(t *testing.T) {
	md := BuildMarkdown(&Report{ID: "report-1", Status: StatusComplete})

	for _, absent := range []string{
		"## Likely Failure Modes",
		"## Market Risks",
		"## Distribution Challenges",
		"## Improvement Levers",
		"## Sources",
	} {
		if strings.Contains(md, absent) {
			t.Errorf("markdown should omit %q for an empty report", absent)
		}
	}
	if !strings.Contains(md, "## Risk Assessment") {
		t.Error("risk assessment section is always present")
	}
}
