package premortem

import (
	"fmt"
	"strings"
	"time"
)

// BuildMarkdown renders a finished report as GitHub-flavored markdown,
// suitable for PDF export.
func BuildMarkdown(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Premortem Analysis Report\n\n")
	fmt.Fprintf(&b, "- Report ID: %s\n", report.ID)
	fmt.Fprintf(&b, "- Version: %d\n", report.Version)
	fmt.Fprintf(&b, "- Date: %s\n", report.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Status: %s\n\n", report.Status)
	fmt.Fprintf(&b, "**Idea**: %s\n\n", sanitize(report.OriginalIdea))

	if report.Status == StatusError {
		fmt.Fprintf(&b, "> INCOMPLETE: the analysis stopped at stage `%s`: %s. Sections below may be partial.\n\n",
			report.CurrentStage, sanitize(report.Error))
	}

	// --- Decomposition ---
	fmt.Fprintf(&b, "## Idea Breakdown\n\n")
	fmt.Fprintf(&b, "- Value proposition: %s\n", sanitize(report.Decomposition.ValueProposition))
	fmt.Fprintf(&b, "- Target market: %s\n", sanitize(report.Decomposition.TargetMarket))
	fmt.Fprintf(&b, "- Business model: %s\n\n", sanitize(report.Decomposition.BusinessModel))
	if len(report.Decomposition.KeyAssumptions) > 0 {
		fmt.Fprintf(&b, "Key assumptions:\n\n")
		for _, a := range report.Decomposition.KeyAssumptions {
			fmt.Fprintf(&b, "- %s\n", sanitize(a))
		}
		fmt.Fprintf(&b, "\n")
	}
	if len(report.Decomposition.TestableHypotheses) > 0 {
		fmt.Fprintf(&b, "Testable hypotheses:\n\n")
		for _, h := range report.Decomposition.TestableHypotheses {
			fmt.Fprintf(&b, "- %s\n", sanitize(h))
		}
		fmt.Fprintf(&b, "\n")
	}

	// --- Risk score ---
	fmt.Fprintf(&b, "## Risk Assessment\n\n")
	fmt.Fprintf(&b, "- Overall risk: `%s`\n", report.RiskScore.Overall)
	fmt.Fprintf(&b, "- Confidence: %d%%\n\n", report.RiskScore.Confidence)
	fmt.Fprintf(&b, "| Category | Level |\n|----------|-------|\n")
	fmt.Fprintf(&b, "| Market | %s |\n", report.RiskScore.Breakdown.Market)
	fmt.Fprintf(&b, "| Timing | %s |\n", report.RiskScore.Breakdown.Timing)
	fmt.Fprintf(&b, "| Regulatory | %s |\n", report.RiskScore.Breakdown.Regulatory)
	fmt.Fprintf(&b, "| Competition | %s |\n", report.RiskScore.Breakdown.Competition)
	fmt.Fprintf(&b, "| Execution | %s |\n\n", report.RiskScore.Breakdown.Execution)
	if report.RiskScore.Disclaimer != "" {
		fmt.Fprintf(&b, "> %s\n\n", sanitize(report.RiskScore.Disclaimer))
	}

	// --- Failure modes ---
	if len(report.FailureModes) > 0 {
		fmt.Fprintf(&b, "## Likely Failure Modes\n\n")
		for _, m := range report.FailureModes {
			fmt.Fprintf(&b, "### %s (%d%%, %s)\n\n", sanitize(m.Name), m.Probability, sanitize(m.Timeframe))
			fmt.Fprintf(&b, "%s\n\n", sanitize(m.Description))
			if len(m.Triggers) > 0 {
				fmt.Fprintf(&b, "Triggers:\n\n")
				for _, t := range m.Triggers {
					fmt.Fprintf(&b, "- %s\n", sanitize(t))
				}
				fmt.Fprintf(&b, "\n")
			}
			if len(m.Mitigations) > 0 {
				fmt.Fprintf(&b, "Mitigations:\n\n")
				for _, mit := range m.Mitigations {
					fmt.Fprintf(&b, "- %s\n", sanitize(mit))
				}
				fmt.Fprintf(&b, "\n")
			}
		}
	}

	writeRiskSection(&b, "Market Risks", report.MarketRisks)
	writeRiskSection(&b, "Timing Risks", report.TimingRisks)
	writeRiskSection(&b, "Regulatory Risks", report.RegulatoryRisks)

	if len(report.DistributionChallenges) > 0 {
		fmt.Fprintf(&b, "## Distribution Challenges\n\n")
		for _, c := range report.DistributionChallenges {
			fmt.Fprintf(&b, "- **%s** (`%s`): %s\n", sanitizeCell(c.Title), c.Severity, sanitize(c.Description))
		}
		fmt.Fprintf(&b, "\n")
	}

	writeComparableSection(&b, "Failed Comparables", report.FailedStartups)
	writeComparableSection(&b, "Surviving Comparables", report.SurvivingStartups)

	if len(report.ImprovementLevers) > 0 {
		fmt.Fprintf(&b, "## Improvement Levers\n\n")
		for _, l := range report.ImprovementLevers {
			fmt.Fprintf(&b, "### %s (impact %s, effort %s)\n\n", sanitize(l.Title), l.Impact, l.Effort)
			fmt.Fprintf(&b, "%s\n\n", sanitize(l.Description))
			for _, s := range l.Steps {
				fmt.Fprintf(&b, "- %s\n", sanitize(s))
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	if len(report.EarlyWarnings) > 0 {
		fmt.Fprintf(&b, "## Early Warning Signals\n\n")
		fmt.Fprintf(&b, "| Signal | Threshold | Monitoring | Urgency |\n")
		fmt.Fprintf(&b, "|--------|-----------|------------|--------|\n")
		for _, w := range report.EarlyWarnings {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				sanitizeCell(w.Signal), sanitizeCell(w.Threshold), sanitizeCell(w.MonitoringMethod), w.Urgency)
		}
		fmt.Fprintf(&b, "\n")
	}

	if len(report.Citations) > 0 {
		fmt.Fprintf(&b, "## Sources\n\n")
		for _, c := range report.Citations {
			if c.URL != "" {
				fmt.Fprintf(&b, "- [%s](%s) — %s\n", sanitize(c.Title), c.URL, sanitize(c.Source))
			} else {
				fmt.Fprintf(&b, "- %s — %s\n", sanitize(c.Title), sanitize(c.Source))
			}
		}
		fmt.Fprintf(&b, "\n")
	}

	return b.String()
}

func writeRiskSection(b *strings.Builder, title string, risks []Risk) {
	if len(risks) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, r := range risks {
		fmt.Fprintf(b, "### %s (`%s`)\n\n", sanitize(r.Title), r.Level)
		fmt.Fprintf(b, "%s\n\n", sanitize(r.Description))
		for _, e := range r.Evidence {
			fmt.Fprintf(b, "- %s\n", sanitize(e))
		}
		if len(r.Evidence) > 0 {
			fmt.Fprintf(b, "\n")
		}
	}
}

func writeComparableSection(b *strings.Builder, title string, comparables []Comparable) {
	if len(comparables) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	fmt.Fprintf(b, "| Name | Outcome | Detail |\n|------|---------|--------|\n")
	for _, c := range comparables {
		detail := c.Description
		if c.FailureReason != "" {
			detail = c.FailureReason
		}
		fmt.Fprintf(b, "| %s | %s | %s |\n", sanitizeCell(c.Name), c.Outcome, sanitizeCell(detail))
	}
	fmt.Fprintf(b, "\n")
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

func sanitizeCell(s string) string {
	s = sanitize(s)
	return strings.ReplaceAll(s, "|", "\\|")
}
