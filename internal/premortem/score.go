package premortem

import (
	"fmt"
	"strings"
)

// Category weights for the overall score. Hand-tuned configuration data.
var scoreWeights = [5]float64{0.25, 0.15, 0.15, 0.25, 0.20}

// Score runs stage 4. It is a pure function of its inputs: no I/O, no
// randomness, no clock reads.
func Score(dec IdeaDecomposition, syn SynthesisResult) ScoringResult {
	return ScoringResult{
		RiskScore:         calculateRiskScore(syn),
		ImprovementLevers: generateLevers(dec, syn),
		EarlyWarnings:     generateWarnings(syn),
	}
}

func calculateRiskScore(syn SynthesisResult) RiskScore {
	breakdown := RiskBreakdown{
		Market:      categoryScore(syn.MarketRisks),
		Timing:      categoryScore(syn.TimingRisks),
		Regulatory:  categoryScore(syn.RegulatoryRisks),
		Competition: competitionScore(len(syn.FailedComparables), len(syn.SurvivingComparables)),
		Execution:   executionScore(syn.FailureModes),
	}

	levels := [5]RiskLevel{breakdown.Market, breakdown.Timing, breakdown.Regulatory, breakdown.Competition, breakdown.Execution}
	weightedSum := 0.0
	for i, level := range levels {
		weightedSum += float64(level.Ordinal()) * scoreWeights[i]
	}
	overall := LevelFromScore(weightedSum)

	evidenceCount := len(syn.MarketRisks) + len(syn.TimingRisks) + len(syn.RegulatoryRisks) +
		len(syn.FailedComparables) + len(syn.Citations)
	confidence := 40 + evidenceCount*3
	if confidence > 85 {
		confidence = 85
	}

	return RiskScore{
		Overall:    overall,
		Confidence: confidence,
		Breakdown:  breakdown,
		Disclaimer: disclaimerFor(overall, confidence),
	}
}

func categoryScore(risks []Risk) RiskLevel {
	if len(risks) == 0 {
		return RiskLow
	}
	critical, elevated := 0, 0
	for _, r := range risks {
		switch r.Level {
		case RiskCritical:
			critical++
		case RiskElevated:
			elevated++
		}
	}
	switch {
	case critical >= 2:
		return RiskCritical
	case critical >= 1 || elevated >= 2:
		return RiskElevated
	case elevated >= 1:
		return RiskModerate
	default:
		return RiskLow
	}
}

func competitionScore(failedCount, survivingCount int) RiskLevel {
	ratio := float64(failedCount)
	if survivingCount > 0 {
		ratio = float64(failedCount) / float64(survivingCount)
	}
	switch {
	case ratio >= 3 || (failedCount >= 5 && survivingCount <= 1):
		return RiskCritical
	case ratio >= 2 || failedCount >= 3:
		return RiskElevated
	case ratio >= 1 || failedCount >= 2:
		return RiskModerate
	default:
		return RiskLow
	}
}

func executionScore(modes []FailureMode) RiskLevel {
	avg := 50.0
	if len(modes) > 0 {
		sum := 0
		for _, m := range modes {
			sum += m.Probability
		}
		avg = float64(sum) / float64(len(modes))
	}
	switch {
	case avg >= 70:
		return RiskCritical
	case avg >= 55:
		return RiskElevated
	case avg >= 40:
		return RiskModerate
	default:
		return RiskLow
	}
}

func disclaimerFor(overall RiskLevel, confidence int) string {
	switch overall {
	case RiskCritical:
		return fmt.Sprintf("This assessment reflects historical patterns suggesting elevated risk factors. %d%% of similar ventures have encountered significant challenges. This is not a prediction of failure, but an indicator of areas requiring careful attention.", confidence)
	case RiskElevated:
		return fmt.Sprintf("Historical data indicates several risk factors common in this space. With %d%% evidence coverage, we recommend addressing the highlighted concerns while recognizing that many successful startups have navigated similar challenges.", confidence)
	case RiskModerate:
		return fmt.Sprintf("The risk profile shows a mix of historical patterns. At %d%% confidence, some challenges are common while others are less prevalent. Success depends heavily on execution and market timing.", confidence)
	default:
		return fmt.Sprintf("Fewer common failure patterns are present based on %d%% of available evidence. However, this does not guarantee success—novel challenges may emerge that aren't reflected in historical data.", confidence)
	}
}

func generateLevers(dec IdeaDecomposition, syn SynthesisResult) []Lever {
	levers := []Lever{}

	for _, mode := range firstN(syn.FailureModes, 3) {
		if len(mode.Mitigations) == 0 {
			continue
		}
		impact := ImpactMedium
		if mode.Probability >= 60 {
			impact = ImpactHigh
		}
		levers = append(levers, Lever{
			Title:       "Mitigate: " + mode.Name,
			Description: mode.Mitigations[0],
			Impact:      impact,
			Effort:      ImpactMedium,
			Category:    LeverProduct,
			Steps:       mode.Mitigations,
		})
	}

	for _, r := range syn.MarketRisks {
		if r.Category == "Competition" {
			levers = append(levers, Lever{
				Title:       "Differentiation Strategy",
				Description: "Develop unique positioning against identified competitors",
				Impact:      ImpactHigh,
				Effort:      ImpactHigh,
				Category:    LeverMarket,
				Steps: []string{
					"Identify underserved segments competitors ignore",
					"Build proprietary data or technology moat",
					"Focus on specific vertical before expanding",
					"Create switching costs through integrations",
				},
			})
			break
		}
	}

	if len(dec.KeyAssumptions) > 0 {
		steps := make([]string, 0, len(dec.KeyAssumptions))
		for _, a := range dec.KeyAssumptions {
			steps = append(steps, "Validate: "+a)
		}
		levers = append(levers, Lever{
			Title:       "Assumption Validation Sprint",
			Description: "Systematically test critical assumptions before full commitment",
			Impact:      ImpactHigh,
			Effort:      ImpactLow,
			Category:    LeverProduct,
			Steps:       steps,
		})
	}

	if len(dec.TestableHypotheses) > 0 {
		steps := make([]string, 0, len(dec.TestableHypotheses))
		for _, h := range dec.TestableHypotheses {
			steps = append(steps, "Test: "+h)
		}
		levers = append(levers, Lever{
			Title:       "Hypothesis Testing Plan",
			Description: "Run experiments to validate or invalidate core hypotheses",
			Impact:      ImpactHigh,
			Effort:      ImpactMedium,
			Category:    LeverProduct,
			Steps:       steps,
		})
	}

	if len(syn.DistributionChallenges) > 0 {
		levers = append(levers, Lever{
			Title:       "Distribution Strategy",
			Description: "Develop alternative channels to reduce distribution risk",
			Impact:      ImpactHigh,
			Effort:      ImpactHigh,
			Category:    LeverMarket,
			Steps: []string{
				"Identify organic/viral growth mechanisms",
				"Build partnership distribution channels",
				"Create content marketing engine",
				"Develop referral incentive programs",
			},
		})
	}

	if len(syn.SurvivingComparables) > 0 {
		steps := []string{}
		for _, c := range firstN(syn.SurvivingComparables, 4) {
			detail := "strategy and positioning"
			if len(c.Differences) > 0 && c.Differences[0] != "" {
				detail = c.Differences[0]
			}
			steps = append(steps, fmt.Sprintf("Analyze %s: %s", c.Name, detail))
		}
		levers = append(levers, Lever{
			Title:       "Competitive Intelligence",
			Description: "Study successful competitors for strategic insights",
			Impact:      ImpactMedium,
			Effort:      ImpactLow,
			Category:    LeverMarket,
			Steps:       steps,
		})
	}

	if len(levers) > MaxLevers {
		levers = levers[:MaxLevers]
	}
	for i := range levers {
		levers[i].ID = fmt.Sprintf("lever-%d", i+1)
	}
	return levers
}

func generateWarnings(syn SynthesisResult) []Warning {
	warnings := []Warning{}

	for _, mode := range firstN(syn.FailureModes, 4) {
		signal := "Signs of " + mode.Name
		if len(mode.Triggers) > 0 {
			signal = mode.Triggers[0]
		}
		threshold := "When pattern becomes consistent"
		if len(mode.Triggers) > 1 {
			threshold = mode.Triggers[1]
		}
		urgency := RiskModerate
		if mode.Probability >= 60 {
			urgency = RiskElevated
		}
		lowered := strings.ToLower(mode.Name)
		warnings = append(warnings, Warning{
			Signal:           signal,
			Description:      "Early indicator of " + lowered,
			Threshold:        threshold,
			MonitoringMethod: "Track metrics related to " + strings.SplitN(lowered, " ", 2)[0],
			Urgency:          urgency,
		})
	}

	for _, risk := range firstN(syn.MarketRisks, 2) {
		threshold := "Significant change in market conditions"
		if len(risk.Evidence) > 0 && risk.Evidence[0] != "" {
			threshold = risk.Evidence[0]
		}
		warnings = append(warnings, Warning{
			Signal:           risk.Category + " deterioration",
			Description:      truncate(risk.Description, 100),
			Threshold:        threshold,
			MonitoringMethod: "Monthly market analysis and competitor tracking",
			Urgency:          risk.Level,
		})
	}

	warnings = append(warnings, Warning{
		Signal:           "Runway dropping below 6 months",
		Description:      "Cash runway insufficient for next fundraise or pivot",
		Threshold:        "Less than 6 months of operating capital",
		MonitoringMethod: "Weekly cash flow monitoring",
		Urgency:          RiskCritical,
	}, Warning{
		Signal:           "Retention rate decline",
		Description:      "User/customer retention dropping below industry benchmarks",
		Threshold:        "Month-over-month retention drops below 80%",
		MonitoringMethod: "Cohort analysis dashboard",
		Urgency:          RiskElevated,
	})

	if len(warnings) > MaxWarnings {
		warnings = warnings[:MaxWarnings]
	}
	for i := range warnings {
		warnings[i].ID = fmt.Sprintf("warn-%d", i+1)
	}
	return warnings
}
