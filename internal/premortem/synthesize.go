package premortem

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"premortem/internal/evidence"
)

// Synthesizer runs stage 3: it folds the retrieved evidence into failure
// modes, categorized risks, distribution challenges, and comparables. The
// model call for additional failure modes is best-effort; the rule catalog
// alone produces a usable result.
type Synthesizer struct {
	Source EvidenceSource
}

func (s *Synthesizer) Synthesize(ctx context.Context, dec IdeaDecomposition, ev RetrievalResult) SynthesisResult {
	citations := append([]Citation{}, ev.Citations...)

	modes, modeCitations := s.identifyFailureModes(ctx, dec, ev)
	citations = append(citations, modeCitations...)

	failed, surviving := categorizeComparables(ev.HistoricalFailures, ev.Competitors)

	return SynthesisResult{
		FailureModes:           modes,
		MarketRisks:            identifyMarketRisks(ev),
		TimingRisks:            identifyTimingRisks(dec, ev),
		RegulatoryRisks:        identifyRegulatoryRisks(ev),
		DistributionChallenges: identifyDistributionChallenges(dec, ev),
		FailedComparables:      failed,
		SurvivingComparables:   surviving,
		Citations:              citations,
	}
}

func (s *Synthesizer) identifyFailureModes(ctx context.Context, dec IdeaDecomposition, ev RetrievalResult) ([]FailureMode, []Citation) {
	modes := []FailureMode{}
	var citations []Citation

	if s.Source != nil {
		parsed, cites, err := s.queryFailurePatterns(ctx, dec, ev)
		if err != nil {
			log.Printf("premortem synthesize_patterns_failed err=%v", err)
		} else {
			modes = append(modes, parsed...)
			citations = cites
		}
	}

	modes = append(modes, catalogFailureModes(dec.BusinessModel)...)

	// Dedup by case-insensitive name, first occurrence wins.
	seen := map[string]bool{}
	deduped := modes[:0]
	for _, m := range modes {
		key := strings.ToLower(m.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, m)
	}
	if len(deduped) > MaxFailureModes {
		deduped = deduped[:MaxFailureModes]
	}
	return renumberFailureModes(deduped), citations
}

func (s *Synthesizer) queryFailurePatterns(ctx context.Context, dec IdeaDecomposition, ev RetrievalResult) ([]FailureMode, []Citation, error) {
	names := make([]string, 0, 5)
	for _, f := range firstN(ev.HistoricalFailures, 5) {
		names = append(names, f.Name)
	}

	prompt := fmt.Sprintf(`Analyze failure patterns for startups similar to:

Value proposition: %s
Business model: %s

Similar failed startups: %s

Identify the top 3-5 most common failure modes with:
- Name of the failure pattern
- Description
- How often it occurs
- Warning signs
- Mitigation strategies`, dec.ValueProposition, dec.BusinessModel, strings.Join(names, ", "))

	resp, err := s.Source.Query(ctx, evidence.PromptFailurePatterns, prompt, queryOptions(0.2, 4000, true))
	if err != nil {
		return nil, nil, err
	}
	return parseFailureModes(resp.Content), citationsFrom(resp), nil
}

// catalogFailureModes is the fixed rule catalog keyed by business-model
// keywords. Probabilities and timeframes are hand-tuned configuration data.
func catalogFailureModes(businessModel string) []FailureMode {
	model := strings.ToLower(businessModel)
	modes := []FailureMode{}

	if strings.Contains(model, "marketplace") {
		modes = append(modes, FailureMode{
			Name:        "Chicken-and-Egg Problem",
			Description: "Failure to achieve critical mass on both supply and demand sides simultaneously",
			Probability: 70,
			Timeframe:   "6-18 months",
			Triggers:    []string{"Imbalanced growth between supply/demand", "High churn on one side", "Poor unit economics early on"},
			Mitigations: []string{"Focus on one side first", "Create artificial supply", "Geographic concentration"},
			Citations:   []string{},
		})
	}

	if containsAny(model, "saas", "subscription") {
		modes = append(modes, FailureMode{
			Name:        "Churn Death Spiral",
			Description: "Customer churn rate exceeds acquisition rate, leading to inevitable decline",
			Probability: 60,
			Timeframe:   "12-24 months",
			Triggers:    []string{"Monthly churn > 5%", "Declining engagement metrics", "Feature requests not addressed"},
			Mitigations: []string{"Focus on activation and onboarding", "Build switching costs", "Customer success program"},
			Citations:   []string{},
		}, FailureMode{
			Name:        "CAC Blowout",
			Description: "Customer acquisition costs exceed lifetime value, making growth unprofitable",
			Probability: 55,
			Timeframe:   "12-18 months",
			Triggers:    []string{"Rising ad costs", "Declining conversion rates", "LTV < 3x CAC"},
			Mitigations: []string{"Organic growth channels", "Product-led growth", "Referral programs"},
			Citations:   []string{},
		})
	}

	if containsAny(model, "consumer", "app") {
		modes = append(modes, FailureMode{
			Name:        "Viral Loop Failure",
			Description: "Product fails to achieve organic viral growth, requiring unsustainable paid acquisition",
			Probability: 75,
			Timeframe:   "3-12 months",
			Triggers:    []string{"K-factor < 1", "Low sharing/invite rate", "Poor retention D1/D7/D30"},
			Mitigations: []string{"Build sharing into core loop", "Incentivize referrals", "Community building"},
			Citations:   []string{},
		})
	}

	if containsAny(model, "ai", "ml") {
		modes = append(modes, FailureMode{
			Name:        "AI Commoditization",
			Description: "Large incumbents release similar AI features, eliminating startup advantage",
			Probability: 65,
			Timeframe:   "6-18 months",
			Triggers:    []string{"Foundation model improvements", "Big tech feature announcements", "Open source alternatives"},
			Mitigations: []string{"Proprietary data moat", "Vertical specialization", "Workflow integration"},
			Citations:   []string{},
		})
	}

	modes = append(modes, FailureMode{
		Name:        "Premature Scaling",
		Description: "Scaling operations before achieving product-market fit, burning capital inefficiently",
		Probability: 50,
		Timeframe:   "12-24 months",
		Triggers:    []string{"Hiring ahead of revenue", "Multiple market expansion", "Feature bloat"},
		Mitigations: []string{"Focus on one market segment", "Validate before scaling", "Lean operations"},
		Citations:   []string{},
	})

	return modes
}

var (
	modeSplitRe = regexp.MustCompile(`\d+\.|#{1,3}\s`)
	modeNameRe  = regexp.MustCompile(`\*\*([^*]+)\*\*|^([A-Z][^:\n]+)`)
	modeProbRe  = regexp.MustCompile(`(\d+)\s*%`)
	modeTimeRe  = regexp.MustCompile(`(?i)(\d+[-–]\d+\s*(?:months?|years?))`)
	boldMarksRe = regexp.MustCompile(`\*\*`)
)

// parseFailureModes extracts loosely structured failure modes from model
// prose. Unparseable sections are skipped; at most 5 modes are taken.
func parseFailureModes(content string) []FailureMode {
	modes := []FailureMode{}

	for _, section := range modeSplitRe.Split(content, -1) {
		if len(section) < 50 {
			continue
		}
		nameMatch := modeNameRe.FindStringSubmatch(section)
		if nameMatch == nil {
			continue
		}
		name := nameMatch[1]
		if name == "" {
			name = nameMatch[2]
		}
		name = strings.TrimSpace(name)
		if len(name) < 5 || len(name) > 100 {
			continue
		}

		probability := 50
		if m := modeProbRe.FindStringSubmatch(section); m != nil {
			fmt.Sscanf(m[1], "%d", &probability)
		}

		timeframe := "12-24 months"
		if m := modeTimeRe.FindStringSubmatch(section); m != nil {
			timeframe = m[1]
		}

		modes = append(modes, FailureMode{
			Name:        name,
			Description: strings.TrimSpace(boldMarksRe.ReplaceAllString(truncate(section, 200), "")),
			Probability: probability,
			Timeframe:   timeframe,
			Triggers:    []string{},
			Mitigations: []string{},
			Citations:   []string{},
		})
		if len(modes) == 5 {
			break
		}
	}
	return modes
}

func renumberFailureModes(modes []FailureMode) []FailureMode {
	for i := range modes {
		modes[i].ID = fmt.Sprintf("fm-%d", i+1)
	}
	return modes
}

func identifyMarketRisks(ev RetrievalResult) []Risk {
	risks := []Risk{}

	if len(ev.Competitors) > 5 {
		level := RiskElevated
		if len(ev.Competitors) > 10 {
			level = RiskCritical
		}
		risks = append(risks, Risk{
			Category:             "Competition",
			Title:                "High Market Saturation",
			Description:          fmt.Sprintf("%d+ competitors identified in this space, indicating potential commoditization", len(ev.Competitors)),
			Level:                level,
			Evidence:             []string{fmt.Sprintf("%d competitors found", len(ev.Competitors))},
			Citations:            []string{},
			HistoricalPrevalence: 70,
		})
	}

	failedCompetitors := []Competitor{}
	for _, c := range ev.Competitors {
		status := strings.ToLower(c.Status)
		if strings.Contains(status, "shut") || strings.Contains(status, "failed") {
			failedCompetitors = append(failedCompetitors, c)
		}
	}
	if len(failedCompetitors) > 0 {
		level := RiskElevated
		if len(failedCompetitors) > 2 {
			level = RiskCritical
		}
		lines := make([]string, 0, len(failedCompetitors))
		for _, c := range failedCompetitors {
			lines = append(lines, c.Name+" - "+c.Status)
		}
		risks = append(risks, Risk{
			Category:             "Market Validation",
			Title:                "Prior Market Failures",
			Description:          fmt.Sprintf("%d similar companies have failed in this market", len(failedCompetitors)),
			Level:                level,
			Evidence:             lines,
			Citations:            []string{},
			HistoricalPrevalence: 60,
		})
	}

	if ev.MarketData.Size == "Unknown" || strings.Contains(ev.MarketData.Size, "million") {
		risks = append(risks, Risk{
			Category:             "Market Size",
			Title:                "Limited Market Size",
			Description:          "Market may be too small to support a venture-scale outcome",
			Level:                RiskModerate,
			Evidence:             []string{"Market size: " + ev.MarketData.Size},
			Citations:            []string{},
			HistoricalPrevalence: 40,
		})
	}

	return numberRisks("mr", risks)
}

func identifyTimingRisks(dec IdeaDecomposition, ev RetrievalResult) []Risk {
	risks := []Risk{}
	valueProp := strings.ToLower(dec.ValueProposition)

	if containsAny(valueProp, "ai", "gpt", "llm") {
		risks = append(risks, Risk{
			Category:             "Technology Timing",
			Title:                "AI Hype Cycle Risk",
			Description:          "Entering AI market during peak hype - high competition, inflated expectations, potential correction",
			Level:                RiskElevated,
			Evidence:             []string{"2023-2025 AI funding boom", "Rapid model commoditization"},
			Citations:            []string{},
			HistoricalPrevalence: 55,
		})
	}

	if len(ev.MarketData.Trends) > 0 {
		trendsText := strings.ToLower(strings.Join(ev.MarketData.Trends, " "))
		if containsAny(trendsText, "declining", "mature") {
			risks = append(risks, Risk{
				Category:             "Market Timing",
				Title:                "Late Market Entry",
				Description:          "Market shows signs of maturity or decline",
				Level:                RiskElevated,
				Evidence:             ev.MarketData.Trends,
				Citations:            []string{},
				HistoricalPrevalence: 45,
			})
		}
	}

	return numberRisks("tr", risks)
}

var digitsOnlyRe = regexp.MustCompile(`\D`)

func identifyRegulatoryRisks(ev RetrievalResult) []Risk {
	risks := make([]Risk, 0, len(ev.Regulations))
	for _, reg := range ev.Regulations {
		level := RiskModerate
		if strings.Contains(reg.ComplianceCost, "$") && parseLeadingInt(digitsOnlyRe.ReplaceAllString(reg.ComplianceCost, "")) > 50000 {
			level = RiskElevated
		}
		risks = append(risks, Risk{
			Category:             "Regulatory",
			Title:                reg.Regulation + " Compliance Required",
			Description:          reg.Jurisdiction + ": " + truncate(reg.Impact, 150),
			Level:                level,
			Evidence:             []string{"Compliance cost: " + reg.ComplianceCost},
			Citations:            []string{},
			HistoricalPrevalence: 30,
		})
	}
	return numberRisks("rr", risks)
}

func parseLeadingInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		if n > 1<<40 {
			break
		}
	}
	return n
}

func identifyDistributionChallenges(dec IdeaDecomposition, ev RetrievalResult) []Challenge {
	challenges := []Challenge{}
	market := strings.ToLower(dec.TargetMarket)
	model := strings.ToLower(dec.BusinessModel)

	if containsAny(market, "enterprise", "b2b") {
		challenges = append(challenges, Challenge{
			Type:        ChallengeDistribution,
			Title:       "Enterprise Sales Cycle",
			Description: "Long sales cycles (3-12 months), require dedicated sales team, high customer acquisition cost",
			Severity:    RiskElevated,
			Citations:   []string{},
		})
	}

	if containsAny(model, "app", "consumer") {
		challenges = append(challenges, Challenge{
			Type:        ChallengeDistribution,
			Title:       "App Store Discovery",
			Description: "Extremely competitive app stores, high CAC, algorithm dependency for visibility",
			Severity:    RiskCritical,
			Citations:   []string{},
		})
	}

	for _, c := range ev.Competitors {
		if strings.Contains(strings.ToLower(c.Description), "platform") {
			challenges = append(challenges, Challenge{
				Type:        ChallengeDistribution,
				Title:       "Platform Dependency Risk",
				Description: "Reliance on third-party platforms (Google, Apple, Meta) creates existential risk from policy changes",
				Severity:    RiskElevated,
				Citations:   []string{},
			})
			break
		}
	}

	for i := range challenges {
		challenges[i].ID = fmt.Sprintf("dc-%d", i+1)
	}
	return challenges
}

func categorizeComparables(failures []HistoricalFailure, competitors []Competitor) (failed, surviving []Comparable) {
	failed = []Comparable{}
	for _, f := range failures {
		lessons := []string{}
		if f.FailureReason != "" {
			lessons = append(lessons, f.FailureReason)
		}
		similarities := []string{}
		for _, s := range []string{f.Category, f.Sector} {
			if s != "" {
				similarities = append(similarities, s)
			}
		}
		failed = append(failed, Comparable{
			ID:             f.ID,
			Name:           f.Name,
			Description:    f.Description,
			Outcome:        OutcomeFailed,
			YearOutcome:    f.YearDied,
			MoneyBurned:    f.MoneyBurned,
			FailureReason:  f.FailureReason,
			LessonsLearned: lessons,
			Similarities:   similarities,
			Differences:    []string{},
		})
	}

	surviving = []Comparable{}
	for i, c := range competitors {
		status := strings.ToLower(c.Status)
		if strings.Contains(status, "shut") || strings.Contains(status, "failed") {
			continue
		}
		outcome := OutcomeSurvived
		if strings.Contains(status, "acquired") {
			outcome = OutcomeAcquired
		}
		surviving = append(surviving, Comparable{
			ID:             fmt.Sprintf("comp-%d", i+1),
			Name:           c.Name,
			Description:    c.Description,
			Outcome:        outcome,
			FundingRaised:  c.Funding,
			LessonsLearned: []string{},
			Similarities:   []string{},
			Differences:    []string{},
		})
	}

	if len(failed) > MaxComparablesPerSide {
		failed = failed[:MaxComparablesPerSide]
	}
	if len(surviving) > MaxComparablesPerSide {
		surviving = surviving[:MaxComparablesPerSide]
	}
	return failed, surviving
}

func numberRisks(prefix string, risks []Risk) []Risk {
	for i := range risks {
		risks[i].ID = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return risks
}
