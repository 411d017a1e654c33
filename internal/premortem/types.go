package premortem

import "time"

const (
	MaxFailureModes       = 7
	MaxLevers             = 6
	MaxWarnings           = 8
	MaxComparablesPerSide = 5
	MaxCompetitors        = 10
	MaxHistoricalMatches  = 10
)

// RiskLevel is both a label and a 1-4 ordinal used for weighted aggregation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskModerate RiskLevel = "MODERATE"
	RiskElevated RiskLevel = "ELEVATED"
	RiskCritical RiskLevel = "CRITICAL"
)

func (l RiskLevel) Ordinal() int {
	switch l {
	case RiskCritical:
		return 4
	case RiskElevated:
		return 3
	case RiskModerate:
		return 2
	case RiskLow:
		return 1
	default:
		return 2
	}
}

// LevelFromScore maps a weighted ordinal sum back to a level.
// Thresholds at 1.5 / 2.5 / 3.5.
func LevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 3.5:
		return RiskCritical
	case score >= 2.5:
		return RiskElevated
	case score >= 1.5:
		return RiskModerate
	default:
		return RiskLow
	}
}

type ReportStatus string

const (
	StatusGenerating ReportStatus = "generating"
	StatusComplete   ReportStatus = "complete"
	StatusError      ReportStatus = "error"
)

type Stage string

const (
	StageDecomposition Stage = "decomposition"
	StageRetrieval     Stage = "retrieval"
	StageSynthesis     Stage = "synthesis"
	StageScoring       Stage = "scoring"
)

// StageOrder is the canonical execution order of the pipeline.
var StageOrder = []Stage{StageDecomposition, StageRetrieval, StageSynthesis, StageScoring}

func ValidStage(s Stage) bool {
	for _, st := range StageOrder {
		if st == s {
			return true
		}
	}
	return false
}

type Citation struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	URL            string    `json:"url,omitempty"`
	Title          string    `json:"title"`
	Snippet        string    `json:"snippet"`
	RetrievedAt    time.Time `json:"retrieved_at"`
	RelevanceScore *float64  `json:"relevance_score,omitempty"`
}

type Risk struct {
	ID                   string    `json:"id"`
	Category             string    `json:"category"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	Level                RiskLevel `json:"level"`
	Evidence             []string  `json:"evidence"`
	Citations            []string  `json:"citations"`
	HistoricalPrevalence int       `json:"historical_prevalence,omitempty"`
}

type FailureMode struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Probability int      `json:"probability"`
	Timeframe   string   `json:"timeframe"`
	Triggers    []string `json:"triggers"`
	Mitigations []string `json:"mitigations"`
	Citations   []string `json:"citations"`
}

type ChallengeType string

const (
	ChallengeRegulatory   ChallengeType = "regulatory"
	ChallengeDistribution ChallengeType = "distribution"
	ChallengeTechnical    ChallengeType = "technical"
	ChallengeMarket       ChallengeType = "market"
	ChallengeOperational  ChallengeType = "operational"
)

type Challenge struct {
	ID          string        `json:"id"`
	Type        ChallengeType `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Severity    RiskLevel     `json:"severity"`
	Citations   []string      `json:"citations"`
}

type Outcome string

const (
	OutcomeFailed   Outcome = "failed"
	OutcomePivoted  Outcome = "pivoted"
	OutcomeSurvived Outcome = "survived"
	OutcomeAcquired Outcome = "acquired"
	OutcomeIPO      Outcome = "ipo"
)

type Comparable struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Outcome        Outcome  `json:"outcome"`
	YearFounded    int      `json:"year_founded,omitempty"`
	YearOutcome    int      `json:"year_outcome,omitempty"`
	FundingRaised  string   `json:"funding_raised,omitempty"`
	MoneyBurned    string   `json:"money_burned,omitempty"`
	FailureReason  string   `json:"failure_reason,omitempty"`
	LessonsLearned []string `json:"lessons_learned"`
	Similarities   []string `json:"similarities"`
	Differences    []string `json:"differences"`
}

type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

type LeverCategory string

const (
	LeverProduct       LeverCategory = "product"
	LeverMarket        LeverCategory = "market"
	LeverBusinessModel LeverCategory = "business_model"
	LeverTeam          LeverCategory = "team"
	LeverTiming        LeverCategory = "timing"
)

type Lever struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Impact      Impact        `json:"impact"`
	Effort      Impact        `json:"effort"`
	Category    LeverCategory `json:"category"`
	Steps       []string      `json:"steps"`
}

type Warning struct {
	ID               string    `json:"id"`
	Signal           string    `json:"signal"`
	Description      string    `json:"description"`
	Threshold        string    `json:"threshold"`
	MonitoringMethod string    `json:"monitoring_method"`
	Urgency          RiskLevel `json:"urgency"`
}

type RiskBreakdown struct {
	Market      RiskLevel `json:"market"`
	Timing      RiskLevel `json:"timing"`
	Regulatory  RiskLevel `json:"regulatory"`
	Competition RiskLevel `json:"competition"`
	Execution   RiskLevel `json:"execution"`
}

type RiskScore struct {
	Overall    RiskLevel     `json:"overall"`
	Confidence int           `json:"confidence"`
	Breakdown  RiskBreakdown `json:"breakdown"`
	Disclaimer string        `json:"disclaimer"`
}

type IdeaDecomposition struct {
	ValueProposition   string   `json:"value_proposition"`
	TargetMarket       string   `json:"target_market"`
	BusinessModel      string   `json:"business_model"`
	KeyAssumptions     []string `json:"key_assumptions"`
	TestableHypotheses []string `json:"testable_hypotheses"`
}

// Report is the aggregate root produced by one pipeline run. Only the
// orchestrator mutates it.
type Report struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OriginalIdea  string            `json:"original_idea"`
	Decomposition IdeaDecomposition `json:"decomposition"`

	FailureModes           []FailureMode `json:"failure_modes"`
	MarketRisks            []Risk        `json:"market_risks"`
	TimingRisks            []Risk        `json:"timing_risks"`
	RegulatoryRisks        []Risk        `json:"regulatory_risks"`
	DistributionChallenges []Challenge   `json:"distribution_challenges"`

	FailedStartups    []Comparable `json:"failed_startups"`
	SurvivingStartups []Comparable `json:"surviving_startups"`

	ImprovementLevers []Lever   `json:"improvement_levers"`
	EarlyWarnings     []Warning `json:"early_warnings"`

	RiskScore RiskScore  `json:"risk_score"`
	Citations []Citation `json:"citations"`

	Status       ReportStatus `json:"status"`
	CurrentStage Stage        `json:"current_stage,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Progress is reported after each stage transition.
type Progress struct {
	CurrentStage    Stage    `json:"current_stage"`
	StageProgress   int      `json:"stage_progress"`
	StageMessage    string   `json:"stage_message"`
	CompletedStages []string `json:"completed_stages"`
}

type ProgressFn func(p Progress)

// MarketData is the parsed output of the market-sizing sub-query.
type MarketData struct {
	Size       string   `json:"size"`
	GrowthRate string   `json:"growth_rate"`
	Trends     []string `json:"trends"`
	RecentNews []string `json:"recent_news"`
}

type Competitor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Funding     string `json:"funding,omitempty"`
	Status      string `json:"status"`
	Website     string `json:"website,omitempty"`
}

type Regulation struct {
	Regulation     string `json:"regulation"`
	Jurisdiction   string `json:"jurisdiction"`
	Impact         string `json:"impact"`
	ComplianceCost string `json:"compliance_cost"`
}

// RetrievalResult carries the settled outputs of the four retrieval
// sub-queries. Sub-query failures degrade to zero values here.
type RetrievalResult struct {
	MarketData         MarketData           `json:"market_data"`
	Competitors        []Competitor         `json:"competitors"`
	Regulations        []Regulation         `json:"regulations"`
	HistoricalFailures []HistoricalFailure  `json:"historical_failures"`
	Citations          []Citation           `json:"citations"`
}

// HistoricalFailure is a record from the failed-startups data store,
// decoupled from the graveyard client's wire type.
type HistoricalFailure struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Sector        string   `json:"sector"`
	YearDied      int      `json:"year_died"`
	MoneyBurned   string   `json:"money_burned"`
	FailureReason string   `json:"failure_reason"`
	Tags          []string `json:"tags,omitempty"`
}

type SynthesisResult struct {
	FailureModes           []FailureMode `json:"failure_modes"`
	MarketRisks            []Risk        `json:"market_risks"`
	TimingRisks            []Risk        `json:"timing_risks"`
	RegulatoryRisks        []Risk        `json:"regulatory_risks"`
	DistributionChallenges []Challenge   `json:"distribution_challenges"`
	FailedComparables      []Comparable  `json:"failed_comparables"`
	SurvivingComparables   []Comparable  `json:"surviving_comparables"`
	Citations              []Citation    `json:"citations"`
}

type ScoringResult struct {
	RiskScore         RiskScore `json:"risk_score"`
	ImprovementLevers []Lever   `json:"improvement_levers"`
	EarlyWarnings     []Warning `json:"early_warnings"`
}
