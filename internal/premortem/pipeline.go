package premortem

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var reportCounter atomic.Uint64

// Pipeline orchestrates the four analysis stages. Stages degrade internally
// rather than fail; an unexpected panic still lands the report in status
// error with all fields produced so far preserved.
type Pipeline struct {
	Decomposer  *Decomposer
	Retriever   *Retriever
	Synthesizer *Synthesizer

	now    func() time.Time
	newID  func() string
	tracer trace.Tracer
}

func NewPipeline(source EvidenceSource, archive FailureArchive) *Pipeline {
	return &Pipeline{
		Decomposer:  &Decomposer{Source: source},
		Retriever:   &Retriever{Source: source, Archive: archive},
		Synthesizer: &Synthesizer{Source: source},
		now:         time.Now,
		newID: func() string {
			return fmt.Sprintf("report-%d-%06d", time.Now().Unix(), reportCounter.Add(1))
		},
		tracer: otel.Tracer("premortem"),
	}
}

// Run executes all four stages in order and returns the report. It does not
// return an error: pipeline failure is encoded in the report status.
func (p *Pipeline) Run(ctx context.Context, idea string, progress ProgressFn) *Report {
	report := &Report{
		ID:        p.newID(),
		Version:   1,
		CreatedAt: p.now(),
		UpdatedAt: p.now(),

		OriginalIdea: idea,
		Status:       StatusGenerating,
		Citations:    []Citation{},
	}
	p.runStages(ctx, report, progress)
	return report
}

func (p *Pipeline) runStages(ctx context.Context, report *Report, progress ProgressFn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("premortem pipeline_panic report=%s err=%v", report.ID, r)
			report.Status = StatusError
			report.Error = fmt.Sprintf("pipeline panic: %v", r)
			report.UpdatedAt = p.now()
		}
	}()

	emit(progress, StageDecomposition, 0, "Analyzing idea structure...")
	report.CurrentStage = StageDecomposition
	ctx1, span1 := p.tracer.Start(ctx, "premortem.decompose")
	report.Decomposition = p.Decomposer.Decompose(ctx1, report.OriginalIdea)
	span1.End()
	emit(progress, StageDecomposition, 100, "Idea decomposition complete")

	emit(progress, StageRetrieval, 0, "Gathering market intelligence...")
	report.CurrentStage = StageRetrieval
	ctx2, span2 := p.tracer.Start(ctx, "premortem.retrieve")
	ev := p.Retriever.Retrieve(ctx2, report.Decomposition)
	span2.End()
	report.Citations = append(report.Citations, ev.Citations...)
	emit(progress, StageRetrieval, 100, "Evidence retrieval complete")

	emit(progress, StageSynthesis, 0, "Synthesizing failure patterns...")
	report.CurrentStage = StageSynthesis
	ctx3, span3 := p.tracer.Start(ctx, "premortem.synthesize")
	syn := p.Synthesizer.Synthesize(ctx3, report.Decomposition, ev)
	span3.End()
	report.FailureModes = syn.FailureModes
	report.MarketRisks = syn.MarketRisks
	report.TimingRisks = syn.TimingRisks
	report.RegulatoryRisks = syn.RegulatoryRisks
	report.DistributionChallenges = syn.DistributionChallenges
	report.FailedStartups = syn.FailedComparables
	report.SurvivingStartups = syn.SurvivingComparables
	report.Citations = append(report.Citations, syn.Citations...)
	emit(progress, StageSynthesis, 100, "Pattern synthesis complete")

	emit(progress, StageScoring, 0, "Calculating risk assessment...")
	report.CurrentStage = StageScoring
	_, span4 := p.tracer.Start(ctx, "premortem.score")
	scoring := Score(report.Decomposition, syn)
	span4.End()
	report.RiskScore = scoring.RiskScore
	report.ImprovementLevers = scoring.ImprovementLevers
	report.EarlyWarnings = scoring.EarlyWarnings
	emit(progress, StageScoring, 100, "Risk assessment complete")

	report.Status = StatusComplete
	report.CurrentStage = ""
	report.UpdatedAt = p.now()
	report.Citations = dedupCitations(report.Citations)
}

// QuickPreview runs decomposition only.
func (p *Pipeline) QuickPreview(ctx context.Context, idea string) IdeaDecomposition {
	ctx, span := p.tracer.Start(ctx, "premortem.preview")
	defer span.End()
	return p.Decomposer.Preview(ctx, idea)
}

// Rerun re-executes the pipeline from the named stage. Rerunning from
// decomposition is a full fresh run; any later stage reuses the stored
// decomposition and re-executes retrieval onward, since intermediate
// evidence is not persisted.
func (p *Pipeline) Rerun(ctx context.Context, existing *Report, fromStage Stage, progress ProgressFn) (out *Report) {
	if fromStage == StageDecomposition {
		fresh := p.Run(ctx, existing.OriginalIdea, progress)
		fresh.ID = existing.ID
		fresh.Version = existing.Version + 1
		fresh.CreatedAt = existing.CreatedAt
		return fresh
	}

	report := *existing
	out = &report
	report.Version++
	report.Status = StatusGenerating
	report.Error = ""
	report.UpdatedAt = p.now()
	report.Citations = []Citation{}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("premortem rerun_panic report=%s err=%v", report.ID, r)
			report.Status = StatusError
			report.Error = fmt.Sprintf("re-run failed: %v", r)
			report.UpdatedAt = p.now()
		}
	}()

	emit(progress, StageRetrieval, 0, "Re-gathering evidence...")
	ev := p.Retriever.Retrieve(ctx, report.Decomposition)
	report.Citations = ev.Citations

	emit(progress, StageSynthesis, 0, "Re-synthesizing patterns...")
	syn := p.Synthesizer.Synthesize(ctx, report.Decomposition, ev)
	report.FailureModes = syn.FailureModes
	report.MarketRisks = syn.MarketRisks
	report.TimingRisks = syn.TimingRisks
	report.RegulatoryRisks = syn.RegulatoryRisks
	report.DistributionChallenges = syn.DistributionChallenges
	report.FailedStartups = syn.FailedComparables
	report.SurvivingStartups = syn.SurvivingComparables
	report.Citations = append(report.Citations, syn.Citations...)

	emit(progress, StageScoring, 0, "Re-calculating risks...")
	scoring := Score(report.Decomposition, syn)
	report.RiskScore = scoring.RiskScore
	report.ImprovementLevers = scoring.ImprovementLevers
	report.EarlyWarnings = scoring.EarlyWarnings

	report.Status = StatusComplete
	report.UpdatedAt = p.now()
	report.Citations = dedupCitations(report.Citations)
	return out
}

func emit(progress ProgressFn, stage Stage, pct int, message string) {
	if progress == nil {
		return
	}
	completed := []string{}
	for _, s := range StageOrder {
		if s == stage {
			break
		}
		completed = append(completed, string(s))
	}
	progress(Progress{
		CurrentStage:    stage,
		StageProgress:   pct,
		StageMessage:    message,
		CompletedStages: completed,
	})
}

// dedupCitations keeps the first citation per url (or title, when the url is
// empty). Applied once, after the final stage.
func dedupCitations(citations []Citation) []Citation {
	seen := map[string]bool{}
	out := []Citation{}
	for _, c := range citations {
		key := c.URL
		if key == "" {
			key = c.Title
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
