package premortem

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"premortem/internal/evidence"
)

// Retriever runs stage 2: four sub-queries fanned out concurrently. Each
// sub-query absorbs its own failure and degrades to a zero value, so the
// stage as a whole never fails.
type Retriever struct {
	Source  EvidenceSource
	Archive FailureArchive
}

func (r *Retriever) Retrieve(ctx context.Context, dec IdeaDecomposition) RetrievalResult {
	var (
		mu          sync.Mutex
		result      RetrievalResult
		marketCites []Citation
		compCites   []Citation
		regCites    []Citation
	)
	result.Competitors = []Competitor{}
	result.Regulations = []Regulation{}
	result.HistoricalFailures = []HistoricalFailure{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		md, cites := r.retrieveMarketData(gctx, dec)
		mu.Lock()
		result.MarketData = md
		marketCites = cites
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		comps, cites := r.retrieveCompetitors(gctx, dec)
		mu.Lock()
		result.Competitors = comps
		compCites = cites
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		regs, cites := r.retrieveRegulations(gctx, dec)
		mu.Lock()
		result.Regulations = regs
		regCites = cites
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		hist := r.retrieveHistoricalFailures(gctx, dec)
		mu.Lock()
		result.HistoricalFailures = hist
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	// Fixed concatenation order keeps citation ids stable across runs.
	result.Citations = append(append(append([]Citation{}, marketCites...), compCites...), regCites...)
	return result
}

func (r *Retriever) retrieveMarketData(ctx context.Context, dec IdeaDecomposition) (MarketData, []Citation) {
	prompt := fmt.Sprintf(`Research the market for: %s

Target market: %s

Find and report:
1. Total addressable market size
2. Market growth rate
3. Key trends in this space
4. Recent news and developments

Provide specific numbers and cite sources.`, dec.ValueProposition, dec.TargetMarket)

	resp, err := r.Source.Query(ctx, evidence.PromptEvidenceRetrieval, prompt, queryOptions(0.2, 4000, true))
	if err != nil {
		log.Printf("premortem retrieve_market_failed err=%v", err)
		return MarketData{Size: "Unknown", GrowthRate: "Unknown", Trends: []string{}, RecentNews: []string{}}, nil
	}
	return parseMarketData(resp.Content), citationsFrom(resp)
}

var (
	marketSizeRe = regexp.MustCompile(`(?i)\$[\d.]+\s*(billion|million|B|M)`)
	growthRateRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*%\s*(?:CAGR|growth|annually)`)
	trendRe      = regexp.MustCompile(`(?i)(?:trend|development|shift)s?[:\s]+([^\n]+)`)
	trendPrefix  = regexp.MustCompile(`(?i)^(?:trend|development|shift)s?[:\s]+`)
	newsRe       = regexp.MustCompile(`(?i)(?:recent|2024|2025|January|February)[^\n.]+\.`)
)

func parseMarketData(content string) MarketData {
	size := "Not determined"
	if m := marketSizeRe.FindString(content); m != "" {
		size = m
	}

	growth := "Not determined"
	if m := growthRateRe.FindStringSubmatch(content); m != nil {
		growth = m[1] + "% annually"
	}

	trends := []string{}
	for _, m := range firstN(trendRe.FindAllString(content, -1), 5) {
		cleaned := strings.TrimSpace(trendPrefix.ReplaceAllString(m, ""))
		if len(cleaned) > 10 {
			trends = append(trends, cleaned)
		}
	}

	news := []string{}
	for _, m := range firstN(newsRe.FindAllString(content, -1), 3) {
		if len(m) > 20 {
			news = append(news, strings.TrimSpace(m))
		}
	}

	return MarketData{Size: size, GrowthRate: growth, Trends: trends, RecentNews: news}
}

func (r *Retriever) retrieveCompetitors(ctx context.Context, dec IdeaDecomposition) ([]Competitor, []Citation) {
	prompt := fmt.Sprintf(`Find competitors for this startup concept:

Value proposition: %s
Target market: %s
Business model: %s

List the top 5-10 competitors with:
- Company name
- What they do
- Funding raised
- Current status (active, acquired, struggling, shut down)
- Website URL
- Their key strengths
- Their key weaknesses`, dec.ValueProposition, dec.TargetMarket, dec.BusinessModel)

	resp, err := r.Source.Query(ctx, evidence.PromptCompetitiveLandscape, prompt, queryOptions(0.2, 4000, true))
	if err != nil {
		log.Printf("premortem retrieve_competitors_failed err=%v", err)
		return []Competitor{}, nil
	}
	return parseCompetitors(resp.Content), citationsFrom(resp)
}

var (
	competitorSplitRe = regexp.MustCompile(`\d+\.|#{1,3}|\*\*[^*]+\*\*`)
	competitorNameRe  = regexp.MustCompile(`^\s*([A-Z][a-zA-Z0-9\s&.]+?)(?:\s*[-–:(\[]|raised|\s+is)`)
	fundingRe         = regexp.MustCompile(`(?i)\$[\d.]+\s*(?:billion|million|B|M)`)
	websiteRe         = regexp.MustCompile(`https?://[^\s)]+`)
	shutDownRe        = regexp.MustCompile(`(?i)shut\s*down|failed|defunct|closed`)
	acquiredRe        = regexp.MustCompile(`(?i)acquired|bought`)
	strugglingRe      = regexp.MustCompile(`(?i)struggling|pivot|layoff`)
	descriptionRe     = regexp.MustCompile(`(?i)(?:is|provides|offers|builds)\s+([^.]+)`)
)

func parseCompetitors(content string) []Competitor {
	competitors := []Competitor{}

	for _, section := range competitorSplitRe.Split(content, -1) {
		if len(section) < 30 {
			continue
		}
		nameMatch := competitorNameRe.FindStringSubmatch(section)
		if nameMatch == nil {
			continue
		}
		name := strings.TrimSpace(nameMatch[1])
		if len(name) < 2 || len(name) > 50 {
			continue
		}

		status := "Active"
		switch {
		case shutDownRe.MatchString(section):
			status = "Shut down"
		case acquiredRe.MatchString(section):
			status = "Acquired"
		case strugglingRe.MatchString(section):
			status = "Struggling"
		}

		description := strings.TrimSpace(truncate(section, 150))
		if m := descriptionRe.FindStringSubmatch(section); m != nil {
			description = strings.TrimSpace(m[1])
		}

		competitors = append(competitors, Competitor{
			Name:        name,
			Description: description,
			Funding:     fundingRe.FindString(section),
			Status:      status,
			Website:     websiteRe.FindString(section),
		})
	}

	if len(competitors) > MaxCompetitors {
		competitors = competitors[:MaxCompetitors]
	}
	return competitors
}

func (r *Retriever) retrieveRegulations(ctx context.Context, dec IdeaDecomposition) ([]Regulation, []Citation) {
	prompt := fmt.Sprintf(`What regulations apply to this business:

Business: %s
Market: %s

Identify:
1. Relevant regulations (GDPR, HIPAA, SEC, etc.)
2. Which jurisdictions they apply in
3. Impact on business operations
4. Estimated compliance costs`, dec.ValueProposition, dec.TargetMarket)

	resp, err := r.Source.Query(ctx, evidence.PromptRegulatoryCheck, prompt, queryOptions(0.2, 4000, true))
	if err != nil {
		log.Printf("premortem retrieve_regulations_failed err=%v", err)
		return []Regulation{}, nil
	}
	return parseRegulations(resp.Content), citationsFrom(resp)
}

type regulationPattern struct {
	re           *regexp.Regexp
	context      *regexp.Regexp
	name         string
	jurisdiction string
}

func newRegulationPattern(source, name, jurisdiction string) regulationPattern {
	return regulationPattern{
		re:           regexp.MustCompile(`(?i)` + source),
		context:      regexp.MustCompile(`(?i).{0,100}(?:` + source + `).{0,200}`),
		name:         name,
		jurisdiction: jurisdiction,
	}
}

var regulationPatterns = []regulationPattern{
	newRegulationPattern(`GDPR`, "GDPR", "European Union"),
	newRegulationPattern(`HIPAA`, "HIPAA", "United States (Healthcare)"),
	newRegulationPattern(`SOC\s*2`, "SOC 2", "United States"),
	newRegulationPattern(`PCI[\s-]*DSS`, "PCI-DSS", "Global (Payment Cards)"),
	newRegulationPattern(`CCPA`, "CCPA", "California, USA"),
	newRegulationPattern(`SEC`, "SEC Regulations", "United States (Finance)"),
	newRegulationPattern(`FTC`, "FTC Guidelines", "United States"),
	newRegulationPattern(`FDA`, "FDA Regulations", "United States (Health/Food)"),
}

var complianceCostRe = regexp.MustCompile(`(?i)\$[\d,]+(?:\s*-\s*\$[\d,]+)?|\d+(?:,\d+)?\s*(?:dollar|per|annually)`)

func parseRegulations(content string) []Regulation {
	regulations := []Regulation{}

	for _, p := range regulationPatterns {
		if !p.re.MatchString(content) {
			continue
		}
		context := p.context.FindString(content)

		cost := "Variable"
		if m := complianceCostRe.FindString(context); m != "" {
			cost = m
		}

		regulations = append(regulations, Regulation{
			Regulation:     p.name,
			Jurisdiction:   p.jurisdiction,
			Impact:         strings.TrimSpace(truncate(context, 150)),
			ComplianceCost: cost,
		})
	}
	return regulations
}

func (r *Retriever) retrieveHistoricalFailures(ctx context.Context, dec IdeaDecomposition) []HistoricalFailure {
	if r.Archive == nil {
		return []HistoricalFailure{}
	}
	all := r.Archive.Historical(ctx, 100, 0, "")

	ideaKeywords := extractKeywords(dec.ValueProposition + " " + dec.TargetMarket + " " + dec.BusinessModel)

	type scored struct {
		record HistoricalFailure
		score  int
	}
	scoredRecords := make([]scored, 0, len(all))
	for _, record := range all {
		recordKeywords := extractKeywords(record.Name + " " + record.Description + " " + record.Category + " " + record.Sector)
		score := 0
		for _, kw := range ideaKeywords {
			for _, rk := range recordKeywords {
				if strings.Contains(rk, kw) || strings.Contains(kw, rk) {
					score++
					break
				}
			}
		}
		if score > 0 {
			scoredRecords = append(scoredRecords, scored{record: record, score: score})
		}
	}

	sort.SliceStable(scoredRecords, func(i, j int) bool { return scoredRecords[i].score > scoredRecords[j].score })

	out := []HistoricalFailure{}
	for _, s := range firstN(scoredRecords, MaxHistoricalMatches) {
		out = append(out, s.record)
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "that": true, "which": true,
	"who": true, "whom": true, "this": true, "these": true, "those": true,
	"it": true, "its": true, "they": true, "their": true, "them": true,
}

var nonWordRe = regexp.MustCompile(`[^\w\s]`)

func extractKeywords(text string) []string {
	cleaned := nonWordRe.ReplaceAllString(strings.ToLower(text), "")
	words := strings.Fields(cleaned)
	out := []string{}
	for _, w := range words {
		if len(w) > 2 && !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
