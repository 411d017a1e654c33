package premortem

import (
	"context"
	"encoding/json"
	"log"
	"strings"
)

const decompositionPrompt = `You are a startup analyst specializing in deconstructing business ideas.

Given a startup idea, extract and return a JSON object with these fields:

{
  "valueProposition": "The core value being offered to customers (1-2 sentences)",
  "targetMarket": "The specific customer segment being targeted",
  "businessModel": "How the company intends to make money",
  "keyAssumptions": ["List of 3-5 critical assumptions the idea relies on"],
  "testableHypotheses": ["List of 3-5 specific hypotheses that can be validated"]
}

Be specific and concrete. Extract implicit assumptions that the founder may not have stated.

IMPORTANT: Return ONLY the JSON object, no other text.`

// Decomposer runs stage 1. With a source configured it asks the model for a
// structured breakdown; on any failure, or with no source at all, it falls
// back to the deterministic local analysis. Decompose never fails.
type Decomposer struct {
	Source EvidenceSource
}

func (d *Decomposer) Decompose(ctx context.Context, idea string) IdeaDecomposition {
	return d.decompose(ctx, idea, 1000)
}

// Preview is the decomposition-only fast path, with a tighter token budget.
func (d *Decomposer) Preview(ctx context.Context, idea string) IdeaDecomposition {
	return d.decompose(ctx, idea, 800)
}

func (d *Decomposer) decompose(ctx context.Context, idea string, maxTokens int) IdeaDecomposition {
	if d.Source == nil {
		return decomposeLocally(idea)
	}
	dec, err := d.decomposeWithModel(ctx, idea, maxTokens)
	if err != nil {
		log.Printf("premortem decompose_fallback err=%v", err)
		return decomposeLocally(idea)
	}
	return dec
}

func (d *Decomposer) decomposeWithModel(ctx context.Context, idea string, maxTokens int) (IdeaDecomposition, error) {
	resp, err := d.Source.Query(ctx, decompositionPrompt, idea, queryOptions(0.1, maxTokens, false))
	if err != nil {
		return IdeaDecomposition{}, err
	}

	var parsed struct {
		ValueProposition   string   `json:"valueProposition"`
		TargetMarket       string   `json:"targetMarket"`
		BusinessModel      string   `json:"businessModel"`
		KeyAssumptions     []string `json:"keyAssumptions"`
		TestableHypotheses []string `json:"testableHypotheses"`
	}
	raw, ok := extractJSONObject(resp.Content)
	if !ok {
		return decomposeLocally(idea), nil
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return decomposeLocally(idea), nil
	}
	dec := IdeaDecomposition{
		ValueProposition:   parsed.ValueProposition,
		TargetMarket:       parsed.TargetMarket,
		BusinessModel:      parsed.BusinessModel,
		KeyAssumptions:     parsed.KeyAssumptions,
		TestableHypotheses: parsed.TestableHypotheses,
	}
	if dec.KeyAssumptions == nil {
		dec.KeyAssumptions = []string{}
	}
	if dec.TestableHypotheses == nil {
		dec.TestableHypotheses = []string{}
	}
	return dec, nil
}

// extractJSONObject pulls the outermost {...} span out of model output that
// may carry surrounding prose or code fences.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decomposeLocally(idea string) IdeaDecomposition {
	lower := strings.ToLower(idea)

	valueProposition := firstSentence(idea)
	targetMarket := detectTargetMarket(lower)
	businessModel := detectBusinessModel(lower)

	return IdeaDecomposition{
		ValueProposition:   valueProposition,
		TargetMarket:       targetMarket,
		BusinessModel:      businessModel,
		KeyAssumptions:     generateAssumptions(lower, targetMarket, businessModel),
		TestableHypotheses: generateHypotheses(lower, targetMarket, businessModel),
	}
}

func firstSentence(idea string) string {
	rest := idea
	for len(rest) > 0 {
		cut := strings.IndexAny(rest, ".!?")
		if cut < 0 {
			if s := strings.TrimSpace(rest); s != "" {
				return s
			}
			break
		}
		if s := strings.TrimSpace(rest[:cut]); s != "" {
			return s
		}
		rest = rest[cut+1:]
	}
	if len(idea) > 200 {
		return idea[:200]
	}
	return idea
}

func detectTargetMarket(lower string) string {
	switch {
	case containsAny(lower, "b2b", "enterprise"):
		return "B2B / Enterprise customers"
	case containsAny(lower, "developer", "engineer"):
		return "Software developers and engineers"
	case containsAny(lower, "startup", "founder"):
		return "Startups and founders"
	case containsAny(lower, "small business", "smb"):
		return "Small and medium businesses"
	case containsAny(lower, "student", "education"):
		return "Students and educational institutions"
	case containsAny(lower, "health", "patient"):
		return "Healthcare consumers and patients"
	default:
		return "General consumers"
	}
}

func detectBusinessModel(lower string) string {
	switch {
	case containsAny(lower, "subscription", "monthly"):
		return "Subscription-based SaaS"
	case containsAny(lower, "marketplace", "commission"):
		return "Marketplace with transaction fees"
	case containsAny(lower, "api", "platform"):
		return "API/Platform with usage-based pricing"
	case containsAny(lower, "advertising", "ad-supported"):
		return "Advertising-supported free product"
	case containsAny(lower, "hardware", "device"):
		return "Hardware sales with software services"
	case containsAny(lower, "consulting", "service"):
		return "Professional services / Consulting"
	default:
		return "Freemium SaaS"
	}
}

func generateAssumptions(lower, market, model string) []string {
	assumptions := []string{
		market + " actively seeks solutions in this problem space",
		"The target market has budget and willingness to pay for this solution",
	}

	if containsAny(lower, "ai", "machine learning") {
		assumptions = append(assumptions,
			"AI/ML technology can deliver meaningfully better results than existing solutions",
			"Users trust AI-generated outputs for this use case")
	}
	if containsAny(lower, "data", "analytics") {
		assumptions = append(assumptions,
			"Users have access to or can provide the required data",
			"Data quality is sufficient for meaningful insights")
	}
	if strings.Contains(model, "SaaS") || strings.Contains(model, "Subscription") {
		assumptions = append(assumptions,
			"Users will pay recurring fees rather than seeking one-time alternatives",
			"Unit economics work at projected customer acquisition costs")
	}
	if strings.Contains(model, "Marketplace") {
		assumptions = append(assumptions,
			"Can achieve critical mass on both sides of the marketplace",
			"Transaction value justifies the platform fee")
	}
	assumptions = append(assumptions, "Incumbents will not quickly replicate core features")

	if len(assumptions) > 5 {
		assumptions = assumptions[:5]
	}
	return assumptions
}

func generateHypotheses(lower, market, model string) []string {
	hypotheses := []string{
		"At least 40% of interviewed " + strings.ToLower(market) + " express strong interest",
		"10+ potential customers commit to paying before product launch",
	}

	if containsAny(lower, "ai", "automat") {
		hypotheses = append(hypotheses, "Automation reduces task completion time by at least 50%")
	}
	hypotheses = append(hypotheses,
		"Customer acquisition cost can be kept under $50 per user",
		"Monthly retention rate exceeds 80% after first 90 days")

	if strings.Contains(model, "SaaS") {
		hypotheses = append(hypotheses, "Customers convert from free to paid at 5%+ rate")
	}
	if strings.Contains(model, "Marketplace") {
		hypotheses = append(hypotheses, "Supply-side users can be acquired at <$20 per active participant")
	}
	hypotheses = append(hypotheses, "Net Promoter Score exceeds 40 within first 100 users")

	if len(hypotheses) > 5 {
		hypotheses = hypotheses[:5]
	}
	return hypotheses
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
