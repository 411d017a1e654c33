package premortem

import (
	"context"
	"errors"
	"testing"

	"premortem/internal/evidence"
)

type stubArchive struct {
	records []HistoricalFailure
}

func (s *stubArchive) Historical(ctx context.Context, limit, offset int, sector string) []HistoricalFailure {
	return s.records
}

func TestParseMarketData(t *testing.T) {
	content := `The market is valued at $4.2 billion and growing at 12.5% CAGR.
Key trends: vertical AI adoption is accelerating across regulated industries
Recent funding in 2024 includes several large rounds in this space.`

	got := parseMarketData(content)
	if got.Size != "$4.2 billion" {
		t.Fatalf("size = %q", got.Size)
	}
	if got.GrowthRate != "12.5% annually" {
		t.Fatalf("growth rate = %q", got.GrowthRate)
	}
	if len(got.Trends) != 1 || got.Trends[0] != "vertical AI adoption is accelerating across regulated industries" {
		t.Fatalf("trends = %v", got.Trends)
	}
	if len(got.RecentNews) != 1 {
		t.Fatalf("news = %v", got.RecentNews)
	}
}

func TestParseMarketDataDefaults(t *testing.T) {
	got := parseMarketData("nothing quantified here")
	if got.Size != "Not determined" || got.GrowthRate != "Not determined" {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if len(got.Trends) != 0 || len(got.RecentNews) != 0 {
		t.Fatalf("expected empty lists: %+v", got)
	}
}

func TestParseCompetitors(t *testing.T) {
	content := `Here are the main players:

1. Acme Analytics - Acme Analytics is a dashboarding platform for retailers. Raised $30 million. https://acme.example
2. Grinder Labs - Grinder Labs provides workflow automation. The company was acquired by BigCo in 2023.
3. Failtown - Failtown offers invoice factoring. It shut down in 2022 after layoffs.
`

	got := parseCompetitors(content)
	if len(got) != 3 {
		t.Fatalf("got %d competitors: %+v", len(got), got)
	}
	if got[0].Name != "Acme Analytics" {
		t.Fatalf("name = %q", got[0].Name)
	}
	if got[0].Funding != "$30 million" {
		t.Fatalf("funding = %q", got[0].Funding)
	}
	if got[0].Website != "https://acme.example" {
		t.Fatalf("website = %q", got[0].Website)
	}
	if got[0].Status != "Active" {
		t.Fatalf("status = %q", got[0].Status)
	}
	if got[1].Status != "Acquired" {
		t.Fatalf("status = %q", got[1].Status)
	}
	// Shut down wins over the layoff mention in the same section.
	if got[2].Status != "Shut down" {
		t.Fatalf("status = %q", got[2].Status)
	}
}

func TestParseCompetitorsCapsAtTen(t *testing.T) {
	content := ""
	for i := 0; i < 15; i++ {
		content += "1. Company Alpha - Company Alpha is a vendor of something very useful for businesses everywhere.\n"
	}
	if got := parseCompetitors(content); len(got) != MaxCompetitors {
		t.Fatalf("got %d competitors, want %d", len(got), MaxCompetitors)
	}
}

func TestParseRegulations(t *testing.T) {
	content := `Operating in Europe requires GDPR compliance, typically costing $60,000 - $90,000 annually for a small team.
US healthcare data falls under HIPAA.`

	got := parseRegulations(content)
	if len(got) != 2 {
		t.Fatalf("got %d regulations: %+v", len(got), got)
	}
	if got[0].Regulation != "GDPR" || got[0].Jurisdiction != "European Union" {
		t.Fatalf("first regulation = %+v", got[0])
	}
	if got[0].ComplianceCost != "$60,000 - $90,000" {
		t.Fatalf("cost = %q", got[0].ComplianceCost)
	}
	if got[1].Regulation != "HIPAA" {
		t.Fatalf("second regulation = %+v", got[1])
	}
	if got[1].ComplianceCost != "Variable" {
		t.Fatalf("cost = %q", got[1].ComplianceCost)
	}
}

func TestExtractKeywords(t *testing.T) {
	got := extractKeywords("The AI-powered invoicing tool for freelancers!")
	want := map[string]bool{"aipowered": true, "invoicing": true, "tool": true, "freelancers": true}
	if len(got) != len(want) {
		t.Fatalf("keywords = %v", got)
	}
	for _, k := range got {
		if !want[k] {
			t.Fatalf("unexpected keyword %q in %v", k, got)
		}
	}
}

func TestRetrieveHistoricalFailuresScoring(t *testing.T) {
	archive := &stubArchive{records: []HistoricalFailure{
		{ID: "1", Name: "PetFood Express", Description: "pet food delivery", Category: "delivery"},
		{ID: "2", Name: "InvoiceBot", Description: "invoicing automation for freelancers", Category: "fintech"},
		{ID: "3", Name: "Unrelated", Description: "quantum mining rigs", Category: "hardware"},
	}}
	r := &Retriever{Archive: archive}

	dec := IdeaDecomposition{
		ValueProposition: "Automated invoicing for freelancers",
		TargetMarket:     "Freelancers",
		BusinessModel:    "Subscription-based SaaS",
	}
	got := r.retrieveHistoricalFailures(context.Background(), dec)
	if len(got) != 1 {
		t.Fatalf("got %d matches: %+v", len(got), got)
	}
	if got[0].ID != "2" {
		t.Fatalf("top match = %+v", got[0])
	}
}

func TestRetrieveDegradesPerSubQuery(t *testing.T) {
	r := &Retriever{
		Source:  &stubSource{err: errors.New("network down")},
		Archive: &stubArchive{},
	}
	got := r.Retrieve(context.Background(), IdeaDecomposition{ValueProposition: "x"})

	if got.MarketData.Size != "Unknown" || got.MarketData.GrowthRate != "Unknown" {
		t.Fatalf("market data = %+v", got.MarketData)
	}
	if len(got.Competitors) != 0 || len(got.Regulations) != 0 || len(got.HistoricalFailures) != 0 {
		t.Fatalf("expected empty degraded results: %+v", got)
	}
	if len(got.Citations) != 0 {
		t.Fatalf("citations = %v", got.Citations)
	}
}

func TestRetrieveCollectsCitationsInFixedOrder(t *testing.T) {
	src := &stubSource{bySystem: map[string]*evidence.Response{
		evidence.PromptEvidenceRetrieval: {
			Content:   "market",
			Citations: []evidence.Citation{{ID: "citation-1", URL: "https://m.example", Title: "m"}},
		},
		evidence.PromptCompetitiveLandscape: {
			Content:   "competitors",
			Citations: []evidence.Citation{{ID: "citation-1", URL: "https://c.example", Title: "c"}},
		},
		evidence.PromptRegulatoryCheck: {
			Content:   "regs",
			Citations: []evidence.Citation{{ID: "citation-1", URL: "https://r.example", Title: "r"}},
		},
	}}
	r := &Retriever{Source: src, Archive: &stubArchive{}}

	got := r.Retrieve(context.Background(), IdeaDecomposition{})
	if len(got.Citations) != 3 {
		t.Fatalf("got %d citations", len(got.Citations))
	}
	wantOrder := []string{"https://m.example", "https://c.example", "https://r.example"}
	for i, want := range wantOrder {
		if got.Citations[i].URL != want {
			t.Fatalf("citation[%d].URL = %q, want %q", i, got.Citations[i].URL, want)
		}
	}
}
