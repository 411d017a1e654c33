package premortem

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"premortem/internal/evidence"
)

// stubSource returns canned responses keyed by system prompt, falling back
// to a default response.
type stubSource struct {
	bySystem map[string]*evidence.Response
	fallback *evidence.Response
	err      error
	calls    int
}

func (s *stubSource) Query(ctx context.Context, systemPrompt, userPrompt string, opts evidence.Options) (*evidence.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if r, ok := s.bySystem[systemPrompt]; ok {
		return r, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return &evidence.Response{Content: ""}, nil
}

func TestDecomposeLocallySaaSScenario(t *testing.T) {
	got := decomposeLocally("A monthly subscription tool for freelancers to send invoices")

	if got.ValueProposition != "A monthly subscription tool for freelancers to send invoices" {
		t.Fatalf("value proposition = %q", got.ValueProposition)
	}
	if got.BusinessModel != "Subscription-based SaaS" {
		t.Fatalf("business model = %q", got.BusinessModel)
	}
	// No B2B/developer/student/health keywords present.
	if got.TargetMarket != "General consumers" {
		t.Fatalf("target market = %q", got.TargetMarket)
	}
}

func TestDecomposeLocallyDeterministic(t *testing.T) {
	idea := "An AI-powered marketplace for developers. It matches contractors with startups!"
	a := decomposeLocally(idea)
	b := decomposeLocally(idea)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("decomposition not deterministic (-a +b):\n%s", diff)
	}
	if a.ValueProposition != "An AI-powered marketplace for developers" {
		t.Fatalf("value proposition = %q", a.ValueProposition)
	}
	if a.TargetMarket != "Software developers and engineers" {
		t.Fatalf("target market = %q", a.TargetMarket)
	}
	if a.BusinessModel != "Marketplace with transaction fees" {
		t.Fatalf("business model = %q", a.BusinessModel)
	}
}

func TestDecomposeLocallyKeywordTables(t *testing.T) {
	cases := []struct {
		idea       string
		wantMarket string
		wantModel  string
	}{
		{"enterprise workflow tooling with consulting add-ons", "B2B / Enterprise customers", "Professional services / Consulting"},
		{"helping startup founders raise money", "Startups and founders", "Freemium SaaS"},
		{"smb accounting with a commission per processed payment", "Small and medium businesses", "Marketplace with transaction fees"},
		{"education flashcards for students, ad-supported", "Students and educational institutions", "Advertising-supported free product"},
		{"patient scheduling hardware kiosk", "Healthcare consumers and patients", "Hardware sales with software services"},
	}
	for _, tc := range cases {
		got := decomposeLocally(tc.idea)
		if got.TargetMarket != tc.wantMarket {
			t.Errorf("%q market = %q, want %q", tc.idea, got.TargetMarket, tc.wantMarket)
		}
		if got.BusinessModel != tc.wantModel {
			t.Errorf("%q model = %q, want %q", tc.idea, got.BusinessModel, tc.wantModel)
		}
	}
}

func TestDecomposeLocallyCapsListsAtFive(t *testing.T) {
	// AI + data + SaaS triggers would push both lists past the cap.
	got := decomposeLocally("ai data analytics subscription service")
	if len(got.KeyAssumptions) != 5 {
		t.Fatalf("got %d assumptions, want 5", len(got.KeyAssumptions))
	}
	if len(got.TestableHypotheses) != 5 {
		t.Fatalf("got %d hypotheses, want 5", len(got.TestableHypotheses))
	}
}

func TestDecomposeUsesModelJSON(t *testing.T) {
	src := &stubSource{fallback: &evidence.Response{Content: "Here you go:\n" +
		`{"valueProposition":"VP","targetMarket":"TM","businessModel":"BM",` +
		`"keyAssumptions":["a"],"testableHypotheses":["h"]}` + "\nThanks!"}}
	d := &Decomposer{Source: src}

	got := d.Decompose(context.Background(), "some idea")
	want := IdeaDecomposition{
		ValueProposition:   "VP",
		TargetMarket:       "TM",
		BusinessModel:      "BM",
		KeyAssumptions:     []string{"a"},
		TestableHypotheses: []string{"h"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decomposition mismatch (-want +got):\n%s", diff)
	}
	if src.calls != 1 {
		t.Fatalf("source called %d times, want 1", src.calls)
	}
}

func TestDecomposeFallsBackOnModelError(t *testing.T) {
	d := &Decomposer{Source: &stubSource{err: errors.New("boom")}}
	got := d.Decompose(context.Background(), "A marketplace for tutors")
	if got.BusinessModel != "Marketplace with transaction fees" {
		t.Fatalf("fallback not applied, business model = %q", got.BusinessModel)
	}
}

func TestDecomposeFallsBackOnGarbageContent(t *testing.T) {
	d := &Decomposer{Source: &stubSource{fallback: &evidence.Response{Content: "no json here"}}}
	got := d.Decompose(context.Background(), "A subscription box")
	if got.BusinessModel != "Subscription-based SaaS" {
		t.Fatalf("fallback not applied, business model = %q", got.BusinessModel)
	}
}
