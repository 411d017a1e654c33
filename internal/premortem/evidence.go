package premortem

import (
	"context"

	"premortem/internal/evidence"
)

// EvidenceSource is the slice of the evidence client the pipeline stages
// need. Tests substitute canned responses.
type EvidenceSource interface {
	Query(ctx context.Context, systemPrompt, userPrompt string, opts evidence.Options) (*evidence.Response, error)
}

// FailureArchive is the slice of the graveyard client the retrieval stage
// needs.
type FailureArchive interface {
	Historical(ctx context.Context, limit, offset int, sector string) []HistoricalFailure
}

func queryOptions(temperature float64, maxTokens int, citations bool) evidence.Options {
	return evidence.Options{
		Temperature:     temperature,
		MaxTokens:       maxTokens,
		ReturnCitations: citations,
	}
}

func citationsFrom(resp *evidence.Response) []Citation {
	if resp == nil {
		return nil
	}
	out := make([]Citation, 0, len(resp.Citations))
	for _, c := range resp.Citations {
		out = append(out, Citation{
			ID:          c.ID,
			Source:      c.Source,
			URL:         c.URL,
			Title:       c.Title,
			RetrievedAt: c.RetrievedAt,
		})
	}
	return out
}
