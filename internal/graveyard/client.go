// Package graveyard talks to the external failed-startups database. Reads
// are best-effort: any transport or decode failure degrades to an empty
// result so the analysis pipeline keeps going without historical matches.
package graveyard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"premortem/internal/premortem"
)

const listRPC = "/rest/v1/rpc/get_startups_list"

// FailedStartup is the wire record of the failed-startups database.
type FailedStartup struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	YearDied        int      `json:"year_died"`
	MoneyBurned     string   `json:"money_burned"`
	MoneyBurnedRaw  float64  `json:"money_burned_raw"`
	FailureReason   string   `json:"failure_reason,omitempty"`
	Sector          string   `json:"sector,omitempty"`
	Difficulty      string   `json:"difficulty,omitempty"`
	Scalability     string   `json:"scalability,omitempty"`
	Market          string   `json:"market,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	City            string   `json:"city,omitempty"`
}

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg}
}

type ListParams struct {
	Limit  int
	Offset int
	Sector string
}

// List fetches a page of failed startups via the list RPC. It never returns
// an error: failures are logged and produce an empty slice.
func (c *Client) List(ctx context.Context, params ListParams) []FailedStartup {
	if params.Limit <= 0 {
		params.Limit = 100
	}
	body := map[string]any{
		"p_limit":  params.Limit,
		"p_offset": params.Offset,
		"p_sector": nil,
	}
	if params.Sector != "" {
		body["p_sector"] = params.Sector
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+listRPC, bytes.NewReader(payload))
	if err != nil {
		log.Printf("graveyard list_failed err=%v", err)
		return []FailedStartup{}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Profile", "public")

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		log.Printf("graveyard list_failed err=%v", err)
		return []FailedStartup{}
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		log.Printf("graveyard list_failed status=%d", res.StatusCode)
		return []FailedStartup{}
	}

	blob, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		log.Printf("graveyard list_failed err=%v", err)
		return []FailedStartup{}
	}
	var out []FailedStartup
	if err := json.Unmarshal(blob, &out); err != nil {
		log.Printf("graveyard list_decode_failed err=%v", err)
		return []FailedStartup{}
	}
	if out == nil {
		out = []FailedStartup{}
	}
	return out
}

// Historical adapts wire records into the pipeline's historical-failure
// shape, satisfying the retrieval stage's archive dependency.
func (c *Client) Historical(ctx context.Context, limit, offset int, sector string) []premortem.HistoricalFailure {
	records := c.List(ctx, ListParams{Limit: limit, Offset: offset, Sector: sector})
	out := make([]premortem.HistoricalFailure, 0, len(records))
	for _, r := range records {
		out = append(out, premortem.HistoricalFailure{
			ID:            r.ID,
			Name:          r.Name,
			Description:   r.Description,
			Category:      r.Category,
			Sector:        r.Sector,
			YearDied:      r.YearDied,
			MoneyBurned:   r.MoneyBurned,
			FailureReason: r.FailureReason,
			Tags:          r.Tags,
		})
	}
	return out
}

// Search filters an already fetched page by substring across name,
// description, category, and sector.
func Search(query string, startups []FailedStartup) []FailedStartup {
	q := strings.ToLower(query)
	out := []FailedStartup{}
	for _, s := range startups {
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Description), q) ||
			strings.Contains(strings.ToLower(s.Category), q) ||
			strings.Contains(strings.ToLower(s.Sector), q) {
			out = append(out, s)
		}
	}
	return out
}

// Categories returns the sorted distinct categories and sectors of a page.
func Categories(startups []FailedStartup) []string {
	set := map[string]bool{}
	for _, s := range startups {
		if s.Category != "" {
			set[s.Category] = true
		}
		if s.Sector != "" {
			set[s.Sector] = true
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// TotalBurned sums the raw burn figures of a page.
func TotalBurned(startups []FailedStartup) float64 {
	total := 0.0
	for _, s := range startups {
		total += s.MoneyBurnedRaw
	}
	return total
}

// FormatMoney renders a raw dollar figure the way the graveyard UI shows it.
func FormatMoney(amount float64) string {
	switch {
	case amount >= 1_000_000_000:
		return fmt.Sprintf("$%.1fB", amount/1_000_000_000)
	case amount >= 1_000_000:
		return fmt.Sprintf("$%.1fM", amount/1_000_000)
	case amount >= 1_000:
		return fmt.Sprintf("$%.0fK", amount/1_000)
	default:
		return fmt.Sprintf("$%.0f", amount)
	}
}
