// Package reasoner refines computed price recommendations with an LLM pass.
// The model's output is advisory: every returned price is re-validated
// against the same floor invariant the banding engine enforces, and any
// failure falls back to the computed recommendations so a run always
// completes.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/banding"
	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/pkg/anthropic"
)

// Config holds reasoner invocation settings.
type Config struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	Context   string // free-text business context appended to the system prompt
}

// ProductInput carries one product's market data into the reasoner.
type ProductInput struct {
	Product  model.ProductDefinition
	Snapshot *model.MarketSnapshot
	Trend    model.Trend
	Computed []model.Recommendation // banding engine output, also the fallback
}

// Input is the full request for one run.
type Input struct {
	Date     string
	Products []ProductInput
	Segments []model.SegmentPolicy
}

// Output is the refined result. Degraded is set when the LLM call failed or
// returned unparseable output and the computed recommendations were used
// unchanged.
type Output struct {
	ExecutiveSummary     string
	WeeklyRecommendation string
	Recommendations      map[string][]model.Recommendation // keyed by product ID
	Alerts               []model.Alert
	Degraded             bool
}

// Reasoner wraps an Anthropic client with the pricing analysis prompt.
type Reasoner struct {
	client anthropic.Client
	cfg    Config
}

func New(client anthropic.Client, cfg Config) *Reasoner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Reasoner{client: client, cfg: cfg}
}

// llmResponse is the fixed JSON schema the model is instructed to return.
type llmResponse struct {
	ExecutiveSummary     string   `json:"executive_summary"`
	WeeklyRecommendation string   `json:"weekly_recommendation"`
	GeneralAlerts        []string `json:"general_alerts"`
	Products             []struct {
		ProductID string `json:"product_id"`
		Segments  []struct {
			SegmentID string `json:"segment_id"`
			Price     int64  `json:"price"`
			Rationale string `json:"rationale"`
		} `json:"segments"`
	} `json:"products"`
}

// Analyze runs the LLM pass. It never returns an error: any failure degrades
// to the computed recommendations with an alert noting degraded mode.
func (r *Reasoner) Analyze(ctx context.Context, in Input) Output {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req := anthropic.MessageRequest{
		Model:     r.cfg.Model,
		MaxTokens: r.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(buildSystemPrompt(r.cfg.Context)),
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserMessage(in)},
		},
	}

	resp, err := r.client.CreateMessage(ctx, req)
	if err != nil {
		zap.L().Warn("reasoner call failed, using computed recommendations", zap.Error(err))
		return r.degraded(in, "llm call failed: "+err.Error())
	}
	resp.Usage.LogCost(r.cfg.Model, "reasoner")

	var parsed llmResponse
	if err := json.Unmarshal([]byte(cleanJSON(extractText(resp))), &parsed); err != nil {
		zap.L().Warn("reasoner returned unparseable JSON, using computed recommendations", zap.Error(err))
		return r.degraded(in, "unparseable llm response")
	}

	return r.merge(in, parsed)
}

// degraded produces the fallback output from the computed recommendations.
func (r *Reasoner) degraded(in Input, reason string) Output {
	out := Output{
		Recommendations: make(map[string][]model.Recommendation, len(in.Products)),
		Degraded:        true,
	}
	for _, p := range in.Products {
		if len(p.Computed) > 0 {
			out.Recommendations[p.Product.ID] = p.Computed
		}
	}
	out.Alerts = append(out.Alerts, banding.NewAlert(in.Date, model.AlertReasonerDegraded, "", "",
		"reasoner degraded, computed recommendations used: "+reason, model.SeverityWarning))
	return out
}

// merge overlays the model's advisory prices on the computed set. Prices
// below a segment's floor are clamped back with a floor-violation alert,
// segments the model omitted keep their computed values, and rank ordering
// is re-enforced over the merged set.
func (r *Reasoner) merge(in Input, parsed llmResponse) Output {
	out := Output{
		ExecutiveSummary:     strings.TrimSpace(parsed.ExecutiveSummary),
		WeeklyRecommendation: strings.TrimSpace(parsed.WeeklyRecommendation),
		Recommendations:      make(map[string][]model.Recommendation, len(in.Products)),
	}

	for _, note := range parsed.GeneralAlerts {
		if note = strings.TrimSpace(note); note != "" {
			out.Alerts = append(out.Alerts, banding.NewAlert(in.Date, model.AlertReasonerNote, "", "",
				note, model.SeverityInfo))
		}
	}

	segByID := make(map[string]model.SegmentPolicy, len(in.Segments))
	for _, s := range in.Segments {
		segByID[s.ID] = s
	}

	type advisory struct {
		price     int64
		rationale string
	}
	advised := make(map[string]map[string]advisory, len(parsed.Products))
	for _, p := range parsed.Products {
		m := make(map[string]advisory, len(p.Segments))
		for _, s := range p.Segments {
			m[s.SegmentID] = advisory{price: s.Price, rationale: s.Rationale}
		}
		advised[p.ProductID] = m
	}

	for _, p := range in.Products {
		if len(p.Computed) == 0 {
			continue
		}
		recs := make([]model.Recommendation, len(p.Computed))
		copy(recs, p.Computed)

		for i := range recs {
			adv, ok := advised[p.Product.ID][recs[i].SegmentID]
			if !ok || adv.price <= 0 {
				continue
			}
			seg, ok := segByID[recs[i].SegmentID]
			if !ok {
				continue
			}
			price := adv.price
			if floor := banding.Floor(p.Product, seg); price < floor {
				out.Alerts = append(out.Alerts, banding.NewAlert(in.Date, model.AlertFloorViolation, p.Product.ID, "",
					fmt.Sprintf("reasoner price %d for segment %s below floor %d, clamped", price, seg.ID, floor),
					model.SeverityWarning))
				price = floor
				recs[i].Floored = true
			}
			recs[i].Price = price
			recs[i].Rationale = strings.TrimSpace(adv.rationale)
			if p.Product.ProductionCost > 0 {
				recs[i].MarginPct = float64(recs[i].Price-p.Product.ProductionCost) / float64(p.Product.ProductionCost)
			}
		}
		// Advisory prices can invert segment ordering even when every one
		// clears its floor.
		out.Alerts = append(out.Alerts, banding.EnforceRankOrder(in.Date, p.Product, recs)...)
		out.Recommendations[p.Product.ID] = recs
	}

	return out
}

// extractText concatenates the text blocks of a response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// cleanJSON strips markdown fences and extracts the outer JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
