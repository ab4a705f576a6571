package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/provider"
)

// extractedPayload mirrors the JSON object every analyzer system prompt
// forces the model to emit. Which fields are populated depends on the
// pipeline type.
type extractedPayload struct {
	Answer          string   `json:"answer"`
	Mentioned       *bool    `json:"mentioned"`
	TopOfMind       []string `json:"topOfMind"`
	Sentiment       string   `json:"sentiment"`
	Accuracy        *float64 `json:"accuracy"`
	Winner          string   `json:"winner"`
	Differentiators []string `json:"differentiators"`
	AttributeScores []struct {
		Attribute string  `json:"attribute"`
		Score     float64 `json:"score"`
	} `json:"attributeScores"`
	UsedWebSearch bool     `json:"usedWebSearch"`
	Citations     []string `json:"citations"`
}

// extract parses the completion body into the RawResponse's structured
// fields. A body that yields no parsable JSON object marks the response
// malformed; it stays in the raw log but is skipped by aggregation.
func extract(r *domain.RawResponse, comp *provider.Completion) {
	r.ResponseText = comp.Text
	r.Citations = comp.Citations
	r.ToolUsage = comp.ToolUsage
	r.UsedWebSearch = comp.UsedWebSearch

	body := jsonBody(comp.Text)
	var p extractedPayload
	if body == "" || json.Unmarshal([]byte(body), &p) != nil {
		r.Malformed = true
		neutralDefaults(r)
		return
	}

	switch r.PipelineType {
	case domain.PipelineSpontaneous:
		if p.Mentioned != nil {
			r.Mentioned = *p.Mentioned
		}
		r.TopOfMind = p.TopOfMind
	case domain.PipelineSentiment:
		r.Sentiment = normalizeSentiment(p.Sentiment)
		if p.Accuracy != nil {
			r.Accuracy = *p.Accuracy
		}
	case domain.PipelineComparison:
		r.Winner = strings.TrimSpace(p.Winner)
		r.Differentiators = p.Differentiators
	case domain.PipelineAccuracy:
		model := r.Provider + "/" + r.Model
		for _, s := range p.AttributeScores {
			r.AttributeScores = append(r.AttributeScores, domain.AttributeScore{
				Attribute: s.Attribute,
				Model:     model,
				Score:     s.Score,
			})
		}
	}

	if p.UsedWebSearch {
		r.UsedWebSearch = true
	}
	r.Citations = mergeCitations(comp.Citations, p.Citations)
}

// jsonBody strips markdown code fences and surrounding prose, returning
// the outermost JSON object in the text. Models wrap their JSON in
// ```json fences often enough that this cannot be skipped.
func jsonBody(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func normalizeSentiment(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case domain.SentimentPositive:
		return domain.SentimentPositive
	case domain.SentimentNegative:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// neutralDefaults sets the pipeline-neutral extracted fields used when a
// call failed twice or its body could not be parsed
func neutralDefaults(r *domain.RawResponse) {
	r.Mentioned = false
	r.TopOfMind = nil
	r.Sentiment = domain.SentimentNeutral
	r.Accuracy = 0
	r.Winner = ""
	r.Differentiators = nil
	r.AttributeScores = nil
}

// mergeCitations combines provider-supplied and body-extracted citations,
// provider metadata first, dropping duplicates
func mergeCitations(provided, extracted []string) []string {
	if len(extracted) == 0 {
		return provided
	}
	seen := make(map[string]struct{}, len(provided)+len(extracted))
	var out []string
	for _, list := range [][]string{provided, extracted} {
		for _, c := range list {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
