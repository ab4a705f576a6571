package aggregate

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// Aggregator turns a sorted raw response list into one pipeline summary.
// Implementations are pure: identical input twice yields bit-identical
// output, so re-computation is always safe.
type Aggregator interface {
	Type() domain.PipelineType
	Aggregate(responses []domain.RawResponse) (json.RawMessage, error)
}

// ForType returns the aggregator variant for a pipeline type
func ForType(t domain.PipelineType, brand string) (Aggregator, error) {
	switch t {
	case domain.PipelineSpontaneous:
		return spontaneousAggregator{}, nil
	case domain.PipelineSentiment:
		return sentimentAggregator{}, nil
	case domain.PipelineComparison:
		return comparisonAggregator{brand: brand}, nil
	case domain.PipelineAccuracy:
		return accuracyAggregator{}, nil
	}
	return nil, fmt.Errorf("no aggregator for pipeline type %q", t)
}

// SortResponses orders responses by (promptIndex, model identity, run index)
// so aggregation is deterministic regardless of completion order.
func SortResponses(responses []domain.RawResponse) {
	sort.SliceStable(responses, func(i, j int) bool {
		a, b := responses[i], responses[j]
		if a.PromptIndex != b.PromptIndex {
			return a.PromptIndex < b.PromptIndex
		}
		am, bm := a.Provider+"/"+a.Model, b.Provider+"/"+b.Model
		if am != bm {
			return am < bm
		}
		return a.RunIndex < b.RunIndex
	})
}

// countable filters out malformed items: they stay in the raw log but are
// excluded from every denominator.
func countable(responses []domain.RawResponse) []domain.RawResponse {
	out := make([]domain.RawResponse, 0, len(responses))
	for _, r := range responses {
		if r.Malformed {
			continue
		}
		out = append(out, r)
	}
	return out
}

type spontaneousAggregator struct{}

func (spontaneousAggregator) Type() domain.PipelineType { return domain.PipelineSpontaneous }

func (spontaneousAggregator) Aggregate(responses []domain.RawResponse) (json.RawMessage, error) {
	rs := countable(responses)

	summary := SpontaneousSummary{
		TotalResponses: len(rs),
		TopMentions:    []RankedItem{},
		WebSearch:      WebSearchSummary{CitationHosts: []string{}},
	}

	var mentionLists [][]string
	seenHosts := make(map[string]bool)
	for _, r := range rs {
		if r.Mentioned {
			summary.MentionCount++
		}
		mentionLists = append(mentionLists, r.TopOfMind)
		if r.UsedWebSearch {
			summary.WebSearch.UsedAny = true
			summary.WebSearch.ResponseCount++
		}
		for _, c := range r.Citations {
			host := citationHost(c)
			if host == "" || seenHosts[host] {
				continue
			}
			seenHosts[host] = true
			summary.WebSearch.CitationHosts = append(summary.WebSearch.CitationHosts, host)
		}
	}

	if summary.TotalResponses > 0 {
		summary.MentionRate = float64(summary.MentionCount) / float64(summary.TotalResponses)
	}
	summary.TopMentions = rankByFrequency(mentionLists, 10)

	return json.Marshal(summary)
}

type sentimentAggregator struct{}

func (sentimentAggregator) Type() domain.PipelineType { return domain.PipelineSentiment }

func (sentimentAggregator) Aggregate(responses []domain.RawResponse) (json.RawMessage, error) {
	rs := countable(responses)

	summary := SentimentSummary{
		OverallSentiment: domain.SentimentNeutral,
		SentimentCounts: map[string]int{
			domain.SentimentPositive: 0,
			domain.SentimentNeutral:  0,
			domain.SentimentNegative: 0,
		},
		TotalResponses: len(rs),
	}

	var accuracySum float64
	for _, r := range rs {
		label := r.Sentiment
		if _, ok := summary.SentimentCounts[label]; !ok {
			label = domain.SentimentNeutral
		}
		summary.SentimentCounts[label]++
		accuracySum += r.Accuracy // missing accuracy stays 0
	}

	if len(rs) > 0 {
		summary.AverageAccuracy = accuracySum / float64(len(rs))
	}
	summary.OverallSentiment = majoritySentiment(summary.SentimentCounts)

	return json.Marshal(summary)
}

// majoritySentiment returns the label with the strict majority of votes;
// any tie resolves to neutral.
func majoritySentiment(counts map[string]int) string {
	pos, neu, neg := counts[domain.SentimentPositive], counts[domain.SentimentNeutral], counts[domain.SentimentNegative]
	switch {
	case pos > neu && pos > neg:
		return domain.SentimentPositive
	case neg > neu && neg > pos:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

type comparisonAggregator struct {
	brand string
}

func (comparisonAggregator) Type() domain.PipelineType { return domain.PipelineComparison }

func (a comparisonAggregator) Aggregate(responses []domain.RawResponse) (json.RawMessage, error) {
	rs := countable(responses)

	summary := ComparisonSummary{
		TotalResponses:     len(rs),
		KeyDifferentiators: []RankedItem{},
	}

	var diffLists [][]string
	for _, r := range rs {
		if r.Winner != "" && strings.EqualFold(r.Winner, a.brand) {
			summary.WinCount++
		}
		diffLists = append(diffLists, r.Differentiators)
	}

	if summary.TotalResponses > 0 {
		summary.WinRate = float64(summary.WinCount) / float64(summary.TotalResponses)
	}
	summary.KeyDifferentiators = rankByFrequency(diffLists, 10)

	return json.Marshal(summary)
}

type accuracyAggregator struct{}

func (accuracyAggregator) Type() domain.PipelineType { return domain.PipelineAccuracy }

func (accuracyAggregator) Aggregate(responses []domain.RawResponse) (json.RawMessage, error) {
	rs := countable(responses)

	summary := AccuracySummary{
		Breakdown:      []domain.AttributeScore{},
		TotalResponses: len(rs),
	}

	type key struct{ attribute, model string }
	sums := make(map[key]float64)
	counts := make(map[key]int)

	var total float64
	var n int
	for _, r := range rs {
		for _, s := range r.AttributeScores {
			score := clamp01(s.Score)
			k := key{s.Attribute, s.Model}
			sums[k] += score
			counts[k]++
			total += score
			n++
		}
	}

	if n > 0 {
		summary.OverallAlignmentScore = total / float64(n)
	}

	keys := make([]key, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].attribute != keys[j].attribute {
			return keys[i].attribute < keys[j].attribute
		}
		return keys[i].model < keys[j].model
	})
	for _, k := range keys {
		summary.Breakdown = append(summary.Breakdown, domain.AttributeScore{
			Attribute: k.attribute,
			Model:     k.model,
			Score:     sums[k] / float64(counts[k]),
		})
	}

	return json.Marshal(summary)
}

// rankByFrequency flattens the given lists and ranks entries by
// (frequency desc, first-seen-index asc), capped to limit entries.
func rankByFrequency(lists [][]string, limit int) []RankedItem {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	idx := 0

	for _, list := range lists {
		for _, raw := range list {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			if _, ok := counts[name]; !ok {
				firstSeen[name] = idx
			}
			counts[name]++
			idx++
		}
	}

	items := make([]RankedItem, 0, len(counts))
	for name, count := range counts {
		items = append(items, RankedItem{Name: name, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return firstSeen[items[i].Name] < firstSeen[items[j].Name]
	})

	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// citationHost extracts the hostname from a citation URL; citations that
// do not parse as URLs are returned trimmed as-is.
func citationHost(citation string) string {
	c := strings.TrimSpace(citation)
	if c == "" {
		return ""
	}
	u, err := url.Parse(c)
	if err == nil && u.Host != "" {
		return u.Host
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
