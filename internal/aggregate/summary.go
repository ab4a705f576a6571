package aggregate

import (
	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// RankedItem is one entry of a frequency-ranked list
type RankedItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// WebSearchSummary describes web-search usage across a result set
type WebSearchSummary struct {
	UsedAny       bool     `json:"usedAny"`
	ResponseCount int      `json:"responseCount"`
	CitationHosts []string `json:"citationHosts"`
}

// SpontaneousSummary aggregates the spontaneous-mention pipeline
type SpontaneousSummary struct {
	MentionRate    float64          `json:"mentionRate"`
	MentionCount   int              `json:"mentionCount"`
	TotalResponses int              `json:"totalResponses"`
	TopMentions    []RankedItem     `json:"topMentions"`
	WebSearch      WebSearchSummary `json:"webSearch"`
}

// SentimentSummary aggregates the sentiment pipeline
type SentimentSummary struct {
	OverallSentiment string         `json:"overallSentiment"`
	SentimentCounts  map[string]int `json:"sentimentCounts"`
	AverageAccuracy  float64        `json:"averageAccuracy"`
	TotalResponses   int            `json:"totalResponses"`
}

// ComparisonSummary aggregates the competitive-comparison pipeline
type ComparisonSummary struct {
	WinRate            float64      `json:"winRate"`
	WinCount           int          `json:"winCount"`
	TotalResponses     int          `json:"totalResponses"`
	KeyDifferentiators []RankedItem `json:"keyDifferentiators"`
}

// AccuracySummary aggregates the accuracy/alignment pipeline
type AccuracySummary struct {
	OverallAlignmentScore float64                 `json:"overallAlignmentScore"`
	Breakdown             []domain.AttributeScore `json:"breakdown"`
	TotalResponses        int                     `json:"totalResponses"`
}
