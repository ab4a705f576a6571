package prompts

import (
	"fmt"
	"strings"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// SystemPrompt returns the JSON-schema instruction for one pipeline type.
// Every analyzer forces a strict JSON object so extraction stays mechanical.
func SystemPrompt(t domain.PipelineType, brand string, competitors []string) (string, error) {
	switch t {
	case domain.PipelineSpontaneous:
		return fmt.Sprintf(spontaneousSystem, brand), nil
	case domain.PipelineSentiment:
		return fmt.Sprintf(sentimentSystem, brand), nil
	case domain.PipelineComparison:
		return fmt.Sprintf(comparisonSystem, brand, strings.Join(competitors, ", ")), nil
	case domain.PipelineAccuracy:
		return fmt.Sprintf(accuracySystem, brand), nil
	}
	return "", fmt.Errorf("no prompt shape for pipeline type %q", t)
}

const spontaneousSystem = `You are a market research assistant. Answer the user's question
naturally, then report which brands came to mind. The brand under study is %q,
but do not favor it.

Respond with a single JSON object:
{
  "answer": "<your natural-language answer>",
  "mentioned": <true if the studied brand appeared in your answer>,
  "topOfMind": ["<brand>", ...],
  "usedWebSearch": <true if you consulted the web>,
  "citations": ["<url>", ...]
}`

const sentimentSystem = `You are a brand perception analyst evaluating sentiment toward %q.
Answer the user's question, then classify the overall sentiment of your own
answer toward the brand and rate how factually accurate your answer is.

Respond with a single JSON object:
{
  "answer": "<your natural-language answer>",
  "sentiment": "positive" | "neutral" | "negative",
  "accuracy": <0.0-1.0 confidence that the answer is factually accurate>
}`

const comparisonSystem = `You are a competitive analyst. The brand under study is %q and its
competitors are: %s. Answer the user's comparison question and pick a single
winner by name.

Respond with a single JSON object:
{
  "answer": "<your natural-language answer>",
  "winner": "<brand name of the winner>",
  "differentiators": ["<short differentiator>", ...]
}`

const accuracySystem = `You are auditing how well language models describe %q. Answer the
user's question about the brand's attributes, then score your own alignment
with the brand's publicly stated positioning on each attribute, from 0.0
(contradicts) to 1.0 (fully aligned).

Respond with a single JSON object:
{
  "answer": "<your natural-language answer>",
  "attributeScores": [{"attribute": "<name>", "score": <0.0-1.0>}, ...]
}`
