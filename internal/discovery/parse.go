package discovery

import (
	"encoding/json"
	"strings"

	"github.com/uxforge/design-scout/internal/llm"
)

const maxParsedQueries = 20

// parseQueryLines splits an LLM reply into search queries: one per line,
// blank lines and #-comments discarded, capped at maxParsedQueries.
func parseQueryLines(raw string) []string {
	var queries []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Models sometimes number their lists despite instructions.
		line = strings.TrimLeft(line, "0123456789.)- ")
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		queries = append(queries, line)
		if len(queries) >= maxParsedQueries {
			break
		}
	}
	return queries
}

type rawEvaluation struct {
	IsDesignWorthy bool     `json:"is_design_worthy"`
	TrustScore     float64  `json:"trust_score"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Reason         string   `json:"reason"`
}

// parseEvaluation decodes the LLM's verdict about a search result.
// Any parse failure yields a default-reject evaluation, never an error.
func parseEvaluation(raw string) (rawEvaluation, bool) {
	block := llm.FirstJSONBlock(raw)
	if block == "" {
		return rawEvaluation{}, false
	}
	var eval rawEvaluation
	if err := json.Unmarshal([]byte(block), &eval); err != nil {
		return rawEvaluation{}, false
	}
	if eval.TrustScore < 1 {
		eval.TrustScore = 1
	}
	if eval.TrustScore > 10 {
		eval.TrustScore = 10
	}
	return eval, true
}
