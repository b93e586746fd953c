package discovery

// Prompt names looked up in the store. Evolution rewrites store copies;
// the constants below are the version-zero fallbacks.
const (
	PromptQueryGeneration  = "discovery_query_generation"
	PromptSourceEvaluation = "discovery_source_evaluation"
)

const defaultQueryGenerationPrompt = `You are a design scout hunting for websites with exceptional visual design.
Generate %d diverse web search queries for finding them.
Mix brand-specific queries (award winners, known design-led companies) with
generic ones (e.g. "best SaaS landing pages 2026", "minimal portfolio site").
%s
Output one query per line. No numbering, no commentary.`

const defaultSourceEvaluationPrompt = `You evaluate whether a website is worth capturing for a design corpus.
URL: %s
Found via query: %s

Reply with a single JSON object:
{
  "is_design_worthy": true|false,
  "trust_score": 1-10,
  "category": "saas|portfolio|ecommerce|editorial|agency|other",
  "tags": ["..."],
  "reason": "one sentence"
}

Trust score tiers: 8-10 award winners and known design-led brands,
5-7 professional but unknown, 1-4 templated or stale sites.`

// Built-in queries used when the LLM cannot produce a usable list.
var fallbackQueries = []string{
	"awwwards site of the day winners",
	"best SaaS landing page design",
	"minimal portfolio website design",
	"beautiful ecommerce website design",
	"design-led startup websites",
}
