// Package score implements the heuristic answer-quality scorer.
//
// The scorer is a pure function over the raw utterance text: it needs no
// network access and no session state, so it provides a cheap local quality
// signal even when the judge backend is slow or silent. Each sub-score is
// bounded by a saturating tanh curve so a single very long or keyword-stuffed
// answer cannot dominate the blend.
package score

import (
	"math"
	"regexp"
	"strings"
)

// techKeywords is the fixed domain vocabulary used for the technical-depth
// sub-score. Hits are counted by case-insensitive substring match.
var techKeywords = []string{
	"algorithm", "complexity", "architecture", "scalability", "latency",
	"throughput", "trade-off", "tradeoff", "distributed", "consistency",
	"availability", "partition", "database", "cache", "api", "microservice",
	"kubernetes", "docker", "ci/cd", "pipeline", "deployed", "implemented",
	"optimized", "refactored", "async", "concurrent", "thread", "memory",
	"time complexity", "space complexity", "o(n",
	"race condition", "idempotent", "inconsistency", "ingestion", "validation gates",
	"feature engineering", "scraping", "bottleneck", "deadlock", "idempotency",
	"eventual consistency", "acid", "normalization", "indexing", "sharding",
	"load balancer", "replication", "failover", "consensus", "raft", "paxos",
}

// specificityMarkers indicate concrete, example-driven answers.
var specificityMarkers = []string{
	"specifically", "for example", "for instance", "such as", "in particular",
	"we used", "i built", "i led", "i reduced", "i increased", "resulted in",
	"percent", "%", "ms", "seconds", "million", "thousand", "users",
	"enforcing", "tackle", "separation", "gate", "logic",
}

// fillers are hedging or filler phrases that lower the score.
var fillers = []string{
	"um", "uh", "like", "you know", "basically", "kind of", "sort of", "i mean",
}

// numberToken matches standalone numeric tokens, optionally with a magnitude
// or percent suffix (40, 3.5k, 99%, 12m).
var numberToken = regexp.MustCompile(`(?i)\b\d+(\.\d+)?[kmb%]?\b`)

// sig is a continuous sigmoid centred at center and scaled by slope.
// Output is in (-1, 1).
func sig(x, center, slope float64) float64 {
	return math.Tanh((x - center) / slope)
}

// Heuristic scores a candidate utterance on a [-1, 1] scale from text alone.
//
// Five bounded sub-scores are blended: answer depth (word count), technical
// depth (domain vocabulary, weighted highest), specificity (concrete markers
// and numeric tokens), structure (sentence count), minus a filler-density
// penalty. The result is clamped to [-1, 1].
func Heuristic(text string) float64 {
	lower := strings.ToLower(text)
	wordCount := len(strings.Fields(text))

	sentenceCount := 0
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if len(strings.TrimSpace(s)) > 5 {
			sentenceCount++
		}
	}

	depth := sig(float64(wordCount), 20, 15)

	techHits := 0
	for _, k := range techKeywords {
		if strings.Contains(lower, k) {
			techHits++
		}
	}
	technical := sig(float64(techHits), 1.2, 1.2)

	specHits := len(numberToken.FindAllString(text, -1))
	for _, m := range specificityMarkers {
		if strings.Contains(lower, m) {
			specHits++
		}
	}
	specificity := sig(float64(specHits), 1, 1.0)

	structure := sig(float64(sentenceCount), 1.5, 0.8)

	fillerHits := 0
	for _, f := range fillers {
		if strings.Contains(lower, f) {
			fillerHits++
		}
	}
	fillerDensity := float64(fillerHits) / math.Max(1, float64(wordCount)/10)
	fillerPenalty := math.Tanh(fillerDensity * 2.5)

	raw := depth*0.25 + technical*0.45 + specificity*0.15 + structure*0.15 - fillerPenalty*0.3

	return math.Max(-1, math.Min(1, raw))
}

// Normalized remaps Heuristic's [-1, 1] output to the [0, 1] range expected
// by the rating engine's quality blend.
func Normalized(text string) float64 {
	return (Heuristic(text) + 1) / 2
}
