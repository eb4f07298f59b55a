// Package scoring turns per-item signals into the composite 0-100 score
// used for ranking: an engagement sub-score from academic-weight metadata,
// a weighted blend with relevance and recency, and the canonical sort order.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"litscout/internal/core"
	"litscout/internal/dates"
)

// Composite weights. Papers blend relevance-heavy; Hugging Face artifacts
// lean a little more on engagement because downloads and likes are the
// only quality signal that platform offers.
const (
	paperWeightRelevance  = 0.50
	paperWeightRecency    = 0.25
	paperWeightEngagement = 0.25

	hfWeightRelevance  = 0.45
	hfWeightRecency    = 0.25
	hfWeightEngagement = 0.30

	lowConfidencePenalty = 10
)

// Category prefixes that mark high-traffic arXiv areas.
var arxivPopularCategories = []string{
	"cs.AI", "cs.LG", "cs.CL", "cs.CV", "cs.NE", "stat.ML",
	"q-bio", "physics", "math",
}

// log1pSafe treats nil and negative counts as zero signal.
func log1pSafe(n *int) float64 {
	if n == nil || *n < 0 {
		return 0
	}
	return math.Log1p(float64(*n))
}

func capAt100(score int) int {
	if score > 100 {
		return 100
	}
	return score
}

// EngagementScore rates an item's academic-weight signals 0-100. Each
// source has its own base and bonuses because the sources expose very
// different metadata: PubMed implies peer review, preprint servers reward
// a published DOI, Hugging Face only has download and like counts.
func EngagementScore(it core.Item) int {
	switch it.Source {
	case core.SourceArxiv:
		return arxivEngagement(it)
	case core.SourceBiorxiv, core.SourceMedrxiv:
		return biorxivEngagement(it.Engagement)
	case core.SourcePubmed:
		return pubmedEngagement(it.Engagement)
	case core.SourceHuggingFace:
		return huggingfaceEngagement(it.Engagement)
	case core.SourceOpenAlex, core.SourceSemanticScholar:
		return indexedPaperEngagement(it.Engagement)
	default:
		return 0
	}
}

func arxivEngagement(it core.Item) int {
	score := 30
	var primary string
	if d, ok := it.Details.(core.ArxivDetails); ok {
		primary = d.PrimaryCategory
	}
	for _, cat := range arxivPopularCategories {
		if strings.HasPrefix(primary, cat) {
			score += 10
			break
		}
	}
	if e := it.Engagement; e != nil && e.AuthorCount != nil && *e.AuthorCount >= 5 {
		score += 10
	}
	return capAt100(score)
}

func biorxivEngagement(e *core.Engagement) int {
	score := 20
	if e == nil {
		return score
	}
	if e.PublishedDOI != "" {
		score += 50 // a peer-reviewed version exists
	}
	if e.AuthorCount != nil && *e.AuthorCount >= 5 {
		score += 10
	}
	return capAt100(score)
}

func pubmedEngagement(e *core.Engagement) int {
	score := 40
	if e == nil {
		return score
	}
	if e.PublishedJournal != "" {
		score += 20
	}
	if e.CitationCount != nil && *e.CitationCount > 0 {
		score += int(log1pSafe(e.CitationCount) * 15)
	}
	return capAt100(score)
}

func huggingfaceEngagement(e *core.Engagement) int {
	score := 10
	if e == nil {
		return score
	}
	score += int(log1pSafe(e.Downloads) * 8)
	score += int(log1pSafe(e.Likes) * 12)
	return capAt100(score)
}

// indexedPaperEngagement covers OpenAlex and Semantic Scholar, which expose
// the same signal set: venue, citation counts and author counts.
func indexedPaperEngagement(e *core.Engagement) int {
	score := 30
	if e == nil {
		return score
	}
	if e.PublishedJournal != "" {
		score += 20
	}
	if e.CitationCount != nil && *e.CitationCount > 0 {
		score += int(log1pSafe(e.CitationCount) * 12)
	}
	if e.AuthorCount != nil && *e.AuthorCount >= 5 {
		score += 10
	}
	return capAt100(score)
}

// ScoreItems fills in sub-scores and the composite score for every item,
// in place. The composite is the weighted blend of relevance, recency and
// engagement, minus a flat penalty when the publication date could not be
// trusted, clamped to [0,100].
func ScoreItems(items []core.Item, now time.Time) {
	for i := range items {
		it := &items[i]

		rel := int(it.Relevance * 100)
		rec := dates.RecencyScore(it.Date, now)
		eng := EngagementScore(*it)
		it.Subs = core.SubScores{Relevance: rel, Recency: rec, Engagement: eng}

		wr, wt, wa := paperWeightRelevance, paperWeightRecency, paperWeightEngagement
		if it.Source == core.SourceHuggingFace {
			wr, wt, wa = hfWeightRelevance, hfWeightRecency, hfWeightEngagement
		}
		overall := wr*float64(rel) + wt*float64(rec) + wa*float64(eng)
		if it.DateConfidence == core.ConfidenceLow {
			overall -= lowConfidencePenalty
		}

		score := int(overall)
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		it.Score = score
	}
}

// SortItems orders items by score descending, then date descending, then
// title. The ID tie-break makes the order total, so any permutation of the
// same input sorts to the same output.
func SortItems(items []core.Item) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		da, db := dates.AsInt(a.Date), dates.AsInt(b.Date)
		if da != db {
			return da > db
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	})
}
