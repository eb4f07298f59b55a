// Package sources implements the upstream literature adapters: arXiv,
// bioRxiv/medRxiv, PubMed, HuggingFace Hub, OpenAlex and Semantic Scholar.
//
// Every adapter satisfies the same contract: Search returns whatever items it
// managed to collect plus an error describing anything that went wrong along
// the way. Partial results beside a non-nil error are normal — a later page
// failing must not discard earlier pages. Adapters never return an error for
// "zero matches".
package sources

import (
	"context"
	"math"
	"strings"
	"time"

	"litscout/internal/core"
	"litscout/internal/fetch"
)

// Adapter is the contract shared by all upstream sources.
type Adapter interface {
	// Name reports the canonical source tag attached to every item.
	Name() core.Source
	// Search collects items matching the query. Partial results may
	// accompany a non-nil error when later pages or subresources fail.
	Search(ctx context.Context, q core.Query) ([]core.Item, error)
}

// Options carries the shared transport and per-source credentials used to
// construct adapters.
type Options struct {
	Client     *fetch.Client
	NCBIAPIKey string   // lifts PubMed from 3 to 10 requests/second
	S2APIKey   string   // Semantic Scholar throttles hard without one
	Contact    string   // mailto address for the OpenAlex polite pool
	TopicIDs   []string // OpenAlex topic IDs discovered for this query
}

// Build constructs adapters for the requested sources, preserving order.
func Build(active []core.Source, opts Options) []Adapter {
	adapters := make([]Adapter, 0, len(active))
	for _, src := range active {
		switch src {
		case core.SourceOpenAlex:
			adapters = append(adapters, NewOpenAlex(opts.Client, opts.Contact, opts.TopicIDs))
		case core.SourceSemanticScholar:
			adapters = append(adapters, NewSemanticScholar(opts.Client, opts.S2APIKey))
		case core.SourceBiorxiv:
			adapters = append(adapters, NewBiorxiv(opts.Client))
		case core.SourceMedrxiv:
			adapters = append(adapters, NewMedrxiv(opts.Client))
		case core.SourceArxiv:
			adapters = append(adapters, NewArxiv(opts.Client))
		case core.SourcePubmed:
			adapters = append(adapters, NewPubmed(opts.Client, opts.NCBIAPIKey))
		case core.SourceHuggingFace:
			adapters = append(adapters, NewHuggingFace(opts.Client))
		}
	}
	return adapters
}

// ExpandSources resolves a selector ("all", "preprints", or a single source
// name) into the sources to query, in canonical report order. Unknown
// selectors fall back to the full default set.
func ExpandSources(selector string) []core.Source {
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case "preprints":
		return []core.Source{core.SourceOpenAlex, core.SourceArxiv}
	case "openalex":
		return []core.Source{core.SourceOpenAlex}
	case "semanticscholar":
		return []core.Source{core.SourceSemanticScholar}
	case "biorxiv":
		return []core.Source{core.SourceBiorxiv}
	case "medrxiv":
		return []core.Source{core.SourceMedrxiv}
	case "arxiv":
		return []core.Source{core.SourceArxiv}
	case "pubmed":
		return []core.Source{core.SourcePubmed}
	case "huggingface":
		return []core.Source{core.SourceHuggingFace}
	default: // "all" and anything unrecognized
		return []core.Source{
			core.SourceOpenAlex,
			core.SourceSemanticScholar,
			core.SourceArxiv,
			core.SourcePubmed,
			core.SourceHuggingFace,
		}
	}
}

// Minimum keyword relevance for sources whose search is date-only or too
// broad to trust. Semantic Scholar gets a stricter cutoff because its
// server-side semantic ranker already excludes tangential matches, leaving
// only abstract-level mentions to filter out.
const (
	relevanceCutoff   = 0.1
	s2RelevanceCutoff = 0.3
)

// depthCaps holds an adapter's per-depth cap on relevant items collected.
type depthCaps struct {
	quick, def, deep int
}

func (c depthCaps) limit(d core.Depth) int {
	switch d {
	case core.DepthQuick:
		return c.quick
	case core.DepthDeep:
		return c.deep
	default:
		return c.def
	}
}

// rankBoost nudges relevance upward for sources whose own ranker is worth
// trusting (OpenAlex, Semantic Scholar). The rank is global across pages and
// the boost decays linearly to zero at maxResults, so the first result gains
// at most +0.1.
func rankBoost(rel float64, globalRank, maxResults int) float64 {
	boost := 0.1 * (1 - float64(globalRank)/float64(maxResults))
	if boost < 0 {
		boost = 0
	}
	return math.Min(1, rel+boost)
}

func intp(v int) *int { return &v }

// sleepCtx pauses for d, returning early with the context error if the
// caller is cancelled. Adapters use it for inter-request rate spacing.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
