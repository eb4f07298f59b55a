// Package dedupe removes duplicate records within and across sources.
//
// Two passes: an exact DOI match (every DOI an item carries counts,
// including the peer-reviewed DOI of a preprint), then a fuzzy title match
// using Jaccard similarity over character 3-grams. When two items collide,
// the more authoritative source wins; within the same source the higher
// score wins, and the earlier item wins a full tie.
package dedupe

import (
	"regexp"
	"strings"

	"litscout/internal/core"
)

// titleThreshold is the Jaccard similarity at which two titles are
// considered the same work.
const titleThreshold = 0.70

// sourcePriority ranks sources for collision resolution; lower wins.
// Peer-reviewed indexes beat preprint servers beat model hubs.
var sourcePriority = map[core.Source]int{
	core.SourcePubmed:          0,
	core.SourceOpenAlex:        1,
	core.SourceSemanticScholar: 1,
	core.SourceBiorxiv:         2,
	core.SourceMedrxiv:         3,
	core.SourceArxiv:           4,
	core.SourceHuggingFace:     5,
}

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Priority returns the dedup rank of a source; unknown sources rank last.
func Priority(src core.Source) int {
	if p, ok := sourcePriority[src]; ok {
		return p
	}
	return 99
}

// NormalizeTitle lowercases, strips punctuation and collapses whitespace.
func NormalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = nonWordRe.ReplaceAllString(t, " ")
	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// TitleNgrams returns the set of character 3-grams of the normalized
// title. Titles shorter than 3 characters become a single-element set.
func TitleNgrams(title string) map[string]bool {
	t := NormalizeTitle(title)
	grams := make(map[string]bool)
	if len(t) < 3 {
		grams[t] = true
		return grams
	}
	for i := 0; i+3 <= len(t); i++ {
		grams[t[i:i+3]] = true
	}
	return grams
}

// Jaccard computes |A∩B| / |A∪B|; empty sets yield 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for g := range a {
		if b[g] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// itemDOIs collects every DOI an item carries, lowercased and trimmed:
// the variant payload's own DOIs plus the peer-reviewed DOI recorded in
// its engagement block.
func itemDOIs(it core.Item) []string {
	var dois []string
	if it.Details != nil {
		dois = append(dois, it.Details.DOIs()...)
	}
	if it.Engagement != nil && it.Engagement.PublishedDOI != "" {
		dois = append(dois, it.Engagement.PublishedDOI)
	}
	out := dois[:0]
	for _, d := range dois {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// keepFirst reports whether a should be retained over b when the two
// collide: higher-priority source first, then higher score, then a itself
// (stable for equal pairs).
func keepFirst(a, b core.Item) bool {
	pa, pb := Priority(a.Source), Priority(b.Source)
	if pa != pb {
		return pa < pb
	}
	return a.Score >= b.Score
}

// WithinSource removes near-duplicate titles inside a single source's
// list, keeping the higher-scored item. Order is preserved.
func WithinSource(items []core.Item) []core.Item {
	if len(items) <= 1 {
		return items
	}
	grams := make([]map[string]bool, len(items))
	for i, it := range items {
		grams[i] = TitleNgrams(it.Title)
	}

	removed := make(map[int]bool)
	for i := 0; i < len(items); i++ {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if removed[j] {
				continue
			}
			if Jaccard(grams[i], grams[j]) < titleThreshold {
				continue
			}
			if items[i].Score >= items[j].Score {
				removed[j] = true
			} else {
				removed[i] = true
			}
		}
	}
	return without(items, removed)
}

// CrossSource removes duplicates across the union of all sources: first
// the DOI pass, then the title pass over the survivors. Order is
// preserved.
func CrossSource(items []core.Item) []core.Item {
	if len(items) <= 1 {
		return items
	}
	removed := make(map[int]bool)

	// DOI pass. Iterate DOIs in first-seen order so runs are reproducible.
	doiMap := make(map[string][]int)
	var doiOrder []string
	for idx, it := range items {
		for _, doi := range itemDOIs(it) {
			if _, seen := doiMap[doi]; !seen {
				doiOrder = append(doiOrder, doi)
			}
			doiMap[doi] = append(doiMap[doi], idx)
		}
	}
	for _, doi := range doiOrder {
		indices := doiMap[doi]
		if len(indices) <= 1 {
			continue
		}
		best := indices[0]
		for _, idx := range indices[1:] {
			if !keepFirst(items[best], items[idx]) {
				best = idx
			}
		}
		for _, idx := range indices {
			if idx != best {
				removed[idx] = true
			}
		}
	}

	// Title pass over what the DOI pass left standing.
	type entry struct {
		idx   int
		grams map[string]bool
	}
	var entries []entry
	for idx, it := range items {
		if !removed[idx] {
			entries = append(entries, entry{idx, TitleNgrams(it.Title)})
		}
	}
	for i := 0; i < len(entries); i++ {
		if removed[entries[i].idx] {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if removed[entries[j].idx] {
				continue
			}
			if Jaccard(entries[i].grams, entries[j].grams) < titleThreshold {
				continue
			}
			a, b := items[entries[i].idx], items[entries[j].idx]
			if keepFirst(a, b) {
				removed[entries[j].idx] = true
			} else {
				removed[entries[i].idx] = true
			}
		}
	}

	return without(items, removed)
}

func without(items []core.Item, removed map[int]bool) []core.Item {
	if len(removed) == 0 {
		return items
	}
	kept := make([]core.Item, 0, len(items)-len(removed))
	for idx, it := range items {
		if !removed[idx] {
			kept = append(kept, it)
		}
	}
	return kept
}
