// Package clustering groups ranked results into research themes. OpenAlex
// topic names seed the clusters; every other record is pulled in by its
// strongest signal: MeSH term overlap, category names, or title keywords.
// The pass runs after scoring and deduplication and never changes item
// order within a source, only the grouping presented to renderers.
package clustering

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"litscout/internal/core"
)

const (
	// assignmentThreshold is the minimum affinity for an item to join a
	// cluster instead of falling through to "Other".
	assignmentThreshold = 0.3
	maxClusters         = 8
	minClusterSize      = 2
	// topicScoreThreshold gates which OpenAlex topic annotations are
	// trusted enough to seed a cluster.
	topicScoreThreshold = 0.5

	otherLabel = "Other"
)

// Cluster is a group of items sharing a research theme.
type Cluster struct {
	Label string      `json:"label"`
	Items []core.Item `json:"items"`
}

// Count reports the number of items in the cluster.
func (c Cluster) Count() int { return len(c.Items) }

// TotalScore sums the composite scores of all items, used to order
// clusters by overall weight.
func (c Cluster) TotalScore() int {
	total := 0
	for _, it := range c.Items {
		total += it.Score
	}
	return total
}

// ByTheme groups items into research themes. Clusters are ordered by
// total score descending with "Other" always last; items inside a
// cluster are ordered by score descending. Output is deterministic for
// a fixed input order. fallback names the single catch-all cluster used
// when no theme signals exist at all.
func ByTheme(items []core.Item, fallback string) []Cluster {
	if len(items) == 0 {
		return nil
	}

	themes, unassigned := seedFromTopics(items)
	if len(themes) == 0 {
		themes, unassigned = seedFallback(items)
	}
	if len(themes) == 0 {
		all := append([]core.Item(nil), items...)
		sortByScore(all)
		return []Cluster{{Label: fallback, Items: all}}
	}

	unassigned = assign(themes, unassigned)

	// When the seeds explain less than 60% of the input, mine the
	// leftovers for application-domain sub-themes before giving up.
	if len(unassigned) > 0 && float64(len(unassigned)) > 0.4*float64(len(items)) {
		taken := make(map[string]bool, len(themes))
		for _, th := range themes {
			taken[th.name] = true
		}
		sub, rest := subclusterOverflow(unassigned, taken)
		themes = append(themes, sub...)
		unassigned = rest
	}

	return consolidate(themes, unassigned)
}

// theme is a cluster under construction. A slice of themes plus a name
// index keeps first-seen order, which the final ordering depends on.
type theme struct {
	name  string
	items []core.Item
}

func seedFromTopics(items []core.Item) ([]*theme, []core.Item) {
	var themes []*theme
	index := make(map[string]*theme)
	var unassigned []core.Item

	for _, it := range items {
		d, ok := it.Details.(core.OpenAlexDetails)
		if !ok || d.PrimaryTopicName == "" || d.PrimaryTopicScore < topicScoreThreshold {
			unassigned = append(unassigned, it)
			continue
		}
		th := index[d.PrimaryTopicName]
		if th == nil {
			th = &theme{name: d.PrimaryTopicName}
			themes = append(themes, th)
			index[d.PrimaryTopicName] = th
		}
		th.items = append(th.items, it)
	}
	return themes, unassigned
}

// seedFallback builds synthetic seeds when no OpenAlex topics are
// available: arXiv and bioRxiv categories first, then the most common
// PubMed MeSH terms as empty clusters for assign to fill.
func seedFallback(items []core.Item) ([]*theme, []core.Item) {
	var themes []*theme
	index := make(map[string]*theme)
	var unassigned []core.Item

	for _, it := range items {
		name := ""
		switch d := it.Details.(type) {
		case core.ArxivDetails:
			if d.PrimaryCategory != "" {
				name = arxivCategoryNames[d.PrimaryCategory]
				if name == "" {
					name = d.PrimaryCategory
				}
			}
		case core.BiorxivDetails:
			name = d.Category
		}
		if name == "" {
			unassigned = append(unassigned, it)
			continue
		}
		th := index[name]
		if th == nil {
			th = &theme{name: name}
			themes = append(themes, th)
			index[name] = th
		}
		th.items = append(th.items, it)
	}
	if len(themes) > 0 {
		return themes, unassigned
	}

	meshCounts := newCounter()
	for _, it := range items {
		d, ok := it.Details.(core.PubmedDetails)
		if !ok {
			continue
		}
		for i, term := range d.MeshTerms {
			if i == 3 {
				break
			}
			meshCounts.add(term)
		}
	}
	for _, term := range meshCounts.top(5) {
		if meshCounts.counts[term] >= minClusterSize {
			themes = append(themes, &theme{name: term})
		}
	}
	return themes, items
}

// assign places each item into the highest-affinity theme, first theme
// winning ties. Items below the threshold are returned unplaced.
func assign(themes []*theme, items []core.Item) []core.Item {
	var unplaced []core.Item
	for _, it := range items {
		var best *theme
		bestScore := 0.0
		for _, th := range themes {
			if a := affinity(it, th.name); a > bestScore {
				bestScore = a
				best = th
			}
		}
		if best != nil && bestScore >= assignmentThreshold {
			best.items = append(best.items, it)
		} else {
			unplaced = append(unplaced, it)
		}
	}
	return unplaced
}

// subclusterOverflow mines differentiating MeSH terms and categories out
// of the overflow and runs one more assignment round against them. Names
// already used by existing clusters are skipped.
func subclusterOverflow(overflow []core.Item, taken map[string]bool) ([]*theme, []core.Item) {
	meshCounts := newCounter()
	catCounts := newCounter()
	for _, it := range overflow {
		switch d := it.Details.(type) {
		case core.PubmedDetails:
			for i, term := range d.MeshTerms {
				if i == 5 {
					break
				}
				if !genericMesh[term] {
					meshCounts.add(term)
				}
			}
		case core.ArxivDetails:
			if d.PrimaryCategory != "" {
				name := arxivCategoryNames[d.PrimaryCategory]
				if name == "" {
					name = d.PrimaryCategory
				}
				catCounts.add(name)
			}
		case core.BiorxivDetails:
			if d.Category != "" {
				catCounts.add(d.Category)
			}
		}
	}

	var themes []*theme
	seen := make(map[string]bool)
	for _, term := range meshCounts.top(10) {
		if meshCounts.counts[term] >= minClusterSize && !taken[term] {
			themes = append(themes, &theme{name: term})
			seen[term] = true
		}
	}
	for _, name := range catCounts.top(5) {
		if catCounts.counts[name] >= minClusterSize && !taken[name] && !seen[name] {
			themes = append(themes, &theme{name: name})
		}
	}
	if len(themes) == 0 {
		return nil, overflow
	}
	rest := assign(themes, overflow)
	return themes, rest
}

// consolidate dissolves undersized clusters, caps the cluster count and
// builds the ordered output with "Other" last.
func consolidate(themes []*theme, unassigned []core.Item) []Cluster {
	small := make(map[*theme]bool)
	for _, th := range themes {
		if len(th.items) < minClusterSize {
			small[th] = true
		}
	}
	for _, th := range themes {
		if !small[th] {
			continue
		}
		// Fold into the most similarly named surviving cluster, or
		// drop to the unassigned pool when nothing shares a word.
		var target *theme
		bestSim := 0.0
		for _, other := range themes {
			if small[other] {
				continue
			}
			if sim := nameSimilarity(th.name, other.name); sim > bestSim {
				bestSim = sim
				target = other
			}
		}
		if target != nil {
			target.items = append(target.items, th.items...)
		} else {
			unassigned = append(unassigned, th.items...)
		}
	}
	var kept []*theme
	for _, th := range themes {
		if !small[th] {
			kept = append(kept, th)
		}
	}

	if len(kept) > maxClusters {
		sort.SliceStable(kept, func(i, j int) bool {
			return themeScore(kept[i]) > themeScore(kept[j])
		})
		for _, th := range kept[maxClusters:] {
			unassigned = append(unassigned, th.items...)
		}
		kept = kept[:maxClusters]
	}

	clusters := make([]Cluster, 0, len(kept)+1)
	for _, th := range kept {
		sortByScore(th.items)
		clusters = append(clusters, Cluster{Label: th.name, Items: th.items})
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].TotalScore() > clusters[j].TotalScore()
	})
	if len(unassigned) > 0 {
		sortByScore(unassigned)
		clusters = append(clusters, Cluster{Label: otherLabel, Items: unassigned})
	}
	return clusters
}

func themeScore(th *theme) int {
	total := 0
	for _, it := range th.items {
		total += it.Score
	}
	return total
}

// sortByScore orders items by composite score descending, keeping the
// incoming (already ranked) order for ties.
func sortByScore(items []core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}

// affinity rates how strongly an item belongs to a named theme, taking
// the best of its available signals: MeSH terms at full weight, mapped
// categories at 0.8, the title at 0.9 and the leading abstract text at
// 0.3.
func affinity(it core.Item, label string) float64 {
	labelWords := tokenize(label)
	if len(labelWords) == 0 {
		return 0
	}

	best := 0.0
	switch d := it.Details.(type) {
	case core.PubmedDetails:
		if len(d.MeshTerms) > 0 {
			best = math.Max(best, wordAffinity(strings.Join(d.MeshTerms, " "), labelWords))
		}
	case core.ArxivDetails:
		if name := arxivCategoryNames[d.PrimaryCategory]; name != "" {
			best = math.Max(best, 0.8*wordAffinity(name, labelWords))
		}
	case core.BiorxivDetails:
		if d.Category != "" {
			best = math.Max(best, 0.8*wordAffinity(d.Category, labelWords))
		}
	}
	if it.Title != "" {
		best = math.Max(best, 0.9*wordAffinity(it.Title, labelWords))
	}
	if it.Abstract != "" {
		best = math.Max(best, 0.3*wordAffinity(leadingRunes(it.Abstract, 200), labelWords))
	}
	return best
}

// wordAffinity is the fraction of label words with a fuzzy match in the
// given text.
func wordAffinity(text string, labelWords map[string]bool) float64 {
	if len(labelWords) == 0 {
		return 0
	}
	textWords := tokenize(text)
	matched := 0
	for target := range labelWords {
		for candidate := range textWords {
			if wordsMatch(target, candidate) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(labelWords))
}

// wordsMatch allows morphological variation between two words, e.g.
// gene/genetic or edit/editing: equal, or one is a prefix of the other
// with at least 4 shared characters.
func wordsMatch(a, b string) bool {
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) < 4 {
		return false
	}
	return strings.HasPrefix(longer, shorter)
}

// nameSimilarity is the exact word overlap between two cluster names,
// normalized by the shorter name.
func nameSimilarity(a, b string) float64 {
	wordsA := tokenize(a)
	wordsB := tokenize(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	shared := 0
	for w := range wordsA {
		if wordsB[w] {
			shared++
		}
	}
	n := len(wordsA)
	if len(wordsB) < n {
		n = len(wordsB)
	}
	return float64(shared) / float64(n)
}

var clusterWordRe = regexp.MustCompile(`[a-z]{3,}`)

// tokenize extracts meaningful words: lowercase, at least 3 letters, no
// stop words.
func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range clusterWordRe.FindAllString(strings.ToLower(text), -1) {
		if !stopWords[w] {
			words[w] = true
		}
	}
	return words
}

func leadingRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// counter tallies strings while remembering first-seen order so that
// equal counts rank deterministically.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if c.counts[key] == 0 {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// top returns up to n keys ordered by count descending, first-seen
// order for ties.
func (c *counter) top(n int) []string {
	ranked := append([]string(nil), c.order...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return c.counts[ranked[i]] > c.counts[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true,
	"can": true, "shall": true, "not": true, "no": true, "its": true,
	"it": true, "this": true, "that": true, "these": true, "those": true,
	"their": true, "them": true, "using": true, "based": true,
	"via": true, "through": true, "between": true, "into": true,
	"also": true, "new": true, "novel": true, "study": true,
	"analysis": true, "research": true, "results": true, "effect": true,
	"effects": true, "role": true, "approach": true, "method": true,
	"methods": true, "review": true,
}

// arxivCategoryNames maps arXiv primary categories to human-readable
// names usable as cluster labels.
var arxivCategoryNames = map[string]string{
	"cs.AI":             "Artificial Intelligence",
	"cs.LG":             "Machine Learning",
	"cs.CL":             "Natural Language Processing",
	"cs.CV":             "Computer Vision",
	"cs.CR":             "Cryptography and Security",
	"cs.DS":             "Data Structures and Algorithms",
	"cs.IR":             "Information Retrieval",
	"cs.NE":             "Neural and Evolutionary Computing",
	"cs.RO":             "Robotics",
	"cs.SE":             "Software Engineering",
	"q-bio.BM":          "Biomolecules",
	"q-bio.CB":          "Cell Behavior",
	"q-bio.GN":          "Genomics",
	"q-bio.MN":          "Molecular Networks",
	"q-bio.NC":          "Neurons and Cognition",
	"q-bio.PE":          "Populations and Evolution",
	"q-bio.QM":          "Quantitative Methods",
	"stat.ML":           "Machine Learning",
	"stat.ME":           "Statistical Methodology",
	"physics.bio-ph":    "Biological Physics",
	"math.OC":           "Optimization and Control",
	"eess.SP":           "Signal Processing",
	"quant-ph":          "Quantum Physics",
	"cond-mat.mtrl-sci": "Materials Science",
	"cond-mat.mes-hall": "Mesoscale and Nanoscale Physics",
	"hep-th":            "High Energy Physics - Theory",
	"hep-ph":            "High Energy Physics - Phenomenology",
	"astro-ph":          "Astrophysics",
	"gr-qc":             "General Relativity and Quantum Cosmology",
	"math-ph":           "Mathematical Physics",
	"nucl-th":           "Nuclear Theory",
	"physics.chem-ph":   "Chemical Physics",
	"physics.comp-ph":   "Computational Physics",
	"physics.optics":    "Optics",
}

// genericMesh lists MeSH descriptors too broad to differentiate
// application domains; sub-clustering ignores them.
var genericMesh = map[string]bool{
	"Humans": true, "Animals": true, "Male": true, "Female": true,
	"Gene Editing": true, "CRISPR-Cas Systems": true,
	"CRISPR-Associated Protein 9": true,
	"RNA, Guide, CRISPR-Cas Systems": true, "Genetic Therapy": true,
	"Genome Editing": true, "Genome, Human": true,
	"Mutation": true, "Base Sequence": true, "DNA": true,
	"Cell Line": true, "Cell Line, Tumor": true, "Cells, Cultured": true,
	"Gene Expression": true, "Gene Expression Regulation": true,
	"Molecular Sequence Data": true,
}
