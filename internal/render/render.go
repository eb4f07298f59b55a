// Package render turns a ResultSet into its presentation surfaces: the
// compact ranked list printed to stdout, the full markdown report, a
// self-contained HTML page, a reusable context snippet, and the on-disk
// output bundle combining all of them.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"litscout/internal/clustering"
	"litscout/internal/core"
	"litscout/internal/scoring"
)

// DefaultLimit caps how many ranked items the compact and HTML views show
// when no depth is given.
const DefaultLimit = 25

// LimitFor maps a run depth to its display cap.
func LimitFor(depth core.Depth) int {
	switch depth {
	case core.DepthQuick:
		return 10
	case core.DepthDeep:
		return 50
	default:
		return DefaultLimit
	}
}

// displayOrder fixes the iteration order over per-source lists so every
// surface renders deterministically.
var displayOrder = []core.Source{
	core.SourceOpenAlex,
	core.SourceSemanticScholar,
	core.SourcePubmed,
	core.SourceBiorxiv,
	core.SourceMedrxiv,
	core.SourceArxiv,
	core.SourceHuggingFace,
}

var displayNames = map[core.Source]string{
	core.SourceOpenAlex:        "OpenAlex",
	core.SourceSemanticScholar: "S2",
	core.SourcePubmed:          "PubMed",
	core.SourceBiorxiv:         "biorxiv",
	core.SourceMedrxiv:         "medRxiv",
	core.SourceArxiv:           "arXiv",
	core.SourceHuggingFace:     "HF",
}

// Compact renders the flat ranked list with abstracts, the default
// stdout view.
func Compact(rs *core.ResultSet, limit int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("## Scientific Research Results: %s\n\n", rs.Topic))

	f := assessFreshness(rs)
	if f.sparse() {
		b.WriteString(fmt.Sprintf("**LIMITED RECENT DATA** - Only %d item(s) from %s to %s.\n\n",
			f.recent, rs.RangeFrom, rs.RangeTo))
	}
	if rs.FromCache {
		b.WriteString(fmt.Sprintf("**CACHED RESULTS** (%s) — use `--refresh` for fresh data\n\n", cacheAge(rs)))
	}

	b.WriteString(fmt.Sprintf("**Date Range:** %s to %s\n", rs.RangeFrom, rs.RangeTo))

	items := collectRanked(rs)
	showing := limit
	if len(items) < showing {
		showing = len(items)
	}
	b.WriteString(fmt.Sprintf("**Sources:** %s (%d total, showing top %d)\n\n",
		strings.Join(sourceSummary(rs), " | "), len(items), showing))

	writeErrors(&b, rs)

	for i, it := range items {
		if i == limit {
			break
		}
		writeItem(&b, i+1, it)
	}
	return b.String()
}

// collectRanked flattens the per-source lists and re-sorts them into one
// display ranking.
func collectRanked(rs *core.ResultSet) []core.Item {
	var items []core.Item
	for _, src := range displayOrder {
		items = append(items, rs.Items[src]...)
	}
	scoring.SortItems(items)
	return items
}

type freshness struct {
	recent int
	total  int
}

// sparse flags runs where almost nothing actually falls inside the
// requested window, so readers aren't misled by backfilled results.
func (f freshness) sparse() bool { return f.recent < 5 }

func assessFreshness(rs *core.ResultSet) freshness {
	var f freshness
	for _, items := range rs.Items {
		for _, it := range items {
			f.total++
			if it.Date != "" && it.Date >= rs.RangeFrom {
				f.recent++
			}
		}
	}
	return f
}

func cacheAge(rs *core.ResultSet) string {
	if rs.CacheAgeHours > 0 {
		return fmt.Sprintf("%.1fh old", rs.CacheAgeHours)
	}
	return "cached"
}

func sourceSummary(rs *core.ResultSet) []string {
	var parts []string
	for _, src := range displayOrder {
		if n := len(rs.Items[src]); n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", displayNames[src], n))
		}
	}
	return parts
}

func writeErrors(b *strings.Builder, rs *core.ResultSet) {
	wrote := false
	for _, src := range displayOrder {
		err := rs.Errors[src]
		if err == "" {
			continue
		}
		if !wrote {
			b.WriteString("### Source Errors\n\n")
			wrote = true
		}
		b.WriteString(fmt.Sprintf("- **%s:** %s\n", src, err))
	}
	if wrote {
		b.WriteString("\n")
	}
}

func writeItem(b *strings.Builder, rank int, it core.Item) {
	date := it.Date
	if date == "" {
		date = "n/a"
	}
	b.WriteString(fmt.Sprintf("%d. **(%d)** %s %s\n", rank, it.Score, it.Title, sourceTag(it)))
	b.WriteString(fmt.Sprintf("   %s | %s\n", date, it.URL))
	if meta := itemMetadata(it); len(meta) > 0 {
		b.WriteString(fmt.Sprintf("   %s\n", strings.Join(meta, " | ")))
	}
	if it.Abstract != "" {
		b.WriteString(fmt.Sprintf("   > %s\n", strings.TrimSpace(truncateRunes(it.Abstract, 200))))
	}
	b.WriteString(fmt.Sprintf("   *%s*\n\n", it.WhyRelevant))
}

func sourceTag(it core.Item) string {
	switch it.Source {
	case core.SourceOpenAlex:
		return "[OpenAlex]"
	case core.SourceSemanticScholar:
		return "[S2]"
	case core.SourcePubmed:
		return "[PubMed]"
	case core.SourceBiorxiv, core.SourceMedrxiv:
		return "[" + string(it.Source) + "]"
	case core.SourceArxiv:
		return "[arXiv]"
	case core.SourceHuggingFace:
		if d, ok := it.Details.(core.HuggingFaceDetails); ok && d.ItemType != "" {
			return "[HF:" + d.ItemType + "]"
		}
		return "[HF]"
	}
	return "[?]"
}

// itemMetadata extracts the per-source metadata strings shown under an
// item: venue, DOI, MeSH terms, engagement counts.
func itemMetadata(it core.Item) []string {
	var parts []string
	switch d := it.Details.(type) {
	case core.PubmedDetails:
		if d.Journal != "" {
			parts = append(parts, d.Journal)
		}
		if d.DOI != "" {
			parts = append(parts, "DOI: "+d.DOI)
		}
		if len(d.MeshTerms) > 0 {
			terms := d.MeshTerms
			if len(terms) > 5 {
				terms = terms[:5]
			}
			parts = append(parts, "MeSH: "+strings.Join(terms, ", "))
		}
	case core.OpenAlexDetails:
		if d.SourceName != "" {
			parts = append(parts, d.SourceName)
		}
		if d.DOI != "" {
			parts = append(parts, "DOI: "+d.DOI)
		}
		parts = appendCitations(parts, it.Engagement)
	case core.SemanticScholarDetails:
		if d.Venue != "" {
			parts = append(parts, d.Venue)
		}
		if d.DOI != "" {
			parts = append(parts, "DOI: "+d.DOI)
		}
		parts = appendCitations(parts, it.Engagement)
	case core.ArxivDetails:
		if d.PrimaryCategory != "" {
			parts = append(parts, d.PrimaryCategory)
		}
	case core.BiorxivDetails:
		if d.Category != "" {
			parts = append(parts, d.Category)
		}
		if it.Engagement != nil && it.Engagement.PublishedDOI != "" {
			parts = append(parts, "PEER REVIEWED")
		}
	case core.HuggingFaceDetails:
		if d.ItemType != "" {
			parts = append(parts, d.ItemType)
		}
		if it.Engagement != nil {
			if n := it.Engagement.Downloads; n != nil && *n > 0 {
				parts = append(parts, fmt.Sprintf("%d downloads", *n))
			}
			if n := it.Engagement.Likes; n != nil && *n > 0 {
				parts = append(parts, fmt.Sprintf("%d likes", *n))
			}
		}
	}
	return parts
}

func appendCitations(parts []string, e *core.Engagement) []string {
	if e != nil && e.CitationCount != nil && *e.CitationCount > 0 {
		parts = append(parts, fmt.Sprintf("%d citations", *e.CitationCount))
	}
	return parts
}

// Markdown renders the full per-source report, led by a theme overview
// when the results cluster into more than one theme.
func Markdown(rs *core.ResultSet) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# %s - Scientific Research Report (Last 30 Days)\n\n", rs.Topic))
	b.WriteString(fmt.Sprintf("**Generated:** %s\n", rs.GeneratedAt))
	b.WriteString(fmt.Sprintf("**Date Range:** %s to %s\n", rs.RangeFrom, rs.RangeTo))
	b.WriteString(fmt.Sprintf("**Mode:** %s\n\n", rs.Mode))

	writeThemes(&b, rs)

	writePreprintSection(&b, rs, core.SourceBiorxiv, "Biorxiv Preprints")
	writePreprintSection(&b, rs, core.SourceMedrxiv, "Medrxiv Preprints")
	writeArxivSection(&b, rs)
	writePubmedSection(&b, rs)
	writeOpenAlexSection(&b, rs)
	writeSemanticScholarSection(&b, rs)
	writeHuggingFaceSection(&b, rs)

	return b.String()
}

func writeThemes(b *strings.Builder, rs *core.ResultSet) {
	clusters := clustering.ByTheme(collectRanked(rs), rs.Topic)
	// A single catch-all cluster just repeats the ranked list.
	if len(clusters) < 2 {
		return
	}
	b.WriteString("## Research Themes\n\n")
	for _, c := range clusters {
		b.WriteString(fmt.Sprintf("### %s (%d)\n", c.Label, c.Count()))
		for i, it := range c.Items {
			if i == 3 {
				break
			}
			b.WriteString(fmt.Sprintf("%d. %s (%d)\n", i+1, it.Title, it.Score))
		}
		b.WriteString("\n")
	}
}

func writePreprintSection(b *strings.Builder, rs *core.ResultSet, src core.Source, heading string) {
	items := rs.Items[src]
	if len(items) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s\n\n", heading))
	for _, it := range items {
		d, _ := it.Details.(core.BiorxivDetails)
		b.WriteString(fmt.Sprintf("### %s\n", it.Title))
		b.WriteString(fmt.Sprintf("- **DOI:** %s\n", d.PreprintDOI))
		b.WriteString(fmt.Sprintf("- **Date:** %s\n", orUnknown(it.Date)))
		b.WriteString(fmt.Sprintf("- **Category:** %s\n", d.Category))
		b.WriteString(fmt.Sprintf("- **Authors:** %s\n", it.Authors))
		b.WriteString(fmt.Sprintf("- **Score:** %d/100\n", it.Score))
		b.WriteString(fmt.Sprintf("- **URL:** %s\n", it.URL))
		writeBlockquote(b, it.Abstract)
		b.WriteString("\n")
	}
}

func writeArxivSection(b *strings.Builder, rs *core.ResultSet) {
	items := rs.Items[core.SourceArxiv]
	if len(items) == 0 {
		return
	}
	b.WriteString("## arXiv Papers\n\n")
	for _, it := range items {
		d, _ := it.Details.(core.ArxivDetails)
		b.WriteString(fmt.Sprintf("### %s\n", it.Title))
		b.WriteString(fmt.Sprintf("- **arXiv ID:** %s\n", d.ArxivID))
		b.WriteString(fmt.Sprintf("- **Date:** %s\n", orUnknown(it.Date)))
		b.WriteString(fmt.Sprintf("- **Category:** %s\n", d.PrimaryCategory))
		b.WriteString(fmt.Sprintf("- **Authors:** %s\n", it.Authors))
		b.WriteString(fmt.Sprintf("- **Score:** %d/100\n", it.Score))
		b.WriteString(fmt.Sprintf("- **URL:** %s\n", it.URL))
		writeBlockquote(b, it.Abstract)
		b.WriteString("\n")
	}
}

func writePubmedSection(b *strings.Builder, rs *core.ResultSet) {
	items := rs.Items[core.SourcePubmed]
	if len(items) == 0 {
		return
	}
	b.WriteString("## PubMed Articles\n\n")
	for _, it := range items {
		d, _ := it.Details.(core.PubmedDetails)
		doi := d.DOI
		if doi == "" {
			doi = "N/A"
		}
		b.WriteString(fmt.Sprintf("### %s\n", it.Title))
		b.WriteString(fmt.Sprintf("- **PMID:** %s\n", d.PMID))
		b.WriteString(fmt.Sprintf("- **Journal:** %s\n", d.Journal))
		b.WriteString(fmt.Sprintf("- **Date:** %s\n", orUnknown(it.Date)))
		b.WriteString(fmt.Sprintf("- **DOI:** %s\n", doi))
		b.WriteString(fmt.Sprintf("- **Score:** %d/100\n", it.Score))
		b.WriteString(fmt.Sprintf("- **URL:** %s\n", it.URL))
		writeBlockquote(b, it.Abstract)
		b.WriteString("\n")
	}
}

func writeOpenAlexSection(b *strings.Builder, rs *core.ResultSet) {
	items := rs.Items[core.SourceOpenAlex]
	if len(items) == 0 {
		return
	}
	b.WriteString("## OpenAlex Works\n\n")
	for _, it := range items {
		d, _ := it.Details.(core.OpenAlexDetails)
		b.WriteString(fmt.Sprintf("### %s\n", it.Title))
		b.WriteString(fmt.Sprintf("- **OpenAlex ID:** %s\n", d.OpenAlexID))
		b.WriteString(fmt.Sprintf("- **Date:** %s\n", orUnknown(it.Date)))
		b.WriteString(fmt.Sprintf("- **Source:** %s\n", d.SourceName))
		b.WriteString(fmt.Sprintf("- **Type:** %s\n", d.WorkType))
		b.WriteString(fmt.Sprintf("- **Authors:** %s\n", it.Authors))
		b.WriteString(fmt.Sprintf("- **Score:** %d/100\n", it.Score))
		b.WriteString(fmt.Sprintf("- **URL:** %s\n", it.URL))
		if d.DOI != "" {
			b.WriteString(fmt.Sprintf("- **DOI:** %s\n", d.DOI))
		}
		writeBlockquote(b, it.Abstract)
		b.WriteString("\n")
	}
}

func writeSemanticScholarSection(b *strings.Builder, rs *core.ResultSet) {
	items := rs.Items[core.SourceSemanticScholar]
	if len(items) == 0 {
		return
	}
	b.WriteString("## Semantic Scholar\n\n")
	for _, it := range items {
		d, _ := it.Details.(core.SemanticScholarDetails)
		b.WriteString(fmt.Sprintf("### %s\n", it.Title))
		b.WriteString(fmt.Sprintf("- **Paper ID:** %s\n", d.PaperID))
		b.WriteString(fmt.Sprintf("- **Date:** %s\n", orUnknown(it.Date)))
		b.WriteString(fmt.Sprintf("- **Venue:** %s\n", d.Venue))
		b.WriteString(fmt.Sprintf("- **Authors:** %s\n", it.Authors))
		b.WriteString(fmt.Sprintf("- **Score:** %d/100\n", it.Score))
		b.WriteString(fmt.Sprintf("- **URL:** %s\n", it.URL))
		if d.DOI != "" {
			b.WriteString(fmt.Sprintf("- **DOI:** %s\n", d.DOI))
		}
		writeBlockquote(b, it.Abstract)
		b.WriteString("\n")
	}
}

func writeHuggingFaceSection(b *strings.Builder, rs *core.ResultSet) {
	items := rs.Items[core.SourceHuggingFace]
	if len(items) == 0 {
		return
	}
	b.WriteString("## HuggingFace\n\n")
	for _, it := range items {
		d, _ := it.Details.(core.HuggingFaceDetails)
		b.WriteString(fmt.Sprintf("### %s (%s)\n", it.Title, d.ItemType))
		b.WriteString(fmt.Sprintf("- **Author:** %s\n", it.Authors))
		b.WriteString(fmt.Sprintf("- **Date:** %s\n", orUnknown(it.Date)))
		b.WriteString(fmt.Sprintf("- **Score:** %d/100\n", it.Score))
		b.WriteString(fmt.Sprintf("- **URL:** %s\n", it.URL))
		b.WriteString("\n")
	}
}

func writeBlockquote(b *strings.Builder, abstract string) {
	if abstract == "" {
		return
	}
	b.WriteString(fmt.Sprintf("\n> %s...\n", truncateRunes(abstract, 300)))
}

// ContextSnippet renders the short reusable summary fed to briefs and
// downstream prompts: the top-ranked titles across sources.
func ContextSnippet(rs *core.ResultSet) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Context: %s (Last 30 Days Scientific Research)\n\n", rs.Topic))
	b.WriteString(fmt.Sprintf("*Generated: %s | Sources: %s*\n\n", shortDate(rs.GeneratedAt), rs.Mode))
	b.WriteString("## Key Sources\n\n")

	type pick struct {
		score int
		label string
		title string
	}
	var picks []pick
	for _, src := range []core.Source{
		core.SourcePubmed,
		core.SourceSemanticScholar,
		core.SourceOpenAlex,
		core.SourceBiorxiv,
		core.SourceMedrxiv,
		core.SourceArxiv,
	} {
		for i, it := range rs.Items[src] {
			if i == 5 {
				break
			}
			picks = append(picks, pick{it.Score, string(src), it.Title})
		}
	}
	for i, it := range rs.Items[core.SourceHuggingFace] {
		if i == 3 {
			break
		}
		picks = append(picks, pick{it.Score, "HF", it.Title})
	}

	sort.SliceStable(picks, func(i, j int) bool { return picks[i].score > picks[j].score })
	if len(picks) > 10 {
		picks = picks[:10]
	}
	for _, p := range picks {
		b.WriteString(fmt.Sprintf("- [%s] %s\n", p.label, truncateRunes(p.title, 80)))
	}
	b.WriteString("\n")
	return b.String()
}

// WriteOutputs writes the report bundle (report.json, report.md,
// report.html, context.md) under dir, creating it if needed.
func WriteOutputs(rs *core.ResultSet, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	payload, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	files := map[string][]byte{
		"report.json": payload,
		"report.md":   []byte(Markdown(rs)),
		"report.html": []byte(HTML(rs, DefaultLimit)),
		"context.md":  []byte(ContextSnippet(rs)),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// AppendBrief appends the narrative brief to an already written markdown
// report.
func AppendBrief(dir, brief string) error {
	path := filepath.Join(dir, "report.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(fmt.Sprintf("\n## Brief\n\n%s\n", brief)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ContextPath returns where WriteOutputs puts the context snippet.
func ContextPath(dir string) string {
	return filepath.Join(dir, "context.md")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orUnknown(date string) string {
	if date == "" {
		return "Unknown"
	}
	return date
}

func shortDate(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}
