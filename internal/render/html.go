package render

import (
	"fmt"
	"html"
	"strings"

	"litscout/internal/core"
)

// HTML renders a self-contained single-page report with score badges,
// source tags, and collapsible abstracts. Everything inlines so the file
// opens anywhere with no assets.
func HTML(rs *core.ResultSet, limit int) string {
	items := collectRanked(rs)
	showing := limit
	if len(items) < showing {
		showing = len(items)
	}

	var rows strings.Builder
	for i, it := range items[:showing] {
		rows.WriteString(htmlItem(i+1, it))
	}

	var sparseNotice string
	if f := assessFreshness(rs); f.sparse() {
		sparseNotice = fmt.Sprintf(`<div class="notice warning">Limited recent data — only %d item(s) from %s to %s</div>`,
			f.recent, html.EscapeString(rs.RangeFrom), html.EscapeString(rs.RangeTo))
	}

	var cacheNotice string
	if rs.FromCache {
		cacheNotice = fmt.Sprintf(`<div class="notice">Cached results (%s) — use --refresh for fresh data</div>`,
			html.EscapeString(cacheAge(rs)))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Research: %s</title>
<style>
%s
</style>
</head>
<body>
<div class="container">
  <header>
    <h1>%s</h1>
    <div class="meta">
      <span>%s to %s</span>
      <span class="sep">|</span>
      <span>%s</span>
      <span class="sep">|</span>
      <span>%d total, showing top %d</span>
    </div>
  </header>
  %s
  %s
  %s
  <ol class="results">
    %s
  </ol>
  <footer>
    Generated %s by litscout
  </footer>
</div>
</body>
</html>`,
		html.EscapeString(rs.Topic),
		reportCSS,
		html.EscapeString(rs.Topic),
		html.EscapeString(rs.RangeFrom), html.EscapeString(rs.RangeTo),
		html.EscapeString(strings.Join(sourceSummary(rs), " | ")),
		len(items), showing,
		sparseNotice,
		cacheNotice,
		htmlErrors(rs),
		rows.String(),
		html.EscapeString(shortDate(rs.GeneratedAt)))
}

func htmlItem(rank int, it core.Item) string {
	date := it.Date
	if date == "" {
		date = "n/a"
	}

	var metaHTML string
	if parts := itemMetadata(it); len(parts) > 0 {
		escaped := make([]string, 0, len(parts))
		for _, p := range parts {
			// Linkify DOI metadata; everything else renders as-is.
			if strings.HasPrefix(p, "DOI: ") {
				doi := html.EscapeString(strings.TrimPrefix(p, "DOI: "))
				escaped = append(escaped, fmt.Sprintf(`DOI: <a href="https://doi.org/%s" target="_blank">%s</a>`, doi, doi))
			} else {
				escaped = append(escaped, html.EscapeString(p))
			}
		}
		metaHTML = fmt.Sprintf(`<div class="item-meta">%s</div>`, strings.Join(escaped, " | "))
	}

	var abstractHTML string
	if it.Abstract != "" {
		abstractHTML = fmt.Sprintf(`<details>
      <summary></summary>
      <div class="abstract">%s</div>
    </details>`, html.EscapeString(it.Abstract))
	}

	var relevanceHTML string
	if it.WhyRelevant != "" {
		relevanceHTML = fmt.Sprintf(`<div class="relevance">%s</div>`, html.EscapeString(it.WhyRelevant))
	}

	return fmt.Sprintf(`    <li>
      <div class="item-header">
        <span class="rank">%d.</span>
        <span class="score %s">%d</span>
        <span class="source-tag %s">%s</span>
        <span class="item-title"><a href="%s" target="_blank">%s</a></span>
      </div>
      <div class="item-meta">%s</div>
      %s
      %s
      %s
    </li>
`,
		rank,
		scoreClass(it.Score), it.Score,
		sourceClass(it.Source), html.EscapeString(sourceLabel(it)),
		html.EscapeString(it.URL), html.EscapeString(it.Title),
		html.EscapeString(shortDate(date)),
		metaHTML,
		abstractHTML,
		relevanceHTML)
}

func htmlErrors(rs *core.ResultSet) string {
	var items strings.Builder
	for _, src := range displayOrder {
		err := rs.Errors[src]
		if err == "" {
			continue
		}
		items.WriteString(fmt.Sprintf("<li><strong>%s:</strong> %s</li>",
			html.EscapeString(string(src)), html.EscapeString(err)))
	}
	if items.Len() == 0 {
		return ""
	}
	return fmt.Sprintf(`<div class="errors"><h2>Source Errors</h2><ul>%s</ul></div>`, items.String())
}

func scoreClass(score int) string {
	switch {
	case score >= 80:
		return "score-high"
	case score >= 60:
		return "score-mid"
	}
	return "score-low"
}

func sourceClass(src core.Source) string {
	switch src {
	case core.SourcePubmed:
		return "src-pubmed"
	case core.SourceSemanticScholar:
		return "src-s2"
	case core.SourceOpenAlex:
		return "src-openalex"
	case core.SourceArxiv:
		return "src-arxiv"
	case core.SourceBiorxiv:
		return "src-biorxiv"
	case core.SourceMedrxiv:
		return "src-medrxiv"
	case core.SourceHuggingFace:
		return "src-hf"
	}
	return "src-unknown"
}

func sourceLabel(it core.Item) string {
	switch it.Source {
	case core.SourcePubmed:
		return "PubMed"
	case core.SourceSemanticScholar:
		return "S2"
	case core.SourceOpenAlex:
		return "OpenAlex"
	case core.SourceArxiv:
		return "arXiv"
	case core.SourceBiorxiv, core.SourceMedrxiv:
		return string(it.Source)
	case core.SourceHuggingFace:
		if d, ok := it.Details.(core.HuggingFaceDetails); ok && d.ItemType != "" {
			return "HF:" + d.ItemType
		}
		return "HF"
	}
	return "?"
}

const reportCSS = `
*, *::before, *::after { box-sizing: border-box; }
body {
  font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
  line-height: 1.5;
  color: #1a1a1a;
  background: #f8f9fa;
  margin: 0;
  padding: 1rem;
}
.container { max-width: 900px; margin: 0 auto; }
header { margin-bottom: 1.5rem; }
h1 { margin: 0 0 0.25rem 0; font-size: 1.5rem; }
.meta { color: #555; font-size: 0.85rem; }
.meta .sep { margin: 0 0.35rem; color: #ccc; }
.notice {
  background: #e8f4fd; border-left: 3px solid #4a9eda;
  padding: 0.5rem 0.75rem; margin-bottom: 1rem; font-size: 0.85rem;
}
.notice.warning { background: #fff3cd; border-left-color: #d4a017; }
.notice.error { background: #fde8e8; border-left-color: #d44; }
.errors { margin-bottom: 1rem; }
.errors h2 { font-size: 1rem; margin: 0 0 0.5rem 0; }
.errors li { font-size: 0.85rem; color: #b33; }
ol.results { list-style: none; padding: 0; margin: 0; counter-reset: item; }
ol.results > li {
  counter-increment: item;
  background: #fff; border: 1px solid #e0e0e0; border-radius: 6px;
  padding: 0.75rem 1rem; margin-bottom: 0.5rem;
}
ol.results > li:hover { border-color: #bbb; }
.item-header { display: flex; align-items: baseline; gap: 0.5rem; flex-wrap: wrap; }
.rank { color: #888; font-size: 0.85rem; min-width: 2rem; }
.score {
  display: inline-block; padding: 0.1rem 0.45rem; border-radius: 3px;
  font-size: 0.8rem; font-weight: 600; color: #fff;
}
.score-high { background: #2a7d3f; }
.score-mid { background: #b38600; }
.score-low { background: #888; }
.item-title { font-weight: 600; font-size: 0.95rem; }
.item-title a { color: #1a1a1a; text-decoration: none; }
.item-title a:hover { text-decoration: underline; }
.source-tag {
  display: inline-block; padding: 0.05rem 0.4rem; border-radius: 3px;
  font-size: 0.7rem; font-weight: 600; color: #fff; white-space: nowrap;
}
.src-pubmed { background: #2563a0; }
.src-s2 { background: #7c3aed; }
.src-openalex { background: #0d7377; }
.src-arxiv { background: #b31b1b; }
.src-biorxiv { background: #cf6a1e; }
.src-medrxiv { background: #a84e1e; }
.src-hf { background: #c49000; }
.src-unknown { background: #888; }
.item-meta { font-size: 0.8rem; color: #555; margin-top: 0.2rem; }
.item-meta a { color: #555; }
details { margin-top: 0.3rem; }
summary {
  font-size: 0.8rem; color: #666; cursor: pointer;
  user-select: none; list-style: none;
}
summary::-webkit-details-marker { display: none; }
summary::before { content: "Show abstract"; }
details[open] summary::before { content: "Hide abstract"; }
.abstract {
  font-size: 0.85rem; color: #333; margin-top: 0.25rem;
  padding: 0.5rem; background: #f5f5f5; border-radius: 4px;
}
.relevance { font-size: 0.75rem; color: #888; margin-top: 0.2rem; font-style: italic; }
footer {
  margin-top: 2rem; padding-top: 1rem; border-top: 1px solid #e0e0e0;
  font-size: 0.8rem; color: #888; text-align: center;
}
`
