package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/fetch"
	"litscout/internal/relevance"
)

// arXiv Atom export API. Date filtering rides on the query itself via a
// submittedDate range, so a single page suffices.
const arxivAPIURL = "http://export.arxiv.org/api/query"

var arxivCaps = depthCaps{quick: 30, def: 100, deep: 200}

// Arxiv queries the arXiv Atom export API.
type Arxiv struct {
	client  *fetch.Client
	baseURL string
}

// NewArxiv creates the arXiv adapter.
func NewArxiv(client *fetch.Client) *Arxiv {
	return &Arxiv{client: client, baseURL: arxivAPIURL}
}

// Name implements Adapter.
func (a *Arxiv) Name() core.Source { return core.SourceArxiv }

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID              string         `xml:"id"`
	Title           string         `xml:"title"`
	Summary         string         `xml:"summary"`
	Published       string         `xml:"published"`
	Updated         string         `xml:"updated"`
	Authors         []atomAuthor   `xml:"author"`
	Links           []atomLink     `xml:"link"`
	Categories      []atomCategory `xml:"category"`
	PrimaryCategory atomCategory   `xml:"primary_category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Search implements Adapter. arXiv has no local relevance cutoff: its own
// keyword search already restricts the result set, so every entry is kept
// and ranked downstream.
func (a *Arxiv) Search(ctx context.Context, q core.Query) ([]core.Item, error) {
	maxResults := arxivCaps.limit(q.Depth)

	// submittedDate bounds want YYYYMMDDHHMM.
	fromArg := strings.ReplaceAll(q.From, "-", "") + "0000"
	toArg := strings.ReplaceAll(q.To, "-", "") + "2359"

	// Multi-word topics are quoted for exact phrase matching.
	term := strings.TrimSpace(q.Topic)
	if len(strings.Fields(term)) > 1 {
		term = `"` + term + `"`
	}

	searchURL := fmt.Sprintf(
		"%s?search_query=all:%s+AND+submittedDate:[%s+TO+%s]&sortBy=submittedDate&sortOrder=descending&start=0&max_results=%d",
		a.baseURL, url.QueryEscape(term), fromArg, toArg, maxResults,
	)

	xmlText, err := a.client.GetText(ctx, searchURL, &fetch.Request{Timeout: fetch.SlowTimeout})
	if err != nil {
		return nil, err
	}

	var feed atomFeed
	if err := xml.Unmarshal([]byte(xmlText), &feed); err != nil {
		return nil, fmt.Errorf("failed to parse arXiv feed: %w", err)
	}

	items := make([]core.Item, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		items = append(items, arxivItem(entry, q))
	}
	return items, nil
}

func arxivItem(entry atomEntry, q core.Query) core.Item {
	idURL := strings.TrimSpace(entry.ID)
	// The <id> is the abs page URL; the ID after /abs/ keeps its version
	// suffix so repeat runs are stable across revisions.
	arxivID := idURL
	if i := strings.LastIndex(idURL, "/abs/"); i >= 0 {
		arxivID = idURL[i+len("/abs/"):]
	}

	title := flattenLines(entry.Title)
	abstract := flattenLines(entry.Summary)

	names := make([]string, 0, len(entry.Authors))
	for _, au := range entry.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			names = append(names, name)
		}
	}

	link := idURL
	for _, l := range entry.Links {
		if l.Type == "text/html" && l.Href != "" {
			link = l.Href
			break
		}
	}
	if link == "" {
		link = "https://arxiv.org/abs/" + arxivID
	}

	date := ""
	if pub := strings.TrimSpace(entry.Published); len(pub) >= 10 {
		date = pub[:10]
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, c := range entry.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	rel, why := relevance.Score(q.Topic, title, abstract)

	return core.Item{
		ID:             core.ItemID(core.SourceArxiv, arxivID),
		Source:         core.SourceArxiv,
		Title:          title,
		Authors:        strings.Join(names, ", "),
		Abstract:       abstract,
		URL:            link,
		Date:           date,
		DateConfidence: dates.Confidence(date, q.From, q.To),
		Relevance:      rel,
		WhyRelevant:    why,
		Engagement:     &core.Engagement{AuthorCount: intp(len(names))},
		Details: core.ArxivDetails{
			ArxivID:         arxivID,
			Categories:      categories,
			PrimaryCategory: entry.PrimaryCategory.Term,
		},
	}
}

// flattenLines folds the hard line wraps arXiv puts in titles and abstracts.
func flattenLines(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}
