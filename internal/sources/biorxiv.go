package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/fetch"
	"litscout/internal/relevance"
)

// bioRxiv and medRxiv share one API shape: a date-windowed listing with a
// numeric cursor and no keyword search, so all topic filtering happens
// locally. The details endpoint serves both servers.
const biorxivAPIURL = "https://api.biorxiv.org"

const (
	// biorxivMaxPages is a safety valve on cursor paging.
	biorxivMaxPages = 30
	// biorxivPageWorkers bounds the parallel fetch of pages after the first.
	biorxivPageWorkers = 5
)

var biorxivCaps = depthCaps{quick: 20, def: 50, deep: 200}

// Biorxiv queries the bioRxiv details API; with server set to medrxiv it
// serves medRxiv instead.
type Biorxiv struct {
	client  *fetch.Client
	baseURL string
	server  core.Source
}

// NewBiorxiv creates the bioRxiv adapter.
func NewBiorxiv(client *fetch.Client) *Biorxiv {
	return &Biorxiv{client: client, baseURL: biorxivAPIURL, server: core.SourceBiorxiv}
}

// NewMedrxiv creates the medRxiv adapter.
func NewMedrxiv(client *fetch.Client) *Biorxiv {
	return &Biorxiv{client: client, baseURL: biorxivAPIURL, server: core.SourceMedrxiv}
}

// Name implements Adapter.
func (b *Biorxiv) Name() core.Source { return b.server }

type biorxivResponse struct {
	Collection []biorxivRow     `json:"collection"`
	Messages   []biorxivMessage `json:"messages"`
}

type biorxivRow struct {
	DOI       string `json:"doi"`
	Title     string `json:"title"`
	Authors   string `json:"authors"` // semicolon-separated
	Date      string `json:"date"`
	Category  string `json:"category"`
	Abstract  string `json:"abstract"`
	Published string `json:"published"` // peer-reviewed DOI, or "NA"
}

type biorxivMessage struct {
	Total int `json:"total"`
	Count int `json:"count"`
}

// Search implements Adapter. The first page is fetched alone to learn the
// total row count, then the remaining cursors fan out across a worker pool.
// Workers skip their page once enough relevant items have been collected.
func (b *Biorxiv) Search(ctx context.Context, q core.Query) ([]core.Item, error) {
	maxRelevant := biorxivCaps.limit(q.Depth)

	rows, total, step, err := b.fetchPage(ctx, q, 0)
	if err != nil {
		return nil, err
	}
	items := b.relevantItems(rows, q)

	cursors := remainingCursors(step, total)
	if len(cursors) == 0 || len(items) >= maxRelevant {
		return trim(items, maxRelevant), nil
	}

	type pageResult struct {
		items []core.Item
		err   error
	}
	results := make([]pageResult, len(cursors))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		collected = len(items)
	)
	sem := make(chan struct{}, biorxivPageWorkers)
	for i, cursor := range cursors {
		wg.Add(1)
		go func(i, cursor int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			mu.Lock()
			enough := collected >= maxRelevant
			mu.Unlock()
			if enough || ctx.Err() != nil {
				return
			}

			rows, _, _, err := b.fetchPage(ctx, q, cursor)
			if err != nil {
				results[i] = pageResult{err: err}
				return
			}
			kept := b.relevantItems(rows, q)
			mu.Lock()
			collected += len(kept)
			mu.Unlock()
			results[i] = pageResult{items: kept}
		}(i, cursor)
	}
	wg.Wait()

	// Merge in page order so output is stable regardless of which worker
	// finished first. The first page error becomes the source error; the
	// pages that did land are kept.
	var pageErr error
	for _, res := range results {
		if res.err != nil && pageErr == nil {
			pageErr = res.err
		}
		items = append(items, res.items...)
	}
	return trim(items, maxRelevant), pageErr
}

func (b *Biorxiv) fetchPage(ctx context.Context, q core.Query, cursor int) ([]biorxivRow, int, int, error) {
	pageURL := fmt.Sprintf("%s/details/%s/%s/%s/%d/json", b.baseURL, b.server, q.From, q.To, cursor)
	var resp biorxivResponse
	if err := b.client.GetJSON(ctx, pageURL, &resp, nil); err != nil {
		return nil, 0, 0, err
	}
	total, count := 0, 0
	if len(resp.Messages) > 0 {
		total = resp.Messages[0].Total
		count = resp.Messages[0].Count
	}
	return resp.Collection, total, count, nil
}

// remainingCursors lists the cursor offsets after the first page, assuming
// the server keeps returning step rows per page.
func remainingCursors(step, total int) []int {
	if step <= 0 {
		return nil
	}
	var cursors []int
	for c := step; c < total && len(cursors) < biorxivMaxPages-1; c += step {
		cursors = append(cursors, c)
	}
	return cursors
}

func (b *Biorxiv) relevantItems(rows []biorxivRow, q core.Query) []core.Item {
	var items []core.Item
	for _, row := range rows {
		rel, why := relevance.Score(q.Topic, row.Title, row.Abstract)
		if rel <= relevanceCutoff {
			continue
		}
		items = append(items, b.item(row, q, rel, why))
	}
	return items
}

func (b *Biorxiv) item(row biorxivRow, q core.Query, rel float64, why string) core.Item {
	eng := &core.Engagement{}
	// The API reports "NA" for preprints without a published version; only
	// a real DOI counts as peer-reviewed.
	if pub := strings.TrimSpace(row.Published); pub != "" && !strings.EqualFold(pub, "NA") {
		eng.PublishedDOI = pub
	}
	if row.Authors != "" {
		eng.AuthorCount = intp(len(strings.Split(row.Authors, ";")))
	}

	itemURL := ""
	if row.DOI != "" {
		itemURL = "https://doi.org/" + row.DOI
	}

	return core.Item{
		ID:             core.ItemID(b.server, row.DOI),
		Source:         b.server,
		Title:          row.Title,
		Authors:        row.Authors,
		Abstract:       row.Abstract,
		URL:            itemURL,
		Date:           row.Date,
		DateConfidence: dates.Confidence(row.Date, q.From, q.To),
		Relevance:      rel,
		WhyRelevant:    why,
		Engagement:     eng,
		Details: core.BiorxivDetails{
			PreprintDOI: row.DOI,
			Category:    row.Category,
		},
	}
}

func trim(items []core.Item, max int) []core.Item {
	if len(items) > max {
		return items[:max]
	}
	return items
}
