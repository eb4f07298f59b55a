package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"litscout/internal/core"
	"litscout/internal/dates"
	"litscout/internal/fetch"
	"litscout/internal/relevance"
)

// HuggingFace Hub API: models and datasets support keyword search, daily
// papers is an unfiltered feed. All three are JSON and need no API key.
const huggingfaceAPIURL = "https://huggingface.co"

var hfCaps = depthCaps{quick: 20, def: 50, deep: 100}

// HuggingFace queries Hub models, datasets and daily papers.
type HuggingFace struct {
	client  *fetch.Client
	baseURL string
}

// NewHuggingFace creates the HuggingFace adapter.
func NewHuggingFace(client *fetch.Client) *HuggingFace {
	return &HuggingFace{client: client, baseURL: huggingfaceAPIURL}
}

// Name implements Adapter.
func (h *HuggingFace) Name() core.Source { return core.SourceHuggingFace }

type hfRepoRow struct {
	ModelID      string   `json:"modelId"`
	ID           string   `json:"id"`
	LastModified string   `json:"lastModified"`
	CreatedAt    string   `json:"createdAt"`
	Downloads    int      `json:"downloads"`
	Likes        int      `json:"likes"`
	Tags         []string `json:"tags"`
}

type hfDailyPaperRow struct {
	PublishedAt string       `json:"publishedAt"`
	Title       string       `json:"title"`
	Paper       *hfPaperInfo `json:"paper"`
}

type hfPaperInfo struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Summary     string          `json:"summary"`
	Upvotes     int             `json:"upvotes"`
	PublishedAt string          `json:"publishedAt"`
	Authors     []hfPaperAuthor `json:"authors"`
}

type hfPaperAuthor struct {
	Name string `json:"name"`
}

// Search implements Adapter. The three subresources are fetched
// independently; a failing one contributes a prefixed fragment to the source
// error while the others still deliver. Items older than the window (or
// undated) are dropped locally since the Hub cannot filter by date.
func (h *HuggingFace) Search(ctx context.Context, q core.Query) ([]core.Item, error) {
	limit := hfCaps.limit(q.Depth)

	var (
		items []core.Item
		errs  []string
	)

	models, err := h.fetchRepos(ctx, "models", q.Topic, limit)
	if err != nil {
		errs = append(errs, "models: "+err.Error())
	}
	for _, row := range models {
		if it, ok := h.repoItem(row, q, core.HFModel); ok {
			items = append(items, it)
		}
	}

	datasets, err := h.fetchRepos(ctx, "datasets", q.Topic, limit)
	if err != nil {
		errs = append(errs, "datasets: "+err.Error())
	}
	for _, row := range datasets {
		if it, ok := h.repoItem(row, q, core.HFDataset); ok {
			items = append(items, it)
		}
	}

	papers, err := h.fetchPapers(ctx, q.Topic)
	if err != nil {
		errs = append(errs, "papers: "+err.Error())
	}
	for _, row := range papers {
		if it, ok := hfPaperItem(row, q); ok {
			items = append(items, it)
		}
	}

	if len(errs) > 0 {
		return items, errors.New(strings.Join(errs, "; "))
	}
	return items, nil
}

// fetchRepos lists models or datasets matching the topic, most-liked first.
func (h *HuggingFace) fetchRepos(ctx context.Context, kind, topic string, limit int) ([]hfRepoRow, error) {
	listURL := fmt.Sprintf(
		"%s/api/%s?search=%s&sort=likes&direction=-1&limit=%d",
		h.baseURL, kind, url.QueryEscape(topic), limit,
	)
	var rows []hfRepoRow
	if err := h.client.GetJSON(ctx, listURL, &rows, nil); err != nil {
		return nil, err
	}
	return rows, nil
}

// fetchPapers pulls the daily papers feed and keeps entries whose title
// clears the relevance cutoff. The feed has no search parameter, so the
// filter is the whole query.
func (h *HuggingFace) fetchPapers(ctx context.Context, topic string) ([]hfDailyPaperRow, error) {
	var rows []hfDailyPaperRow
	if err := h.client.GetJSON(ctx, h.baseURL+"/api/daily_papers", &rows, nil); err != nil {
		return nil, err
	}
	var relevant []hfDailyPaperRow
	for _, row := range rows {
		title := row.Title
		if row.Paper != nil && row.Paper.Title != "" {
			title = row.Paper.Title
		}
		if rel, _ := relevance.Score(topic, title, ""); rel > relevanceCutoff {
			relevant = append(relevant, row)
		}
	}
	return relevant, nil
}

func (h *HuggingFace) repoItem(row hfRepoRow, q core.Query, itemType string) (core.Item, bool) {
	repoID := row.ModelID
	if repoID == "" {
		repoID = row.ID
	}
	if repoID == "" {
		return core.Item{}, false
	}

	title, author := repoID, ""
	if strings.Contains(repoID, "/") {
		parts := strings.Split(repoID, "/")
		title = parts[len(parts)-1]
		author = parts[0]
	}

	date := ""
	for _, v := range []string{row.LastModified, row.CreatedAt} {
		if len(v) >= 10 {
			date = v[:10]
			break
		}
	}
	if date < q.From {
		return core.Item{}, false
	}

	itemURL := huggingfaceAPIURL + "/" + repoID
	if itemType == core.HFDataset {
		itemURL = huggingfaceAPIURL + "/datasets/" + repoID
	}

	tags := row.Tags
	if tags == nil {
		tags = []string{}
	}
	rel, why := relevance.Score(q.Topic, title, strings.Join(tags, " "))

	return core.Item{
		ID:             core.ItemID(core.SourceHuggingFace, repoID),
		Source:         core.SourceHuggingFace,
		Title:          title,
		Authors:        author,
		URL:            itemURL,
		Date:           date,
		DateConfidence: dates.Confidence(date, q.From, q.To),
		Relevance:      rel,
		WhyRelevant:    why,
		Engagement: &core.Engagement{
			Downloads: intp(row.Downloads),
			Likes:     intp(row.Likes),
		},
		Details: core.HuggingFaceDetails{
			HFID:     repoID,
			ItemType: itemType,
			Tags:     tags,
		},
	}, true
}

func hfPaperItem(row hfDailyPaperRow, q core.Query) (core.Item, bool) {
	info := row.Paper
	if info == nil {
		info = &hfPaperInfo{Title: row.Title, PublishedAt: row.PublishedAt}
	}

	title := info.Title
	if title == "" {
		title = row.Title
	}
	if title == "" {
		return core.Item{}, false
	}

	var names []string
	for _, a := range info.Authors[:min(3, len(info.Authors))] {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}

	date := row.PublishedAt
	if date == "" {
		date = info.PublishedAt
	}
	if len(date) >= 10 {
		date = date[:10]
	} else {
		date = ""
	}
	if date < q.From {
		return core.Item{}, false
	}

	rel, why := relevance.Score(q.Topic, title, info.Summary)

	upvotes := 0
	if row.Paper != nil {
		upvotes = row.Paper.Upvotes
	}

	return core.Item{
		ID:             core.ItemID(core.SourceHuggingFace, info.ID),
		Source:         core.SourceHuggingFace,
		Title:          title,
		Authors:        strings.Join(names, ", "),
		Abstract:       info.Summary,
		URL:            huggingfaceAPIURL + "/papers/" + info.ID,
		Date:           date,
		DateConfidence: dates.Confidence(date, q.From, q.To),
		Relevance:      rel,
		WhyRelevant:    why,
		Engagement: &core.Engagement{
			Downloads: intp(0),
			Likes:     intp(upvotes),
		},
		Details: core.HuggingFaceDetails{
			HFID:     info.ID,
			ItemType: core.HFPaper,
			Tags:     []string{},
		},
	}, true
}
